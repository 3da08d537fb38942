package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Defaults of the hosted image service the app posts to.
const (
	DefaultEndpoint = "https://api.cloudinary.com/v1_1/dqr4ofzd0/image/upload"
	DefaultPreset   = "ski_app_preset"
)

// PresetUploader posts a multipart file with an unsigned upload preset.
type PresetUploader struct {
	endpoint string
	preset   string
	client   *http.Client
}

// NewPresetUploader returns an uploader for endpoint. A nil client gets a
// client with a 30 second timeout.
func NewPresetUploader(endpoint, preset string, client *http.Client) *PresetUploader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PresetUploader{endpoint: endpoint, preset: preset, client: client}
}

type presetResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (u *PresetUploader) Upload(ctx context.Context, f File) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", f.Name)
	if err != nil {
		return "", &UploadError{Name: f.Name, Err: err}
	}
	if _, err := part.Write(f.Data); err != nil {
		return "", &UploadError{Name: f.Name, Err: err}
	}
	if err := w.WriteField("upload_preset", u.preset); err != nil {
		return "", &UploadError{Name: f.Name, Err: err}
	}
	if err := w.Close(); err != nil {
		return "", &UploadError{Name: f.Name, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", &UploadError{Name: f.Name, Err: err}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", &UploadError{Name: f.Name, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &UploadError{Name: f.Name, Err: err}
	}
	var out presetResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode/100 != 2 {
		switch {
		case decodeErr != nil:
			return "", &UploadError{Name: f.Name, Err: fmt.Errorf("upload service: %s: decode body: %w", resp.Status, decodeErr)}
		case out.Error != nil && out.Error.Message != "":
			return "", &UploadError{Name: f.Name, Err: fmt.Errorf("upload service: %s", out.Error.Message)}
		default:
			return "", &UploadError{Name: f.Name, Err: fmt.Errorf("upload service: %s", resp.Status)}
		}
	}
	if decodeErr != nil {
		return "", &UploadError{Name: f.Name, Err: fmt.Errorf("decode upload response: %w", decodeErr)}
	}
	if out.SecureURL == "" {
		return "", &UploadError{Name: f.Name, Err: fmt.Errorf("upload service returned no secure_url")}
	}
	return out.SecureURL, nil
}
