// Package upload sends images to a binary object store and returns their
// public URLs.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// File is one image to upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Uploader stores a file and returns its HTTPS URL.
type Uploader interface {
	Upload(ctx context.Context, f File) (string, error)
}

// UploadError reports a failed upload of one file.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// DefaultParallelism bounds concurrent uploads in UploadAll.
const DefaultParallelism = 4

// UploadAll uploads files in parallel. Failed uploads are logged and left
// out; the returned URLs keep the input order of the files that succeeded.
func UploadAll(ctx context.Context, u Uploader, files []File, logger *slog.Logger) ([]string, []error) {
	if logger == nil {
		logger = slog.Default()
	}
	urls := make([]string, len(files))
	errs := make([]error, len(files))

	var g errgroup.Group
	g.SetLimit(DefaultParallelism)
	for i, f := range files {
		g.Go(func() error {
			url, err := u.Upload(ctx, f)
			if err != nil {
				errs[i] = wrap(f.Name, err)
				logger.Warn("image upload failed, dropping it", "name", f.Name, "error", err)
				return nil
			}
			urls[i] = url
			return nil
		})
	}
	_ = g.Wait()

	var okURLs []string
	var failed []error
	for i := range files {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		okURLs = append(okURLs, urls[i])
	}
	return okURLs, failed
}

func wrap(name string, err error) error {
	var ue *UploadError
	if errors.As(err, &ue) {
		return err
	}
	return &UploadError{Name: name, Err: err}
}
