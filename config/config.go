// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"tripsync/mq/mq"
)

// AppName names the Postgres schema of the document store.
const AppName = "tripsync"

// Store backends.
const (
	StoreMemory   = "mem"
	StorePostgres = "pg"
)

// Packing storage backends.
const (
	PackingFile   = "file"
	PackingSQLite = "sqlite"
)

// Upload backends.
const (
	UploadPreset = "preset"
	UploadS3     = "s3"
)

type S3Config struct {
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is json or text.
	Format string
	// File, when set, receives a rotated copy of every log line.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type Config struct {
	Port  string
	IsDev bool

	StoreMode   string
	MqMode      mq.Mode
	DatabaseURL string
	RabbitMQURL string
	GCPProject  string

	PackingStore string
	// PackingPath is a directory for file storage or a DSN for SQLite.
	PackingPath string

	UploadMode     string
	UploadEndpoint string
	UploadPreset   string
	S3             S3Config

	// TripData is a YAML file replacing the bundled trip; empty keeps it.
	TripData string

	Log LogConfig
}

// Load reads the environment. Unknown mode values are rejected.
func Load() (Config, error) {
	cfg := Config{
		Port:  getEnv("PORT", "8080"),
		IsDev: getBool("DEV", true),

		StoreMode:   getEnv("STORE_MODE", StoreMemory),
		MqMode:      mq.Mode(getEnv("MQ_MODE", string(mq.ModeGoChan))),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RabbitMQURL: os.Getenv("RABBITMQ_URL"),
		GCPProject:  os.Getenv("GCP_PROJECT_ID"),

		PackingStore: getEnv("PACKING_STORE", PackingFile),
		PackingPath:  getEnv("PACKING_PATH", ".tripsync"),

		UploadMode:     getEnv("UPLOAD_MODE", UploadPreset),
		UploadEndpoint: os.Getenv("UPLOAD_ENDPOINT"),
		UploadPreset:   os.Getenv("UPLOAD_PRESET"),
		S3: S3Config{
			Region:        getEnv("S3_REGION", "us-east-1"),
			Endpoint:      os.Getenv("S3_ENDPOINT"),
			AccessKey:     os.Getenv("S3_ACCESS_KEY"),
			SecretKey:     os.Getenv("S3_SECRET_KEY"),
			Bucket:        os.Getenv("S3_BUCKET"),
			PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		},

		TripData: os.Getenv("TRIP_DATA"),

		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "text"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getInt("LOG_MAX_AGE_DAYS", 14),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks mode values and the settings each mode requires.
func (c Config) Validate() error {
	var problems []string
	switch c.StoreMode {
	case StoreMemory, StorePostgres:
	default:
		problems = append(problems, fmt.Sprintf("STORE_MODE %q", c.StoreMode))
	}
	if !c.MqMode.Valid() {
		problems = append(problems, fmt.Sprintf("MQ_MODE %q", c.MqMode))
	}
	switch c.PackingStore {
	case PackingFile, PackingSQLite:
	default:
		problems = append(problems, fmt.Sprintf("PACKING_STORE %q", c.PackingStore))
	}
	switch c.UploadMode {
	case UploadPreset:
	case UploadS3:
		if c.S3.Bucket == "" {
			problems = append(problems, "S3_BUCKET is required for UPLOAD_MODE s3")
		}
	default:
		problems = append(problems, fmt.Sprintf("UPLOAD_MODE %q", c.UploadMode))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}
	return nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}
