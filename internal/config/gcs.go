package config

import (
	"fmt"
	"os"

	"bikeshare-logger/internal/gcs"
)

// GCSConfig holds the Google Cloud Storage archive destination.
// Credentials come from the default application credentials.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// LoadGCSConfig reads GCS_BUCKET and GCS_PREFIX.
func LoadGCSConfig() (*GCSConfig, error) {
	LoadEnvFile()

	cfg := &GCSConfig{
		Bucket: os.Getenv("GCS_BUCKET"),
		Prefix: os.Getenv("GCS_PREFIX"),
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("missing required environment variables: [GCS_BUCKET]")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = gcs.DefaultPrefix
	}
	return cfg, nil
}
