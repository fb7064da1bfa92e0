// Package config loads storage credentials from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"bikeshare-logger/internal/storage"
)

// R2Config holds Cloudflare R2 (or other S3-compatible) configuration.
type R2Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	BucketName      string
	Prefix          string
	ArchivePrefix   string
	Region          string
}

// LoadEnvFile loads a .env file from the working directory if there is one.
// Variables already set in the environment win.
func LoadEnvFile() {
	// Ignore error if file doesn't exist (expected in production)
	_ = godotenv.Load()
}

// LoadR2Config loads R2 configuration from environment variables or .env file.
// For local development, it attempts to load from .env file first.
// For production, it relies on environment variables set by the platform.
func LoadR2Config() (*R2Config, error) {
	LoadEnvFile()

	cfg := &R2Config{
		AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		Endpoint:        os.Getenv("S3_ENDPOINT"),
		BucketName:      os.Getenv("S3_BUCKET_NAME"),
		Prefix:          os.Getenv("S3_PREFIX"),
		ArchivePrefix:   os.Getenv("S3_ARCHIVE_PREFIX"),
		Region:          os.Getenv("S3_REGION"),
	}

	if cfg.Prefix == "" {
		cfg.Prefix = storage.DefaultR2Prefix
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = storage.DefaultR2ArchivePrefix
	}

	// For Cloudflare R2, region doesn't matter but AWS SDK requires it
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	var missing []string
	if cfg.AccessKeyID == "" {
		missing = append(missing, "S3_ACCESS_KEY_ID")
	}
	if cfg.SecretAccessKey == "" {
		missing = append(missing, "S3_SECRET_ACCESS_KEY")
	}
	if cfg.Endpoint == "" {
		missing = append(missing, "S3_ENDPOINT")
	}
	if cfg.BucketName == "" {
		missing = append(missing, "S3_BUCKET_NAME")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// Options converts the configuration for storage.NewR2Storage.
func (c *R2Config) Options() storage.R2Options {
	return storage.R2Options{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		Endpoint:        c.Endpoint,
		Bucket:          c.BucketName,
		Region:          c.Region,
		Prefix:          c.Prefix,
		ArchivePrefix:   c.ArchivePrefix,
	}
}
