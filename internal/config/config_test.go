package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bikeshare-logger/internal/gcs"
	"bikeshare-logger/internal/storage"
)

func TestLoadR2Config(t *testing.T) {
	t.Run("reports missing variables", func(t *testing.T) {
		t.Setenv("S3_ACCESS_KEY_ID", "")
		t.Setenv("S3_SECRET_ACCESS_KEY", "")
		t.Setenv("S3_ENDPOINT", "https://example.r2.cloudflarestorage.com")
		t.Setenv("S3_BUCKET_NAME", "")

		_, err := LoadR2Config()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "S3_ACCESS_KEY_ID")
		assert.Contains(t, err.Error(), "S3_BUCKET_NAME")
		assert.NotContains(t, err.Error(), "S3_ENDPOINT")
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("S3_ACCESS_KEY_ID", "key")
		t.Setenv("S3_SECRET_ACCESS_KEY", "secret")
		t.Setenv("S3_ENDPOINT", "https://example.r2.cloudflarestorage.com")
		t.Setenv("S3_BUCKET_NAME", "bikes")
		t.Setenv("S3_PREFIX", "")
		t.Setenv("S3_ARCHIVE_PREFIX", "")
		t.Setenv("S3_REGION", "")

		cfg, err := LoadR2Config()
		require.NoError(t, err)
		assert.Equal(t, storage.DefaultR2Prefix, cfg.Prefix)
		assert.Equal(t, storage.DefaultR2ArchivePrefix, cfg.ArchivePrefix)
		assert.Equal(t, "auto", cfg.Region)

		opts := cfg.Options()
		assert.Equal(t, "bikes", opts.Bucket)
		assert.Equal(t, "key", opts.AccessKeyID)
	})
}

func TestLoadGCSConfig(t *testing.T) {
	t.Setenv("GCS_BUCKET", "")
	_, err := LoadGCSConfig()
	assert.Error(t, err)

	t.Setenv("GCS_BUCKET", "bikes")
	t.Setenv("GCS_PREFIX", "")
	cfg, err := LoadGCSConfig()
	require.NoError(t, err)
	assert.Equal(t, "bikes", cfg.Bucket)
	assert.Equal(t, gcs.DefaultPrefix, cfg.Prefix)
}
