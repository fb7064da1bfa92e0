// Package gcs mirrors station log files to Google Cloud Storage (GCS).
//
// The client uses default application credentials
// (~/.config/gcloud/application_default_credentials.json or the
// GOOGLE_APPLICATION_CREDENTIALS file).
package gcs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/googleapis/google-cloud-go-testing/storage/stiface"
)

// DefaultPrefix is the object name prefix for archived logs.
const DefaultPrefix = "station_status/"

// StorageClient uploads log files to one bucket.
type StorageClient struct {
	bucket       string
	prefix       string
	client       stiface.Client
	bucketHandle stiface.BucketHandle
}

var (
	uploadTimeout = 5 * time.Minute

	errCreateClient = errors.New("failed to create GCS client")
	errUploadObject = errors.New("failed to upload GCS object")
	errCloseObject  = errors.New("failed to close GCS object")

	// Testing support.
	storageNewClient = storage.NewClient
)

// NewClient returns a new GCS client for the specified bucket. Objects are
// named prefix + file name.
func NewClient(ctx context.Context, bucket, prefix string) (*StorageClient, error) {
	client, err := storageNewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCreateClient, err)
	}
	adaptClient := stiface.AdaptClient(client)
	return newStorageClient(bucket, prefix, adaptClient, adaptClient.Bucket(bucket)), nil
}

func newStorageClient(bucket, prefix string, client stiface.Client, bucketHandle stiface.BucketHandle) *StorageClient {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &StorageClient{
		bucket:       bucket,
		prefix:       prefix,
		client:       client,
		bucketHandle: bucketHandle,
	}
}

// Archive uploads contents as prefix + base name of name, replacing any
// previous object.
//
// Methods in the storage package may retry calls that fail with transient
// errors until the upload timeout expires.
func (s *StorageClient) Archive(ctx context.Context, name string, contents []byte) error {
	objPath := s.prefix + path.Base(name)
	start := time.Now()

	storageCtx, storageCancel := context.WithTimeout(ctx, uploadTimeout)
	defer storageCancel()

	writer := s.bucketHandle.Object(objPath).NewWriter(storageCtx)
	for written := 0; written < len(contents); {
		n, err := writer.Write(contents[written:])
		if err != nil {
			return fmt.Errorf("%w: '%v:%v': %v", errUploadObject, s.bucket, objPath, err)
		}
		written += n
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("%w: '%v:%v': %v", errCloseObject, s.bucket, objPath, err)
	}

	log.Printf("[GCS] Archive completed in %s (object=%v:%v, bytes=%d)", time.Since(start), s.bucket, objPath, len(contents))
	return nil
}

// Close releases the underlying client.
func (s *StorageClient) Close() error {
	return s.client.Close()
}
