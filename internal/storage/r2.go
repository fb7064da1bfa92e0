package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"bikeshare-logger/internal/snapshot"
)

const (
	// DefaultR2Prefix holds per-poll snapshot objects.
	DefaultR2Prefix = "snapshots/"
	// DefaultR2ArchivePrefix holds mirrored log files.
	DefaultR2ArchivePrefix = "archive/"

	snapshotKeyPrefix = "station_status_"
	snapshotKeyLayout = "20060102_150405"
)

// R2Options configures an R2Storage. Endpoint, bucket and credentials are
// required; Region defaults to "auto".
type R2Options struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Bucket          string
	Region          string
	Prefix          string
	ArchivePrefix   string
	// Location is used to read capture times back. Defaults to time.Local.
	Location *time.Location
}

// R2Storage handles reading and writing station rows to Cloudflare R2
// or any S3-compatible store.
type R2Storage struct {
	client        *s3.Client
	bucket        string
	prefix        string
	archivePrefix string
	loc           *time.Location
}

// NewR2Storage creates a new R2 storage instance.
func NewR2Storage(opts R2Options) (*R2Storage, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("R2 endpoint and bucket are required")
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultR2Prefix
	}
	if opts.ArchivePrefix == "" {
		opts.ArchivePrefix = DefaultR2ArchivePrefix
	}
	if opts.Region == "" {
		opts.Region = "auto"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	credProvider := credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")

	// R2 needs path-style addressing
	client := s3.New(s3.Options{
		Credentials:  credProvider,
		BaseEndpoint: aws.String(opts.Endpoint),
		Region:       opts.Region,
		UsePathStyle: true,
	})

	return &R2Storage{
		client:        client,
		bucket:        opts.Bucket,
		prefix:        opts.Prefix,
		archivePrefix: opts.ArchivePrefix,
		loc:           opts.Location,
	}, nil
}

// SnapshotKey returns the object key for a batch captured at t.
func (r *R2Storage) SnapshotKey(t time.Time) string {
	return r.prefix + snapshotKeyPrefix + t.UTC().Format(snapshotKeyLayout) + csvExt
}

// WriteRows writes one batch to R2 as its own CSV object.
func (r *R2Storage) WriteRows(ctx context.Context, capturedAt time.Time, rows []snapshot.Row) (string, error) {
	start := time.Now()
	defer func() {
		log.Printf("[R2] WriteRows completed in %s (stations=%d)", time.Since(start), len(rows))
	}()

	key := r.SnapshotKey(capturedAt)

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(snapshot.Columns(true)); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row.Record(true)); err != nil {
			return "", fmt.Errorf("failed to write station %s: %w", row.StationID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush writer: %w", err)
	}

	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
		Metadata: map[string]string{
			"timestamp": capturedAt.Format(time.RFC3339),
			"stations":  strconv.Itoa(len(rows)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	return key, nil
}

// Archive uploads a mirrored log file under the archive prefix.
func (r *R2Storage) Archive(ctx context.Context, name string, contents []byte) error {
	start := time.Now()
	key := r.archivePrefix + path.Base(name)
	defer func() {
		log.Printf("[R2] Archive completed in %s (key=%s, bytes=%d)", time.Since(start), key, len(contents))
	}()

	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(contents),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s to R2: %w", key, err)
	}
	return nil
}

// ListSnapshots returns all snapshot keys in R2, sorted by timestamp (newest first).
func (r *R2Storage) ListSnapshots(ctx context.Context) ([]string, error) {
	start := time.Now()
	defer func() {
		log.Printf("[R2] ListSnapshots completed in %s", time.Since(start))
	}()

	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.prefix + snapshotKeyPrefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		result, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range result.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, csvExt) {
				keys = append(keys, key)
			}
		}
	}

	// Key format is "{prefix}station_status_YYYYMMDD_HHMMSS.csv" so reverse
	// lexical order is newest first
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	return keys, nil
}

// ReadLatestRows reads the most recent snapshot from R2.
func (r *R2Storage) ReadLatestRows(ctx context.Context) ([]snapshot.Row, time.Time, error) {
	start := time.Now()
	defer func() {
		log.Printf("[R2] ReadLatestRows completed in %s", time.Since(start))
	}()

	keys, err := r.ListSnapshots(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}

	if len(keys) == 0 {
		return nil, time.Time{}, fmt.Errorf("no snapshots found in R2 bucket")
	}

	return r.GetSnapshot(ctx, keys[0])
}

// ListAvailableTimestamps returns all snapshot timestamps, parsed from the keys.
func (r *R2Storage) ListAvailableTimestamps(ctx context.Context) ([]time.Time, error) {
	keys, err := r.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	var timestamps []time.Time
	for _, key := range keys {
		ts, err := parseTimestampFromKey(key)
		if err != nil {
			log.Printf("[R2] Skipping key %s: %v", key, err)
			continue
		}
		timestamps = append(timestamps, ts)
	}

	return timestamps, nil
}

// GetSnapshot downloads and parses a specific snapshot from R2.
func (r *R2Storage) GetSnapshot(ctx context.Context, key string) ([]snapshot.Row, time.Time, error) {
	start := time.Now()
	defer func() {
		log.Printf("[R2] GetSnapshot completed in %s (key=%s)", time.Since(start), key)
	}()

	result, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to get object: %w", err)
	}
	defer result.Body.Close()

	rows, err := decodeRows(result.Body, r.loc)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	if len(rows) == 0 {
		return nil, time.Time{}, fmt.Errorf("empty snapshot %s", key)
	}

	return rows, rows[0].CapturedAt, nil
}

// GetHistoricalData returns aggregate statistics for all available snapshots.
func (r *R2Storage) GetHistoricalData(ctx context.Context) ([]HistoricalDataPoint, error) {
	start := time.Now()
	defer func() {
		log.Printf("[R2] GetHistoricalData completed in %s", time.Since(start))
	}()

	keys, err := r.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	var all []snapshot.Row
	for _, key := range keys {
		rows, _, err := r.GetSnapshot(ctx, key)
		if err != nil {
			log.Printf("Failed to read snapshot %s: %v", key, err)
			continue
		}
		all = append(all, rows...)
	}

	return aggregate(all), nil
}

// parseTimestampFromKey extracts the timestamp from a snapshot key.
// Key format: {prefix}station_status_YYYYMMDD_HHMMSS.csv
func parseTimestampFromKey(key string) (time.Time, error) {
	idx := strings.LastIndex(key, snapshotKeyPrefix)
	if idx == -1 {
		return time.Time{}, fmt.Errorf("invalid key format: missing %q prefix", snapshotKeyPrefix)
	}

	tsStr := strings.TrimSuffix(key[idx+len(snapshotKeyPrefix):], csvExt)
	return time.Parse(snapshotKeyLayout, tsStr)
}

// GetSnapshotByTimestamp returns the snapshot with the closest matching timestamp.
func (r *R2Storage) GetSnapshotByTimestamp(ctx context.Context, target time.Time) ([]snapshot.Row, time.Time, error) {
	start := time.Now()
	defer func() {
		log.Printf("[R2] GetSnapshotByTimestamp completed in %s (target=%s)", time.Since(start), target.Format(time.RFC3339))
	}()

	keys, err := r.ListSnapshots(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to list snapshots: %w", err)
	}

	// Parse timestamps from keys instead of downloading each object
	var (
		candidates []string
		timestamps []time.Time
	)
	for _, key := range keys {
		ts, err := parseTimestampFromKey(key)
		if err != nil {
			log.Printf("[R2] Failed to parse timestamp from key %s: %v", key, err)
			continue
		}
		candidates = append(candidates, key)
		timestamps = append(timestamps, ts)
	}

	i := closest(timestamps, target)
	if i < 0 {
		return nil, time.Time{}, fmt.Errorf("no snapshots available")
	}

	log.Printf("[R2] GetSnapshotByTimestamp found closest key %s", candidates[i])

	return r.GetSnapshot(ctx, candidates[i])
}

// BucketExists checks if the bucket exists
func (r *R2Storage) BucketExists(ctx context.Context) (bool, error) {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.bucket),
	})
	if err == nil {
		return true, nil
	}

	return false, fmt.Errorf("failed to access bucket '%s': %w", r.bucket, err)
}
