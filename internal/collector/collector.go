// Package collector runs one poll of the station snapshot logger:
// resolve the feed, fetch it, flatten it and persist the rows.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"bikeshare-logger/internal/gbfs"
	"bikeshare-logger/internal/snapshot"
	"bikeshare-logger/internal/storage"
)

// Failure kinds returned by Run. Each wraps the underlying error.
var (
	// ErrDiscovery means no station_status URL could be resolved.
	ErrDiscovery = errors.New("discovery failed")
	// ErrFetch means the station_status feed could not be fetched or parsed.
	ErrFetch = errors.New("snapshot fetch failed")
	// ErrPersist means the batch could not be written. No rows were logged.
	ErrPersist = errors.New("persist failed")
	// ErrArchive means the batch was logged but mirroring the log failed.
	ErrArchive = errors.New("archive failed")
)

// Source is the GBFS side of a poll. *gbfs.Client implements it.
type Source interface {
	ResolveStationStatusURL(ctx context.Context) (string, error)
	FetchStationStatus(ctx context.Context, url string) ([]gbfs.StationStatus, error)
}

// Result describes a logged batch.
type Result struct {
	// Location is the file path or object key written.
	Location   string
	Rows       int
	CapturedAt time.Time
}

// Collector polls a Source and writes each batch to a RowWriter.
type Collector struct {
	source   Source
	writer   storage.RowWriter
	types    snapshot.VehicleTypes
	archiver storage.Archiver
	now      func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock replaces time.Now as the capture clock.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// WithArchiver uploads the written log file after every successful poll.
// It only makes sense with a file-backed RowWriter.
func WithArchiver(a storage.Archiver) Option {
	return func(c *Collector) {
		c.archiver = a
	}
}

// New creates a Collector.
func New(source Source, writer storage.RowWriter, types snapshot.VehicleTypes, opts ...Option) *Collector {
	c := &Collector{
		source: source,
		writer: writer,
		types:  types,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs one poll. On ErrArchive the returned Result is still valid
// because the rows were already logged.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	url, err := c.source.ResolveStationStatusURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	stations, err := c.source.FetchStationStatus(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	capturedAt := c.now().Truncate(time.Second)
	rows := snapshot.Flatten(stations, capturedAt, c.types)

	location, err := c.writer.WriteRows(ctx, capturedAt, rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	result := &Result{
		Location:   location,
		Rows:       len(rows),
		CapturedAt: capturedAt,
	}
	log.Printf("Logged %d stations to %s", result.Rows, result.Location)

	if c.archiver != nil {
		contents, err := os.ReadFile(location)
		if err != nil {
			return result, fmt.Errorf("%w: %w", ErrArchive, err)
		}
		if err := c.archiver.Archive(ctx, location, contents); err != nil {
			return result, fmt.Errorf("%w: %w", ErrArchive, err)
		}
	}

	return result, nil
}
