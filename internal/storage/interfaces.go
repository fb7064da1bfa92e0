package storage

import (
	"context"
	"sort"
	"time"

	"bikeshare-logger/internal/snapshot"
)

// DataStore is the interface for reading logged station rows.
// It's implemented by both CSVStorage and R2Storage.
type DataStore interface {
	// ReadLatestRows reads the most recent batch of rows.
	ReadLatestRows(ctx context.Context) ([]snapshot.Row, time.Time, error)

	// ListAvailableTimestamps returns all batch capture times, newest first.
	ListAvailableTimestamps(ctx context.Context) ([]time.Time, error)
}

// HistoricalDataStore extends DataStore with methods for accessing historical data.
type HistoricalDataStore interface {
	DataStore

	// GetHistoricalData returns aggregate statistics for every logged batch.
	// This is used to display trends over time.
	GetHistoricalData(ctx context.Context) ([]HistoricalDataPoint, error)

	// GetSnapshotByTimestamp returns the batch closest to the given time.
	GetSnapshotByTimestamp(ctx context.Context, timestamp time.Time) ([]snapshot.Row, time.Time, error)
}

// RowWriter persists one batch and returns where it went (file path or
// object key).
type RowWriter interface {
	WriteRows(ctx context.Context, capturedAt time.Time, rows []snapshot.Row) (string, error)
}

// Archiver uploads a named blob, replacing any previous copy.
type Archiver interface {
	Archive(ctx context.Context, name string, contents []byte) error
}

// HistoricalDataPoint represents one batch with aggregate statistics.
type HistoricalDataPoint struct {
	Timestamp    time.Time
	TotalBikes   int
	TotalEBikes  int
	TotalClassic int
	TotalDocks   int
	StationCount int
}

// aggregate folds rows into one HistoricalDataPoint per capture time,
// ordered oldest first.
func aggregate(rows []snapshot.Row) []HistoricalDataPoint {
	var points []HistoricalDataPoint
	byTime := make(map[int64]int)

	for _, row := range rows {
		i, ok := byTime[row.CapturedAt.Unix()]
		if !ok {
			i = len(points)
			byTime[row.CapturedAt.Unix()] = i
			points = append(points, HistoricalDataPoint{Timestamp: row.CapturedAt})
		}
		points[i].TotalBikes += row.NumBikes
		points[i].TotalEBikes += row.NumEBikes
		points[i].TotalClassic += row.NumClassic
		points[i].TotalDocks += row.NumDocks
		points[i].StationCount++
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points
}

// closest returns the index of the timestamp nearest to target, or -1.
func closest(timestamps []time.Time, target time.Time) int {
	best := -1
	bestDiff := time.Duration(1<<63 - 1)
	for i, ts := range timestamps {
		diff := ts.Sub(target)
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = i
		}
	}
	return best
}
