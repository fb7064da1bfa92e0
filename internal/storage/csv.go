package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bikeshare-logger/internal/snapshot"
)

const (
	// DefaultHistoryFile is the single-file log location.
	DefaultHistoryFile = "data/citibike_history.csv"
	// DefaultDataDir is where daily partitions are written.
	DefaultDataDir = "data"

	dailyPrefix     = "station_status_"
	dailyDateLayout = "2006-01-02"
	csvExt          = ".csv"
)

var (
	errNoData        = errors.New("no station data found")
	errInvalidLayout = errors.New("invalid layout")
)

// Layout selects how the log is split into files.
type Layout string

const (
	// LayoutSingle appends every poll to one growing file.
	LayoutSingle Layout = "single"
	// LayoutDaily writes one file per calendar date of the capture time.
	LayoutDaily Layout = "daily"
)

// ParseLayout validates a layout name.
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutSingle, LayoutDaily:
		return Layout(s), nil
	}
	return "", fmt.Errorf("%w %q (want %q or %q)", errInvalidLayout, s, LayoutSingle, LayoutDaily)
}

// CSVOptions configures a CSVStorage.
type CSVOptions struct {
	Layout Layout
	// File is the log file for LayoutSingle.
	File string
	// Dir holds the partitions for LayoutDaily.
	Dir string
	// WithClassics adds the num_classics column to new files.
	WithClassics bool
	// Location is used to read capture times back. Defaults to time.Local.
	Location *time.Location
}

// CSVStorage handles appending station rows to CSV files and reading them back.
// It assumes a single writer.
type CSVStorage struct {
	layout       Layout
	file         string
	dir          string
	withClassics bool
	loc          *time.Location
}

// NewCSVStorage creates a new CSV storage instance.
func NewCSVStorage(opts CSVOptions) (*CSVStorage, error) {
	s := &CSVStorage{
		layout:       opts.Layout,
		file:         opts.File,
		dir:          opts.Dir,
		withClassics: opts.WithClassics,
		loc:          opts.Location,
	}
	if s.loc == nil {
		s.loc = time.Local
	}

	switch s.layout {
	case LayoutSingle:
		if s.file == "" {
			s.file = DefaultHistoryFile
		}
		s.dir = filepath.Dir(s.file)
	case LayoutDaily:
		if s.dir == "" {
			s.dir = DefaultDataDir
		}
	default:
		return nil, fmt.Errorf("%w %q", errInvalidLayout, s.layout)
	}
	return s, nil
}

// PathFor returns the file a batch captured at t is appended to.
func (s *CSVStorage) PathFor(t time.Time) string {
	if s.layout == LayoutDaily {
		return filepath.Join(s.dir, dailyPrefix+t.Format(dailyDateLayout)+csvExt)
	}
	return s.file
}

// AppendRows appends one batch to its log file and returns the file path.
// The header is written only when the file is new or empty. An existing
// file keeps its own column set.
func (s *CSVStorage) AppendRows(capturedAt time.Time, rows []snapshot.Row) (string, error) {
	path := s.PathFor(capturedAt)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	withClassics, needHeader, err := s.existingLayout(path)
	if err != nil {
		return "", err
	}

	// Encode the whole batch before touching the file.
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if needHeader {
		if err := writer.Write(snapshot.Columns(withClassics)); err != nil {
			return "", fmt.Errorf("failed to write header: %w", err)
		}
	}
	for _, row := range rows {
		if err := writer.Write(row.Record(withClassics)); err != nil {
			return "", fmt.Errorf("failed to write station %s: %w", row.StationID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush writer: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		file.Close()
		return "", fmt.Errorf("failed to append rows: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	return path, nil
}

// WriteRows implements RowWriter.
func (s *CSVStorage) WriteRows(ctx context.Context, capturedAt time.Time, rows []snapshot.Row) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.AppendRows(capturedAt, rows)
}

// existingLayout reports the column set to append with and whether a
// header is still needed.
func (s *CSVStorage) existingLayout(path string) (withClassics, needHeader bool, err error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.withClassics, true, nil
		}
		return false, false, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	header, err := csv.NewReader(file).Read()
	if err == io.EOF {
		return s.withClassics, true, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	dec, err := snapshot.NewDecoder(header, s.loc)
	if err != nil {
		return false, false, fmt.Errorf("unrecognized header in %s: %w", path, err)
	}
	return dec.HasClassics(), false, nil
}

// ReadLatestRows returns the most recent batch in the log.
func (s *CSVStorage) ReadLatestRows(ctx context.Context) ([]snapshot.Row, time.Time, error) {
	files, err := s.listCSVFiles()
	if err != nil {
		return nil, time.Time{}, err
	}

	// Files are sorted newest first
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, time.Time{}, err
		}
		rows, err := s.readCSVFile(file)
		if err != nil {
			return nil, time.Time{}, err
		}
		if len(rows) == 0 {
			continue
		}

		latest := rows[0].CapturedAt
		for _, row := range rows {
			if row.CapturedAt.After(latest) {
				latest = row.CapturedAt
			}
		}
		return rowsAt(rows, latest), latest, nil
	}

	return nil, time.Time{}, errNoData
}

// ListAvailableTimestamps returns the capture time of every batch, newest first.
func (s *CSVStorage) ListAvailableTimestamps(ctx context.Context) ([]time.Time, error) {
	points, err := s.GetHistoricalData(ctx)
	if err != nil {
		return nil, err
	}

	timestamps := make([]time.Time, len(points))
	for i, p := range points {
		timestamps[len(points)-1-i] = p.Timestamp
	}
	return timestamps, nil
}

// GetHistoricalData returns aggregate statistics for every batch, oldest first.
func (s *CSVStorage) GetHistoricalData(ctx context.Context) ([]HistoricalDataPoint, error) {
	rows, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate(rows), nil
}

// GetSnapshotByTimestamp returns the batch whose capture time is closest to target.
func (s *CSVStorage) GetSnapshotByTimestamp(ctx context.Context, target time.Time) ([]snapshot.Row, time.Time, error) {
	rows, err := s.readAll(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}

	points := aggregate(rows)
	timestamps := make([]time.Time, len(points))
	for i, p := range points {
		timestamps[i] = p.Timestamp
	}

	i := closest(timestamps, target)
	if i < 0 {
		return nil, time.Time{}, errNoData
	}
	return rowsAt(rows, timestamps[i]), timestamps[i], nil
}

func (s *CSVStorage) readAll(ctx context.Context) ([]snapshot.Row, error) {
	files, err := s.listCSVFiles()
	if err != nil {
		return nil, err
	}

	var all []snapshot.Row
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := s.readCSVFile(file)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

// listCSVFiles returns log files sorted by date (newest first).
func (s *CSVStorage) listCSVFiles() ([]string, error) {
	if s.layout == LayoutSingle {
		if _, err := os.Stat(s.file); err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to stat log file: %w", err)
		}
		return []string{s.file}, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), dailyPrefix) && strings.HasSuffix(entry.Name(), csvExt) {
			files = append(files, filepath.Join(s.dir, entry.Name()))
		}
	}

	// The date in the filename sorts lexically
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	return files, nil
}

// readCSVFile reads every row of a log file.
func (s *CSVStorage) readCSVFile(path string) ([]snapshot.Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return decodeRows(file, s.loc)
}

// decodeRows reads a header line followed by rows.
func decodeRows(r io.Reader, loc *time.Location) ([]snapshot.Row, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	dec, err := snapshot.NewDecoder(header, loc)
	if err != nil {
		return nil, err
	}

	var rows []snapshot.Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading file: %w", err)
		}
		row, err := dec.Decode(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", len(rows)+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func rowsAt(rows []snapshot.Row, t time.Time) []snapshot.Row {
	var batch []snapshot.Row
	for _, row := range rows {
		if row.CapturedAt.Equal(t) {
			batch = append(batch, row)
		}
	}
	return batch
}
