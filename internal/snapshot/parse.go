package snapshot

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	errMissingColumn = errors.New("missing column")
	errShortRecord   = errors.New("record shorter than header")
)

// Decoder turns log records back into rows using the column positions of
// a header line, so files with and without num_classics both read.
type Decoder struct {
	index map[string]int
	loc   *time.Location
}

// NewDecoder validates header and returns a decoder for its records.
// Timestamps are interpreted in loc (time.Local when nil).
func NewDecoder(header []string, loc *time.Location) (*Decoder, error) {
	if loc == nil {
		loc = time.Local
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, required := range Columns(false) {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%w: %s", errMissingColumn, required)
		}
	}
	return &Decoder{index: index, loc: loc}, nil
}

// Decode parses one record.
func (d *Decoder) Decode(record []string) (Row, error) {
	if len(record) < len(d.index) {
		return Row{}, errShortRecord
	}

	var (
		row Row
		err error
	)
	row.StationID = record[d.index["station_id"]]
	row.LastReported = record[d.index["last_reported"]]

	ints := []struct {
		column string
		dst    *int
	}{
		{"num_bikes", &row.NumBikes},
		{"num_ebikes", &row.NumEBikes},
		{"num_classics", &row.NumClassic},
		{"num_docks", &row.NumDocks},
		{"status", &row.Status},
	}
	for _, field := range ints {
		i, ok := d.index[field.column]
		if !ok {
			continue
		}
		if *field.dst, err = strconv.Atoi(record[i]); err != nil {
			return Row{}, fmt.Errorf("invalid %s %q: %w", field.column, record[i], err)
		}
	}

	ts := record[d.index["timestamp"]]
	if row.CapturedAt, err = time.ParseInLocation(TimestampLayout, ts, d.loc); err != nil {
		return Row{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	return row, nil
}

// HasClassics reports whether the header carries num_classics.
func (d *Decoder) HasClassics() bool {
	_, ok := d.index["num_classics"]
	return ok
}
