// Package snapshot flattens GBFS station_status records into log rows.
package snapshot

import (
	"strconv"
	"time"

	"bikeshare-logger/internal/gbfs"
)

// TimestampLayout is the capture time format, second precision.
const TimestampLayout = "2006-01-02 15:04:05"

// Default vehicle type identifiers. Nothing in GBFS guarantees them, which
// is why VehicleTypes is configurable.
const (
	DefaultClassicTypeID = "1"
	DefaultEBikeTypeID   = "2"
)

// VehicleTypes maps vehicle_type_id values to bike classes. Counts of all
// ids listed for a class are summed.
type VehicleTypes struct {
	Classic []string
	EBike   []string
}

// DefaultVehicleTypes returns the "1" classic, "2" electric mapping.
func DefaultVehicleTypes() VehicleTypes {
	return VehicleTypes{
		Classic: []string{DefaultClassicTypeID},
		EBike:   []string{DefaultEBikeTypeID},
	}
}

// Row is one flattened station record.
type Row struct {
	StationID  string
	NumBikes   int
	NumEBikes  int
	NumClassic int
	NumDocks   int
	Status     int
	// LastReported is empty when the feed omitted it.
	LastReported string
	CapturedAt   time.Time
}

// Timestamp returns the capture time as written to the log.
func (r Row) Timestamp() string {
	return r.CapturedAt.Format(TimestampLayout)
}

// Flatten converts stations into rows sharing one capture time. The result
// always has one row per station, in input order.
func Flatten(stations []gbfs.StationStatus, capturedAt time.Time, types VehicleTypes) []Row {
	capturedAt = capturedAt.Truncate(time.Second)

	rows := make([]Row, len(stations))
	for i, s := range stations {
		classic, ebike := types.count(s.VehicleTypesAvailable)

		status := 1
		if s.IsRenting != nil {
			status = s.IsRenting.Int()
		}

		var lastReported string
		if s.LastReported != nil {
			lastReported = string(*s.LastReported)
		}

		rows[i] = Row{
			StationID:    s.StationID,
			NumBikes:     s.BikesAvailable(),
			NumEBikes:    ebike,
			NumClassic:   classic,
			NumDocks:     s.DocksAvailable(),
			Status:       status,
			LastReported: lastReported,
			CapturedAt:   capturedAt,
		}
	}
	return rows
}

func (t VehicleTypes) count(available []gbfs.VehicleTypeAvailable) (classic, ebike int) {
	for _, v := range available {
		if contains(t.Classic, v.VehicleTypeID) {
			classic += v.Count
		} else if contains(t.EBike, v.VehicleTypeID) {
			ebike += v.Count
		}
	}
	return classic, ebike
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// Columns is the header of a flattened log. WithClassics adds num_classics
// after num_ebikes.
func Columns(withClassics bool) []string {
	if withClassics {
		return []string{"station_id", "num_bikes", "num_ebikes", "num_classics", "num_docks", "status", "last_reported", "timestamp"}
	}
	return []string{"station_id", "num_bikes", "num_ebikes", "num_docks", "status", "last_reported", "timestamp"}
}

// Record returns the row's fields in Columns order.
func (r Row) Record(withClassics bool) []string {
	record := make([]string, 0, 8)
	record = append(record,
		r.StationID,
		strconv.Itoa(r.NumBikes),
		strconv.Itoa(r.NumEBikes),
	)
	if withClassics {
		record = append(record, strconv.Itoa(r.NumClassic))
	}
	return append(record,
		strconv.Itoa(r.NumDocks),
		strconv.Itoa(r.Status),
		r.LastReported,
		r.Timestamp(),
	)
}
