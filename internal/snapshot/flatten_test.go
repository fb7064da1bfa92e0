package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bikeshare-logger/internal/gbfs"
)

func decodeStations(t *testing.T, raw string) []gbfs.StationStatus {
	t.Helper()
	var stations []gbfs.StationStatus
	require.NoError(t, json.Unmarshal([]byte(raw), &stations))
	return stations
}

func TestFlattenExample(t *testing.T) {
	stations := decodeStations(t, `[{"station_id":"A1","num_bikes_available":5,"num_docks_available":3}]`)
	capturedAt := time.Date(2024, 5, 1, 8, 30, 15, 999, time.UTC)

	rows := Flatten(stations, capturedAt, DefaultVehicleTypes())
	require.Len(t, rows, 1)

	assert.Equal(t, Row{
		StationID:  "A1",
		NumBikes:   5,
		NumEBikes:  0,
		NumClassic: 0,
		NumDocks:   3,
		Status:     1,
		CapturedAt: time.Date(2024, 5, 1, 8, 30, 15, 0, time.UTC),
	}, rows[0])

	assert.Equal(t, []string{"A1", "5", "0", "3", "1", "", "2024-05-01 08:30:15"}, rows[0].Record(false))
	assert.Equal(t, []string{"A1", "5", "0", "0", "3", "1", "", "2024-05-01 08:30:15"}, rows[0].Record(true))
}

func TestFlattenPreservesStations(t *testing.T) {
	stations := decodeStations(t, `[
		{"station_id":"S3","num_bikes_available":1,"num_docks_available":1},
		{"station_id":"S1","num_bikes_available":2,"num_docks_available":2},
		{"station_id":"S3","num_bikes_available":1,"num_docks_available":1},
		{"station_id":"S2"}
	]`)
	capturedAt := time.Now()

	rows := Flatten(stations, capturedAt, DefaultVehicleTypes())
	require.Len(t, rows, len(stations))
	for i, row := range rows {
		assert.Equal(t, stations[i].StationID, row.StationID)
		assert.Equal(t, rows[0].CapturedAt, row.CapturedAt)
	}
	assert.Equal(t, 0, rows[3].NumBikes)
	assert.Equal(t, 0, rows[3].NumDocks)
}

func TestFlattenVehicleTypes(t *testing.T) {
	stations := decodeStations(t, `[
		{"station_id":"V1","num_bikes_available":9,"num_docks_available":0,
		 "vehicle_types_available":[{"vehicle_type_id":"1","count":6},{"vehicle_type_id":"2","count":3}]},
		{"station_id":"V2","num_bikes_available":4,"num_docks_available":2},
		{"station_id":"V3","num_bikes_available":4,"num_docks_available":2,"vehicle_types_available":[]}
	]`)

	t.Run("default mapping", func(t *testing.T) {
		rows := Flatten(stations, time.Now(), DefaultVehicleTypes())
		assert.Equal(t, 6, rows[0].NumClassic)
		assert.Equal(t, 3, rows[0].NumEBikes)
		assert.Equal(t, 0, rows[1].NumClassic)
		assert.Equal(t, 0, rows[1].NumEBikes)
		assert.Equal(t, 0, rows[2].NumClassic)
		assert.Equal(t, 0, rows[2].NumEBikes)
	})

	t.Run("custom mapping", func(t *testing.T) {
		rows := Flatten(stations, time.Now(), VehicleTypes{EBike: []string{"1", "2"}})
		assert.Equal(t, 0, rows[0].NumClassic)
		assert.Equal(t, 9, rows[0].NumEBikes)
	})
}

func TestFlattenStatusAndLastReported(t *testing.T) {
	stations := decodeStations(t, `[
		{"station_id":"R1","is_renting":0,"last_reported":1714552215},
		{"station_id":"R2","is_renting":true,"last_reported":null},
		{"station_id":"R3","is_renting":false,"last_reported":"2024-05-01T08:30:15Z"}
	]`)

	rows := Flatten(stations, time.Now(), DefaultVehicleTypes())
	assert.Equal(t, 0, rows[0].Status)
	assert.Equal(t, "1714552215", rows[0].LastReported)
	assert.Equal(t, 1, rows[1].Status)
	assert.Empty(t, rows[1].LastReported)
	assert.Equal(t, 0, rows[2].Status)
	assert.Equal(t, "2024-05-01T08:30:15Z", rows[2].LastReported)
}

func TestFlattenEmpty(t *testing.T) {
	rows := Flatten(nil, time.Now(), DefaultVehicleTypes())
	assert.Empty(t, rows)
}

func TestDecoder(t *testing.T) {
	capturedAt := time.Date(2024, 5, 1, 8, 30, 15, 0, time.UTC)
	row := Row{StationID: "A1", NumBikes: 5, NumEBikes: 2, NumClassic: 3, NumDocks: 3, Status: 1, LastReported: "1714552000", CapturedAt: capturedAt}

	for _, withClassics := range []bool{true, false} {
		dec, err := NewDecoder(Columns(withClassics), time.UTC)
		require.NoError(t, err)
		assert.Equal(t, withClassics, dec.HasClassics())

		got, err := dec.Decode(row.Record(withClassics))
		require.NoError(t, err)

		want := row
		if !withClassics {
			want.NumClassic = 0
		}
		assert.Equal(t, want, got)
	}

	_, err := NewDecoder([]string{"station_id", "num_bikes"}, time.UTC)
	assert.Error(t, err)

	dec, err := NewDecoder(Columns(false), time.UTC)
	require.NoError(t, err)
	_, err = dec.Decode([]string{"A1", "x", "0", "3", "1", "", "2024-05-01 08:30:15"})
	assert.Error(t, err)
	_, err = dec.Decode([]string{"A1", "5"})
	assert.ErrorIs(t, err, errShortRecord)
}
