package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bikeshare-logger/internal/gbfs"
	"bikeshare-logger/internal/snapshot"
	"bikeshare-logger/internal/storage"
)

const stationStatusJSON = `{"data":{"stations":[
	{"station_id":"A1","num_bikes_available":5,"num_docks_available":3},
	{"station_id":"B2","num_bikes_available":4,"num_docks_available":6,"is_renting":0,"last_reported":1714552215,
	 "vehicle_types_available":[{"vehicle_type_id":"1","count":1},{"vehicle_type_id":"2","count":3}]}
]}}`

func newGBFSServer(t *testing.T, status string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/gbfs.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"en":{"feeds":[{"name":"station_status","url":"` + server.URL + `/station_status.json"}]}}}`))
	})
	mux.HandleFunc("/station_status.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(status))
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func countLines(t *testing.T, path, prefix string) (total, matching int) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		total++
		if strings.HasPrefix(line, prefix) {
			matching++
		}
	}
	return total, matching
}

func TestRunSingleFile(t *testing.T) {
	server := newGBFSServer(t, stationStatusJSON)
	client := gbfs.NewClientWithEndpoint(server.URL+"/gbfs.json", "en", time.Second)

	file := filepath.Join(t.TempDir(), "data", "citibike_history.csv")
	store, err := storage.NewCSVStorage(storage.CSVOptions{Layout: storage.LayoutSingle, File: file})
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 8, 30, 15, 500, time.Local)
	c := New(client, store, snapshot.DefaultVehicleTypes(), WithClock(fixedClock(now)))

	for i := 0; i < 2; i++ {
		result, err := c.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, file, result.Location)
		assert.Equal(t, 2, result.Rows)
		assert.True(t, result.CapturedAt.Equal(now.Truncate(time.Second)))
	}

	total, headers := countLines(t, file, "station_id,")
	assert.Equal(t, 5, total)
	assert.Equal(t, 1, headers)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "A1,5,0,3,1,,2024-05-01 08:30:15\n")
	assert.Contains(t, string(data), "B2,4,3,6,0,1714552215,2024-05-01 08:30:15\n")
}

func TestRunDailyPartitions(t *testing.T) {
	server := newGBFSServer(t, stationStatusJSON)
	client := gbfs.NewClientWithEndpoint(server.URL+"/gbfs.json", "en", time.Second)

	dir := t.TempDir()
	store, err := storage.NewCSVStorage(storage.CSVOptions{Layout: storage.LayoutDaily, Dir: dir, WithClassics: true})
	require.NoError(t, err)

	day1 := time.Date(2024, 5, 1, 23, 59, 0, 0, time.Local)
	day2 := time.Date(2024, 5, 2, 0, 1, 0, 0, time.Local)

	r1, err := New(client, store, snapshot.DefaultVehicleTypes(), WithClock(fixedClock(day1))).Run(context.Background())
	require.NoError(t, err)
	r2, err := New(client, store, snapshot.DefaultVehicleTypes(), WithClock(fixedClock(day2))).Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, r1.Location, r2.Location)
	assert.Equal(t, filepath.Join(dir, "station_status_2024-05-01.csv"), r1.Location)
	assert.Equal(t, filepath.Join(dir, "station_status_2024-05-02.csv"), r2.Location)

	data, err := os.ReadFile(r2.Location)
	require.NoError(t, err)
	assert.Contains(t, string(data), "B2,4,3,1,6,0,1714552215,2024-05-02 00:01:00\n")
}

type fakeSource struct {
	url         string
	resolveErr  error
	stations    []gbfs.StationStatus
	fetchErr    error
	fetchedFrom string
}

func (f *fakeSource) ResolveStationStatusURL(ctx context.Context) (string, error) {
	return f.url, f.resolveErr
}

func (f *fakeSource) FetchStationStatus(ctx context.Context, url string) ([]gbfs.StationStatus, error) {
	f.fetchedFrom = url
	return f.stations, f.fetchErr
}

type fakeWriter struct {
	calls int
	err   error
}

func (f *fakeWriter) WriteRows(ctx context.Context, capturedAt time.Time, rows []snapshot.Row) (string, error) {
	f.calls++
	return "memory", f.err
}

func TestRunFailureKinds(t *testing.T) {
	t.Run("discovery", func(t *testing.T) {
		writer := &fakeWriter{}
		source := &fakeSource{resolveErr: gbfs.ErrFeedNotFound}
		_, err := New(source, writer, snapshot.DefaultVehicleTypes()).Run(context.Background())
		assert.ErrorIs(t, err, ErrDiscovery)
		assert.ErrorIs(t, err, gbfs.ErrFeedNotFound)
		assert.Empty(t, source.fetchedFrom)
		assert.Zero(t, writer.calls)
	})

	t.Run("fetch", func(t *testing.T) {
		writer := &fakeWriter{}
		source := &fakeSource{url: "https://example.com/status.json", fetchErr: errors.New("boom")}
		_, err := New(source, writer, snapshot.DefaultVehicleTypes()).Run(context.Background())
		assert.ErrorIs(t, err, ErrFetch)
		assert.False(t, errors.Is(err, ErrDiscovery))
		assert.Equal(t, "https://example.com/status.json", source.fetchedFrom)
		assert.Zero(t, writer.calls)
	})

	t.Run("persist", func(t *testing.T) {
		writer := &fakeWriter{err: os.ErrPermission}
		source := &fakeSource{url: "u", stations: []gbfs.StationStatus{{StationID: "A1"}}}
		result, err := New(source, writer, snapshot.DefaultVehicleTypes()).Run(context.Background())
		assert.ErrorIs(t, err, ErrPersist)
		assert.ErrorIs(t, err, os.ErrPermission)
		assert.Nil(t, result)
	})

	t.Run("parse failure is a fetch failure", func(t *testing.T) {
		server := newGBFSServer(t, `{"data":{"stations":[`)
		client := gbfs.NewClientWithEndpoint(server.URL+"/gbfs.json", "en", time.Second)
		_, err := New(client, &fakeWriter{}, snapshot.DefaultVehicleTypes()).Run(context.Background())
		assert.ErrorIs(t, err, ErrFetch)
	})
}

type fakeArchiver struct {
	name     string
	contents []byte
	err      error
}

func (f *fakeArchiver) Archive(ctx context.Context, name string, contents []byte) error {
	f.name = name
	f.contents = contents
	return f.err
}

func TestRunArchives(t *testing.T) {
	source := &fakeSource{url: "u", stations: []gbfs.StationStatus{{StationID: "A1"}}}
	dir := t.TempDir()
	store, err := storage.NewCSVStorage(storage.CSVOptions{Layout: storage.LayoutDaily, Dir: dir})
	require.NoError(t, err)

	archiver := &fakeArchiver{}
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)
	result, err := New(source, store, snapshot.DefaultVehicleTypes(), WithClock(fixedClock(now)), WithArchiver(archiver)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.Location, archiver.name)
	assert.Contains(t, string(archiver.contents), "A1,0,0,0,1,,2024-05-01 08:00:00")

	archiver.err = errors.New("bucket gone")
	result, err = New(source, store, snapshot.DefaultVehicleTypes(), WithClock(fixedClock(now)), WithArchiver(archiver)).Run(context.Background())
	assert.ErrorIs(t, err, ErrArchive)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Rows)
}
