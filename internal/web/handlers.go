package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"bikeshare-logger/internal/collector"
	"bikeshare-logger/internal/snapshot"
	"bikeshare-logger/internal/storage"
)

const (
	// historyCacheTTL is how long to cache the aggregate historical data.
	historyCacheTTL = 10 * time.Minute

	timestampFormat = time.RFC3339
)

// StationResponse is the JSON response format for a single station row.
type StationResponse struct {
	StationID    string `json:"stationId"`
	NumBikes     int    `json:"numBikes"`
	NumEBikes    int    `json:"numEBikes"`
	NumClassics  int    `json:"numClassics"`
	NumDocks     int    `json:"numDocks"`
	Status       int    `json:"status"`
	LastReported string `json:"lastReported,omitempty"`
}

// StationsResponse is the JSON response for the stations API.
type StationsResponse struct {
	Timestamp string            `json:"timestamp"`
	Live      bool              `json:"live,omitempty"`
	Stations  []StationResponse `json:"stations"`
}

// HistoryDataPointResponse represents historical aggregate data at a point in time.
type HistoryDataPointResponse struct {
	Timestamp    string `json:"timestamp"`
	TotalBikes   int    `json:"totalBikes"`
	TotalEBikes  int    `json:"totalEBikes"`
	TotalClassic int    `json:"totalClassics"`
	TotalDocks   int    `json:"totalDocks"`
	StationCount int    `json:"stationCount"`
}

// HistoryResponse is the JSON response for the history API.
type HistoryResponse struct {
	DataPoints []HistoryDataPointResponse `json:"dataPoints"`
}

// TimestampsResponse lists the capture times available in storage.
type TimestampsResponse struct {
	Timestamps []string `json:"timestamps"`
}

// Handler provides HTTP handlers for the JSON API.
type Handler struct {
	store  storage.DataStore
	source collector.Source
	types  snapshot.VehicleTypes
	now    func() time.Time

	// Cache for historical data
	historyCache     []storage.HistoricalDataPoint
	historyCacheTime time.Time
	historyCacheMu   sync.RWMutex

	// Cache for snapshots by timestamp (immutable, no TTL needed)
	snapshotCache   map[string]cachedSnapshot
	snapshotCacheMu sync.RWMutex
}

type cachedSnapshot struct {
	timestamp time.Time
	rows      []snapshot.Row
}

// NewHandler creates a new web handler. source may be nil, in which case
// /api/stations does not fall back to the live feed.
func NewHandler(store storage.DataStore, source collector.Source, types snapshot.VehicleTypes) *Handler {
	return &Handler{
		store:         store,
		source:        source,
		types:         types,
		now:           time.Now,
		snapshotCache: make(map[string]cachedSnapshot),
	}
}

// RegisterRoutes registers all HTTP routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/stations", h.handleStations)
	mux.HandleFunc("/api/timestamps", h.handleTimestamps)
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/history/snapshot", h.handleHistorySnapshot)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// handleStations serves the latest logged batch.
func (h *Handler) handleStations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Try to read from storage first
	rows, timestamp, err := h.store.ReadLatestRows(ctx)
	live := false
	if err != nil {
		if h.source == nil {
			log.Printf("No stored data: %v", err)
			http.Error(w, "No station data available", http.StatusNotFound)
			return
		}

		// Fall back to live feed if no stored data
		log.Printf("No stored data, fetching live: %v", err)
		url, err := h.source.ResolveStationStatusURL(ctx)
		if err != nil {
			log.Printf("Live discovery failed: %v", err)
			http.Error(w, "Failed to fetch station data", http.StatusBadGateway)
			return
		}
		stations, err := h.source.FetchStationStatus(ctx, url)
		if err != nil {
			log.Printf("Live fetch failed: %v", err)
			http.Error(w, "Failed to fetch station data", http.StatusBadGateway)
			return
		}
		timestamp = h.now().Truncate(time.Second)
		rows = snapshot.Flatten(stations, timestamp, h.types)
		live = true
	}

	response := newStationsResponse(timestamp, rows)
	response.Live = live
	writeJSON(w, response, "")
}

// handleTimestamps lists the capture times available in storage.
func (h *Handler) handleTimestamps(w http.ResponseWriter, r *http.Request) {
	timestamps, err := h.store.ListAvailableTimestamps(r.Context())
	if err != nil {
		log.Printf("Failed to list timestamps: %v", err)
		http.Error(w, "Failed to list timestamps", http.StatusInternalServerError)
		return
	}

	response := TimestampsResponse{Timestamps: make([]string, len(timestamps))}
	for i, ts := range timestamps {
		response.Timestamps[i] = ts.Format(timestampFormat)
	}
	writeJSON(w, response, "")
}

// handleHistory serves historical usage data.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	historicalStore, ok := h.store.(storage.HistoricalDataStore)
	if !ok {
		http.Error(w, "Historical data not available with current storage backend", http.StatusNotImplemented)
		return
	}

	// Check cache first
	h.historyCacheMu.RLock()
	if h.historyCache != nil && time.Since(h.historyCacheTime) < historyCacheTTL {
		dataPoints := h.historyCache
		h.historyCacheMu.RUnlock()
		log.Printf("History cache hit (%d data points)", len(dataPoints))
		h.writeHistoryResponse(w, dataPoints)
		return
	}
	h.historyCacheMu.RUnlock()

	// Cache miss - fetch from storage
	dataPoints, err := historicalStore.GetHistoricalData(r.Context())
	if err != nil {
		log.Printf("Failed to get historical data: %v", err)
		http.Error(w, "Failed to fetch historical data", http.StatusInternalServerError)
		return
	}

	h.historyCacheMu.Lock()
	h.historyCache = dataPoints
	h.historyCacheTime = time.Now()
	h.historyCacheMu.Unlock()
	log.Printf("History cache updated (%d data points)", len(dataPoints))

	h.writeHistoryResponse(w, dataPoints)
}

// writeHistoryResponse writes the history response JSON.
func (h *Handler) writeHistoryResponse(w http.ResponseWriter, dataPoints []storage.HistoricalDataPoint) {
	response := HistoryResponse{
		DataPoints: make([]HistoryDataPointResponse, len(dataPoints)),
	}

	for i, dp := range dataPoints {
		response.DataPoints[i] = HistoryDataPointResponse{
			Timestamp:    dp.Timestamp.Format(timestampFormat),
			TotalBikes:   dp.TotalBikes,
			TotalEBikes:  dp.TotalEBikes,
			TotalClassic: dp.TotalClassic,
			TotalDocks:   dp.TotalDocks,
			StationCount: dp.StationCount,
		}
	}

	writeJSON(w, response, "public, max-age=300")
}

// handleHistorySnapshot serves the logged batch closest to a timestamp.
func (h *Handler) handleHistorySnapshot(w http.ResponseWriter, r *http.Request) {
	timestampStr := r.URL.Query().Get("timestamp")
	if timestampStr == "" {
		http.Error(w, "Missing timestamp parameter", http.StatusBadRequest)
		return
	}

	targetTime, err := time.Parse(time.RFC3339, timestampStr)
	if err != nil {
		http.Error(w, "Invalid timestamp format", http.StatusBadRequest)
		return
	}

	// Use normalized timestamp string as cache key
	cacheKey := targetTime.UTC().Format(time.RFC3339)

	h.snapshotCacheMu.RLock()
	if cached, ok := h.snapshotCache[cacheKey]; ok {
		h.snapshotCacheMu.RUnlock()
		log.Printf("Snapshot cache hit for %s (%d stations)", cacheKey, len(cached.rows))
		writeJSON(w, newStationsResponse(cached.timestamp, cached.rows), "public, max-age=604800, immutable")
		return
	}
	h.snapshotCacheMu.RUnlock()

	historicalStore, ok := h.store.(storage.HistoricalDataStore)
	if !ok {
		http.Error(w, "Historical snapshot data not available with current storage backend", http.StatusNotImplemented)
		return
	}

	rows, timestamp, err := historicalStore.GetSnapshotByTimestamp(r.Context(), targetTime)
	if err != nil {
		log.Printf("Failed to get snapshot for timestamp %s: %v", timestampStr, err)
		http.Error(w, "Failed to fetch snapshot data", http.StatusInternalServerError)
		return
	}

	// Only an exact match is immutable: a later poll may land closer.
	cacheControl := ""
	if timestamp.Equal(targetTime) {
		h.snapshotCacheMu.Lock()
		h.snapshotCache[cacheKey] = cachedSnapshot{timestamp: timestamp, rows: rows}
		h.snapshotCacheMu.Unlock()
		log.Printf("Snapshot cache updated for %s (%d stations)", cacheKey, len(rows))
		cacheControl = "public, max-age=604800, immutable"
	}

	writeJSON(w, newStationsResponse(timestamp, rows), cacheControl)
}

func newStationsResponse(timestamp time.Time, rows []snapshot.Row) StationsResponse {
	response := StationsResponse{
		Timestamp: timestamp.Format(timestampFormat),
		Stations:  make([]StationResponse, len(rows)),
	}

	for i, row := range rows {
		response.Stations[i] = StationResponse{
			StationID:    row.StationID,
			NumBikes:     row.NumBikes,
			NumEBikes:    row.NumEBikes,
			NumClassics:  row.NumClassic,
			NumDocks:     row.NumDocks,
			Status:       row.Status,
			LastReported: row.LastReported,
		}
	}
	return response
}

func writeJSON(w http.ResponseWriter, v any, cacheControl string) {
	w.Header().Set("Content-Type", "application/json")
	if cacheControl != "" {
		w.Header().Set("Cache-Control", cacheControl)
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("JSON encoding error: %v", err)
	}
}
