package gbfs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Discovery represents the gbfs.json feed index.
//
// GBFS 1.x and 2.x nest feeds under a language key (data.en.feeds),
// GBFS 3.x lists them directly (data.feeds). Both shapes decode into
// this type.
type Discovery struct {
	LastUpdated json.RawMessage `json:"last_updated"`
	TTL         int             `json:"ttl"`
	Version     string          `json:"version"`
	Data        DiscoveryData   `json:"data"`
}

// DiscoveryData holds the feed lists of a discovery document.
type DiscoveryData struct {
	// Feeds is set for GBFS 3.x documents.
	Feeds []Feed
	// Languages maps a language code to its feed list (GBFS 1.x/2.x).
	Languages map[string][]Feed
}

// UnmarshalJSON decodes either data.feeds or data.<lang>.feeds.
func (d *DiscoveryData) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	d.Feeds = nil
	d.Languages = make(map[string][]Feed)

	for key, value := range raw {
		if key == "feeds" {
			if err := json.Unmarshal(value, &d.Feeds); err != nil {
				return fmt.Errorf("invalid feeds list: %w", err)
			}
			continue
		}

		var lang struct {
			Feeds []Feed `json:"feeds"`
		}
		if err := json.Unmarshal(value, &lang); err != nil {
			return fmt.Errorf("invalid feeds for language %q: %w", key, err)
		}
		d.Languages[key] = lang.Feeds
	}

	return nil
}

// Feed is a single named entry in the discovery document.
type Feed struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// StationStatusResponse is the station_status feed envelope.
type StationStatusResponse struct {
	LastUpdated json.RawMessage `json:"last_updated"`
	TTL         int             `json:"ttl"`
	Version     string          `json:"version"`
	Data        struct {
		Stations []StationStatus `json:"stations"`
	} `json:"data"`
}

// StationStatus is the availability of one station at one point in time.
// Pointer fields are optional in the feed.
type StationStatus struct {
	StationID             string                 `json:"station_id"`
	NumBikesAvailable     *int                   `json:"num_bikes_available"`
	NumVehiclesAvailable  *int                   `json:"num_vehicles_available"`
	NumBikesDisabled      *int                   `json:"num_bikes_disabled"`
	NumDocksAvailable     *int                   `json:"num_docks_available"`
	NumDocksDisabled      *int                   `json:"num_docks_disabled"`
	VehicleTypesAvailable []VehicleTypeAvailable `json:"vehicle_types_available"`
	IsInstalled           *Flag                  `json:"is_installed"`
	IsRenting             *Flag                  `json:"is_renting"`
	IsReturning           *Flag                  `json:"is_returning"`
	LastReported          *Timestamp             `json:"last_reported"`
}

// BikesAvailable returns num_bikes_available, falling back to the
// GBFS 3.x num_vehicles_available, or zero when neither is present.
func (s StationStatus) BikesAvailable() int {
	if s.NumBikesAvailable != nil {
		return *s.NumBikesAvailable
	}
	if s.NumVehiclesAvailable != nil {
		return *s.NumVehiclesAvailable
	}
	return 0
}

// DocksAvailable returns num_docks_available or zero.
func (s StationStatus) DocksAvailable() int {
	if s.NumDocksAvailable != nil {
		return *s.NumDocksAvailable
	}
	return 0
}

// VehicleTypeAvailable is one entry of vehicle_types_available.
type VehicleTypeAvailable struct {
	VehicleTypeID string `json:"vehicle_type_id"`
	Count         int    `json:"count"`
}

// Flag is a GBFS boolean. Older feeds publish 0/1, newer ones true/false.
type Flag bool

// UnmarshalJSON accepts true/false, 0/1 and their quoted forms.
func (f *Flag) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	switch s {
	case "true":
		*f = true
	case "false", "null", "":
		*f = false
	default:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid flag value %s", b)
		}
		*f = n != 0
	}
	return nil
}

// Int returns 1 for true and 0 for false.
func (f Flag) Int() int {
	if f {
		return 1
	}
	return 0
}

// Timestamp keeps last_reported as published: POSIX seconds in GBFS 2.x,
// an RFC 3339 string in GBFS 3.x.
type Timestamp string

// UnmarshalJSON stores numbers as their decimal text and strings unquoted.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Timestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid timestamp %s", b)
	}
	*t = Timestamp(n.String())
	return nil
}
