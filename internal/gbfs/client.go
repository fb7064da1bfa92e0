package gbfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

const (
	// DefaultDiscoveryURL is the Citi Bike GBFS 2.3 feed index.
	DefaultDiscoveryURL = "https://gbfs.citibikenyc.com/gbfs/2.3/gbfs.json"
	// DefaultLanguage is the discovery document language searched first.
	DefaultLanguage = "en"
	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 30 * time.Second

	// StationStatusFeed is the feed name carrying per-station availability.
	StationStatusFeed = "station_status"
)

var (
	// ErrFeedNotFound means the discovery document has no station_status entry.
	ErrFeedNotFound = errors.New("station_status feed not found in discovery document")
	// ErrUnexpectedStatus is returned for any non-200 response.
	ErrUnexpectedStatus = errors.New("unexpected status code")
)

// Client fetches GBFS feeds over HTTP.
type Client struct {
	discoveryURL string
	language     string
	httpClient   *http.Client
}

// NewClient creates a new GBFS client with default settings.
func NewClient() *Client {
	return NewClientWithEndpoint(DefaultDiscoveryURL, DefaultLanguage, DefaultTimeout)
}

// NewClientWithEndpoint creates a new GBFS client with a custom discovery
// endpoint, preferred language and request timeout. A zero timeout means
// DefaultTimeout.
func NewClientWithEndpoint(discoveryURL, language string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &Client{
		discoveryURL: discoveryURL,
		language:     language,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ResolveStationStatusURL fetches the discovery document and returns the
// URL of its station_status feed.
func (c *Client) ResolveStationStatusURL(ctx context.Context) (string, error) {
	var doc Discovery
	if err := c.getJSON(ctx, c.discoveryURL, &doc); err != nil {
		return "", fmt.Errorf("failed to fetch discovery document: %w", err)
	}

	url, ok := FindFeed(doc, StationStatusFeed, c.language)
	if !ok {
		return "", ErrFeedNotFound
	}
	return url, nil
}

// FetchStationStatus retrieves the station list from a station_status feed URL.
func (c *Client) FetchStationStatus(ctx context.Context, url string) ([]StationStatus, error) {
	var resp StationStatusResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch station status: %w", err)
	}
	return resp.Data.Stations, nil
}

// FindFeed returns the URL of the named feed. The preferred language is
// searched first, then the remaining languages in sorted order, then the
// GBFS 3.x language-less feed list.
func FindFeed(doc Discovery, name, language string) (string, bool) {
	if feeds, ok := doc.Data.Languages[language]; ok {
		if url, ok := feedURL(feeds, name); ok {
			return url, true
		}
	}

	langs := make([]string, 0, len(doc.Data.Languages))
	for lang := range doc.Data.Languages {
		if lang != language {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	for _, lang := range langs {
		if url, ok := feedURL(doc.Data.Languages[lang], name); ok {
			return url, true
		}
	}

	return feedURL(doc.Data.Feeds, name)
}

func feedURL(feeds []Feed, name string) (string, bool) {
	for _, feed := range feeds {
		if feed.Name == name && feed.URL != "" {
			return feed.URL, true
		}
	}
	return "", false
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "bikeshare-logger/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}
