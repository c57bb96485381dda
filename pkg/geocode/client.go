// Package geocode resolves canvas coordinates to human-readable place names
// through an external reverse-geocoding service, and repairs rows the
// primary ingestion path left unresolved.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
)

const (
	defaultBaseURL     = "https://api.bigdatacloud.net"
	defaultMinInterval = 1 * time.Second
	defaultCacheTTL    = 6 * time.Hour
)

// OpenOcean is returned for coordinates the service resolves to no locality
// at all. It is a successful lookup result, distinct from the
// permanent-failure sentinel.
const OpenOcean = "Open Ocean"

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type ClientConfig struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	HTTPClient HTTPClient
	BaseURL    string

	// MinInterval is the minimum spacing between external calls, shared
	// across every caller of this client.
	MinInterval time.Duration
	CacheTTL    time.Duration
}

func (cfg *ClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return nil
}

// Client is a rate-limited reverse-geocoding client. Results are cached by
// rounded coordinates so a burst of placements in the same area costs one
// external call.
type Client struct {
	log   *slog.Logger
	cfg   ClientConfig
	clock clockwork.Clock
	cache *ttlcache.Cache[string, string]

	mu       sync.Mutex
	nextCall time.Time
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, string](cfg.CacheTTL),
	)
	return &Client{
		log:   cfg.Logger,
		cfg:   cfg,
		clock: cfg.Clock,
		cache: cache,
	}, nil
}

type reverseGeocodeResponse struct {
	City                 string `json:"city"`
	Locality             string `json:"locality"`
	PrincipalSubdivision string `json:"principalSubdivision"`
	CountryName          string `json:"countryName"`
}

// LookupPlaceName resolves coordinates to a place name, waiting for the
// shared rate-limit slot first. Never returns an empty name on success.
func (c *Client) LookupPlaceName(ctx context.Context, lat, lon float64) (string, error) {
	cacheKey := fmt.Sprintf("%.2f,%.2f", lat, lon)
	if item := c.cache.Get(cacheKey); item != nil {
		return item.Value(), nil
	}

	if err := c.waitForSlot(ctx); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.6f", lat))
	q.Set("longitude", fmt.Sprintf("%.6f", lon))
	q.Set("localityLanguage", "en")
	reqURL := fmt.Sprintf("%s/data/reverse-geocode-client?%s", c.cfg.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call reverse-geocode service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("reverse-geocode service returned status %d: %s", resp.StatusCode, string(body))
	}

	var decoded reverseGeocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode reverse-geocode response: %w", err)
	}

	name := composePlaceName(decoded)
	c.cache.Set(cacheKey, name, ttlcache.DefaultTTL)
	return name, nil
}

// waitForSlot reserves the next call slot and sleeps until it is due. The
// lock covers only the reservation, never the wait.
func (c *Client) waitForSlot(ctx context.Context) error {
	c.mu.Lock()
	now := c.clock.Now()
	wait := time.Duration(0)
	if c.nextCall.After(now) {
		wait = c.nextCall.Sub(now)
		c.nextCall = c.nextCall.Add(c.cfg.MinInterval)
	} else {
		c.nextCall = now.Add(c.cfg.MinInterval)
	}
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-c.clock.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func composePlaceName(r reverseGeocodeResponse) string {
	local := r.Locality
	if local == "" {
		local = r.City
	}
	if local == "" {
		local = r.PrincipalSubdivision
	}
	switch {
	case local != "" && r.CountryName != "":
		return local + ", " + r.CountryName
	case local != "":
		return local
	case r.CountryName != "":
		return r.CountryName
	default:
		return OpenOcean
	}
}
