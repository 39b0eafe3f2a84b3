// Package geocoding resolves coordinates to a display address through a reverse-geocoding API.
package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/metrics"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/models"
)

const (
	// DefaultURL is the public BigDataCloud client endpoint.
	DefaultURL = "https://api.bigdatacloud.net/data/reverse-geocode-client"
	// DefaultLanguage requests Vietnamese place names.
	DefaultLanguage = "vi"

	maxResponseBytes = 1 << 20
)

var errNoAddress = errors.New("response has no display_name")

// Config holds the reverse-geocoding endpoint settings.
type Config struct {
	URL      string
	Language string
	Timeout  time.Duration
}

// Client looks up display addresses. Lookup never fails; it degrades to formatted coordinates.
type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
	cache      AddressCache
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewClient creates a geocoding client. cache and m may be nil.
func NewClient(cfg Config, cache AddressCache, m *metrics.Metrics, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	return &Client{
		baseURL:    cfg.URL,
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		metrics:    m,
		logger:     logger,
	}
}

// Lookup returns the display address for the coordinates, or "<lat>, <lng>" when it cannot be resolved.
func (c *Client) Lookup(ctx context.Context, lat, lng float64) string {
	if addr, ok := c.Resolve(ctx, lat, lng); ok {
		return addr
	}
	return models.FormatCoordinates(lat, lng)
}

// Resolve returns the display address and true, or "" and false when the provider could not name
// the place. Failures are logged and counted, never returned.
func (c *Client) Resolve(ctx context.Context, lat, lng float64) (string, bool) {
	key := models.FormatCoordinates(lat, lng)

	if c.cache != nil {
		addr, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("address cache read failed", zap.Error(err))
		} else if ok {
			c.metrics.ObserveGeocode("cached")
			return addr, true
		}
	}

	addr, err := c.reverse(ctx, lat, lng)
	if err != nil {
		c.logger.Warn("reverse geocoding failed", zap.String("coordinates", key), zap.Error(err))
		c.metrics.ObserveGeocode("fallback")
		return "", false
	}
	c.metrics.ObserveGeocode("resolved")

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, addr); err != nil {
			c.logger.Warn("address cache write failed", zap.Error(err))
		}
	}
	return addr, true
}

func (c *Client) reverse(ctx context.Context, lat, lng float64) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("localityLanguage", c.language)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("geocoding status: %d", resp.StatusCode)
	}

	var body struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(body.DisplayName) == "" {
		return "", errNoAddress
	}
	return body.DisplayName, nil
}
