// Package nominatim geocodes addresses with an OpenStreetMap Nominatim server.
//
// The public server allows one request per second and requires an identifying
// User-Agent; the client paces itself accordingly.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
)

// DefaultURL is the public Nominatim instance.
const DefaultURL = "https://nominatim.openstreetmap.org"

// ServiceName labels this provider in usage counters.
const ServiceName = "nominatim"

// UsageRecorder counts outbound calls.
type UsageRecorder interface {
	Record(ctx context.Context, service string, costMicros int64)
}

// Client resolves addresses via /search.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	pace      *rate.Limiter
	usage     UsageRecorder
}

// NewClient returns a client paced at rps requests per second (<= 0 means 1).
func NewClient(baseURL, userAgent string, rps float64, usage UsageRecorder) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      &http.Client{Timeout: 10 * time.Second},
		pace:      rate.NewLimiter(rate.Limit(rps), 1),
		usage:     usage,
	}
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the best match for address, or nil when there is none.
func (c *Client) Geocode(ctx context.Context, address string) (*domain.GeocodeResult, error) {
	ctx, span := otel.Tracer("providers/nominatim").Start(ctx, "Geocode")
	defer span.End()

	if err := c.pace.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("nominatim: create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("nominatim: request failed: %w", err)
	}
	defer resp.Body.Close()
	if c.usage != nil {
		c.usage.Record(ctx, ServiceName, 0)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim: status %d", resp.StatusCode)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("nominatim: decode: %w", err)
	}
	if len(places) == 0 {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim: bad lat %q: %w", places[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim: bad lon %q: %w", places[0].Lon, err)
	}
	return &domain.GeocodeResult{Latitude: lat, Longitude: lng, DisplayName: places[0].DisplayName}, nil
}
