package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calmlysettled/relocation-gateway/internal/cache"
	"github.com/calmlysettled/relocation-gateway/internal/domain"
	"github.com/calmlysettled/relocation-gateway/internal/geo"
	"github.com/calmlysettled/relocation-gateway/internal/ratelimit"
)

// ErrRateLimited is returned when the per-user limiter denies a call.
var ErrRateLimited = errors.New("rate limit exceeded, try again later")

// Client is the front door for callers: per-user limiting, category-scoped
// result caching, then batching through a Manager.
type Client struct {
	mgr      *Manager
	cache    *cache.TTL
	limiter  *ratelimit.Window
	cacheTTL time.Duration
}

// NewClient wires a Client. limiter and c may be nil to disable that layer.
func NewClient(mgr *Manager, c *cache.TTL, limiter *ratelimit.Window, cacheTTL time.Duration) *Client {
	return &Client{mgr: mgr, cache: c, limiter: limiter, cacheTTL: cacheTTL}
}

// Manager returns the underlying batch manager.
func (cl *Client) Manager() *Manager { return cl.mgr }

func (cl *Client) allow(userID string) error {
	if cl.limiter == nil || userID == "" {
		return nil
	}
	if !cl.limiter.CanMakeRequest(userID) {
		return ErrRateLimited
	}
	return nil
}

// GenerateRecommendations returns recommendations for the requested
// categories. Categories already cached for this location are served locally;
// only the rest are requested, in one sub-request. Like Geocode, only a call
// that reaches the network counts against the user's limit.
func (cl *Client) GenerateRecommendations(ctx context.Context, userID string, req domain.GenerateRequest) (domain.Recommendations, error) {
	req.Categories = geo.NormalizeCategories(req.Categories)
	req.Mode = domain.ParseMode(string(req.Mode))
	loc := geo.LocationKey(req.Latitude, req.Longitude, req.RadiusMiles)

	out := make(domain.Recommendations, len(req.Categories))
	var missing []string
	for _, c := range req.Categories {
		if cl.cache != nil {
			if raw, ok := cl.cache.Get(cacheKey(req.Mode, c, loc)); ok {
				var list []domain.Business
				if err := json.Unmarshal(raw, &list); err == nil {
					out[c] = list
					continue
				}
			}
		}
		missing = append(missing, c)
	}
	if len(missing) == 0 {
		return out, nil
	}
	if err := cl.allow(userID); err != nil {
		return nil, err
	}

	sub := req
	sub.Categories = missing
	raw, err := cl.mgr.Invoke(ctx, domain.TypeGenerateRecommendations, sub)
	if err != nil {
		return nil, err
	}
	var resp domain.GenerateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	for _, c := range missing {
		list := resp.Recommendations[c]
		if len(list) == 0 {
			continue
		}
		out[c] = list
		if cl.cache != nil {
			if b, err := json.Marshal(list); err == nil {
				cl.cache.Set(cacheKey(req.Mode, c, loc), b, cl.cacheTTL)
			}
		}
	}
	return out, nil
}

// Geocode resolves an address, caching the result by normalized address.
func (cl *Client) Geocode(ctx context.Context, userID, address string) (domain.GeocodeResult, error) {
	var res domain.GeocodeResult
	address = strings.Join(strings.Fields(address), " ")
	key := "geocode_" + strings.ToLower(address)
	if cl.cache != nil {
		if raw, ok := cl.cache.Get(key); ok && json.Unmarshal(raw, &res) == nil {
			return res, nil
		}
	}
	if err := cl.allow(userID); err != nil {
		return res, err
	}
	raw, err := cl.mgr.Invoke(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: address})
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return res, fmt.Errorf("decode geocode result: %w", err)
	}
	if cl.cache != nil {
		cl.cache.Set(key, raw, cl.cacheTTL)
	}
	return res, nil
}

// Filter narrows a recommendation set server-side. Results are not cached.
func (cl *Client) Filter(ctx context.Context, userID string, req domain.FilterRequest) (domain.Recommendations, error) {
	if err := cl.allow(userID); err != nil {
		return nil, err
	}
	raw, err := cl.mgr.Invoke(ctx, domain.TypeFilterRecommendations, req)
	if err != nil {
		return nil, err
	}
	var resp domain.FilterResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode filtered recommendations: %w", err)
	}
	return resp.Recommendations, nil
}

func cacheKey(mode domain.Mode, category, loc string) string {
	return string(mode) + ":" + geo.CategoryKey(category, loc)
}
