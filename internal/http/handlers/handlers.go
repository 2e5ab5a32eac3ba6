// Recommendation gateway HTTP handlers.
//
// This file wires the handler set and its service contracts. The routes are:
//   - POST /functions/v1/generate-recommendations
//   - POST /functions/v1/filter-recommendations
//   - POST /functions/v1/geocode-address
//   - POST /functions/v1/check-cache
//   - POST /functions/v1/batch-recommendations
//   - POST /functions/v1/cache-utils          (service role)
//   - GET  /api/v1/usage                      (service role)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/calmlysettled/relocation-gateway/internal/dispatch"
	"github.com/calmlysettled/relocation-gateway/internal/domain"
	"github.com/calmlysettled/relocation-gateway/internal/services"
)

//
// Service contracts (context-aware)
//

// BatchDispatcher runs a batch of sub-requests.
type BatchDispatcher interface {
	Dispatch(ctx context.Context, batch domain.BatchRequest) (domain.BatchResponse, error)
}

// CacheService answers check-cache and runs admin actions on the
// recommendation cache.
type CacheService interface {
	Check(ctx context.Context, version string, req domain.CheckCacheRequest) (*domain.CheckCacheResponse, error)
	Run(ctx context.Context, action, version string) (*services.CacheAdminResult, error)
}

// UsageService lists provider usage counters.
type UsageService interface {
	List(ctx context.Context, days int) ([]domain.APIUsage, error)
}

//
// Handler wiring
//

// Deps bundles what the handlers need.
type Deps struct {
	Functions *Functions
	Batch     BatchDispatcher
	Cache     CacheService
	Usage     UsageService
	// AppVersion is the running version; cache-utils uses it when the request
	// names none.
	AppVersion string
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	fn      *Functions
	batch   BatchDispatcher
	cache   CacheService
	usage   UsageService
	version string
}

// New constructs and returns a Handlers instance bound to the given services.
func New(d Deps) *Handlers {
	return &Handlers{fn: d.Functions, batch: d.Batch, cache: d.Cache, usage: d.Usage, version: d.AppVersion}
}

// HeaderAppVersion carries the client's app version for cache scoping.
const HeaderAppVersion = dispatch.HeaderAppVersion

func appVersion(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(HeaderAppVersion))
}

// cacheVersion is the request's app version, or the running version when the
// header is absent. Generate applies the same fallback.
func (h *Handlers) cacheVersion(c *gin.Context) string {
	if v := appVersion(c); v != "" {
		return v
	}
	return h.version
}

// userID extracts the caller id set by the auth middleware, falling back to
// "anonymous".
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "anonymous"
}
