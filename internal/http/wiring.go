package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/calmlysettled/relocation-gateway/internal/config"
	"github.com/calmlysettled/relocation-gateway/internal/dispatch"
	"github.com/calmlysettled/relocation-gateway/internal/domain"
	"github.com/calmlysettled/relocation-gateway/internal/geo"
	"github.com/calmlysettled/relocation-gateway/internal/http/handlers"
	"github.com/calmlysettled/relocation-gateway/internal/http/middleware"
	"github.com/calmlysettled/relocation-gateway/internal/providers/nominatim"
	"github.com/calmlysettled/relocation-gateway/internal/providers/perplexity"
	"github.com/calmlysettled/relocation-gateway/internal/repo"
	"github.com/calmlysettled/relocation-gateway/internal/services"
)

// cacheRepoShim adapts the repo free functions to the recommendation cache
// contracts (services.GeoCacheRepo and services.CacheAdminRepo).
type cacheRepoShim struct{}

func (cacheRepoShim) GetCacheByKey(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.RecommendationCache, error) {
	return repo.GetCacheByKey(ctx, db, key, now)
}

func (cacheRepoShim) FindCacheInCell(ctx context.Context, db *gorm.DB, mode domain.Mode, gridLat, gridLng float64, now time.Time, limit int) ([]domain.RecommendationCache, error) {
	return repo.FindCacheInCell(ctx, db, mode, gridLat, gridLng, now, limit)
}

func (cacheRepoShim) UpsertCache(ctx context.Context, db *gorm.DB, row *domain.RecommendationCache) error {
	return repo.UpsertCache(ctx, db, row)
}

func (cacheRepoShim) DeleteCacheNotVersion(ctx context.Context, db *gorm.DB, prefix string) (int64, error) {
	return repo.DeleteCacheNotVersion(ctx, db, prefix)
}

func (cacheRepoShim) DeleteExpiredCache(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	return repo.DeleteExpiredCache(ctx, db, now)
}

func (cacheRepoShim) CacheStats(ctx context.Context, db *gorm.DB, now time.Time) (domain.CacheStats, error) {
	return repo.CacheStats(ctx, db, now)
}

// usageRepoShim adapts the repo free functions to services.UsageRepo.
type usageRepoShim struct{}

func (usageRepoShim) IncrementUsage(ctx context.Context, db *gorm.DB, service string, calls, costMicros int64, now time.Time) error {
	return repo.IncrementUsage(ctx, db, service, calls, costMicros, now)
}

func (usageRepoShim) ListUsage(ctx context.Context, db *gorm.DB, since time.Time) ([]domain.APIUsage, error) {
	return repo.ListUsage(ctx, db, since)
}

// Option overrides a default collaborator of RegisterRoutes.
type Option func(*wiring)

// WithGenerator replaces the Perplexity generator.
func WithGenerator(g services.Generator) Option {
	return func(w *wiring) { w.generator = g }
}

// WithGeocoder replaces the Nominatim geocoder.
func WithGeocoder(g services.Geocoder) Option {
	return func(w *wiring) { w.geocoder = g }
}

type wiring struct {
	generator services.Generator
	geocoder  services.Geocoder
}

// app is the service graph behind the routes.
type app struct {
	recs     *services.RecommendationService
	cache    *services.CacheService
	usage    *services.UsageService
	geocode  *services.GeocodeService
	handlers *handlers.Handlers
}

func (a *app) close() { a.geocode.Close() }

// newApp builds services, providers and the batch dispatcher from cfg.
func newApp(db *gorm.DB, cfg config.Config, opts ...Option) *app {
	usage := services.NewUsageService(db, usageRepoShim{})

	w := &wiring{}
	if cfg.Providers.PerplexityAPIKey != "" {
		pc, err := perplexity.NewClient(cfg.Providers.PerplexityAPIKey, cfg.Providers.PerplexityModel,
			perplexity.WithURL(cfg.Providers.PerplexityURL),
			perplexity.WithUsage(usage),
		)
		if err != nil {
			log.Warn().Err(err).Msg("perplexity client disabled")
		} else {
			w.generator = pc
		}
	}
	if cfg.Providers.NominatimURL != "" {
		w.geocoder = nominatim.NewClient(cfg.Providers.NominatimURL, cfg.Providers.NominatimUserAgent, 1, usage)
	}
	for _, o := range opts {
		o(w)
	}
	if w.generator == nil {
		log.Warn().Msg("no recommendation generator configured; generate-recommendations will answer 503 on cache misses")
	}

	recs := services.NewRecommendationService(db, cacheRepoShim{}, w.generator)
	if cfg.GeoCache.GridSize > 0 {
		recs.Grid = geo.Grid{Size: cfg.GeoCache.GridSize}
	}
	if cfg.GeoCache.ExploreTTL > 0 {
		recs.ExploreTTL = cfg.GeoCache.ExploreTTL
	}
	if cfg.GeoCache.PopularTTL > 0 {
		recs.PopularTTL = cfg.GeoCache.PopularTTL
	}
	if cfg.GeoCache.FuzzyScanLimit > 0 {
		recs.FuzzyLimit = cfg.GeoCache.FuzzyScanLimit
	}
	recs.Version = cfg.AppVersion

	geocode := services.NewGeocodeService(w.geocoder, cfg.Providers.GeocodeCacheTTL)
	cache := services.NewCacheService(db, recs, cacheRepoShim{})

	fn := &handlers.Functions{
		Recs:    recs,
		Filter:  services.NewFilterService(),
		Geocode: geocode,
		Version: cfg.AppVersion,
	}

	var down dispatch.Downstream = fn.Local()
	if cfg.Dispatch.DownstreamBaseURL != "" {
		down = dispatch.NewHTTPDownstream(cfg.Dispatch.DownstreamBaseURL, cfg.ServiceRoleKey,
			cfg.Dispatch.DownstreamTimeout, dispatch.DefaultBreakerConfig())
	}
	batch := dispatch.New(down, dispatch.WithConcurrency(cfg.Dispatch.Concurrency))

	return &app{
		recs:    recs,
		cache:   cache,
		usage:   usage,
		geocode: geocode,
		handlers: handlers.New(handlers.Deps{
			Functions:  fn,
			Batch:      batch,
			Cache:      cache,
			Usage:      usage,
			AppVersion: cfg.AppVersion,
		}),
	}
}

// idempotencyStore backs the idempotency middleware with the repo.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func (s idempotencyStore) lookup(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
	if err != nil || rec == nil {
		return false, nil
	}
	return true, nil
}

func (s idempotencyStore) load(ctx context.Context, userID, scope, key string, now time.Time) (*middleware.StoredResponse, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
	if err != nil {
		return nil, err
	}
	return &middleware.StoredResponse{Status: rec.Status, Body: []byte(rec.Response)}, nil
}

func (s idempotencyStore) save(ctx context.Context, userID, scope, key string, resp middleware.StoredResponse) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resp.Status, string(resp.Body), s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}
