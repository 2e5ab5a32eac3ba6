// Package services – RecommendationService
//
// This file implements the geographic cache store and the
// generate-recommendations function built on it. Requests are keyed by the
// grid cell of their coordinates, the sorted category set, the mode and an
// optional app-version prefix. A lookup tries the exact key first and then
// falls back to a fuzzy scan of the same cell. On a miss the Generator is
// asked; concurrent identical generations share one call.
//
// Cache failures never fail a request: read errors count as a miss and write
// errors are logged and dropped.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
	"github.com/calmlysettled/relocation-gateway/internal/geo"
	"github.com/calmlysettled/relocation-gateway/internal/repo"
)

// Generator produces recommendations for a location and category set.
type Generator interface {
	Generate(ctx context.Context, lat, lng float64, categories []string, mode domain.Mode) (domain.Recommendations, error)
}

// GeoCacheRepo is the persistence contract of the recommendation cache.
type GeoCacheRepo interface {
	GetCacheByKey(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.RecommendationCache, error)
	FindCacheInCell(ctx context.Context, db *gorm.DB, mode domain.Mode, gridLat, gridLng float64, now time.Time, limit int) ([]domain.RecommendationCache, error)
	UpsertCache(ctx context.Context, db *gorm.DB, row *domain.RecommendationCache) error
}

// CacheHit is a successful cache lookup.
type CacheHit struct {
	Recommendations domain.Recommendations
	CreatedAt       time.Time
	Fuzzy           bool
}

// RecommendationService serves generate-recommendations through the
// persistent cache.
type RecommendationService struct {
	DB        *gorm.DB
	Repo      GeoCacheRepo
	Generator Generator

	// Grid buckets coordinates for cache keys.
	Grid geo.Grid
	// Version prefixes cache keys; empty disables versioning.
	Version    string
	ExploreTTL time.Duration
	PopularTTL time.Duration
	FuzzyLimit int

	// Now is the clock (tests); nil means time.Now.
	Now func() time.Time

	flight singleflight.Group
}

// NewRecommendationService returns a service with the default grid and TTLs.
func NewRecommendationService(db *gorm.DB, r GeoCacheRepo, g Generator) *RecommendationService {
	return &RecommendationService{
		DB:         db,
		Repo:       r,
		Generator:  g,
		Grid:       geo.DefaultGrid,
		ExploreTTL: 180 * 24 * time.Hour,
		PopularTTL: 7 * 24 * time.Hour,
		FuzzyLimit: 50,
	}
}

func (s *RecommendationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ttl returns the cache lifetime for mode.
func (s *RecommendationService) ttl(mode domain.Mode) time.Duration {
	if mode == domain.ModePopular {
		return s.PopularTTL
	}
	return s.ExploreTTL
}

// CacheKey returns the persistent key for a request. categories must be
// normalized.
func (s *RecommendationService) CacheKey(version string, mode domain.Mode, lat, lng float64, categories []string) string {
	return s.Grid.CacheKey(version, string(mode), lat, lng, categories)
}

// Lookup finds cached recommendations for the request, returning nil on a
// miss. Only requested categories are returned.
func (s *RecommendationService) Lookup(ctx context.Context, version string, mode domain.Mode, lat, lng float64, categories []string) *CacheHit {
	ctx, span := otel.Tracer("services/RecommendationService").Start(ctx, "Lookup",
		trace.WithAttributes(attribute.String("mode", string(mode))),
	)
	defer span.End()

	now := s.now()
	key := s.CacheKey(version, mode, lat, lng, categories)

	row, err := s.Repo.GetCacheByKey(ctx, s.DB, key, now)
	switch {
	case err == nil:
		if sub := row.Recommendations.Subset(categories); len(sub) > 0 {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &CacheHit{Recommendations: sub, CreatedAt: row.CreatedAt}
		}
	case !errors.Is(err, repo.ErrNotFound):
		log.Warn().Err(err).Str("cache_key", key).Msg("geo cache read failed")
		return nil
	}

	cellLat, cellLng := s.Grid.Cell(lat, lng)
	rows, err := s.Repo.FindCacheInCell(ctx, s.DB, mode, cellLat, cellLng, now, s.FuzzyLimit)
	if err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("geo cache fuzzy read failed")
		return nil
	}
	prefix := string(mode) + ":"
	if version != "" {
		prefix = geo.VersionPrefix(version) + prefix
	}
	for _, r := range rows {
		if !strings.HasPrefix(r.CacheKey, prefix) {
			continue
		}
		if sub := r.Recommendations.Subset(categories); len(sub) > 0 {
			span.SetAttributes(attribute.Bool("cache.hit", true), attribute.Bool("cache.fuzzy", true))
			return &CacheHit{Recommendations: sub, CreatedAt: r.CreatedAt, Fuzzy: true}
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))
	return nil
}

// Generate returns recommendations for req, from the cache when possible.
func (s *RecommendationService) Generate(ctx context.Context, version string, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	ctx, span := otel.Tracer("services/RecommendationService").Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.Float64("lat", req.Latitude),
			attribute.Float64("lng", req.Longitude),
			attribute.Int("categories", len(req.Categories)),
		),
	)
	defer span.End()

	if err := validateCoords(req.Latitude, req.Longitude); err != nil {
		return nil, err
	}
	cats := geo.NormalizeCategories(req.Categories)
	if len(cats) == 0 {
		return nil, ErrNoCategories
	}
	mode := domain.ParseMode(string(req.Mode))

	if hit := s.Lookup(ctx, version, mode, req.Latitude, req.Longitude, cats); hit != nil {
		return &domain.GenerateResponse{Recommendations: hit.Recommendations, Cached: true, Fuzzy: hit.Fuzzy}, nil
	}
	if s.Generator == nil {
		return nil, ErrGeneratorUnavailable
	}

	key := s.CacheKey(version, mode, req.Latitude, req.Longitude, cats)
	v, err, _ := s.flight.Do(key, func() (any, error) {
		recs, err := s.Generator.Generate(ctx, req.Latitude, req.Longitude, cats, mode)
		if err != nil {
			return nil, err
		}
		out := make(domain.Recommendations, len(cats))
		for _, c := range cats {
			out[c] = recs[c]
			if out[c] == nil {
				out[c] = []domain.Business{}
			}
		}
		s.store(ctx, key, mode, req.Latitude, req.Longitude, cats, out)
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate recommendations: %w", err)
	}
	return &domain.GenerateResponse{Recommendations: v.(domain.Recommendations)}, nil
}

// store upserts a generated result. Failures are logged and swallowed.
func (s *RecommendationService) store(ctx context.Context, key string, mode domain.Mode, lat, lng float64, cats []string, recs domain.Recommendations) {
	now := s.now()
	cellLat, cellLng := s.Grid.Cell(lat, lng)
	row := &domain.RecommendationCache{
		CacheKey:        key,
		Latitude:        lat,
		Longitude:       lng,
		GridLat:         cellLat,
		GridLng:         cellLng,
		Mode:            mode,
		Categories:      cats,
		Recommendations: recs,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl(mode)),
	}
	if err := s.Repo.UpsertCache(ctx, s.DB, row); err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("geo cache write failed")
	}
}

func validateCoords(lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}
