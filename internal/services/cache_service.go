package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
	"github.com/calmlysettled/relocation-gateway/internal/geo"
)

// Cache admin actions.
const (
	ActionStats            = "stats"
	ActionClearOldVersions = "clear-old-versions"
	ActionClearExpired     = "clear-expired"
)

// CacheAdminRepo is the maintenance side of the recommendation cache.
type CacheAdminRepo interface {
	DeleteCacheNotVersion(ctx context.Context, db *gorm.DB, prefix string) (int64, error)
	DeleteExpiredCache(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
	CacheStats(ctx context.Context, db *gorm.DB, now time.Time) (domain.CacheStats, error)
}

// CacheAdminResult is the outcome of a cache-utils action.
type CacheAdminResult struct {
	Action  string             `json:"action"`
	Deleted *int64             `json:"deleted,omitempty"`
	Stats   *domain.CacheStats `json:"stats,omitempty"`
}

// CacheService answers check-cache and runs cache-utils actions.
type CacheService struct {
	DB    *gorm.DB
	Recs  *RecommendationService
	Admin CacheAdminRepo
	Now   func() time.Time
}

// NewCacheService wires a CacheService onto the recommendation cache.
func NewCacheService(db *gorm.DB, recs *RecommendationService, admin CacheAdminRepo) *CacheService {
	return &CacheService{DB: db, Recs: recs, Admin: admin}
}

func (s *CacheService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Check reports whether recommendations for req are cached under version.
// Lookup failures read as a miss.
func (s *CacheService) Check(ctx context.Context, version string, req domain.CheckCacheRequest) (*domain.CheckCacheResponse, error) {
	ctx, span := otel.Tracer("services/CacheService").Start(ctx, "Check",
		trace.WithAttributes(attribute.Int("categories", len(req.Categories))),
	)
	defer span.End()

	if err := validateCoords(req.Coordinates.Lat, req.Coordinates.Lng); err != nil {
		return nil, err
	}
	cats := geo.NormalizeCategories(req.Categories)
	if len(cats) == 0 {
		return nil, ErrNoCategories
	}
	mode := domain.ParseMode(string(req.Mode))

	hit := s.Recs.Lookup(ctx, strings.TrimSpace(version), mode, req.Coordinates.Lat, req.Coordinates.Lng, cats)
	if hit == nil {
		return &domain.CheckCacheResponse{Cached: false}, nil
	}
	age := s.now().Sub(hit.CreatedAt).Milliseconds()
	if age < 0 {
		age = 0
	}
	return &domain.CheckCacheResponse{
		Cached:   true,
		Data:     hit.Recommendations,
		CacheAge: &age,
		Fuzzy:    hit.Fuzzy,
	}, nil
}

// Run executes a cache-utils action. clear-old-versions keeps only rows
// written under version.
func (s *CacheService) Run(ctx context.Context, action, version string) (*CacheAdminResult, error) {
	ctx, span := otel.Tracer("services/CacheService").Start(ctx, "Run",
		trace.WithAttributes(attribute.String("action", action)),
	)
	defer span.End()

	res := &CacheAdminResult{Action: action}
	switch action {
	case ActionStats:
		st, err := s.Admin.CacheStats(ctx, s.DB, s.now())
		if err != nil {
			return nil, fmt.Errorf("cache stats: %w", err)
		}
		res.Stats = &st
	case ActionClearOldVersions:
		version = strings.TrimSpace(version)
		if version == "" {
			return nil, ErrNoVersion
		}
		n, err := s.Admin.DeleteCacheNotVersion(ctx, s.DB, geo.VersionPrefix(version))
		if err != nil {
			return nil, fmt.Errorf("clear old versions: %w", err)
		}
		res.Deleted = &n
	case ActionClearExpired:
		n, err := s.Admin.DeleteExpiredCache(ctx, s.DB, s.now())
		if err != nil {
			return nil, fmt.Errorf("clear expired: %w", err)
		}
		res.Deleted = &n
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return res, nil
}
