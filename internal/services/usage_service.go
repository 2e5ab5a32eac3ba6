package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
)

// UsageRepo persists the per-day provider counters.
type UsageRepo interface {
	IncrementUsage(ctx context.Context, db *gorm.DB, service string, calls, costMicros int64, now time.Time) error
	ListUsage(ctx context.Context, db *gorm.DB, since time.Time) ([]domain.APIUsage, error)
}

// UsageService records outbound provider calls and lists the totals.
type UsageService struct {
	DB   *gorm.DB
	Repo UsageRepo
	Now  func() time.Time
}

// NewUsageService builds a UsageService.
func NewUsageService(db *gorm.DB, r UsageRepo) *UsageService {
	return &UsageService{DB: db, Repo: r}
}

func (s *UsageService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Record adds one call costing costMicros to service's counter for today.
// Errors are logged, never returned: counting must not fail the call it counts.
func (s *UsageService) Record(ctx context.Context, service string, costMicros int64) {
	if err := s.Repo.IncrementUsage(ctx, s.DB, service, 1, costMicros, s.now()); err != nil {
		log.Warn().Err(err).Str("service", service).Msg("usage increment failed")
	}
}

// List returns the counters of the last days days, today included.
func (s *UsageService) List(ctx context.Context, days int) ([]domain.APIUsage, error) {
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}
	since := s.now().AddDate(0, 0, -(days - 1))
	return s.Repo.ListUsage(ctx, s.DB, since)
}
