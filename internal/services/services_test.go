package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
	"github.com/calmlysettled/relocation-gateway/internal/repo"
)

// newServicesDB opens a fresh in-memory database with every table migrated.
func newServicesDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// repoShim adapts the repo package functions to the service interfaces.
type repoShim struct{}

func (repoShim) GetCacheByKey(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.RecommendationCache, error) {
	return repo.GetCacheByKey(ctx, db, key, now)
}

func (repoShim) FindCacheInCell(ctx context.Context, db *gorm.DB, mode domain.Mode, gridLat, gridLng float64, now time.Time, limit int) ([]domain.RecommendationCache, error) {
	return repo.FindCacheInCell(ctx, db, mode, gridLat, gridLng, now, limit)
}

func (repoShim) UpsertCache(ctx context.Context, db *gorm.DB, row *domain.RecommendationCache) error {
	return repo.UpsertCache(ctx, db, row)
}

func (repoShim) DeleteCacheNotVersion(ctx context.Context, db *gorm.DB, prefix string) (int64, error) {
	return repo.DeleteCacheNotVersion(ctx, db, prefix)
}

func (repoShim) DeleteExpiredCache(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	return repo.DeleteExpiredCache(ctx, db, now)
}

func (repoShim) CacheStats(ctx context.Context, db *gorm.DB, now time.Time) (domain.CacheStats, error) {
	return repo.CacheStats(ctx, db, now)
}

func (repoShim) IncrementUsage(ctx context.Context, db *gorm.DB, service string, calls, costMicros int64, now time.Time) error {
	return repo.IncrementUsage(ctx, db, service, calls, costMicros, now)
}

func (repoShim) ListUsage(ctx context.Context, db *gorm.DB, since time.Time) ([]domain.APIUsage, error) {
	return repo.ListUsage(ctx, db, since)
}

// brokenRepo fails every call.
type brokenRepo struct{}

var errBroken = errors.New("database is locked")

func (brokenRepo) GetCacheByKey(context.Context, *gorm.DB, string, time.Time) (*domain.RecommendationCache, error) {
	return nil, errBroken
}

func (brokenRepo) FindCacheInCell(context.Context, *gorm.DB, domain.Mode, float64, float64, time.Time, int) ([]domain.RecommendationCache, error) {
	return nil, errBroken
}

func (brokenRepo) UpsertCache(context.Context, *gorm.DB, *domain.RecommendationCache) error {
	return errBroken
}

func (brokenRepo) IncrementUsage(context.Context, *gorm.DB, string, int64, int64, time.Time) error {
	return errBroken
}

func (brokenRepo) ListUsage(context.Context, *gorm.DB, time.Time) ([]domain.APIUsage, error) {
	return nil, errBroken
}

// fixedClock returns a clock frozen at t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }
