// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the persistent
// recommendation cache (table recommendations_cache).
//
// Rows are looked up by their exact cache key or, for fuzzy hits, by grid cell
// and mode. Only rows whose expires_at lies in the future are returned; expired
// rows stay in place until an upsert replaces them or DeleteExpiredCache runs.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
)

// gridEpsilon absorbs float representation noise when matching grid cells.
const gridEpsilon = 1e-9

// GetCacheByKey returns the unexpired row for key, or ErrNotFound.
func GetCacheByKey(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.RecommendationCache, error) {
	var row domain.RecommendationCache
	err := db.WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", key, now).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindCacheInCell returns up to limit unexpired rows in the grid cell for
// mode, newest first.
func FindCacheInCell(ctx context.Context, db *gorm.DB, mode domain.Mode, gridLat, gridLng float64, now time.Time, limit int) ([]domain.RecommendationCache, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []domain.RecommendationCache
	err := db.WithContext(ctx).
		Where("mode = ? AND expires_at > ?", mode, now).
		Where("grid_lat BETWEEN ? AND ?", gridLat-gridEpsilon, gridLat+gridEpsilon).
		Where("grid_lng BETWEEN ? AND ?", gridLng-gridEpsilon, gridLng+gridEpsilon).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// UpsertCache inserts row or, when its cache_key exists, overwrites the
// payload and timestamps. Last write wins.
func UpsertCache(ctx context.Context, db *gorm.DB, row *domain.RecommendationCache) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"latitude", "longitude", "grid_lat", "grid_lng", "mode",
				"categories", "recommendations", "created_at", "expires_at",
			}),
		}).
		Create(row).Error
}

// DeleteCacheNotVersion deletes rows whose key does not start with prefix and
// returns how many were removed.
func DeleteCacheNotVersion(ctx context.Context, db *gorm.DB, prefix string) (int64, error) {
	res := db.WithContext(ctx).
		Where("SUBSTR(cache_key, 1, ?) <> ?", len(prefix), prefix).
		Delete(&domain.RecommendationCache{})
	return res.RowsAffected, res.Error
}

// DeleteExpiredCache deletes rows with expires_at <= now.
func DeleteExpiredCache(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.RecommendationCache{})
	return res.RowsAffected, res.Error
}

// CacheStats returns aggregate counts for the cache table.
func CacheStats(ctx context.Context, db *gorm.DB, now time.Time) (domain.CacheStats, error) {
	st := domain.CacheStats{ByMode: map[string]int64{}}
	base := func() *gorm.DB { return db.WithContext(ctx).Model(&domain.RecommendationCache{}) }

	if err := base().Count(&st.Total).Error; err != nil {
		return st, err
	}
	if st.Total == 0 {
		return st, nil
	}
	if err := base().Where("expires_at > ?", now).Count(&st.Active).Error; err != nil {
		return st, err
	}
	st.Expired = st.Total - st.Active

	var modes []struct {
		Mode string
		N    int64
	}
	if err := base().Select("mode, COUNT(*) AS n").Group("mode").Scan(&modes).Error; err != nil {
		return st, err
	}
	for _, m := range modes {
		st.ByMode[m.Mode] = m.N
	}

	// Ordered single-row reads instead of MIN()/MAX(), which come back as TEXT in SQLite.
	var row struct{ CreatedAt time.Time }
	if err := base().Select("created_at").Order("created_at ASC").Limit(1).Scan(&row).Error; err != nil {
		return st, err
	}
	oldest := row.CreatedAt
	if err := base().Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return st, err
	}
	newest := row.CreatedAt
	st.Oldest, st.Newest = &oldest, &newest
	return st, nil
}
