// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the api_usage counters. Counters are only
// changed through IncrementUsage, which is a single atomic upsert.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
)

// DayFormat is the layout of APIUsage.Day.
const DayFormat = "2006-01-02"

// IncrementUsage adds calls and costMicros to the (service, day of now) row,
// creating it when missing.
func IncrementUsage(ctx context.Context, db *gorm.DB, service string, calls, costMicros int64, now time.Time) error {
	now = now.UTC()
	row := &domain.APIUsage{
		Service:    service,
		Day:        now.Format(DayFormat),
		Calls:      calls,
		CostMicros: costMicros,
		UpdatedAt:  now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "service"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				"calls":       gorm.Expr("api_usage.calls + ?", calls),
				"cost_micros": gorm.Expr("api_usage.cost_micros + ?", costMicros),
				"updated_at":  now,
			}),
		}).
		Create(row).Error
}

// ListUsage returns counters for days on or after since, newest day first.
func ListUsage(ctx context.Context, db *gorm.DB, since time.Time) ([]domain.APIUsage, error) {
	var rows []domain.APIUsage
	err := db.WithContext(ctx).
		Where("day >= ?", since.UTC().Format(DayFormat)).
		Order("day DESC").Order("service ASC").
		Find(&rows).Error
	return rows, err
}
