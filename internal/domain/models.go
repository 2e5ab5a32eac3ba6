// Package domain defines the persistence models and wire types shared by the
// repository, service, coordinator and dispatch layers. Persistent types are
// mapped with GORM.
package domain

import (
	"strings"
	"time"
)

// Mode selects how recommendations are generated and how long they are cached.
type Mode string

const (
	// ModeExplore is the default mode: broad local discovery, cached for months.
	ModeExplore Mode = "explore"
	// ModePopular covers trending places and events, cached for days.
	ModePopular Mode = "popular"
)

// ParseMode normalizes s to a known Mode, defaulting to ModeExplore.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePopular:
		return ModePopular
	default:
		return ModeExplore
	}
}

// Coordinates is a WGS84 point as sent by clients.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Business is a single recommended place.
type Business struct {
	Name          string   `json:"name"`
	Address       string   `json:"address,omitempty"`
	Description   string   `json:"description,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	Website       string   `json:"website,omitempty"`
	Features      []string `json:"features,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	DistanceMiles *float64 `json:"distance_miles,omitempty"`
}

// Recommendations maps a category name to the businesses found for it.
type Recommendations map[string][]Business

// Subset returns the entries of r whose category is listed in categories.
// Categories with no businesses are omitted.
func (r Recommendations) Subset(categories []string) Recommendations {
	out := make(Recommendations, len(categories))
	for _, c := range categories {
		if list, ok := r[c]; ok && len(list) > 0 {
			out[c] = list
		}
	}
	return out
}

// RecommendationCache is a persisted recommendation set for one location
// bucket, category set and mode. Only rows with ExpiresAt in the future are
// eligible for lookup; expired rows stay until superseded or cleared.
//
// Fields:
//   - CacheKey: derived from the grid cell, sorted categories, mode and
//     optional app-version prefix; unique.
//   - Latitude/Longitude: the coordinates of the request that produced the row.
//   - GridLat/GridLng: the rounded grid cell, used for fuzzy lookups.
//   - Categories/Recommendations: JSON-serialized payload.
type RecommendationCache struct {
	ID              string          `json:"id"              gorm:"type:char(36);primaryKey"`
	CacheKey        string          `json:"cache_key"       gorm:"type:varchar(512);not null;uniqueIndex:ux_recommendations_cache_key"`
	Latitude        float64         `json:"latitude"        gorm:"not null"`
	Longitude       float64         `json:"longitude"       gorm:"not null"`
	GridLat         float64         `json:"grid_lat"        gorm:"not null;index:idx_cache_grid,priority:1"`
	GridLng         float64         `json:"grid_lng"        gorm:"not null;index:idx_cache_grid,priority:2"`
	Mode            Mode            `json:"mode"            gorm:"type:varchar(16);not null;index:idx_cache_grid,priority:3"`
	Categories      []string        `json:"categories"      gorm:"type:text;not null;serializer:json"`
	Recommendations Recommendations `json:"recommendations" gorm:"type:text;not null;serializer:json"`
	CreatedAt       time.Time       `json:"created_at"      gorm:"not null;index"`
	ExpiresAt       time.Time       `json:"expires_at"      gorm:"not null;index"`
}

// TableName returns the database table name for RecommendationCache.
func (RecommendationCache) TableName() string { return "recommendations_cache" }

// CacheStats summarizes the recommendations_cache table.
type CacheStats struct {
	Total   int64            `json:"total"`
	Active  int64            `json:"active"`
	Expired int64            `json:"expired"`
	ByMode  map[string]int64 `json:"by_mode"`
	Oldest  *time.Time       `json:"oldest,omitempty"`
	Newest  *time.Time       `json:"newest,omitempty"`
}
