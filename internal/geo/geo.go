// Package geo derives cache keys from coordinates and category lists.
//
// Two key schemes live here:
//   - client keys (LocationKey, CategoryKey) round coordinates to 2–4 decimals
//     depending on the search radius, so that nearby users share entries;
//   - persistent cache keys (Grid.CacheKey) snap coordinates to a fixed grid
//     (0.02° ≈ 2 km by default) and combine them with the sorted category set,
//     the mode, and an optional app-version prefix.
package geo

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const metersPerMile = 1609.344

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// PrecisionForRadius returns the number of decimals kept for a search radius
// in miles. Larger radii keep fewer decimals so more users share a key.
func PrecisionForRadius(radiusMiles float64) int {
	switch {
	case radiusMiles <= 1:
		return 4
	case radiusMiles <= 10:
		return 3
	default:
		return 2
	}
}

// LocationKey formats lat/lng rounded for the given radius, e.g. "41.766,-72.673".
func LocationKey(lat, lng, radiusMiles float64) string {
	p := PrecisionForRadius(radiusMiles)
	return strconv.FormatFloat(Round(lat, p), 'f', p, 64) + "," + strconv.FormatFloat(Round(lng, p), 'f', p, 64)
}

// CategoryKey scopes a category to a location key.
func CategoryKey(category, locationKey string) string {
	return "category_" + category + "_" + locationKey
}

// NormalizeCategories lower-cases, trims, de-duplicates and sorts categories.
// Empty names are dropped.
func NormalizeCategories(categories []string) []string {
	lower := cases.Lower(language.Und)
	seen := make(map[string]struct{}, len(categories))
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.Join(strings.Fields(lower.String(c)), " ")
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Grid snaps coordinates to square cells of Size degrees.
type Grid struct {
	Size float64
}

// DefaultGrid is the ~2 km grid used by the persistent cache.
var DefaultGrid = Grid{Size: 0.02}

// Cell returns the grid point nearest to (lat, lng).
func (g Grid) Cell(lat, lng float64) (float64, float64) {
	size := g.Size
	if size <= 0 {
		size = DefaultGrid.Size
	}
	snap := func(v float64) float64 { return Round(math.Round(v/size)*size, 6) }
	return snap(lat), snap(lng)
}

// CacheKey builds the persistent cache key for a request. Categories are
// expected to be normalized already (see NormalizeCategories).
func (g Grid) CacheKey(version, mode string, lat, lng float64, categories []string) string {
	cellLat, cellLng := g.Cell(lat, lng)
	var b strings.Builder
	if version != "" {
		b.WriteString(VersionPrefix(version))
	}
	b.WriteString(mode)
	b.WriteByte(':')
	b.WriteString(strconv.FormatFloat(cellLat, 'f', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(cellLng, 'f', -1, 64))
	b.WriteByte(':')
	b.WriteString(strings.Join(categories, "|"))
	return b.String()
}

// VersionPrefix is the key prefix for rows written by app version v.
func VersionPrefix(v string) string { return "v" + v + ":" }

// DistanceMiles returns the great-circle distance between two points.
func DistanceMiles(lat1, lng1, lat2, lng2 float64) float64 {
	return orbgeo.Distance(orb.Point{lng1, lat1}, orb.Point{lng2, lat2}) / metersPerMile
}
