package domain

// GenerateRequest is the body of a generate-recommendations call.
type GenerateRequest struct {
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Categories  []string `json:"categories"`
	Mode        Mode     `json:"mode,omitempty"`
	RadiusMiles float64  `json:"radius_miles,omitempty"`
}

// GenerateResponse is returned by generate-recommendations.
type GenerateResponse struct {
	Recommendations Recommendations `json:"recommendations"`
	Cached          bool            `json:"cached"`
	Fuzzy           bool            `json:"fuzzy,omitempty"`
}

// FilterRequest narrows an existing recommendation set.
type FilterRequest struct {
	Recommendations  Recommendations `json:"recommendations"`
	Categories       []string        `json:"categories,omitempty"`
	Filters          []string        `json:"filters,omitempty"`
	Latitude         *float64        `json:"latitude,omitempty"`
	Longitude        *float64        `json:"longitude,omitempty"`
	MaxDistanceMiles float64         `json:"max_distance_miles,omitempty"`
	Limit            int             `json:"limit,omitempty"`
}

// FilterResponse is returned by filter-recommendations.
type FilterResponse struct {
	Recommendations Recommendations `json:"recommendations"`
}

// GeocodeRequest is the body of a geocode-address call.
type GeocodeRequest struct {
	Address string `json:"address"`
}

// GeocodeResult is a resolved address.
type GeocodeResult struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"display_name,omitempty"`
}

// CheckCacheRequest asks whether recommendations exist for a location.
type CheckCacheRequest struct {
	Coordinates Coordinates `json:"coordinates"`
	Categories  []string    `json:"categories"`
	Mode        Mode        `json:"mode,omitempty"`
}

// CheckCacheResponse reports a cache lookup. CacheAge is in milliseconds.
type CheckCacheResponse struct {
	Cached   bool            `json:"cached"`
	Data     Recommendations `json:"data,omitempty"`
	CacheAge *int64          `json:"cacheAge,omitempty"`
	Fuzzy    bool            `json:"fuzzy,omitempty"`
}
