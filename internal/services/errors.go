// Package services defines the business logic behind the downstream functions
// (generate, filter, geocode), the cache check and admin utilities, and the
// usage counters. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// Translation into HTTP status codes is performed by the handler layer.
package services

import "errors"

// Validation errors.
var (
	// ErrInvalidBody is returned when a function body cannot be decoded.
	ErrInvalidBody = errors.New("invalid request body")

	// ErrInvalidCoordinates is returned for latitude/longitude outside WGS84 bounds.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrNoCategories is returned when a request names no usable category.
	ErrNoCategories = errors.New("at least one category is required")

	// ErrEmptyAddress is returned by geocoding when the address is blank.
	ErrEmptyAddress = errors.New("address is required")

	// ErrUnknownAction is returned for an unsupported cache-utils action.
	ErrUnknownAction = errors.New("unknown action")

	// ErrNoVersion is returned by clear-old-versions when no app version is known.
	ErrNoVersion = errors.New("app version is required")
)

// Upstream errors.
var (
	// ErrGeneratorUnavailable is returned when no recommendation generator is configured.
	ErrGeneratorUnavailable = errors.New("recommendation generator unavailable")

	// ErrGeocoderUnavailable is returned when no geocoder is configured.
	ErrGeocoderUnavailable = errors.New("geocoder unavailable")

	// ErrAddressNotFound is returned when the geocoder has no match.
	ErrAddressNotFound = errors.New("address not found")
)
