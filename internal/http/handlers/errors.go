package handlers

// Error codes of the /api/v1 envelope and the engine-level 404/405 handlers.
// Function routes answer {"error": "..."} instead (see funcError).
// ErrCodeRateLimited and ErrCodeInternal are also written by the middleware
// package, which spells them out to avoid importing handlers.
const (
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeUsageFailed      = "usage_failed"
)
