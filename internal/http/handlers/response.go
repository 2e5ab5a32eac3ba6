package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calmlysettled/relocation-gateway/internal/http/middleware"
)

// ErrorResponse is the error envelope of the /api/v1 routes and of the
// engine-level 404 and 405 answers.
type ErrorResponse struct {
	// Echo of X-Request-ID for correlating logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code    string `json:"code" example:"usage_failed"`
	Message string `json:"message" example:"list usage: database is locked"`
}

// FuncError is the error body of the /functions/v1 routes.
type FuncError struct {
	Error string `json:"error" example:"requests array is required"`
}

func requestID(c *gin.Context) string {
	if rid := middleware.RequestIDFrom(c); rid != "" {
		return rid
	}
	return c.Writer.Header().Get("X-Request-ID")
}

// fail aborts with an ErrorResponse. 5xx are logged on the request logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{RequestID: requestID(c), Code: code, Message: msg})
}

// Fail is fail for the router's NoRoute and NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// funcError aborts a function route with {"error": msg}. 5xx are logged with
// the function route.
func funcError(c *gin.Context, status int, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("route", c.FullPath()).
			Str("message", msg).
			Msg("function error")
	}
	c.AbortWithStatusJSON(status, FuncError{Error: msg})
}
