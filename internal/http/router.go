// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, authentication, idempotency, and rate
// limiting.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/calmlysettled/relocation-gateway/docs"
	"github.com/calmlysettled/relocation-gateway/internal/config"
	"github.com/calmlysettled/relocation-gateway/internal/http/handlers"
	"github.com/calmlysettled/relocation-gateway/internal/http/middleware"
	"github.com/calmlysettled/relocation-gateway/internal/ratelimit"
)

// FunctionsBasePath is where the dispatchable functions are mounted.
const FunctionsBasePath = "/functions/v1"

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and returns a func that releases background resources.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII and coordinate scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per user/IP, bypass on replay)
//  9. CORS and Security headers
//  10. gzip
//
// Route groups then add bearer auth, the per-user window on provider-backed
// functions, and response replay on batch-recommendations.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, opts ...Option) func() {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key", "apikey"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	idem := idempotencyStore{db: db, ttl: cfg.IdempotencyTTL}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.lookup))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).
		Skip("/health", "/ready", "/metrics")
	r.Use(rl.Handler())

	useCORS(r, cfg.CORS.AllowedOrigins)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{FunctionsBasePath + "/geocode-address", FunctionsBasePath + "/check-cache"},
		EnablePolicy:    true,
		Expose:          []string{middleware.HeaderIdempotentReplay, "X-RateLimit-Remaining"},
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	a := newApp(db, cfg, opts...)
	h := a.handlers

	callers := middleware.BearerAuth(middleware.AuthOptions{
		ServiceKey: cfg.ServiceRoleKey,
		AnonKey:    cfg.AnonKey,
		AllowAnon:  true,
	})
	serviceOnly := middleware.RequireRole(middleware.RoleService)
	perUser := middleware.UserWindow(ratelimit.New(cfg.UserRateMax, cfg.UserRateWindow))
	replay := middleware.IdempotentResponses(idem.load, idem.save)

	fn := r.Group(FunctionsBasePath, callers)
	{
		fn.POST("/generate-recommendations", perUser, h.GenerateRecommendations)
		fn.POST("/filter-recommendations", h.FilterRecommendations)
		fn.POST("/geocode-address", h.GeocodeAddress)
		fn.POST("/check-cache", h.CheckCache)
		fn.POST("/batch-recommendations", perUser, replay, h.BatchRecommendations)
		fn.POST("/cache-utils", serviceOnly, h.CacheUtils)
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(callers, serviceOnly)
	{
		api.GET("/usage", h.ListUsage)
	}

	return a.close
}

// useCORS installs gin-contrib/cors. With no allowlist every origin is
// accepted without credentials; otherwise the request Origin is echoed when
// listed.
func useCORS(r *gin.Engine, origins []string) {
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization", "apikey",
		"X-User-ID", handlers.HeaderAppVersion, middleware.HeaderIdempotencyKey,
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", middleware.HeaderIdempotentReplay, "X-RateLimit-Remaining"}
	methods := []string{"GET", "POST", "OPTIONS"}

	if len(origins) == 0 {
		// ACAO is forced even without an Origin header so health checks see it.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
}

// limitBody caps request bodies at maxBytes; larger bodies fail on read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
