// Command server runs the CalmlySettled relocation gateway.
//
//	@title						CalmlySettled Relocation Gateway API
//	@version					1.0
//	@description				Request coordination layer for relocation recommendations.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/calmlysettled/relocation-gateway/internal/config"
	httpapi "github.com/calmlysettled/relocation-gateway/internal/http"
	"github.com/calmlysettled/relocation-gateway/internal/observability"
	"github.com/calmlysettled/relocation-gateway/internal/repo"
	"github.com/calmlysettled/relocation-gateway/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetLogLevel(cfg.LogLevel)
	sysutil.SetupLogger("relocation-gateway", cfg.LogPretty, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatchMode := "local"
	if cfg.Dispatch.DownstreamBaseURL != "" {
		dispatchMode = "http"
	}
	buildVersion := sysutil.FirstNonEmpty(version, os.Getenv("APP_BUILD_VERSION"), cfg.AppVersion, "dev")
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, buildVersion,
		attribute.String("db.system", cfg.DBDriver),
		attribute.String("dispatch.mode", dispatchMode),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	dsn := cfg.DBPath
	if cfg.DBDriver == "postgres" {
		dsn = cfg.DatabaseURL
	}
	db, err := repo.Open(cfg.DBDriver, dsn)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	closeRoutes := httpapi.RegisterRoutes(r, db, cfg)
	defer closeRoutes()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go janitor(ctx, db, cfg.CleanupInterval)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", buildVersion).Str("dispatch", dispatchMode).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// janitor purges expired idempotency records and cache rows every interval
// until ctx is done. A zero interval disables it.
func janitor(ctx context.Context, db *gorm.DB, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			idem, err := repo.DeleteExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency records")
			}
			rows, err := repo.DeleteExpiredCache(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge expired cache rows")
			}
			log.Debug().Int64("idempotency", idem).Int64("cache", rows).Msg("janitor pass")
		}
	}
}
