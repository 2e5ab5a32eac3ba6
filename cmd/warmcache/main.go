// Command warmcache pre-populates the gateway's recommendation cache for a
// list of locations. Requests go through the client coordinator, so entries
// that arrive within one debounce window share a single batch call.
//
// Usage:
//
//	warmcache -f locations.json [-gateway http://localhost:8080] [-user warmcache]
//
// The locations file holds a JSON array of generate requests:
//
//	[{"latitude": 41.7658, "longitude": -72.6734, "categories": ["grocery stores"], "mode": "explore"}]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/calmlysettled/relocation-gateway/internal/cache"
	"github.com/calmlysettled/relocation-gateway/internal/config"
	"github.com/calmlysettled/relocation-gateway/internal/coordinator"
	"github.com/calmlysettled/relocation-gateway/internal/domain"
	"github.com/calmlysettled/relocation-gateway/internal/ratelimit"
	"github.com/calmlysettled/relocation-gateway/internal/sysutil"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetLogLevel(cfg.LogLevel)
	sysutil.SetupLogger("warmcache", cfg.LogPretty || sysutil.IsTruthy(os.Getenv("WARM_PRETTY")), nil)

	file := flag.String("f", "locations.json", "JSON file with generate requests")
	gateway := flag.String("gateway", sysutil.FirstNonEmpty(os.Getenv("GATEWAY_URL"), "http://localhost:"+cfg.Port), "gateway base URL")
	user := flag.String("user", "warmcache", "user id the per-user limiter counts against")
	limited := flag.Bool("limit", sysutil.IsTruthy(os.Getenv("WARM_RESPECT_LIMIT")), "apply the per-user sliding window locally")
	flag.Parse()

	reqs, err := readRequests(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("read locations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := coordinator.New(
		coordinator.NewHTTPTransport(*gateway, cfg.ServiceRoleKey, cfg.Dispatch.DownstreamTimeout),
		coordinator.WithDelay(cfg.Batch.Delay),
		coordinator.WithMaxWait(cfg.Batch.MaxWait),
		coordinator.WithCooldown(cfg.Batch.Cooldown),
		coordinator.WithLogger(log.Logger),
	)
	var limiter *ratelimit.Window
	if *limited {
		limiter = ratelimit.New(cfg.UserRateMax, cfg.UserRateWindow)
	}
	client := coordinator.NewClient(mgr, cache.New(cache.WithSize(cfg.Batch.ClientCacheSize)), limiter, cfg.Batch.ClientCacheTTL)

	if err := warm(ctx, client, *user, reqs); err != nil {
		log.Error().Err(err).Msg("warm failed")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.Close(closeCtx); err != nil {
		log.Warn().Err(err).Msg("coordinator close")
	}
}

type generator interface {
	GenerateRecommendations(ctx context.Context, userID string, req domain.GenerateRequest) (domain.Recommendations, error)
}

// warm issues every request concurrently and logs per-location outcomes.
// The first failure is returned after all requests finish.
func warm(ctx context.Context, g generator, userID string, reqs []domain.GenerateRequest) error {
	var eg errgroup.Group
	for _, req := range reqs {
		eg.Go(func() error {
			recs, err := g.GenerateRecommendations(ctx, userID, req)
			ev := log.Info()
			if err != nil {
				ev = log.Warn().Err(err)
			}
			ev.Strs("categories", req.Categories).Int("returned", len(recs)).Msg("warm location")
			return err
		})
	}
	return eg.Wait()
}

func readRequests(path string) ([]domain.GenerateRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reqs []domain.GenerateRequest
	if err := json.Unmarshal(raw, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}
