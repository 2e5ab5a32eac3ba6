package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
)

// stubGenerator returns one business per category and counts calls.
type stubGenerator struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (g *stubGenerator) Generate(_ context.Context, _, _ float64, categories []string, _ domain.Mode) (domain.Recommendations, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if g.err != nil {
		return nil, g.err
	}
	out := domain.Recommendations{}
	for _, c := range categories {
		out[c] = []domain.Business{{Name: c + " place"}}
	}
	return out, nil
}

func TestGenerate_NearbyRequestHitsCache(t *testing.T) {
	db := newServicesDB(t)
	gen := &stubGenerator{}
	svc := NewRecommendationService(db, repoShim{}, gen)

	first, err := svc.Generate(context.Background(), "", domain.GenerateRequest{
		Latitude: 41.7658, Longitude: -72.6734, Categories: []string{"Grocery Stores"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Fatal("first call must not be cached")
	}

	cs := NewCacheService(db, svc, repoShim{})
	resp, err := cs.Check(context.Background(), "", domain.CheckCacheRequest{
		Coordinates: domain.Coordinates{Lat: 41.7659, Lng: -72.6735},
		Categories:  []string{"grocery stores"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Cached || len(resp.Data["grocery stores"]) != 1 {
		t.Fatalf("check-cache = %+v, want a hit", resp)
	}
	if resp.CacheAge == nil || *resp.CacheAge < 0 {
		t.Fatalf("cacheAge = %v", resp.CacheAge)
	}

	second, err := svc.Generate(context.Background(), "", domain.GenerateRequest{
		Latitude: 41.7659, Longitude: -72.6735, Categories: []string{"grocery stores"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached || gen.calls.Load() != 1 {
		t.Fatalf("second cached=%v generator calls=%d", second.Cached, gen.calls.Load())
	}
}

func TestLookup_FuzzyHitReturnsOnlyRequestedCategories(t *testing.T) {
	db := newServicesDB(t)
	svc := NewRecommendationService(db, repoShim{}, &stubGenerator{})

	if _, err := svc.Generate(context.Background(), "", domain.GenerateRequest{
		Latitude: 40.0, Longitude: -73.0, Categories: []string{"parks", "gyms"},
	}); err != nil {
		t.Fatal(err)
	}

	hit := svc.Lookup(context.Background(), "", domain.ModeExplore, 40.001, -73.001, []string{"parks"})
	if hit == nil || !hit.Fuzzy {
		t.Fatalf("hit = %+v, want fuzzy hit", hit)
	}
	if _, ok := hit.Recommendations["gyms"]; ok || len(hit.Recommendations["parks"]) != 1 {
		t.Fatalf("recommendations = %+v", hit.Recommendations)
	}

	if hit := svc.Lookup(context.Background(), "", domain.ModePopular, 40.0, -73.0, []string{"parks"}); hit != nil {
		t.Fatalf("other mode must miss, got %+v", hit)
	}
	if hit := svc.Lookup(context.Background(), "", domain.ModeExplore, 40.5, -73.0, []string{"parks"}); hit != nil {
		t.Fatalf("other cell must miss, got %+v", hit)
	}
}

func TestLookup_VersionScoped(t *testing.T) {
	db := newServicesDB(t)
	svc := NewRecommendationService(db, repoShim{}, &stubGenerator{})
	req := domain.GenerateRequest{Latitude: 10, Longitude: 10, Categories: []string{"cafes"}}
	if _, err := svc.Generate(context.Background(), "1.0.0", req); err != nil {
		t.Fatal(err)
	}
	if hit := svc.Lookup(context.Background(), "1.0.0", domain.ModeExplore, 10, 10, []string{"cafes"}); hit == nil {
		t.Fatal("same version must hit")
	}
	if hit := svc.Lookup(context.Background(), "2.0.0", domain.ModeExplore, 10, 10, []string{"cafes"}); hit != nil {
		t.Fatal("other version must miss")
	}
}

func TestGenerate_CacheFailuresAreFailOpen(t *testing.T) {
	gen := &stubGenerator{}
	svc := NewRecommendationService(nil, brokenRepo{}, gen)

	resp, err := svc.Generate(context.Background(), "", domain.GenerateRequest{
		Latitude: 1, Longitude: 1, Categories: []string{"libraries"},
	})
	if err != nil {
		t.Fatalf("broken cache must not fail the request: %v", err)
	}
	if resp.Cached || len(resp.Recommendations["libraries"]) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestGenerate_ConcurrentIdenticalRequestsShareOneGeneration(t *testing.T) {
	db := newServicesDB(t)
	gen := &stubGenerator{delay: 100 * time.Millisecond}
	svc := NewRecommendationService(db, repoShim{}, gen)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Generate(context.Background(), "", domain.GenerateRequest{
				Latitude: 5, Longitude: 5, Categories: []string{"schools"},
			}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n := gen.calls.Load(); n != 1 {
		t.Fatalf("generator calls = %d, want 1", n)
	}
}

func TestGenerate_Validation(t *testing.T) {
	svc := NewRecommendationService(nil, brokenRepo{}, &stubGenerator{})
	ctx := context.Background()

	if _, err := svc.Generate(ctx, "", domain.GenerateRequest{Latitude: 91, Categories: []string{"x"}}); !errors.Is(err, ErrInvalidCoordinates) {
		t.Fatalf("err = %v, want ErrInvalidCoordinates", err)
	}
	if _, err := svc.Generate(ctx, "", domain.GenerateRequest{Categories: []string{" ", ""}}); !errors.Is(err, ErrNoCategories) {
		t.Fatalf("err = %v, want ErrNoCategories", err)
	}

	svc.Generator = nil
	if _, err := svc.Generate(ctx, "", domain.GenerateRequest{Categories: []string{"x"}}); !errors.Is(err, ErrGeneratorUnavailable) {
		t.Fatalf("err = %v, want ErrGeneratorUnavailable", err)
	}
}

func TestGenerate_GeneratorErrorIsWrapped(t *testing.T) {
	boom := errors.New("upstream 502")
	svc := NewRecommendationService(nil, brokenRepo{}, &stubGenerator{err: boom})
	_, err := svc.Generate(context.Background(), "", domain.GenerateRequest{Categories: []string{"x"}})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerate_PopularModeUsesShortTTL(t *testing.T) {
	db := newServicesDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewRecommendationService(db, repoShim{}, &stubGenerator{})
	svc.Now = fixedClock(now)

	if _, err := svc.Generate(context.Background(), "", domain.GenerateRequest{
		Latitude: 3, Longitude: 3, Categories: []string{"events"}, Mode: domain.ModePopular,
	}); err != nil {
		t.Fatal(err)
	}
	var row domain.RecommendationCache
	if err := db.First(&row).Error; err != nil {
		t.Fatal(err)
	}
	if got := row.ExpiresAt.Sub(row.CreatedAt); got != 7*24*time.Hour {
		t.Fatalf("ttl = %v, want 7 days", got)
	}
	if row.Mode != domain.ModePopular || row.GridLat != 3 || row.Latitude != 3 {
		t.Fatalf("row = %+v", row)
	}
}
