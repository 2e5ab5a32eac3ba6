package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
)

type countingGeocoder struct {
	calls int
	res   *domain.GeocodeResult
	err   error
}

func (g *countingGeocoder) Geocode(context.Context, string) (*domain.GeocodeResult, error) {
	g.calls++
	return g.res, g.err
}

func TestGeocodeService_CachesHits(t *testing.T) {
	g := &countingGeocoder{res: &domain.GeocodeResult{Latitude: 41.76, Longitude: -72.67}}
	svc := NewGeocodeService(g, time.Hour)
	defer svc.Close()

	for _, addr := range []string{"1 Main St, Hartford", "  1 main st,   HARTFORD "} {
		res, err := svc.Geocode(context.Background(), addr)
		if err != nil {
			t.Fatal(err)
		}
		if res.Latitude != 41.76 {
			t.Fatalf("res = %+v", res)
		}
	}
	if g.calls != 1 {
		t.Fatalf("geocoder calls = %d, want 1", g.calls)
	}
}

func TestGeocodeService_MissesAreNotCached(t *testing.T) {
	g := &countingGeocoder{}
	svc := NewGeocodeService(g, 0)
	defer svc.Close()

	for i := 0; i < 2; i++ {
		if _, err := svc.Geocode(context.Background(), "nowhere"); !errors.Is(err, ErrAddressNotFound) {
			t.Fatalf("err = %v, want ErrAddressNotFound", err)
		}
	}
	if g.calls != 2 {
		t.Fatalf("geocoder calls = %d, want 2", g.calls)
	}
}

func TestGeocodeService_Errors(t *testing.T) {
	boom := errors.New("429 too many requests")
	svc := NewGeocodeService(&countingGeocoder{err: boom}, 0)
	defer svc.Close()

	if _, err := svc.Geocode(context.Background(), " \t "); !errors.Is(err, ErrEmptyAddress) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.Geocode(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	none := NewGeocodeService(nil, 0)
	defer none.Close()
	if _, err := none.Geocode(context.Background(), "x"); !errors.Is(err, ErrGeocoderUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
