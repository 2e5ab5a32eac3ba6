package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
)

// Geocoder resolves a free-form address. A nil result with a nil error means
// the address has no match.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*domain.GeocodeResult, error)
}

const defaultGeocodeTTL = 24 * time.Hour

// GeocodeService resolves addresses through a Geocoder and remembers answers
// for a day. Misses are not cached.
type GeocodeService struct {
	geocoder Geocoder
	cache    *ttlcache.Cache[string, domain.GeocodeResult]
}

// NewGeocodeService starts the result cache's eviction loop; call Close to
// stop it.
func NewGeocodeService(g Geocoder, ttl time.Duration) *GeocodeService {
	if ttl <= 0 {
		ttl = defaultGeocodeTTL
	}
	cache := ttlcache.New[string, domain.GeocodeResult](
		ttlcache.WithTTL[string, domain.GeocodeResult](ttl),
		ttlcache.WithDisableTouchOnHit[string, domain.GeocodeResult](),
	)
	go cache.Start()
	return &GeocodeService{geocoder: g, cache: cache}
}

// Close stops the cache eviction loop.
func (s *GeocodeService) Close() { s.cache.Stop() }

// Geocode returns the coordinates for address.
func (s *GeocodeService) Geocode(ctx context.Context, address string) (*domain.GeocodeResult, error) {
	ctx, span := otel.Tracer("services/GeocodeService").Start(ctx, "Geocode")
	defer span.End()

	address = strings.Join(strings.Fields(address), " ")
	if address == "" {
		return nil, ErrEmptyAddress
	}
	key := strings.ToLower(address)
	if item := s.cache.Get(key); item != nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		res := item.Value()
		return &res, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	if s.geocoder == nil {
		return nil, ErrGeocoderUnavailable
	}
	res, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("geocode: %w", err)
	}
	if res == nil {
		return nil, ErrAddressNotFound
	}
	s.cache.Set(key, *res, ttlcache.DefaultTTL)
	return res, nil
}
