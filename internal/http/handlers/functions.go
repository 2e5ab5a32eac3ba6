package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/calmlysettled/relocation-gateway/internal/dispatch"
	"github.com/calmlysettled/relocation-gateway/internal/domain"
	"github.com/calmlysettled/relocation-gateway/internal/services"
)

// Recommender generates (or serves cached) recommendations.
type Recommender interface {
	Generate(ctx context.Context, version string, req domain.GenerateRequest) (*domain.GenerateResponse, error)
}

// Filterer narrows a recommendation set.
type Filterer interface {
	Filter(ctx context.Context, req domain.FilterRequest) (*domain.FilterResponse, error)
}

// AddressGeocoder resolves addresses.
type AddressGeocoder interface {
	Geocode(ctx context.Context, address string) (*domain.GeocodeResult, error)
}

// Functions holds the three dispatchable functions. The same code serves
// their HTTP routes and, through Local, in-process batch dispatch.
type Functions struct {
	Recs    Recommender
	Filter  Filterer
	Geocode AddressGeocoder
	// Version is used for requests that carry no x-app-version.
	Version string
}

func (f *Functions) generate(ctx context.Context, version string, body []byte) (any, error) {
	var req domain.GenerateRequest
	if err := decodeBody(body, &req); err != nil {
		return nil, err
	}
	if version == "" {
		version = f.Version
	}
	return f.Recs.Generate(ctx, version, req)
}

func (f *Functions) filter(ctx context.Context, body []byte) (any, error) {
	var req domain.FilterRequest
	if err := decodeBody(body, &req); err != nil {
		return nil, err
	}
	return f.Filter.Filter(ctx, req)
}

func (f *Functions) geocode(ctx context.Context, body []byte) (any, error) {
	var req domain.GeocodeRequest
	if err := decodeBody(body, &req); err != nil {
		return nil, err
	}
	return f.Geocode.Geocode(ctx, req.Address)
}

// Local exposes the functions as an in-process dispatch target.
func (f *Functions) Local() dispatch.LocalDownstream {
	wrap := func(t domain.RequestType, fn func(context.Context, []byte) (any, error)) dispatch.HandlerFunc {
		return func(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
			out, err := fn(ctx, body)
			if err != nil {
				return nil, &dispatch.DownstreamError{Type: t, Status: funcStatus(err), Message: err.Error()}
			}
			raw, err := json.Marshal(out)
			if err != nil {
				return nil, fmt.Errorf("%s encode: %w", t, err)
			}
			return raw, nil
		}
	}
	return dispatch.LocalDownstream{
		domain.TypeGenerateRecommendations: wrap(domain.TypeGenerateRecommendations, func(ctx context.Context, b []byte) (any, error) {
			return f.generate(ctx, dispatch.AppVersion(ctx), b)
		}),
		domain.TypeFilterRecommendations: wrap(domain.TypeFilterRecommendations, f.filter),
		domain.TypeGeocodeAddress:        wrap(domain.TypeGeocodeAddress, f.geocode),
	}
}

func decodeBody(body []byte, v any) error {
	if len(body) == 0 {
		return services.ErrInvalidBody
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", services.ErrInvalidBody, err)
	}
	return nil
}

// funcStatus maps service errors onto HTTP status codes.
func funcStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidBody),
		errors.Is(err, services.ErrInvalidCoordinates),
		errors.Is(err, services.ErrNoCategories),
		errors.Is(err, services.ErrEmptyAddress),
		errors.Is(err, services.ErrUnknownAction),
		errors.Is(err, services.ErrNoVersion),
		errors.Is(err, dispatch.ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrAddressNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrGeneratorUnavailable),
		errors.Is(err, services.ErrGeocoderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
