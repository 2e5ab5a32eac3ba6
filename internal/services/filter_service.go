package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
	"github.com/calmlysettled/relocation-gateway/internal/geo"
	"github.com/calmlysettled/relocation-gateway/internal/search"
)

// FilterService narrows a recommendation set by category, distance and
// free-text filters. It is stateless.
type FilterService struct {
	// DefaultLimit caps each category when the request sets no limit; 0 keeps all.
	DefaultLimit int
}

// NewFilterService returns a FilterService without a default limit.
func NewFilterService() *FilterService { return &FilterService{} }

// Filter applies req to req.Recommendations. Categories not requested are
// dropped; businesses with coordinates farther than MaxDistanceMiles from the
// request point are dropped; when Filters are given, only businesses matching
// at least one term remain, best match first.
func (s *FilterService) Filter(ctx context.Context, req domain.FilterRequest) (*domain.FilterResponse, error) {
	_, span := otel.Tracer("services/FilterService").Start(ctx, "Filter",
		trace.WithAttributes(
			attribute.Int("categories", len(req.Recommendations)),
			attribute.Int("filters", len(req.Filters)),
		),
	)
	defer span.End()

	if req.Latitude != nil && req.Longitude != nil {
		if err := validateCoords(*req.Latitude, *req.Longitude); err != nil {
			return nil, err
		}
	}

	var want map[string]struct{}
	if cats := geo.NormalizeCategories(req.Categories); len(cats) > 0 {
		want = make(map[string]struct{}, len(cats))
		for _, c := range cats {
			want[c] = struct{}{}
		}
	}
	query := strings.Join(req.Filters, " ")
	limit := req.Limit
	if limit <= 0 {
		limit = s.DefaultLimit
	}

	out := make(domain.Recommendations, len(req.Recommendations))
	for cat, list := range req.Recommendations {
		if want != nil {
			norm := geo.NormalizeCategories([]string{cat})
			if len(norm) == 0 {
				continue
			}
			if _, ok := want[norm[0]]; !ok {
				continue
			}
		}
		kept := s.withinDistance(list, req)
		if strings.TrimSpace(query) != "" {
			kept = rank(kept, query)
		}
		if limit > 0 && len(kept) > limit {
			kept = kept[:limit]
		}
		out[cat] = kept
	}
	return &domain.FilterResponse{Recommendations: out}, nil
}

// withinDistance annotates businesses with their distance from the request
// point and drops those beyond the limit. Businesses without coordinates are
// kept unannotated.
func (s *FilterService) withinDistance(list []domain.Business, req domain.FilterRequest) []domain.Business {
	out := make([]domain.Business, 0, len(list))
	if req.Latitude == nil || req.Longitude == nil {
		return append(out, list...)
	}
	for _, b := range list {
		if b.Latitude == nil || b.Longitude == nil {
			out = append(out, b)
			continue
		}
		d := geo.Round(geo.DistanceMiles(*req.Latitude, *req.Longitude, *b.Latitude, *b.Longitude), 2)
		if req.MaxDistanceMiles > 0 && d > req.MaxDistanceMiles {
			continue
		}
		b.DistanceMiles = &d
		out = append(out, b)
	}
	return out
}

// rank keeps the businesses matching query, ordered by relevance.
func rank(list []domain.Business, query string) []domain.Business {
	texts := make([]string, len(list))
	for i, b := range list {
		texts[i] = businessText(b)
	}
	idx := search.NewIndexFromStrings(texts)
	hits := idx.TopK(query, 0)
	out := make([]domain.Business, 0, len(hits))
	for _, h := range hits {
		out = append(out, list[h.Pos])
	}
	return out
}

func businessText(b domain.Business) string {
	parts := make([]string, 0, 3+len(b.Features))
	parts = append(parts, b.Name, b.Description, b.Address)
	parts = append(parts, b.Features...)
	return strings.Join(parts, " ")
}
