// Package dispatch implements the server side of the batch endpoint: it
// receives a batch of heterogeneous sub-requests, collapses duplicates within
// the batch, fans the unique ones out to downstream functions with bounded
// concurrency, and returns exactly one response per input id.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
	"github.com/calmlysettled/relocation-gateway/internal/utils"
)

// DefaultConcurrency is the number of downstream calls in flight per batch.
const DefaultConcurrency = 4

// ErrEmptyBatch is returned for a batch without requests.
var ErrEmptyBatch = errors.New("requests array is required")

// unknownType is the sub-response error for an unsupported type. Batch
// callers match the text verbatim, capital included.
func unknownType(t domain.RequestType) error {
	return fmt.Errorf("Unknown request type: %s", t)
}

// Downstream performs one sub-request against the function named by t.
type Downstream interface {
	Call(ctx context.Context, t domain.RequestType, body json.RawMessage) (json.RawMessage, error)
}

// Dispatcher fans a batch out to a Downstream.
type Dispatcher struct {
	down        Downstream
	concurrency int
	log         zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConcurrency bounds parallel downstream calls per batch.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// New constructs a Dispatcher.
func New(down Downstream, opts ...Option) *Dispatcher {
	d := &Dispatcher{down: down, concurrency: DefaultConcurrency, log: log.Logger}
	for _, o := range opts {
		o(d)
	}
	return d
}

type unique struct {
	req  domain.SubRequest
	data json.RawMessage
	err  error
}

// Dispatch runs every unique sub-request once and returns one response per
// input request, in input order. Per-request failures become the response's
// Error; only ErrEmptyBatch or a cancelled ctx fail the whole batch.
func (d *Dispatcher) Dispatch(ctx context.Context, batch domain.BatchRequest) (domain.BatchResponse, error) {
	if len(batch.Requests) == 0 {
		return domain.BatchResponse{}, ErrEmptyBatch
	}

	ctx, span := otel.Tracer("dispatch").Start(ctx, "Dispatcher.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(batch.Requests)))

	// slot[i] indexes into uniq for input i.
	slot := make([]int, len(batch.Requests))
	index := make(map[string]int, len(batch.Requests))
	uniq := make([]*unique, 0, len(batch.Requests))
	for i, r := range batch.Requests {
		key := dedupeKey(r)
		if j, ok := index[key]; ok {
			slot[i] = j
			dedupTotal.Inc()
			continue
		}
		index[key] = len(uniq)
		slot[i] = len(uniq)
		uniq = append(uniq, &unique{req: r})
	}
	span.SetAttributes(attribute.Int("batch.unique", len(uniq)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, u := range uniq {
		g.Go(func() error {
			u.data, u.err = d.one(gctx, u.req)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return domain.BatchResponse{}, err
	}

	out := domain.BatchResponse{Responses: make([]domain.SubResponse, len(batch.Requests))}
	for i, r := range batch.Requests {
		u := uniq[slot[i]]
		resp := domain.SubResponse{ID: r.ID}
		if u.err != nil {
			resp.Error = u.err.Error()
		} else {
			resp.Data = u.data
		}
		out.Responses[i] = resp
	}
	return out, nil
}

func (d *Dispatcher) one(ctx context.Context, r domain.SubRequest) (json.RawMessage, error) {
	if !r.Type.Valid() {
		subrequestsTotal.WithLabelValues("unknown", "error").Inc()
		return nil, unknownType(r.Type)
	}
	data, err := d.down.Call(ctx, r.Type, r.Body)
	if err != nil {
		subrequestsTotal.WithLabelValues(string(r.Type), "error").Inc()
		d.log.Warn().Err(err).Str("id", r.ID).Str("type", string(r.Type)).Msg("dispatch: sub-request failed")
		return nil, err
	}
	subrequestsTotal.WithLabelValues(string(r.Type), "ok").Inc()
	return data, nil
}

// dedupeKey is type + ":" + the body with object keys sorted. A body that
// cannot be decoded is keyed by its raw bytes.
func dedupeKey(r domain.SubRequest) string {
	canon, err := utils.CanonicalJSON(r.Body, nil)
	if err != nil {
		canon = r.Body
	}
	return string(r.Type) + ":" + string(canon)
}
