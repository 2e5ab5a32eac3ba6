package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
)

// FunctionsPath prefixes every downstream function route.
const FunctionsPath = "/functions/v1/"

// HeaderAppVersion carries the client app version that scopes cache keys.
const HeaderAppVersion = "x-app-version"

type appVersionKey struct{}

// WithAppVersion returns ctx carrying the caller's app version. Downstreams
// pass it on to every sub-request of the batch.
func WithAppVersion(ctx context.Context, version string) context.Context {
	if version == "" {
		return ctx
	}
	return context.WithValue(ctx, appVersionKey{}, version)
}

// AppVersion returns the app version attached by WithAppVersion, or "".
func AppVersion(ctx context.Context) string {
	v, _ := ctx.Value(appVersionKey{}).(string)
	return v
}

// DownstreamError is a non-2xx answer from a downstream function.
type DownstreamError struct {
	Type    domain.RequestType
	Status  int
	Message string
}

func (e *DownstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed with status %d", e.Type, e.Status)
	}
	return fmt.Sprintf("%s failed: %s", e.Type, e.Message)
}

// BreakerConfig tunes the per-function circuit breakers.
type BreakerConfig struct {
	FailureThreshold uint
	Window           uint
	Delay            time.Duration
	SuccessThreshold uint
}

// DefaultBreakerConfig opens a function's breaker after 5 failures in 10
// calls, and probes again after 15 s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Window: 10, Delay: 15 * time.Second, SuccessThreshold: 1}
}

// HTTPDownstream calls functions over HTTP with the service-role token. Each
// function has its own circuit breaker; there are no retries.
type HTTPDownstream struct {
	baseURL  string
	token    string
	client   *http.Client
	breakers map[domain.RequestType]circuitbreaker.CircuitBreaker[any]
}

// NewHTTPDownstream builds a downstream for baseURL.
func NewHTTPDownstream(baseURL, token string, timeout time.Duration, bc BreakerConfig) *HTTPDownstream {
	h := &HTTPDownstream{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		client:   &http.Client{Timeout: timeout},
		breakers: make(map[domain.RequestType]circuitbreaker.CircuitBreaker[any]),
	}
	for _, t := range []domain.RequestType{
		domain.TypeGenerateRecommendations,
		domain.TypeFilterRecommendations,
		domain.TypeGeocodeAddress,
	} {
		h.breakers[t] = newBreaker(string(t), bc, log.Logger)
	}
	return h
}

func newBreaker(name string, bc BreakerConfig, l zerolog.Logger) circuitbreaker.CircuitBreaker[any] {
	if bc.Window == 0 {
		bc = DefaultBreakerConfig()
	}
	if bc.FailureThreshold == 0 || bc.FailureThreshold > bc.Window {
		bc.FailureThreshold = bc.Window
	}
	if bc.SuccessThreshold == 0 {
		bc.SuccessThreshold = 1
	}
	return circuitbreaker.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			// client errors say nothing about the function's health
			var de *DownstreamError
			if errors.As(err, &de) {
				return de.Status >= 500
			}
			return err != nil && !errors.Is(err, context.Canceled)
		}).
		WithFailureThresholdRatio(bc.FailureThreshold, bc.Window).
		WithDelay(bc.Delay).
		WithSuccessThreshold(bc.SuccessThreshold).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			l.Warn().
				Str("function", name).
				Str("from", stateName(e.OldState)).
				Str("to", stateName(e.NewState)).
				Msg("dispatch: circuit breaker state change")
		}).
		Build()
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}

// Call implements Downstream.
func (h *HTTPDownstream) Call(ctx context.Context, t domain.RequestType, body json.RawMessage) (json.RawMessage, error) {
	cb, ok := h.breakers[t]
	if !ok {
		return nil, unknownType(t)
	}
	res, err := failsafe.With(cb).Get(func() (any, error) {
		return h.post(ctx, t, body)
	})
	if err != nil {
		return nil, err
	}
	return res.(json.RawMessage), nil
}

func (h *HTTPDownstream) post(ctx context.Context, t domain.RequestType, body json.RawMessage) (json.RawMessage, error) {
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+FunctionsPath+string(t), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	if v := AppVersion(ctx); v != "" {
		req.Header.Set(HeaderAppVersion, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", t, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", t, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return nil, &DownstreamError{Type: t, Status: resp.StatusCode, Message: e.Error}
	}
	return json.RawMessage(raw), nil
}

// HandlerFunc serves one function in-process.
type HandlerFunc func(ctx context.Context, body json.RawMessage) (json.RawMessage, error)

// LocalDownstream routes sub-requests to in-process handlers.
type LocalDownstream map[domain.RequestType]HandlerFunc

// Call implements Downstream.
func (l LocalDownstream) Call(ctx context.Context, t domain.RequestType, body json.RawMessage) (json.RawMessage, error) {
	h, ok := l[t]
	if !ok {
		return nil, unknownType(t)
	}
	return h(ctx, body)
}
