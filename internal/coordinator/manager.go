// Package coordinator turns many independent, possibly overlapping calls for
// recommendation, filter and geocoding data into as few network calls as
// possible.
//
// A Manager collects requests arriving within a debounce window and sends
// them as one batch to the batch endpoint. While a request is pending or in
// flight, identical requests (same kind and normalized body) share its *Call.
// After an identical request has completed successfully, repeats are rejected
// locally for a cooldown period.
//
// Managers are constructed explicitly and owned by the caller; there is no
// package-level instance.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
)

const (
	// DefaultDelay is the debounce window, restarted by every enqueue.
	DefaultDelay = 2 * time.Second
	// DefaultMaxWait bounds how long the first pending request can be deferred.
	DefaultMaxWait = 5 * time.Second
	// DefaultCooldown is how long a successful request throttles identical repeats.
	DefaultCooldown = 5 * time.Minute

	pruneEvery = 256
)

var (
	// ErrThrottled is returned by Add when an identical request completed
	// successfully within the cooldown.
	ErrThrottled = errors.New("Rate limited: Similar request made recently")
	// ErrNoResponse settles a call whose id is missing from the batch response.
	ErrNoResponse = errors.New("No response found for request")
	// ErrClosed is returned by Add after Close.
	ErrClosed = errors.New("coordinator: closed")
)

// Transport delivers a batch and returns the per-request responses.
type Transport interface {
	Send(ctx context.Context, batch domain.BatchRequest) (domain.BatchResponse, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, batch domain.BatchRequest) (domain.BatchResponse, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, batch domain.BatchRequest) (domain.BatchResponse, error) {
	return f(ctx, batch)
}

// SubRequestError is a per-request error reported by the batch endpoint.
type SubRequestError struct {
	ID      string
	Message string
}

func (e *SubRequestError) Error() string { return e.Message }

// Call is a pending or settled request. Callers that coalesce onto the same
// request receive the same *Call.
type Call struct {
	ID   string
	Kind domain.RequestType
	Key  string

	body json.RawMessage
	done chan struct{}
	data json.RawMessage
	err  error
}

// Done is closed once the call settles.
func (c *Call) Done() <-chan struct{} { return c.done }

// Wait blocks until the call settles or ctx is done. Abandoning a wait does
// not cancel the underlying request.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.data, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Call) settle(data json.RawMessage, err error) {
	c.data, c.err = data, err
	close(c.done)
}

// Option configures a Manager.
type Option func(*Manager)

// WithDelay sets the debounce window.
func WithDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithMaxWait caps the deferral of the oldest pending request.
func WithMaxWait(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maxWait = d
		}
	}
}

// WithCooldown sets the post-success throttle window. Zero disables throttling.
func WithCooldown(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.cooldown = d
		}
	}
}

// WithFlushTimeout bounds each batch call. Zero (default) means no timeout.
func WithFlushTimeout(d time.Duration) Option {
	return func(m *Manager) { m.flushTimeout = d }
}

// WithClock overrides the time source used for throttling and max-wait.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Manager batches, coalesces and throttles requests. Safe for concurrent use.
type Manager struct {
	transport    Transport
	delay        time.Duration
	maxWait      time.Duration
	cooldown     time.Duration
	flushTimeout time.Duration
	now          func() time.Time
	log          zerolog.Logger

	mu        sync.Mutex
	pending   []*Call
	inflight  map[string]*Call
	completed map[string]time.Time
	firstAt   time.Time
	timer     *time.Timer
	gen       uint64
	adds      uint64
	closed    bool
	flushing  sync.WaitGroup
}

// New constructs a Manager that sends batches through t.
func New(t Transport, opts ...Option) *Manager {
	m := &Manager{
		transport: t,
		delay:     DefaultDelay,
		maxWait:   DefaultMaxWait,
		cooldown:  DefaultCooldown,
		now:       time.Now,
		log:       log.Logger,
		inflight:  make(map[string]*Call),
		completed: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(m)
	}
	if m.maxWait < m.delay {
		m.maxWait = m.delay
	}
	return m
}

// Invoke adds a request and waits for its result.
func (m *Manager) Invoke(ctx context.Context, kind domain.RequestType, body any) (json.RawMessage, error) {
	c, err := m.Add(ctx, kind, body)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx)
}

// Add registers a request. If an identical request is pending or in flight,
// its *Call is returned. If one completed successfully within the cooldown,
// ErrThrottled is returned. Otherwise a new call is enqueued and the debounce
// timer restarted.
func (m *Manager) Add(_ context.Context, kind domain.RequestType, body any) (*Call, error) {
	raw, err := toRaw(body)
	if err != nil {
		return nil, fmt.Errorf("coordinator: encode body: %w", err)
	}
	key, err := DedupeKey(kind, raw)
	if err != nil {
		return nil, fmt.Errorf("coordinator: normalize body: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if c, ok := m.inflight[key]; ok {
		requestsTotal.WithLabelValues("reused").Inc()
		return c, nil
	}
	now := m.now()
	m.adds++
	if m.adds%pruneEvery == 0 {
		m.pruneCompletedLocked(now)
	}
	if last, ok := m.completed[key]; ok {
		if now.Sub(last) < m.cooldown {
			requestsTotal.WithLabelValues("throttled").Inc()
			return nil, ErrThrottled
		}
		delete(m.completed, key)
	}

	c := &Call{
		ID:   uuid.NewString(),
		Kind: kind,
		Key:  key,
		body: raw,
		done: make(chan struct{}),
	}
	m.inflight[key] = c
	m.pending = append(m.pending, c)
	if len(m.pending) == 1 {
		m.firstAt = now
	}
	m.scheduleLocked(now)
	requestsTotal.WithLabelValues("enqueued").Inc()
	return c, nil
}

// pruneCompletedLocked forgets throttle records older than the cooldown.
func (m *Manager) pruneCompletedLocked(now time.Time) {
	for k, t := range m.completed {
		if now.Sub(t) >= m.cooldown {
			delete(m.completed, k)
		}
	}
}

// scheduleLocked (re)arms the flush timer: delay from now, but never later
// than firstAt+maxWait.
func (m *Manager) scheduleLocked(now time.Time) {
	wait := m.delay
	if left := m.maxWait - now.Sub(m.firstAt); left < wait {
		wait = left
	}
	if wait < 0 {
		wait = 0
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.gen++
	gen := m.gen
	m.timer = time.AfterFunc(wait, func() { m.onTimer(gen) })
}

func (m *Manager) onTimer(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	batch := m.takeLocked()
	m.mu.Unlock()
	m.send(context.Background(), batch)
}

// takeLocked snapshots and clears the pending queue and registers the flush.
func (m *Manager) takeLocked() []*Call {
	batch := m.pending
	m.pending = nil
	m.firstAt = time.Time{}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
	if len(batch) > 0 {
		m.flushing.Add(1)
	}
	return batch
}

// Flush sends all pending requests now and waits for that batch to settle.
func (m *Manager) Flush(ctx context.Context) {
	m.mu.Lock()
	batch := m.takeLocked()
	m.mu.Unlock()
	m.send(ctx, batch)
}

// Pending reports the number of enqueued, unflushed requests.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close rejects further Adds, flushes what is pending and waits for in-flight
// batches to settle or ctx to end.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	batch := m.takeLocked()
	m.mu.Unlock()
	m.send(ctx, batch)

	done := make(chan struct{})
	go func() {
		m.flushing.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send performs one batch call and settles every call in it.
func (m *Manager) send(ctx context.Context, batch []*Call) {
	if len(batch) == 0 {
		return
	}
	defer m.flushing.Done()

	if m.flushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.flushTimeout)
		defer cancel()
	}

	req := domain.BatchRequest{Requests: make([]domain.SubRequest, len(batch))}
	for i, c := range batch {
		req.Requests[i] = domain.SubRequest{ID: c.ID, Type: c.Kind, Body: c.body}
	}
	flushesTotal.Inc()
	flushSize.Observe(float64(len(batch)))
	m.log.Debug().Int("requests", len(batch)).Msg("coordinator: flushing batch")

	resp, err := m.transport.Send(ctx, req)
	if err != nil {
		m.log.Warn().Err(err).Int("requests", len(batch)).Msg("coordinator: batch call failed")
		for _, c := range batch {
			m.finish(c, nil, err)
		}
		return
	}

	byID := make(map[string]domain.SubResponse, len(resp.Responses))
	for _, r := range resp.Responses {
		byID[r.ID] = r
	}
	for _, c := range batch {
		r, ok := byID[c.ID]
		switch {
		case !ok:
			m.finish(c, nil, ErrNoResponse)
		case r.Error != "":
			m.finish(c, nil, &SubRequestError{ID: c.ID, Message: r.Error})
		default:
			m.finish(c, r.Data, nil)
		}
	}
}

// finish clears the dedupe entry, stamps the throttle record on success, and
// settles the call.
func (m *Manager) finish(c *Call, data json.RawMessage, err error) {
	m.mu.Lock()
	if m.inflight[c.Key] == c {
		delete(m.inflight, c.Key)
	}
	if err == nil && m.cooldown > 0 {
		m.completed[c.Key] = m.now()
	}
	m.mu.Unlock()
	c.settle(data, err)
}

func toRaw(body any) (json.RawMessage, error) {
	switch b := body.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return json.RawMessage(b), nil
	default:
		return json.Marshal(body)
	}
}
