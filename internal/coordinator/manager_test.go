package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// stubTransport records batches and answers through respond.
type stubTransport struct {
	mu      sync.Mutex
	batches []domain.BatchRequest
	respond func(domain.BatchRequest) (domain.BatchResponse, error)
}

func (s *stubTransport) Send(_ context.Context, b domain.BatchRequest) (domain.BatchResponse, error) {
	s.mu.Lock()
	s.batches = append(s.batches, b)
	s.mu.Unlock()
	if s.respond != nil {
		return s.respond(b)
	}
	return echo(b), nil
}

func (s *stubTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// echo answers every sub-request with {"type": <type>}.
func echo(b domain.BatchRequest) domain.BatchResponse {
	out := domain.BatchResponse{}
	for _, r := range b.Requests {
		data, _ := json.Marshal(map[string]string{"type": string(r.Type)})
		out.Responses = append(out.Responses, domain.SubResponse{ID: r.ID, Data: data})
	}
	return out
}

func newTestManager(t *testing.T, tr Transport, opts ...Option) *Manager {
	t.Helper()
	base := []Option{WithDelay(time.Hour), WithMaxWait(time.Hour), WithLogger(zerolog.Nop())}
	m := New(tr, append(base, opts...)...)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func geoBody(lat float64) map[string]any {
	return map[string]any{"latitude": lat, "longitude": -72.6734, "categories": []string{"grocery stores"}}
}

func TestAdd_CoalescesIdenticalRequests(t *testing.T) {
	tr := &stubTransport{}
	m := newTestManager(t, tr)
	ctx := context.Background()

	first, err := m.Add(ctx, domain.TypeGenerateRecommendations, geoBody(41.7658))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	for i := 0; i < 4; i++ {
		c, err := m.Add(ctx, domain.TypeGenerateRecommendations, geoBody(41.7658))
		if err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
		if c != first {
			t.Fatalf("Add #%d returned a different call", i)
		}
	}
	if got := m.Pending(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	m.Flush(ctx)

	if tr.calls() != 1 {
		t.Fatalf("transport calls = %d, want 1", tr.calls())
	}
	if n := len(tr.batches[0].Requests); n != 1 {
		t.Fatalf("batch size = %d, want 1", n)
	}
	data, err := first.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if string(data) != `{"type":"generate-recommendations"}` {
		t.Fatalf("data = %s", data)
	}
}

func TestAdd_SameKindDifferentBodiesAreSeparate(t *testing.T) {
	tr := &stubTransport{}
	m := newTestManager(t, tr)
	ctx := context.Background()

	a, _ := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "1 Main St"})
	b, _ := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "2 Main St"})
	c, _ := m.Add(ctx, domain.TypeFilterRecommendations, domain.GeocodeRequest{Address: "1 Main St"})
	if a == b || a == c {
		t.Fatal("distinct requests were coalesced")
	}
	m.Flush(ctx)
	if n := len(tr.batches[0].Requests); n != 3 {
		t.Fatalf("batch size = %d, want 3", n)
	}
}

func TestDedupeKey_RoundsCoordinates(t *testing.T) {
	a, _ := json.Marshal(geoBody(41.76581))
	b, _ := json.Marshal(geoBody(41.76579))
	ka, err := DedupeKey(domain.TypeGenerateRecommendations, a)
	if err != nil {
		t.Fatal(err)
	}
	kb, _ := DedupeKey(domain.TypeGenerateRecommendations, b)
	if ka != kb {
		t.Fatalf("keys differ:\n%s\n%s", ka, kb)
	}

	c, _ := json.Marshal(geoBody(41.7672))
	kc, _ := DedupeKey(domain.TypeGenerateRecommendations, c)
	if kc == ka {
		t.Fatal("distinct rounded coordinates collided")
	}
}

func TestDedupeKey_NestedCoordinatesAndKeyOrder(t *testing.T) {
	a := json.RawMessage(`{"coordinates":{"lat":41.76581,"lng":-72.67341},"categories":["parks"]}`)
	b := json.RawMessage(`{"categories":["parks"],"coordinates":{"lng":-72.67339,"lat":41.76579}}`)
	ka, _ := DedupeKey(domain.TypeFilterRecommendations, a)
	kb, _ := DedupeKey(domain.TypeFilterRecommendations, b)
	if ka != kb {
		t.Fatalf("keys differ:\n%s\n%s", ka, kb)
	}
	if _, err := DedupeKey(domain.TypeFilterRecommendations, json.RawMessage(`{bad`)); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestAdd_ThrottlesAfterSuccess(t *testing.T) {
	clk := newFakeClock()
	tr := &stubTransport{}
	m := newTestManager(t, tr, WithClock(clk.Now))
	ctx := context.Background()

	c, err := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "Hartford, CT"})
	if err != nil {
		t.Fatal(err)
	}
	m.Flush(ctx)
	if _, err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	clk.Advance(time.Second)
	if _, err := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "Hartford, CT"}); !errors.Is(err, ErrThrottled) {
		t.Fatalf("err = %v, want ErrThrottled", err)
	}
	if err := ErrThrottled; err.Error() != "Rate limited: Similar request made recently" {
		t.Fatalf("message = %q", err.Error())
	}
	m.Flush(ctx)
	if tr.calls() != 1 {
		t.Fatalf("transport calls = %d, want 1", tr.calls())
	}

	clk.Advance(5 * time.Minute)
	c, err = m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "Hartford, CT"})
	if err != nil {
		t.Fatalf("Add after cooldown: %v", err)
	}
	m.Flush(ctx)
	if _, err := c.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if tr.calls() != 2 {
		t.Fatalf("transport calls = %d, want 2", tr.calls())
	}
}

func TestAdd_FailureDoesNotThrottle(t *testing.T) {
	clk := newFakeClock()
	boom := errors.New("connection reset")
	tr := &stubTransport{respond: func(domain.BatchRequest) (domain.BatchResponse, error) {
		return domain.BatchResponse{}, boom
	}}
	m := newTestManager(t, tr, WithClock(clk.Now))
	ctx := context.Background()

	a, _ := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "a"})
	b, _ := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "b"})
	m.Flush(ctx)

	for _, c := range []*Call{a, b} {
		if _, err := c.Wait(ctx); !errors.Is(err, boom) {
			t.Fatalf("err = %v, want %v", err, boom)
		}
	}

	clk.Advance(time.Second)
	again, err := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "a"})
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if again == a {
		t.Fatal("settled call was reused")
	}
}

func TestFlush_CorrelatesReorderedResponses(t *testing.T) {
	tr := &stubTransport{respond: func(b domain.BatchRequest) (domain.BatchResponse, error) {
		resp := echo(b)
		// reverse, and turn the middle request into an error
		r := resp.Responses
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		r[1] = domain.SubResponse{ID: r[1].ID, Error: "downstream returned 502"}
		return resp, nil
	}}
	m := newTestManager(t, tr)
	ctx := context.Background()

	gen, _ := m.Add(ctx, domain.TypeGenerateRecommendations, geoBody(41.7))
	fil, _ := m.Add(ctx, domain.TypeFilterRecommendations, map[string]any{"filters": []string{"vegan"}})
	gc, _ := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "x"})
	m.Flush(ctx)

	data, err := gen.Wait(ctx)
	if err != nil || string(data) != `{"type":"generate-recommendations"}` {
		t.Fatalf("generate: %s, %v", data, err)
	}
	_, err = fil.Wait(ctx)
	var se *SubRequestError
	if !errors.As(err, &se) || se.Message != "downstream returned 502" || se.ID != fil.ID {
		t.Fatalf("filter err = %v", err)
	}
	data, err = gc.Wait(ctx)
	if err != nil || string(data) != `{"type":"geocode-address"}` {
		t.Fatalf("geocode: %s, %v", data, err)
	}
}

func TestFlush_MissingResponse(t *testing.T) {
	tr := &stubTransport{respond: func(b domain.BatchRequest) (domain.BatchResponse, error) {
		resp := echo(b)
		resp.Responses = resp.Responses[:1]
		return resp, nil
	}}
	m := newTestManager(t, tr)
	ctx := context.Background()

	a, _ := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "a"})
	b, _ := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "b"})
	m.Flush(ctx)

	if _, err := a.Wait(ctx); err != nil {
		t.Fatalf("a: %v", err)
	}
	if _, err := b.Wait(ctx); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("b err = %v, want ErrNoResponse", err)
	}
}

func TestDebounce_FlushesAfterDelay(t *testing.T) {
	tr := &stubTransport{}
	m := New(tr, WithDelay(20*time.Millisecond), WithLogger(zerolog.Nop()))
	defer m.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := m.Invoke(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "a"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty data")
	}
}

func TestMaxWait_CapsDeferral(t *testing.T) {
	clk := newFakeClock()
	tr := &stubTransport{}
	m := New(tr,
		WithDelay(time.Hour),
		WithMaxWait(5*time.Second),
		WithClock(clk.Now),
		WithLogger(zerolog.Nop()),
	)
	defer m.Close(context.Background())
	ctx := context.Background()

	first, _ := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "a"})
	clk.Advance(4990 * time.Millisecond)
	// A later arrival restarts the debounce but cannot push past firstAt+maxWait.
	second, _ := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "b"})

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := first.Wait(wctx); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := second.Wait(wctx); err != nil {
		t.Fatalf("second: %v", err)
	}
	if tr.calls() != 1 {
		t.Fatalf("transport calls = %d, want 1", tr.calls())
	}
}

func TestClose_RejectsNewRequests(t *testing.T) {
	tr := &stubTransport{}
	m := New(tr, WithDelay(time.Hour), WithLogger(zerolog.Nop()))
	ctx := context.Background()

	c, _ := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "a"})
	if err := m.Close(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("pending call not settled by Close")
	}
	if _, err := m.Add(ctx, domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "b"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestWait_ContextCancel(t *testing.T) {
	m := newTestManager(t, &stubTransport{})
	c, _ := m.Add(context.Background(), domain.TypeGeocodeAddress, domain.GeocodeRequest{Address: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
