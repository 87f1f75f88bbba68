package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeHandle struct {
	id     int
	mu     sync.Mutex
	closed bool
}

func (f *fakeHandle) Fetch(ctx context.Context, url string, timeout time.Duration) (string, error) {
	return "<html>ok</html>", nil
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeHandle) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeFactory hands out numbered handles and remembers all of them.
type fakeFactory struct {
	mu      sync.Mutex
	handles []*fakeHandle
	fail    bool
}

func (ff *fakeFactory) make(ctx context.Context) (Handle, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.fail {
		return nil, errors.New("factory down")
	}
	h := &fakeHandle{id: len(ff.handles)}
	ff.handles = append(ff.handles, h)
	return h, nil
}

func (ff *fakeFactory) setFail(fail bool) {
	ff.mu.Lock()
	ff.fail = fail
	ff.mu.Unlock()
}

func newTestPool(t *testing.T, cfg Config, ff *fakeFactory) *Pool {
	t.Helper()
	cfg.Factory = ff.make
	p, err := NewPool(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Shutdown)
	return p
}

// WHAT: Start opens exactly Size sessions; Acquire/Release cycles one.
func TestPoolAcquireRelease(t *testing.T) {
	ff := &fakeFactory{}
	p := newTestPool(t, Config{Size: 2}, ff)

	if len(ff.handles) != 2 {
		t.Fatalf("opened %d sessions, want 2", len(ff.handles))
	}

	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.ID() == "" {
		t.Error("session has no ID")
	}
	p.Release(s)

	again, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	p.Release(again)
}

// WHAT: with every session busy, Acquire fails with ErrPoolExhausted
// after the wait timeout.
func TestAcquireExhausted(t *testing.T) {
	ff := &fakeFactory{}
	p := newTestPool(t, Config{Size: 1, AcquireTimeout: 30 * time.Millisecond}, ff)

	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release(s)

	_, err = p.Acquire(context.Background())
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
}

// WHAT: caller cancellation wins over the pool wait timeout.
func TestAcquireCancelled(t *testing.T) {
	ff := &fakeFactory{}
	p := newTestPool(t, Config{Size: 1, AcquireTimeout: time.Minute}, ff)

	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release(s)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

// WHAT: after MaxRequests releases, the session is swapped for a fresh one
// and the old handle is closed.
func TestRenewalAfterMaxRequests(t *testing.T) {
	ff := &fakeFactory{}
	p := newTestPool(t, Config{Size: 1, MaxRequests: 2}, ff)
	first := ff.handles[0]

	for i := 0; i < 2; i++ {
		s, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		p.Release(s)
	}

	// The renewal runs out of band; the next Acquire gets the replacement.
	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release(s)

	if s.handle == first {
		t.Fatal("session was not renewed after MaxRequests")
	}
	if !first.isClosed() {
		t.Error("old handle not closed after renewal")
	}
}

// WHAT: if renewal cannot open a replacement, the old session is reset and
// reused so pool capacity never shrinks.
func TestRenewalFailureKeepsCapacity(t *testing.T) {
	ff := &fakeFactory{}
	p := newTestPool(t, Config{Size: 1, MaxRequests: 1}, ff)
	first := ff.handles[0]

	ff.setFail(true)

	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	p.Release(s) // triggers a renewal that fails

	again, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release(again)

	if again.handle != first {
		t.Fatal("expected the old session back after failed renewal")
	}
	if first.isClosed() {
		t.Error("reused session must not be closed")
	}
}

// WHAT: Shutdown waits for in-flight renewals and closes every session.
// WHY: fire-and-forget renewals would leak browser contexts on exit.
func TestShutdownClosesEverything(t *testing.T) {
	ff := &fakeFactory{}
	cfg := Config{Size: 2, MaxRequests: 1}
	cfg.Factory = ff.make
	p, err := NewPool(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Push one session through renewal so a renewal goroutine is in flight.
	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	p.Release(s)

	p.Shutdown()

	for i, h := range ff.handles {
		if !h.isClosed() {
			t.Errorf("handle %d not closed after shutdown", i)
		}
	}

	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Acquire after shutdown: err = %v, want ErrPoolClosed", err)
	}
}

// WHAT: with a pool of one, five concurrent workers never overlap inside
// the session; everyone completes after queueing on Acquire.
func TestPoolSerializesWorkers(t *testing.T) {
	ff := &fakeFactory{}
	p := newTestPool(t, Config{Size: 1, MaxRequests: 100, AcquireTimeout: 5 * time.Second}, ff)

	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := p.Acquire(context.Background())
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			cur := inFlight.Add(1)
			if cur > maxInFlight.Load() {
				maxInFlight.Store(cur)
			}
			_, _ = s.Fetch(context.Background(), fmt.Sprintf("https://example.com/%d", i), time.Second)
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			p.Release(s)
		}(i)
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxInFlight.Load())
	}
}

// WHAT: TimeoutFor honours per-domain overrides, with and without "www.",
// and falls back to the default budget.
func TestTimeoutFor(t *testing.T) {
	ff := &fakeFactory{}
	p := newTestPool(t, Config{
		Size:       1,
		NavTimeout: 15 * time.Second,
		DomainTimeouts: map[string]time.Duration{
			"slowbrand.it": 45 * time.Second,
		},
	}, ff)

	tests := []struct {
		target   string
		fallback time.Duration
		want     time.Duration
	}{
		{"https://slowbrand.it/products", 10 * time.Second, 45 * time.Second},
		{"https://www.slowbrand.it", 0, 45 * time.Second},
		{"https://example.com", 10 * time.Second, 10 * time.Second},
		{"https://example.com", 0, 15 * time.Second},
		{"not a url", 0, 15 * time.Second},
	}
	for _, tt := range tests {
		if got := p.TimeoutFor(tt.target, tt.fallback); got != tt.want {
			t.Errorf("TimeoutFor(%q, %v) = %v, want %v", tt.target, tt.fallback, got, tt.want)
		}
	}
}
