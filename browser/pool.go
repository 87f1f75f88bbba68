// Package browser manages a small pool of reusable headless-browser
// sessions: acquisition with a wait timeout, request-count-based renewal,
// per-domain navigation timeout overrides, and tracked shutdown.
//
// The pool size is the concurrency ceiling for the heaviest fetch strategy.
// Sessions are renewed out of band after a configurable number of requests;
// a caller holding the old session finishes its request undisturbed.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/rivale/idgen"
)

// ErrPoolExhausted is returned by Acquire when no session frees up within
// the configured wait timeout.
var ErrPoolExhausted = errors.New("browser: session pool exhausted")

// ErrPoolClosed is returned by Acquire after Shutdown.
var ErrPoolClosed = errors.New("browser: pool is closed")

// Handle is one stateful browser session's capability: navigate to a URL
// and return the rendered DOM. Implemented by rod incognito contexts in
// production and by fakes in tests.
type Handle interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (html string, err error)
	Close() error
}

// Factory opens a fresh Handle. Called at pool start and on each renewal.
type Factory func(ctx context.Context) (Handle, error)

// Config configures a Pool.
type Config struct {
	// Size is the fixed number of sessions. Default: 3.
	Size int

	// MaxRequests per session before it is renewed. Default: 8.
	MaxRequests int

	// AcquireTimeout bounds the wait for a free session. Default: 30s.
	AcquireTimeout time.Duration

	// NavTimeout is the default navigation budget per fetch. Default: 15s.
	NavTimeout time.Duration

	// DomainTimeouts overrides NavTimeout for specific hostnames
	// (with or without a "www." prefix).
	DomainTimeouts map[string]time.Duration

	// Factory opens sessions. Required.
	Factory Factory

	// NewID generates session IDs. Default: 8-char NanoID with "sess_" prefix.
	NewID idgen.Generator

	Logger *slog.Logger
}

func (c Config) defaults() Config {
	if c.Size <= 0 {
		c.Size = 3
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = 8
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 15 * time.Second
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("sess_", idgen.NanoID(8))
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Session is one pooled browser session. Owned by the Pool; callers hold it
// only between Acquire and Release.
type Session struct {
	id        string
	handle    Handle
	requests  int
	createdAt time.Time
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Fetch navigates the session to url and returns the rendered DOM.
func (s *Session) Fetch(ctx context.Context, url string, timeout time.Duration) (string, error) {
	return s.handle.Fetch(ctx, url, timeout)
}

// Pool is a fixed-size session pool. Construct with NewPool, then Start.
type Pool struct {
	cfg      Config
	sessions chan *Session

	renewals    sync.WaitGroup
	renewCtx    context.Context
	renewCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewPool creates a Pool. Call Start to open the sessions.
func NewPool(cfg Config) (*Pool, error) {
	cfg = cfg.defaults()
	if cfg.Factory == nil {
		return nil, fmt.Errorf("browser: pool requires a session factory")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:         cfg,
		sessions:    make(chan *Session, cfg.Size),
		renewCtx:    ctx,
		renewCancel: cancel,
	}, nil
}

// Start opens Size sessions. On failure it closes any sessions already
// opened and returns the error.
func (p *Pool) Start(ctx context.Context) error {
	opened := make([]*Session, 0, p.cfg.Size)
	for i := 0; i < p.cfg.Size; i++ {
		h, err := p.cfg.Factory(ctx)
		if err != nil {
			for _, s := range opened {
				s.handle.Close()
			}
			return fmt.Errorf("browser: open session %d: %w", i+1, err)
		}
		s := &Session{id: p.cfg.NewID(), handle: h, createdAt: time.Now()}
		opened = append(opened, s)
		p.sessions <- s
	}
	p.cfg.Logger.Info("browser: pool started", "size", p.cfg.Size)
	return nil
}

// Acquire returns a free session, waiting up to AcquireTimeout. It returns
// ErrPoolExhausted on wait timeout and ctx.Err() on caller cancellation.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case s := <-p.sessions:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrPoolExhausted
	}
}

// Release returns a session to the pool. Once the session has served
// MaxRequests, Release schedules an out-of-band renewal instead: a
// replacement is opened and swapped in, then the old session is closed.
func (p *Pool) Release(s *Session) {
	s.requests++

	if p.isClosed() {
		s.handle.Close()
		return
	}

	if s.requests >= p.cfg.MaxRequests {
		p.renewals.Add(1)
		go p.renew(s)
		return
	}
	p.offer(s)
}

// TimeoutFor returns the navigation budget for a target: the per-domain
// override when one is configured, otherwise the caller's fallback budget,
// otherwise the pool default.
func (p *Pool) TimeoutFor(target string, fallback time.Duration) time.Duration {
	if u, err := url.Parse(target); err == nil {
		host := strings.ToLower(u.Hostname())
		if d, ok := p.cfg.DomainTimeouts[host]; ok {
			return d
		}
		if d, ok := p.cfg.DomainTimeouts[strings.TrimPrefix(host, "www.")]; ok {
			return d
		}
	}
	if fallback > 0 {
		return fallback
	}
	return p.cfg.NavTimeout
}

// Shutdown cancels in-flight renewals, waits for them to settle, and closes
// every session. The pool is unusable afterwards.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.renewCancel()
	p.renewals.Wait()

	for {
		select {
		case s := <-p.sessions:
			if err := s.handle.Close(); err != nil {
				p.cfg.Logger.Warn("browser: close session", "session", s.id, "error", err)
			}
		default:
			p.cfg.Logger.Info("browser: pool shut down")
			return
		}
	}
}

func (p *Pool) renew(old *Session) {
	defer p.renewals.Done()
	log := p.cfg.Logger

	h, err := p.cfg.Factory(p.renewCtx)
	if err != nil {
		// Keep pool capacity: reset the old session and reuse it.
		log.Warn("browser: renewal failed, reusing session",
			"session", old.id, "error", err)
		old.requests = 0
		p.offer(old)
		return
	}

	fresh := &Session{id: p.cfg.NewID(), handle: h, createdAt: time.Now()}
	p.offer(fresh)

	if err := old.handle.Close(); err != nil {
		log.Warn("browser: close renewed session", "session", old.id, "error", err)
	}
	log.Debug("browser: session renewed", "old", old.id, "new", fresh.id)
}

// offer puts a session back into the pool, closing it instead if the pool
// shut down meanwhile.
func (p *Pool) offer(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		s.handle.Close()
		return
	}
	p.sessions <- s
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
