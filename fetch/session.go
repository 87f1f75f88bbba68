package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/rivale/browser"
	"github.com/hazyhaar/rivale/webguard"
)

// Pooled is the heaviest strategy tier: it acquires a session from the
// browser pool, fetches the rendered DOM, and releases the session. The
// pool's size is this tier's concurrency ceiling; per-domain timeout
// overrides from the pool take precedence over the strategy budget.
type Pooled struct {
	pool     *browser.Pool
	validate func(string) error
}

// NewPooled creates the session-pool strategy.
func NewPooled(pool *browser.Pool) *Pooled {
	return &Pooled{pool: pool, validate: webguard.ValidateURL}
}

func (p *Pooled) Name() StrategyName { return StrategySessionPool }

// Fetch renders target through a pooled browser session. Pool exhaustion
// surfaces as browser.ErrPoolExhausted and is categorized accordingly.
func (p *Pooled) Fetch(ctx context.Context, target string, budget time.Duration) (string, error) {
	if err := p.validate(target); err != nil {
		return "", err
	}

	s, err := p.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch: acquire session: %w", err)
	}
	defer p.pool.Release(s)

	timeout := p.pool.TimeoutFor(target, budget)
	html, err := s.Fetch(ctx, target, timeout)
	if err != nil {
		return "", fmt.Errorf("fetch: session %s: %w", s.ID(), err)
	}
	return html, nil
}
