package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/rivale/cache"
	"github.com/hazyhaar/rivale/extract"
)

// Tier pairs a strategy with its per-attempt timeout budget.
type Tier struct {
	Strategy Strategy
	Budget   time.Duration
}

// LayeredConfig configures the layered fetcher.
type LayeredConfig struct {
	// MinContent is the minimum readable text length (runes) a strategy
	// must produce to count as a success. Default: 500.
	MinContent int

	// Cache holds successful results keyed by target hash. Optional;
	// nil disables caching.
	Cache *cache.Cache[Result]

	Logger *slog.Logger
}

func (c LayeredConfig) defaults() LayeredConfig {
	if c.MinContent <= 0 {
		c.MinContent = 500
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Layered applies the strategy chain to one target: cache first, then each
// tier in order, stopping at the first usable result. Fetch never returns
// an error; every failure mode is captured in the Result.
type Layered struct {
	cfg      LayeredConfig
	tiers    []Tier
	renderer *extract.Renderer

	now func() time.Time
}

// NewLayered creates a layered fetcher over the given tiers, tried in
// order.
func NewLayered(cfg LayeredConfig, tiers ...Tier) *Layered {
	return &Layered{
		cfg:      cfg.defaults(),
		tiers:    tiers,
		renderer: extract.NewRenderer(),
		now:      time.Now,
	}
}

// Fetch resolves one target. A cache hit short-circuits the whole chain;
// only successes are cached.
func (l *Layered) Fetch(ctx context.Context, target string) Result {
	key := cache.Key(target)
	if l.cfg.Cache != nil {
		if res, ok := l.cfg.Cache.Get(key); ok {
			return res
		}
	}

	res := l.runChain(ctx, target, l.tiers)
	if res.Succeeded && l.cfg.Cache != nil {
		l.cfg.Cache.Put(key, res)
	}
	return res
}

// Refetch is the Wave-2 fallback: it retries the lightest tier with each
// of the decreasing budgets, stopping at the first success. The cache is
// bypassed on read (the target already failed once this run) but updated
// on success.
func (l *Layered) Refetch(ctx context.Context, target string, budgets []time.Duration) Result {
	if len(l.tiers) == 0 {
		return l.failure(target, 0, fmt.Errorf("fetch: no strategies configured"))
	}

	last := l.tiers[len(l.tiers)-1]
	var res Result
	for _, budget := range budgets {
		res = l.runChain(ctx, target, []Tier{{Strategy: last.Strategy, Budget: budget}})
		if res.Succeeded {
			if l.cfg.Cache != nil {
				l.cfg.Cache.Put(cache.Key(target), res)
			}
			return res
		}
	}
	return res
}

func (l *Layered) runChain(ctx context.Context, target string, tiers []Tier) Result {
	log := l.cfg.Logger
	var lastErr error
	tried := 0

	for _, tier := range tiers {
		tried++
		start := l.now()
		html, err := tier.Strategy.Fetch(ctx, target, tier.Budget)
		if err != nil {
			lastErr = err
			log.Debug("fetch: strategy failed",
				"target", target,
				"strategy", tier.Strategy.Name(),
				"elapsed", l.now().Sub(start),
				"error", err)
			continue
		}

		page, err := extract.Parse([]byte(html))
		if err != nil {
			lastErr = err
			continue
		}
		if page.TextLen() < l.cfg.MinContent {
			lastErr = fmt.Errorf("%w: %d runes from %s",
				ErrInsufficientContent, page.TextLen(), tier.Strategy.Name())
			continue
		}

		log.Debug("fetch: strategy succeeded",
			"target", target,
			"strategy", tier.Strategy.Name(),
			"text_len", page.TextLen())

		return Result{
			Target:          target,
			Succeeded:       true,
			Title:           page.Title,
			Text:            page.Text,
			Weighted:        page.Weighted(),
			Markdown:        l.renderer.Render(html, target, page.Text),
			StrategyUsed:    tier.Strategy.Name(),
			StrategiesTried: tried,
			FetchedAt:       l.now(),
		}
	}

	return l.failure(target, tried, lastErr)
}

func (l *Layered) failure(target string, tried int, err error) Result {
	reason := Categorize(err)
	detail := reason.Describe()
	if err != nil {
		detail = fmt.Sprintf("%s (%v)", detail, err)
	}
	return Result{
		Target:          target,
		Succeeded:       false,
		StrategiesTried: tried,
		FailureReason:   reason,
		FailureDetail:   detail,
		FetchedAt:       l.now(),
	}
}
