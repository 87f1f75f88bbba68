// Package analysis implements the two-wave bulk orchestrator that drives
// the fetch-and-classify pipeline across hundreds of targets.
//
// A run plans (normalize, dedupe, batch), then per batch runs Wave 1
// (bounded-concurrency fetches, progress streamed in completion order) and
// Wave 2 (bounded-concurrency classification, with a fallback re-fetch for
// Wave-1 failures), and finally emits a complete event with the aggregated
// summary. Individual target failures are recorded, never fatal; only an
// empty plan aborts a run.
//
// Usage sketch:
//
//	svc := analysis.New(layered, classify.NewKeyword(), analysis.Config{Cache: c})
//	events, err := svc.StartRun(ctx, targets, keywords)
//	for ev := range events { ... }
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/rivale/cache"
	"github.com/hazyhaar/rivale/classify"
	"github.com/hazyhaar/rivale/fetch"
	"github.com/hazyhaar/rivale/idgen"
)

// Fetcher is the layered-fetcher boundary the orchestrator depends on.
// Implemented by fetch.Layered.
type Fetcher interface {
	Fetch(ctx context.Context, target string) fetch.Result
	Refetch(ctx context.Context, target string, budgets []time.Duration) fetch.Result
}

// Recorder receives every fetch outcome for the fetch log. Implemented by
// fetchlog.Store.
type Recorder interface {
	Insert(ctx context.Context, res fetch.Result, duration time.Duration) error
}

// Config configures the orchestrator. The three concurrency bounds are
// independent: they protect outbound connections, the classifier, and the
// re-fetch path respectively; the session pool bounds its own tier
// internally.
type Config struct {
	// FetchConcurrency bounds simultaneous Wave-1 fetch chains. Default: 10.
	FetchConcurrency int

	// ClassifyConcurrency bounds simultaneous Wave-2 classifications.
	// Default: 5.
	ClassifyConcurrency int

	// RefetchConcurrency bounds simultaneous Wave-2 fallback re-fetches.
	// Default: 3.
	RefetchConcurrency int

	// RefetchBudgets is the decreasing timeout sequence for the fallback
	// re-fetch. Default: 8s, 5s, 3s.
	RefetchBudgets []time.Duration

	// ClassifyTimeout is the absolute wall-clock bound per classification,
	// enforced even against a classifier that ignores its context.
	// Default: 60s.
	ClassifyTimeout time.Duration

	// BatchThreshold is the per-batch target count. Default: 100.
	BatchThreshold int

	// Cache backs CacheStats. Optional; the fetcher owns the cache itself.
	Cache *cache.Cache[fetch.Result]

	// Recorder receives fetch outcomes for the fetch log. Optional.
	Recorder Recorder

	// NewID generates run IDs. Default: "run_" + UUIDv7.
	NewID idgen.Generator

	Logger *slog.Logger
}

func (c Config) defaults() Config {
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 10
	}
	if c.ClassifyConcurrency <= 0 {
		c.ClassifyConcurrency = 5
	}
	if c.RefetchConcurrency <= 0 {
		c.RefetchConcurrency = 3
	}
	if len(c.RefetchBudgets) == 0 {
		c.RefetchBudgets = []time.Duration{8 * time.Second, 5 * time.Second, 3 * time.Second}
	}
	if c.ClassifyTimeout <= 0 {
		c.ClassifyTimeout = 60 * time.Second
	}
	if c.BatchThreshold <= 0 {
		c.BatchThreshold = 100
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("run_", idgen.UUIDv7())
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Service runs bulk analyses. Each Service owns its collaborators; two
// Services never share state, so concurrent runs on separate instances
// cannot cross-talk.
type Service struct {
	cfg        Config
	fetcher    Fetcher
	classifier classify.Classifier
}

// New creates a Service.
func New(fetcher Fetcher, classifier classify.Classifier, cfg Config) *Service {
	return &Service{
		cfg:        cfg.defaults(),
		fetcher:    fetcher,
		classifier: classifier,
	}
}

// CacheStats exposes the result cache counters for introspection.
func (s *Service) CacheStats() cache.Stats {
	if s.cfg.Cache == nil {
		return cache.Stats{}
	}
	return s.cfg.Cache.Stats()
}

// StartRun plans a run and starts it. The returned channel streams typed
// events and is closed after the complete event. Planning failures (no
// valid targets, no keywords) abort before any event is emitted.
func (s *Service) StartRun(ctx context.Context, targets, keywords []string) (<-chan Event, error) {
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}

	valid, rejected := planTargets(targets)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: %d addresses rejected", ErrNoTargets, rejected)
	}

	plan := newBatchPlan(valid, s.cfg.BatchThreshold)
	runID := s.cfg.NewID()

	if rejected > 0 {
		s.cfg.Logger.Warn("analysis: rejected invalid targets",
			"run", runID, "rejected", rejected, "valid", len(valid))
	}

	events := make(chan Event, 32)
	go s.run(ctx, runID, plan, keywords, events)
	return events, nil
}

func (s *Service) run(ctx context.Context, runID string, plan BatchPlan, keywords []string, events chan<- Event) {
	defer close(events)

	log := s.cfg.Logger.With("run", runID)
	start := time.Now()
	state := &runState{}

	log.Info("analysis: run started",
		"targets", len(plan.Targets), "batches", plan.BatchCount)

	if plan.BatchCount > 1 {
		s.emit(ctx, events, Event{
			Type:         EventBatchInfo,
			TotalTargets: len(plan.Targets),
			BatchCount:   plan.BatchCount,
		})
	}

	// Batches run strictly sequentially: batch N+1 starts only after
	// batch N finished both waves.
	for i := 0; i < plan.BatchCount; i++ {
		batch := plan.Batch(i)
		s.emit(ctx, events, Event{
			Type:       EventBatchStart,
			BatchIndex: i + 1,
			BatchCount: plan.BatchCount,
			BatchSize:  len(batch),
		})

		fetched := s.wave1(ctx, batch, events)
		s.wave2(ctx, batch, fetched, keywords, state, events)

		s.emit(ctx, events, Event{
			Type:           EventBatchComplete,
			BatchIndex:     i + 1,
			SitesProcessed: state.processed,
		})
	}

	summary := state.summary(runID, len(plan.Targets))
	s.emit(ctx, events, Event{Type: EventComplete, Summary: summary})

	log.Info("analysis: run complete",
		"classified", len(summary.Results),
		"failed", len(summary.FailedItems),
		"average_score", summary.AverageScore,
		"elapsed", time.Since(start))
}

// wave1 fetches every target in the batch under FetchConcurrency and
// emits a progress event per target in completion order.
func (s *Service) wave1(ctx context.Context, batch []string, events chan<- Event) map[string]fetch.Result {
	results := make(chan fetch.Result)
	sem := make(chan struct{}, s.cfg.FetchConcurrency)

	for _, target := range batch {
		go func(target string) {
			sem <- struct{}{}
			defer func() { <-sem }()

			t0 := time.Now()
			res := s.fetcher.Fetch(ctx, target)
			s.record(ctx, res, time.Since(t0))
			results <- res
		}(target)
	}

	fetched := make(map[string]fetch.Result, len(batch))
	for i := 1; i <= len(batch); i++ {
		res := <-results
		fetched[res.Target] = res
		succeeded := res.Succeeded
		s.emit(ctx, events, Event{
			Type:      EventProgress,
			Current:   i,
			Total:     len(batch),
			Target:    res.Target,
			Succeeded: &succeeded,
		})
	}
	return fetched
}

type settled struct {
	result *TargetResult
	failed *FailedItem
}

// wave2 classifies every target in the batch under ClassifyConcurrency,
// re-fetching Wave-1 failures first under RefetchConcurrency. Each target
// settles as exactly one result or one failure.
func (s *Service) wave2(ctx context.Context, batch []string, fetched map[string]fetch.Result, keywords []string, state *runState, events chan<- Event) {
	out := make(chan settled)
	classSem := make(chan struct{}, s.cfg.ClassifyConcurrency)
	refetchSem := make(chan struct{}, s.cfg.RefetchConcurrency)

	for _, target := range batch {
		go func(target string, res fetch.Result) {
			out <- s.settleOne(ctx, target, res, keywords, classSem, refetchSem)
		}(target, fetched[target])
	}

	for range batch {
		o := <-out
		if o.failed != nil {
			state.addFailure(*o.failed)
			s.emit(ctx, events, Event{
				Type:   EventError,
				Target: o.failed.Target,
				Reason: o.failed.Detail,
			})
			continue
		}
		state.addResult(*o.result)
		score := o.result.Score
		s.emit(ctx, events, Event{
			Type:     EventResult,
			Target:   o.result.Target,
			Category: o.result.Category,
			Score:    &score,
		})
	}
}

func (s *Service) settleOne(ctx context.Context, target string, res fetch.Result, keywords []string, classSem, refetchSem chan struct{}) settled {
	if !res.Succeeded {
		refetchSem <- struct{}{}
		t0 := time.Now()
		retry := s.fetcher.Refetch(ctx, target, s.cfg.RefetchBudgets)
		<-refetchSem
		s.record(ctx, retry, time.Since(t0))

		if !retry.Succeeded {
			return settled{failed: &FailedItem{
				Target: target,
				Reason: retry.FailureReason,
				Detail: retry.FailureDetail,
			}}
		}
		res = retry
	}

	classSem <- struct{}{}
	defer func() { <-classSem }()

	cr, err := s.classifyBounded(ctx, keywords, res.Weighted)
	if err != nil {
		return settled{failed: &FailedItem{
			Target: target,
			Reason: fetch.ReasonClassification,
			Detail: fmt.Sprintf("%s (%v)", fetch.ReasonClassification.Describe(), err),
		}}
	}

	return settled{result: &TargetResult{
		Target:   target,
		Title:    res.Title,
		Category: cr.Category,
		Score:    cr.Score,
		Reason:   cr.Reason,
		Strategy: res.StrategyUsed,
	}}
}

// classifyBounded enforces the absolute classification timeout with an
// independent timer, so even a classifier that ignores its context cannot
// stall the run. The abandoned goroutine exits when the classifier
// eventually returns.
func (s *Service) classifyBounded(ctx context.Context, keywords []string, content string) (classify.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.ClassifyTimeout)
	defer cancel()

	type reply struct {
		res classify.Result
		err error
	}
	done := make(chan reply, 1)
	go func() {
		r, err := s.classifier.Classify(cctx, keywords, content)
		done <- reply{r, err}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-cctx.Done():
		return classify.Result{}, fmt.Errorf("analysis: classification timed out after %s: %w",
			s.cfg.ClassifyTimeout, cctx.Err())
	}
}

func (s *Service) record(ctx context.Context, res fetch.Result, duration time.Duration) {
	if s.cfg.Recorder == nil {
		return
	}
	if err := s.cfg.Recorder.Insert(ctx, res, duration); err != nil {
		s.cfg.Logger.Warn("analysis: fetch log insert failed",
			"target", res.Target, "error", err)
	}
}

// emit sends ev unless the caller has stopped consuming and cancelled the
// context; events are then dropped so the run can still wind down.
func (s *Service) emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
