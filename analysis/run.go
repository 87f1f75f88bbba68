package analysis

import (
	"math"

	"github.com/hazyhaar/rivale/classify"
)

// BatchPlan is the read-only split of a run's targets into sequential
// batches. Derived once at planning time.
type BatchPlan struct {
	Targets    []string
	BatchSize  int
	BatchCount int
}

// newBatchPlan splits targets into batches of at most size. A list at or
// under the threshold stays a single batch.
func newBatchPlan(targets []string, size int) BatchPlan {
	count := (len(targets) + size - 1) / size
	if count < 1 {
		count = 1
	}
	return BatchPlan{Targets: targets, BatchSize: size, BatchCount: count}
}

// Batch returns the i-th (0-based) batch slice.
func (p BatchPlan) Batch(i int) []string {
	start := i * p.BatchSize
	end := start + p.BatchSize
	if end > len(p.Targets) {
		end = len(p.Targets)
	}
	return p.Targets[start:end]
}

// runState accumulates one run's outcomes across batches. Mutated only by
// the orchestrator goroutine; finalized into an immutable Summary.
type runState struct {
	processed int
	results   []TargetResult
	failures  []FailedItem
	scoreSum  int
}

func (st *runState) addResult(r TargetResult) {
	st.processed++
	st.results = append(st.results, r)
	st.scoreSum += r.Score
}

func (st *runState) addFailure(f FailedItem) {
	st.processed++
	st.failures = append(st.failures, f)
}

func (st *runState) summary(runID string, total int) *Summary {
	s := &Summary{
		RunID:        runID,
		TotalTargets: total,
		Results:      st.results,
		FailedItems:  st.failures,
	}
	if s.FailedItems == nil {
		s.FailedItems = []FailedItem{}
	}
	if s.Results == nil {
		s.Results = []TargetResult{}
	}
	for _, r := range st.results {
		switch r.Category {
		case classify.Direct:
			s.Categorized.Direct++
		case classify.Potential:
			s.Categorized.Potential++
		default:
			s.Categorized.Non++
		}
	}
	if n := len(st.results); n > 0 {
		s.AverageScore = math.Round(float64(st.scoreSum)/float64(n)*10) / 10
	}
	return s
}
