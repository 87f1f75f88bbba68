package analysis

import (
	"github.com/hazyhaar/rivale/classify"
	"github.com/hazyhaar/rivale/fetch"
)

// EventType discriminates the events on a run's stream.
type EventType string

const (
	// EventBatchInfo is emitted once, before the first batch, and only
	// when the run spans more than one batch.
	EventBatchInfo EventType = "batch_info"
	// EventBatchStart and EventBatchComplete bracket each batch.
	EventBatchStart    EventType = "batch_start"
	EventBatchComplete EventType = "batch_complete"
	// EventProgress is emitted per target as Wave 1 fetches complete,
	// in completion order.
	EventProgress EventType = "progress"
	// EventResult and EventError are emitted per target as Wave 2
	// settles it, one or the other, never both.
	EventResult EventType = "result"
	EventError  EventType = "error"
	// EventComplete closes the stream with the aggregated summary.
	EventComplete EventType = "complete"
)

// Event is one element of a run's event stream. Fields are populated
// according to Type; unused fields stay empty.
type Event struct {
	Type EventType `json:"event"`

	// batch_info / batch_start / batch_complete
	TotalTargets   int `json:"total_targets,omitempty"`
	BatchCount     int `json:"batch_count,omitempty"`
	BatchIndex     int `json:"batch_index,omitempty"` // 1-based
	BatchSize      int `json:"batch_size,omitempty"`
	SitesProcessed int `json:"sites_processed,omitempty"`

	// progress
	Current   int   `json:"current,omitempty"`
	Total     int   `json:"total,omitempty"`
	Succeeded *bool `json:"succeeded,omitempty"`

	// progress / result / error
	Target string `json:"target,omitempty"`

	// result
	Category classify.Category `json:"category,omitempty"`
	Score    *int              `json:"score,omitempty"`

	// error
	Reason string `json:"reason,omitempty"`

	// complete
	Summary *Summary `json:"summary,omitempty"`
}

// TargetResult is one classified target in the final summary.
type TargetResult struct {
	Target   string             `json:"target"`
	Title    string             `json:"title,omitempty"`
	Category classify.Category  `json:"category"`
	Score    int                `json:"score"`
	Reason   string             `json:"reason,omitempty"`
	Strategy fetch.StrategyName `json:"strategy,omitempty"`
}

// FailedItem is one target that could not be fetched or classified.
type FailedItem struct {
	Target string       `json:"target"`
	Reason fetch.Reason `json:"reason"`
	Detail string       `json:"detail"`
}

// CategoryCounts tallies classified targets per bucket.
type CategoryCounts struct {
	Direct    int `json:"direct"`
	Potential int `json:"potential"`
	Non       int `json:"non"`
}

// Summary is the payload of the complete event. Every target of the run
// appears exactly once, either in Results or in FailedItems.
type Summary struct {
	RunID        string         `json:"run_id"`
	TotalTargets int            `json:"total_targets"`
	AverageScore float64        `json:"average_score"`
	Categorized  CategoryCounts `json:"categorized"`
	Results      []TargetResult `json:"results"`
	FailedItems  []FailedItem   `json:"failed_items"`
}
