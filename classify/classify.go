// Package classify defines the classification boundary of the analysis
// pipeline and a keyword-based implementation.
//
// The orchestrator depends only on the Classifier interface; keyword-only,
// embedding-based, or remote implementations are interchangeable.
package classify

import (
	"context"
	"errors"
)

// Category buckets a classified target.
type Category string

const (
	// Direct marks a clear competitor (score above 60).
	Direct Category = "direct"
	// Potential marks a partial overlap (score 30 to 60).
	Potential Category = "potential"
	// NonCompetitor marks little or no overlap (score below 30).
	NonCompetitor Category = "non_competitor"
)

// Result is the outcome of classifying one target's content.
type Result struct {
	Category Category `json:"category"`
	Score    int      `json:"score"` // 0-100
	Reason   string   `json:"reason"`
	Matched  []string `json:"matched_keywords,omitempty"`
}

// ErrNoKeywords is returned when the keyword list is empty after cleanup.
var ErrNoKeywords = errors.New("classify: no usable keywords")

// Classifier scores content against a reference business's keywords.
// Implementations must honour ctx; calls may be abandoned on timeout.
type Classifier interface {
	Classify(ctx context.Context, keywords []string, content string) (Result, error)
}

// Categorize maps a 0-100 score to its category bucket.
func Categorize(score int) Category {
	switch {
	case score > 60:
		return Direct
	case score >= 30:
		return Potential
	default:
		return NonCompetitor
	}
}
