package analysis

import "errors"

// ErrNoTargets aborts a run whose target list is empty after
// normalization and dedup.
var ErrNoTargets = errors.New("analysis: no valid targets")

// ErrNoKeywords aborts a run started without classification keywords.
var ErrNoKeywords = errors.New("analysis: no keywords")

// ErrInvalidTarget marks a single address rejected at planning time.
var ErrInvalidTarget = errors.New("analysis: invalid target")
