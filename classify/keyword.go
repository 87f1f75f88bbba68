package classify

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Keyword is a Classifier that scores content by keyword coverage and
// frequency. A single Aho-Corasick scan finds which keywords occur; the
// score is the fraction of keywords found, boosted by repeat occurrences.
type Keyword struct{}

// NewKeyword creates a keyword Classifier.
func NewKeyword() *Keyword {
	return &Keyword{}
}

// Classify scores content against keywords. Matching is case-insensitive
// and substring-based, so multi-word phrases match as phrases.
func (k *Keyword) Classify(ctx context.Context, keywords []string, content string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	cleaned := cleanKeywords(keywords)
	if len(cleaned) == 0 {
		return Result{}, ErrNoKeywords
	}

	lower := strings.ToLower(content)
	matcher := ahocorasick.NewStringMatcher(cleaned)
	hits := matcher.Match([]byte(lower))

	var (
		matched     []string
		occurrences int
	)
	for _, idx := range hits {
		kw := cleaned[idx]
		matched = append(matched, kw)
		occurrences += strings.Count(lower, kw)
	}

	unique := len(matched)
	if unique == 0 {
		return Result{
			Category: NonCompetitor,
			Score:    0,
			Reason:   fmt.Sprintf("none of the %d keywords appear in the content", len(cleaned)),
		}, nil
	}

	base := float64(unique) / float64(len(cleaned)) * 100

	// Repeat occurrences beyond the first add 10% each, capped at +50%.
	multiplier := math.Min(1.5, 1+float64(occurrences-unique)*0.1)

	score := int(math.Round(math.Min(100, base*multiplier)))

	return Result{
		Category: Categorize(score),
		Score:    score,
		Reason: fmt.Sprintf("matched %d of %d keywords across %d occurrences",
			unique, len(cleaned), occurrences),
		Matched: matched,
	}, nil
}

// cleanKeywords lowercases, trims, dedupes, and drops keywords under two
// characters.
func cleanKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if len(kw) < 2 || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}
