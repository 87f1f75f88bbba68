package analysis

import (
	"errors"
	"testing"
)

// WHAT: normalization trims, defaults the scheme, collapses pasted
// duplicate schemes, lowercases the host, and strips fragments and
// trailing slashes.
func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "https://example.com"},
		{"  example.com  ", "https://example.com"},
		{"http://Example.COM/Path/", "http://example.com/Path"},
		{"https://https://example.com", "https://example.com"},
		{"http://https://example.com", "https://example.com"},
		{"example.com/page#section", "https://example.com/page"},
		{"www.example.com", "https://www.example.com"},
		{"https://example.com/a?b=1", "https://example.com/a?b=1"},
	}
	for _, tt := range tests {
		got, err := NormalizeTarget(tt.in)
		if err != nil {
			t.Errorf("NormalizeTarget(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeTarget(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// WHAT: malformed addresses are rejected with ErrInvalidTarget.
// WHY: invalid targets must be filtered at planning, never entering a wave.
func TestNormalizeTargetInvalid(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		"not a url",
		"ftp://example.com",
		"https://",
		"justaword",
		"mailto:x@example.com",
	} {
		_, err := NormalizeTarget(in)
		if !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("NormalizeTarget(%q): err = %v, want ErrInvalidTarget", in, err)
		}
	}
}

// WHAT: planning dedupes on the normalized form, preserving first-seen
// order, and counts rejects.
func TestPlanTargets(t *testing.T) {
	targets, rejected := planTargets([]string{
		"example.com",
		"https://example.com/",
		"Example.COM",
		"other.example.org",
		"not a url",
		"",
	})
	if rejected != 2 {
		t.Errorf("rejected = %d, want 2", rejected)
	}
	want := []string{"https://example.com", "https://other.example.org"}
	if len(targets) != len(want) {
		t.Fatalf("targets = %v, want %v", targets, want)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Errorf("targets[%d] = %q, want %q", i, targets[i], want[i])
		}
	}
}

// WHAT: batch plans split on the threshold with a short tail batch.
func TestBatchPlan(t *testing.T) {
	targets := make([]string, 250)
	for i := range targets {
		targets[i] = "t"
	}
	p := newBatchPlan(targets, 100)
	if p.BatchCount != 3 {
		t.Fatalf("batch count = %d, want 3", p.BatchCount)
	}
	for i, want := range []int{100, 100, 50} {
		if got := len(p.Batch(i)); got != want {
			t.Errorf("batch %d size = %d, want %d", i, got, want)
		}
	}

	small := newBatchPlan(targets[:40], 100)
	if small.BatchCount != 1 || len(small.Batch(0)) != 40 {
		t.Errorf("small plan = %+v", small)
	}
}
