// Package fetch implements the layered content-fetch mechanism: three
// strategy tiers tried in fixed fallback order (pooled browser session,
// evasive HTTP, basic HTTP), a failure taxonomy shared with the
// orchestrator, and a result cache consulted before any strategy runs.
package fetch

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/hazyhaar/rivale/browser"
	"github.com/hazyhaar/rivale/webguard"
)

// StrategyName identifies a fetch tier.
type StrategyName string

const (
	StrategySessionPool StrategyName = "session_pool"
	StrategyEvasive     StrategyName = "evasive"
	StrategyBasic       StrategyName = "basic"
)

// ErrAccessDenied marks responses that indicate deliberate blocking
// (401/403/429, challenge pages).
var ErrAccessDenied = errors.New("fetch: access denied")

// ErrInsufficientContent marks pages whose readable text is too short to
// analyze; the strategy chain continues past them.
var ErrInsufficientContent = errors.New("fetch: insufficient content")

// Reason categorizes a failure for reporting.
type Reason string

const (
	ReasonTimeout        Reason = "timeout"
	ReasonAccessDenied   Reason = "access_denied"
	ReasonConnection     Reason = "connection_failure"
	ReasonPoolExhausted  Reason = "pool_exhausted"
	ReasonInsufficient   Reason = "insufficient_content"
	ReasonInvalidTarget  Reason = "invalid_target"
	ReasonClassification Reason = "classification_unavailable"
	ReasonUnknown        Reason = "unknown"
)

// Describe returns the human-actionable explanation for a failure reason.
func (r Reason) Describe() string {
	switch r {
	case ReasonTimeout:
		return "timed out after the configured budget — site likely slow or blocking automated access"
	case ReasonAccessDenied:
		return "access denied — the site is blocking automated requests"
	case ReasonConnection:
		return "could not establish a connection — site unreachable or refusing traffic"
	case ReasonPoolExhausted:
		return "no browser session became available within the wait window"
	case ReasonInsufficient:
		return "the page returned too little readable text to analyze"
	case ReasonInvalidTarget:
		return "the address is malformed or not publicly reachable"
	case ReasonClassification:
		return "the classifier did not return a result for this target"
	default:
		return "fetch failed for an unclassified reason"
	}
}

// Categorize maps an error to its failure Reason, combining sentinel checks
// with error-text inspection for transport errors.
func Categorize(err error) Reason {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, browser.ErrPoolExhausted):
		return ReasonPoolExhausted
	case errors.Is(err, ErrAccessDenied):
		return ReasonAccessDenied
	case errors.Is(err, ErrInsufficientContent):
		return ReasonInsufficient
	case errors.Is(err, webguard.ErrSSRF), errors.Is(err, webguard.ErrUnsafeScheme):
		return ReasonInvalidTarget
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return ReasonTimeout
	case strings.Contains(msg, "forbidden") || strings.Contains(msg, "blocked") ||
		strings.Contains(msg, "captcha") || strings.Contains(msg, "cloudflare"):
		return ReasonAccessDenied
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "reset by peer") || strings.Contains(msg, "eof") ||
		strings.Contains(msg, "tls") || strings.Contains(msg, "certificate"):
		return ReasonConnection
	default:
		return ReasonUnknown
	}
}

// Result is the aggregate outcome of fetching one target through the
// strategy chain. All failure modes are captured here; Fetch never errors.
type Result struct {
	Target          string       `json:"target"`
	Succeeded       bool         `json:"succeeded"`
	Title           string       `json:"title,omitempty"`
	Text            string       `json:"text,omitempty"`     // visible body text
	Weighted        string       `json:"-"`                  // classification text
	Markdown        string       `json:"markdown,omitempty"` // sanitized snapshot
	StrategyUsed    StrategyName `json:"strategy_used,omitempty"`
	StrategiesTried int          `json:"strategies_tried"`
	FailureReason   Reason       `json:"failure_reason,omitempty"`
	FailureDetail   string       `json:"failure_detail,omitempty"`
	FetchedAt       time.Time    `json:"fetched_at"`
}

// Strategy is one fetch tier. Fetch returns the raw HTML of the target or
// an error; each attempt must finish within budget.
type Strategy interface {
	Name() StrategyName
	Fetch(ctx context.Context, target string, budget time.Duration) (html string, err error)
}
