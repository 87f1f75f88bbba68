package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/rivale/webguard"
)

// userAgents is rotated across evasive requests so repeated visits from
// the same worker do not share one fingerprint.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
}

// EvasiveConfig configures the evasive-HTTP strategy.
type EvasiveConfig struct {
	// MaxBytes caps the response body. Default: webguard.MaxResponseBody.
	MaxBytes int64

	// URLValidator guards requests and redirects. Default: webguard.ValidateURL.
	URLValidator func(string) error

	Logger *slog.Logger
}

func (c EvasiveConfig) defaults() EvasiveConfig {
	if c.MaxBytes <= 0 {
		c.MaxBytes = webguard.MaxResponseBody
	}
	if c.URLValidator == nil {
		c.URLValidator = webguard.ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Evasive is the middle strategy tier: plain HTTP dressed up as an
// interactive browser. It rotates user agents, sends the full header set a
// real browser would, and keeps a cookie jar so challenge-set cookies
// survive redirects.
type Evasive struct {
	cfg     EvasiveConfig
	client  *http.Client
	counter atomic.Uint32
}

// NewEvasive creates the evasive strategy.
func NewEvasive(cfg EvasiveConfig) *Evasive {
	cfg = cfg.defaults()

	jar, _ := cookiejar.New(nil)
	return &Evasive{
		cfg: cfg,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := cfg.URLValidator(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
	}
}

func (e *Evasive) Name() StrategyName { return StrategyEvasive }

// Fetch retrieves target within budget using browser-like headers.
func (e *Evasive) Fetch(ctx context.Context, target string, budget time.Duration) (string, error) {
	if err := e.cfg.URLValidator(target); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("fetch: new request: %w", err)
	}
	e.browserHeaders(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: http get: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return "", err
	}

	body, err := webguard.LimitedReadAll(resp.Body, e.cfg.MaxBytes)
	if err != nil {
		return "", fmt.Errorf("fetch: read body: %w", err)
	}
	return string(body), nil
}

func (e *Evasive) browserHeaders(req *http.Request) {
	ua := userAgents[int(e.counter.Add(1))%len(userAgents)]
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,it;q=0.8")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
}
