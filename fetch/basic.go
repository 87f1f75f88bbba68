package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hazyhaar/rivale/webguard"
)

// BasicConfig configures the bare-HTTP strategy.
type BasicConfig struct {
	// UserAgent sent with requests. Default: "rivale/1.0".
	UserAgent string

	// MaxBytes caps the response body. Default: webguard.MaxResponseBody.
	MaxBytes int64

	// AllowInsecure enables the relaxed-TLS retry after a certificate
	// failure on the strict client. Default: true.
	AllowInsecure *bool

	// URLValidator guards requests and redirects. Default: webguard.ValidateURL.
	URLValidator func(string) error

	Logger *slog.Logger
}

func (c BasicConfig) defaults() BasicConfig {
	if c.UserAgent == "" {
		c.UserAgent = "rivale/1.0"
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = webguard.MaxResponseBody
	}
	if c.AllowInsecure == nil {
		t := true
		c.AllowInsecure = &t
	}
	if c.URLValidator == nil {
		c.URLValidator = webguard.ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Basic is the last-resort strategy: a plain HTTP GET with strict
// transport security first, then one backoff-paced retry with certificate
// verification relaxed. Many of the visited sites run broken TLS chains;
// relaxing verification recovers them at the cost of authenticity.
type Basic struct {
	cfg     BasicConfig
	strict  *http.Client
	relaxed *http.Client
}

// NewBasic creates the basic-HTTP strategy.
func NewBasic(cfg BasicConfig) *Basic {
	cfg = cfg.defaults()

	redirect := func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return fmt.Errorf("too many redirects (%d)", len(via))
		}
		if err := cfg.URLValidator(req.URL.String()); err != nil {
			return fmt.Errorf("redirect blocked: %w", err)
		}
		return nil
	}

	relaxedTransport := http.DefaultTransport.(*http.Transport).Clone()
	relaxedTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &Basic{
		cfg:     cfg,
		strict:  &http.Client{CheckRedirect: redirect},
		relaxed: &http.Client{CheckRedirect: redirect, Transport: relaxedTransport},
	}
}

func (b *Basic) Name() StrategyName { return StrategyBasic }

// Fetch retrieves target within budget. A certificate failure on the
// strict client triggers the relaxed retry when AllowInsecure is set.
func (b *Basic) Fetch(ctx context.Context, target string, budget time.Duration) (string, error) {
	if err := b.cfg.URLValidator(target); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	html, err := b.do(ctx, b.strict, target)
	if err == nil {
		return html, nil
	}
	if !*b.cfg.AllowInsecure || !isCertError(err) {
		return "", err
	}

	b.cfg.Logger.Debug("fetch: basic retrying without TLS verification",
		"target", target, "error", err)

	// Pace the relaxed retries so an overloaded TLS endpoint gets breathing
	// room inside what is left of the budget.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 300 * time.Millisecond
	bo.MaxInterval = time.Second

	err = backoff.Retry(func() error {
		var attemptErr error
		html, attemptErr = b.do(ctx, b.relaxed, target)
		if attemptErr == nil {
			return nil
		}
		if errors.Is(attemptErr, ErrAccessDenied) {
			return backoff.Permanent(attemptErr)
		}
		return attemptErr
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx))
	if err != nil {
		return "", err
	}
	return html, nil
}

func (b *Basic) do(ctx context.Context, client *http.Client, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("fetch: new request: %w", err)
	}
	req.Header.Set("User-Agent", b.cfg.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: http get: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return "", err
	}

	body, err := webguard.LimitedReadAll(resp.Body, b.cfg.MaxBytes)
	if err != nil {
		return "", fmt.Errorf("fetch: read body: %w", err)
	}
	return string(body), nil
}

// checkStatus converts blocking status codes into ErrAccessDenied and all
// other non-success codes into plain errors.
func checkStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusTooManyRequests:
		return fmt.Errorf("fetch: http %d: %w", code, ErrAccessDenied)
	case code < 200 || code >= 400:
		return fmt.Errorf("fetch: http %d", code)
	default:
		return nil
	}
}

func isCertError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuth x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &unknownAuth) || errors.As(err, &hostnameErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "certificate") || strings.Contains(msg, "tls:")
}
