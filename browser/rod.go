package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Chrome owns one headless Chrome process shared by all pool sessions.
// Each pool session is an incognito browser context, so renewal discards
// cookies and storage without restarting Chrome.
type Chrome struct {
	lnch    *launcher.Launcher
	browser *rod.Browser
	log     *slog.Logger
}

// LaunchChrome starts a local headless Chrome with automation detection
// suppressed and relaxed certificate checking (many of the small-business
// sites this pipeline visits have broken TLS chains).
func LaunchChrome(logger *slog.Logger) (*Chrome, error) {
	if logger == nil {
		logger = slog.Default()
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch chrome: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		logger.Warn("browser: ignore cert errors failed", "error", err)
	}

	logger.Info("browser: launched local chrome", "url", u)
	return &Chrome{lnch: l, browser: b, log: logger}, nil
}

// Factory returns a session Factory that opens incognito contexts on the
// shared Chrome process.
func (c *Chrome) Factory() Factory {
	return func(ctx context.Context) (Handle, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		inc, err := c.browser.Incognito()
		if err != nil {
			return nil, fmt.Errorf("browser: incognito context: %w", err)
		}
		return &rodHandle{ctx: inc, log: c.log}, nil
	}
}

// Close shuts down the Chrome process. Call after Pool.Shutdown.
func (c *Chrome) Close() error {
	if c.browser != nil {
		c.browser.Close()
	}
	if c.lnch != nil {
		c.lnch.Cleanup()
	}
	return nil
}

// rodHandle fetches pages through one incognito context with a stealth
// page per request.
type rodHandle struct {
	ctx *rod.Browser
	log *slog.Logger
}

func (h *rodHandle) Fetch(ctx context.Context, url string, timeout time.Duration) (string, error) {
	page, err := stealth.Page(h.ctx)
	if err != nil {
		return "", fmt.Errorf("browser: stealth page: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return "", fmt.Errorf("browser: navigate %s: %w", url, err)
	}

	// Best effort: a slow-loading page may still have usable DOM.
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		h.log.Warn("browser: wait load timeout", "url", url, "error", err)
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: read DOM: %w", err)
	}
	return res.Value.Str(), nil
}

func (h *rodHandle) Close() error {
	return h.ctx.Close()
}
