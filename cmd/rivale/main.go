// Command rivale is the bulk site-analysis HTTP service: it fetches
// hundreds of target sites through a layered strategy chain, classifies
// each against a keyword set, and streams progress as Server-Sent Events.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/rivale/analysis"
	"github.com/hazyhaar/rivale/browser"
	"github.com/hazyhaar/rivale/cache"
	"github.com/hazyhaar/rivale/classify"
	"github.com/hazyhaar/rivale/fetch"
	"github.com/hazyhaar/rivale/fetchlog"
)

func main() {
	cfgPath := env("RIVALE_CONFIG", "")
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		slog.Error("load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	port := env("PORT", cfg.Server.Port)
	logLevel := env("LOG_LEVEL", cfg.Log.Level)

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Fetch log.
	store, err := fetchlog.Open(env("FETCH_DB", cfg.Log.FetchDB))
	if err != nil {
		slog.Error("fetch log", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Result cache, shared by the fetcher (reads/writes) and the service
	// (stats endpoint).
	results := cache.New[fetch.Result](cache.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL.std(),
	})

	// Strategy chain. The browser tier degrades away when Chrome is
	// unavailable; the two HTTP tiers carry the service on their own.
	var tiers []fetch.Tier
	if cfg.browserEnabled() {
		chrome, err := browser.LaunchChrome(logger)
		if err != nil {
			slog.Warn("chrome unavailable, running without browser tier", "error", err)
		} else {
			defer chrome.Close()
			pool, err := browser.NewPool(browser.Config{
				Size:           cfg.Browser.PoolSize,
				MaxRequests:    cfg.Browser.MaxRequests,
				AcquireTimeout: cfg.Browser.AcquireTimeout.std(),
				NavTimeout:     cfg.Browser.NavTimeout.std(),
				DomainTimeouts: cfg.Browser.domainTimeouts(),
				Factory:        chrome.Factory(),
				Logger:         logger,
			})
			if err != nil {
				slog.Error("session pool", "error", err)
				os.Exit(1)
			}
			if err := pool.Start(ctx); err != nil {
				slog.Error("session pool start", "error", err)
				os.Exit(1)
			}
			defer pool.Shutdown()
			tiers = append(tiers, fetch.Tier{
				Strategy: fetch.NewPooled(pool),
				Budget:   cfg.Fetch.SessionBudget.std(),
			})
		}
	}
	tiers = append(tiers,
		fetch.Tier{Strategy: fetch.NewEvasive(fetch.EvasiveConfig{Logger: logger}), Budget: cfg.Fetch.EvasiveBudget.std()},
		fetch.Tier{Strategy: fetch.NewBasic(fetch.BasicConfig{Logger: logger}), Budget: cfg.Fetch.BasicBudget.std()},
	)

	layered := fetch.NewLayered(fetch.LayeredConfig{
		MinContent: cfg.Fetch.MinContent,
		Cache:      results,
		Logger:     logger,
	}, tiers...)

	svc := analysis.New(layered, classify.NewKeyword(), analysis.Config{
		FetchConcurrency:    cfg.Analysis.FetchConcurrency,
		ClassifyConcurrency: cfg.Analysis.ClassifyConcurrency,
		RefetchConcurrency:  cfg.Analysis.RefetchConcurrency,
		RefetchBudgets:      cfg.Analysis.refetchBudgets(),
		ClassifyTimeout:     cfg.Analysis.ClassifyTimeout.std(),
		BatchThreshold:      cfg.Analysis.BatchThreshold,
		Cache:               results,
		Recorder:            store,
		Logger:              logger,
	})

	// Router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/api/cache/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, svc.CacheStats())
	})

	r.Get("/api/fetch-log", func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("target")
		if target == "" {
			writeError(w, 400, fmt.Errorf("target query parameter required"))
			return
		}
		entries, err := store.History(r.Context(), target, queryInt(r, "limit", 20))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if entries == nil {
			entries = []fetchlog.Entry{}
		}
		writeJSON(w, 200, entries)
	})

	r.Post("/api/analyze/stream", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Targets  []string `json:"targets"`
			Keywords []string `json:"keywords"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}

		events, err := svc.StartRun(r.Context(), req.Targets, req.Keywords)
		if err != nil {
			switch {
			case errors.Is(err, analysis.ErrNoTargets),
				errors.Is(err, analysis.ErrNoKeywords),
				errors.Is(err, analysis.ErrInvalidTarget):
				writeError(w, 400, err)
			default:
				writeError(w, 500, err)
			}
			return
		}

		streamSSE(w, r, events)
	})

	// HTTP server. WriteTimeout stays zero: a bulk run streams for as long
	// as it takes, bounded per target rather than per response.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// streamSSE forwards the run's event channel as Server-Sent Events until
// the channel closes (run complete) or the client disconnects.
func streamSSE(w http.ResponseWriter, r *http.Request, events <-chan analysis.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, 500, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(200)
	flusher.Flush()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Warn("marshal event", "type", ev.Type, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
