package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// WHAT: the evasive strategy sends the full browser-like header set.
func TestEvasiveHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	e := NewEvasive(EvasiveConfig{URLValidator: allowAll})
	if _, err := e.Fetch(context.Background(), srv.URL, time.Second); err != nil {
		t.Fatal(err)
	}

	if ua := got.Get("User-Agent"); !strings.Contains(ua, "Mozilla/5.0") {
		t.Errorf("User-Agent = %q, want a browser UA", ua)
	}
	for _, h := range []string{"Accept", "Accept-Language", "Sec-Fetch-Mode", "Upgrade-Insecure-Requests"} {
		if got.Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
}

// WHAT: consecutive requests rotate through different user agents.
func TestEvasiveUARotation(t *testing.T) {
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	e := NewEvasive(EvasiveConfig{URLValidator: allowAll})
	for i := 0; i < 2; i++ {
		if _, err := e.Fetch(context.Background(), srv.URL, time.Second); err != nil {
			t.Fatal(err)
		}
	}
	if agents[0] == agents[1] {
		t.Errorf("consecutive requests used the same UA: %q", agents[0])
	}
}

// WHAT: cookies set by the server are replayed on the next request.
// WHY: challenge flows set a cookie and expect it back.
func TestEvasiveCookieJar(t *testing.T) {
	var sawCookie bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("challenge"); err == nil && c.Value == "passed" {
			sawCookie = true
		}
		http.SetCookie(w, &http.Cookie{Name: "challenge", Value: "passed"})
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	e := NewEvasive(EvasiveConfig{URLValidator: allowAll})
	for i := 0; i < 2; i++ {
		if _, err := e.Fetch(context.Background(), srv.URL, time.Second); err != nil {
			t.Fatal(err)
		}
	}
	if !sawCookie {
		t.Error("cookie was not replayed on the second request")
	}
}

// WHAT: blocking status codes surface as ErrAccessDenied.
func TestEvasiveAccessDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	e := NewEvasive(EvasiveConfig{URLValidator: allowAll})
	_, err := e.Fetch(context.Background(), srv.URL, time.Second)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("err = %v, want ErrAccessDenied", err)
	}
}
