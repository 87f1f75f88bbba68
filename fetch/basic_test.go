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

func allowAll(string) error { return nil }

func boolPtr(b bool) *bool { return &b }

// WHAT: a plain HTTP target round-trips through the basic strategy.
func TestBasicFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	b := NewBasic(BasicConfig{URLValidator: allowAll})
	html, err := b.Fetch(context.Background(), srv.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "hello") {
		t.Errorf("html = %q", html)
	}
}

// WHAT: a self-signed certificate fails the strict client but succeeds on
// the relaxed retry when AllowInsecure is on.
func TestBasicTLSFallback(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>selfsigned</body></html>"))
	}))
	defer srv.Close()

	b := NewBasic(BasicConfig{URLValidator: allowAll})
	html, err := b.Fetch(context.Background(), srv.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("relaxed retry should recover a self-signed cert: %v", err)
	}
	if !strings.Contains(html, "selfsigned") {
		t.Errorf("html = %q", html)
	}
}

// WHAT: with AllowInsecure off, the certificate error propagates.
func TestBasicStrictOnly(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	b := NewBasic(BasicConfig{URLValidator: allowAll, AllowInsecure: boolPtr(false)})
	_, err := b.Fetch(context.Background(), srv.URL, 5*time.Second)
	if err == nil {
		t.Fatal("expected certificate error")
	}
	if Categorize(err) != ReasonConnection {
		t.Errorf("reason = %q, want connection_failure", Categorize(err))
	}
}

// WHAT: blocking status codes surface as ErrAccessDenied.
func TestBasicAccessDenied(t *testing.T) {
	for _, code := range []int{401, 403, 429} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		b := NewBasic(BasicConfig{URLValidator: allowAll})
		_, err := b.Fetch(context.Background(), srv.URL, time.Second)
		srv.Close()

		if !errors.Is(err, ErrAccessDenied) {
			t.Errorf("status %d: err = %v, want ErrAccessDenied", code, err)
		}
	}
}

// WHAT: other non-success codes fail without the access-denied marker.
func TestBasicServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewBasic(BasicConfig{URLValidator: allowAll})
	_, err := b.Fetch(context.Background(), srv.URL, time.Second)
	if err == nil || errors.Is(err, ErrAccessDenied) {
		t.Fatalf("err = %v, want plain http error", err)
	}
}

// WHAT: exceeding the budget yields a timeout-categorized error.
func TestBasicTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	b := NewBasic(BasicConfig{URLValidator: allowAll})
	_, err := b.Fetch(context.Background(), srv.URL, 30*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout")
	}
	if Categorize(err) != ReasonTimeout {
		t.Errorf("reason = %q, want timeout (err: %v)", Categorize(err), err)
	}
}

// WHAT: the URL validator runs before any request is made.
func TestBasicValidatorRejects(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	sentinel := errors.New("nope")
	b := NewBasic(BasicConfig{URLValidator: func(string) error { return sentinel }})
	_, err := b.Fetch(context.Background(), srv.URL, time.Second)
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want validator sentinel", err)
	}
	if called {
		t.Error("request was sent despite validator rejection")
	}
}
