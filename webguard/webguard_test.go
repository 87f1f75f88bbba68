package webguard

import (
	"errors"
	"strings"
	"testing"
)

// WHAT: only public http/https targets pass validation; private and
// loopback addresses, and non-web schemes, are rejected.
func TestValidateURL(t *testing.T) {
	for _, u := range []string{
		"https://example.com",
		"http://example.com/path?q=1",
		"https://93.184.216.34",
	} {
		if err := ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q): %v", u, err)
		}
	}

	ssrf := []string{
		"http://127.0.0.1/admin",
		"http://10.0.0.5",
		"http://172.16.1.1",
		"http://192.168.1.10:8080",
		"http://169.254.169.254/latest/meta-data/",
		"http://[::1]/",
		"http://[fc00::1]/",
	}
	for _, u := range ssrf {
		if err := ValidateURL(u); !errors.Is(err, ErrSSRF) {
			t.Errorf("ValidateURL(%q): err = %v, want ErrSSRF", u, err)
		}
	}

	for _, u := range []string{"ftp://example.com", "file:///etc/passwd", "gopher://example.com"} {
		if err := ValidateURL(u); !errors.Is(err, ErrUnsafeScheme) {
			t.Errorf("ValidateURL(%q): err = %v, want ErrUnsafeScheme", u, err)
		}
	}

	if err := ValidateURL("https://"); err == nil {
		t.Error("expected error for URL without host")
	}
}

// WHAT: reads under the cap succeed whole; reads over it error instead of
// silently truncating.
func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 10)
	if err != nil || string(data) != "hello" {
		t.Fatalf("LimitedReadAll = %q, %v", data, err)
	}

	if _, err := LimitedReadAll(strings.NewReader(strings.Repeat("x", 11)), 10); err == nil {
		t.Error("expected error past the byte cap")
	}
}
