package analysis

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeTarget canonicalizes a raw address: whitespace trimmed,
// duplicated scheme prefixes collapsed, scheme defaulted to https,
// host lowercased, fragment dropped, trailing slash stripped.
// Identity of a target is its normalized form.
func NormalizeTarget(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidTarget)
	}
	if strings.ContainsAny(s, " \t") {
		return "", fmt.Errorf("%w: address contains whitespace", ErrInvalidTarget)
	}

	// Collapse pasted duplicates like "https://https://example.com".
	for changed := true; changed; {
		changed = false
		low := strings.ToLower(s)
		for _, p := range []string{"http://", "https://"} {
			if !strings.HasPrefix(low, p) {
				continue
			}
			rest := strings.ToLower(s[len(p):])
			if strings.HasPrefix(rest, "http://") || strings.HasPrefix(rest, "https://") {
				s = s[len(p):]
				changed = true
			}
			break
		}
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}

	if u.User != nil {
		return "", fmt.Errorf("%w: userinfo not allowed", ErrInvalidTarget)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" || !strings.Contains(host, ".") {
		return "", fmt.Errorf("%w: missing or bare host", ErrInvalidTarget)
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")

	return u.String(), nil
}

// planTargets normalizes and dedupes the raw list, preserving first-seen
// order, and reports how many addresses were rejected.
func planTargets(raw []string) (targets []string, rejected int) {
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		t, err := NormalizeTarget(r)
		if err != nil {
			rejected++
			continue
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		targets = append(targets, t)
	}
	return targets, rejected
}
