package middleware

import (
	"net/http"
	"testing"
)

func TestRedact(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"page=2&page_size=20", "page=2&page_size=20"},
		{"code=3f1c2a9e-5b7d-4e8f-9a0b-1c2d3e4f5a6b", "code=[REDACTED:id]"},
		{"claimant=bob.smith@example.org", "claimant=[REDACTED:email]"},
		{"tel=+1 212-555-1212", "tel=[REDACTED:phone]"},
	}
	for _, tc := range cases {
		if got := redact(tc.in); got != tc.want {
			t.Errorf("redact(%q)=%q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestSafeHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer abc")
	h.Set("Cookie", "sid=1")
	h.Set("X-Api-Key", "k")
	h.Set("X-Claimant", "carol@example.com")
	h.Set("Accept", "application/json")

	got := safeHeaders(h)
	for _, k := range []string{"Authorization", "Cookie", "X-Api-Key"} {
		if got[k] != "[REDACTED]" {
			t.Errorf("%s = %q; want masked", k, got[k])
		}
	}
	if got["X-Claimant"] != "[REDACTED:email]" {
		t.Errorf("X-Claimant = %q; want scrubbed", got["X-Claimant"])
	}
	if got["Accept"] != "application/json" {
		t.Errorf("Accept = %q; want untouched", got["Accept"])
	}
}
