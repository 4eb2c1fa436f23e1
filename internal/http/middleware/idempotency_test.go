package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type idemProbe struct {
	Key    string
	HasKey bool
	Replay bool
	Bypass bool
}

// idemRouter mounts the validator behind an optional fake Authenticate and
// echoes what the handler could observe.
func idemRouter(owner string, opts IdempotencyOptions, lookup IdempotencyLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if owner != "" {
		r.Use(func(c *gin.Context) { c.Set(ctxKeyUserID, owner); c.Next() })
	}
	r.Use(IdempotencyValidator(opts, lookup))
	r.POST("/campaigns", func(c *gin.Context) {
		key, ok := GetIdempotencyKey(c)
		c.JSON(http.StatusOK, idemProbe{Key: key, HasKey: ok, Replay: IsReplay(c), Bypass: IsRateBypass(c)})
	})
	return r
}

func postCampaign(t *testing.T, r http.Handler, key string) (*httptest.ResponseRecorder, idemProbe) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/campaigns", nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	r.ServeHTTP(w, req)
	var p idemProbe
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
			t.Fatalf("probe json: %v", err)
		}
	}
	return w, p
}

func TestIdempotencyValidator_KeyValidation(t *testing.T) {
	digits := regexp.MustCompile(`^[0-9]+$`)
	cases := []struct {
		name   string
		opts   IdempotencyOptions
		key    string
		status int
	}{
		{"no header", IdempotencyOptions{}, "", http.StatusOK},
		{"default charset", IdempotencyOptions{}, "fall-sale:2026.10_~1", http.StatusOK},
		{"space rejected", IdempotencyOptions{}, "bad key", http.StatusBadRequest},
		{"slash rejected", IdempotencyOptions{}, "a/b", http.StatusBadRequest},
		{"default max length", IdempotencyOptions{}, strings.Repeat("k", 200), http.StatusOK},
		{"over default max", IdempotencyOptions{}, strings.Repeat("k", 201), http.StatusBadRequest},
		{"custom max", IdempotencyOptions{MaxLen: 5}, "abcdef", http.StatusBadRequest},
		{"custom pattern", IdempotencyOptions{Pattern: digits}, "abc123", http.StatusBadRequest},
		{"custom pattern ok", IdempotencyOptions{Pattern: digits}, "123", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, p := postCampaign(t, idemRouter("", tc.opts, nil), tc.key)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.status, w.Body.String())
			}
			if tc.status == http.StatusOK {
				if p.HasKey != (tc.key != "") || p.Key != tc.key {
					t.Fatalf("stashed key %q (has=%v); want %q", p.Key, p.HasKey, tc.key)
				}
				return
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("json: %v", err)
			}
			if body["code"] != "validation_failed" || body["field"] != HeaderIdempotencyKey {
				t.Fatalf("unexpected envelope: %v", body)
			}
		})
	}
}

func TestIdempotencyValidator_Lookup(t *testing.T) {
	known := func(_ context.Context, owner, scope, key string, now time.Time) (bool, error) {
		if now.Location() != time.UTC {
			return false, errors.New("lookup expects UTC")
		}
		return owner == "brandA" && scope == "campaigns" && key == "k-9", nil
	}
	opts := IdempotencyOptions{Scope: "campaigns"}

	cases := []struct {
		name   string
		owner  string
		key    string
		lookup IdempotencyLookup
		replay bool
	}{
		{"hit", "brandA", "k-9", known, true},
		{"other owner", "brandB", "k-9", known, false},
		{"other key", "brandA", "k-10", known, false},
		{"lookup error is a miss", "brandA", "k-9", func(context.Context, string, string, string, time.Time) (bool, error) {
			return false, errors.New("db down")
		}, false},
		{"nil lookup", "brandA", "k-9", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, p := postCampaign(t, idemRouter(tc.owner, opts, tc.lookup), tc.key)
			if w.Code != http.StatusOK {
				t.Fatalf("status=%d", w.Code)
			}
			if p.Replay != tc.replay || p.Bypass != tc.replay {
				t.Fatalf("replay=%v bypass=%v; want %v", p.Replay, p.Bypass, tc.replay)
			}
		})
	}

	t.Run("anonymous caller skips lookup", func(t *testing.T) {
		called := false
		spy := func(context.Context, string, string, string, time.Time) (bool, error) {
			called = true
			return true, nil
		}
		_, p := postCampaign(t, idemRouter("", opts, spy), "k-9")
		if called || p.Replay || !p.HasKey {
			t.Fatalf("called=%v probe=%+v", called, p)
		}
	})
}

func TestIdempotencyAccessors_WrongTypes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	c.Set(ctxKeyIdemKey, 123)
	c.Set(ctxKeyIdemReplay, "yes")
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key must read as absent")
	}
	if IsReplay(c) {
		t.Fatalf("non-bool replay flag must read as false")
	}
}
