package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecured(opt SecurityOptions, prep func(*http.Request)) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(opt))
	r.GET("/campaigns", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/campaigns", nil)
	if prep != nil {
		prep(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders(t *testing.T) {
	overTLS := func(r *http.Request) { r.TLS = &tls.ConnectionState{} }
	viaProxy := func(v string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", v) }
	}

	cases := []struct {
		name    string
		opt     SecurityOptions
		prep    func(*http.Request)
		want    map[string]string
		missing []string
	}{
		{
			name:    "baseline only",
			want:    map[string]string{"X-Content-Type-Options": "nosniff", "X-Frame-Options": "DENY", "Referrer-Policy": "no-referrer"},
			missing: []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security"},
		},
		{
			name: "policy and no-store",
			opt:  SecurityOptions{EnablePolicy: true, NoStore: true},
			want: map[string]string{
				"Permissions-Policy":                "geolocation=(), microphone=(), camera=(), payment=()",
				"X-Permitted-Cross-Domain-Policies": "none",
				"Cross-Origin-Resource-Policy":      "same-origin",
				"Cache-Control":                     "no-store",
				"Pragma":                            "no-cache",
				"Expires":                           "0",
			},
		},
		{
			name:    "hsts skipped on plain http",
			opt:     SecurityOptions{EnableHSTS: true},
			missing: []string{"Strict-Transport-Security"},
		},
		{
			name: "hsts default max-age over tls",
			opt:  SecurityOptions{EnableHSTS: true},
			prep: overTLS,
			want: map[string]string{"Strict-Transport-Security": "max-age=15552000; includeSubDomains; preload"},
		},
		{
			name: "hsts custom max-age via proxy chain",
			opt:  SecurityOptions{EnableHSTS: true, HSTSMaxAge: 365 * 24 * time.Hour},
			prep: viaProxy("HTTPS, http"),
			want: map[string]string{"Strict-Transport-Security": "max-age=31536000; includeSubDomains; preload"},
		},
		{
			name:    "hsts disabled even over tls",
			prep:    overTLS,
			missing: []string{"Strict-Transport-Security"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := serveSecured(tc.opt, tc.prep)
			for k, v := range tc.want {
				if got := h.Get(k); got != v {
					t.Errorf("%s = %q; want %q", k, got, v)
				}
			}
			for _, k := range tc.missing {
				if got := h.Get(k); got != "" {
					t.Errorf("%s unexpectedly set to %q", k, got)
				}
			}
		})
	}
}

func TestNoStore_PerRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/campaigns/:id/claim", NoStore(), func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/campaigns", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/campaigns/1/claim", nil))
	if w.Header().Get("Cache-Control") != "no-store" || w.Header().Get("Pragma") != "no-cache" {
		t.Fatalf("claim response cacheable: %v", w.Header())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/campaigns", nil))
	if w.Header().Get("Cache-Control") != "" {
		t.Fatalf("catalog should stay cacheable, got %q", w.Header().Get("Cache-Control"))
	}
}

func TestIsHTTPS(t *testing.T) {
	cases := []struct {
		proto string
		tls   bool
		want  bool
	}{
		{"", false, false},
		{"", true, true},
		{"https", false, true},
		{" HTTPS ", false, true},
		{"http", false, false},
		{"http, https", false, false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.proto != "" {
			req.Header.Set("X-Forwarded-Proto", tc.proto)
		}
		if tc.tls {
			req.TLS = &tls.ConnectionState{}
		}
		if got := isHTTPS(req); got != tc.want {
			t.Errorf("proto=%q tls=%v: isHTTPS=%v; want %v", tc.proto, tc.tls, got, tc.want)
		}
	}
}
