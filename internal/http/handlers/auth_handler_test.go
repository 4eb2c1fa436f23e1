package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-discount-backend/internal/domain"
)

func TestIssueToken(t *testing.T) {
	api := newTestAPI(t, nil)

	cases := []struct {
		name   string
		body   any
		status int
		field  string
	}{
		{"missing fields", map[string]string{"username": "alice"}, http.StatusBadRequest, ""},
		{"bad role", IssueTokenRequest{Username: "alice", Role: "admin"}, http.StatusBadRequest, "role"},
		{"long username", IssueTokenRequest{Username: strings.Repeat("a", 65), Role: "user"}, http.StatusBadRequest, "username"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, "/auth/token", "", tc.body, nil)
			if w.Code != tc.status {
				t.Fatalf("status=%d; want %d", w.Code, tc.status)
			}
			if er := decode[ErrorResponse](t, w); er.Field != tc.field {
				t.Fatalf("field=%q; want %q", er.Field, tc.field)
			}
		})
	}

	w := api.do(t, http.MethodPost, "/auth/token", "", IssueTokenRequest{Username: "alice", Role: "User"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("issue: %d %s", w.Code, w.Body.String())
	}
	resp := decode[IssueTokenResponse](t, w)
	if resp.TokenType != "Bearer" || resp.ExpiresAt.IsZero() {
		t.Fatalf("unexpected response %+v", resp)
	}
	id, err := api.iss.Verify(resp.Token)
	if err != nil || id.Subject != "alice" || id.Role != domain.RoleUser {
		t.Fatalf("issued token does not verify: %+v, %v", id, err)
	}

	// The token works against a protected route.
	if w := api.do(t, http.MethodGet, "/campaigns", resp.Token, nil, nil); w.Code != http.StatusOK {
		t.Fatalf("token rejected by API: %d", w.Code)
	}
}

func TestIssueToken_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(nil, nil, nil)
	r := gin.New()
	r.POST("/auth/token", h.IssueToken)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"username":"a","role":"user"}`)))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d; want 404", w.Code)
	}
}
