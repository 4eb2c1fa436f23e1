// Token HTTP handler.
//
// POST /auth/token mints a bearer token for a username and role. It exists for
// development and load testing and is only mounted when AUTH_TOKEN_ENDPOINT is
// enabled; production deployments obtain tokens from their identity provider.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-discount-backend/internal/auth"
)

// IssueTokenRequest is the JSON payload for POST /auth/token.
type IssueTokenRequest struct {
	Username string `json:"username" binding:"required" example:"alice"`
	Role     string `json:"role"     binding:"required" example:"user" enums:"brand,user"`
}

// IssueTokenResponse carries the signed token.
type IssueTokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type" example:"Bearer"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken godoc
// @ID          issueToken
// @Summary     Issue a bearer token
// @Description Development helper: signs a token for the given username and role (brand or user).
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.IssueTokenRequest  true  "Identity"
//
// @Success     200  {object} handlers.IssueTokenResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /auth/token [post]
func (h *Handlers) IssueToken(c *gin.Context) {
	if h.tokens == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
		return
	}
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and role are required")
		return
	}

	tok, exp, err := h.tokens.Issue(strings.TrimSpace(req.Username), req.Role)
	switch {
	case errors.Is(err, auth.ErrInvalidRole):
		failField(c, http.StatusBadRequest, ErrCodeValidation, err.Error(), "role")
		return
	case errors.Is(err, auth.ErrInvalidSubject):
		failField(c, http.StatusBadRequest, ErrCodeValidation, err.Error(), "username")
		return
	case err != nil:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	ok(c, http.StatusOK, IssueTokenResponse{Token: tok, TokenType: "Bearer", ExpiresAt: exp})
}
