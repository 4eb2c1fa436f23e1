// Claim HTTP handler.
//
// POST /campaigns/{id}/claim issues at most one code per user per campaign.
// The claimant is always the authenticated subject; there is no body.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-discount-backend/internal/http/middleware"
)

// ClaimResponse is returned on a successful claim. Code is the proof token.
type ClaimResponse struct {
	Registered bool   `json:"registered" example:"true"`
	Code       string `json:"code"       example:"3f1c2a9e-5b7d-4e8f-9a0b-1c2d3e4f5a6b"`
	CampaignID int64  `json:"campaign_id" example:"1"`
}

// ClaimCode godoc
// @ID          claimCode
// @Summary     Claim a discount code
// @Description Issues one code from the campaign to the calling user. A user who already holds a code for the campaign gets 409, even after the campaign runs out.
// @Tags        Claims
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  int  true  "Campaign ID"  minimum(1) example(1)
//
// @Success     200  {object} handlers.ClaimResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     403  {object} handlers.ErrorResponse "User role required"
// @Failure     404  {object} handlers.ErrorResponse "Campaign not found"
// @Failure     409  {object} handlers.ErrorResponse "Already claimed"
// @Failure     410  {object} handlers.ErrorResponse "Campaign exhausted"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Failure     503  {object} handlers.ErrorResponse "Temporarily unavailable; see Retry-After"
// @Header      503  {string} Retry-After "Seconds to wait before retrying"
// @Router      /campaigns/{id}/claim [post]
func (h *Handlers) ClaimCode(c *gin.Context) {
	id, valid := campaignID(c)
	if !valid {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "campaign not found")
		return
	}

	code, err := h.claims.Claim(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		failFromService(c, err)
		return
	}

	middleware.LoggerFrom(c).Info().Int64("campaign_id", id).Msg("code issued")
	ok(c, http.StatusOK, ClaimResponse{Registered: true, Code: code.ID, CampaignID: id})
}
