// Campaign HTTP handlers.
//
// This file exposes REST endpoints for campaign resources:
//   - POST   /campaigns             (create; brand only; Idempotency-Key aware)
//   - GET    /campaigns             (catalog, paginated, ETag support)
//   - GET    /campaigns/{id}        (single campaign, exhausted or not)
//   - GET    /campaigns/{id}/codes  (issued codes; owning brand only)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-discount-backend/internal/domain"
	"github.com/tbourn/go-discount-backend/internal/http/middleware"
	"github.com/tbourn/go-discount-backend/internal/services"
	"github.com/tbourn/go-discount-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// CampaignService defines campaign authoring and catalog reads.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CampaignService interface {
	// Create persists a campaign; replayed reports an Idempotency-Key hit.
	Create(ctx context.Context, in services.CreateCampaignInput) (c *domain.Campaign, replayed bool, err error)
	// ListAvailable returns a page of campaigns with codes left and the total.
	ListAvailable(ctx context.Context, page, pageSize int) ([]domain.CampaignView, int64, error)
	// Get returns a single campaign view.
	Get(ctx context.Context, id int64) (*domain.CampaignView, error)
	// ListCodes returns the codes issued for a campaign owned by owner.
	ListCodes(ctx context.Context, owner string, id int64) ([]domain.IssuedCode, error)
	// CatalogFingerprint returns (count, latest update) for ETags.
	CatalogFingerprint(ctx context.Context) (int64, *time.Time, error)
}

// ClaimService issues discount codes.
type ClaimService interface {
	Claim(ctx context.Context, campaignID int64, claimant string) (*domain.IssuedCode, error)
}

// TokenIssuer mints bearer tokens for the development token endpoint.
type TokenIssuer interface {
	Issue(subject, role string) (token string, expiresAt time.Time, err error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for campaigns, claims and tokens.
type Handlers struct {
	campaigns CampaignService
	claims    ClaimService
	tokens    TokenIssuer
}

// New constructs a Handlers instance. tokens may be nil when the token
// endpoint is not mounted.
func New(campaigns CampaignService, claims ClaimService, tokens TokenIssuer) *Handlers {
	return &Handlers{campaigns: campaigns, claims: claims, tokens: tokens}
}

//
// DTOs
//

// CreateCampaignRequest is the JSON payload for creating a campaign. The
// owner is the authenticated brand, never a body field.
type CreateCampaignRequest struct {
	Name       string `json:"name" example:"Fall Sale"`
	Percentage int    `json:"percentage" example:"80"`
	Quota      int    `json:"quota" example:"2"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListCampaignsResponse wraps a page of the catalog.
type ListCampaignsResponse struct {
	Campaigns  []domain.CampaignView `json:"campaigns"`
	Pagination Pagination            `json:"pagination"`
}

// ListCodesResponse lists the codes issued for one campaign.
type ListCodesResponse struct {
	CampaignID int64               `json:"campaign_id" example:"1"`
	Codes      []domain.IssuedCode `json:"codes"`
}

//
// Helpers
//

// pageFromQuery reads page and page_size, clamped to [1, 100].
func pageFromQuery(c *gin.Context) utils.Page {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"))
}

// campaignID parses the :id path parameter. A malformed id can name no
// campaign, so callers answer 404 rather than 400.
func campaignID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

//
// Handlers
//

// CreateCampaign godoc
// @ID          createCampaign
// @Summary     Create a discount campaign
// @Description Creates a campaign owned by the calling brand. Repeating a request with the same Idempotency-Key returns the original campaign with 200.
// @Tags        Campaigns
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false  "Retry-safe creation key"  example(create-fall-sale-1)
// @Param       body             body    handlers.CreateCampaignRequest  true  "Campaign definition"
//
// @Success     201  {object}  domain.CampaignView
// @Success     200  {object}  domain.CampaignView  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Brand role required"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /campaigns [post]
func (h *Handlers) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	camp, replayed, err := h.campaigns.Create(c.Request.Context(), services.CreateCampaignInput{
		Owner:          middleware.UserID(c),
		Name:           req.Name,
		Percentage:     req.Percentage,
		Quota:          req.Quota,
		IdempotencyKey: key,
	})
	if err != nil {
		failFromService(c, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
		c.Header("Idempotent-Replayed", "true")
	}
	c.Header("Location", fmt.Sprintf("%s/%d", c.FullPath(), camp.ID))
	ok(c, status, camp.View())
}

// ListCampaigns godoc
// @ID          listCampaigns
// @Summary     List available campaigns (paginated)
// @Description Returns campaigns that still have codes left, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Campaigns
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"campaigns:3:1700000000:p1:s20\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListCampaignsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /campaigns [get]
func (h *Handlers) ListCampaigns(c *gin.Context) {
	ctx := c.Request.Context()
	pg := pageFromQuery(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.campaigns.CatalogFingerprint(ctx); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"campaigns:%d:%d:p%d:s%d"`, count, ts, pg.Number, pg.Size)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.campaigns.ListAvailable(ctx, pg.Number, pg.Size)
	if err != nil {
		failFromService(c, err)
		return
	}

	ok(c, http.StatusOK, ListCampaignsResponse{
		Campaigns: items,
		Pagination: Pagination{
			Page:       pg.Number,
			PageSize:   pg.Size,
			Total:      total,
			TotalPages: pg.TotalPages(total),
			HasNext:    pg.HasNext(total),
		},
	})
}

// GetCampaign godoc
// @ID          getCampaign
// @Summary     Get a campaign
// @Description Returns one campaign with its remaining availability, including exhausted campaigns.
// @Tags        Campaigns
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  int  true  "Campaign ID"  minimum(1) example(1)
//
// @Success     200  {object} domain.CampaignView
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Campaign not found"
// @Router      /campaigns/{id} [get]
func (h *Handlers) GetCampaign(c *gin.Context) {
	id, valid := campaignID(c)
	if !valid {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "campaign not found")
		return
	}
	v, err := h.campaigns.Get(c.Request.Context(), id)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// ListCodes godoc
// @ID          listCampaignCodes
// @Summary     List issued codes
// @Description Returns every code issued for the campaign, oldest first. Only the owning brand can see them; other callers get 404.
// @Tags        Campaigns
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  int  true  "Campaign ID"  minimum(1) example(1)
//
// @Success     200  {object} handlers.ListCodesResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     403  {object} handlers.ErrorResponse "Brand role required"
// @Failure     404  {object} handlers.ErrorResponse "Campaign not found"
// @Router      /campaigns/{id}/codes [get]
func (h *Handlers) ListCodes(c *gin.Context) {
	id, valid := campaignID(c)
	if !valid {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "campaign not found")
		return
	}
	codes, err := h.campaigns.ListCodes(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		failFromService(c, err)
		return
	}
	if codes == nil {
		codes = []domain.IssuedCode{}
	}
	ok(c, http.StatusOK, ListCodesResponse{CampaignID: id, Codes: codes})
}
