// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-discount-backend/docs"
	"github.com/tbourn/go-discount-backend/internal/config"
	"github.com/tbourn/go-discount-backend/internal/domain"
	"github.com/tbourn/go-discount-backend/internal/http/handlers"
	"github.com/tbourn/go-discount-backend/internal/http/middleware"
	"github.com/tbourn/go-discount-backend/internal/repo"
)

// Deps are the collaborators the router needs. Tokens is optional and only
// used when the token endpoint is enabled.
type Deps struct {
	DB        *gorm.DB
	Campaigns handlers.CampaignService
	Claims    handlers.ClaimService
	Verifier  middleware.TokenVerifier
	Tokens    handlers.TokenIssuer
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, and then mounts the
// authenticated API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Compression, CORS and security headers
//
// Rate limiting is per route so it can key on the authenticated caller:
// Authenticate, RequireRole, idempotency validation (which marks replays),
// then the identity limiter, then the claim limiter. The unauthenticated
// token endpoint gets its own IP-keyed limiter.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 << 10
	}
	r.Use(limitBody(maxBody))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression and CORS posture (safe defaults: allow all if none configured)
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Location", "Retry-After", "Idempotent-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if deps.DB != nil {
		r.GET("/health/db", dbHealth(deps.DB))
	}

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	var tokens handlers.TokenIssuer
	if cfg.Auth.TokenEndpoint {
		tokens = deps.Tokens
	}
	h := handlers.New(deps.Campaigns, deps.Claims, tokens)

	idem := middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{Scope: domain.ScopeCampaigns, MaxLen: 200},
		idempotencyLookup(deps.DB),
	)
	claimRPS, claimBurst := cfg.Claim.RateRPS, cfg.Claim.RateBurst
	if claimRPS <= 0 {
		claimRPS = 1
	}
	if claimBurst <= 0 {
		claimBurst = 3
	}
	claimLimiter := middleware.NewRateLimiter("claim", claimRPS, claimBurst, middleware.KeyByUserAndRoute())

	// Token buckets per caller once authenticated, per client IP before.
	perIdentity := middleware.NewRateLimiter("identity", cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler()
	perIP := middleware.NewRateLimiter("public", cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler()

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"
	if tokens != nil {
		api.POST("/auth/token", perIP, middleware.NoStore(), h.IssueToken)
	}

	authed := api.Group("", middleware.Authenticate(deps.Verifier))
	{
		// Catalog
		authed.GET("/campaigns", perIdentity, h.ListCampaigns)
		authed.GET("/campaigns/:id", perIdentity, h.GetCampaign)

		// Brand authoring
		authed.POST("/campaigns", middleware.RequireRole(domain.RoleBrand), idem, perIdentity, h.CreateCampaign)
		authed.GET("/campaigns/:id/codes", middleware.RequireRole(domain.RoleBrand), perIdentity, middleware.NoStore(), h.ListCodes)

		// Claims
		authed.POST("/campaigns/:id/claim",
			middleware.RequireRole(domain.RoleUser),
			perIdentity,
			claimLimiter.Handler(),
			middleware.NoStore(),
			h.ClaimCode,
		)
	}
}

// idempotencyLookup answers from the idempotency table. Errors count as a
// miss; the service performs the authoritative lookup inside its own flow.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	if db == nil {
		return nil
	}
	return func(ctx context.Context, owner, scope, key string, now time.Time) (bool, error) {
		_, err := repo.FindIdempotencyKey(ctx, db, owner, scope, key, now)
		return err == nil, nil
	}
}

// dbHealth pings the database with a short timeout.
func dbHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": db.Dialector.Name()})
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
