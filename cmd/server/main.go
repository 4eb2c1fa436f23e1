// Command server runs the discount campaign HTTP API.
//
//	@title						Discount Backend API
//	@version					1.0
//	@description				Brands publish discount campaigns with a fixed pool of codes; users claim at most one code per campaign.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"gorm.io/gorm"

	"github.com/tbourn/go-discount-backend/internal/auth"
	"github.com/tbourn/go-discount-backend/internal/cache"
	"github.com/tbourn/go-discount-backend/internal/config"
	httpapi "github.com/tbourn/go-discount-backend/internal/http"
	"github.com/tbourn/go-discount-backend/internal/observability"
	"github.com/tbourn/go-discount-backend/internal/repo"
	"github.com/tbourn/go-discount-backend/internal/services"
	"github.com/tbourn/go-discount-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.ConfigureLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version))
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("database unavailable")
	}
	sqlDB, _ := db.DB()

	campaignCache := openCache(ctx, cfg)

	issuer, err := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("token issuer")
	}

	campaigns := services.NewCampaignService(db, campaignCache, cfg.IdempotencyTTL)
	claims := services.NewClaimService(db, services.ClaimOptions{
		LockTimeout:  cfg.Claim.LockTimeout,
		MaxAttempts:  cfg.Claim.MaxAttempts,
		RetryBackoff: cfg.Claim.RetryBackoff,
		Cache:        campaignCache,
	})

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:        db,
		Campaigns: campaigns,
		Claims:    claims,
		Verifier:  issuer,
		Tokens:    issuer,
	}, cfg)

	var handler http.Handler = r
	if cfg.H2C {
		handler = h2c.NewHandler(r, &http2.Server{MaxConcurrentStreams: 1000})
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go purgeIdempotency(ctx, db, time.Hour)

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("db", cfg.DB.Driver).
			Bool("cache", campaignCache != nil).
			Bool("token_endpoint", cfg.Auth.TokenEndpoint).
			Bool("h2c", cfg.H2C).
			Str("version", version).
			Msg("discount service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
	if sqlDB != nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server exited")
}

// openDB connects, instruments and migrates the store. PostgreSQL may still
// be starting when the service boots, so the connection is retried.
func openDB(ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	connect := func() (*gorm.DB, error) {
		db, err := repo.Open(cfg.DB.Driver, cfg.DatabaseDSN())
		if err != nil {
			log.Warn().Err(err).Msg("database connect failed")
			return nil, err
		}
		return db, nil
	}
	db, err := backoff.Retry(ctx, connect,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(30*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if cfg.OTEL.Enabled {
		if err := repo.Instrument(db); err != nil {
			return nil, err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// openCache returns the Redis catalog cache, or nil when REDIS_ADDR is unset
// or unreachable. The service works without it.
func openCache(ctx context.Context, cfg config.Config) services.CatalogCache {
	if cfg.Cache.RedisAddr == "" {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rdb, err := cache.Connect(pingCtx, cfg.Cache.RedisAddr)
	if err != nil {
		log.Warn().Err(err).Msg("catalog cache disabled")
		return nil
	}
	return cache.NewCatalogCache(rdb, cache.WithTTL(cfg.Cache.TTL))
}

// purgeIdempotency deletes expired idempotency records until ctx ends.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotencyKeys(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("idempotency records purged")
			}
		}
	}
}
