// Package services – CampaignService
//
// This file implements campaign authoring and the read-only catalog. Creation
// validates input, persists the campaign with consumed = 0 and, when the
// client sent an Idempotency-Key, records the key in the same transaction so
// a retried request resolves to the campaign it created the first time.
//
// The catalog lists campaigns that still have codes left. Pages may be served
// from an optional snapshot cache; cache failures never fail a read.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-discount-backend/internal/domain"
	"github.com/tbourn/go-discount-backend/internal/metrics"
	"github.com/tbourn/go-discount-backend/internal/repo"
	"github.com/tbourn/go-discount-backend/internal/utils"
)

// CatalogInvalidator drops cached catalog pages.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context) error
}

// CatalogCache stores catalog pages keyed by (page, pageSize).
type CatalogCache interface {
	CatalogInvalidator
	Generation(ctx context.Context) (int64, error)
	GetPage(ctx context.Context, gen int64, page, pageSize int) ([]domain.CampaignView, int64, bool, error)
	SetPage(ctx context.Context, gen int64, page, pageSize int, items []domain.CampaignView, total int64) error
}

// CreateCampaignInput is the authoring request.
type CreateCampaignInput struct {
	Owner          string
	Name           string
	Percentage     int
	Quota          int
	IdempotencyKey string
}

// CampaignService provides campaign authoring and catalog reads.
type CampaignService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cache is optional; nil disables catalog caching.
	Cache CatalogCache
	// IdempotencyTTL is how long a creation key is honored.
	IdempotencyTTL time.Duration
}

// NewCampaignService constructs a CampaignService. cache may be nil.
func NewCampaignService(db *gorm.DB, cache CatalogCache, idemTTL time.Duration) *CampaignService {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &CampaignService{DB: db, Cache: cache, IdempotencyTTL: idemTTL}
}

// Create validates and persists a new campaign owned by in.Owner.
//
// Without an idempotency key every call mints a new campaign. With a key, a
// repeat from the same owner within the TTL returns the original campaign and
// replayed = true; this also holds when two identical requests race, since the
// idempotency row's unique index lets only one of them commit.
func (s *CampaignService) Create(ctx context.Context, in CreateCampaignInput) (c *domain.Campaign, replayed bool, err error) {
	tr := otel.Tracer("services/CampaignService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("campaign.owner", in.Owner),
			attribute.Int("campaign.quota", in.Quota),
		),
	)
	defer span.End()

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if prev, ok, err := s.replay(ctx, in.Owner, key); err != nil || ok {
			return prev, ok, err
		}
	}

	c, err = domain.NewCampaign(in.Owner, in.Name, in.Percentage, in.Quota)
	if err != nil {
		return nil, false, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateCampaign(ctx, tx, c); err != nil {
			return err
		}
		if key == "" {
			return nil
		}
		now := time.Now()
		// An expired record that the janitor has not purged yet still holds
		// the unique index.
		if _, err := repo.ReleaseExpiredIdempotencyKey(ctx, tx, c.Owner, domain.ScopeCampaigns, key, now); err != nil {
			return err
		}
		return repo.SaveIdempotencyKey(ctx, tx,
			domain.NewIdempotencyKey(c.Owner, domain.ScopeCampaigns, key, c.ID, now, s.IdempotencyTTL))
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// Lost the race against an identical request; hand back the winner.
		prev, ok, rerr := s.replay(ctx, in.Owner, key)
		if rerr != nil {
			return nil, false, rerr
		}
		if ok {
			return prev, true, nil
		}
	}
	if err != nil {
		return nil, false, err
	}

	metrics.CampaignsCreated.Inc()
	s.invalidate(ctx)
	span.SetAttributes(attribute.Int64("campaign.id", c.ID))
	return c, false, nil
}

// replay resolves a live idempotency record to its campaign.
func (s *CampaignService) replay(ctx context.Context, owner, key string) (*domain.Campaign, bool, error) {
	rec, err := repo.FindIdempotencyKey(ctx, s.DB, strings.TrimSpace(owner), domain.ScopeCampaigns, key, time.Now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	c, err := repo.GetCampaign(ctx, s.DB, rec.CampaignID)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// ListAvailable returns a page of campaigns with codes left, newest first,
// and the total number of such campaigns. It takes no locks.
func (s *CampaignService) ListAvailable(ctx context.Context, page, pageSize int) ([]domain.CampaignView, int64, error) {
	tr := otel.Tracer("services/CampaignService")
	ctx, span := tr.Start(ctx, "ListAvailable",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	pg := utils.NewPage(page, pageSize)

	// The generation is pinned before the database read; a page that spans
	// an invalidation is stored under the stale generation.
	cached := s.Cache != nil
	var gen int64
	if cached {
		var err error
		if gen, err = s.Cache.Generation(ctx); err != nil {
			log.Warn().Err(err).Msg("catalog cache read failed")
			cached = false
		}
	}
	if cached {
		items, total, ok, err := s.Cache.GetPage(ctx, gen, pg.Number, pg.Size)
		if err != nil {
			log.Warn().Err(err).Msg("catalog cache read failed")
		} else if ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return items, total, nil
		}
	}

	total, err := repo.CountAvailable(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	views := []domain.CampaignView{}
	if total > 0 {
		rows, err := repo.ListAvailablePage(ctx, s.DB, pg.Offset(), pg.Size)
		if err != nil {
			return nil, 0, err
		}
		views = make([]domain.CampaignView, 0, len(rows))
		for i := range rows {
			views = append(views, rows[i].View())
		}
	}

	if cached {
		if err := s.Cache.SetPage(ctx, gen, pg.Number, pg.Size, views, total); err != nil {
			log.Warn().Err(err).Msg("catalog cache write failed")
		}
	}
	return views, total, nil
}

// Get returns one campaign's view, exhausted or not.
func (s *CampaignService) Get(ctx context.Context, id int64) (*domain.CampaignView, error) {
	c, err := repo.GetCampaign(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	v := c.View()
	return &v, nil
}

// ListCodes returns the codes issued for a campaign to its owning brand.
// Campaigns owned by someone else are reported as not found.
func (s *CampaignService) ListCodes(ctx context.Context, owner string, id int64) ([]domain.IssuedCode, error) {
	c, err := repo.GetCampaign(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.Owner != owner {
		return nil, ErrCampaignNotFound
	}
	return repo.ListIssuedCodes(ctx, s.DB, id)
}

// CatalogFingerprint returns (count, latest update) of the visible catalog for
// ETag generation.
func (s *CampaignService) CatalogFingerprint(ctx context.Context) (int64, *time.Time, error) {
	v, err := repo.CurrentCatalogVersion(ctx, s.DB)
	return v.Available, v.LastChange, err
}

func (s *CampaignService) invalidate(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx); err != nil {
		log.Warn().Err(err).Msg("catalog cache invalidation failed")
	}
}
