// Package services – ClaimService
//
// This file implements the claim coordinator: the one place where discount
// codes are handed out. Every claim is a single unit of work against the
// store:
//
//  1. lock the campaign row (SELECT ... FOR UPDATE)
//  2. reject unknown campaigns
//  3. reject claimants that already hold a code
//  4. reject exhausted campaigns
//  5. consumed = consumed + 1 (guarded by consumed < quota), insert the code
//  6. commit
//
// Any failure rolls the whole unit back, so consumed and the issued_codes
// rows never disagree. Lock waits, deadlines, busy databases and commit
// failures surface as ErrUnavailable and may be retried with backoff.
//
// Observability: Claim is OpenTelemetry-instrumented and records the outcome
// in Prometheus.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-discount-backend/internal/domain"
	"github.com/tbourn/go-discount-backend/internal/metrics"
	"github.com/tbourn/go-discount-backend/internal/repo"
)

// ClaimStore is the set of transactional store operations the coordinator
// needs. Every method receives the transaction handle.
type ClaimStore interface {
	LockCampaign(ctx context.Context, tx *gorm.DB, id int64) (*domain.Campaign, error)
	HasClaimed(ctx context.Context, tx *gorm.DB, campaignID int64, claimant string) (bool, error)
	IncrementConsumed(ctx context.Context, tx *gorm.DB, id int64) (bool, error)
	CreateIssuedCode(ctx context.Context, tx *gorm.DB, campaignID int64, claimant string) (*domain.IssuedCode, error)
}

// repoClaimStore adapts the repo free functions to ClaimStore.
type repoClaimStore struct{}

func (repoClaimStore) LockCampaign(ctx context.Context, tx *gorm.DB, id int64) (*domain.Campaign, error) {
	return repo.LockCampaign(ctx, tx, id)
}

func (repoClaimStore) HasClaimed(ctx context.Context, tx *gorm.DB, campaignID int64, claimant string) (bool, error) {
	return repo.HasClaimed(ctx, tx, campaignID, claimant)
}

func (repoClaimStore) IncrementConsumed(ctx context.Context, tx *gorm.DB, id int64) (bool, error) {
	return repo.IncrementConsumed(ctx, tx, id)
}

func (repoClaimStore) CreateIssuedCode(ctx context.Context, tx *gorm.DB, campaignID int64, claimant string) (*domain.IssuedCode, error) {
	return repo.CreateIssuedCode(ctx, tx, campaignID, claimant)
}

// commitTx is a test seam for commit failures.
var commitTx = func(tx *gorm.DB) error { return tx.Commit().Error }

// ClaimOptions tunes the coordinator.
type ClaimOptions struct {
	// LockTimeout bounds one attempt, including the wait for the row lock.
	LockTimeout time.Duration
	// MaxAttempts is the total number of attempts for transient failures (>= 1).
	MaxAttempts int
	// RetryBackoff is the initial backoff between attempts.
	RetryBackoff time.Duration
	// Cache, when set, is invalidated after every issued code.
	Cache CatalogInvalidator
}

// ClaimService issues at most one code per claimant per campaign and never
// more than the campaign's quota.
type ClaimService struct {
	DB    *gorm.DB
	Store ClaimStore
	Cache CatalogInvalidator

	LockTimeout  time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// NewClaimService constructs a ClaimService backed by the repo package.
func NewClaimService(db *gorm.DB, opts ClaimOptions) *ClaimService {
	s := &ClaimService{
		DB:           db,
		Store:        repoClaimStore{},
		Cache:        opts.Cache,
		LockTimeout:  opts.LockTimeout,
		MaxAttempts:  opts.MaxAttempts,
		RetryBackoff: opts.RetryBackoff,
	}
	if s.MaxAttempts < 1 {
		s.MaxAttempts = 1
	}
	if s.RetryBackoff <= 0 {
		s.RetryBackoff = 25 * time.Millisecond
	}
	return s
}

// Claim issues a code from campaignID to claimant.
//
// Outcomes:
//   - the new IssuedCode on success
//   - ErrCampaignNotFound, ErrAlreadyClaimed, ErrExhausted (permanent)
//   - ErrUnavailable when the store could not decide in time; nothing was issued
//
// A claimant that already holds a code gets ErrAlreadyClaimed even when the
// campaign has since run out.
func (s *ClaimService) Claim(ctx context.Context, campaignID int64, claimant string) (*domain.IssuedCode, error) {
	tr := otel.Tracer("services/ClaimService")
	ctx, span := tr.Start(ctx, "Claim",
		trace.WithAttributes(
			attribute.Int64("campaign.id", campaignID),
			attribute.String("claimant", claimant),
		),
	)
	defer span.End()
	start := time.Now()

	claimant = strings.TrimSpace(claimant)
	if claimant == "" {
		return nil, &ValidationError{Field: "claimant", Reason: "claimant is required"}
	}

	code, err := s.claimWithRetry(ctx, campaignID, claimant)

	outcome := claimOutcome(err)
	metrics.RecordClaim(outcome, time.Since(start).Seconds())
	span.SetAttributes(attribute.String("claim.outcome", outcome))
	if outcome == metrics.OutcomeUnavailable || outcome == metrics.OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if ierr := s.Cache.Invalidate(ctx); ierr != nil {
			log.Warn().Err(ierr).Int64("campaign_id", campaignID).Msg("catalog cache invalidation failed")
		}
	}
	return code, nil
}

func (s *ClaimService) claimWithRetry(ctx context.Context, campaignID int64, claimant string) (*domain.IssuedCode, error) {
	if s.MaxAttempts <= 1 {
		return s.claimOnce(ctx, campaignID, claimant)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.RetryBackoff
	b.MaxInterval = 20 * s.RetryBackoff

	code, err := backoff.Retry(ctx,
		func() (*domain.IssuedCode, error) {
			code, err := s.claimOnce(ctx, campaignID, claimant)
			if err == nil || errors.Is(err, ErrUnavailable) {
				return code, err
			}
			return nil, backoff.Permanent(err)
		},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.MaxAttempts)),
		backoff.WithNotify(func(err error, d time.Duration) {
			metrics.ClaimRetries.Inc()
			log.Debug().Err(err).Dur("backoff", d).Int64("campaign_id", campaignID).Msg("retrying claim")
		}),
	)
	if err != nil && repo.IsTransient(err) && !errors.Is(err, ErrUnavailable) {
		// The caller's context ended while waiting between attempts.
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return code, err
}

// claimOnce runs one locked unit of work.
func (s *ClaimService) claimOnce(ctx context.Context, campaignID int64, claimant string) (*domain.IssuedCode, error) {
	if s.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.LockTimeout)
		defer cancel()
	}

	tx := s.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, storeErr(tx.Error)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := repo.SetLockTimeout(ctx, tx, s.LockTimeout); err != nil {
		return nil, storeErr(err)
	}

	c, err := s.Store.LockCampaign(ctx, tx, campaignID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}

	held, err := s.Store.HasClaimed(ctx, tx, campaignID, claimant)
	if err != nil {
		return nil, storeErr(err)
	}
	if held {
		return nil, ErrAlreadyClaimed
	}
	if c.Exhausted() {
		return nil, ErrExhausted
	}

	ok, err := s.Store.IncrementConsumed(ctx, tx, campaignID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !ok {
		return nil, ErrExhausted
	}

	code, err := s.Store.CreateIssuedCode(ctx, tx, campaignID, claimant)
	if err != nil {
		if repo.IsDuplicate(err) {
			return nil, ErrAlreadyClaimed
		}
		return nil, storeErr(err)
	}

	if err := commitTx(tx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	committed = true
	return code, nil
}

// storeErr maps transient store failures to ErrUnavailable and passes
// everything else through.
func storeErr(err error) error {
	if repo.IsTransient(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func claimOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeIssued
	case errors.Is(err, ErrCampaignNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrExhausted):
		return metrics.OutcomeExhausted
	case errors.Is(err, ErrAlreadyClaimed):
		return metrics.OutcomeAlreadyClaimed
	case errors.Is(err, ErrUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
