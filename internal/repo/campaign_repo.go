// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Campaign
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - When a campaign is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, lock timeouts, etc.), the raw gorm
//     error is propagated; see IsDuplicate and IsTransient.
//
// Functions:
//
//   - CreateCampaign(ctx, db, c) -> error
//   - GetCampaign(ctx, db, id) -> *domain.Campaign, error
//   - LockCampaign(ctx, tx, id) -> *domain.Campaign, error
//     SELECT ... FOR UPDATE on PostgreSQL; a plain read on SQLite, whose
//     single-connection pool already serializes transactions.
//   - IncrementConsumed(ctx, tx, id) -> bool, error
//     Conditional consumed+1 guarded by consumed < quota.
//   - CountAvailable / ListAvailablePage: the catalog query.
package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-discount-backend/internal/domain"
)

// CreateCampaign inserts c and fills its auto-increment ID.
func CreateCampaign(ctx context.Context, db *gorm.DB, c *domain.Campaign) error {
	now := time.Now().UTC()
	c.Consumed = 0
	c.CreatedAt = now
	c.UpdatedAt = now
	return db.WithContext(ctx).Create(c).Error
}

// GetCampaign fetches a campaign by id without locking.
func GetCampaign(ctx context.Context, db *gorm.DB, id int64) (*domain.Campaign, error) {
	var c domain.Campaign
	if err := db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// LockCampaign reads a campaign row and holds its write lock until tx ends.
// Claims against other campaigns are not blocked.
func LockCampaign(ctx context.Context, tx *gorm.DB, id int64) (*domain.Campaign, error) {
	var c domain.Campaign
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// IncrementConsumed bumps consumed by one only while consumed < quota. It
// reports false when the guard rejected the update.
func IncrementConsumed(ctx context.Context, tx *gorm.DB, id int64) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&domain.Campaign{}).
		Where("id = ? AND consumed < quota", id).
		UpdateColumns(map[string]any{
			"consumed":   gorm.Expr("consumed + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountAvailable returns how many campaigns still have codes left.
func CountAvailable(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Campaign{}).
		Where("consumed < quota").
		Count(&n).Error
	return n, err
}

// ListAvailablePage returns a page of campaigns with codes left, newest first.
func ListAvailablePage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Campaign, error) {
	var out []domain.Campaign
	err := db.WithContext(ctx).
		Where("consumed < quota").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SetLockTimeout bounds how long statements in tx may wait for row locks.
// It only applies to PostgreSQL; other dialects are left untouched.
func SetLockTimeout(ctx context.Context, tx *gorm.DB, d time.Duration) error {
	if d <= 0 || tx.Dialector.Name() != DriverPostgres {
		return nil
	}
	// SET does not accept bind parameters.
	return tx.WithContext(ctx).Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())).Error
}
