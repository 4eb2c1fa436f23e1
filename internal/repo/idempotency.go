package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-discount-backend/internal/domain"
)

// SaveIdempotencyKey inserts k. A second record for the same
// (owner, scope, key) yields ErrDuplicate, even when the first has expired
// but not yet been purged; call ReleaseExpiredIdempotencyKey first to reuse
// such a key.
func SaveIdempotencyKey(ctx context.Context, db *gorm.DB, k *domain.IdempotencyKey) error {
	err := db.WithContext(ctx).Create(k).Error
	if IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// FindIdempotencyKey returns the record for (owner, scope, key) that is
// still live at now, or ErrNotFound.
func FindIdempotencyKey(ctx context.Context, db *gorm.DB, owner, scope, key string, now time.Time) (*domain.IdempotencyKey, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	var k domain.IdempotencyKey
	err := db.WithContext(ctx).
		Where("owner = ? AND scope = ? AND key = ? AND expires_at > ?", owner, scope, key, now.UTC()).
		Take(&k).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return &k, nil
}

// ReleaseExpiredIdempotencyKey deletes the record for (owner, scope, key)
// if its TTL ended at or before now. A live record is left alone.
func ReleaseExpiredIdempotencyKey(ctx context.Context, db *gorm.DB, owner, scope, key string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Where("owner = ? AND scope = ? AND key = ? AND expires_at <= ?", owner, scope, key, now.UTC()).
		Delete(&domain.IdempotencyKey{})
	return res.RowsAffected > 0, res.Error
}

// PurgeExpiredIdempotencyKeys deletes records whose TTL ended at or before
// now and returns how many went.
func PurgeExpiredIdempotencyKeys(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&domain.IdempotencyKey{})
	return res.RowsAffected, res.Error
}
