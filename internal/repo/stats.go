package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-discount-backend/internal/domain"
)

// CatalogVersion identifies the state of the visible catalog. Every claim
// bumps its campaign's updated_at, so the pair moves whenever a listing
// could change.
type CatalogVersion struct {
	Available  int64
	LastChange *time.Time // nil when nothing is available
}

// CurrentCatalogVersion reads the count of campaigns with codes left and the
// newest updated_at among them.
func CurrentCatalogVersion(ctx context.Context, db *gorm.DB) (CatalogVersion, error) {
	var v CatalogVersion
	available := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Campaign{}).Where("consumed < quota")
	}

	if err := available().Count(&v.Available).Error; err != nil {
		return CatalogVersion{}, err
	}
	if v.Available == 0 {
		return v, nil
	}

	// Ordered pluck instead of MAX(): SQLite returns MAX over a datetime
	// column as TEXT.
	var latest []time.Time
	if err := available().Order("updated_at DESC").Limit(1).Pluck("updated_at", &latest).Error; err != nil {
		return CatalogVersion{}, err
	}
	if len(latest) == 1 {
		v.LastChange = &latest[0]
	}
	return v, nil
}
