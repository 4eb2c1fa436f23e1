// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for issued codes.
// Issued codes are append-only; nothing here updates or deletes them.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-discount-backend/internal/domain"
)

// HasClaimed reports whether claimant already holds a code for campaignID.
func HasClaimed(ctx context.Context, db *gorm.DB, campaignID int64, claimant string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.IssuedCode{}).
		Where("campaign_id = ? AND claimant = ?", campaignID, claimant).
		Count(&n).Error
	return n > 0, err
}

// CreateIssuedCode appends a code for claimant. The code is a random UUIDv4.
// A second code for the same (campaign, claimant) fails with a unique
// violation; callers detect it with IsDuplicate.
func CreateIssuedCode(ctx context.Context, db *gorm.DB, campaignID int64, claimant string) (*domain.IssuedCode, error) {
	code := &domain.IssuedCode{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Claimant:   claimant,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("Campaign").Create(code).Error; err != nil {
		return nil, err
	}
	return code, nil
}

// ListIssuedCodes returns every code issued for a campaign, oldest first.
func ListIssuedCodes(ctx context.Context, db *gorm.DB, campaignID int64) ([]domain.IssuedCode, error) {
	var out []domain.IssuedCode
	err := db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountIssuedCodes returns the number of rows for a campaign.
func CountIssuedCodes(ctx context.Context, db *gorm.DB, campaignID int64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.IssuedCode{}).
		Where("campaign_id = ?", campaignID).
		Count(&n).Error
	return n, err
}
