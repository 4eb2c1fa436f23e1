package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScopeCampaigns namespaces Idempotency-Keys sent to POST /campaigns.
const ScopeCampaigns = "campaigns"

// IdempotencyKey maps a brand's Idempotency-Key to the campaign its first
// request created. (Owner, Scope, Key) is unique, so two racing requests with
// the same key cannot both commit a campaign.
type IdempotencyKey struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Owner      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_owner_scope_key,priority:1"`
	Scope      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_owner_scope_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_owner_scope_key,priority:3"`
	CampaignID int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (IdempotencyKey) TableName() string { return "idempotency_keys" }

// NewIdempotencyKey binds key to campaignID for ttl starting at now.
func NewIdempotencyKey(owner, scope, key string, campaignID int64, now time.Time, ttl time.Duration) *IdempotencyKey {
	now = now.UTC()
	return &IdempotencyKey{
		ID:         uuid.NewString(),
		Owner:      strings.TrimSpace(owner),
		Scope:      scope,
		Key:        key,
		CampaignID: campaignID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

// Live reports whether the record still answers replays at now.
func (k *IdempotencyKey) Live(now time.Time) bool {
	return now.Before(k.ExpiresAt)
}
