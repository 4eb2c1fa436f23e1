// Package domain defines the persistence models for discount campaigns and
// the codes issued against them. These types are mapped with GORM and form
// the core data layer of the discount backend.
package domain

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Identity roles carried in access tokens.
const (
	RoleBrand = "brand"
	RoleUser  = "user"
)

// Campaign limits.
const (
	MaxNameRunes  = 255
	MinPercentage = 0
	MaxPercentage = 100
	MinQuota      = 1
)

// Campaign is a brand-owned promotion with a fixed pool of discount codes.
//
// Fields:
//   - ID: auto-increment primary key assigned on insert.
//   - Owner: brand identity that created the campaign; never changes.
//   - Name: display label.
//   - Percentage: discount in [0,100] (DB check).
//   - Quota: total codes that may ever be issued, >= 1 (DB check).
//   - Consumed: codes issued so far, 0 <= Consumed <= Quota (DB check).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Campaign struct {
	ID         int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	Owner      string    `json:"brand"      gorm:"type:varchar(64);not null;index:idx_campaign_owner"`
	Name       string    `json:"name"       gorm:"type:varchar(255);not null"`
	Percentage int       `json:"percentage" gorm:"not null;check:chk_campaign_percentage,percentage BETWEEN 0 AND 100"`
	Quota      int       `json:"quota"      gorm:"not null;check:chk_campaign_quota,quota >= 1"`
	Consumed   int       `json:"consumed"   gorm:"not null;default:0;check:chk_campaign_consumed,consumed >= 0 AND consumed <= quota"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Campaign.
func (Campaign) TableName() string { return "campaigns" }

// Available returns the number of codes that can still be issued.
func (c *Campaign) Available() int {
	if n := c.Quota - c.Consumed; n > 0 {
		return n
	}
	return 0
}

// Exhausted reports whether every code in the pool has been issued.
func (c *Campaign) Exhausted() bool { return c.Consumed >= c.Quota }

// View projects the campaign onto its public catalog shape.
func (c *Campaign) View() CampaignView {
	return CampaignView{
		ID:         c.ID,
		Name:       c.Name,
		Owner:      c.Owner,
		Percentage: c.Percentage,
		Available:  c.Available(),
	}
}

// IssuedCode records that a claimant received one code from a campaign. Rows
// are append-only. The (campaign_id, claimant) unique index guarantees at most
// one code per claimant per campaign even if the application check is bypassed.
type IssuedCode struct {
	ID         string    `json:"code"        gorm:"type:char(36);primaryKey"`
	CampaignID int64     `json:"campaign_id" gorm:"not null;uniqueIndex:ux_issued_codes_campaign_claimant,priority:1"`
	Claimant   string    `json:"claimant"    gorm:"type:varchar(64);not null;uniqueIndex:ux_issued_codes_campaign_claimant,priority:2"`
	CreatedAt  time.Time `json:"created_at"`

	// Campaign is the parent pool. Issued codes are never deleted on their own.
	Campaign Campaign `json:"-" gorm:"foreignKey:CampaignID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for IssuedCode.
func (IssuedCode) TableName() string { return "issued_codes" }

// CampaignView is the read-only catalog projection of a campaign.
type CampaignView struct {
	ID         int64  `json:"id"         example:"1"`
	Name       string `json:"name"       example:"Fall Sale"`
	Owner      string `json:"brand"      example:"acme"`
	Percentage int    `json:"percentage" example:"20"`
	Available  int    `json:"available"  example:"3"`
}

// NewCampaign validates the authoring input and returns an unsaved campaign
// with Consumed = 0. The name is trimmed, whitespace-collapsed and NFC
// normalized so visually identical names are stored identically.
func NewCampaign(owner, name string, percentage, quota int) (*Campaign, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, &ValidationError{Field: "owner", Reason: "owner is required"}
	}
	name = NormalizeName(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "name is required"}
	}
	if utf8.RuneCountInString(name) > MaxNameRunes {
		return nil, &ValidationError{Field: "name", Reason: "name must be at most 255 characters"}
	}
	if percentage < MinPercentage || percentage > MaxPercentage {
		return nil, &ValidationError{Field: "percentage", Reason: "percentage must be between 0 and 100"}
	}
	if quota < MinQuota {
		return nil, &ValidationError{Field: "quota", Reason: "quota must be at least 1"}
	}
	return &Campaign{
		Owner:      owner,
		Name:       name,
		Percentage: percentage,
		Quota:      quota,
	}, nil
}

// NormalizeName trims, collapses runs of whitespace to one space and applies
// Unicode NFC.
func NormalizeName(s string) string {
	s = whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
	return norm.NFC.String(s)
}

var whitespaceRE = regexp.MustCompile(`\s+`)
