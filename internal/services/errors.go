// Package services defines the business logic for campaigns and claims.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into HTTP status codes is performed at the handler layer.
package services

import (
	"errors"

	"github.com/tbourn/go-discount-backend/internal/domain"
)

// ValidationError names the rejected input field. It matches ErrValidation
// under errors.Is.
type ValidationError = domain.ValidationError

// ErrValidation is returned (wrapped in a *ValidationError) when campaign
// input is out of range.
var ErrValidation = domain.ErrValidation

// Campaign and claim errors.
var (
	// ErrCampaignNotFound indicates that the campaign does not exist or is not
	// visible to the caller.
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrExhausted is returned when every code of the campaign has been issued.
	ErrExhausted = errors.New("campaign exhausted")

	// ErrAlreadyClaimed is returned when the claimant already holds a code for
	// the campaign.
	ErrAlreadyClaimed = errors.New("code already claimed for this campaign")

	// ErrUnavailable means the claim could not be decided in time (lock wait,
	// deadline, commit failure). Nothing was issued; the caller may retry.
	ErrUnavailable = errors.New("claim temporarily unavailable")

	// ErrForbidden is returned when the caller's role does not allow the
	// operation.
	ErrForbidden = errors.New("operation not allowed for this role")
)
