package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these, never
// on the message text.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	ErrCodeValidation     = "validation_failed"
	ErrCodeExhausted      = "exhausted"
	ErrCodeAlreadyClaimed = "already_claimed"
	ErrCodeUnavailable    = "unavailable"
)
