// Package handlers implements the discount API endpoints on Gin.
//
// Every failure leaves through fail or failFromService, so all error bodies
// share one envelope:
//
//	HTTP/1.1 410 Gone
//	{"request_id":"123e4567-e89b-12d3-a456-426614174000","code":"exhausted","message":"campaign exhausted"}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-discount-backend/internal/http/middleware"
	"github.com/tbourn/go-discount-backend/internal/services"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"campaign not found"`
	// Field names the rejected input on validation_failed.
	Field string `json:"field,omitempty" example:"percentage"`
}

// serviceOutcome is the HTTP face of one service sentinel.
type serviceOutcome struct {
	target     error
	status     int
	code       string
	message    string
	retryAfter string
	record     bool // attach the cause to the gin context for the access log
}

var serviceOutcomes = []serviceOutcome{
	{target: services.ErrCampaignNotFound, status: http.StatusNotFound, code: ErrCodeNotFound, message: "campaign not found"},
	{target: services.ErrExhausted, status: http.StatusGone, code: ErrCodeExhausted, message: "campaign exhausted"},
	{target: services.ErrAlreadyClaimed, status: http.StatusConflict, code: ErrCodeAlreadyClaimed, message: "a code for this campaign was already issued to you"},
	{target: services.ErrUnavailable, status: http.StatusServiceUnavailable, code: ErrCodeUnavailable, message: "claim could not be completed, retry later", retryAfter: "1", record: true},
	{target: services.ErrForbidden, status: http.StatusForbidden, code: ErrCodeForbidden, message: "operation not allowed"},
}

// failFromService is the one place service errors become HTTP responses.
// Anything unrecognised is an opaque 500; its text reaches the log only.
func failFromService(c *gin.Context, err error) {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		failField(c, http.StatusBadRequest, ErrCodeValidation, ve.Error(), ve.Field)
		return
	}
	for _, o := range serviceOutcomes {
		if !errors.Is(err, o.target) {
			continue
		}
		if o.retryAfter != "" {
			c.Header("Retry-After", o.retryAfter)
		}
		if o.record {
			_ = c.Error(err)
		}
		fail(c, o.status, o.code, o.message)
		return
	}
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

func fail(c *gin.Context, status int, code, msg string) {
	failField(c, status, code, msg, "")
}

func failField(c *gin.Context, status int, code, msg, field string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Msg(msg)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
		Field:     field,
	})
}

// Fail writes the error envelope. The router uses it for 404 and 405.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
