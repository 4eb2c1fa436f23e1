// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Idempotency-Key handling for campaign creation. The validator only checks
// the header and asks a lookup whether (owner, scope, key) already produced a
// campaign; the service owns the write and resolves a replay to the original
// row. A known key marks the request as a replay, which also exempts it from
// rate limiting.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-chosen key on POST /campaigns.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var idemKeyChars = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	Scope   string         // e.g. domain.ScopeCampaigns
	MaxLen  int            // <= 0 means 200
	Pattern *regexp.Regexp // nil means ^[A-Za-z0-9._~\-:]+$
}

// IdempotencyLookup reports whether a live record exists for
// (owner, scope, key) at now. Expiry is the lookup's business.
type IdempotencyLookup func(ctx context.Context, owner, scope, key string, now time.Time) (bool, error)

type keyPolicy struct {
	maxLen  int
	pattern *regexp.Regexp
}

func newKeyPolicy(o IdempotencyOptions) keyPolicy {
	p := keyPolicy{maxLen: o.MaxLen, pattern: o.Pattern}
	if p.maxLen <= 0 {
		p.maxLen = defaultIdemMaxLen
	}
	if p.pattern == nil {
		p.pattern = idemKeyChars
	}
	return p
}

func (p keyPolicy) check(key string) error {
	if len(key) > p.maxLen {
		return fmt.Errorf("Idempotency-Key longer than %d characters", p.maxLen)
	}
	if !p.pattern.MatchString(key) {
		return errors.New("Idempotency-Key contains unsupported characters")
	}
	return nil
}

// IdempotencyValidator stashes a valid Idempotency-Key for the handler and
// flags replays. Requests without the header pass through untouched; a
// malformed key is rejected with 400 validation_failed. The lookup only runs
// for authenticated callers, since keys are scoped to their owner, and a
// lookup error counts as a miss.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	policy := newKeyPolicy(opts)

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if err := policy.check(key); err != nil {
			abortJSONField(c, http.StatusBadRequest, "validation_failed", err.Error(), HeaderIdempotencyKey)
			return
		}
		c.Set(ctxKeyIdemKey, key)

		owner := UserID(c)
		if lookup == nil || owner == "" {
			c.Next()
			return
		}
		found, err := lookup(c.Request.Context(), owner, opts.Scope, key, time.Now().UTC())
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Str("scope", opts.Scope).Msg("idempotency lookup failed")
		}
		if found {
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}

// GetIdempotencyKey returns the key accepted by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	key := c.GetString(ctxKeyIdemKey)
	return key, key != ""
}

// IsReplay reports whether the key was already known when the request
// arrived.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}
