// Package metrics holds the domain-level Prometheus collectors for the claim
// path. HTTP-level metrics live in the middleware package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Claim outcomes used as the "outcome" label.
const (
	OutcomeIssued         = "issued"
	OutcomeNotFound       = "not_found"
	OutcomeExhausted      = "exhausted"
	OutcomeAlreadyClaimed = "already_claimed"
	OutcomeUnavailable    = "unavailable"
	OutcomeError          = "error"
)

var (
	// ClaimsTotal counts claim attempts by final outcome.
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discount_claims_total",
			Help: "Claim attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// ClaimDuration tracks the latency of the whole claim operation,
	// including retries.
	ClaimDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "discount_claim_duration_seconds",
			Help: "Duration of claim requests in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"outcome"},
	)

	// ClaimRetries counts transient failures that triggered another attempt.
	ClaimRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "discount_claim_retries_total",
			Help: "Claim attempts retried after a transient store failure.",
		},
	)

	// CampaignsCreated counts newly created campaigns (replays excluded).
	CampaignsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "discount_campaigns_created_total",
			Help: "Campaigns created.",
		},
	)
)

// RecordClaim records one finished claim.
func RecordClaim(outcome string, seconds float64) {
	ClaimsTotal.WithLabelValues(outcome).Inc()
	ClaimDuration.WithLabelValues(outcome).Observe(seconds)
}
