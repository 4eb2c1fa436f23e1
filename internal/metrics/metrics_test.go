package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordClaim(t *testing.T) {
	before := testutil.ToFloat64(ClaimsTotal.WithLabelValues(OutcomeExhausted))
	RecordClaim(OutcomeExhausted, 0.002)
	RecordClaim(OutcomeExhausted, 0.004)
	after := testutil.ToFloat64(ClaimsTotal.WithLabelValues(OutcomeExhausted))
	if after-before != 2 {
		t.Fatalf("counter delta = %v; want 2", after-before)
	}
	if n := testutil.CollectAndCount(ClaimDuration, "discount_claim_duration_seconds"); n == 0 {
		t.Fatalf("expected histogram series")
	}
}
