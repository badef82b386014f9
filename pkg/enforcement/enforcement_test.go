package enforcement

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wardctl/ward/pkg/integration"
)

func ptr(v int64) *int64 { return &v }

func TestDecide_TerminalOrder_ErrorBeforeCredentialsBeforeBudget(t *testing.T) {
	// Scenario 1 from the spec's seed suite: status=error, health=failing,
	// budget already exceeded. Only the earliest terminal check should fire.
	integ := integration.Integration{
		Status:           integration.StatusError,
		HealthState:      integration.HealthFailing,
		HealthMessage:    "",
		BudgetLimitCents: ptr(100),
	}
	req := Request{IntegrationID: uuid.New(), EstimatedCostCents: 10}
	r := reads{integ: integ, budgetCurrent: 150}

	d := decide(req, r, 0.80, 60, time.Now())

	if d.Result != ResultHardBlocked {
		t.Fatalf("result = %v, want HARD_BLOCKED", d.Result)
	}
	if len(d.Reasons) != 1 || d.Reasons[0].Code != "integration_error" {
		t.Fatalf("reasons = %+v, want exactly [integration_error]", d.Reasons)
	}
}

func TestDecide_BudgetWarningNotBlock(t *testing.T) {
	// Scenario 2: limit=100, current=82, estimated=5 -> WARNED, not ALLOWED.
	integ := integration.Integration{
		Status:           integration.StatusActive,
		HealthState:      integration.HealthHealthy,
		BudgetLimitCents: ptr(100),
	}
	req := Request{IntegrationID: uuid.New(), EstimatedCostCents: 5}
	r := reads{integ: integ, budgetCurrent: 82}

	d := decide(req, r, 0.80, 60, time.Now())

	if d.Result != ResultWarned {
		t.Fatalf("result = %v, want WARNED", d.Result)
	}
	if d.Degraded {
		t.Error("expected degraded=false")
	}
	if len(d.Reasons) != 1 || d.Reasons[0].Code != "budget_warning" {
		t.Fatalf("reasons = %+v, want exactly [budget_warning]", d.Reasons)
	}
	pct, _ := d.Metadata["budget_threshold_percent"].(float64)
	if pct < 86 || pct > 88 {
		t.Errorf("threshold_percent = %v, want ~87", pct)
	}
}

func TestDecide_BudgetExceededInclusiveAtLimit(t *testing.T) {
	// §8 boundary: projected == limit is inclusive -> BLOCKED.
	integ := integration.Integration{
		Status:           integration.StatusActive,
		HealthState:      integration.HealthHealthy,
		BudgetLimitCents: ptr(100),
	}
	req := Request{IntegrationID: uuid.New(), EstimatedCostCents: 10}
	r := reads{integ: integ, budgetCurrent: 90}

	d := decide(req, r, 0.80, 60, time.Now())

	if d.Result != ResultBlocked {
		t.Fatalf("result = %v, want BLOCKED", d.Result)
	}
}

func TestDecide_RateBoundary(t *testing.T) {
	integ := integration.Integration{Status: integration.StatusActive, HealthState: integration.HealthHealthy}
	req := Request{IntegrationID: uuid.New()}

	// 59th request: allowed.
	allowed := decide(req, reads{integ: integ, rateCount: 59}, 0.80, 60, time.Now())
	if allowed.Result != ResultAllowed {
		t.Fatalf("at count=59, result = %v, want ALLOWED", allowed.Result)
	}

	// 60th request: throttled.
	throttled := decide(req, reads{integ: integ, rateCount: 60}, 0.80, 60, time.Now())
	if throttled.Result != ResultThrottled {
		t.Fatalf("at count=60, result = %v, want THROTTLED", throttled.Result)
	}
}

func TestDecide_DegradedOnDataError_NotFailClosed(t *testing.T) {
	integ := integration.Integration{
		Status:           integration.StatusActive,
		HealthState:      integration.HealthHealthy,
		BudgetLimitCents: ptr(100),
	}
	req := Request{IntegrationID: uuid.New(), EstimatedCostCents: 5}
	r := reads{integ: integ, budgetErr: errTest}

	d := decide(req, r, 0.80, 0, time.Now())

	if !d.Degraded || d.DegradedReason != DegradedBudgetLookupFailed {
		t.Fatalf("expected degraded budget_lookup_failed, got degraded=%v reason=%v", d.Degraded, d.DegradedReason)
	}
	if d.Result == ResultHardBlocked || d.Result == ResultBlocked {
		t.Errorf("data-source errors must fail open, not closed: result = %v", d.Result)
	}
}

func TestDecide_AllowedWhenClean(t *testing.T) {
	integ := integration.Integration{Status: integration.StatusActive, HealthState: integration.HealthHealthy}
	req := Request{IntegrationID: uuid.New()}
	d := decide(req, reads{integ: integ}, 0.80, 0, time.Now())
	if d.Result != ResultAllowed {
		t.Fatalf("result = %v, want ALLOWED", d.Result)
	}
}

func TestMoreRestrictive_SeverityOrdering(t *testing.T) {
	order := []Result{ResultAllowed, ResultWarned, ResultThrottled, ResultBlocked, ResultHardBlocked}
	for i := 1; i < len(order); i++ {
		if !MoreRestrictive(order[i], order[i-1]) {
			t.Errorf("%v should be more restrictive than %v", order[i], order[i-1])
		}
		if MoreRestrictive(order[i-1], order[i]) {
			t.Errorf("%v should not be more restrictive than %v", order[i-1], order[i])
		}
	}
}

type testErr struct{}

func (testErr) Error() string { return "simulated lookup failure" }

var errTest = testErr{}
