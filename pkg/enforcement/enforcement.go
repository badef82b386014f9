// Package enforcement implements component D, the Enforcement Engine: the
// strict-order, most-restrictive-wins quota decision algorithm (§4.D).
package enforcement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wardctl/ward/pkg/integration"
	"github.com/wardctl/ward/pkg/storage"
	"github.com/wardctl/ward/pkg/usage"
)

// Result is the decision severity. Ordering below is load-bearing: a more
// restrictive result always wins over a less restrictive one.
type Result string

const (
	ResultHardBlocked Result = "HARD_BLOCKED"
	ResultBlocked     Result = "BLOCKED"
	ResultThrottled   Result = "THROTTLED"
	ResultWarned      Result = "WARNED"
	ResultAllowed     Result = "ALLOWED"
)

var severityRank = map[Result]int{
	ResultHardBlocked: 4,
	ResultBlocked:     3,
	ResultThrottled:   2,
	ResultWarned:      1,
	ResultAllowed:     0,
}

// MoreRestrictive reports whether a outranks b in the HARD_BLOCKED >
// BLOCKED > THROTTLED > WARNED > ALLOWED ordering.
func MoreRestrictive(a, b Result) bool { return severityRank[a] > severityRank[b] }

// DegradedReason names which read failed when a decision is taken with
// degraded=true. Supplemented from the original source's
// degraded_mode_checker.py — the bare spec only asks for a "*_degraded"
// string; this makes the failing read a first-class, queryable field.
type DegradedReason string

const (
	DegradedBudgetLookupFailed DegradedReason = "budget_lookup_failed"
	DegradedTokenLookupFailed  DegradedReason = "token_lookup_failed"
	DegradedRateLookupFailed   DegradedReason = "rate_lookup_failed"
)

// Reason is one accumulated decision reason code.
type Reason struct {
	Code    string
	Message string
}

// Decision is the EnforcementDecision returned to the caller.
type Decision struct {
	Result         Result
	IntegrationID  uuid.UUID
	TenantID       string
	Reasons        []Reason
	Degraded       bool
	DegradedReason DegradedReason
	EvaluatedAt    time.Time
	Metadata       map[string]any
}

// Request is the input to Evaluate.
type Request struct {
	TenantID           string
	IntegrationID      uuid.UUID
	EstimatedCostCents int64
	EstimatedTokens    int64
}

// reads bundles the I/O results the pure decide() function needs. Keeping it
// separate from Evaluate's database calls lets the decision algorithm itself
// be unit tested without a store, matching the teacher's escalation engine
// test pattern of exercising deterministic logic directly.
type reads struct {
	integ integration.Integration

	budgetCurrent int64
	budgetErr     error
	tokenCurrent  int64
	tokenErr      error
	rateCount     int64
	rateErr       error
}

// Engine evaluates enforcement decisions against an integration's
// configured limits and current usage.
type Engine struct {
	integrations       *integration.Store
	usageDriver        *usage.Driver
	rateCounter        *usage.RateCounter
	warningThreshold   float64 // e.g. 0.80
	rateLimitPerWindow int64   // e.g. 60 requests per window
}

// New builds an Engine. warningThresholdPct is the §6 warning_threshold_pct
// default (80); rateLimitPerWindow is the configured ceiling for the rate
// counter's window (default 60).
func New(integrations *integration.Store, usageDriver *usage.Driver, rateCounter *usage.RateCounter, warningThresholdPct int, rateLimitPerWindow int64) *Engine {
	return &Engine{
		integrations:       integrations,
		usageDriver:        usageDriver,
		rateCounter:        rateCounter,
		warningThreshold:   float64(warningThresholdPct) / 100.0,
		rateLimitPerWindow: rateLimitPerWindow,
	}
}

// Evaluate performs the required reads, then runs the deterministic decision
// algorithm over them.
func (e *Engine) Evaluate(ctx context.Context, scope *storage.Scope, req Request) (*Decision, error) {
	now := time.Now().UTC()

	integ, err := e.integrations.Get(ctx, scope, req.IntegrationID)
	if err != nil {
		return &Decision{
			Result:        ResultHardBlocked,
			IntegrationID: req.IntegrationID,
			TenantID:      req.TenantID,
			EvaluatedAt:   now,
			Metadata:      map[string]any{},
			Reasons:       []Reason{{Code: "integration_not_found", Message: "integration does not exist or is deleted"}},
		}, nil
	}

	r := reads{integ: integ}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	if integ.BudgetLimitCents != nil {
		r.budgetCurrent, r.budgetErr = e.usageDriver.FetchBudgetUsage(ctx, scope, req.IntegrationID, monthStart)
	}
	if integ.TokenLimitMonth != nil {
		r.tokenCurrent, r.tokenErr = e.usageDriver.FetchTokenUsage(ctx, scope, req.IntegrationID, monthStart)
	}
	if integ.RateLimitRPM != nil || e.rateLimitPerWindow > 0 {
		r.rateCount, r.rateErr = e.rateCounter.Increment(ctx, req.IntegrationID.String())
	}

	limit := e.rateLimitPerWindow
	if integ.RateLimitRPM != nil {
		limit = *integ.RateLimitRPM
	}

	return decide(req, r, e.warningThreshold, limit, now), nil
}

// decide implements the eight-step strict-order algorithm (§4.D). The
// earliest decisive (terminal, non-warning) check returns immediately;
// warning reasons accumulate only once every terminal check has passed.
func decide(req Request, r reads, warningThreshold float64, rateLimit int64, now time.Time) *Decision {
	d := &Decision{
		IntegrationID: req.IntegrationID,
		TenantID:      req.TenantID,
		EvaluatedAt:   now,
		Metadata:      map[string]any{},
	}
	integ := r.integ
	var warnings []Reason

	// Step 2: disabled.
	if integ.Status == integration.StatusDisabled {
		d.Result = ResultHardBlocked
		d.Reasons = append(d.Reasons, Reason{Code: "integration_disabled", Message: "integration is disabled"})
		return d
	}

	// Step 3: errored.
	if integ.Status == integration.StatusError {
		d.Result = ResultHardBlocked
		msg := "integration is in an error state"
		if integ.HealthMessage != "" {
			msg = integ.HealthMessage
		}
		d.Reasons = append(d.Reasons, Reason{Code: "integration_error", Message: msg})
		return d
	}

	// Step 4: failing health.
	if integ.HealthState == integration.HealthFailing {
		d.Result = ResultHardBlocked
		d.Reasons = append(d.Reasons, Reason{Code: "credentials_invalid", Message: "integration credentials are failing health checks"})
		return d
	}

	// Step 5: budget.
	if integ.BudgetLimitCents != nil {
		if r.budgetErr != nil {
			d.Degraded = true
			d.DegradedReason = DegradedBudgetLookupFailed
			d.Reasons = append(d.Reasons, Reason{Code: "budget_degraded", Message: fmt.Sprintf("budget lookup failed: %v", r.budgetErr)})
		} else {
			limit := *integ.BudgetLimitCents
			projected := r.budgetCurrent + req.EstimatedCostCents
			if projected >= limit {
				d.Result = ResultBlocked
				d.Reasons = append(d.Reasons, Reason{Code: "budget_exceeded", Message: "projected cost meets or exceeds the budget limit"})
				return d
			}
			if float64(r.budgetCurrent) >= warningThreshold*float64(limit) {
				pct := 0.0
				if limit > 0 {
					pct = float64(projected) / float64(limit) * 100
				}
				warnings = append(warnings, Reason{Code: "budget_warning", Message: fmt.Sprintf("projected cost is at %.0f%% of budget", pct)})
				d.Metadata["budget_threshold_percent"] = pct
			}
		}
	}

	// Step 6: tokens — same pattern.
	if integ.TokenLimitMonth != nil {
		if r.tokenErr != nil {
			d.Degraded = true
			d.DegradedReason = DegradedTokenLookupFailed
			d.Reasons = append(d.Reasons, Reason{Code: "token_degraded", Message: fmt.Sprintf("token lookup failed: %v", r.tokenErr)})
		} else {
			limit := *integ.TokenLimitMonth
			projected := r.tokenCurrent + req.EstimatedTokens
			if projected >= limit {
				d.Result = ResultBlocked
				d.Reasons = append(d.Reasons, Reason{Code: "token_limit_exceeded", Message: "projected token usage meets or exceeds the monthly limit"})
				return d
			}
			if float64(r.tokenCurrent) >= warningThreshold*float64(limit) {
				warnings = append(warnings, Reason{Code: "token_warning", Message: "month-to-date token usage is near the monthly limit"})
			}
		}
	}

	// Step 7: rate, windowed over the configured window (60s default).
	if rateLimit > 0 {
		if r.rateErr != nil {
			d.Degraded = true
			d.DegradedReason = DegradedRateLookupFailed
			d.Reasons = append(d.Reasons, Reason{Code: "rate_degraded", Message: fmt.Sprintf("rate lookup failed: %v", r.rateErr)})
		} else if r.rateCount >= rateLimit {
			d.Result = ResultThrottled
			d.Reasons = append(d.Reasons, Reason{Code: "rate_limit_exceeded", Message: "request rate exceeded the configured window limit"})
			d.Metadata["retry_after_seconds"] = 60
			return d
		}
	}

	// Step 8: warnings accumulated but nothing terminal fired.
	d.Reasons = append(d.Reasons, warnings...)
	if len(d.Reasons) > 0 {
		d.Result = ResultWarned
	} else {
		d.Result = ResultAllowed
	}
	return d
}
