package envelope

import (
	"testing"
	"time"
)

func baseEnvelope(id string, class Class, subsystem, parameter string) *Envelope {
	return &Envelope{
		EnvelopeID: id,
		Class:      class,
		Subsystem:  subsystem,
		Parameter:  parameter,
		Bounds:     Bounds{DeltaType: "percent", MaxIncrease: 10},
		Timebox:    Timebox{MaxDurationSeconds: 300},
		Baseline:   Baseline{Source: "config", ReferenceID: "ref-1", Value: 1.0},
		RevertOn:   []RevertReason{RevertPredictionExpired, RevertPredictionDeleted, RevertKillSwitch},
	}
}

func TestApply_RejectsMissingClass(t *testing.T) {
	c := New(nil)
	e := baseEnvelope("e1", "", "router", "timeout_ms")
	if _, err := c.Apply(e, nil); err == nil {
		t.Fatal("expected rejection of envelope with no class")
	}
}

// TestApply_SameParameterAlwaysRejects covers I-4: a second envelope on the
// identical (subsystem, parameter) is rejected no matter how its class
// compares to the incumbent's — not preempted, even when it strictly
// outranks the incumbent. Spec §8 scenario 3.
func TestApply_SameParameterAlwaysRejects(t *testing.T) {
	c := New(nil)
	first := baseEnvelope("e1", ClassCost, "router", "timeout_ms")
	if _, err := c.Apply(first, nil); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	second := baseEnvelope("e2", ClassSafety, "router", "timeout_ms")
	preempted, err := c.Apply(second, nil)
	if err == nil {
		t.Fatal("expected reject: same parameter must never preempt, regardless of class")
	}
	if len(preempted) != 0 {
		t.Fatalf("preempted = %v, want none", preempted)
	}
	if c.ActiveCount() != 1 {
		t.Fatalf("active count = %d, want 1 (incumbent untouched)", c.ActiveCount())
	}
}

// TestApply_HigherClassPreemptsLowerOnDifferentParameter covers I-5:
// preemption only ever happens between different parameters within the same
// subsystem. Spec §8 scenario 4.
func TestApply_HigherClassPreemptsLowerOnDifferentParameter(t *testing.T) {
	var reverted []string
	revert := func(e *Envelope, b Baseline) error { reverted = append(reverted, e.EnvelopeID); return nil }

	c := New(nil)
	low := baseEnvelope("e1", ClassExperiment, "router", "timeout_ms")
	if _, err := c.Apply(low, revert); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	high := baseEnvelope("e2", ClassSafety, "router", "max_retries")
	preempted, err := c.Apply(high, revert)
	if err != nil {
		t.Fatalf("preempting apply: %v", err)
	}
	if len(preempted) != 1 || preempted[0] != "e1" {
		t.Fatalf("preempted = %v, want [e1]", preempted)
	}
	if len(reverted) != 1 || reverted[0] != "e1" {
		t.Fatalf("revert callback ran for %v, want [e1]", reverted)
	}
	if c.ActiveCount() != 1 {
		t.Fatalf("active count = %d, want 1", c.ActiveCount())
	}
}

// TestApply_EqualClassOnDifferentParameterDoesNotPreempt confirms I-5's
// "strictly lower-priority" condition: an equal-class envelope on a
// different parameter in the same subsystem coexists rather than preempting.
func TestApply_EqualClassOnDifferentParameterDoesNotPreempt(t *testing.T) {
	c := New(nil)
	first := baseEnvelope("e1", ClassCost, "router", "timeout_ms")
	if _, err := c.Apply(first, nil); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	second := baseEnvelope("e2", ClassCost, "router", "max_retries")
	preempted, err := c.Apply(second, nil)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if len(preempted) != 0 {
		t.Fatalf("preempted = %v, want none", preempted)
	}
	if c.ActiveCount() != 2 {
		t.Fatalf("active count = %d, want 2 (both coexist)", c.ActiveCount())
	}
}

func TestKillSwitch_RevertsEverythingAndBlocksNewApplications(t *testing.T) {
	var reverted int
	revert := func(e *Envelope, b Baseline) error { reverted++; return nil }

	c := New(nil)
	safety := baseEnvelope("e1", ClassSafety, "router", "timeout_ms")
	cost := baseEnvelope("e2", ClassCost, "budget", "ceiling_cents")
	if _, err := c.Apply(safety, revert); err != nil {
		t.Fatalf("apply safety: %v", err)
	}
	if _, err := c.Apply(cost, revert); err != nil {
		t.Fatalf("apply cost: %v", err)
	}

	ev := c.ActivateKillSwitch("human", "operator-triggered halt")
	if ev.ActiveEnvelopesCount != 2 {
		t.Fatalf("kill switch event active count = %d, want 2", ev.ActiveEnvelopesCount)
	}
	if reverted != 2 {
		t.Fatalf("revert callback ran %d times, want 2", reverted)
	}
	if c.ActiveCount() != 0 {
		t.Fatalf("active count after kill switch = %d, want 0", c.ActiveCount())
	}

	blocked := baseEnvelope("e3", ClassSafety, "router", "retry_budget")
	if _, err := c.Apply(blocked, revert); err == nil {
		t.Fatal("expected apply to be rejected while kill switch is active")
	}

	c.Rearm()
	if _, err := c.Apply(blocked, revert); err != nil {
		t.Fatalf("apply after rearm: %v", err)
	}
}

func TestRevert_IsIdempotent(t *testing.T) {
	c := New(nil)
	e := baseEnvelope("e1", ClassCost, "router", "timeout_ms")
	if _, err := c.Apply(e, nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := c.Revert("e1", RevertManual); err != nil {
		t.Fatalf("first revert: %v", err)
	}
	if err := c.Revert("e1", RevertManual); err != nil {
		t.Fatalf("second revert on already-inactive envelope should be a no-op, got: %v", err)
	}
	if err := c.Revert("never-applied", RevertManual); err != nil {
		t.Fatalf("revert of unknown envelope should be a no-op, got: %v", err)
	}
}

func TestValidate_RequiresMandatoryRevertReasons(t *testing.T) {
	e := baseEnvelope("e1", ClassCost, "router", "timeout_ms")
	e.RevertOn = []RevertReason{RevertManual}
	if err := Validate(e); err == nil {
		t.Fatal("expected validation failure: missing mandatory revert reasons")
	}
}

func TestExpireStale_RevertsPastDeadline(t *testing.T) {
	c := New(nil)
	e := baseEnvelope("e1", ClassCost, "router", "timeout_ms")
	e.Timebox.MaxDurationSeconds = 1
	if _, err := c.Apply(e, nil); err != nil {
		t.Fatalf("apply: %v", err)
	}

	future := (*e.AppliedAt).Add(2 * time.Second)
	expired := c.ExpireStale(future)
	if len(expired) != 1 || expired[0] != "e1" {
		t.Fatalf("expired = %v, want [e1]", expired)
	}
	if c.ActiveCount() != 0 {
		t.Fatalf("active count = %d, want 0", c.ActiveCount())
	}
}
