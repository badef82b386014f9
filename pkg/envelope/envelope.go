// Package envelope implements component F, the Envelope Coordinator — the
// hard core: bounded, auditable, reversible mutation of runtime parameters
// under predictive triggers, with kill-switch supremacy (§4.F).
package envelope

import (
	"fmt"
	"time"
)

// Class is an envelope's priority label. Order is global and immutable at
// build time (I-3) — see Priority below.
type Class string

const (
	ClassSafety      Class = "safety"
	ClassReliability Class = "reliability"
	ClassCost        Class = "cost"
	ClassExperiment  Class = "experiment"
)

// priorityOrder is fixed at build time, highest priority first (I-3).
// safety preempts everything; an experimental envelope preempts nothing.
var priorityOrder = []Class{ClassSafety, ClassReliability, ClassCost, ClassExperiment}

var priorityRank = func() map[Class]int {
	m := make(map[Class]int, len(priorityOrder))
	for i, c := range priorityOrder {
		// Rank 0 is highest priority; invert so "higher number = higher
		// priority" reads naturally at call sites.
		m[c] = len(priorityOrder) - i
	}
	return m
}()

// Priority returns class's priority rank; higher wins. The empty Class (no
// class declared) ranks below every real class, which combined with I-2's
// "missing class -> immediate reject" means it's never actually compared.
func Priority(c Class) int { return priorityRank[c] }

// RevertReason enumerates why an envelope is reverted.
type RevertReason string

const (
	RevertPredictionExpired RevertReason = "PREDICTION_EXPIRED"
	RevertPredictionDeleted RevertReason = "PREDICTION_DELETED"
	RevertKillSwitch        RevertReason = "KILL_SWITCH"
	RevertPreempted         RevertReason = "PREEMPTED"
	RevertExpired           RevertReason = "EXPIRED"
	RevertManual            RevertReason = "MANUAL"
)

// mandatoryRevertReasons is V5's hard gate: every envelope must declare at
// least these three.
var mandatoryRevertReasons = []RevertReason{RevertPredictionExpired, RevertPredictionDeleted, RevertKillSwitch}

// Lifecycle is an envelope's monotonic state.
type Lifecycle string

const (
	LifecycleProposed  Lifecycle = "proposed"
	LifecycleValidated Lifecycle = "validated"
	LifecycleActive    Lifecycle = "active"
	LifecycleReverted  Lifecycle = "reverted"
	LifecycleExpired   Lifecycle = "expired"
)

// Bounds describes the allowed delta for a bounded parameter override.
type Bounds struct {
	DeltaType       string // e.g. "absolute", "percent"
	MaxIncrease     float64
	MaxDecrease     float64
	AbsoluteCeiling *float64
}

// Timebox bounds how long an envelope may remain active.
type Timebox struct {
	MaxDurationSeconds int
	HardExpiry         bool
}

// Baseline records the authoritative pre-envelope value to revert to.
type Baseline struct {
	Source      string
	ReferenceID string
	Value       float64
}

// Trigger is the predictive signal that proposed this envelope.
type Trigger struct {
	PredictionType string
	MinConfidence  float64
}

// Envelope is a bounded, time-limited override of a named runtime parameter
// under a priority class.
type Envelope struct {
	EnvelopeID string
	Class      Class
	Subsystem  string
	Parameter  string
	Bounds     Bounds
	Timebox    Timebox
	Baseline   Baseline
	RevertOn   []RevertReason
	Trigger    Trigger

	Lifecycle    Lifecycle
	AppliedAt    *time.Time
	RevertedAt   *time.Time
	RevertReason RevertReason
}

// paramKey is the (subsystem, parameter) identity I-4/I-5 conflict-check on.
func (e *Envelope) paramKey() string {
	return fmt.Sprintf("%s.%s", e.Subsystem, e.Parameter)
}

// declaresRevertReason reports whether e.RevertOn contains r.
func (e *Envelope) declaresRevertReason(r RevertReason) bool {
	for _, rr := range e.RevertOn {
		if rr == r {
			return true
		}
	}
	return false
}

// CoordinationAudit is one immutable record per decision the coordinator
// makes (I-7).
type CoordinationAudit struct {
	AuditID              string
	EnvelopeID           string
	Class                Class
	Decision             string // applied | rejected | preempted | expired
	Reason               string
	Timestamp            time.Time
	ConflictingEnvelopeID string
	PreemptingEnvelopeID  string
	ActiveCount           int
}

// KillSwitchEvent is an append-only record of a kill-switch activation.
type KillSwitchEvent struct {
	EventID              string
	TriggeredBy          string // human | system
	TriggerReason        string
	ActivatedAt          time.Time
	RollbackStatus       string
	RollbackCompletedAt  *time.Time
	ActiveEnvelopesCount int
}
