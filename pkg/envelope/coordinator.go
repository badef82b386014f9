package envelope

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RevertFunc performs the actual parameter rollback for an envelope. The
// coordinator calls it with the envelope's Baseline whenever the envelope
// leaves the active set for any reason.
type RevertFunc func(e *Envelope, b Baseline) error

// Coordinator is the single authority for envelope lifecycle and conflict
// resolution. All state is protected by one mutex — grounded on
// original_source/backend/app/optimization/coordinator.py, whose Python
// original relies on the GIL for the same single-writer guarantee; Go has no
// GIL, so the mutex makes that guarantee explicit (I-6: "evaluate and apply
// atomically — no other envelope operation may interleave").
type Coordinator struct {
	mu sync.Mutex

	active     map[string]*Envelope // envelope_id -> envelope
	paramIndex map[string]string    // "subsystem.parameter" -> envelope_id
	revertFns  map[string]RevertFunc

	killSwitch     bool
	killSwitchAt   *time.Time
	auditTrail     []CoordinationAudit
	killSwitchLog  []KillSwitchEvent
	emit           func(CoordinationAudit)
	observer       *DriftObserver
}

// New builds an empty Coordinator. emit, if non-nil, is called with every
// audit record as it's produced — wire internal/audit here for persistence;
// nil is fine for tests.
func New(emit func(CoordinationAudit)) *Coordinator {
	return &Coordinator{
		active:     make(map[string]*Envelope),
		paramIndex: make(map[string]string),
		revertFns:  make(map[string]RevertFunc),
		emit:       emit,
	}
}

// SetObserver attaches the drift observer every revert is reported to. Optional;
// nil (the default) means no observation happens, independent of the
// observer's own enabled flag.
func (c *Coordinator) SetObserver(o *DriftObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

// Validate checks an envelope against V1-V5 before it may be proposed.
// Validation is pure and does not require the coordinator lock.
func Validate(e *Envelope) error {
	if e.Class == "" {
		return fmt.Errorf("envelope: class is required (I-2)") // V1
	}
	if _, ok := priorityRank[e.Class]; !ok {
		return fmt.Errorf("envelope: unknown class %q", e.Class)
	}
	if e.Subsystem == "" || e.Parameter == "" {
		return fmt.Errorf("envelope: subsystem and parameter are required") // V2
	}
	if e.Bounds.MaxIncrease == 0 && e.Bounds.MaxDecrease == 0 && e.Bounds.AbsoluteCeiling == nil {
		return fmt.Errorf("envelope: bounds must declare at least one limit") // V3
	}
	if e.Timebox.MaxDurationSeconds <= 0 {
		return fmt.Errorf("envelope: timebox.max_duration_seconds must be positive") // V4
	}
	for _, mandatory := range mandatoryRevertReasons {
		if !e.declaresRevertReason(mandatory) {
			return fmt.Errorf("envelope: revert_on must include %s", mandatory) // V5
		}
	}
	return nil
}

// Apply proposes e for activation. On success e transitions to active and
// revert is registered to run when the envelope leaves the active set for
// any reason (kill switch, preemption, expiry, or explicit revert).
//
// Conflict resolution is two separate, sequential checks:
//
//   - I-4 (same-parameter conflict): a second envelope targeting the exact
//     same (subsystem, parameter) never coexists with an active one. It is
//     always rejected, unconditionally — class priority plays no part here.
//   - I-5 (priority preemption): having cleared I-4, e is compared against
//     every other active envelope in the same subsystem (necessarily a
//     different parameter, since I-4 already excluded the exact match). Any
//     such envelope with strictly lower priority is preempted (reverted with
//     reason PREEMPTED). Equal or higher priority incumbents are left alone.
func (c *Coordinator) Apply(e *Envelope, revert RevertFunc) (preemptedIDs []string, err error) {
	if err := Validate(e); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.killSwitch {
		c.recordLocked(e, "rejected", "kill switch is active", "", "")
		return nil, fmt.Errorf("envelope: kill switch is active, no new envelopes may be applied")
	}
	if e.EnvelopeID == "" {
		e.EnvelopeID = uuid.NewString()
	}

	key := e.paramKey()
	if incumbentID, conflict := c.paramIndex[key]; conflict {
		c.recordLocked(e, "rejected", "conflicts with an active envelope on the same parameter", incumbentID, "")
		return nil, fmt.Errorf("envelope: %s.%s already governed by envelope %s", e.Subsystem, e.Parameter, incumbentID)
	}

	for id, candidate := range c.active {
		if candidate.Subsystem != e.Subsystem {
			continue
		}
		if Priority(e.Class) > Priority(candidate.Class) {
			c.revertLocked(candidate, RevertPreempted)
			c.recordLocked(candidate, "preempted", "preempted by a higher-priority envelope in the same subsystem", "", e.EnvelopeID)
			preemptedIDs = append(preemptedIDs, id)
		}
	}

	now := time.Now().UTC()
	e.Lifecycle = LifecycleActive
	e.AppliedAt = &now
	c.active[e.EnvelopeID] = e
	c.paramIndex[key] = e.EnvelopeID
	if revert != nil {
		c.revertFns[e.EnvelopeID] = revert
	}

	c.recordLocked(e, "applied", "applied", "", "")
	return preemptedIDs, nil
}

// Revert manually reverts an active envelope. Idempotent: reverting an
// already-inactive or unknown envelope is a no-op, never an error — the
// caller (e.g. a retry after a partial failure) should not have to track
// whether a previous revert attempt already succeeded.
func (c *Coordinator) Revert(envelopeID string, reason RevertReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.active[envelopeID]
	if !ok {
		return nil
	}
	c.revertLocked(e, reason)
	c.recordLocked(e, "expired", string(reason), "", "")
	return nil
}

// ExpireStale reverts every active envelope whose timebox has elapsed as of
// now. Call periodically from the maintenance orchestrator.
func (c *Coordinator) ExpireStale(now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for id, e := range c.active {
		if e.AppliedAt == nil {
			continue
		}
		deadline := e.AppliedAt.Add(time.Duration(e.Timebox.MaxDurationSeconds) * time.Second)
		if now.After(deadline) {
			c.revertLocked(e, RevertExpired)
			c.recordLocked(e, "expired", "timebox elapsed", "", "")
			expired = append(expired, id)
		}
	}
	return expired
}

// ActivateKillSwitch immediately reverts every active envelope and blocks
// new applications until Rearm is called (I-1: "the kill switch supersedes
// every envelope, unconditionally, regardless of class").
func (c *Coordinator) ActivateKillSwitch(triggeredBy, reason string) KillSwitchEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	count := len(c.active)
	for _, e := range c.active {
		c.revertLocked(e, RevertKillSwitch)
	}
	c.killSwitch = true
	c.killSwitchAt = &now

	completedAt := time.Now().UTC()
	ev := KillSwitchEvent{
		EventID:              uuid.NewString(),
		TriggeredBy:          triggeredBy,
		TriggerReason:        reason,
		ActivatedAt:          now,
		RollbackStatus:       "completed",
		RollbackCompletedAt:  &completedAt,
		ActiveEnvelopesCount: count,
	}
	c.killSwitchLog = append(c.killSwitchLog, ev)
	return ev
}

// Rearm clears the kill switch, re-permitting new envelope applications. It
// does not restore any previously-reverted envelope.
func (c *Coordinator) Rearm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killSwitch = false
}

// KillSwitchActive reports whether the kill switch currently blocks new
// applications.
func (c *Coordinator) KillSwitchActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killSwitch
}

// ActiveCount returns the number of currently active envelopes.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Active returns a snapshot copy of the currently active envelopes, keyed by
// envelope id.
func (c *Coordinator) Active() map[string]Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Envelope, len(c.active))
	for id, e := range c.active {
		out[id] = *e
	}
	return out
}

// Suggestions returns the attached observer's current advisory suggestions,
// or nil if no observer is attached. Read-only and non-binding (§4.F).
func (c *Coordinator) Suggestions(now time.Time) []Suggestion {
	c.mu.Lock()
	o := c.observer
	c.mu.Unlock()
	if o == nil {
		return nil
	}
	return o.Suggestions(now)
}

// AuditTrail returns every audit record produced so far, oldest first.
func (c *Coordinator) AuditTrail() []CoordinationAudit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CoordinationAudit, len(c.auditTrail))
	copy(out, c.auditTrail)
	return out
}

// revertLocked removes e from the active set and param index, runs its
// registered RevertFunc (best-effort — a revert failure is logged into the
// audit trail, never silently dropped, per I-7), and marks it reverted.
// Caller must hold c.mu.
func (c *Coordinator) revertLocked(e *Envelope, reason RevertReason) {
	delete(c.active, e.EnvelopeID)
	if c.paramIndex[e.paramKey()] == e.EnvelopeID {
		delete(c.paramIndex, e.paramKey())
	}
	now := time.Now().UTC()
	e.Lifecycle = LifecycleReverted
	e.RevertedAt = &now
	e.RevertReason = reason

	if c.observer != nil {
		c.observer.RecordRevert(e.Class, now)
	}

	if fn, ok := c.revertFns[e.EnvelopeID]; ok {
		if err := fn(e, e.Baseline); err != nil {
			c.recordLocked(e, "revert_failed", err.Error(), "", "")
		}
		delete(c.revertFns, e.EnvelopeID)
	}
}

// recordLocked appends an audit record and forwards it to emit, if set.
// Caller must hold c.mu.
func (c *Coordinator) recordLocked(e *Envelope, decision, reason, conflictingID, preemptingID string) {
	a := CoordinationAudit{
		AuditID:               uuid.NewString(),
		EnvelopeID:            e.EnvelopeID,
		Class:                 e.Class,
		Decision:              decision,
		Reason:                reason,
		Timestamp:             time.Now().UTC(),
		ConflictingEnvelopeID: conflictingID,
		PreemptingEnvelopeID:  preemptingID,
		ActiveCount:           len(c.active),
	}
	c.auditTrail = append(c.auditTrail, a)
	if c.emit != nil {
		c.emit(a)
	}
}
