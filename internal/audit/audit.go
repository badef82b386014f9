// Package audit implements component J, the Audit/Event Emitter: schema
// validation for lifecycle and coordination events, then async, buffered,
// log-structured emission. Downstream shipment (to a log pipeline, SIEM,
// etc.) is external to this package (§4.J).
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ActorType identifies who or what caused an event.
type ActorType string

const (
	ActorHuman  ActorType = "human"
	ActorSystem ActorType = "system"
)

const schemaVersion = "1"

// Event is the structured payload emitted for every lifecycle and
// coordination decision (§4.J, §6 observability contract): quota
// enforcement, envelope coordination, incident creation/escalation, and
// maintenance task outcomes all flow through the same validated shape.
type Event struct {
	EventID       string
	EventType     string
	TenantID      string
	Timestamp     time.Time
	ActorType     ActorType
	DecisionOwner string // which component made the call, e.g. "enforcement", "envelope", "incident"
	SchemaVersion string
	Context       map[string]any
}

// validateEventPayload enforces the schema contract and rejects malformed
// events before emission — mirrors the original's
// validate_event_payload(event) gate.
func validateEventPayload(e *Event) error {
	if e.EventType == "" {
		return fmt.Errorf("audit: event_type is required")
	}
	if e.TenantID == "" {
		return fmt.Errorf("audit: tenant_id is required")
	}
	if e.ActorType != ActorHuman && e.ActorType != ActorSystem {
		return fmt.Errorf("audit: actor_type must be human or system, got %q", e.ActorType)
	}
	if e.DecisionOwner == "" {
		return fmt.Errorf("audit: decision_owner is required")
	}
	return nil
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Emitter validates and asynchronously logs events. It never blocks the
// caller: a full buffer drops the event and logs a warning, matching the
// teacher's audit writer's drop-on-full behavior.
type Emitter struct {
	logger  *slog.Logger
	events  chan Event
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewEmitter builds an Emitter. Call Start to begin the background flush
// loop.
func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{
		logger: logger,
		events: make(chan Event, bufferSize),
	}
}

// Start begins the background goroutine that logs batched events and
// returns immediately. The goroutine exits once ctx is cancelled and all
// buffered events are drained; Close waits for that.
func (e *Emitter) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(ctx)
	}()
}

// Close waits for the background loop to drain and exit.
func (e *Emitter) Close() { e.wg.Wait() }

// Emit validates and enqueues an event. EventID, Timestamp, and
// SchemaVersion are stamped if unset. Invalid events are rejected with an
// error and never reach the log.
func (e *Emitter) Emit(ev Event) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.SchemaVersion == "" {
		ev.SchemaVersion = schemaVersion
	}
	if err := validateEventPayload(&ev); err != nil {
		return err
	}

	select {
	case e.events <- ev:
	default:
		e.dropped.Add(1)
		e.logger.Warn("audit event buffer full, dropping event",
			"event_type", ev.EventType, "tenant_id", ev.TenantID)
	}
	return nil
}

// Dropped returns the number of events dropped due to a full buffer since
// startup.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }

func (e *Emitter) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, flushBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		e.logBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-e.events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-e.events:
					if !ok {
						flush()
						return
					}
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		}
	}
}

// logBatch writes each event as one structured log line. This is the
// emission boundary named in §4.J — shipment beyond the log stream is the
// operator's concern, not this package's.
func (e *Emitter) logBatch(batch []Event) {
	for _, ev := range batch {
		e.logger.Info("audit_event",
			"event_id", ev.EventID,
			"event_type", ev.EventType,
			"tenant_id", ev.TenantID,
			"timestamp", ev.Timestamp,
			"actor_type", ev.ActorType,
			"decision_owner", ev.DecisionOwner,
			"schema_version", ev.SchemaVersion,
			"context", ev.Context,
		)
	}
}
