package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmit_RejectsMissingTenantID(t *testing.T) {
	e := NewEmitter(testLogger())
	err := e.Emit(Event{EventType: "quota_blocked", ActorType: ActorSystem, DecisionOwner: "enforcement"})
	if err == nil {
		t.Fatal("expected rejection of event with no tenant_id")
	}
}

func TestEmit_RejectsInvalidActorType(t *testing.T) {
	e := NewEmitter(testLogger())
	err := e.Emit(Event{EventType: "quota_blocked", TenantID: "acme", ActorType: "robot", DecisionOwner: "enforcement"})
	if err == nil {
		t.Fatal("expected rejection of unrecognized actor_type")
	}
}

func TestEmit_StampsDefaults(t *testing.T) {
	e := NewEmitter(testLogger())
	// No Start() call: the enqueued event stays in the channel so its
	// stamped fields can be inspected directly.
	if err := e.Emit(Event{EventType: "incident_created", TenantID: "acme", ActorType: ActorSystem, DecisionOwner: "incident"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	ev := <-e.events
	if ev.EventID == "" {
		t.Error("EventID was not stamped")
	}
	if ev.Timestamp.IsZero() {
		t.Error("Timestamp was not stamped")
	}
	if ev.SchemaVersion != schemaVersion {
		t.Errorf("SchemaVersion = %q, want %q", ev.SchemaVersion, schemaVersion)
	}
}

func TestEmit_DropsWhenBufferFull(t *testing.T) {
	e := NewEmitter(testLogger())
	// No Start() call: nothing drains the channel, so once bufferSize events
	// are enqueued the next one must be dropped rather than block the caller.
	for i := 0; i < bufferSize; i++ {
		if err := e.Emit(Event{EventType: "x", TenantID: "acme", ActorType: ActorSystem, DecisionOwner: "test"}); err != nil {
			t.Fatalf("Emit[%d]: %v", i, err)
		}
	}
	if err := e.Emit(Event{EventType: "x", TenantID: "acme", ActorType: ActorSystem, DecisionOwner: "test"}); err != nil {
		t.Fatalf("Emit overflow: %v", err)
	}
	if e.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", e.Dropped())
	}
}

func TestEmit_FlushesOnInterval(t *testing.T) {
	e := NewEmitter(testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), flushInterval+500*time.Millisecond)
	defer cancel()
	e.Start(ctx)

	if err := e.Emit(Event{EventType: "envelope_applied", TenantID: "acme", ActorType: ActorSystem, DecisionOwner: "envelope"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	<-ctx.Done()
	e.Close()
}
