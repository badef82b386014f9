package dispatch

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wardctl/ward/internal/audit"
	"github.com/wardctl/ward/internal/telemetry"
	"github.com/wardctl/ward/pkg/storage"
	"github.com/wardctl/ward/pkg/tenant"
)

// Dispatcher is the single structural seam through which every operation
// runs (§4.G). It owns the transaction boundary — handlers receive an
// already-begun *storage.Scope and never call Commit/Rollback themselves —
// translates handler errors into Results, and catches ProgrammerPanic at one
// recover boundary so an invariant violation becomes a logged fatal plus a
// SERVICE_ERROR result instead of crashing the process.
type Dispatcher struct {
	registry *Registry
	storage  *storage.Adapter
	emitter  *audit.Emitter
	logger   *slog.Logger
}

// New builds a Dispatcher over a populated Registry.
func New(registry *Registry, adapter *storage.Adapter, emitter *audit.Emitter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, storage: adapter, emitter: emitter, logger: logger}
}

// Dispatch runs operation/method for the tenant resolved onto ctx. Steps,
// in strict order:
//  1. look up the handler — unknown operation or method short-circuits
//     before any transaction is opened;
//  2. begin a scope and set its search_path to the caller's tenant schema;
//  3. invoke the handler within a single recover boundary;
//  4. commit on success, roll back on any failure (including a recovered
//     ProgrammerPanic);
//  5. emit a decision audit event and return a Result that never panics
//     across the boundary.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) Result {
	ctx, span := telemetry.Tracer().Start(ctx, "dispatch."+call.Operation)
	defer span.End()
	span.SetAttributes(attribute.String("ward.operation", call.Operation), attribute.String("ward.method", call.Method))
	traceID := span.SpanContext().TraceID().String()

	handler, derr := d.registry.lookup(call.Operation, call.Method)
	if derr != nil {
		return FromError(derr)
	}

	info := tenant.FromContext(ctx)
	if info == nil {
		return FromError(Permanent(CodeMissingParam, "no tenant resolved for this request"))
	}

	scope, err := d.storage.Begin(ctx)
	if err != nil {
		return FromError(Transient(CodeServiceError, "could not begin transaction", err))
	}
	if err := scope.SetSearchPath(ctx, info.Schema); err != nil {
		_ = scope.Rollback(ctx)
		return FromError(Transient(CodeServiceError, "could not set tenant search_path", err))
	}

	result, derr := d.invoke(ctx, scope, handler, call)
	if derr != nil {
		_ = scope.Rollback(ctx)
		d.emitDecision(call, info.TenantID, traceID, false, derr.Code)
		return FromError(derr)
	}

	if err := scope.Commit(ctx); err != nil {
		d.emitDecision(call, info.TenantID, traceID, false, CodeServiceError)
		return FromError(Transient(CodeServiceError, "commit failed", err))
	}

	d.emitDecision(call, info.TenantID, traceID, true, "")
	return OK(result)
}

// invoke runs handler with the single recover boundary named in §4.G: a
// ProgrammerPanic becomes a logged fatal plus a SERVICE_ERROR; any other
// panic is not ours to interpret and is re-raised, since swallowing an
// unclassified panic would hide a real bug rather than surface it.
func (d *Dispatcher) invoke(ctx context.Context, scope *storage.Scope, handler Handler, call Call) (data any, derr *Error) {
	defer func() {
		if r := recover(); r != nil {
			pp, ok := r.(ProgrammerPanic)
			if !ok {
				panic(r)
			}
			d.logger.Error("programmer invariant violated",
				"operation", call.Operation, "method", call.Method,
				"invariant", pp.Invariant, "detail", pp.Detail)
			derr = Permanent(CodeServiceError, "internal invariant violation")
		}
	}()

	return handler(ctx, scope, call)
}

// emitDecision is best-effort: a failure to emit the audit event never
// changes the Result already decided for the caller. traceID ties this audit
// row back to the dispatcher span and the request log line that produced it.
func (d *Dispatcher) emitDecision(call Call, tenantID, traceID string, ok bool, code string) {
	if d.emitter == nil {
		return
	}
	decision := "applied"
	if !ok {
		decision = "rejected"
	}
	if err := d.emitter.Emit(audit.Event{
		EventType:     "operation_dispatched",
		TenantID:      tenantID,
		ActorType:     audit.ActorSystem,
		DecisionOwner: "dispatch",
		Context: map[string]any{
			"operation": call.Operation,
			"method":    call.Method,
			"decision":  decision,
			"code":      code,
			"trace_id":  traceID,
		},
	}); err != nil {
		d.logger.Warn("dropping malformed audit event", "error", err)
	}
}
