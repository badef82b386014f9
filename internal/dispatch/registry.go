package dispatch

import (
	"context"

	"github.com/wardctl/ward/pkg/storage"
)

// Handler is one operation_name's implementation. It receives the scope the
// Dispatcher already began (and will commit or roll back on the handler's
// behalf — see §4.G's structural rule that only the dispatcher touches
// transaction boundaries) plus the raw params for the requested method.
type Handler func(ctx context.Context, scope *storage.Scope, call Call) (any, *Error)

// Call carries everything a Handler needs: which method of its operation was
// requested, the decoded params, and the tenant/request identity the
// dispatcher resolved before invoking it.
type Call struct {
	Operation string
	Method    string
	TenantID  string
	Params    map[string]any
}

// methodTable maps a method name to its handler within one operation.
type methodTable map[string]Handler

// Registry holds every operation_name -> {method -> handler} mapping,
// populated once at boot. Grounded on the teacher's messaging.Registry
// (pkg/messaging/registry.go) — the same register-by-name, look-up-by-name
// shape, generalized from providers to operations with a method sub-route.
type Registry struct {
	operations map[string]methodTable
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{operations: make(map[string]methodTable)}
}

// Register adds a handler for operation/method. Re-registering the same pair
// overwrites the previous handler — callers wire the full table once at
// boot, so last-write-wins is never actually exercised in practice.
func (r *Registry) Register(operation, method string, h Handler) {
	table, ok := r.operations[operation]
	if !ok {
		table = make(methodTable)
		r.operations[operation] = table
	}
	table[method] = h
}

// lookup finds the handler for operation/method, distinguishing an unknown
// operation from a known operation with an unknown method so Dispatch can
// return the right wire code for each.
func (r *Registry) lookup(operation, method string) (Handler, *Error) {
	table, ok := r.operations[operation]
	if !ok {
		return nil, Permanent(CodeUnknownOperation, "no such operation: "+operation)
	}
	h, ok := table[method]
	if !ok {
		return nil, Permanent(CodeUnknownMethod, "operation "+operation+" has no method "+method)
	}
	return h, nil
}
