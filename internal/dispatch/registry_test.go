package dispatch

import (
	"context"
	"testing"

	"github.com/wardctl/ward/pkg/storage"
)

func TestRegistry_UnknownOperation(t *testing.T) {
	r := NewRegistry()
	_, err := r.lookup("integrations.create", "v1")
	if err == nil || err.Code != CodeUnknownOperation {
		t.Fatalf("err = %+v, want %s", err, CodeUnknownOperation)
	}
}

func TestRegistry_UnknownMethod(t *testing.T) {
	r := NewRegistry()
	r.Register("integrations.create", "v1", func(ctx context.Context, scope *storage.Scope, call Call) (any, *Error) { return nil, nil })
	_, err := r.lookup("integrations.create", "v2")
	if err == nil || err.Code != CodeUnknownMethod {
		t.Fatalf("err = %+v, want %s", err, CodeUnknownMethod)
	}
}

func TestRegistry_FindsRegisteredHandler(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register("integrations.create", "v1", func(ctx context.Context, scope *storage.Scope, call Call) (any, *Error) {
		called = true
		return "ok", nil
	})

	h, err := r.lookup("integrations.create", "v1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, derr := h(context.Background(), nil, Call{}); derr != nil {
		t.Fatalf("handler: %v", derr)
	}
	if !called {
		t.Fatal("expected registered handler to run")
	}
}
