package handlers

import (
	"context"
	"time"

	"github.com/wardctl/ward/internal/dispatch"
	"github.com/wardctl/ward/pkg/storage"
)

func registerActivity(reg *dispatch.Registry, d Deps) {
	reg.Register("activity.signal_feedback", "", handleActivitySignalFeedback(d))
}

// handleActivitySignalFeedback surfaces the drift observer's advisory,
// non-binding suggestions (§4.F). Read-only: there is nothing to apply here,
// only to report.
func handleActivitySignalFeedback(d Deps) dispatch.Handler {
	return func(ctx context.Context, scope *storage.Scope, call dispatch.Call) (any, *dispatch.Error) {
		suggestions := d.Coordinator.Suggestions(time.Now().UTC())
		return map[string]any{"suggestions": suggestions}, nil
	}
}
