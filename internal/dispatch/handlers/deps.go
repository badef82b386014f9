package handlers

import (
	"log/slog"

	"github.com/wardctl/ward/internal/dispatch"
	"github.com/wardctl/ward/pkg/enforcement"
	"github.com/wardctl/ward/pkg/envelope"
	"github.com/wardctl/ward/pkg/incident"
	"github.com/wardctl/ward/pkg/integration"
	"github.com/wardctl/ward/pkg/notify"
	"github.com/wardctl/ward/pkg/snapshot"
	"github.com/wardctl/ward/pkg/usage"
)

// Deps bundles every constructed component a handler may need. internal/app
// builds one of these at boot and passes it to Register.
type Deps struct {
	Integrations   *integration.Store
	Usage          *usage.Driver
	Enforcement    *enforcement.Engine
	Coordinator    *envelope.Coordinator
	EnvelopeStore  *envelope.Store
	Incidents      *incident.Aggregator
	IncidentStore  *incident.Store
	SnapshotEngine *snapshot.Engine
	SnapshotStore  *snapshot.Store
	Notifier       *notify.Notifier
	Logger         *slog.Logger
}

// Register populates reg with the operation_name/method table every
// dispatcher call resolves against (§6). Each registerX call owns one
// component's operations, grounded on the teacher's per-provider
// registration shape in pkg/messaging.
func Register(reg *dispatch.Registry, d Deps) {
	registerIntegrations(reg, d)
	registerUsage(reg, d)
	registerEnforcement(reg, d)
	registerControls(reg, d)
	registerIncidents(reg, d)
	registerSnapshot(reg, d)
	registerActivity(reg, d)
}
