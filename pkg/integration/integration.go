// Package integration implements the Integration entity (§3): the
// tenant-owned record of a configured upstream LLM provider, its quota
// ceilings, and its credential reference.
package integration

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the Integration lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusError    Status = "error"
)

// HealthState reflects the last observed credential/connectivity health.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthFailing  HealthState = "failing"
)

// Integration is created explicitly and soft-deleted (tombstoned) rather
// than hard-deleted; only configuration operations mutate it.
type Integration struct {
	ID             uuid.UUID
	ProviderType   string
	Name           string
	Status         Status
	HealthState    HealthState
	HealthMessage  string
	BudgetLimitCents *int64
	TokenLimitMonth  *int64
	RateLimitRPM     *int64
	CredentialRef    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// IsDeleted reports whether the integration has been tombstoned.
func (i Integration) IsDeleted() bool { return i.DeletedAt != nil }

// Credential reference prefixes, resolved from the original source's
// cus_credential_engine.py (§9 open question): encrypted://, cus-vault://,
// and env:// are live; the legacy vault:// prefix is rejected.
const (
	credPrefixEncrypted = "encrypted://"
	credPrefixCUSVault   = "cus-vault://"
	credPrefixEnv        = "env://"
	credPrefixLegacyVault = "vault://"
)

// ValidateCredentialRef checks that a credential_ref uses one of the three
// live prefixes. The legacy vault:// prefix is explicitly rejected, matching
// the original implementation's ValueError on that prefix.
func ValidateCredentialRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("credential_ref must not be empty")
	}
	if strings.HasPrefix(ref, credPrefixLegacyVault) {
		return fmt.Errorf("credential_ref uses the legacy vault:// scheme, which is no longer accepted; use cus-vault://")
	}
	switch {
	case strings.HasPrefix(ref, credPrefixEncrypted),
		strings.HasPrefix(ref, credPrefixCUSVault),
		strings.HasPrefix(ref, credPrefixEnv):
		return nil
	default:
		return fmt.Errorf("credential_ref has an unrecognized scheme: %q", ref)
	}
}
