package dispatch

import "fmt"

// Kind classifies an internal error into one of the five taxonomy buckets
// from the error handling design: Transient, Permanent, Resource, Governance,
// Programmer. Only Programmer errors are allowed to panic past a handler;
// every other kind is translated into an OperationResult by the dispatcher.
type Kind string

const (
	KindTransient  Kind = "transient"
	KindPermanent  Kind = "permanent"
	KindResource   Kind = "resource"
	KindGovernance Kind = "governance"
	KindProgrammer Kind = "programmer"
)

// Standard wire error codes (§6).
const (
	CodeUnknownOperation    = "UNKNOWN_OPERATION"
	CodeUnknownMethod       = "UNKNOWN_METHOD"
	CodeMissingParam        = "MISSING_PARAM"
	CodeSessionRequired     = "SESSION_REQUIRED"
	CodeValidationError     = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeAlreadyResolved     = "ALREADY_RESOLVED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeBudgetExceeded      = "BUDGET_EXCEEDED"
	CodeIntegrationDisabled = "INTEGRATION_DISABLED"
	CodeCredentialsInvalid  = "CREDENTIALS_INVALID"
	CodeKillSwitchActive    = "KILL_SWITCH_ACTIVE"
	CodeConflict            = "CONFLICT"
	CodeServiceError        = "SERVICE_ERROR"
)

// Error is the typed internal error every handler returns instead of a bare
// error, so the dispatcher can translate it into an OperationResult without
// guessing at intent from error strings.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	RetryAfter int // seconds; non-zero only for bounded Resource errors
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Transient wraps a retryable infrastructure error (store timeout, lock held,
// transport failure).
func Transient(code, message string, cause error) *Error {
	return &Error{Kind: KindTransient, Code: code, Message: message, cause: cause}
}

// Permanent wraps a non-retryable client error (bad input, unknown operation,
// validation failure).
func Permanent(code, message string) *Error {
	return &Error{Kind: KindPermanent, Code: code, Message: message}
}

// Resource wraps a quota/rate error, optionally carrying a retry-after hint.
func Resource(code, message string, retryAfterSeconds int) *Error {
	return &Error{Kind: KindResource, Code: code, Message: message, RetryAfter: retryAfterSeconds}
}

// Governance wraps a permission/governance denial (kill-switch active,
// integration disabled, credentials invalid).
func Governance(code, message string) *Error {
	return &Error{Kind: KindGovernance, Code: code, Message: message}
}

// ProgrammerPanic is raised for invariant violations that must never be
// silently swallowed — e.g. applying an envelope that was never validated.
// It is caught by the dispatcher's single recover boundary and surfaced as a
// fatal log plus a 5xx-equivalent SERVICE_ERROR.
type ProgrammerPanic struct {
	Invariant string
	Detail    string
}

func (p ProgrammerPanic) Error() string {
	return fmt.Sprintf("programmer error: invariant %s violated: %s", p.Invariant, p.Detail)
}

// PanicInvariant panics with a ProgrammerPanic. Use only for conditions the
// caller has already validated and that should be structurally impossible,
// e.g. applying an envelope whose lifecycle was never transitioned to
// "validated".
func PanicInvariant(invariant, detail string) {
	panic(ProgrammerPanic{Invariant: invariant, Detail: detail})
}
