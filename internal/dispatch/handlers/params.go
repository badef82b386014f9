// Package handlers registers the operation table dispatch.Registry serves:
// one file per domain, each translating Call.Params into typed calls against
// the component packages, grounded on the teacher's messaging provider
// registrations (pkg/messaging) generalized from providers to operations.
package handlers

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wardctl/ward/internal/dispatch"
	"github.com/wardctl/ward/pkg/storage"
)

// requireString extracts a required, non-empty string param.
func requireString(params map[string]any, key string) (string, *dispatch.Error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", dispatch.Permanent(dispatch.CodeMissingParam, "missing required param: "+key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", dispatch.Permanent(dispatch.CodeValidationError, key+" must be a non-empty string")
	}
	return s, nil
}

// optionalString extracts an optional string param, defaulting to "".
func optionalString(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

// requireUUID extracts a required param and parses it as a UUID.
func requireUUID(params map[string]any, key string) (uuid.UUID, *dispatch.Error) {
	s, derr := requireString(params, key)
	if derr != nil {
		return uuid.Nil, derr
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dispatch.Permanent(dispatch.CodeValidationError, key+" is not a valid uuid")
	}
	return id, nil
}

// requireNumber extracts a required numeric param. JSON numbers decode as
// float64 through map[string]any, so every numeric param funnels through
// here regardless of its logical int/float type.
func requireNumber(params map[string]any, key string) (float64, *dispatch.Error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, dispatch.Permanent(dispatch.CodeMissingParam, "missing required param: "+key)
	}
	n, ok := v.(float64)
	if !ok {
		return 0, dispatch.Permanent(dispatch.CodeValidationError, key+" must be a number")
	}
	return n, nil
}

func requireInt64(params map[string]any, key string) (int64, *dispatch.Error) {
	n, derr := requireNumber(params, key)
	if derr != nil {
		return 0, derr
	}
	return int64(n), nil
}

// optionalInt64Ptr extracts an optional numeric param as a pointer, nil when
// absent — the shape integration's quota ceilings expect.
func optionalInt64Ptr(params map[string]any, key string) *int64 {
	v, ok := params[key]
	if !ok || v == nil {
		return nil
	}
	n, ok := v.(float64)
	if !ok {
		return nil
	}
	i := int64(n)
	return &i
}

func optionalInt(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok || v == nil {
		return def
	}
	n, ok := v.(float64)
	if !ok {
		return def
	}
	return int(n)
}

func optionalFloat(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok || v == nil {
		return def
	}
	n, ok := v.(float64)
	if !ok {
		return def
	}
	return n
}

func requireTime(params map[string]any, key string) (time.Time, *dispatch.Error) {
	s, derr := requireString(params, key)
	if derr != nil {
		return time.Time{}, derr
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, dispatch.Permanent(dispatch.CodeValidationError, key+" must be an RFC3339 timestamp")
	}
	return t, nil
}

func optionalTime(params map[string]any, key string, def time.Time) time.Time {
	s, _ := params[key].(string)
	if s == "" {
		return def
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return def
	}
	return t
}

// storeErr translates an error already run through storage.Classify into the
// dispatch error taxonomy: transient storage failures retry, a unique
// violation is a conflict, a missing row is notFoundMsg, anything else is a
// permanent service error.
func storeErr(err error, notFoundMsg string) *dispatch.Error {
	if err == nil {
		return nil
	}
	if storage.IsTransient(err) {
		return dispatch.Transient(dispatch.CodeServiceError, "storage operation failed", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return dispatch.Permanent(dispatch.CodeAlreadyExists, "resource already exists")
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return dispatch.Permanent(dispatch.CodeNotFound, notFoundMsg)
	}
	return dispatch.Permanent(dispatch.CodeServiceError, err.Error())
}
