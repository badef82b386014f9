package httpserver

import (
	"net/http"

	"github.com/wardctl/ward/internal/dispatch"
	"github.com/wardctl/ward/pkg/tenant"
)

// dispatchRequest is the wire shape named in §6: a validated request
// carrying {operation_name, params, session_handle}. tenant_id is not read
// from the body — it comes from the tenant the middleware already resolved
// onto the request context, since trusting a client-supplied tenant id
// would let one tenant address another's schema.
type dispatchRequest struct {
	OperationName string         `json:"operation_name" validate:"required"`
	Params        map[string]any `json:"params"`
	SessionHandle string         `json:"session_handle"`
}

// DispatchHandler is the one legal place an HTTP request is translated into
// a dispatcher call (§0's "this is the one legal place requests are
// translated into dispatcher calls"). It owns no business logic: method
// extraction, param passthrough, and Result-to-HTTP-status mapping only.
func DispatchHandler(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dispatchRequest
		if !DecodeAndValidate(w, r, &req) {
			return
		}

		info := tenant.FromContext(r.Context())
		if info == nil {
			RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant resolved")
			return
		}

		method, _ := req.Params["method"].(string)

		result := d.Dispatch(r.Context(), dispatch.Call{
			Operation: req.OperationName,
			Method:    method,
			TenantID:  info.TenantID,
			Params:    req.Params,
		})

		Respond(w, statusForResult(result), result)
	}
}

// statusForResult maps an OperationResult's wire code to an HTTP status.
// The dispatcher itself stays transport-agnostic (§4.G); this mapping is
// the one place that translation happens.
func statusForResult(result dispatch.Result) int {
	if result.Ok {
		return http.StatusOK
	}

	switch result.Code {
	case dispatch.CodeUnknownOperation, dispatch.CodeUnknownMethod:
		return http.StatusNotFound
	case dispatch.CodeNotFound:
		return http.StatusNotFound
	case dispatch.CodeMissingParam, dispatch.CodeValidationError:
		return http.StatusBadRequest
	case dispatch.CodeSessionRequired:
		return http.StatusUnauthorized
	case dispatch.CodeAlreadyExists, dispatch.CodeAlreadyResolved, dispatch.CodeConflict:
		return http.StatusConflict
	case dispatch.CodeRateLimited, dispatch.CodeBudgetExceeded:
		return http.StatusTooManyRequests
	case dispatch.CodeIntegrationDisabled, dispatch.CodeCredentialsInvalid, dispatch.CodeKillSwitchActive:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
