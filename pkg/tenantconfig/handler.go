package tenantconfig

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wardctl/ward/internal/httpserver"
	"github.com/wardctl/ward/pkg/tenant"
)

// Handler exposes the per-tenant config override API under whatever prefix
// the caller mounts Routes at (internal/app wires it at /api/v1/config).
type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.get)
	r.Put("/", h.update)
	return r
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	info := tenant.FromContext(r.Context())
	if info == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant resolved")
		return
	}

	cfg, err := h.store.Get(r.Context(), info.TenantID)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "fetching tenant config failed")
		return
	}
	httpserver.Respond(w, http.StatusOK, cfg)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	info := tenant.FromContext(r.Context())
	if info == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant resolved")
		return
	}

	var req UpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	cfg, err := h.store.Update(r.Context(), info.TenantID, req)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "updating tenant config failed")
		return
	}
	httpserver.Respond(w, http.StatusOK, cfg)
}
