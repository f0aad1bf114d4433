package entity

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/strixun/edgecore/internal/apperr"
	"github.com/strixun/edgecore/internal/httpserver"
)

// profileEntityType is the entity type passthroughTransform writes each
// migrated legacy row under: the service's canonical profile record, e.g.
// customer_cust_abc (legacy) -> customer:profile:cust_abc.
const profileEntityType = "profile"

// Handler exposes the migration engine over HTTP for operators retiring a
// legacy key space, gated behind an admin-only route.
type Handler struct {
	migrator *Migrator
	source   LegacySource
}

// NewHandler creates a migration Handler.
func NewHandler(migrator *Migrator, source LegacySource) *Handler {
	return &Handler{migrator: migrator, source: source}
}

// Routes returns the chi router for /admin/migrate; mount behind
// identity.RequireSuperAdmin.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{service}", h.handleMigrate)
	r.Get("/{id}", h.handleStatus)
	return r
}

type migrateRequest struct {
	ID        string `json:"id" validate:"required"`
	Prefix    string `json:"prefix" validate:"required"`
	DryRun    bool   `json:"dryRun"`
	DeleteOld bool   `json:"deleteOld"`
}

// handleMigrate runs the legacy migration engine for the named service,
// transforming each legacy_kv row into that service's profile entity.
// Services whose legacy rows need reshaping should call Migrator.Run
// directly with a custom TransformFunc rather than this passthrough
// endpoint.
func (h *Handler) handleMigrate(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")

	var req migrateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rec, err := h.migrator.Run(r.Context(), req.ID, service, req.Prefix, h.source, passthroughTransform(service), req.DryRun, req.DeleteOld)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.KindInternal, "running migration", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, rec)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok, err := h.migrator.GetMigrationRecord(r.Context(), id)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.KindInternal, "loading migration record", err))
		return
	}
	if !ok {
		httpserver.RespondAppError(w, apperr.New(apperr.KindNotFound, "migration record not found"))
		return
	}
	httpserver.Respond(w, http.StatusOK, rec)
}

// passthroughTransform maps a legacy_kv row to the given service's profile
// entity. Legacy keys are shaped "{service}_{id}"; the id is the suffix
// after that prefix, e.g. customer_cust_abc -> customer:profile:cust_abc.
func passthroughTransform(service string) TransformFunc {
	legacyPrefix := service + "_"
	return func(_ context.Context, pair LegacyPair) (*TransformResult, error) {
		var data any
		if err := json.Unmarshal(pair.Value, &data); err != nil {
			return nil, err
		}
		id := strings.TrimPrefix(pair.Key, legacyPrefix)
		return &TransformResult{
			Service:    service,
			EntityType: profileEntityType,
			ID:         id,
			Data:       data,
		}, nil
	}
}
