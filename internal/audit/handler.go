package audit

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strixun/edgecore/internal/apperr"
	"github.com/strixun/edgecore/internal/httpserver"
	"github.com/strixun/edgecore/internal/identity"
	"github.com/strixun/edgecore/internal/kv"
)

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	kv     kv.Store
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(store kv.Store, logger *slog.Logger) *Handler {
	return &Handler{kv: store, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted. Mount behind
// authentication; handleList itself enforces that the caller owns the
// requested customerId or is a super admin/service caller.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{customerId}", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")

	id := identity.FromContext(r.Context())
	if id == nil || (!id.IsService && !id.IsSuperAdmin && id.CustomerID != customerID) {
		httpserver.RespondAppError(w, apperr.New(apperr.KindForbidden, "cannot read another customer's audit log"))
		return
	}

	params, err := httpserver.ParsePageParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	entries, nextCursor, err := h.list(r.Context(), customerID, params.Cursor, params.Limit)
	if err != nil {
		h.logger.Error("listing audit log", "error", err, "customerId", customerID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewCursorPage(entries, nextCursor))
}

func (h *Handler) list(ctx context.Context, customerID, cursor string, limit int) ([]Entry, string, error) {
	prefix := "audit:" + customerID + ":"
	res, err := h.kv.List(ctx, prefix, cursor, limit)
	if err != nil {
		return nil, "", err
	}

	entries := make([]Entry, 0, len(res.Keys))
	for _, key := range res.Keys {
		var e Entry
		ok, err := kv.GetJSON(ctx, h.kv, key, &e)
		if err != nil {
			return nil, "", err
		}
		if ok {
			entries = append(entries, e)
		}
	}
	return entries, res.NextCursor, nil
}
