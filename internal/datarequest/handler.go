package datarequest

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/strixun/edgecore/internal/apperr"
	"github.com/strixun/edgecore/internal/audit"
	"github.com/strixun/edgecore/internal/httpserver"
	"github.com/strixun/edgecore/internal/identity"
	"github.com/strixun/edgecore/pkg/cipher"
)

// Handler mounts the admin-gated /admin/data-requests routes implementing
// the two-stage custodial re-disclosure flow: a request is filed against a
// customer's profile, a super admin approves it, and the sealed email can
// then be revealed without ever storing the plaintext alongside the grant.
type Handler struct {
	store     *Store
	customers *identity.CustomerStore
	auditLog  *audit.Writer
}

// NewHandler creates a datarequest Handler.
func NewHandler(store *Store, customers *identity.CustomerStore, auditLog *audit.Writer) *Handler {
	return &Handler{store: store, customers: customers, auditLog: auditLog}
}

// Routes returns the chi router for /admin/data-requests; mount behind
// identity.RequireSuperAdmin.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{customerId}", h.handleCreate)
	r.Post("/{id}/approve", h.handleApprove)
	r.Get("/{id}/reveal", h.handleReveal)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerId")
	requester := identity.FromContext(r.Context())

	customer, ok, err := h.customers.GetByID(r.Context(), customerID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if !ok {
		httpserver.RespondAppError(w, apperr.New(apperr.KindNotFound, "customer not found"))
		return
	}

	requestKey, err := randomHex(32)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.KindCrypto, "generating request key", err))
		return
	}

	sealed, err := cipher.SealTwoStage(customer.EmailHash, requestKey, []byte(customer.Email))
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.KindCrypto, "sealing disclosure", err))
		return
	}

	dr := &DataRequest{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		RequesterID: requesterID(requester),
		Status:      StatusPending,
		RequestKey:  requestKey,
		SealedEmail: sealed,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.Create(r.Context(), dr); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	if h.auditLog != nil {
		h.auditLog.LogFromRequest(r, "data_request.create", "data_request", dr.ID, nil)
	}

	httpserver.Respond(w, http.StatusCreated, map[string]any{
		"id":         dr.ID,
		"customerId": dr.CustomerID,
		"status":     dr.Status,
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Approve(r.Context(), id); err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.KindConflict, "could not approve data request", err))
		return
	}
	if h.auditLog != nil {
		h.auditLog.LogFromRequest(r, "data_request.approve", "data_request", id, nil)
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"id": id, "status": StatusApproved})
}

func (h *Handler) handleReveal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dr, err := h.store.Get(r.Context(), id)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if dr == nil {
		httpserver.RespondAppError(w, apperr.New(apperr.KindNotFound, "data request not found"))
		return
	}
	if dr.Status != StatusApproved {
		httpserver.RespondAppError(w, apperr.New(apperr.KindForbidden, "data request has not been approved"))
		return
	}

	customer, ok, err := h.customers.GetByID(r.Context(), dr.CustomerID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if !ok {
		httpserver.RespondAppError(w, apperr.New(apperr.KindNotFound, "customer not found"))
		return
	}

	plaintext, err := cipher.OpenTwoStage(customer.EmailHash, dr.RequestKey, dr.SealedEmail)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	if h.auditLog != nil {
		h.auditLog.LogFromRequest(r, "data_request.reveal", "data_request", id, nil)
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"id":    dr.ID,
		"email": string(plaintext),
	})
}

func requesterID(id *identity.CallerIdentity) string {
	if id == nil {
		return ""
	}
	return id.CustomerID
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
