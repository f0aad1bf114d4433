package blob

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strixun/edgecore/internal/apperr"
	"github.com/strixun/edgecore/internal/httpserver"
	"github.com/strixun/edgecore/internal/identity"
)

// Handler mounts the binary upload/download routes (§6 binary upload/
// download envelope).
type Handler struct {
	pipeline *Pipeline
}

// NewHandler creates a blob Handler.
func NewHandler(pipeline *Pipeline) *Handler {
	return &Handler{pipeline: pipeline}
}

// Routes returns the chi router for /files; mount under an authenticated
// subrouter so identity.FromContext is always populated.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleUpload)
	r.Get("/{r2Key}", h.handleDownload)
	return r
}

const maxUploadBytes = 32 << 20 // 32 MiB

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	if id == nil || id.IsService || id.Token == "" {
		httpserver.RespondAppError(w, apperr.New(apperr.KindUnauthorized, "bearer token required"))
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "request body too large or unreadable")
		return
	}

	mimeType := r.Header.Get("Content-Type")
	r2Key, meta, err := h.pipeline.Upload(r.Context(), id.Token, id.CustomerID, mimeType, raw)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, map[string]any{
		"r2Key":               r2Key,
		"encryptionFormat":    meta.EncryptionFormat,
		"sha256":              meta.SHA256,
		"originalContentType": meta.OriginalContentType,
	})
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	if id == nil || id.IsService || id.Token == "" {
		httpserver.RespondAppError(w, apperr.New(apperr.KindUnauthorized, "bearer token required"))
		return
	}

	r2Key := chi.URLParam(r, "r2Key")
	plaintext, meta, err := h.pipeline.Download(r.Context(), id.Token, r2Key)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if meta.CustomerID != id.CustomerID && !id.IsSuperAdmin {
		httpserver.RespondAppError(w, apperr.New(apperr.KindForbidden, "access denied"))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(plaintext)
}
