package integrity

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/strixun/edgecore/internal/apperr"
	"github.com/strixun/edgecore/internal/httpserver"
	"github.com/strixun/edgecore/internal/telemetry"
)

// ServiceRequestHeader, when "true", explicitly marks a request as
// machine-originated.
const ServiceRequestHeader = "X-Service-Request"

// ServiceKeyHeader carries the shared static service API key.
const ServiceKeyHeader = "X-Service-Key"

// IsServiceCall recognises an inbound request as service-to-service: any
// of an integrity signature header, an explicit X-Service-Request flag, a
// service key header, or a Bearer token that is not a 3-segment JWT.
func IsServiceCall(r *http.Request) bool {
	if r.Header.Get(RequestIntegrityHeader) != "" {
		return true
	}
	if strings.EqualFold(r.Header.Get(ServiceRequestHeader), "true") {
		return true
	}
	if r.Header.Get(ServiceKeyHeader) != "" {
		return true
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		token := strings.TrimSpace(auth[len("Bearer "):])
		if strings.Count(token, ".") != 2 {
			return true
		}
	}
	return false
}

// isImageResponse reports whether a successful response should also be
// integrity-signed for opaque-byte protection, per the image-response rule.
func isImageResponse(status int, contentType string) bool {
	return status == http.StatusOK && strings.HasPrefix(contentType, "image/")
}

// VerifyMiddleware verifies the request signature on recognised
// service-to-service calls and signs the response. Non-service calls pass
// through untouched (they're protected by response encryption instead, see
// pkg/cipher).
func VerifyMiddleware(signer *Signer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			isService := IsServiceCall(r)

			if isService {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					httpserver.RespondAppError(w, apperr.Wrap(apperr.KindIntegrityFailed, "reading request body", err))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				sig := r.Header.Get(RequestIntegrityHeader)
				ts := r.Header.Get(RequestTimestampHeader)
				customerID := resolveCustomerID(r)

				if sig == "" || ts == "" {
					telemetry.IntegrityFailuresTotal.WithLabelValues("inbound_request").Inc()
					httpserver.RespondAppError(w, apperr.New(apperr.KindIntegrityFailed, "missing integrity headers").WithStatus(http.StatusBadGateway))
					return
				}

				if err := signer.VerifyRequest(r.Method, r.URL.RequestURI(), body, ts, customerID, sig); err != nil {
					logger.Warn("request integrity verification failed", "error", err, "path", r.URL.Path)
					telemetry.IntegrityFailuresTotal.WithLabelValues("inbound_request").Inc()
					httpserver.RespondAppError(w, apperr.New(apperr.KindIntegrityFailed, "request integrity check failed").WithStatus(http.StatusBadGateway))
					return
				}
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK, buf: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)

			shouldSign := isService || isImageResponse(rec.status, rec.Header().Get("Content-Type"))
			if !shouldSign {
				w.WriteHeader(rec.status)
				_, _ = w.Write(rec.buf.Bytes())
				return
			}

			sig := signer.SignResponse(rec.status, rec.buf.Bytes())
			w.Header().Set(ResponseIntegrityHeader, sig)
			w.WriteHeader(rec.status)
			_, _ = w.Write(rec.buf.Bytes())
		})
	}
}

// resolveCustomerID returns the X-Customer-ID header, or "" when it is
// absent (requestMessage encodes "" as the NoCustomer sentinel). JWT claims
// and request context are not consulted.
func resolveCustomerID(r *http.Request) string {
	if id := r.Header.Get(CustomerIDHeader); id != "" {
		return id
	}
	return ""
}

// responseRecorder buffers the response body so it can be signed before
// being flushed; the integrity layer must never flush a partial body.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	return r.buf.Write(b)
}
