package cipher

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/strixun/edgecore/internal/apperr"
	"github.com/strixun/edgecore/internal/httpserver"
)

// Caller is the minimal view of the request's authenticated identity this
// package needs. It is satisfied by internal/identity's adapter over
// CallerIdentity (see identity.CipherCallerFromContext) without this
// package importing internal/identity — the IdentityPort break described
// in spec.md §9: the cyclic dependency between identity and customer
// stores is broken by an interface consumed here, with the concrete
// identity service injected at the composition root.
type Caller interface {
	Token() string
	IsService() bool
}

// CallerFromContext resolves the current request's Caller, or nil.
type CallerFromContext func(ctx context.Context) Caller

// EncryptMiddleware encrypts every JSON response body for an authenticated,
// non-service caller under their bearer token (§4.6 envelope v5), and
// applies response field filtering (§4.6) from the include/exclude/tags
// query parameters before encrypting. Service-to-service callers are left
// unencrypted — they're protected by internal/integrity response signing
// instead, applied by a middleware further down the chain.
func EncryptMiddleware(callerFn CallerFromContext, schemas map[string]Schema, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := callerFn(r.Context())
			if caller == nil || caller.IsService() || caller.Token() == "" {
				next.ServeHTTP(w, r)
				return
			}

			rec := &bufferingWriter{ResponseWriter: w, status: http.StatusOK, buf: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)

			if rec.status < 200 || rec.status >= 300 || !isJSONBody(rec.Header().Get("Content-Type")) {
				w.WriteHeader(rec.status)
				_, _ = w.Write(rec.buf.Bytes())
				return
			}

			body := rec.buf.Bytes()
			if schema, ok := schemas[routeKey(r)]; ok {
				body = filterJSONBody(body, schema, r.URL.Query())
			}

			envelope, err := Encrypt(caller.Token(), body)
			if err != nil {
				logger.Error("encrypting response envelope", "error", err, "path", r.URL.Path)
				httpserver.RespondAppError(w, apperr.Wrap(apperr.KindCrypto, "response encryption failed", err))
				return
			}

			w.Header().Set("X-Encrypted", "true")
			w.Header().Set("Content-Type", "application/octet-stream")
			w.WriteHeader(rec.status)
			_, _ = w.Write(envelope)
		})
	}
}

func routeKey(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}

func isJSONBody(contentType string) bool {
	return contentType == "" || contentType == "application/json" || contentType == "application/json; charset=utf-8"
}

func filterJSONBody(body []byte, schema Schema, query map[string][]string) []byte {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		// Not a JSON object (e.g. an array or scalar) — filtering doesn't
		// apply, pass the body through unchanged.
		return body
	}
	sel := ParseSelection(first(query, "include"), first(query, "exclude"), first(query, "tags"))
	filtered := Apply(m, schema, sel)
	out, err := json.Marshal(filtered)
	if err != nil {
		return body
	}
	return out
}

func first(query map[string][]string, key string) string {
	vs := query[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// bufferingWriter buffers the response so it can be encrypted as a whole
// before any byte reaches the client — no partial encrypted body is ever
// flushed (spec.md §7 propagation policy).
type bufferingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         *bytes.Buffer
}

func (w *bufferingWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
}

func (w *bufferingWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}
