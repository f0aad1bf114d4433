package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/strixun/edgecore/internal/apperr"
	"github.com/strixun/edgecore/internal/httpserver"
)

// Authenticator resolves a CallerIdentity from a request's Authorization
// header or service key, without writing a response itself.
type Authenticator struct {
	sessions      *SessionManager
	superAdmins   *SuperAdminChecker
	serviceAPIKey string
	logger        *slog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(sessions *SessionManager, superAdmins *SuperAdminChecker, serviceAPIKey string, logger *slog.Logger) *Authenticator {
	return &Authenticator{sessions: sessions, superAdmins: superAdmins, serviceAPIKey: serviceAPIKey, logger: logger}
}

// Authenticate resolves the caller identity for r: Bearer JWT, or
// X-Service-Key matching the configured SERVICE_API_KEY.
func (a *Authenticator) Authenticate(r *http.Request) (*CallerIdentity, error) {
	if key := r.Header.Get("X-Service-Key"); key != "" {
		if a.serviceAPIKey != "" && key == a.serviceAPIKey {
			return &CallerIdentity{IsService: true}, nil
		}
		return nil, apperr.New(apperr.KindUnauthorized, "invalid service key")
	}

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return nil, apperr.New(apperr.KindUnauthorized, "missing bearer token")
	}
	raw := strings.TrimSpace(authHeader[len("Bearer "):])

	claims, err := a.sessions.Validate(r.Context(), raw)
	if err != nil {
		a.logger.Debug("session validation failed", "error", err)
		return nil, apperr.Wrap(apperr.KindUnauthorized, "invalid or expired token", err)
	}

	return &CallerIdentity{
		CustomerID:   claims.Subject,
		Email:        claims.Email,
		JTI:          claims.JTI,
		CSRF:         claims.CSRF,
		IsSuperAdmin: claims.IsSuperAdmin,
		Token:        raw,
	}, nil
}

// Middleware authenticates every request and stores the resulting identity
// in the request context, rejecting with 401 on failure.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Authenticate(r)
		if err != nil {
			httpserver.RespondAppError(w, err)
			return
		}
		ctx := NewContext(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSuperAdmin rejects the request with 403 unless the caller's
// identity is a super admin or an authenticated service call.
func RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id == nil || (!id.IsSuperAdmin && !id.IsService) {
			httpserver.RespondAppError(w, apperr.New(apperr.KindForbidden, "super admin required").WithDetail("SuperAdminRequired"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCSRF rejects state-changing requests (anything but GET/HEAD/OPTIONS)
// unless X-CSRF-Token equals the csrf claim embedded in the caller's session.
func RequireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id == nil || id.IsService || isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get("X-CSRF-Token")
		if token == "" || token != id.CSRF {
			httpserver.RespondAppError(w, apperr.New(apperr.KindForbidden, "csrf token mismatch"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
