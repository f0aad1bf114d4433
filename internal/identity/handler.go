package identity

import (
	"encoding/base64"
	"net/http"
	"regexp"
	"time"

	"github.com/strixun/edgecore/internal/apperr"
	"github.com/strixun/edgecore/internal/httpserver"
	"github.com/strixun/edgecore/internal/telemetry"
	"github.com/strixun/edgecore/pkg/cipher"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Handler mounts /auth/* routes.
type Handler struct {
	otp          *OTPManager
	sessions     *SessionManager
	customers    *CustomerStore
	rateLimiter  *RateLimiter
	superAdmins  *SuperAdminChecker
	cookieDomain string
	isTestEnv    bool
}

// NewHandler creates an identity Handler.
func NewHandler(otp *OTPManager, sessions *SessionManager, customers *CustomerStore, rl *RateLimiter, superAdmins *SuperAdminChecker, cookieDomain string, isTestEnv bool) *Handler {
	return &Handler{
		otp:          otp,
		sessions:     sessions,
		customers:    customers,
		rateLimiter:  rl,
		superAdmins:  superAdmins,
		cookieDomain: cookieDomain,
		isTestEnv:    isTestEnv,
	}
}

type requestOTPBody struct {
	Email string `json:"email" validate:"required,email"`
}

// HandleRequestOTP handles POST /auth/request-otp.
func (h *Handler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var body requestOTPBody
	if !httpserver.DecodeAndValidate(w, r, &body) {
		return
	}
	if !emailPattern.MatchString(body.Email) {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_email", "must be a valid email address")
		return
	}

	normalized := NormalizeEmail(body.Email)
	hash := emailHash(normalized)

	result, err := h.rateLimiter.Check(r.Context(), BucketOTPRequest, hash)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if !result.Allowed {
		telemetry.RateLimitRejectionsTotal.WithLabelValues(string(BucketOTPRequest)).Inc()
		httpserver.RespondAppError(w, apperr.New(apperr.KindRateLimited, "too many otp requests").WithRetryAfter(result.RetryAfter))
		return
	}

	otpResult, err := h.otp.Request(r.Context(), normalized, h.isTestEnv)
	if err != nil {
		telemetry.OTPRequestsTotal.WithLabelValues("failed").Inc()
		httpserver.RespondAppError(w, err)
		return
	}

	telemetry.OTPRequestsTotal.WithLabelValues("issued").Inc()
	resp := map[string]any{
		"success":   true,
		"expiresIn": otpResult.ExpiresIn,
		"remaining": otpResult.Remaining,
	}
	if otpResult.Code != "" {
		resp["otp"] = otpResult.Code
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

type verifyOTPBody struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=9,numeric"`
}

// HandleVerifyOTP handles POST /auth/verify-otp.
func (h *Handler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var body verifyOTPBody
	if !httpserver.DecodeAndValidate(w, r, &body) {
		return
	}

	normalized := NormalizeEmail(body.Email)
	checkResult, err := h.rateLimiter.Check(r.Context(), BucketCheck, emailHash(normalized))
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if !checkResult.Allowed {
		telemetry.RateLimitRejectionsTotal.WithLabelValues(string(BucketCheck)).Inc()
		httpserver.RespondAppError(w, apperr.New(apperr.KindRateLimited, "too many verification attempts").WithRetryAfter(checkResult.RetryAfter))
		return
	}

	result, err := h.otp.Verify(r.Context(), body.Email, body.OTP)
	if err != nil {
		telemetry.OTPVerificationsTotal.WithLabelValues("failed").Inc()
		if invalid, ok := err.(*OTPInvalidError); ok {
			httpserver.Respond(w, http.StatusBadRequest, map[string]any{
				"error":     "OtpInvalid",
				"message":   invalid.Error(),
				"remaining": invalid.Remaining,
			})
			return
		}
		httpserver.RespondAppError(w, err)
		return
	}
	telemetry.OTPVerificationsTotal.WithLabelValues("success").Inc()

	customer, err := h.customers.GetOrCreate(r.Context(), normalized, result.EmailHash)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	isSuperAdmin := h.superAdmins.IsSuperAdmin(normalized)
	issued, err := h.sessions.Issue(r.Context(), customer.CustomerID, normalized, isSuperAdmin)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	setAuthCookie(w, issued.Token, issued.ExpiresAt, h.cookieDomain)
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"token":       issued.Token,
		"customerId":  customer.CustomerID,
		"email":       customer.Email,
		"displayName": customer.DisplayName,
		"expiresAt":   issued.ExpiresAt.Format(time.RFC3339),
	})
}

// HandleRefresh handles POST /auth/refresh.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	id := FromContext(r.Context())
	if id == nil || id.IsService {
		httpserver.RespondAppError(w, apperr.New(apperr.KindUnauthorized, "bearer token required"))
		return
	}

	writeResult, err := h.rateLimiter.Check(r.Context(), BucketWrite, Subject(r, id.CustomerID))
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if !writeResult.Allowed {
		telemetry.RateLimitRejectionsTotal.WithLabelValues(string(BucketWrite)).Inc()
		httpserver.RespondAppError(w, apperr.New(apperr.KindRateLimited, "too many refresh attempts").WithRetryAfter(writeResult.RetryAfter))
		return
	}

	issued, err := h.sessions.Refresh(r.Context(), &Claims{
		Subject:      id.CustomerID,
		Email:        id.Email,
		JTI:          id.JTI,
		CSRF:         id.CSRF,
		IsSuperAdmin: id.IsSuperAdmin,
	}, SessionLifetime)
	if err != nil {
		httpserver.RespondAppError(w, apperr.Wrap(apperr.KindUnauthorized, "token refresh failed", err))
		return
	}

	setAuthCookie(w, issued.Token, issued.ExpiresAt, h.cookieDomain)
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"token":     issued.Token,
		"expiresAt": issued.ExpiresAt.Format(time.RFC3339),
	})
}

// HandleLogout handles POST /auth/logout. Calling it twice for an
// already-blacklisted jti is a no-op that still returns success.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	id := FromContext(r.Context())
	if id != nil && !id.IsService {
		_ = h.sessions.Logout(r.Context(), id.JTI, SessionLifetime)
	}
	clearAuthCookie(w, h.cookieDomain)
	httpserver.Respond(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleMe handles GET /auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id := FromContext(r.Context())
	if id == nil || id.IsService {
		httpserver.RespondAppError(w, apperr.New(apperr.KindUnauthorized, "bearer token required"))
		return
	}

	readResult, err := h.rateLimiter.Check(r.Context(), BucketRead, Subject(r, id.CustomerID))
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if !readResult.Allowed {
		telemetry.RateLimitRejectionsTotal.WithLabelValues(string(BucketRead)).Inc()
		httpserver.RespondAppError(w, apperr.New(apperr.KindRateLimited, "too many requests").WithRetryAfter(readResult.RetryAfter))
		return
	}

	customer, ok, err := h.customers.GetByID(r.Context(), id.CustomerID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if !ok {
		httpserver.RespondAppError(w, apperr.New(apperr.KindNotFound, "customer not found"))
		return
	}

	resp := map[string]any{
		"customerId":  customer.CustomerID,
		"displayName": customer.DisplayName,
		"preferences": customer.Preferences,
		"createdAt":   customer.CreatedAt.Format(time.RFC3339),
	}
	switch {
	case customer.Preferences.EmailVisibility == EmailVisibilityPublic || customer.Preferences.ShowEmail:
		resp["email"] = customer.Email
	case id.Token != "":
		// Private visibility still returns the email, but double-encrypted:
		// outer layer scoped to this session (the jti), inner layer to the
		// caller's own bearer token, so only this still-live session can
		// unwrap it even if the response envelope itself were replayed.
		sealed, err := cipher.SealTwoStage(id.Token, id.JTI, []byte(customer.Email))
		if err != nil {
			httpserver.RespondAppError(w, apperr.Wrap(apperr.KindCrypto, "sealing private email", err))
			return
		}
		resp["emailSealed"] = base64.RawURLEncoding.EncodeToString(sealed)
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func setAuthCookie(w http.ResponseWriter, token string, expiresAt time.Time, apexDomain string) {
	cookie := &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	}
	if apexDomain != "" {
		cookie.Domain = "." + apexDomain
	}
	http.SetCookie(w, cookie)
}

func clearAuthCookie(w http.ResponseWriter, apexDomain string) {
	cookie := &http.Cookie{
		Name:     "auth_token",
		Value:    "",
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	}
	if apexDomain != "" {
		cookie.Domain = "." + apexDomain
	}
	http.SetCookie(w, cookie)
}
