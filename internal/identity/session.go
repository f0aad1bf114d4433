package identity

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/strixun/edgecore/internal/crypto"
	"github.com/strixun/edgecore/internal/kv"
)

// MinJWTSecretLen is the minimum acceptable length of JWT_SECRET; startup
// must fail below this.
const MinJWTSecretLen = 32

func sessionKey(jti string) string    { return fmt.Sprintf("auth:session:%s", jti) }
func blacklistKey(jti string) string  { return fmt.Sprintf("auth:blacklist:%s", jti) }

// SessionManager issues and validates HS256 session JWTs and manages the
// server-side Session/blacklist records backing them.
type SessionManager struct {
	signingKey []byte
	kv         kv.Store
}

// NewSessionManager creates a SessionManager. secret must be at least
// MinJWTSecretLen bytes — the caller's startup path should treat a shorter
// secret as a fatal configuration error.
func NewSessionManager(secret string, store kv.Store) (*SessionManager, error) {
	if len(secret) < MinJWTSecretLen {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", MinJWTSecretLen, len(secret))
	}
	return &SessionManager{signingKey: []byte(secret), kv: store}, nil
}

// IssuedToken is the result of issuing a new session.
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// Issue creates a new Session and signs a JWT for it.
func (m *SessionManager) Issue(ctx context.Context, customerID, email string, isSuperAdmin bool) (*IssuedToken, error) {
	jti := uuid.NewString()
	csrfBytes, err := crypto.RandomBytes(16)
	if err != nil {
		return nil, fmt.Errorf("generating csrf token: %w", err)
	}
	csrf := hex.EncodeToString(csrfBytes)

	now := time.Now().UTC()
	expiresAt := now.Add(SessionLifetime)

	sess := Session{
		JTI:          jti,
		CustomerID:   customerID,
		IssuedAt:     now,
		ExpiresAt:    expiresAt,
		CSRF:         csrf,
		IsSuperAdmin: isSuperAdmin,
	}
	if err := kv.PutJSON(ctx, m.kv, sessionKey(jti), sess, kv.PutOptions{TTL: SessionLifetime}); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	token, err := m.sign(Claims{
		Subject:      customerID,
		Email:        email,
		JTI:          jti,
		CSRF:         csrf,
		IsSuperAdmin: isSuperAdmin,
	}, now, expiresAt)
	if err != nil {
		return nil, err
	}

	return &IssuedToken{Token: token, JTI: jti, ExpiresAt: expiresAt}, nil
}

func (m *SessionManager) sign(claims Claims, issuedAt, expiresAt time.Time) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: m.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	registered := jwt.Claims{
		Subject:  claims.Subject,
		IssuedAt: jwt.NewNumericDate(issuedAt),
		Expiry:   jwt.NewNumericDate(expiresAt),
		ID:       claims.JTI,
		Issuer:   "edgecore",
	}

	token, err := jwt.Signed(signer).Claims(registered).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// Validate verifies the JWT signature, expiry, and that its jti is neither
// blacklisted nor missing its server-side Session record.
func (m *SessionManager) Validate(ctx context.Context, raw string) (*Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	var registered jwt.Claims
	var custom Claims
	if err := tok.Claims(m.signingKey, &registered, &custom); err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: "edgecore",
		Time:   time.Now(),
	}, 5*time.Second); err != nil {
		return nil, fmt.Errorf("validating claims: %w", err)
	}

	if _, blacklisted, err := m.kv.Get(ctx, blacklistKey(custom.JTI)); err != nil {
		return nil, fmt.Errorf("checking blacklist: %w", err)
	} else if blacklisted {
		return nil, fmt.Errorf("token has been revoked")
	}

	if _, found, err := m.kv.Get(ctx, sessionKey(custom.JTI)); err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	} else if !found {
		return nil, fmt.Errorf("session not found")
	}

	return &custom, nil
}

// Refresh blacklists the current jti (for its remaining lifetime) and
// issues a fresh token for the same customer.
func (m *SessionManager) Refresh(ctx context.Context, claims *Claims, remainingLifetime time.Duration) (*IssuedToken, error) {
	if err := m.blacklist(ctx, claims.JTI, remainingLifetime); err != nil {
		return nil, err
	}
	return m.Issue(ctx, claims.Subject, claims.Email, claims.IsSuperAdmin)
}

// Logout blacklists jti for its remaining lifetime and deletes the Session
// record. Calling Logout twice for the same jti is a no-op on the second
// call (blacklisting an already-blacklisted jti is idempotent).
func (m *SessionManager) Logout(ctx context.Context, jti string, remainingLifetime time.Duration) error {
	if remainingLifetime > 0 {
		if err := m.blacklist(ctx, jti, remainingLifetime); err != nil {
			return err
		}
	}
	return m.kv.Delete(ctx, sessionKey(jti))
}

func (m *SessionManager) blacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := m.kv.Put(ctx, blacklistKey(jti), []byte("1"), kv.PutOptions{TTL: ttl}); err != nil {
		return fmt.Errorf("blacklisting jti: %w", err)
	}
	return nil
}
