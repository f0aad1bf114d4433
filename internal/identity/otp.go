package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/strixun/edgecore/internal/apperr"
	"github.com/strixun/edgecore/internal/crypto"
	"github.com/strixun/edgecore/internal/kv"
)

func emailHash(normalizedEmail string) string {
	h := crypto.SHA256([]byte(normalizedEmail))
	return crypto.B64URLEncode(h[:])
}

// NormalizeEmail lowercases and trims an email address the same way on
// every code path (request, verify, lookup).
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func otpKey(emailHash string) string {
	return fmt.Sprintf("auth:otp:%s", emailHash)
}

// OTPManager owns the OTP state machine: issue, verify, and the single
// live-record-per-email invariant.
type OTPManager struct {
	kv    kv.Store
	email EmailSender
}

// NewOTPManager creates an OTPManager backed by kv for storage and email
// for delivery.
func NewOTPManager(store kv.Store, email EmailSender) *OTPManager {
	return &OTPManager{kv: store, email: email}
}

// RequestResult is returned by Request.
type RequestResult struct {
	ExpiresIn int // seconds
	Remaining int // OTP attempts remaining before lockout (always MaxOTPAttempts for a fresh code)
	// Code is populated only when Request is called with echoCodeForTests
	// (the composition root passes it only when ENVIRONMENT is "test");
	// production callers must ignore this field.
	Code string
}

// Request issues a fresh OTP for email, superseding any prior live record
// (last-write-wins: a verify against the earlier code will fail because
// the record it names no longer matches).
func (m *OTPManager) Request(ctx context.Context, email string, echoCodeForTests bool) (*RequestResult, error) {
	normalized := NormalizeEmail(email)
	hash := emailHash(normalized)

	code, err := crypto.RandomOTPCode()
	if err != nil {
		return nil, fmt.Errorf("generating otp code: %w", err)
	}
	codeStr := fmt.Sprintf("%09d", code)

	now := time.Now().UTC()
	rec := OTPRecord{
		Code:      codeStr,
		EmailHash: hash,
		IssuedAt:  now,
		ExpiresAt: now.Add(OTPTTL),
		Attempts:  0,
		Consumed:  false,
	}

	if err := kv.PutJSON(ctx, m.kv, otpKey(hash), rec, kv.PutOptions{TTL: OTPTTL}); err != nil {
		return nil, fmt.Errorf("storing otp record: %w", err)
	}

	if err := m.email.Send(ctx, Email{
		To:      normalized,
		Subject: "Your verification code",
		HTML:    fmt.Sprintf("<p>Your code is <strong>%s</strong>. It expires in 10 minutes.</p>", codeStr),
	}); err != nil {
		_ = m.kv.Delete(ctx, otpKey(hash))
		return nil, apperr.Wrap(apperr.KindEmailFailed, "sending otp email", err)
	}

	result := &RequestResult{
		ExpiresIn: int(OTPTTL.Seconds()),
		Remaining: MaxOTPAttempts,
	}
	if echoCodeForTests {
		result.Code = codeStr
	}
	return result, nil
}

// VerifyResult is returned by Verify on success.
type VerifyResult struct {
	EmailHash string
}

// OTPInvalidError wraps the ValidationError for a wrong OTP with the
// number of attempts remaining before lockout, so the handler can surface
// it in the response body.
type OTPInvalidError struct {
	Err       *apperr.Error
	Remaining int
}

func (e *OTPInvalidError) Error() string { return e.Err.Error() }
func (e *OTPInvalidError) Unwrap() error { return e.Err }

// Verify checks otp against the live record for email. On success the
// record is deleted. On mismatch the attempt counter is incremented and
// persisted; at MaxOTPAttempts the record is deleted and further attempts
// return OtpNotFoundOrExpired, matching the "once consumed/locked, never
// seen again" invariant.
func (m *OTPManager) Verify(ctx context.Context, email, otp string) (*VerifyResult, error) {
	normalized := NormalizeEmail(email)
	hash := emailHash(normalized)

	var rec OTPRecord
	ok, err := kv.GetJSON(ctx, m.kv, otpKey(hash), &rec)
	if err != nil {
		return nil, fmt.Errorf("loading otp record: %w", err)
	}
	if !ok || rec.Consumed {
		return nil, apperr.New(apperr.KindValidation, "otp not found or expired").WithDetail("OtpNotFoundOrExpired")
	}
	if rec.IsExpired(time.Now().UTC()) {
		_ = m.kv.Delete(ctx, otpKey(hash))
		return nil, apperr.New(apperr.KindValidation, "otp not found or expired").WithDetail("OtpNotFoundOrExpired")
	}
	if rec.IsLocked() {
		_ = m.kv.Delete(ctx, otpKey(hash))
		return nil, apperr.New(apperr.KindRateLimited, "otp attempts exhausted").WithDetail("OtpAttemptsExhausted")
	}

	if !crypto.CTEqual([]byte(otp), []byte(rec.Code)) {
		rec.Attempts++
		if rec.IsLocked() {
			_ = m.kv.Delete(ctx, otpKey(hash))
			return nil, apperr.New(apperr.KindRateLimited, "otp attempts exhausted").WithDetail("OtpAttemptsExhausted")
		}
		if err := kv.PutJSON(ctx, m.kv, otpKey(hash), rec, kv.PutOptions{TTL: time.Until(rec.ExpiresAt)}); err != nil {
			return nil, fmt.Errorf("persisting otp attempt: %w", err)
		}
		remaining := MaxOTPAttempts - rec.Attempts
		return nil, &OTPInvalidError{
			Err:       apperr.New(apperr.KindValidation, "otp invalid").WithDetail("OtpInvalid"),
			Remaining: remaining,
		}
	}

	if err := m.kv.Delete(ctx, otpKey(hash)); err != nil {
		return nil, fmt.Errorf("deleting consumed otp record: %w", err)
	}

	return &VerifyResult{EmailHash: hash}, nil
}
