package identity

import (
	"context"
	"testing"
	"time"

	"github.com/strixun/edgecore/internal/kv"
)

type fakeEmailSender struct {
	sent []Email
	fail bool
}

func (f *fakeEmailSender) Send(_ context.Context, msg Email) error {
	if f.fail {
		return errFakeSendFailure
	}
	f.sent = append(f.sent, msg)
	return nil
}

var errFakeSendFailure = &fakeSendError{}

type fakeSendError struct{}

func (e *fakeSendError) Error() string { return "vendor send failed" }

func TestOTPRequestThenVerifyHappyPath(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	sender := &fakeEmailSender{}
	mgr := NewOTPManager(store, sender)

	result, err := mgr.Request(ctx, "Alice@Example.com ", true)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if result.Code == "" {
		t.Fatal("expected echoed code in test mode")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one email sent, got %d", len(sender.sent))
	}

	verifyResult, err := mgr.Verify(ctx, "alice@example.com", result.Code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verifyResult.EmailHash == "" {
		t.Error("expected non-empty email hash")
	}

	if _, err := mgr.Verify(ctx, "alice@example.com", result.Code); err == nil {
		t.Fatal("expected second verify with consumed code to fail")
	}
}

func TestOTPWrongCodeThenLockout(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	sender := &fakeEmailSender{}
	mgr := NewOTPManager(store, sender)

	result, err := mgr.Request(ctx, "bob@example.com", true)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	wrongCode := "000000000"
	if wrongCode == result.Code {
		wrongCode = "111111111"
	}

	for i := 0; i < MaxOTPAttempts-1; i++ {
		_, err := mgr.Verify(ctx, "bob@example.com", wrongCode)
		invalid, ok := err.(*OTPInvalidError)
		if !ok {
			t.Fatalf("attempt %d: expected OTPInvalidError, got %v", i, err)
		}
		if invalid.Remaining != MaxOTPAttempts-1-i {
			t.Errorf("attempt %d: expected remaining %d, got %d", i, MaxOTPAttempts-1-i, invalid.Remaining)
		}
	}

	// Final attempt should lock the record.
	_, err = mgr.Verify(ctx, "bob@example.com", wrongCode)
	if err == nil {
		t.Fatal("expected lockout error on final attempt")
	}

	// Record should now be gone; verifying the correct code returns not-found.
	if _, err := mgr.Verify(ctx, "bob@example.com", result.Code); err == nil {
		t.Fatal("expected not-found after lockout deleted the record")
	}
}

func TestOTPRequestSupersedesEarlierCode(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	sender := &fakeEmailSender{}
	mgr := NewOTPManager(store, sender)

	first, err := mgr.Request(ctx, "carol@example.com", true)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := mgr.Request(ctx, "carol@example.com", true)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	if first.Code == second.Code {
		t.Skip("random codes collided; cannot assert supersession in this run")
	}

	if _, err := mgr.Verify(ctx, "carol@example.com", first.Code); err == nil {
		t.Fatal("expected verify with superseded code to fail")
	}
	if _, err := mgr.Verify(ctx, "carol@example.com", second.Code); err != nil {
		t.Fatalf("expected verify with current code to succeed: %v", err)
	}
}

func TestOTPSendFailureDeletesRecord(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	sender := &fakeEmailSender{fail: true}
	mgr := NewOTPManager(store, sender)

	if _, err := mgr.Request(ctx, "dave@example.com", false); err == nil {
		t.Fatal("expected request to fail when email send fails")
	}

	if _, ok, _ := store.Get(ctx, otpKey(emailHash("dave@example.com"))); ok {
		t.Error("expected otp record to be deleted after send failure")
	}
}

func TestSessionIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	mgr, err := NewSessionManager("0123456789abcdef0123456789abcdef", store)
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}

	issued, err := mgr.Issue(ctx, "cust_abc", "alice@example.com", false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := mgr.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "cust_abc" {
		t.Errorf("got subject %q want %q", claims.Subject, "cust_abc")
	}
}

func TestSessionShortSecretRejected(t *testing.T) {
	store := kv.NewMemoryStore()
	if _, err := NewSessionManager("too-short", store); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}

func TestSessionLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	mgr, err := NewSessionManager("0123456789abcdef0123456789abcdef", store)
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}

	issued, err := mgr.Issue(ctx, "cust_abc", "alice@example.com", false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := mgr.Logout(ctx, issued.JTI, time.Hour); err != nil {
		t.Fatalf("first logout: %v", err)
	}
	if err := mgr.Logout(ctx, issued.JTI, time.Hour); err != nil {
		t.Fatalf("second logout should be a no-op, got error: %v", err)
	}

	if _, err := mgr.Validate(ctx, issued.Token); err == nil {
		t.Fatal("expected validate to fail for blacklisted jti")
	}
}

func TestRateLimiterAllowsUpToMaxThenBlocks(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	rl := NewRateLimiter(store)

	for i := 0; i < bucketDefaults[BucketOTPRequest].Max; i++ {
		result, err := rl.Check(ctx, BucketOTPRequest, "subject1")
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !result.Allowed {
			t.Fatalf("check %d: expected allowed", i)
		}
	}

	result, err := rl.Check(ctx, BucketOTPRequest, "subject1")
	if err != nil {
		t.Fatalf("final check: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected the request beyond the max to be rejected")
	}
	if result.RetryAfter <= 0 {
		t.Error("expected a positive RetryAfter on rejection")
	}
}

func TestGenerateDisplayNameNonEmpty(t *testing.T) {
	name, err := GenerateDisplayName()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if name == "" {
		t.Error("expected non-empty display name")
	}
}
