// Package identity implements the passwordless email-OTP to JWT flow:
// OTP lifecycle, session issuance, refresh/logout/blacklist, rate limits,
// and super-admin gating.
package identity

import "time"

// Customer is the first-class identity principal.
type Customer struct {
	CustomerID         string            `json:"customerId"`
	Email              string            `json:"email"` // lowercase-trimmed
	EmailHash          string            `json:"emailHash"`
	DisplayName        string            `json:"displayName"`
	DisplayNameHistory []string          `json:"displayNameHistory,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
	Preferences        CustomerPrefs     `json:"preferences"`
	Plan               string            `json:"plan,omitempty"`
	Tier               string            `json:"tier,omitempty"`
	Status             string            `json:"status,omitempty"`
	Flairs             []string          `json:"flairs,omitempty"`
	ExtraRoles         map[string]string `json:"extraRoles,omitempty"`
}

func (c *Customer) SetUpdatedAt(t time.Time) { c.UpdatedAt = t }
func (c Customer) OwnerCustomerID() string    { return c.CustomerID }

// EmailVisibility controls whether a customer's email is exposed on their
// own profile to other callers.
type EmailVisibility string

const (
	EmailVisibilityPrivate EmailVisibility = "private"
	EmailVisibilityPublic  EmailVisibility = "public"
)

// CustomerPrefs are the visibility preferences a Customer controls.
type CustomerPrefs struct {
	EmailVisibility      EmailVisibility `json:"emailVisibility"`
	ShowEmail            bool            `json:"showEmail"`
	ShowProfilePicture   bool            `json:"showProfilePicture"`
}

// OTPStatus is the state machine position of an OTPRecord.
type OTPStatus string

const (
	OTPStatusPending  OTPStatus = "pending"
	OTPStatusConsumed OTPStatus = "consumed"
	OTPStatusLocked   OTPStatus = "locked"
	OTPStatusExpired  OTPStatus = "expired"
)

// MaxOTPAttempts is the attempt cap before an OTPRecord locks.
const MaxOTPAttempts = 5

// OTPTTL is the lifetime of an issued OTP code.
const OTPTTL = 10 * time.Minute

// OTPRecord is the live challenge for one email address.
type OTPRecord struct {
	Code      string    `json:"code"` // 9 digits, zero-padded
	EmailHash string    `json:"emailHash"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Attempts  int       `json:"attempts"`
	Consumed  bool      `json:"consumed"`
}

// IsExpired reports whether the record is expired as of now.
func (r *OTPRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// IsLocked reports whether the attempt cap has been reached.
func (r *OTPRecord) IsLocked() bool {
	return r.Attempts >= MaxOTPAttempts
}

// SessionLifetime is the duration a JWT/session remains valid.
const SessionLifetime = 7 * time.Hour

// Session is the server-side record backing an issued JWT.
type Session struct {
	JTI           string    `json:"jti"`
	CustomerID    string    `json:"customerId"`
	IssuedAt      time.Time `json:"issuedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	CSRF          string    `json:"csrf"` // random 128-bit, hex
	IsSuperAdmin  bool      `json:"isSuperAdmin"`
}

// Claims are the JWT claims issued by this service.
type Claims struct {
	Subject      string `json:"sub"`
	Email        string `json:"email"`
	JTI          string `json:"jti"`
	CSRF         string `json:"csrf"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}
