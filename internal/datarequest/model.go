// Package datarequest implements the durable record behind a support
// custodian's approved, scoped access to a customer's private fields —
// backed directly by Postgres (not the KVStore) since status queries over
// the full request set are a natural SQL filter.
package datarequest

import "time"

// Status is the lifecycle state of a DataRequest.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// DataRequest is one custodian access grant against a customer's profile.
type DataRequest struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customerId"`
	RequesterID string     `json:"requesterId"` // super-admin customerId who filed the request
	Status      Status     `json:"status"`
	RequestKey  string     `json:"-"` // outer two-stage encryption key; never serialised to API responses
	SealedEmail []byte     `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
}
