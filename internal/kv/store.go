// Package kv defines the minimal key-value interface every higher layer
// (EntityStore, IdentityService and its rate limits, the audit log) is
// built on, plus Redis-backed and in-memory implementations.
package kv

import (
	"context"
	"encoding/json"
	"time"
)

// PutOptions configures a Put call. Zero value means no expiry.
type PutOptions struct {
	TTL       time.Duration
	ExpiresAt time.Time
}

// ListResult is the result of a prefix scan.
type ListResult struct {
	Keys       []string
	NextCursor string
	Complete   bool
}

// Store is the abstract strongly-consistent-enough KV every component
// depends on. Implementations must support read-your-writes within a
// single caller; global ordering across regions is not required. TTL is
// honoured best-effort — consumers must re-check expiry on read where it
// matters (see OTPManager.Verify's expiry check in internal/identity).
type Store interface {
	// Get returns the raw bytes stored at key, or (nil, false) if absent
	// or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value at key with the given options.
	Put(ctx context.Context, key string, value []byte, opts PutOptions) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns up to limit keys with the given prefix, starting after
	// cursor. An empty NextCursor with Complete=true means no more keys.
	List(ctx context.Context, prefix, cursor string, limit int) (ListResult, error)
}

// GetJSON reads key and unmarshals it into v. Returns (false, nil) if absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, err
	}
	return true, nil
}

// PutJSON marshals v and stores it at key.
func PutJSON(ctx context.Context, s Store, key string, v any, opts PutOptions) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, raw, opts)
}
