package apiclient

import "golang.org/x/sync/singleflight"

// Deduplicator coalesces concurrent identical GETs keyed by fingerprint
// (method + URL + body digest) into a single in-flight call; every waiter
// receives the same result.
type Deduplicator struct {
	group singleflight.Group
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Do executes fn for fingerprint, or joins an already in-flight call for
// the same fingerprint and returns its result.
func (d *Deduplicator) Do(fingerprint string, fn func() (*Response, error)) (*Response, error, bool) {
	v, err, shared := d.group.Do(fingerprint, func() (any, error) {
		return fn()
	})
	if v == nil {
		return nil, err, shared
	}
	return v.(*Response), err, shared
}

// Forget removes fingerprint from the in-flight map, letting the next
// caller start a fresh call instead of joining a stale one.
func (d *Deduplicator) Forget(fingerprint string) {
	d.group.Forget(fingerprint)
}
