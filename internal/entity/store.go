package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/strixun/edgecore/internal/kv"
)

// Store wraps a kv.Store with the canonical key grammar, secondary
// indexes, and bulk fan-out used by every business handler.
type Store struct {
	kv kv.Store
}

// NewStore wraps kv for entity-store access.
func NewStore(store kv.Store) *Store {
	return &Store{kv: store}
}

// timestamped is implemented by any entity whose UpdatedAt field is
// auto-stamped by PutEntity.
type timestamped interface {
	SetUpdatedAt(time.Time)
}

// GetEntity loads and unmarshals the entity at {service}:{entity}:{id}.
// Returns (zero, false, nil) if absent.
func GetEntity[T any](ctx context.Context, s *Store, service, ent, id string) (T, bool, error) {
	var out T
	ok, err := kv.GetJSON(ctx, s.kv, EntityKey(service, ent, id), &out)
	if err != nil {
		return out, false, fmt.Errorf("getEntity %s/%s/%s: %w", service, ent, id, err)
	}
	return out, ok, nil
}

// PutEntity stores data at its canonical key, stamping UpdatedAt to now
// (UTC) if data implements timestamped.
func PutEntity(ctx context.Context, s *Store, service, ent, id string, data any) error {
	if ts, ok := data.(timestamped); ok {
		ts.SetUpdatedAt(time.Now().UTC())
	}
	if err := kv.PutJSON(ctx, s.kv, EntityKey(service, ent, id), data, kv.PutOptions{}); err != nil {
		return fmt.Errorf("putEntity %s/%s/%s: %w", service, ent, id, err)
	}
	return nil
}

// DeleteEntity removes the entity at its canonical key.
func (s *Store) DeleteEntity(ctx context.Context, service, ent, id string) error {
	return s.kv.Delete(ctx, EntityKey(service, ent, id))
}

// idResult pairs a fan-out result with the id it came from, preserving
// order across concurrent gets/puts/deletes.
type idResult[T any] struct {
	id  string
	val T
	ok  bool
	err error
}

// GetEntities fans out GetEntity across ids concurrently, returning results
// in input order (nil entries for misses).
func GetEntities[T any](ctx context.Context, s *Store, service, ent string, ids []string) ([]*T, error) {
	results := make([]idResult[T], len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			v, ok, err := GetEntity[T](ctx, s, service, ent, id)
			results[i] = idResult[T]{id: id, val: v, ok: ok, err: err}
		}(i, id)
	}
	wg.Wait()

	out := make([]*T, len(ids))
	for i, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		if r.ok {
			v := r.val
			out[i] = &v
		}
	}
	return out, nil
}

// GetExistingEntities is GetEntities with nil (missing) entries stripped.
func GetExistingEntities[T any](ctx context.Context, s *Store, service, ent string, ids []string) ([]T, error) {
	all, err := GetEntities[T](ctx, s, service, ent, ids)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(all))
	for _, v := range all {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out, nil
}

// PutRequest is one entry of a bulk PutEntities call.
type PutRequest struct {
	ID   string
	Data any
}

// PutEntities fans out PutEntity across reqs concurrently.
func PutEntities(ctx context.Context, s *Store, service, ent string, reqs []PutRequest) error {
	errs := make([]error, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req PutRequest) {
			defer wg.Done()
			errs[i] = PutEntity(ctx, s, service, ent, req.ID, req.Data)
		}(i, req)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteEntities fans out DeleteEntity across ids concurrently.
func (s *Store) DeleteEntities(ctx context.Context, service, ent string, ids []string) error {
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = s.DeleteEntity(ctx, service, ent, id)
		}(i, id)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// --- Index operations (list-valued) ---

// IndexGet returns the ordered list of child IDs at the index key.
func (s *Store) IndexGet(ctx context.Context, service, relationship, parent string) ([]string, error) {
	var ids []string
	_, err := kv.GetJSON(ctx, s.kv, IndexKey(service, relationship, parent), &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// IndexAdd appends id to the index, de-duplicating on insert. Adding the
// same id repeatedly is idempotent.
func (s *Store) IndexAdd(ctx context.Context, service, relationship, parent, id string) error {
	ids, err := s.IndexGet(ctx, service, relationship, parent)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	return kv.PutJSON(ctx, s.kv, IndexKey(service, relationship, parent), ids, kv.PutOptions{})
}

// IndexRemove removes id from the index, compacting the list. If the
// resulting list is empty, the index key itself is deleted.
func (s *Store) IndexRemove(ctx context.Context, service, relationship, parent, id string) error {
	ids, err := s.IndexGet(ctx, service, relationship, parent)
	if err != nil {
		return err
	}
	out := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	if len(out) == 0 {
		return s.kv.Delete(ctx, IndexKey(service, relationship, parent))
	}
	return kv.PutJSON(ctx, s.kv, IndexKey(service, relationship, parent), out, kv.PutOptions{})
}

// IndexSet replaces the full contents of the index with ids.
func (s *Store) IndexSet(ctx context.Context, service, relationship, parent string, ids []string) error {
	if len(ids) == 0 {
		return s.kv.Delete(ctx, IndexKey(service, relationship, parent))
	}
	return kv.PutJSON(ctx, s.kv, IndexKey(service, relationship, parent), ids, kv.PutOptions{})
}

// IndexHas reports whether id is present in the index.
func (s *Store) IndexHas(ctx context.Context, service, relationship, parent, id string) (bool, error) {
	ids, err := s.IndexGet(ctx, service, relationship, parent)
	if err != nil {
		return false, err
	}
	for _, existing := range ids {
		if existing == id {
			return true, nil
		}
	}
	return false, nil
}

// IndexCount returns the number of entries in the index.
func (s *Store) IndexCount(ctx context.Context, service, relationship, parent string) (int, error) {
	ids, err := s.IndexGet(ctx, service, relationship, parent)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// --- Index operations (single-valued) ---

// IndexSetSingle stores a single id at the index key, e.g. the
// email-to-customerId lookup.
func (s *Store) IndexSetSingle(ctx context.Context, service, relationship, lookupKey, id string) error {
	return s.kv.Put(ctx, IndexKey(service, relationship, lookupKey), []byte(id), kv.PutOptions{})
}

// IndexGetSingle returns the single id stored at the index key.
func (s *Store) IndexGetSingle(ctx context.Context, service, relationship, lookupKey string) (string, bool, error) {
	raw, ok, err := s.kv.Get(ctx, IndexKey(service, relationship, lookupKey))
	if err != nil || !ok {
		return "", ok, err
	}
	return string(raw), true, nil
}

// IndexDeleteSingle removes the single-value index key.
func (s *Store) IndexDeleteSingle(ctx context.Context, service, relationship, lookupKey string) error {
	return s.kv.Delete(ctx, IndexKey(service, relationship, lookupKey))
}

// raw is a helper for migration/diagnostic code that needs the undecoded
// JSON bytes of an entity rather than a typed struct.
func (s *Store) raw(ctx context.Context, key string) (json.RawMessage, bool, error) {
	b, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return json.RawMessage(b), true, nil
}
