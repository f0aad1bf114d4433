package entity

import (
	"context"
	"testing"
	"time"

	"github.com/strixun/edgecore/internal/kv"
)

type testEntity struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customerId"`
	Visibility Visibility `json:"visibility"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (e *testEntity) SetUpdatedAt(t time.Time) { e.UpdatedAt = t }
func (e testEntity) OwnerCustomerID() string   { return e.CustomerID }
func (e testEntity) VisibilityLevel() Visibility {
	if e.Visibility == "" {
		return VisibilityPrivate
	}
	return e.Visibility
}

func TestParseEntityKey(t *testing.T) {
	p, err := ParseEntityKey("customer:profile:cust_abc")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Service != "customer" || p.Entity != "profile" || p.ID != "cust_abc" {
		t.Errorf("unexpected parse result: %+v", p)
	}

	if _, err := ParseEntityKey("too:many:segments:here"); err == nil {
		t.Error("expected error for malformed entity key")
	}
}

func TestParseIndexKey(t *testing.T) {
	p, err := ParseIndexKey("idx:customer:by-email:abc123")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Service != "customer" || p.Relationship != "by-email" || p.Parent != "abc123" {
		t.Errorf("unexpected parse result: %+v", p)
	}

	if _, err := ParseIndexKey("customer:by-email:abc123:extra"); err == nil {
		t.Error("expected error for non-idx-prefixed key")
	}
}

func TestPutGetEntityStampsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kv.NewMemoryStore())

	e := &testEntity{ID: "cust_1", CustomerID: "cust_1"}
	if err := PutEntity(ctx, s, "customer", "profile", e.ID, e); err != nil {
		t.Fatalf("put: %v", err)
	}
	first, ok, err := GetEntity[testEntity](ctx, s, "customer", "profile", e.ID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}

	time.Sleep(10 * time.Millisecond)
	if err := PutEntity(ctx, s, "customer", "profile", e.ID, e); err != nil {
		t.Fatalf("put again: %v", err)
	}
	second, ok, err := GetEntity[testEntity](ctx, s, "customer", "profile", e.ID)
	if err != nil || !ok {
		t.Fatalf("get again: ok=%v err=%v", ok, err)
	}

	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("expected second.UpdatedAt > first.UpdatedAt, got %v <= %v", second.UpdatedAt, first.UpdatedAt)
	}
}

func TestIndexAddDedup(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kv.NewMemoryStore())

	if err := s.IndexAdd(ctx, "customer", "children", "parent1", "child1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.IndexAdd(ctx, "customer", "children", "parent1", "child1"); err != nil {
		t.Fatalf("add again: %v", err)
	}

	ids, err := s.IndexGet(ctx, "customer", "children", "parent1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(ids) != 1 || ids[0] != "child1" {
		t.Errorf("expected exactly one child1, got %v", ids)
	}
}

func TestIndexRemoveCompactsAndDeletesWhenEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kv.NewMemoryStore())

	if err := s.IndexAdd(ctx, "customer", "children", "parent1", "child1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.IndexRemove(ctx, "customer", "children", "parent1", "child1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	count, err := s.IndexCount(ctx, "customer", "children", "parent1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty index, got count=%d", count)
	}
}

func TestIndexSingleValue(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kv.NewMemoryStore())

	if err := s.IndexSetSingle(ctx, "customer", "by-email", "emailhash123", "cust_abc"); err != nil {
		t.Fatalf("set: %v", err)
	}

	id, ok, err := s.IndexGetSingle(ctx, "customer", "by-email", "emailhash123")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if id != "cust_abc" {
		t.Errorf("got %q want %q", id, "cust_abc")
	}
}

func TestAccessControlOwnership(t *testing.T) {
	owned := testEntity{ID: "e1", CustomerID: "cust_1", Visibility: VisibilityPrivate}

	if !CanAccessOwned(owned, AccessContext{CustomerID: "cust_1"}) {
		t.Error("owner should access owned entity")
	}
	if CanAccessOwned(owned, AccessContext{CustomerID: "cust_2"}) {
		t.Error("non-owner should not access private owned entity")
	}
	if !CanAccessOwned(owned, AccessContext{IsAdmin: true}) {
		t.Error("admin should access any entity")
	}
}

func TestAccessControlVisibility(t *testing.T) {
	public := testEntity{ID: "e1", CustomerID: "cust_1", Visibility: VisibilityPublic}
	if !CanAccessVisible(public, AccessContext{CustomerID: "cust_2"}) {
		t.Error("anyone should read a public entity")
	}

	private := testEntity{ID: "e2", CustomerID: "cust_1", Visibility: VisibilityPrivate}
	if CanAccessVisible(private, AccessContext{CustomerID: "cust_2"}) {
		t.Error("non-owner should not read a private entity")
	}
}

func TestAssertAccessForbidden(t *testing.T) {
	private := testEntity{ID: "e1", CustomerID: "cust_1", Visibility: VisibilityPrivate}
	err := AssertAccess(private, AccessContext{CustomerID: "cust_2"}, ActionRead)
	if err == nil {
		t.Fatal("expected Forbidden error")
	}
}

func TestMigratorDryRunLeavesBothKeysIntact(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemoryStore()
	s := NewStore(backing)
	migrator := NewMigrator(s, backing)

	legacyKey := "customer_cust_abc"
	src := &fakeLegacySource{
		pairs: []LegacyPair{{Key: legacyKey, Value: []byte(`{"id":"cust_abc","email":"a@b.com"}`)}},
	}

	transform := func(_ context.Context, pair LegacyPair) (*TransformResult, error) {
		return &TransformResult{
			Service:    "customer",
			EntityType: "profile",
			ID:         "cust_abc",
			Data:       map[string]string{"email": "a@b.com"},
			Indexes: []IndexMerge{
				{Relationship: "by-email", Parent: "emailhash", Single: true},
			},
		}, nil
	}

	rec, err := migrator.Run(ctx, "mig1", "customer", "customer_", src, transform, true, true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.ProcessedCount != 1 || rec.ErrorCount != 0 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Status != MigrationCompleted {
		t.Errorf("expected completed, got %s", rec.Status)
	}

	if len(src.deleted) != 0 {
		t.Error("dry run must not delete legacy keys")
	}
	if _, ok, _ := GetEntity[map[string]string](ctx, s, "customer", "profile", "cust_abc"); ok {
		t.Error("dry run must not write the migrated entity")
	}
}

func TestMigratorLiveRunWritesAndDeletes(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemoryStore()
	s := NewStore(backing)
	migrator := NewMigrator(s, backing)

	legacyKey := "customer_cust_abc"
	src := &fakeLegacySource{
		pairs: []LegacyPair{{Key: legacyKey, Value: []byte(`{"id":"cust_abc"}`)}},
	}

	transform := func(_ context.Context, pair LegacyPair) (*TransformResult, error) {
		return &TransformResult{
			Service:    "customer",
			EntityType: "profile",
			ID:         "cust_abc",
			Data:       map[string]string{"email": "a@b.com"},
			Indexes: []IndexMerge{
				{Relationship: "by-email", Parent: "emailhash", Single: true},
			},
		}, nil
	}

	rec, err := migrator.Run(ctx, "mig2", "customer", "customer_", src, transform, false, true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.ProcessedCount != 1 || rec.Status != MigrationCompleted {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, ok, _ := GetEntity[map[string]string](ctx, s, "customer", "profile", "cust_abc"); !ok {
		t.Error("expected migrated entity to be written")
	}

	id, ok, err := s.IndexGetSingle(ctx, "customer", "by-email", "emailhash")
	if err != nil || !ok || id != "cust_abc" {
		t.Errorf("expected index entry cust_abc, got id=%q ok=%v err=%v", id, ok, err)
	}

	if len(src.deleted) != 1 || src.deleted[0] != legacyKey {
		t.Errorf("expected legacy key deleted, got %v", src.deleted)
	}
}

type fakeLegacySource struct {
	pairs   []LegacyPair
	deleted []string
}

func (f *fakeLegacySource) Scan(_ context.Context, _, _ string, _ int) ([]LegacyPair, string, bool, error) {
	return f.pairs, "", true, nil
}

func (f *fakeLegacySource) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}
