package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func testStores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  newTestRedisStore(t),
	}
}

func TestStoreGetPutDelete(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
			}

			if err := s.Put(ctx, "k1", []byte("v1"), PutOptions{}); err != nil {
				t.Fatalf("put: %v", err)
			}

			got, ok, err := s.Get(ctx, "k1")
			if err != nil || !ok {
				t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
			}
			if string(got) != "v1" {
				t.Errorf("got %q want %q", got, "v1")
			}

			if err := s.Delete(ctx, "k1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok, _ := s.Get(ctx, "k1"); ok {
				t.Error("expected miss after delete")
			}
		})
	}
}

func TestStoreTTLExpiry(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.Put(ctx, "ttl-key", []byte("v"), PutOptions{TTL: 50 * time.Millisecond}); err != nil {
				t.Fatalf("put: %v", err)
			}

			if _, ok, _ := s.Get(ctx, "ttl-key"); !ok {
				t.Fatal("expected hit immediately after put")
			}

			time.Sleep(150 * time.Millisecond)

			if _, ok, _ := s.Get(ctx, "ttl-key"); ok {
				t.Error("expected miss after TTL elapsed")
			}
		})
	}
}

func TestStoreListPrefix(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			keys := []string{"customer:profile:a", "customer:profile:b", "idx:customer:by-email:x"}
			for _, k := range keys {
				if err := s.Put(ctx, k, []byte("v"), PutOptions{}); err != nil {
					t.Fatalf("put %q: %v", k, err)
				}
			}

			res, err := s.List(ctx, "customer:profile:", "", 10)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(res.Keys) != 2 {
				t.Fatalf("expected 2 keys, got %d: %v", len(res.Keys), res.Keys)
			}
			if !res.Complete {
				t.Error("expected Complete=true for a single-page scan")
			}
		})
	}
}

func TestGetPutJSON(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			type payload struct {
				Name string `json:"name"`
			}

			if err := PutJSON(ctx, s, "json-key", payload{Name: "alice"}, PutOptions{}); err != nil {
				t.Fatalf("putJSON: %v", err)
			}

			var got payload
			ok, err := GetJSON(ctx, s, "json-key", &got)
			if err != nil || !ok {
				t.Fatalf("getJSON: ok=%v err=%v", ok, err)
			}
			if got.Name != "alice" {
				t.Errorf("got %q want %q", got.Name, "alice")
			}
		})
	}
}
