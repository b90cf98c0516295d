package geoquest

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/minus-twelve/geoquest/storage"
	"github.com/minus-twelve/geoquest/types"
)

func TestCreateStore(t *testing.T) {
	t.Run("default is memory", func(t *testing.T) {
		store, err := CreateStore(types.StoreConfig{})
		if err != nil {
			t.Fatalf("CreateStore: %v", err)
		}
		defer store.Close()
		if _, ok := store.(*storage.MemoryStore); !ok {
			t.Fatalf("store = %T, want *storage.MemoryStore", store)
		}
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		var cfg types.StoreConfig
		cfg.StoreType = "redis"
		cfg.Redis.Addr = mr.Addr()
		cfg.Redis.TTL = time.Hour

		store, err := CreateStore(cfg)
		if err != nil {
			t.Fatalf("CreateStore: %v", err)
		}
		defer store.Close()

		ctx := context.Background()
		if err := store.Create(ctx, "abc", types.NewSession("abc", time.Now())); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if !mr.Exists("geoquest:session:abc") {
			t.Fatalf("keys = %v", mr.Keys())
		}
	})

	t.Run("redis unreachable", func(t *testing.T) {
		var cfg types.StoreConfig
		cfg.StoreType = "redis"
		cfg.Redis.Addr = "127.0.0.1:1"
		store, err := CreateStore(cfg)
		if err == nil {
			store.Close()
			t.Fatal("expected error for unreachable redis")
		}
		if store != nil {
			t.Fatalf("store = %#v, want nil interface", store)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		var cfg types.StoreConfig
		cfg.StoreType = "etcd"
		if _, err := CreateStore(cfg); err == nil {
			t.Fatal("expected error")
		}
	})
}
