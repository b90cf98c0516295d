package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/minus-twelve/geoquest/types"
)

type sessionStore interface {
	Create(ctx context.Context, id string, session types.Session) error
	Get(ctx context.Context, id string) (types.Session, error)
	Put(ctx context.Context, id string, session types.Session) error
	Delete(ctx context.Context, id string) error
}

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, "", ttl)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func backends(t *testing.T) map[string]sessionStore {
	t.Helper()
	redisStore, _ := newTestRedisStore(t, 0)
	return map[string]sessionStore{
		"memory": NewMemoryStore(0),
		"redis":  redisStore,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("Get missing err = %v, want ErrSessionNotFound", err)
			}

			sess := types.NewSession("s1", start)
			if err := store.Create(ctx, "s1", sess); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if err := store.Create(ctx, "s1", sess); !errors.Is(err, ErrDuplicateSession) {
				t.Fatalf("duplicate Create err = %v, want ErrDuplicateSession", err)
			}

			got, err := store.Get(ctx, "s1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.CurrentRiddle != 1 || !got.StartTime.Equal(start) || len(got.CompletedRiddles) != 0 {
				t.Fatalf("Get = %+v", got)
			}

			got.Attempts[1] = 2
			got.CompletedRiddles = append(got.CompletedRiddles, 1)
			got.CurrentRiddle = 2
			if err := store.Put(ctx, "s1", got); err != nil {
				t.Fatalf("Put: %v", err)
			}

			updated, err := store.Get(ctx, "s1")
			if err != nil {
				t.Fatalf("Get after Put: %v", err)
			}
			if updated.CurrentRiddle != 2 || updated.Attempts[1] != 2 || len(updated.CompletedRiddles) != 1 {
				t.Fatalf("Get after Put = %+v", updated)
			}

			if err := store.Put(ctx, "ghost", got); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("Put unknown err = %v, want ErrSessionNotFound", err)
			}

			if err := store.Delete(ctx, "s1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("Get after Delete err = %v", err)
			}
		})
	}
}

func TestMemoryStoreDoesNotAlias(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	sess := types.NewSession("s1", time.Now())
	if err := store.Create(ctx, "s1", sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess.Attempts[1] = 3

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Attempts[1] != 0 {
		t.Fatalf("stored session changed through caller map: %v", got.Attempts)
	}

	got.Attempts[1] = 1
	again, _ := store.Get(ctx, "s1")
	if again.Attempts[1] != 0 {
		t.Fatalf("stored session changed through returned map: %v", again.Attempts)
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		sess := types.NewSession(id, base.Add(time.Duration(i)*time.Minute))
		if err := store.Create(ctx, id, sess); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	if store.Len() != 2 {
		t.Fatalf("Len = %d, want 2", store.Len())
	}
	if _, err := store.Get(ctx, "a"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("oldest session should have been evicted, err = %v", err)
	}
	if _, err := store.Get(ctx, "c"); err != nil {
		t.Fatalf("newest session missing: %v", err)
	}
}

func TestMemoryStoreCleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	stale := types.NewSession("stale", time.Now().Add(-2*time.Hour))
	fresh := types.NewSession("fresh", time.Now())
	_ = store.Create(ctx, "stale", stale)
	_ = store.Create(ctx, "fresh", fresh)

	if err := store.Cleanup(ctx, time.Hour); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := store.Get(ctx, "stale"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("stale session survived cleanup")
	}
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh session removed: %v", err)
	}
}

func TestRedisStoreTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Minute)

	if err := store.Create(ctx, "s1", types.NewSession("s1", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ttl := mr.TTL(defaultRedisPrefix + "session:s1"); ttl != time.Minute {
		t.Fatalf("TTL = %v, want 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get after expiry err = %v, want ErrSessionNotFound", err)
	}
}

func TestRedisStoreCorruptPayload(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, 0)

	if err := mr.Set(defaultRedisPrefix+"session:bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Get(ctx, "bad"); err == nil || errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get corrupt err = %v, want decode error", err)
	}
}
