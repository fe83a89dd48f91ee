package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newTestStorage(t *testing.T) (*Storage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	storage, err := New(Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("failed to create redis storage: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })

	return storage, mr
}

func TestStorage_ReserveUpToLimit(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		counter, err := storage.Reserve(ctx, "quota:ip:1.2.3.4", 3, 0)
		if err != nil {
			t.Fatalf("unexpected error at attempt %d: %v", i, err)
		}
		if !counter.Reserved || counter.Value != int64(i) {
			t.Fatalf("unexpected counter at attempt %d: %+v", i, counter)
		}
	}

	counter, err := storage.Reserve(ctx, "quota:ip:1.2.3.4", 3, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counter.Reserved || counter.Value != 3 {
		t.Fatalf("expected denial at limit, got %+v", counter)
	}
}

func TestStorage_ReserveSetsTTLOnlyOnce(t *testing.T) {
	storage, mr := newTestStorage(t)
	ctx := context.Background()

	if _, err := storage.Reserve(ctx, "k", 5, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mr.FastForward(30 * time.Minute)

	counter, err := storage.Reserve(ctx, "k", 5, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counter.TTL > 30*time.Minute {
		t.Fatalf("expected ttl not to be refreshed, got %v", counter.TTL)
	}

	mr.FastForward(31 * time.Minute)
	if mr.Exists("k") {
		t.Fatalf("expected key to expire after the window")
	}

	counter, err = storage.Reserve(ctx, "k", 5, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counter.Value != 1 {
		t.Fatalf("expected a fresh counter after expiry, got %d", counter.Value)
	}
}

func TestStorage_ReserveWithoutTTLNeverExpires(t *testing.T) {
	storage, mr := newTestStorage(t)

	counter, err := storage.Reserve(context.Background(), "k", 5, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counter.TTL != 0 {
		t.Fatalf("expected no ttl, got %v", counter.TTL)
	}
	if ttl := mr.TTL("k"); ttl != 0 {
		t.Fatalf("expected key without expiration, got %v", ttl)
	}
}

func TestStorage_ReleaseNeverGoesNegative(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()

	if _, err := storage.Reserve(ctx, "k", 5, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	counter, err := storage.Release(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counter.Value != 0 {
		t.Fatalf("expected 0 after release, got %d", counter.Value)
	}

	counter, err = storage.Release(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counter.Value != 0 {
		t.Fatalf("expected release on zero counter to be a no-op, got %d", counter.Value)
	}

	counter, err = storage.Release(ctx, "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counter.Value != 0 {
		t.Fatalf("expected 0 for missing key, got %d", counter.Value)
	}
}

func TestStorage_CountMissingAndExisting(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()

	counter, err := storage.Count(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counter.Value != 0 {
		t.Fatalf("expected 0 for missing key, got %d", counter.Value)
	}

	if _, err := storage.Reserve(ctx, "k", 5, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	counter, err = storage.Count(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counter.Value != 1 || counter.TTL <= 0 {
		t.Fatalf("unexpected counter %+v", counter)
	}
}

func TestStorage_ConcurrentReservesAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)

	// Two storages simulate two gateway replicas sharing one Redis.
	a := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	b := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	var reserved atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		s := a
		if i%2 == 1 {
			s = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			counter, err := s.Reserve(context.Background(), "shared", 5, 0)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if counter.Reserved {
				reserved.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := reserved.Load(); got != 5 {
		t.Fatalf("expected exactly 5 reservations, got %d", got)
	}
}

func TestNew_RequiresAddress(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
