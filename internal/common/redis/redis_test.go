package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/kmassidik/engagement/internal/common/logger"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewFromClient(rdb, logger.Nop()), mr
}

func TestAcquireReleaseLock(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	locked, err := client.AcquireLock(ctx, "rating:run", "run-a", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if !locked {
		t.Fatal("Expected first acquire to succeed")
	}

	locked, err = client.AcquireLock(ctx, "rating:run", "run-b", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if locked {
		t.Error("Expected second acquire to fail while held")
	}

	released, err := client.ReleaseLock(ctx, "rating:run", "run-a")
	if err != nil {
		t.Fatalf("ReleaseLock() error = %v", err)
	}
	if !released {
		t.Error("Expected owner to release the lock")
	}
	if mr.Exists("lock:rating:run") {
		t.Error("Expected lock key to be deleted")
	}

	locked, _ = client.AcquireLock(ctx, "rating:run", "run-b", time.Minute)
	if !locked {
		t.Error("Expected acquire after release to succeed")
	}
}

func TestLockExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	if locked, _ := client.AcquireLock(ctx, "job", "a", time.Second); !locked {
		t.Fatal("Expected acquire to succeed")
	}
	mr.FastForward(2 * time.Second)

	if locked, _ := client.AcquireLock(ctx, "job", "b", time.Second); !locked {
		t.Error("Expected expired lock to be re-acquirable")
	}
}

func TestExpiredOwnerCannotReleaseNewLock(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	if locked, _ := client.AcquireLock(ctx, "rating:run", "run-a", time.Minute); !locked {
		t.Fatal("Expected run-a to acquire")
	}
	mr.FastForward(2 * time.Minute)

	if locked, _ := client.AcquireLock(ctx, "rating:run", "run-b", time.Minute); !locked {
		t.Fatal("Expected run-b to acquire after run-a expired")
	}

	released, err := client.ReleaseLock(ctx, "rating:run", "run-a")
	if err != nil {
		t.Fatalf("ReleaseLock() error = %v", err)
	}
	if released {
		t.Error("Expected stale owner not to release run-b's lock")
	}

	if locked, _ := client.AcquireLock(ctx, "rating:run", "run-c", time.Minute); locked {
		t.Error("Expected run-c to be refused while run-b holds the lock")
	}
	if got, _ := mr.Get("lock:rating:run"); got != "run-b" {
		t.Errorf("Expected lock owned by run-b, got %q", got)
	}
}

func TestJSONRoundTripAndMiss(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Profiles int            `json:"profiles"`
		Segments map[string]int `json:"segments"`
	}

	var got payload
	if err := client.GetJSON(ctx, "rating:summary", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Expected ErrCacheMiss, got %v", err)
	}

	want := payload{Profiles: 3, Segments: map[string]int{"Lost": 2, "Loyal": 1}}
	if err := client.SetJSON(ctx, "rating:summary", want, time.Hour); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}
	if err := client.GetJSON(ctx, "rating:summary", &got); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got.Profiles != 3 || got.Segments["Lost"] != 2 {
		t.Errorf("Unexpected payload: %+v", got)
	}
}

func TestInvalidatePrefix(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	mr.Set("rating:summary", "x")
	mr.Set("rating:top:10", "y")
	mr.Set("other", "z")

	if err := client.InvalidatePrefix(ctx, "rating:"); err != nil {
		t.Fatalf("InvalidatePrefix() error = %v", err)
	}
	if mr.Exists("rating:summary") || mr.Exists("rating:top:10") {
		t.Error("Expected rating keys to be removed")
	}
	if !mr.Exists("other") {
		t.Error("Expected unrelated key to survive")
	}
}
