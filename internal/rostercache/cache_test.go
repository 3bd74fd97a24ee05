package rostercache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phillip-england/staffsuite/internal/employee"
)

func TestMemoryReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	if _, ok, _ := c.Get(ctx, "u1"); ok {
		t.Fatalf("expected initial miss")
	}
	_ = c.Set(ctx, "u1", 0, []employee.Employee{{ID: "1"}})
	list, ok, err := c.Get(ctx, "u1")
	if err != nil || !ok || len(list) != 1 {
		t.Fatalf("expected hit, got ok=%v list=%v err=%v", ok, list, err)
	}
	if _, ok, _ := c.Get(ctx, "u2"); ok {
		t.Fatalf("expected keys to be isolated per identity")
	}

	_ = c.Invalidate(ctx, "u1")
	if _, ok, _ := c.Get(ctx, "u1"); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestMemoryDropsListFetchedBeforeInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	before, _ := c.Version(ctx, "u1")
	_ = c.Invalidate(ctx, "u1")
	_ = c.Set(ctx, "u1", before, []employee.Employee{{ID: "1"}, {ID: "2"}})
	if _, ok, _ := c.Get(ctx, "u1"); ok {
		t.Fatalf("expected stale list to be dropped")
	}

	after, _ := c.Version(ctx, "u1")
	if after != before+1 {
		t.Fatalf("expected invalidate to bump the version, got %d -> %d", before, after)
	}
	_ = c.Set(ctx, "u1", after, []employee.Employee{{ID: "1"}})
	list, ok, _ := c.Get(ctx, "u1")
	if !ok || len(list) != 1 {
		t.Fatalf("expected current list to be cached, got ok=%v list=%v", ok, list)
	}
}

func TestMemoryExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.nowFunc = func() time.Time { return now }

	_ = c.Set(ctx, "u1", 0, []employee.Employee{{ID: "1"}})
	now = now.Add(time.Second)
	if _, ok, _ := c.Get(ctx, "u1"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestMemoryZeroTTLDisables(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)
	_ = c.Set(ctx, "u1", 0, []employee.Employee{{ID: "1"}})
	if _, ok, _ := c.Get(ctx, "u1"); ok {
		t.Fatalf("expected zero ttl to disable caching")
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	_ = c.Set(ctx, "u1", 0, []employee.Employee{{ID: "1", FullName: "Ana"}})
	list, _, _ := c.Get(ctx, "u1")
	list[0].FullName = "changed"
	again, _, _ := c.Get(ctx, "u1")
	if again[0].FullName != "Ana" {
		t.Fatalf("expected cached roster to be isolated from callers")
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	c, err := NewRedis(rdb, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	version, err := c.Version(ctx, "test-user")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if err := c.Set(ctx, "test-user", version, []employee.Employee{{ID: "9", FullName: "Ana"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	list, ok, err := c.Get(ctx, "test-user")
	if err != nil || !ok || list[0].ID != "9" {
		t.Fatalf("unexpected get %v %v %v", list, ok, err)
	}
	if err := c.Invalidate(ctx, "test-user"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "test-user"); ok {
		t.Fatalf("expected miss after invalidate")
	}
	if err := c.Set(ctx, "test-user", version, []employee.Employee{{ID: "9"}}); err != nil {
		t.Fatalf("stale set: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "test-user"); ok {
		t.Fatalf("expected a list fetched before invalidate to be dropped")
	}
}
