// Package rostercache keeps the last fetched employee roster per signed-in
// identity so paging and searching do not refetch the whole list. Callers
// must Invalidate after every mutation, and must read Version before starting
// the fetch they later Set.
package rostercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phillip-england/staffsuite/internal/employee"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]employee.Employee, bool, error)
	// Version counts the Invalidate calls seen for key.
	Version(ctx context.Context, key string) (uint64, error)
	// Set stores list only while key is still at version. A fetch that
	// raced a mutation is dropped instead of cached.
	Set(ctx context.Context, key string, version uint64, list []employee.Employee) error
	Invalidate(ctx context.Context, key string) error
}

type entry struct {
	list      []employee.Employee
	expiresAt time.Time
}

type Memory struct {
	mu       sync.Mutex
	ttl      time.Duration
	entries  map[string]entry
	versions map[string]uint64
	nowFunc  func() time.Time
}

// NewMemory returns a cache holding entries for ttl. A ttl of zero disables
// caching: Get always misses.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:      ttl,
		entries:  make(map[string]entry),
		versions: make(map[string]uint64),
		nowFunc:  time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]employee.Employee, bool, error) {
	if m.ttl <= 0 {
		return nil, false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.nowFunc().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]employee.Employee(nil), e.list...), true, nil
}

func (m *Memory) Version(_ context.Context, key string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[key], nil
}

func (m *Memory) Set(_ context.Context, key string, version uint64, list []employee.Employee) error {
	if m.ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[key] != version {
		return nil
	}
	m.entries[key] = entry{
		list:      append([]employee.Employee(nil), list...),
		expiresAt: m.nowFunc().Add(m.ttl),
	}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[key]++
	delete(m.entries, key)
	return nil
}

const (
	redisKeyPrefix     = "staffsuite:roster:"
	redisVersionPrefix = "staffsuite:roster-version:"
)

type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) (*Redis, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Redis{rdb: rdb, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]employee.Employee, bool, error) {
	if r.ttl <= 0 {
		return nil, false, nil
	}
	b, err := r.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read roster cache: %w", err)
	}
	var list []employee.Employee
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, false, fmt.Errorf("decode roster cache: %w", err)
	}
	return list, true, nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readVersion(ctx context.Context, c stringGetter, key string) (uint64, error) {
	v, err := c.Get(ctx, redisVersionPrefix+key).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read roster cache version: %w", err)
	}
	return v, nil
}

func (r *Redis) Version(ctx context.Context, key string) (uint64, error) {
	return readVersion(ctx, r.rdb, key)
}

// Set watches the version key so an Invalidate landing between the check
// and the write aborts the transaction.
func (r *Redis) Set(ctx context.Context, key string, version uint64, list []employee.Employee) error {
	if r.ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode roster cache: %w", err)
	}
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKeyPrefix+key, b, r.ttl)
			return nil
		})
		return err
	}, redisVersionPrefix+key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("write roster cache: %w", err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, key string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, redisVersionPrefix+key)
		pipe.Del(ctx, redisKeyPrefix+key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate roster cache: %w", err)
	}
	return nil
}
