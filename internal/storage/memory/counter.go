package memory

import (
	"context"
	"sync"
	"time"

	"github.com/yndnr/sandstore-go/internal/core/service"
	"github.com/yndnr/sandstore-go/pkg/cmap"
)

var _ service.CounterStore = (*CounterStore)(nil)

const (
	counterShards = 32
	counterSeed   = 0x7261
)

type counter struct {
	n        int64
	expireAt time.Time
}

type counterShard struct {
	mu    sync.Mutex
	items map[string]*counter
	// incrs since the last prune
	ops int
}

// CounterStore holds expiring counters in process memory.
//
// Keys are routed to shards by murmur3 hash. Expired counters are dropped
// lazily on access and by a periodic prune of the shard being written.
type CounterStore struct {
	shards []*counterShard
	mask   uint64
	now    func() time.Time
}

// CounterOption configures the CounterStore.
type CounterOption func(*CounterStore)

// WithCounterClock sets the time source.
func WithCounterClock(now func() time.Time) CounterOption {
	return func(s *CounterStore) {
		s.now = now
	}
}

// NewCounterStore creates an empty counter store.
func NewCounterStore(opts ...CounterOption) *CounterStore {
	s := &CounterStore{
		shards: make([]*counterShard, counterShards),
		mask:   counterShards - 1,
		now:    time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &counterShard{items: make(map[string]*counter)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Incr increments key and returns the new count. A counter created by the
// call expires after ttl.
func (s *CounterStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()
	sh := s.shards[cmap.ShardIndex(key, counterSeed, s.mask)]

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.ops++
	if sh.ops >= 1024 {
		sh.prune(now)
	}

	c, ok := sh.items[key]
	if !ok || !now.Before(c.expireAt) {
		c = &counter{expireAt: now.Add(ttl)}
		sh.items[key] = c
	}
	c.n++
	return c.n, nil
}

// Len returns the number of live counters.
func (s *CounterStore) Len() int {
	now := s.now()
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, c := range sh.items {
			if now.Before(c.expireAt) {
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

func (sh *counterShard) prune(now time.Time) {
	for k, c := range sh.items {
		if !now.Before(c.expireAt) {
			delete(sh.items, k)
		}
	}
	sh.ops = 0
}
