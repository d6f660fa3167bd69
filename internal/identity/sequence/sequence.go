// Package sequence allocates per-type, per-year identity sequence numbers.
// Every allocator hands out each number at most once, so concurrent
// creations never compute the same key. Numbers may be skipped when an
// insert later fails.
package sequence

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	txcontext "uniid/pkg/platform/tx"
)

type counterKey struct {
	prefix string
	year   int
}

// InMemory keeps counters in process memory.
type InMemory struct {
	mu       sync.Mutex
	counters map[counterKey]int64
}

func NewInMemory() *InMemory {
	return &InMemory{counters: make(map[counterKey]int64)}
}

func (s *InMemory) Next(_ context.Context, prefix string, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := counterKey{prefix: prefix, year: year}
	s.counters[k]++
	return s.counters[k], nil
}

// Postgres keeps counters in the identity_sequences table. The upsert takes
// a row lock, so concurrent callers serialize on the counter row.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Next(ctx context.Context, prefix string, year int) (int64, error) {
	var next int64
	err := txcontext.Or(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO identity_sequences (prefix, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, year) DO UPDATE
			SET last_value = identity_sequences.last_value + 1
		RETURNING last_value`, prefix, year,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("allocate sequence %s/%d: %w", prefix, year, err)
	}
	return next, nil
}

// Redis keeps counters as Redis integers incremented with INCR.
type Redis struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, keyPrefix: "uniid:seq:"}
}

// Key is the Redis key backing the counter for prefix and year.
func (s *Redis) Key(prefix string, year int) string {
	return fmt.Sprintf("%s%s:%d", s.keyPrefix, prefix, year)
}

func (s *Redis) Next(ctx context.Context, prefix string, year int) (int64, error) {
	next, err := s.client.Incr(ctx, s.Key(prefix, year)).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate sequence %s/%d: %w", prefix, year, err)
	}
	return next, nil
}
