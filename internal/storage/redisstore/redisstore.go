// Package redisstore implements the Redis-backed storage adapter for
// consumer-mode deployments: flag and segment reads become Redis reads
// with no in-process cache, impression counters use HINCRBY, and
// impression/event queues use RPUSH. This mode is meant for deployments
// where an external synchronizer process populates Redis and many SDK
// instances share it.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/splitkit/splitkit-go/internal/engine"
	"github.com/splitkit/splitkit-go/internal/storage"
)

// ErrRedisNotReady is returned by Connect when the client could not reach
// the server within the configured retry budget.
var ErrRedisNotReady = errors.New("redisstore: redis not ready")

// Config configures the Redis connection and key prefix.
type Config struct {
	ConnectionURL  string
	Prefix         string
	RetryAttempts  int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.Prefix == "" {
		c.Prefix = "SPLITIO"
	}
	return c
}

// Connect dials Redis, retrying up to cfg.RetryAttempts times with
// cfg.RetryInterval between attempts.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse connection url: %w", err)
	}

	for attempt := 0; attempt < cfg.RetryAttempts; attempt++ {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		default:
			time.Sleep(cfg.RetryInterval)
		}
	}
	return nil, ErrRedisNotReady
}

// Store is the Redis-backed Storage implementation. Unlike Memory, it
// keeps no local cache: every read is a round trip — many SDK instances
// share one Redis, and an external synchronizer keeps it current.
type Store struct {
	client *redis.Client
	prefix string
}

// New wraps an existing Redis client for use as SDK storage.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "SPLITIO"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) flagKey(name string) string    { return fmt.Sprintf("%s.split.%s", s.prefix, name) }
func (s *Store) segmentKey(name string) string { return fmt.Sprintf("%s.segment.%s", s.prefix, name) }
func (s *Store) tillKey() string               { return fmt.Sprintf("%s.splits.till", s.prefix) }

// Get implements engine.FlagSource by fetching and decoding a single flag
// key. Absence and decode errors are both treated as "not found" — the
// evaluator degrades to control in either case.
func (s *Store) Get(name string) (*engine.Flag, bool) {
	ctx := context.Background()
	raw, err := s.client.Get(ctx, s.flagKey(name)).Bytes()
	if err != nil {
		return nil, false
	}
	var flag engine.Flag
	if err := json.Unmarshal(raw, &flag); err != nil {
		return nil, false
	}
	return &flag, true
}

// Contains implements engine.SegmentView via SISMEMBER.
func (s *Store) Contains(name, key string) bool {
	ctx := context.Background()
	ok, err := s.client.SIsMember(ctx, s.segmentKey(name), key).Result()
	if err != nil {
		return false
	}
	return ok
}

// RecordImpressionCount increments the per-(feature,timeBucket) suppressed
// impression counter used by OPTIMIZED mode, via HINCRBY.
func (s *Store) RecordImpressionCount(ctx context.Context, feature string, timeBucket int64, count int64) error {
	key := fmt.Sprintf("%s.impressions.count", s.prefix)
	field := fmt.Sprintf("%s::%d", feature, timeBucket)
	return s.client.HIncrBy(ctx, key, field, count).Err()
}

// PushImpression appends a full impression payload via RPUSH, for DEBUG
// mode or when an external synchronizer drains the queue itself.
func (s *Store) PushImpression(ctx context.Context, payload []byte) error {
	key := fmt.Sprintf("%s.impressions", s.prefix)
	return s.client.RPush(ctx, key, payload).Err()
}

// PushEvent appends a serialized event via RPUSH.
func (s *Store) PushEvent(ctx context.Context, payload []byte) error {
	key := fmt.Sprintf("%s.events", s.prefix)
	return s.client.RPush(ctx, key, payload).Err()
}

// ChangeNumber reads the shared till marker maintained by the external
// synchronizer.
func (s *Store) ChangeNumber() int64 {
	ctx := context.Background()
	v, err := s.client.Get(ctx, s.tillKey()).Int64()
	if err != nil {
		return -1
	}
	return v
}

// ApplyFlags and ApplySegment are no-ops: consumer mode never runs a
// poller of its own, an external synchronizer process is the only writer
// of the shared cache.
func (s *Store) ApplyFlags(storage.FlagUpdate) error    { return nil }
func (s *Store) ApplySegment(storage.SegmentUpdate) error { return nil }

// SegmentChangeNumber, FlagNames, FlagsInSet, AllSets, and
// SegmentsReferencedBy have no cheap Redis equivalent without the key
// schema an external synchronizer defines for its own bookkeeping; a
// consumer-mode Manager exposes no split listing, matching the reference
// SDK's own consumer-mode manager limitations.
func (s *Store) SegmentChangeNumber(string) (int64, bool)     { return 0, false }
func (s *Store) FlagNames() []string                          { return nil }
func (s *Store) FlagsInSet(string) []string                   { return nil }
func (s *Store) AllSets() []string                             { return nil }
func (s *Store) SegmentsReferencedBy(string) []string          { return nil }
