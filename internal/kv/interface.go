// Package kv is the KV Substrate (component A): the only durable coordination
// medium for the scheduler and search index. It exposes strings, hashes,
// sorted sets, atomic SET-if-absent-with-expiry, pattern scan, and pipelined
// batches — the primitive set named in spec §6.
package kv

import (
	"context"
	"time"
)

// Member is one entry of a sorted-set range result.
type Member struct {
	Value string
	Score float64
}

// Store is the KV Substrate contract. Every component in this module
// (Scheduler, Lock Manager, Indexer, Query Engine, Optimizer, Alert Monitor)
// talks to durable state exclusively through this interface.
type Store interface {
	// Strings
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Hashes
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key, field, value string) error
	HDel(ctx context.Context, key string, fields ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HLen(ctx context.Context, key string) (int64, error)

	// Sorted sets
	ZAdd(ctx context.Context, key, member string, score float64) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	// ZRangeByScore returns members with min <= score <= max, ascending.
	// A limit <= 0 means unbounded.
	ZRangeByScore(ctx context.Context, key string, min, max float64, offset, limit int64) ([]Member, error)
	// ZRange returns members by rank (ascending), inclusive [start,stop]; -1 means "to the end".
	ZRange(ctx context.Context, key string, start, stop int64) ([]Member, error)
	// ZRevRange returns members by descending rank.
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]Member, error)
	ZPopMin(ctx context.Context, key string, count int64) ([]Member, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// Scan returns all keys matching a glob-style pattern. Implementations
	// should use an incremental cursor internally; callers must not assume
	// ordering or a point-in-time snapshot.
	Scan(ctx context.Context, pattern string) ([]string, error)

	// Pipeline returns a batch of writes that execute atomically as a single
	// round-trip. Used for partition transitions and index deletion, where
	// several keys must change together (spec §3, §4.1, §4.6).
	Pipeline() Pipeline
}

// Pipeline batches writes for one atomic round-trip to the KV substrate.
// Calls queue the operation; Exec sends them all at once.
type Pipeline interface {
	ZAdd(key, member string, score float64)
	ZRem(key string, members ...string)
	HSet(key, field, value string)
	HDel(key string, fields ...string)
	Set(key, value string, ttl time.Duration)
	Del(keys ...string)
	Exec(ctx context.Context) error
}
