package kv

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store against a real Redis (or Redis-protocol
// compatible) server. It is the production KV Substrate adapter, carried
// over from the teacher's control_plane/store/redis.go and generalized from
// FluxForge's agent/job/state schema to the generic string/hash/sorted-set
// primitives the task queue and search index need.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr and verifies connectivity before returning.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an already-constructed client without
// pinging it.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.TTL(ctx, key).Result()
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

func (s *RedisStore) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return s.client.HDel(ctx, key, fields...).Err()
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

func (s *RedisStore) HLen(ctx context.Context, key string) (int64, error) {
	return s.client.HLen(ctx, key).Result()
}

func (s *RedisStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	return s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisStore) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.ZRem(ctx, key, args...).Err()
}

func (s *RedisStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max float64, offset, limit int64) ([]Member, error) {
	opt := &redis.ZRangeBy{
		Min:    formatScore(min),
		Max:    formatScore(max),
		Offset: offset,
		Count:  limit,
	}
	zs, err := s.client.ZRangeByScoreWithScores(ctx, key, opt).Result()
	if err != nil {
		return nil, err
	}
	return toMembers(zs), nil
}

func (s *RedisStore) ZRange(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	zs, err := s.client.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	return toMembers(zs), nil
}

func (s *RedisStore) ZRevRange(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	zs, err := s.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	return toMembers(zs), nil
}

func (s *RedisStore) ZPopMin(ctx context.Context, key string, count int64) ([]Member, error) {
	zs, err := s.client.ZPopMin(ctx, key, count).Result()
	if err != nil {
		return nil, err
	}
	return toMembers(zs), nil
}

func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	return s.client.ZCard(ctx, key).Result()
}

func (s *RedisStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *RedisStore) Pipeline() Pipeline {
	return &redisPipeline{pipe: s.client.TxPipeline()}
}

func toMembers(zs []redis.Z) []Member {
	out := make([]Member, len(zs))
	for i, z := range zs {
		out[i] = Member{Value: z.Member.(string), Score: z.Score}
	}
	return out
}

func formatScore(f float64) string {
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsInf(f, 1) {
		return "+inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// redisPipeline batches ZAdd/ZRem/HSet/HDel/Set/Del into one round-trip
// wrapped in MULTI/EXEC (client.TxPipeline()), so each batch applies as a
// unit. Separate batches (e.g. promote, then pop) are not atomic together.
type redisPipeline struct {
	pipe redis.Pipeliner
}

func (p *redisPipeline) ZAdd(key, member string, score float64) {
	p.pipe.ZAdd(context.Background(), key, redis.Z{Score: score, Member: member})
}

func (p *redisPipeline) ZRem(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	p.pipe.ZRem(context.Background(), key, args...)
}

func (p *redisPipeline) HSet(key, field, value string) {
	p.pipe.HSet(context.Background(), key, field, value)
}

func (p *redisPipeline) HDel(key string, fields ...string) {
	if len(fields) == 0 {
		return
	}
	p.pipe.HDel(context.Background(), key, fields...)
}

func (p *redisPipeline) Set(key, value string, ttl time.Duration) {
	p.pipe.Set(context.Background(), key, value, ttl)
}

func (p *redisPipeline) Del(keys ...string) {
	if len(keys) == 0 {
		return
	}
	p.pipe.Del(context.Background(), keys...)
}

func (p *redisPipeline) Exec(ctx context.Context) error {
	_, err := p.pipe.Exec(ctx)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
