package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by unit tests that don't need a
// live Redis — adapted from the teacher's control_plane/store/memory.go
// map-plus-mutex pattern, generalized from FluxForge's agent/job/state
// tables to the generic string/hash/sorted-set primitives.
type MemoryStore struct {
	mu      sync.Mutex
	strs    map[string]strVal
	hashes  map[string]map[string]string
	zsets   map[string]map[string]float64
}

type strVal struct {
	value   string
	expires time.Time // zero means no expiry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strs:   make(map[string]strVal),
		hashes: make(map[string]map[string]string),
		zsets:  make(map[string]map[string]float64),
	}
}

func (s *MemoryStore) expired(v strVal) bool {
	return !v.expires.IsZero() && time.Now().After(v.expires)
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.strs[key]
	if !ok || s.expired(v) {
		return "", false, nil
	}
	return v.value, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strs[key] = s.withTTL(value, ttl)
	return nil
}

func (s *MemoryStore) withTTL(value string, ttl time.Duration) strVal {
	if ttl <= 0 {
		return strVal{value: value}
	}
	return strVal{value: value, expires: time.Now().Add(ttl)}
}

func (s *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.strs[key]; ok && !s.expired(v) {
		return false, nil
	}
	s.strs[key] = s.withTTL(value, ttl)
	return true, nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.strs, k)
		delete(s.hashes, k)
		delete(s.zsets, k)
	}
	return nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.strs[key]
	n := int64(0)
	if ok && !s.expired(v) {
		// Best-effort parse; callers only ever use this for monotone counters.
		for _, c := range v.value {
			n = n*10 + int64(c-'0')
		}
	}
	n++
	s.strs[key] = strVal{value: itoa(n)}
	return n, nil
}

func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.strs[key]
	if !ok || v.expires.IsZero() {
		return -1, nil
	}
	return time.Until(v.expires), nil
}

func (s *MemoryStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (s *MemoryStore) HSet(ctx context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (s *MemoryStore) HDel(ctx context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	return nil
}

func (s *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) HLen(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.hashes[key])), nil
}

func (s *MemoryStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (s *MemoryStore) ZRem(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(z, m)
	}
	return nil
}

func (s *MemoryStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		return 0, false, nil
	}
	score, ok := z[member]
	return score, ok, nil
}

func (s *MemoryStore) sorted(key string) []Member {
	z := s.zsets[key]
	out := make([]Member, 0, len(z))
	for m, sc := range z {
		out = append(out, Member{Value: m, Score: sc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func (s *MemoryStore) ZRangeByScore(ctx context.Context, key string, min, max float64, offset, limit int64) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Member
	for _, m := range s.sorted(key) {
		if m.Score >= min && m.Score <= max {
			out = append(out, m)
		}
	}
	return paginate(out, offset, limit), nil
}

func (s *MemoryStore) ZRange(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sorted(key)
	return sliceRange(all, start, stop), nil
}

func (s *MemoryStore) ZRevRange(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sorted(key)
	rev := make([]Member, len(all))
	for i, m := range all {
		rev[len(all)-1-i] = m
	}
	return sliceRange(rev, start, stop), nil
}

func (s *MemoryStore) ZPopMin(ctx context.Context, key string, count int64) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sorted(key)
	if count <= 0 || count > int64(len(all)) {
		count = int64(len(all))
	}
	popped := all[:count]
	z := s.zsets[key]
	for _, m := range popped {
		delete(z, m.Value)
	}
	return popped, nil
}

func (s *MemoryStore) ZCard(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.zsets[key])), nil
}

func (s *MemoryStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	for k := range s.strs {
		if globMatch(pattern, k) {
			seen[k] = true
		}
	}
	for k := range s.hashes {
		if globMatch(pattern, k) {
			seen[k] = true
		}
	}
	for k := range s.zsets {
		if globMatch(pattern, k) {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Pipeline() Pipeline {
	return &memoryPipeline{store: s}
}

// memoryPipeline applies queued ops against MemoryStore on Exec, holding the
// store's lock for the whole batch so it observes the same atomicity the
// Redis pipeline gives callers.
type memoryPipeline struct {
	store *MemoryStore
	ops   []func()
}

func (p *memoryPipeline) ZAdd(key, member string, score float64) {
	p.ops = append(p.ops, func() {
		z, ok := p.store.zsets[key]
		if !ok {
			z = make(map[string]float64)
			p.store.zsets[key] = z
		}
		z[member] = score
	})
}

func (p *memoryPipeline) ZRem(key string, members ...string) {
	p.ops = append(p.ops, func() {
		z, ok := p.store.zsets[key]
		if !ok {
			return
		}
		for _, m := range members {
			delete(z, m)
		}
	})
}

func (p *memoryPipeline) HSet(key, field, value string) {
	p.ops = append(p.ops, func() {
		h, ok := p.store.hashes[key]
		if !ok {
			h = make(map[string]string)
			p.store.hashes[key] = h
		}
		h[field] = value
	})
}

func (p *memoryPipeline) HDel(key string, fields ...string) {
	p.ops = append(p.ops, func() {
		h, ok := p.store.hashes[key]
		if !ok {
			return
		}
		for _, f := range fields {
			delete(h, f)
		}
	})
}

func (p *memoryPipeline) Set(key, value string, ttl time.Duration) {
	p.ops = append(p.ops, func() {
		p.store.strs[key] = p.store.withTTL(value, ttl)
	})
}

func (p *memoryPipeline) Del(keys ...string) {
	p.ops = append(p.ops, func() {
		for _, k := range keys {
			delete(p.store.strs, k)
			delete(p.store.hashes, k)
			delete(p.store.zsets, k)
		}
	})
}

func (p *memoryPipeline) Exec(ctx context.Context) error {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	for _, op := range p.ops {
		op()
	}
	return nil
}

func paginate(members []Member, offset, limit int64) []Member {
	if offset < 0 {
		offset = 0
	}
	if offset >= int64(len(members)) {
		return nil
	}
	end := int64(len(members))
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return members[offset:end]
}

func sliceRange(members []Member, start, stop int64) []Member {
	n := int64(len(members))
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil
	}
	return members[start : stop+1]
}

func globMatch(pattern, s string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	if strings.HasSuffix(pattern, "*") && !strings.Contains(pattern[:len(pattern)-1], "*") {
		return strings.HasPrefix(s, pattern[:len(pattern)-1])
	}
	// Fall back to simple segment matching for patterns used elsewhere in
	// this package (e.g. "posting:*", "lock:*").
	parts := strings.Split(pattern, "*")
	idx := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		pos := strings.Index(s[idx:], part)
		if pos < 0 {
			return false
		}
		if i == 0 && pos != 0 {
			return false
		}
		idx += pos + len(part)
	}
	if !strings.HasSuffix(pattern, "*") {
		return strings.HasSuffix(s, parts[len(parts)-1])
	}
	return true
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
