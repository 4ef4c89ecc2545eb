package docstore

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store for tests and local development,
// mirroring blobstore.MemoryStore's map-plus-mutex shape.
type MemoryStore struct {
	mu        sync.RWMutex
	emails    map[string]*Email
	byMessage map[string]string // message_id -> email id
	threads   map[string]*Thread
	analytics []*AnalyticsRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		emails:    make(map[string]*Email),
		byMessage: make(map[string]string),
		threads:   make(map[string]*Thread),
	}
}

func (m *MemoryStore) PutEmail(ctx context.Context, e *Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.emails[e.ID] = &cp
	m.byMessage[e.MessageID] = e.ID
	return nil
}

func (m *MemoryStore) GetEmailByMessageID(ctx context.Context, messageID string) (*Email, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byMessage[messageID]
	if !ok {
		return nil, false, nil
	}
	e, ok := m.emails[id]
	if !ok {
		return nil, false, nil
	}
	cp := *e
	return &cp, true, nil
}

func (m *MemoryStore) GetEmail(ctx context.Context, id string) (*Email, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.emails[id]
	if !ok {
		return nil, false, nil
	}
	cp := *e
	return &cp, true, nil
}

func (m *MemoryStore) DeleteEmail(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.emails[id]; ok {
		delete(m.byMessage, e.MessageID)
	}
	delete(m.emails, id)
	return nil
}

func (m *MemoryStore) SearchEmails(ctx context.Context, query string, limit int) ([]*Email, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(query)
	var out []*Email
	for _, e := range m.emails {
		if strings.Contains(strings.ToLower(e.Subject), q) || strings.Contains(strings.ToLower(e.TextContent), q) {
			cp := *e
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) PutThread(ctx context.Context, t *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.threads[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetThread(ctx context.Context, id string) (*Thread, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	th, ok := m.threads[id]
	if !ok {
		return nil, false, nil
	}
	cp := *th
	return &cp, true, nil
}

func (m *MemoryStore) FindThreadByReferences(ctx context.Context, references []string, inReplyTo string) (*Thread, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[string]struct{}, len(references)+1)
	for _, r := range references {
		want[r] = struct{}{}
	}
	if inReplyTo != "" {
		want[inReplyTo] = struct{}{}
	}
	for _, th := range m.threads {
		for _, mid := range th.MessageIDs {
			if _, ok := want[mid]; ok {
				cp := *th
				return &cp, true, nil
			}
		}
	}
	return nil, false, nil
}

func (m *MemoryStore) PutAnalytics(ctx context.Context, r *AnalyticsRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.analytics = append(m.analytics, &cp)
	return nil
}

func (m *MemoryStore) ListEmailsOlderThan(ctx context.Context, cutoffMs int64) ([]*Email, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Email
	for _, e := range m.emails {
		if e.CreatedAt < cutoffMs {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
