// Package blobstore declares the Blob Store external-collaborator interface
// (spec §6) and an in-memory adapter for tests/dev.
package blobstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Object is a stored blob plus its metadata.
type Object struct {
	Key              string
	Body             []byte
	HTTPMetadata     map[string]string
	CustomMetadata   map[string]string
	UploadedAt       time.Time
}

// ListResult is a page of List(prefix).
type ListResult struct {
	Objects []ObjectInfo
	Cursor  string
}

// ObjectInfo is a List entry (no body).
type ObjectInfo struct {
	Key            string
	Size           int
	CustomMetadata map[string]string
}

// Store is the capability interface spec §6 names: Put/Get/Head/Delete/List.
// Attachment keys follow "attachments/{uuid}/{sanitized_filename}".
type Store interface {
	Put(ctx context.Context, key string, body []byte, httpMeta, customMeta map[string]string) error
	Get(ctx context.Context, key string) (*Object, bool, error)
	Head(ctx context.Context, key string) (*ObjectInfo, bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix, cursor string, limit int) (ListResult, error)
}

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*Object)}
}

func (m *MemoryStore) Put(ctx context.Context, key string, body []byte, httpMeta, customMeta map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	m.objects[key] = &Object{Key: key, Body: cp, HTTPMetadata: httpMeta, CustomMetadata: customMeta, UploadedAt: time.Now()}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*Object, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false, nil
	}
	cp := *obj
	body := make([]byte, len(obj.Body))
	copy(body, obj.Body)
	cp.Body = body
	return &cp, true, nil
}

func (m *MemoryStore) Head(ctx context.Context, key string) (*ObjectInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false, nil
	}
	return &ObjectInfo{Key: obj.Key, Size: len(obj.Body), CustomMetadata: obj.CustomMetadata}, true, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix, cursor string, limit int) (ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if cursor != "" {
		for i, k := range keys {
			if k > cursor {
				start = i
				break
			}
		}
	}
	if limit <= 0 || limit > len(keys)-start {
		limit = len(keys) - start
	}
	if start > len(keys) {
		start = len(keys)
	}

	end := start + limit
	var out []ObjectInfo
	for _, k := range keys[start:end] {
		obj := m.objects[k]
		out = append(out, ObjectInfo{Key: obj.Key, Size: len(obj.Body), CustomMetadata: obj.CustomMetadata})
	}
	var next string
	if end < len(keys) {
		next = keys[end-1]
	}
	return ListResult{Objects: out, Cursor: next}, nil
}

// AttachmentKey builds the normative "attachments/{uuid}/{sanitized_filename}" key.
func AttachmentKey(uuid, sanitizedFilename string) string {
	return fmt.Sprintf("attachments/%s/%s", uuid, sanitizedFilename)
}
