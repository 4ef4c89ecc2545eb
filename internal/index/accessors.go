package index

import "context"

// GetDocument reads doc[type][id] directly off the Store, for read-only
// consumers (the Query Engine) that don't need an Indexer instance.
func GetDocument(ctx context.Context, store interface {
	HGet(ctx context.Context, key, field string) (string, bool, error)
}, docType, id string) (*Document, bool, error) {
	raw, ok, err := store.HGet(ctx, docKey(docType), id)
	if err != nil || !ok {
		return nil, ok, err
	}
	d, err := decodeDocument(raw)
	return d, true, err
}

// GetMeta reads meta[type][id].
func GetMeta(ctx context.Context, store interface {
	HGet(ctx context.Context, key, field string) (string, bool, error)
}, docType, id string) (*Meta, bool, error) {
	raw, ok, err := store.HGet(ctx, metaKey(docType), id)
	if err != nil || !ok {
		return nil, ok, err
	}
	m, err := decodeMeta(raw)
	return m, true, err
}

// PostingKey and Member expose the key-building helpers to other packages
// (the Query Engine and Optimizer) that must address the same KV layout
// without duplicating the naming convention.
func PostingKey(term string) string   { return postingKey(term) }
func DocKey(docType string) string    { return docKey(docType) }
func MetaKey(docType string) string   { return metaKey(docType) }
func Member(docType, id string) string { return member(docType, id) }

// SplitMember parses a posting-list member "type:id" back into its parts.
// A member without a colon is returned as (member, "").
func SplitMember(m string) (docType, id string) {
	for i := 0; i < len(m); i++ {
		if m[i] == ':' {
			return m[:i], m[i+1:]
		}
	}
	return m, ""
}
