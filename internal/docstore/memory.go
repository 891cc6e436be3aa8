package docstore

import (
	"context"
	"sync"
)

// MemoryStore in-process Store for tests and local development
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (m *MemoryStore) Set(ctx context.Context, path string, doc Document) error {
	parent, id, err := splitPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[parent+"/"+id] = copyDocument(doc)
	return nil
}

func (m *MemoryStore) Merge(ctx context.Context, path string, doc Document) error {
	parent, id, err := splitPath(path)
	if err != nil {
		return err
	}
	key := parent + "/" + id

	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.docs[key]
	if !ok {
		existing = make(Document, len(doc))
	}
	for k, v := range copyDocument(doc) {
		existing[k] = v
	}
	m.docs[key] = existing
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, path string) (*Snapshot, error) {
	parent, id, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	key := parent + "/" + id

	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &Snapshot{ID: id, Path: key, Data: copyDocument(doc)}, nil
}

func (m *MemoryStore) List(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	collection, err := validCollection(collection)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	var snaps []Snapshot
	for key, doc := range m.docs {
		parent, id, _ := splitPath(key)
		if parent == collection {
			snaps = append(snaps, Snapshot{ID: id, Path: key, Data: copyDocument(doc)})
		}
	}
	m.mu.RUnlock()

	return applyQuery(snaps, q), nil
}

func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	parent, id, err := splitPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.docs, parent+"/"+id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// Len number of stored documents
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func copyDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copyDocument(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	}
	return v
}
