package knowledge

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   []Document
	nextID int64
}

// NewMemoryStore returns an empty store whose first document gets ID 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (m *MemoryStore) AddDocument(_ context.Context, doc Document) (int64, error) {
	doc, err := normalize(doc)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.ID = m.nextID
	m.nextID++
	m.docs = append(m.docs, doc)
	return doc.ID, nil
}

func (m *MemoryStore) Search(ctx context.Context, term string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	term = strings.ToLower(term)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Document{}
	for i := range m.docs {
		if matches(&m.docs[i], term) {
			d := m.docs[i]
			d.Keywords = slices.Clone(d.Keywords)
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}
