package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is a map-backed store for tests and single-node development runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]map[string]json.RawMessage),
	}
}

func (m *Memory) Put(ctx context.Context, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s/%s: %w", collection, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.data[collection]
	if !ok {
		col = make(map[string]json.RawMessage)
		m.data[collection] = col
	}
	col[id] = data

	return nil
}

func (m *Memory) Get(ctx context.Context, collection, id string, out any) error {
	m.mu.RLock()
	data, ok := m.data[collection][id]
	m.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data[collection], id)
	return nil
}

func (m *Memory) Query(ctx context.Context, collection, field, value string, out any) error {
	m.mu.RLock()
	var docs []json.RawMessage
	for _, data := range m.data[collection] {
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			continue
		}
		if fieldString(fields[field]) == value {
			docs = append(docs, data)
		}
	}
	m.mu.RUnlock()

	return unmarshalDocs(docs, out)
}

func (m *Memory) All(ctx context.Context, collection string, out any) error {
	m.mu.RLock()
	var docs []json.RawMessage
	for _, data := range m.data[collection] {
		docs = append(docs, data)
	}
	m.mu.RUnlock()

	return unmarshalDocs(docs, out)
}

func (m *Memory) Close() error {
	return nil
}

func fieldString(v any) string {
	s, _ := v.(string)
	return s
}
