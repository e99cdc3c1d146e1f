package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemoryStore keeps objects in process memory. It backs local development
// (AVATAR_STORAGE=memory) and tests.
type MemoryStore struct {
	mu      sync.Mutex
	baseURL string
	objects map[string]memoryObject
}

type memoryObject struct {
	contentType string
	data        []byte
}

func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://avatars"
	}
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]memoryObject),
	}
}

func (m *MemoryStore) Put(ctx context.Context, objectName, contentType string, body io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", fmt.Errorf("upload copy: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectName] = memoryObject{contentType: contentType, data: buf.Bytes()}
	return m.baseURL + "/" + objectName, nil
}

func (m *MemoryStore) Delete(ctx context.Context, objectName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[objectName]; !ok {
		return fmt.Errorf("delete %s: object not found", objectName)
	}
	delete(m.objects, objectName)
	return nil
}

func (m *MemoryStore) ObjectName(raw string) (string, bool) {
	prefix := m.baseURL + "/"
	if !strings.HasPrefix(raw, prefix) || raw == prefix {
		return "", false
	}
	return strings.TrimPrefix(raw, prefix), true
}

// Object returns a stored object's content type and bytes.
func (m *MemoryStore) Object(objectName string) (string, []byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[objectName]
	return o.contentType, o.data, ok
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
