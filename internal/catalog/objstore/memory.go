package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs tests and dry runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
	now     func() time.Time
	owner   string
}

type memObject struct {
	data    []byte
	modTime time.Time
}

// NewMemory returns an empty store whose objects report owner.
func NewMemory(owner string) *Memory {
	return &Memory{objects: make(map[string]memObject), now: time.Now, owner: owner}
}

func (m *Memory) object(key string, o memObject) Object {
	return Object{Key: key, Size: int64(len(o.data)), ModTime: o.modTime, Owner: m.owner}
}

func (m *Memory) Head(_ context.Context, key string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	if !ok {
		return Object{}, NotFound(fmt.Errorf("key %q", key))
	}
	return m.object(key, o), nil
}

func (m *Memory) List(_ context.Context, prefix string, recursive bool) ([]Object, []string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var objs []Object
	seen := map[string]bool{}
	var prefixes []string
	for key, o := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if i := strings.Index(rest, "/"); !recursive && i >= 0 {
			sub := prefix + rest[:i+1]
			if !seen[sub] {
				seen[sub] = true
				prefixes = append(prefixes, sub)
			}
			continue
		}
		objs = append(objs, m.object(key, o))
	}
	slices.SortFunc(objs, func(a, b Object) int { return strings.Compare(a.Key, b.Key) })
	slices.Sort(prefixes)
	return objs, prefixes, nil
}

func (m *Memory) Get(_ context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	o, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return NotFound(fmt.Errorf("key %q", key))
	}
	_, err := io.Copy(w, bytes.NewReader(o.data))
	return err
}

func (m *Memory) Put(_ context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("put %s: read %d bytes, expected %d", key, len(data), size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: data, modTime: m.now()}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Keys returns every stored key, sorted.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

var _ Store = (*Memory)(nil)
