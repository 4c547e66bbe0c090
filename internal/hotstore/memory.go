package hotstore

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

// entry tags a stored value with its Redis-flavored type so Type() and
// cross-type access errors behave the way ArchiveWorker expects.
type entry struct {
	kind   string
	str    string
	list   []string
	set    map[string]struct{}
	hash   map[string]string
	expiry time.Time // zero means no TTL
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiry.IsZero() && now.After(e.expiry)
}

// Memory is an in-process Store used by tests and local development; it
// makes MessagingCore and ArchiveWorker exercisable without a live Redis.
type Memory struct {
	mu   sync.Mutex
	data map[string]*entry
}

// NewMemory builds an empty in-memory hot store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]*entry)}
}

func (m *Memory) get(key string) *entry {
	e, ok := m.data[key]
	if !ok {
		return nil
	}
	if e.expired(time.Now()) {
		delete(m.data, key)
		return nil
	}
	return e
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil || e.kind != TypeString {
		return "", false, nil
	}
	return e.str, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = &entry{kind: TypeString, str: value}
	return nil
}

func (m *Memory) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = &entry{kind: TypeString, str: value, expiry: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(key) != nil, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *Memory) Type(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil {
		return TypeNone, nil
	}
	return e.kind, nil
}

func (m *Memory) KeysMatching(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []string
	for k, e := range m.data {
		if e.expired(now) {
			delete(m.data, k)
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) HashSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil {
		e = &entry{kind: TypeHash, hash: make(map[string]string)}
		m.data[key] = e
	}
	if e.kind != TypeHash {
		return errWrongType(key)
	}
	e.hash[field] = value
	return nil
}

func (m *Memory) HashGet(_ context.Context, key, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil || e.kind != TypeHash {
		return "", false, nil
	}
	v, ok := e.hash[field]
	return v, ok, nil
}

func (m *Memory) SetAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil {
		e = &entry{kind: TypeSet, set: make(map[string]struct{})}
		m.data[key] = e
	}
	if e.kind != TypeSet {
		return errWrongType(key)
	}
	for _, mem := range members {
		e.set[mem] = struct{}{}
	}
	return nil
}

func (m *Memory) SetRemove(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil || e.kind != TypeSet {
		return nil
	}
	for _, mem := range members {
		delete(e.set, mem)
	}
	if len(e.set) == 0 {
		delete(m.data, key)
	}
	return nil
}

func (m *Memory) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil || e.kind != TypeSet {
		return nil, nil
	}
	out := make([]string, 0, len(e.set))
	for mem := range e.set {
		out = append(out, mem)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) SetContains(_ context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil || e.kind != TypeSet {
		return false, nil
	}
	_, ok := e.set[member]
	return ok, nil
}

func (m *Memory) SetCardinality(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil || e.kind != TypeSet {
		return 0, nil
	}
	return int64(len(e.set)), nil
}

func (m *Memory) ListAppend(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil {
		e = &entry{kind: TypeList}
		m.data[key] = e
	}
	if e.kind != TypeList {
		return errWrongType(key)
	}
	e.list = append(e.list, values...)
	return nil
}

// normalizeIndex converts a possibly-negative, possibly-out-of-range index
// (Redis semantics) into a valid slice bound.
func normalizeIndex(i, length int64) int64 {
	if i < 0 {
		i += length
	}
	if i < 0 {
		i = 0
	}
	if i > length {
		i = length
	}
	return i
}

func (m *Memory) ListRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil || e.kind != TypeList {
		return nil, nil
	}
	n := int64(len(e.list))
	s := normalizeIndex(start, n)
	e2 := normalizeIndex(stop, n) + 1
	if e2 > n {
		e2 = n
	}
	if s >= e2 {
		return nil, nil
	}
	out := make([]string, e2-s)
	copy(out, e.list[s:e2])
	return out, nil
}

func (m *Memory) ListTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil || e.kind != TypeList {
		return nil
	}
	n := int64(len(e.list))
	s := normalizeIndex(start, n)
	e2 := normalizeIndex(stop, n) + 1
	if e2 > n {
		e2 = n
	}
	if s >= e2 {
		e.list = nil
		return nil
	}
	trimmed := make([]string, e2-s)
	copy(trimmed, e.list[s:e2])
	e.list = trimmed
	return nil
}

func (m *Memory) ListSet(_ context.Context, key string, index int64, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil || e.kind != TypeList {
		return errWrongType(key)
	}
	n := int64(len(e.list))
	if index < 0 {
		index += n
	}
	if index < 0 || index >= n {
		return errIndexRange(key)
	}
	e.list[index] = value
	return nil
}

func (m *Memory) ListLength(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.get(key)
	if e == nil || e.kind != TypeList {
		return 0, nil
	}
	return int64(len(e.list)), nil
}
