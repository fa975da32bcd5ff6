package kv

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory — in-memory реализация Store для тестов и локального режима.
//
// TTL учитывается лениво: просроченный ключ удаляется при следующем
// обращении к нему.
type Memory struct {
	mu   sync.Mutex
	data map[string]*memoryEntry
}

// memoryEntry — значение одного ключа (hash, set или zset).
type memoryEntry struct {
	hash     map[string]string
	set      map[string]struct{}
	zset     map[string]float64
	expireAt time.Time
}

// NewMemory создаёт пустое in-memory хранилище.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]*memoryEntry)}
}

// entry возвращает живую запись ключа, удаляя просроченную.
func (m *Memory) entry(key string) *memoryEntry {
	e, ok := m.data[key]
	if !ok {
		return nil
	}
	if !e.expireAt.IsZero() && time.Now().After(e.expireAt) {
		delete(m.data, key)
		return nil
	}
	return e
}

// ensure возвращает запись ключа, создавая её при отсутствии.
func (m *Memory) ensure(key string) *memoryEntry {
	if e := m.entry(key); e != nil {
		return e
	}
	e := &memoryEntry{}
	m.data[key] = e
	return e
}

func (m *Memory) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.ensure(key)
	if e.hash == nil {
		e.hash = make(map[string]string)
	}
	e.hash[field] = value
	return nil
}

func (m *Memory) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key)
	if e == nil || e.hash == nil {
		return "", ErrNotFound
	}
	v, ok := e.hash[field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string)
	e := m.entry(key)
	if e == nil {
		return out, nil
	}
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SAdd(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.ensure(key)
	if e.set == nil {
		e.set = make(map[string]struct{})
	}
	e.set[member] = struct{}{}
	return nil
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key)
	if e == nil {
		return nil, nil
	}
	members := make([]string, 0, len(e.set))
	for member := range e.set {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (m *Memory) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.ensure(key)
	if e.zset == nil {
		e.zset = make(map[string]float64)
	}
	e.zset[member] = score
	return nil
}

func (m *Memory) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key)
	if e == nil {
		return nil, nil
	}

	type scored struct {
		member string
		score  float64
	}
	var matched []scored
	for member, score := range e.zset {
		if score >= min && score <= max {
			matched = append(matched, scored{member, score})
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score < matched[j].score
		}
		return matched[i].member < matched[j].member
	})

	members := make([]string, 0, len(matched))
	for _, s := range matched {
		members = append(members, s.member)
	}
	return members, nil
}

func (m *Memory) ZRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key)
	if e == nil {
		return nil
	}
	for _, member := range members {
		delete(e.zset, member)
	}
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for _, key := range keys {
		if m.entry(key) != nil {
			delete(m.data, key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entry(key) != nil, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key)
	if e == nil {
		return nil
	}
	e.expireAt = time.Now().Add(ttl)
	return nil
}

// TTLOf возвращает установленный expireAt ключа (для тестов).
// Нулевое время — TTL не установлен или ключ отсутствует.
func (m *Memory) TTLOf(key string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.entry(key); e != nil {
		return e.expireAt
	}
	return time.Time{}
}
