// Package ttlmap is a map whose entries expire a fixed time after they
// were last put.
package ttlmap

import (
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	createdAt time.Time
}

type TTLMap[V any] struct {
	m        map[string]*item[V]
	l        sync.Mutex
	lifetime time.Duration
	stop     chan struct{}
	once     sync.Once
}

// New starts a map whose entries live for lifetime. Close stops the
// cleanup goroutine.
func New[V any](lifetime time.Duration) *TTLMap[V] {
	m := &TTLMap[V]{
		m:        make(map[string]*item[V]),
		lifetime: lifetime,
		stop:     make(chan struct{}),
	}
	interval := min(time.Second, lifetime)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case now := <-ticker.C:
				m.l.Lock()
				for k, v := range m.m {
					if now.After(v.createdAt.Add(lifetime)) {
						delete(m.m, k)
					}
				}
				m.l.Unlock()
			}
		}
	}()
	return m
}

// Put stores value under k and restarts its lifetime.
func (m *TTLMap[V]) Put(k string, value V) {
	m.l.Lock()
	m.m[k] = &item[V]{value: value, createdAt: time.Now()}
	m.l.Unlock()
}

// Get returns the value under k unless it is missing or expired.
func (m *TTLMap[V]) Get(k string) (V, bool) {
	m.l.Lock()
	defer m.l.Unlock()
	it, ok := m.m[k]
	if !ok || time.Since(it.createdAt) > m.lifetime {
		var zero V
		return zero, false
	}
	return it.value, true
}

func (m *TTLMap[V]) Exists(k string) bool {
	_, ok := m.Get(k)
	return ok
}

func (m *TTLMap[V]) Delete(k string) {
	m.l.Lock()
	delete(m.m, k)
	m.l.Unlock()
}

// Values returns the live values in no particular order.
func (m *TTLMap[V]) Values() []V {
	m.l.Lock()
	defer m.l.Unlock()
	out := make([]V, 0, len(m.m))
	for _, it := range m.m {
		if time.Since(it.createdAt) <= m.lifetime {
			out = append(out, it.value)
		}
	}
	return out
}

func (m *TTLMap[V]) Len() int {
	return len(m.Values())
}

func (m *TTLMap[V]) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}
