package pipeline

import (
	"strings"
	"sync"
)

// memoCache remembers successful answers keyed by catalog fingerprint
// and normalized question. The map is bounded; once full, the oldest
// entry is evicted. A size of zero disables memoization.
type memoCache struct {
	mu      sync.Mutex
	entries map[string]Answer
	order   []string
	size    int
}

func newMemoCache(size int) *memoCache {
	return &memoCache{
		entries: make(map[string]Answer),
		size:    size,
	}
}

func (m *memoCache) key(fingerprint, question string) string {
	return fingerprint + "\x00" + strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

func (m *memoCache) get(key string) (Answer, bool) {
	if m.size <= 0 {
		return Answer{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	answer, ok := m.entries[key]
	return answer, ok
}

func (m *memoCache) put(key string, answer Answer) {
	if m.size <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists {
		if len(m.order) >= m.size {
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.entries, oldest)
		}
		m.order = append(m.order, key)
	}
	m.entries[key] = answer
}
