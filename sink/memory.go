package sink

import (
	"context"
	"sort"
	"sync"

	"github.com/cbsinteractive/conversion-client/job"
)

// Memory keeps saved files in a map. It backs dry runs and tests.
type Memory struct {
	mu    sync.Mutex
	files map[string]job.Payload
}

func (m *Memory) Save(_ context.Context, name string, p job.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string]job.Payload{}
	}
	p.Data = append([]byte(nil), p.Data...)
	m.files[name] = p
	return nil
}

// Get returns a saved file
func (m *Memory) Get(name string) (job.Payload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.files[name]
	return p, ok
}

// Names lists saved files in order
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
