package store

import (
	"sync"

	"github.com/neboloop/chplg-devtools/internal/clock"
)

// MemoryStore is the in-process collector.
type MemoryStore struct {
	mu   sync.Mutex
	st   *state
	opts options
}

// NewMemoryStore creates an empty collector with CollectorLimits unless
// WithLimits says otherwise.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(CollectorLimits(), opts)
	return &MemoryStore{
		st:   newState(o.limits, clock.NowMillis(o.clock)),
		opts: o,
	}
}

func (m *MemoryStore) now() int64 { return clock.NowMillis(m.opts.clock) }

func (m *MemoryStore) AddLog(e LogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.addLog(e)
}

func (m *MemoryStore) AddError(e ErrorEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.addError(e)
}

func (m *MemoryStore) AddNetworkRequest(e NetworkEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.addPending(e)
}

func (m *MemoryStore) UpdateNetworkRequest(id string, u NetworkUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.updatePending(id, u)
}

// CompleteNetworkRequest moves a pending request to the completed list
// and stamps its duration. ok is false for an unknown id.
func (m *MemoryStore) CompleteNetworkRequest(id string) (NetworkEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.completePending(id, m.now())
}

func (m *MemoryStore) AddCompletedNetworkRequest(e NetworkEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.addCompleted(e)
}

func (m *MemoryStore) GetLogs(f Filter) []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, _ := compileFilter(f, m.now(), m.opts.logger)
	return m.st.queryLogs(c)
}

func (m *MemoryStore) GetErrors(f Filter) []ErrorEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, _ := compileFilter(f, m.now(), m.opts.logger)
	return m.st.queryErrors(c)
}

func (m *MemoryStore) GetNetworkRequests(f Filter) ([]NetworkEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := compileFilter(f, m.now(), m.opts.logger)
	if err != nil {
		return nil, err
	}
	return m.st.queryNetwork(c), nil
}

func (m *MemoryStore) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.status(m.now())
}

func (m *MemoryStore) ClearLogs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.clearLogs()
}

func (m *MemoryStore) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.clearAll()
}

func (m *MemoryStore) SetExtensionConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.setConnected(connected, m.now())
}

func (m *MemoryStore) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.touch(m.now())
}
