package store

import "maps"

// state is the data shared by both store variants. It holds no lock and
// does no I/O; callers serialize access.
type state struct {
	logs    *ring[LogEntry]
	errors  *ring[ErrorEntry]
	network *ring[NetworkEntry]
	pending map[string]*NetworkEntry

	stats              Stats
	extensionConnected bool
	lastMessageTime    *int64
}

func newState(limits Limits, now int64) *state {
	return &state{
		logs:    newRing[LogEntry](limits.Logs),
		errors:  newRing[ErrorEntry](limits.Errors),
		network: newRing[NetworkEntry](limits.Network),
		pending: make(map[string]*NetworkEntry),
		stats:   Stats{StartTime: now},
	}
}

func (s *state) addLog(e LogEntry) {
	s.logs.push(e)
	s.stats.TotalLogs++
	if e.Level == LevelError {
		s.addError(ErrorEntry{LogEntry: e})
	}
}

func (s *state) addError(e ErrorEntry) {
	s.errors.push(e)
	s.stats.TotalErrors++
}

func (s *state) addPending(e NetworkEntry) {
	cp := e
	s.pending[e.ID] = &cp
	s.stats.TotalNetworkRequests++
}

func (s *state) updatePending(id string, u NetworkUpdate) bool {
	e, ok := s.pending[id]
	if !ok {
		return false
	}
	if u.Status != nil {
		status := *u.Status
		e.Status = &status
	}
	if u.ResponseHeaders != nil {
		e.ResponseHeaders = maps.Clone(u.ResponseHeaders)
	}
	return true
}

func (s *state) completePending(id string, now int64) (NetworkEntry, bool) {
	e, ok := s.pending[id]
	if !ok {
		return NetworkEntry{}, false
	}
	delete(s.pending, id)
	d := now - e.Timestamp
	e.Duration = &d
	s.network.push(*e)
	return *e, true
}

func (s *state) addCompleted(e NetworkEntry) {
	s.network.push(e)
	s.stats.TotalNetworkRequests++
}

func (s *state) clearLogs() {
	s.logs.reset()
	s.errors.reset()
	s.stats.TotalLogs = 0
	s.stats.TotalErrors = 0
}

func (s *state) clearAll() {
	s.clearLogs()
	s.network.reset()
	clear(s.pending)
	s.stats.TotalNetworkRequests = 0
}

func (s *state) setConnected(connected bool, now int64) {
	s.extensionConnected = connected
	if connected {
		s.touch(now)
	}
}

func (s *state) touch(now int64) {
	t := now
	s.lastMessageTime = &t
}

func (s *state) status(now int64) Status {
	return Status{
		ExtensionConnected:     s.extensionConnected,
		LastMessageTime:        s.lastMessageTime,
		LogsCount:              s.logs.len(),
		ErrorsCount:            s.errors.len(),
		NetworkRequestsCount:   s.network.len(),
		PendingNetworkRequests: len(s.pending),
		Stats: StatusStats{
			Stats:  s.stats,
			Uptime: now - s.stats.StartTime,
		},
	}
}

func (s *state) queryLogs(c compiled) []LogEntry {
	return selectEntries(s.logs.items(), c.Limit, c.matchLog)
}

func (s *state) queryErrors(c compiled) []ErrorEntry {
	return selectEntries(s.errors.items(), c.Limit, func(e ErrorEntry) bool {
		return c.matchLog(e.LogEntry)
	})
}

func (s *state) queryNetwork(c compiled) []NetworkEntry {
	return selectEntries(s.network.items(), c.Limit, c.matchNetwork)
}

// document is the on-disk layout of the durable store.
type document struct {
	Logs               []LogEntry              `json:"logs"`
	Errors             []ErrorEntry            `json:"errors"`
	NetworkRequests    []NetworkEntry          `json:"networkRequests"`
	Pending            map[string]NetworkEntry `json:"pendingNetworkRequests,omitempty"`
	Stats              Stats                   `json:"stats"`
	ExtensionConnected bool                    `json:"extensionConnected"`
	LastMessageTime    *int64                  `json:"lastMessageTime"`
}

func (s *state) document() document {
	doc := document{
		Logs:               s.logs.items(),
		Errors:             s.errors.items(),
		NetworkRequests:    s.network.items(),
		Stats:              s.stats,
		ExtensionConnected: s.extensionConnected,
		LastMessageTime:    s.lastMessageTime,
	}
	if len(s.pending) > 0 {
		doc.Pending = make(map[string]NetworkEntry, len(s.pending))
		for id, e := range s.pending {
			doc.Pending[id] = *e
		}
	}
	return doc
}

func (s *state) restore(doc document) {
	s.logs.fill(doc.Logs)
	s.errors.fill(doc.Errors)
	s.network.fill(doc.NetworkRequests)
	clear(s.pending)
	for id, e := range doc.Pending {
		cp := e
		s.pending[id] = &cp
	}
	s.stats = doc.Stats
	s.extensionConnected = doc.ExtensionConnected
	s.lastMessageTime = doc.LastMessageTime
}
