package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/neboloop/chplg-devtools/internal/clock"
)

// DataFileName is the document name inside the data directory.
const DataFileName = "data.json"

// FileStore is the durable store shared between processes. Every mutation
// rewrites the whole document and every read reloads it first. Mutations
// apply to the in-memory copy as last loaded, so a write from another
// process that landed since the last read is overwritten.
type FileStore struct {
	mu      sync.Mutex
	path    string
	st      *state
	opts    options
	started int64 // start time used while there is no document
}

// NewFileStore opens or creates the store at path. A missing or corrupt
// document starts empty.
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	o := buildOptions(DurableLimits(), opts)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	started := clock.NowMillis(o.clock)
	s := &FileStore{
		path:    path,
		st:      newState(o.limits, started),
		opts:    o,
		started: started,
	}
	s.reload()
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) now() int64 { return clock.NowMillis(s.opts.clock) }

// reload replaces in-memory state with the file contents.
func (s *FileStore) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.opts.logger.Warn("failed to read store, starting empty", "path", s.path, "error", err)
		}
		s.reset()
		return
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.opts.logger.Warn("corrupt store file, starting empty", "path", s.path, "error", err)
		s.reset()
		return
	}
	s.st.restore(doc)
}

func (s *FileStore) reset() {
	s.st = newState(s.opts.limits, s.started)
}

// save writes the document through a temp file and rename. Failures are
// logged and the in-memory state stays as is.
func (s *FileStore) save() {
	if err := s.write(); err != nil {
		s.opts.logger.Error("failed to save store", "path", s.path, "error", err)
	}
}

func (s *FileStore) write() error {
	data, err := json.Marshal(s.st.document())
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".data-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (s *FileStore) mutate(fn func(*state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
	s.save()
}

func (s *FileStore) AddLog(e LogEntry) {
	s.mutate(func(st *state) { st.addLog(e) })
}

func (s *FileStore) AddError(e ErrorEntry) {
	s.mutate(func(st *state) { st.addError(e) })
}

func (s *FileStore) AddNetworkRequest(e NetworkEntry) {
	s.mutate(func(st *state) { st.addPending(e) })
}

func (s *FileStore) UpdateNetworkRequest(id string, u NetworkUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.updatePending(id, u) {
		s.save()
	}
}

func (s *FileStore) CompleteNetworkRequest(id string) (NetworkEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.completePending(id, s.now())
	if ok {
		s.save()
	}
	return e, ok
}

func (s *FileStore) AddCompletedNetworkRequest(e NetworkEntry) {
	s.mutate(func(st *state) { st.addCompleted(e) })
}

func (s *FileStore) GetLogs(f Filter) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	c, _ := compileFilter(f, s.now(), s.opts.logger)
	return s.st.queryLogs(c)
}

func (s *FileStore) GetErrors(f Filter) []ErrorEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	c, _ := compileFilter(f, s.now(), s.opts.logger)
	return s.st.queryErrors(c)
}

func (s *FileStore) GetNetworkRequests(f Filter) ([]NetworkEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	c, err := compileFilter(f, s.now(), s.opts.logger)
	if err != nil {
		return nil, err
	}
	return s.st.queryNetwork(c), nil
}

func (s *FileStore) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload()
	return s.st.status(s.now())
}

func (s *FileStore) ClearLogs() {
	s.mutate(func(st *state) { st.clearLogs() })
}

func (s *FileStore) ClearAll() {
	s.mutate(func(st *state) { st.clearAll() })
}

func (s *FileStore) SetExtensionConnected(connected bool) {
	now := s.now()
	s.mutate(func(st *state) { st.setConnected(connected, now) })
}

func (s *FileStore) Touch() {
	now := s.now()
	s.mutate(func(st *state) { st.touch(now) })
}
