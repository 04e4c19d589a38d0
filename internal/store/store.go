// Package store keeps bounded collections of captured console logs,
// errors and network requests.
//
// MemoryStore is the collector kept by the capturing process.
// FileStore persists the same state as one JSON document so that the
// native host and the query server, running as separate processes, see
// each other's writes. FileStore does no cross-process locking: two
// processes mutating the file at once race and the last write wins.
package store

import (
	"log/slog"

	"github.com/neboloop/chplg-devtools/internal/clock"
)

// Store is implemented by MemoryStore and FileStore.
type Store interface {
	AddLog(LogEntry)
	AddError(ErrorEntry)
	AddNetworkRequest(NetworkEntry)
	UpdateNetworkRequest(id string, u NetworkUpdate)
	CompleteNetworkRequest(id string) (NetworkEntry, bool)
	AddCompletedNetworkRequest(NetworkEntry)

	GetLogs(Filter) []LogEntry
	GetErrors(Filter) []ErrorEntry
	GetNetworkRequests(Filter) ([]NetworkEntry, error)
	GetStatus() Status

	ClearLogs()
	ClearAll()

	SetExtensionConnected(bool)
	Touch()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
)

type options struct {
	limits Limits
	clock  clock.Clock
	logger *slog.Logger
}

// Option configures a store.
type Option func(*options)

// WithLimits overrides the default caps. Zero fields keep their default.
func WithLimits(l Limits) Option {
	return func(o *options) { o.limits = l }
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(def Limits, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.limits = o.limits.orDefault(def)
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "store")
	return o
}

// compileFilter resolves f against now and logs an unrecognized since.
func compileFilter(f Filter, now int64, logger *slog.Logger) (compiled, error) {
	c, ok, err := f.compile(now)
	if !ok {
		logger.Warn("unrecognized since value, not filtering by time", "since", f.Since)
	}
	return c, err
}
