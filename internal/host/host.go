// Package host is the receiving end of the extension link. It writes
// incoming logs, errors and network requests into the durable store and
// can forward live queries to the connected extension.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neboloop/chplg-devtools/internal/framing"
	"github.com/neboloop/chplg-devtools/internal/protocol"
	"github.com/neboloop/chplg-devtools/internal/relay"
	"github.com/neboloop/chplg-devtools/internal/store"
)

// DefaultQueryTimeout bounds how long Query waits for the extension.
const DefaultQueryTimeout = 10 * time.Second

var (
	// ErrNoPeer means no extension is connected.
	ErrNoPeer = errors.New("host: no extension connected")
	// ErrQueryTimeout means the extension did not answer in time.
	ErrQueryTimeout = errors.New("host: query timed out")
)

type queryResult struct {
	msg protocol.Message
	err error
}

// pendingQuery is a query awaiting its reply from peer.
type pendingQuery struct {
	peer relay.Conn
	ch   chan queryResult
}

// Host is safe for concurrent use. Several peers may be served at once but
// queries go to the most recently attached one that is still open.
type Host struct {
	store        store.Store
	logger       *slog.Logger
	queryTimeout time.Duration

	mu      sync.Mutex
	peers   []relay.Conn // attach order
	pending map[string]pendingQuery
}

// Option configures a Host.
type Option func(*Host)

func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithQueryTimeout overrides DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.queryTimeout = d
		}
	}
}

// New returns a Host writing into st.
func New(st store.Store, opts ...Option) *Host {
	h := &Host{
		store:        st,
		logger:       slog.Default(),
		queryTimeout: DefaultQueryTimeout,
		pending:      make(map[string]pendingQuery),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "host")
	return h
}

// ServeStdio serves the browser's native messaging pipe.
func (h *Host) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	closer := func() error {
		if c, ok := in.(io.Closer); ok {
			return c.Close()
		}
		return nil
	}
	return h.ServeConn(ctx, relay.NewStreamConn(in, out, closer, h.logger))
}

// ServeConn reads from conn until it ends. End of input is a clean
// shutdown and returns nil. The store is marked connected while any peer
// is attached.
func (h *Host) ServeConn(ctx context.Context, conn relay.Conn) error {
	h.attach(conn)
	defer h.detach(conn)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			var perr *framing.PayloadError
			if errors.As(err, &perr) {
				h.logger.Warn("failed to parse message", "error", err)
				continue
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				h.logger.Info("extension disconnected")
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			h.logger.Warn("failed to decode message", "error", err)
			continue
		}
		h.HandleMessage(conn, msg)
	}
}

func (h *Host) attach(conn relay.Conn) {
	h.mu.Lock()
	h.peers = append(h.peers, conn)
	h.mu.Unlock()
	h.store.SetExtensionConnected(true)
}

// detach drops conn and fails the queries still waiting on it. The store
// stays connected while another peer remains.
func (h *Host) detach(conn relay.Conn) {
	h.mu.Lock()
	h.peers = slices.DeleteFunc(h.peers, func(c relay.Conn) bool { return c == conn })
	remaining := len(h.peers)
	var orphaned []chan queryResult
	for id, q := range h.pending {
		if q.peer == conn {
			orphaned = append(orphaned, q.ch)
			delete(h.pending, id)
		}
	}
	h.mu.Unlock()

	for _, ch := range orphaned {
		ch <- queryResult{err: ErrNoPeer}
	}
	if remaining == 0 {
		h.store.SetExtensionConnected(false)
	}
}

// current returns the most recently attached peer, or nil.
func (h *Host) current() relay.Conn {
	if len(h.peers) == 0 {
		return nil
	}
	return h.peers[len(h.peers)-1]
}

// HandleMessage applies one inbound message. Replies go to from.
func (h *Host) HandleMessage(from relay.Conn, msg protocol.Message) {
	h.store.Touch()

	switch msg.Type {
	case protocol.TypeInit:
		h.logger.Info("extension initialized", "version", msg.Version)
		ack := protocol.Message{Type: protocol.TypeInitAck, Version: protocol.Version}
		if err := from.WriteMessage(ack); err != nil {
			h.logger.Warn("failed to send INIT_ACK", "error", err)
		}

	case protocol.TypeLog:
		var e store.LogEntry
		if err := msg.DecodeData(&e); err != nil {
			h.logger.Warn("bad LOG payload", "error", err)
			return
		}
		e.Level = store.NormalizeLevel(string(e.Level))
		h.store.AddLog(e)

	case protocol.TypeError:
		var e store.ErrorEntry
		if err := msg.DecodeData(&e); err != nil {
			h.logger.Warn("bad ERROR payload", "error", err)
			return
		}
		if e.Level == "" {
			e.Level = store.LevelError
		}
		h.store.AddError(e)

	case protocol.TypeNetwork:
		var e store.NetworkEntry
		if err := msg.DecodeData(&e); err != nil {
			h.logger.Warn("bad NETWORK payload", "error", err)
			return
		}
		h.store.AddCompletedNetworkRequest(e)

	default:
		if protocol.IsResult(msg.Type) {
			h.resolve(msg)
			return
		}
		h.logger.Warn("unknown message type", "type", msg.Type)
	}
}

func (h *Host) resolve(msg protocol.Message) {
	h.mu.Lock()
	q, ok := h.pending[msg.RequestID]
	delete(h.pending, msg.RequestID)
	h.mu.Unlock()

	if !ok {
		h.logger.Debug("no pending query for result", "type", msg.Type, "requestId", msg.RequestID)
		return
	}
	q.ch <- queryResult{msg: msg}
}

// Query sends a QUERY_* (or CLEAR_LOGS) message of the given type to the
// connected extension and waits for the reply carrying the same requestId.
func (h *Host) Query(ctx context.Context, queryType string, params any) (protocol.Message, error) {
	if _, ok := protocol.ResultTypeFor(queryType); !ok {
		return protocol.Message{}, fmt.Errorf("host: %s is not a query type", queryType)
	}

	msg := protocol.Message{Type: queryType, RequestID: uuid.NewString()}
	if params != nil {
		p, err := protocol.New(queryType, params)
		if err != nil {
			return protocol.Message{}, err
		}
		msg.Params = p.Data
	}

	ch := make(chan queryResult, 1)
	h.mu.Lock()
	peer := h.current()
	if peer == nil {
		h.mu.Unlock()
		return protocol.Message{}, ErrNoPeer
	}
	h.pending[msg.RequestID] = pendingQuery{peer: peer, ch: ch}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.pending, msg.RequestID)
		h.mu.Unlock()
	}()

	if err := peer.WriteMessage(msg); err != nil {
		return protocol.Message{}, fmt.Errorf("send %s: %w", queryType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.queryTimeout)
	defer cancel()

	select {
	case res := <-ch:
		return res.msg, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return protocol.Message{}, ErrQueryTimeout
		}
		return protocol.Message{}, ctx.Err()
	}
}

// Connected reports whether an extension is attached.
func (h *Host) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers) > 0
}

// PendingQueries returns the number of queries awaiting a reply.
func (h *Host) PendingQueries() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}
