// Package relay keeps a reconnecting message link to the native host.
//
// A Bridge dials through a Dialer, dispatches inbound messages by type and
// sends outbound ones while connected. When the link drops it retries on a
// fixed delay up to a ceiling, then gives up until Connect is called again.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neboloop/chplg-devtools/internal/clock"
	"github.com/neboloop/chplg-devtools/internal/framing"
	"github.com/neboloop/chplg-devtools/internal/protocol"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultMaxAttempts    = 5

	retryDialTimeout = 10 * time.Second
)

// ErrNotConnected is returned by Write while there is no link.
var ErrNotConnected = errors.New("relay: not connected")

// State is the link state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Status is a snapshot of the reconnect bookkeeping.
type Status struct {
	State    State `json:"state"`
	Attempts int   `json:"attempts"`
	GaveUp   bool  `json:"gaveUp"`
}

// Handler receives inbound messages of one type.
type Handler func(protocol.Message)

// Bridge is safe for concurrent use. Handlers and hooks run without the
// bridge lock held.
type Bridge struct {
	dialer      Dialer
	clock       clock.Clock
	logger      *slog.Logger
	delay       time.Duration
	maxAttempts int

	mu            sync.Mutex
	handlers      map[string]Handler
	state         State
	conn          Conn
	attempts      int
	gaveUp        bool
	timer         *clock.Timer
	gen           uint64 // bumped by Connect and Close; stale callbacks compare against it
	closed        bool
	onConnect     func()
	onStateChange func(State)

	writeMu sync.Mutex
}

// Option configures a Bridge.
type Option func(*Bridge)

func WithClock(c clock.Clock) Option {
	return func(b *Bridge) { b.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithReconnectDelay sets the wait before each retry. Non-positive values
// are ignored.
func WithReconnectDelay(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.delay = d
		}
	}
}

// WithMaxAttempts sets how many retries follow a drop before giving up.
func WithMaxAttempts(n int) Option {
	return func(b *Bridge) {
		if n >= 0 {
			b.maxAttempts = n
		}
	}
}

// NewBridge returns a disconnected Bridge. Call Connect to dial.
func NewBridge(dialer Dialer, opts ...Option) *Bridge {
	b := &Bridge{
		dialer:      dialer,
		clock:       clock.Real(),
		logger:      slog.Default(),
		delay:       DefaultReconnectDelay,
		maxAttempts: DefaultMaxAttempts,
		handlers:    make(map[string]Handler),
		state:       StateDisconnected,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "relay")
	return b
}

// On registers fn for messages of type typ, replacing any previous one.
func (b *Bridge) On(typ string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[typ] = fn
}

// Off removes the handler for typ.
func (b *Bridge) Off(typ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, typ)
}

// OnConnect sets a hook run after every successful dial, manual or
// automatic.
func (b *Bridge) OnConnect(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnect = fn
}

// OnStateChange sets a hook run on every state transition.
func (b *Bridge) OnStateChange(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Status returns the current state and retry bookkeeping.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{State: b.state, Attempts: b.attempts, GaveUp: b.gaveUp}
}

// Connected reports whether a link is up.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateConnected
}

// Connect dials now. Any scheduled retry is canceled, the attempt counter
// is reset and an existing link is closed first. A dial error is returned
// and no retry is scheduled for it.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("relay: bridge closed")
	}
	b.timer.Stop()
	b.timer = nil
	b.attempts = 0
	b.gaveUp = false
	b.gen++
	gen := b.gen
	old := b.conn
	b.conn = nil
	notify := b.setStateLocked(StateConnecting)
	b.mu.Unlock()

	notify()
	if old != nil {
		old.Close()
	}
	return b.dial(ctx, gen, false)
}

// Close drops the link and stops retrying.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	b.gen++
	b.timer.Stop()
	b.timer = nil
	conn := b.conn
	b.conn = nil
	notify := b.setStateLocked(StateDisconnected)
	b.mu.Unlock()

	notify()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (b *Bridge) dial(ctx context.Context, gen uint64, automatic bool) error {
	conn, err := b.dialer.Dial(ctx)

	b.mu.Lock()
	if gen != b.gen || b.closed {
		b.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		b.logger.Debug("discarding superseded dial")
		return nil
	}
	if err != nil {
		notify := b.setStateLocked(StateDisconnected)
		if automatic {
			b.scheduleLocked()
		}
		b.mu.Unlock()
		notify()
		b.logger.Warn("connect failed", "error", err, "automatic", automatic)
		return fmt.Errorf("connect: %w", err)
	}

	b.conn = conn
	b.attempts = 0
	b.gaveUp = false
	notify := b.setStateLocked(StateConnected)
	onConnect := b.onConnect
	b.mu.Unlock()

	b.logger.Info("connected")
	notify()
	go b.readLoop(conn, gen)
	if onConnect != nil {
		onConnect()
	}
	return nil
}

// scheduleLocked arms the next retry or gives up. Caller holds b.mu.
func (b *Bridge) scheduleLocked() {
	if b.attempts >= b.maxAttempts {
		b.gaveUp = true
		b.logger.Error("max reconnect attempts reached", "attempts", b.attempts)
		return
	}
	b.attempts++
	gen := b.gen
	b.logger.Info("reconnecting", "attempt", b.attempts, "delay", b.delay)
	b.timer = b.clock.AfterFunc(b.delay, func() { b.retry(gen) })
}

func (b *Bridge) retry(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || b.closed || b.state != StateDisconnected {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	notify := b.setStateLocked(StateConnecting)
	b.mu.Unlock()

	notify()
	ctx, cancel := context.WithTimeout(context.Background(), retryDialTimeout)
	defer cancel()
	_ = b.dial(ctx, gen, true)
}

func (b *Bridge) readLoop(conn Conn, gen uint64) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			var perr *framing.PayloadError
			if errors.As(err, &perr) {
				b.logger.Warn("dropping malformed message", "error", err)
				continue
			}
			b.handleDisconnect(conn, gen, err)
			return
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			b.logger.Warn("dropping undecodable message", "error", err)
			continue
		}
		b.dispatch(msg)
	}
}

func (b *Bridge) dispatch(msg protocol.Message) {
	b.mu.Lock()
	fn := b.handlers[msg.Type]
	b.mu.Unlock()

	if fn == nil {
		b.logger.Debug("no handler for message", "type", msg.Type)
		return
	}
	fn(msg)
}

func (b *Bridge) handleDisconnect(conn Conn, gen uint64, cause error) {
	b.mu.Lock()
	if gen != b.gen || b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	notify := b.setStateLocked(StateDisconnected)
	b.logger.Warn("disconnected", "error", cause)
	b.scheduleLocked()
	b.mu.Unlock()

	notify()
	conn.Close()
}

// setStateLocked records s and returns the hook call to make once b.mu is
// released.
func (b *Bridge) setStateLocked(s State) func() {
	if b.state == s {
		return func() {}
	}
	b.state = s
	hook := b.onStateChange
	if hook == nil {
		return func() {}
	}
	return func() { hook(s) }
}

// Write sends m as is.
func (b *Bridge) Write(m protocol.Message) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := conn.WriteMessage(m); err != nil {
		return fmt.Errorf("write %s: %w", m.Type, err)
	}
	return nil
}

// SendMessage is Write that logs failures and reports success.
func (b *Bridge) SendMessage(m protocol.Message) bool {
	if err := b.Write(m); err != nil {
		if errors.Is(err, ErrNotConnected) {
			b.logger.Debug("not connected, dropping message", "type", m.Type)
		} else {
			b.logger.Warn("send failed", "type", m.Type, "error", err)
		}
		return false
	}
	return true
}

// Send wraps data as {type, data, timestamp} and sends it. It returns
// false without queuing while disconnected.
func (b *Bridge) Send(typ string, data any) bool {
	m, err := protocol.New(typ, data)
	if err != nil {
		b.logger.Warn("encode message", "type", typ, "error", err)
		return false
	}
	m.Timestamp = clock.NowMillis(b.clock)
	return b.SendMessage(m)
}
