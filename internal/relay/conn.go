package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/neboloop/chplg-devtools/internal/framing"
	"github.com/neboloop/chplg-devtools/internal/protocol"
)

// Conn is one established link to the peer.
//
// ReadMessage returns the next JSON payload. A *framing.PayloadError only
// loses that message; any other error means the link is gone.
type Conn interface {
	ReadMessage() (json.RawMessage, error)
	WriteMessage(protocol.Message) error
	Close() error
}

// Dialer opens a new Conn.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// streamConn speaks length-prefixed frames over a reader and writer.
type streamConn struct {
	r *framing.Reader
	w *framing.Writer

	closeOnce sync.Once
	closeErr  error
	closer    func() error
}

// NewStreamConn frames messages over r and w. closer runs once on Close.
func NewStreamConn(r io.Reader, w io.Writer, closer func() error, logger *slog.Logger) Conn {
	return &streamConn{
		r:      framing.NewReader(r, logger),
		w:      framing.NewWriter(w),
		closer: closer,
	}
}

func (c *streamConn) ReadMessage() (json.RawMessage, error) { return c.r.Next() }

func (c *streamConn) WriteMessage(m protocol.Message) error { return c.w.Write(m) }

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		if c.closer != nil {
			c.closeErr = c.closer()
		}
	})
	return c.closeErr
}
