package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/neboloop/chplg-devtools/internal/framing"
	"github.com/neboloop/chplg-devtools/internal/protocol"
)

const writeWait = 10 * time.Second

// WebSocketDialer connects to a host listening on a WebSocket endpoint.
// Each binary message carries one length-prefixed frame.
type WebSocketDialer struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

func (d WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", d.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return NewWebSocketConn(ws), nil
}

// WebSocketConn adapts a gorilla connection to Conn. It is used on both
// ends: by WebSocketDialer and by the host's listener.
type WebSocketConn struct {
	ws      *websocket.Conn
	dec     *framing.Decoder
	pending []framing.Result
	writeMu sync.Mutex
}

// NewWebSocketConn wraps ws.
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws, dec: framing.NewDecoder()}
}

// ReadMessage returns the next payload. Text messages are taken as bare
// JSON.
func (c *WebSocketConn) ReadMessage() (json.RawMessage, error) {
	for len(c.pending) == 0 {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		switch kind {
		case websocket.BinaryMessage:
			c.pending = append(c.pending, c.dec.Feed(data)...)
		case websocket.TextMessage:
			if !json.Valid(data) {
				return nil, &framing.PayloadError{Payload: data, Err: fmt.Errorf("malformed JSON")}
			}
			return data, nil
		}
	}
	next := c.pending[0]
	c.pending = c.pending[1:]
	return next.Payload, next.Err
}

func (c *WebSocketConn) WriteMessage(m protocol.Message) error {
	frame, err := framing.Encode(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *WebSocketConn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}
