package host

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/chplg-devtools/internal/protocol"
	"github.com/neboloop/chplg-devtools/internal/relay"
	"github.com/neboloop/chplg-devtools/internal/store"
)

func dialExtension(t *testing.T, srv *httptest.Server) relay.Conn {
	t.Helper()
	d := relay.WebSocketDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/extension"}
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestWebSocketLink(t *testing.T) {
	st := store.NewMemoryStore()
	h := New(st)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	conn := dialExtension(t, srv)
	require.NoError(t, conn.WriteMessage(protocol.Message{Type: protocol.TypeInit, Version: "1.0.0"}))

	raw, err := conn.ReadMessage()
	require.NoError(t, err)
	ack, err := protocol.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeInitAck, ack.Type)

	m, err := protocol.New(protocol.TypeLog, store.LogEntry{ID: "1", Level: "log", Message: "hello"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(m))
	require.Eventually(t, func() bool { return len(st.GetLogs(store.Filter{})) == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, store.LevelInfo, st.GetLogs(store.Filter{})[0].Level)

	var status statusResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/extension/status", &status))
	assert.True(t, status.Connected)
	assert.True(t, status.Store.ExtensionConnected)
	assert.Equal(t, 1, status.Store.LogsCount)

	conn.Close()
	require.Eventually(t, func() bool { return !h.Connected() }, 2*time.Second, time.Millisecond)
	assert.False(t, st.GetStatus().ExtensionConnected)
}

func TestQueryEndpoint(t *testing.T) {
	h := New(store.NewMemoryStore())
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	conn := dialExtension(t, srv)
	require.Eventually(t, h.Connected, 2*time.Second, time.Millisecond)

	go func() {
		for {
			raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			q, err := protocol.Decode(raw)
			if err != nil || q.Type != protocol.TypeQueryLogs {
				continue
			}
			var p map[string]any
			_ = q.DecodeParams(&p)
			reply, _ := protocol.New(protocol.TypeLogsResult, []map[string]any{{"id": "x", "params": p}})
			reply.RequestID = q.RequestID
			_ = conn.WriteMessage(reply)
		}
	}()

	var reply protocol.Message
	code := getJSON(t, srv.URL+"/query/logs?level=error&limit=5", &reply)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, protocol.TypeLogsResult, reply.Type)
	assert.JSONEq(t, `[{"id":"x","params":{"level":"error","limit":5}}]`, string(reply.Data))
}

func TestQueryEndpointErrors(t *testing.T) {
	h := New(store.NewMemoryStore())
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/query/bogus", nil))
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/query/status", nil))
}

func TestRejectsForeignOrigin(t *testing.T) {
	h := New(store.NewMemoryStore())
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	d := relay.WebSocketDialer{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/extension",
		Header: http.Header{"Origin": []string{"https://evil.example"}},
	}
	_, err := d.Dial(context.Background())
	assert.Error(t, err)
	assert.False(t, h.Connected())
}

func TestServeStopsOnCancel(t *testing.T) {
	h := New(store.NewMemoryStore())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/extension/status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServeCancelEndsWebSocketLinks(t *testing.T) {
	st := store.NewMemoryStore()
	h := New(st)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx, ln) }()

	d := relay.WebSocketDialer{URL: "ws://" + ln.Addr().String() + "/extension"}
	var conn relay.Conn
	require.Eventually(t, func() bool {
		conn, err = d.Dial(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()
	require.Eventually(t, h.Connected, 2*time.Second, time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !h.Connected() }, 2*time.Second, time.Millisecond)
	assert.False(t, st.GetStatus().ExtensionConnected)
	_, err = conn.ReadMessage()
	assert.Error(t, err, "the server side closed the link")
	require.NoError(t, <-done)
}
