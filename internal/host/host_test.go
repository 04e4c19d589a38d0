package host

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/chplg-devtools/internal/framing"
	"github.com/neboloop/chplg-devtools/internal/protocol"
	"github.com/neboloop/chplg-devtools/internal/store"
)

// extension is the browser side of a stdio link.
type extension struct {
	r  *framing.Reader
	w  *framing.Writer
	in *io.PipeWriter // host stdin
}

func (e *extension) send(t *testing.T, typ string, data any) {
	t.Helper()
	m, err := protocol.New(typ, data)
	require.NoError(t, err)
	require.NoError(t, e.w.Write(m))
}

func (e *extension) recv(t *testing.T) protocol.Message {
	t.Helper()
	raw, err := e.r.Next()
	require.NoError(t, err)
	m, err := protocol.Decode(raw)
	require.NoError(t, err)
	return m
}

// startStdio serves h over pipes and returns the extension end plus a
// channel carrying ServeStdio's result.
func startStdio(t *testing.T, h *Host) (*extension, <-chan error) {
	t.Helper()
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- h.ServeStdio(context.Background(), stdinR, stdoutW)
		stdoutW.Close()
	}()
	t.Cleanup(func() { stdinW.Close() })

	return &extension{
		r:  framing.NewReader(stdoutR, nil),
		w:  framing.NewWriter(stdinW),
		in: stdinW,
	}, done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}

func TestInitAck(t *testing.T) {
	st := store.NewMemoryStore()
	h := New(st)
	ext, _ := startStdio(t, h)

	require.NoError(t, ext.w.Write(protocol.Message{Type: protocol.TypeInit, Version: "1.0.0"}))
	ack := ext.recv(t)
	assert.Equal(t, protocol.TypeInitAck, ack.Type)
	assert.Equal(t, protocol.Version, ack.Version)

	status := st.GetStatus()
	assert.True(t, status.ExtensionConnected)
	assert.NotNil(t, status.LastMessageTime)
}

func TestIngestIntoStore(t *testing.T) {
	st := store.NewMemoryStore()
	h := New(st)
	ext, done := startStdio(t, h)

	ext.send(t, protocol.TypeLog, map[string]any{
		"id": "l1", "timestamp": 1, "level": "warning", "message": "slow", "source": "bg.js", "extensionId": "abc",
	})
	ext.send(t, protocol.TypeLog, map[string]any{
		"id": "l2", "timestamp": 2, "level": "error", "message": "boom", "source": "bg.js", "extensionId": "abc",
	})
	ext.send(t, protocol.TypeError, map[string]any{
		"id": "e1", "timestamp": 3, "message": "Uncaught", "type": "TypeError", "stack": "    at f (bg.js:1:1)",
	})
	ext.send(t, protocol.TypeNetwork, map[string]any{
		"id": "n1", "timestamp": 4, "method": "GET", "url": "https://x", "status": 200, "duration": 12,
	})
	ext.send(t, "SOMETHING_ELSE", nil)

	ext.in.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ServeStdio did not return on EOF")
	}

	logs := st.GetLogs(store.Filter{})
	require.Len(t, logs, 2)
	assert.Equal(t, store.LevelWarn, logs[0].Level)

	errs := st.GetErrors(store.Filter{})
	require.Len(t, errs, 2)
	assert.Equal(t, "l2", errs[0].ID)
	assert.Equal(t, "TypeError", errs[1].Type)
	assert.Equal(t, store.LevelError, errs[1].Level)

	net, err := st.GetNetworkRequests(store.Filter{})
	require.NoError(t, err)
	require.Len(t, net, 1)
	assert.EqualValues(t, 12, *net[0].Duration)

	assert.False(t, st.GetStatus().ExtensionConnected, "EOF marks the extension disconnected")
	assert.False(t, h.Connected())
}

func TestMalformedFrameDoesNotStopHost(t *testing.T) {
	st := store.NewMemoryStore()
	h := New(st)
	ext, _ := startStdio(t, h)

	bad, err := framing.EncodeRaw([]byte(`{"type":`))
	require.NoError(t, err)
	_, err = ext.in.Write(bad)
	require.NoError(t, err)

	require.NoError(t, ext.w.Write(protocol.Message{Type: protocol.TypeInit}))
	assert.Equal(t, protocol.TypeInitAck, ext.recv(t).Type)
}

func TestQueryCorrelation(t *testing.T) {
	h := New(store.NewMemoryStore())
	ext, _ := startStdio(t, h)
	waitFor(t, h.Connected)

	go func() {
		for {
			raw, err := ext.r.Next()
			if err != nil {
				return
			}
			q, err := protocol.Decode(raw)
			if err != nil {
				continue
			}
			resultType, _ := protocol.ResultTypeFor(q.Type)
			// An unrelated reply first; it must not satisfy the query.
			_ = ext.w.Write(protocol.Message{Type: resultType, RequestID: "someone-else"})
			reply, _ := protocol.New(resultType, q.Params)
			reply.RequestID = q.RequestID
			_ = ext.w.Write(reply)
		}
	}()

	reply, err := h.Query(context.Background(), protocol.TypeQueryLogs, map[string]any{"limit": 3})
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeLogsResult, reply.Type)
	assert.JSONEq(t, `{"limit":3}`, string(reply.Data))
	assert.Zero(t, h.PendingQueries())
}

func TestQueryTimeout(t *testing.T) {
	h := New(store.NewMemoryStore(), WithQueryTimeout(30*time.Millisecond))
	ext, _ := startStdio(t, h)
	waitFor(t, h.Connected)

	go func() {
		for {
			if _, err := ext.r.Next(); err != nil {
				return
			}
		}
	}()

	_, err := h.Query(context.Background(), protocol.TypeQueryStatus, nil)
	assert.ErrorIs(t, err, ErrQueryTimeout)
	assert.Zero(t, h.PendingQueries())
}

func TestQueryWithoutPeer(t *testing.T) {
	h := New(store.NewMemoryStore())
	_, err := h.Query(context.Background(), protocol.TypeQueryLogs, nil)
	assert.ErrorIs(t, err, ErrNoPeer)
}

func TestQueryRejectsNonQueryType(t *testing.T) {
	h := New(store.NewMemoryStore())
	_, err := h.Query(context.Background(), protocol.TypeLog, nil)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoPeer))
}

func TestQueryRejectedWhenPeerLeaves(t *testing.T) {
	h := New(store.NewMemoryStore())
	ext, _ := startStdio(t, h)
	waitFor(t, h.Connected)

	go func() {
		// Read the query, then hang up without answering.
		_, _ = ext.r.Next()
		ext.in.Close()
	}()

	_, err := h.Query(context.Background(), protocol.TypeClearLogs, nil)
	assert.ErrorIs(t, err, ErrNoPeer)
}

func peerCount(h *Host) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func TestQueryFailsWhenReplacedPeerLeaves(t *testing.T) {
	h := New(store.NewMemoryStore())
	older, _ := startStdio(t, h)
	waitFor(t, func() bool { return peerCount(h) == 1 })

	asked := make(chan struct{})
	go func() {
		_, _ = older.r.Next()
		close(asked)
	}()

	errc := make(chan error, 1)
	go func() {
		_, err := h.Query(context.Background(), protocol.TypeQueryStatus, nil)
		errc <- err
	}()
	<-asked

	newer, _ := startStdio(t, h)
	waitFor(t, func() bool { return peerCount(h) == 2 })
	go func() {
		for {
			if _, err := newer.r.Next(); err != nil {
				return
			}
		}
	}()

	older.in.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrNoPeer)
	case <-time.After(2 * time.Second):
		t.Fatal("query to the departed peer was not failed")
	}
	assert.Zero(t, h.PendingQueries())
	assert.True(t, h.Connected())
}

func TestStoreStaysConnectedWhileAPeerRemains(t *testing.T) {
	st := store.NewMemoryStore()
	h := New(st)
	older, _ := startStdio(t, h)
	waitFor(t, func() bool { return peerCount(h) == 1 })
	newer, newerDone := startStdio(t, h)
	waitFor(t, func() bool { return peerCount(h) == 2 })

	newer.in.Close()
	require.NoError(t, <-newerDone)

	waitFor(t, func() bool { return peerCount(h) == 1 })
	assert.True(t, st.GetStatus().ExtensionConnected, "older link is still attached")

	go func() {
		raw, err := older.r.Next()
		if err != nil {
			return
		}
		q, _ := protocol.Decode(raw)
		reply, _ := protocol.New(protocol.TypeStatusResult, map[string]int{"logsCount": 1})
		reply.RequestID = q.RequestID
		_ = older.w.Write(reply)
	}()
	reply, err := h.Query(context.Background(), protocol.TypeQueryStatus, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeStatusResult, reply.Type)

	older.in.Close()
	waitFor(t, func() bool { return !st.GetStatus().ExtensionConnected })
}

func TestStatusResultPassesThroughData(t *testing.T) {
	payload, _ := json.Marshal(map[string]int{"logsCount": 4})
	m := protocol.Message{Type: protocol.TypeStatusResult, RequestID: "x", Data: payload}
	h := New(store.NewMemoryStore())

	ch := make(chan queryResult, 1)
	h.pending["x"] = pendingQuery{ch: ch}
	h.HandleMessage(nil, m)

	res := <-ch
	assert.JSONEq(t, `{"logsCount":4}`, string(res.msg.Data))
}
