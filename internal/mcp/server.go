// Package mcp serves the captured logs, errors and network requests to an
// AI assistant as MCP tools, speaking newline-delimited JSON-RPC over a
// pair of streams.
//
// The request loop is written here rather than using the go-sdk server and
// its stdio transport: an unknown tool must answer -32602, handler failures
// -32603 with the handler's message, and malformed or oversized lines a
// parse error with a null id. The go-sdk payload types still shape every
// result.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/neboloop/chplg-devtools/internal/store"
)

const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "chplg-devtools"
	ServerVersion   = "1.0.0"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

type request struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("%d: %s", e.Code, e.Message) }

var nullID = json.RawMessage("null")

// Server answers MCP requests from a store.
type Server struct {
	store   store.Store
	logger  *slog.Logger
	maxLine int
	tools   []tool
	byName  map[string]tool
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMaxLine overrides DefaultMaxLine.
func WithMaxLine(n int) Option {
	return func(s *Server) { s.maxLine = n }
}

// NewServer returns a Server backed by st.
func NewServer(st store.Store, opts ...Option) *Server {
	s := &Server{
		store:  st,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "mcp")
	s.tools = s.registerTools()
	s.byName = make(map[string]tool, len(s.tools))
	for _, t := range s.tools {
		s.byName[t.def.Name] = t
	}
	return s
}

// Serve reads requests from in and writes responses to out until in is
// exhausted, which returns nil, or ctx is canceled.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	w := bufio.NewWriter(out)
	var writeMu sync.Mutex
	emit := func(resp []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := w.Write(append(resp, '\n')); err != nil {
			return err
		}
		return w.Flush()
	}

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				select {
				case chunks <- append([]byte(nil), buf[:n]...):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	handle := func(lines []Line) error {
		for _, line := range lines {
			var resp []byte
			if line.TooLong {
				s.logger.Warn("discarded oversized request line")
				resp = s.errorResponse(nullID, CodeParseError, "Parse error: line too long")
			} else {
				resp = s.HandleLine(ctx, line.Data)
			}
			if resp == nil {
				continue
			}
			if err := emit(resp); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
		return nil
	}

	dec := NewLineDecoder(s.maxLine)
	s.logger.Info("mcp server started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("read requests: %w", err)
			}
			s.logger.Info("input closed, stopping")
			return handle(dec.Flush())
		case chunk := <-chunks:
			if err := handle(dec.Feed(chunk)); err != nil {
				return err
			}
		}
	}
}

// HandleLine processes one request line and returns the encoded response,
// or nil for notifications.
func (s *Server) HandleLine(ctx context.Context, line []byte) []byte {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Warn("unparseable request", "error", err)
		return s.errorResponse(nullID, CodeParseError, "Parse error")
	}

	isNotification := len(req.ID) == 0 || strings.HasPrefix(req.Method, "notifications/")
	result, rerr := s.dispatch(ctx, req)
	if isNotification {
		if rerr != nil {
			s.logger.Debug("notification failed", "method", req.Method, "error", rerr)
		}
		return nil
	}
	if rerr != nil {
		return s.errorResponse(req.ID, rerr.Code, rerr.Message)
	}
	return s.encode(response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (s *Server) dispatch(ctx context.Context, req request) (result any, rerr *rpcError) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic handling request", "method", req.Method, "panic", r)
			result, rerr = nil, &rpcError{Code: CodeInternalError, Message: fmt.Sprint(r)}
		}
	}()

	switch req.Method {
	case "initialize":
		return s.initialize(), nil
	case "ping":
		return struct{}{}, nil
	case "tools/list":
		return s.listTools(), nil
	case "tools/call":
		return s.callTool(ctx, req.Params)
	case "notifications/initialized":
		return nil, nil
	}
	if strings.HasPrefix(req.Method, "notifications/") {
		return nil, nil
	}
	return nil, &rpcError{Code: CodeMethodNotFound, Message: "Method not found: " + req.Method}
}

func (s *Server) initialize() *mcp.InitializeResult {
	return &mcp.InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      &mcp.Implementation{Name: ServerName, Version: ServerVersion},
		Capabilities:    &mcp.ServerCapabilities{Tools: &mcp.ToolCapabilities{}},
	}
}

func (s *Server) listTools() *mcp.ListToolsResult {
	defs := make([]*mcp.Tool, len(s.tools))
	for i, t := range s.tools {
		defs[i] = t.def
	}
	return &mcp.ListToolsResult{Tools: defs}
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, *rpcError) {
	var p callParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &rpcError{Code: CodeInvalidParams, Message: "Invalid params: " + err.Error()}
		}
	}
	t, ok := s.byName[p.Name]
	if !ok {
		return nil, &rpcError{Code: CodeInvalidParams, Message: "Unknown tool: " + p.Name}
	}

	args := p.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	out, err := t.run(ctx, args)
	if err != nil {
		var argErr *argumentError
		if errors.As(err, &argErr) {
			return nil, &rpcError{Code: CodeInvalidParams, Message: err.Error()}
		}
		s.logger.Warn("tool failed", "tool", p.Name, "error", err)
		return nil, &rpcError{Code: CodeInternalError, Message: err.Error()}
	}

	text, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, &rpcError{Code: CodeInternalError, Message: err.Error()}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
	}, nil
}

func (s *Server) errorResponse(id json.RawMessage, code int, msg string) []byte {
	return s.encode(response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}})
}

func (s *Server) encode(r response) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		s.logger.Error("encode response", "error", err)
		data, _ = json.Marshal(response{
			JSONRPC: "2.0",
			ID:      r.ID,
			Error:   &rpcError{Code: CodeInternalError, Message: err.Error()},
		})
	}
	return data
}
