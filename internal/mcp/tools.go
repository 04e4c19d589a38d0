package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/neboloop/chplg-devtools/internal/store"
)

const (
	defaultLogsLimit    = 50
	defaultErrorsLimit  = 20
	defaultNetworkLimit = 50
)

type tool struct {
	def *mcp.Tool
	run func(ctx context.Context, args json.RawMessage) (any, error)
}

// argumentError marks arguments that could not be decoded.
type argumentError struct{ err error }

func (e *argumentError) Error() string { return "Invalid arguments: " + e.err.Error() }
func (e *argumentError) Unwrap() error { return e.err }

func decodeArgs(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(v); err != nil {
		return &argumentError{err: err}
	}
	return nil
}

// limitArg is a positive count. Zero or negative means "use the default".
type limitArg float64

func (l limitArg) or(def int) int {
	if l <= 0 || math.IsNaN(float64(l)) {
		return def
	}
	return int(l)
}

type logsArgs struct {
	Level       store.LevelList  `json:"level"`
	Limit       limitArg         `json:"limit"`
	Since       store.SinceValue `json:"since"`
	Search      string           `json:"search"`
	ExtensionID string           `json:"extensionId"`
}

type errorsArgs struct {
	Limit       limitArg         `json:"limit"`
	Since       store.SinceValue `json:"since"`
	Search      string           `json:"search"`
	ExtensionID string           `json:"extensionId"`
}

type networkArgs struct {
	URLPattern  string           `json:"urlPattern"`
	Limit       limitArg         `json:"limit"`
	Since       store.SinceValue `json:"since"`
	ExtensionID string           `json:"extensionId"`
}

type clearResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func objectSchema(props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func numberProp(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

var (
	extensionIDProp = stringProp("Filter by extension ID")
	sinceProp       = stringProp(`Time filter, e.g. "5m", "1h", "30s", or epoch milliseconds`)
)

func (s *Server) registerTools() []tool {
	return []tool{
		{
			def: &mcp.Tool{
				Name:        "get_logs",
				Description: "Get console logs from monitored Chrome extensions",
				InputSchema: objectSchema(map[string]any{
					"level": map[string]any{
						"type":        "string",
						"enum":        []string{"debug", "info", "warn", "error"},
						"description": "Filter by log level",
					},
					"limit":       numberProp(fmt.Sprintf("Maximum number of logs to return (default: %d)", defaultLogsLimit)),
					"since":       sinceProp,
					"search":      stringProp("Search in log messages and sources"),
					"extensionId": extensionIDProp,
				}),
			},
			run: s.getLogs,
		},
		{
			def: &mcp.Tool{
				Name:        "get_errors",
				Description: "Get errors from monitored Chrome extensions",
				InputSchema: objectSchema(map[string]any{
					"limit":       numberProp(fmt.Sprintf("Maximum number of errors to return (default: %d)", defaultErrorsLimit)),
					"since":       sinceProp,
					"search":      stringProp("Search in error messages and sources"),
					"extensionId": extensionIDProp,
				}),
			},
			run: s.getErrors,
		},
		{
			def: &mcp.Tool{
				Name:        "get_network",
				Description: "Get network requests from monitored Chrome extensions",
				InputSchema: objectSchema(map[string]any{
					"urlPattern":  stringProp("Filter by URL pattern (regex, case-insensitive)"),
					"limit":       numberProp(fmt.Sprintf("Maximum number of requests to return (default: %d)", defaultNetworkLimit)),
					"since":       sinceProp,
					"extensionId": extensionIDProp,
				}),
			},
			run: s.getNetwork,
		},
		{
			def: &mcp.Tool{
				Name:        "get_status",
				Description: "Get DevTools connection status and statistics",
				InputSchema: objectSchema(map[string]any{}),
			},
			run: func(context.Context, json.RawMessage) (any, error) {
				return s.store.GetStatus(), nil
			},
		},
		{
			def: &mcp.Tool{
				Name:        "clear_logs",
				Description: "Clear all collected logs and errors",
				InputSchema: objectSchema(map[string]any{}),
			},
			run: func(context.Context, json.RawMessage) (any, error) {
				s.store.ClearLogs()
				return clearResult{Success: true, Message: "Logs cleared"}, nil
			},
		},
		{
			def: &mcp.Tool{
				Name:        "clear_all",
				Description: "Clear all collected logs, errors and network requests",
				InputSchema: objectSchema(map[string]any{}),
			},
			run: func(context.Context, json.RawMessage) (any, error) {
				s.store.ClearAll()
				return clearResult{Success: true, Message: "All data cleared"}, nil
			},
		},
	}
}

func (s *Server) getLogs(_ context.Context, raw json.RawMessage) (any, error) {
	var args logsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.store.GetLogs(store.Filter{
		Levels:      args.Level,
		Since:       string(args.Since),
		Search:      args.Search,
		ExtensionID: args.ExtensionID,
		Limit:       args.Limit.or(defaultLogsLimit),
	}), nil
}

func (s *Server) getErrors(_ context.Context, raw json.RawMessage) (any, error) {
	var args errorsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.store.GetErrors(store.Filter{
		Since:       string(args.Since),
		Search:      args.Search,
		ExtensionID: args.ExtensionID,
		Limit:       args.Limit.or(defaultErrorsLimit),
	}), nil
}

func (s *Server) getNetwork(_ context.Context, raw json.RawMessage) (any, error) {
	var args networkArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.store.GetNetworkRequests(store.Filter{
		URLPattern:  args.URLPattern,
		Since:       string(args.Since),
		ExtensionID: args.ExtensionID,
		Limit:       args.Limit.or(defaultNetworkLimit),
	})
}
