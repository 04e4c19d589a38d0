// Package capture turns browser debugger events into log, error and
// network entries. It keeps its own in-memory collector, forwards each
// entry to the native host over a relay link and answers the host's
// queries from the collector.
package capture

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"

	"github.com/neboloop/chplg-devtools/internal/clock"
	"github.com/neboloop/chplg-devtools/internal/protocol"
	"github.com/neboloop/chplg-devtools/internal/relay"
	"github.com/neboloop/chplg-devtools/internal/store"
)

// DebuggerEvent is one event from an attached debugger session.
type DebuggerEvent struct {
	ExtensionID string          `json:"extensionId"`
	Method      string          `json:"method"`
	Params      json.RawMessage `json:"params"`
}

// Link is the outbound side of the host connection. *relay.Bridge
// implements it.
type Link interface {
	On(typ string, fn relay.Handler)
	OnConnect(fn func())
	Send(typ string, data any) bool
	SendMessage(m protocol.Message) bool
}

var _ Link = (*relay.Bridge)(nil)

// Agent is safe for concurrent use.
type Agent struct {
	link      Link
	collector *store.MemoryStore
	registry  *Registry
	clock     clock.Clock
	logger    *slog.Logger
	newID     func() string
}

// Option configures an Agent.
type Option func(*Agent)

// WithCollector replaces the default collector.
func WithCollector(c *store.MemoryStore) Option {
	return func(a *Agent) { a.collector = c }
}

func WithRegistry(r *Registry) Option {
	return func(a *Agent) { a.registry = r }
}

func WithClock(c clock.Clock) Option {
	return func(a *Agent) { a.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates an Agent and registers its query handlers and connect hook
// on link.
func New(link Link, opts ...Option) *Agent {
	a := &Agent{
		link:   link,
		clock:  clock.Real(),
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "capture")
	if a.registry == nil {
		a.registry = NewRegistry()
	}
	if a.collector == nil {
		a.collector = store.NewMemoryStore(
			store.WithLimits(store.CollectorLimits()),
			store.WithClock(a.clock),
			store.WithLogger(a.logger),
		)
	}

	for _, typ := range []string{
		protocol.TypeQueryLogs,
		protocol.TypeQueryErrors,
		protocol.TypeQueryStatus,
		protocol.TypeClearLogs,
	} {
		link.On(typ, a.HandleQuery)
	}
	link.OnConnect(func() {
		a.link.SendMessage(protocol.Message{Type: protocol.TypeInit, Version: protocol.Version})
	})
	return a
}

// Collector returns the agent's in-memory store.
func (a *Agent) Collector() *store.MemoryStore { return a.collector }

// Registry returns the extension name cache.
func (a *Agent) Registry() *Registry { return a.registry }

// Extension lifecycle notifications carried alongside debugger events.
// They feed the registry.
const (
	MethodExtensionsLoaded     = "Management.getAll"      // params: []ExtensionInfo
	MethodExtensionInstalled   = "Management.onInstalled" // params: ExtensionInfo
	MethodExtensionUninstalled = "Management.onUninstalled"
)

// HandleEvent applies one debugger event or extension lifecycle
// notification. Events of other domains are ignored.
func (a *Agent) HandleEvent(ev DebuggerEvent) error {
	switch ev.Method {
	case MethodExtensionsLoaded:
		var list []ExtensionInfo
		if err := decodeParams(ev, &list); err != nil {
			return err
		}
		a.registry.Load(list)
		return nil
	case MethodExtensionInstalled:
		var info ExtensionInfo
		if err := decodeParams(ev, &info); err != nil {
			return err
		}
		a.registry.Installed(info)
		return nil
	case MethodExtensionUninstalled:
		id := ev.ExtensionID
		if id == "" {
			if err := decodeParams(ev, &id); err != nil {
				return err
			}
		}
		a.registry.Uninstalled(id)
		return nil
	}

	switch cdproto.MethodType(ev.Method) {
	case cdproto.EventRuntimeConsoleAPICalled,
		cdproto.EventRuntimeExceptionThrown,
		cdproto.EventNetworkRequestWillBeSent,
		cdproto.EventNetworkResponseReceived,
		cdproto.EventNetworkLoadingFinished:
	default:
		a.logger.Debug("ignoring debugger event", "method", ev.Method)
		return nil
	}

	v, err := cdproto.UnmarshalMessage(&cdproto.Message{
		Method: cdproto.MethodType(ev.Method),
		Params: jsontext.Value(ev.Params),
	})
	if err != nil {
		return fmt.Errorf("%s: decode params: %w", ev.Method, err)
	}

	switch e := v.(type) {
	case *runtime.EventConsoleAPICalled:
		a.consoleAPICalled(ev.ExtensionID, e)

	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails == nil {
			return fmt.Errorf("%s: missing exceptionDetails", ev.Method)
		}
		a.exceptionThrown(ev.ExtensionID, e.ExceptionDetails)

	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return fmt.Errorf("%s: missing request", ev.Method)
		}
		a.collector.AddNetworkRequest(store.NetworkEntry{
			ID:             string(e.RequestID),
			Timestamp:      clock.NowMillis(a.clock),
			Method:         e.Request.Method,
			URL:            e.Request.URL,
			RequestHeaders: e.Request.Headers,
			ExtensionID:    ev.ExtensionID,
		})

	case *network.EventResponseReceived:
		if e.Response == nil {
			return fmt.Errorf("%s: missing response", ev.Method)
		}
		status := int(e.Response.Status)
		a.collector.UpdateNetworkRequest(string(e.RequestID), store.NetworkUpdate{
			Status:          &status,
			ResponseHeaders: e.Response.Headers,
		})

	case *network.EventLoadingFinished:
		if entry, ok := a.collector.CompleteNetworkRequest(string(e.RequestID)); ok {
			a.link.Send(protocol.TypeNetwork, entry)
		}
	}
	return nil
}

func decodeParams(ev DebuggerEvent, v any) error {
	if len(ev.Params) == 0 {
		return fmt.Errorf("%s: missing params", ev.Method)
	}
	if err := json.Unmarshal(ev.Params, v); err != nil {
		return fmt.Errorf("%s: decode params: %w", ev.Method, err)
	}
	return nil
}

func (a *Agent) consoleAPICalled(extensionID string, p *runtime.EventConsoleAPICalled) {
	entry := store.LogEntry{
		ID:            a.newID(),
		Timestamp:     clock.NowMillis(a.clock),
		Level:         consoleLevel(p.Type),
		Message:       formatArgs(p.Args),
		Source:        "unknown",
		ExtensionID:   extensionID,
		ExtensionName: a.registry.Name(extensionID),
	}
	if f, ok := topFrame(p.StackTrace); ok {
		if f.URL != "" {
			entry.Source = f.URL
		}
		line := int(f.LineNumber)
		entry.Line = &line
	}

	a.collector.AddLog(entry)
	a.link.Send(protocol.TypeLog, entry)
}

func (a *Agent) exceptionThrown(extensionID string, d *runtime.ExceptionDetails) {
	line := int(d.LineNumber)
	entry := store.ErrorEntry{
		LogEntry: store.LogEntry{
			ID:            a.newID(),
			Timestamp:     clock.NowMillis(a.clock),
			Level:         store.LevelError,
			Message:       d.Text,
			Source:        "unknown",
			Line:          &line,
			ExtensionID:   extensionID,
			ExtensionName: a.registry.Name(extensionID),
		},
		Type:  "Error",
		Stack: formatStackTrace(d.StackTrace),
	}
	if d.URL != "" {
		entry.Source = d.URL
	}
	if d.Exception != nil && d.Exception.ClassName != "" {
		entry.Type = d.Exception.ClassName
	}

	a.collector.AddError(entry)
	a.link.Send(protocol.TypeError, entry)
}

// consoleLevel maps a console API call type onto a store level.
func consoleLevel(t runtime.APIType) store.Level {
	switch t {
	case runtime.APITypeWarning:
		return store.LevelWarn
	case runtime.APITypeError, runtime.APITypeAssert:
		return store.LevelError
	case runtime.APITypeDebug, runtime.APITypeTrace:
		return store.LevelDebug
	default:
		return store.LevelInfo
	}
}
