package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/neboloop/chplg-devtools/internal/capture"
	"github.com/neboloop/chplg-devtools/internal/logging"
	"github.com/neboloop/chplg-devtools/internal/mcp"
	"github.com/neboloop/chplg-devtools/internal/relay"
	"github.com/neboloop/chplg-devtools/internal/store"
)

func newRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the capture agent on debugger events read from stdin",
		Long: `Read debugger events as line-delimited JSON from stdin, one
{"extensionId", "method", "params"} object per line, and forward the
resulting logs, errors and network requests to a native host.

The host is reached over WebSocket with --url, or started as a child
process with --host-cmd.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dialer, err := relayDialer()
			if err != nil {
				return err
			}
			return runRelay(cmd.Context(), dialer, os.Stdin)
		},
	}
	cmd.Flags().StringVar(&relayURL, "url", "", "host WebSocket endpoint, e.g. ws://127.0.0.1:9222/extension")
	cmd.Flags().StringVar(&hostCmd, "host-cmd", "", "native host binary to spawn over stdio")
	return cmd
}

func relayDialer() (relay.Dialer, error) {
	url, path := relayURL, hostCmd
	if url == "" && path == "" {
		url, path = ServerConfig.Relay.URL, ServerConfig.Relay.HostCmd
	}
	switch {
	case url != "":
		return relay.WebSocketDialer{URL: url}, nil
	case path != "":
		return relay.ProcessDialer{Path: path, Args: []string{"host"}}, nil
	}
	return nil, errors.New("no host to relay to: set --url or --host-cmd")
}

func runRelay(ctx context.Context, dialer relay.Dialer, in io.Reader) error {
	bridge := relay.NewBridge(dialer,
		relay.WithReconnectDelay(ServerConfig.Relay.ReconnectDelay),
		relay.WithMaxAttempts(ServerConfig.Relay.MaxAttempts),
	)
	defer bridge.Close()

	collector := store.NewMemoryStore(store.WithLimits(ServerConfig.Collector))
	agent := capture.New(bridge, capture.WithCollector(collector))

	bridge.OnStateChange(func(s relay.State) {
		logging.Infof("host link %s", s)
	})
	if err := bridge.Connect(ctx); err != nil {
		logging.Warnf("initial connect failed, events are kept locally: %v", err)
	}

	lines := make(chan mcp.Line)
	readErr := make(chan error, 1)
	go func() {
		dec := mcp.NewLineDecoder(ServerConfig.MCP.MaxLine)
		buf := make([]byte, 32*1024)
		for {
			n, err := in.Read(buf)
			out := dec.Feed(buf[:n])
			if err != nil {
				out = append(out, dec.Flush()...)
			}
			for _, line := range out {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if line.TooLong {
				logging.Warnf("skipping event line over %d bytes", ServerConfig.MCP.MaxLine)
				continue
			}
			var ev capture.DebuggerEvent
			if err := json.Unmarshal(line.Data, &ev); err != nil {
				logging.Warnf("skipping malformed event: %v", err)
				continue
			}
			if err := agent.HandleEvent(ev); err != nil {
				logging.Warnf("skipping event: %v", err)
			}
		}
	}
}
