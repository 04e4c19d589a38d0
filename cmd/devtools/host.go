package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/neboloop/chplg-devtools/internal/host"
	"github.com/neboloop/chplg-devtools/internal/logging"
)

func newHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run the native messaging host",
		Long: `Read framed messages from the extension on stdin and write them to the
shared store. With --listen, capture agents may also connect over
WebSocket and live queries are served on the same address.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := listenAddr
			if addr == "" {
				addr = ServerConfig.Host.Listen
			}
			return runHost(cmd.Context(), addr, serveStdio)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "loopback address for WebSocket peers, e.g. 127.0.0.1:9222")
	cmd.Flags().BoolVar(&serveStdio, "stdio", true, "serve the native messaging pipe on stdin/stdout")
	return cmd
}

func runHost(ctx context.Context, addr string, stdio bool) error {
	if !stdio && addr == "" {
		return errors.New("nothing to serve: enable --stdio or set --listen")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	h := host.New(st, host.WithQueryTimeout(ServerConfig.Host.QueryTimeout))
	logging.Infof("native host started, store at %s", st.Path())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listenErr := make(chan error, 1)
	if addr != "" {
		go func() {
			listenErr <- h.ListenAndServe(ctx, addr)
			cancel()
		}()
	}

	if !stdio {
		return <-listenErr
	}
	if err := h.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil {
		return err
	}
	cancel()
	if addr != "" {
		return <-listenErr
	}
	return nil
}
