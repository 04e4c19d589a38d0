package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/neboloop/chplg-devtools/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the collected data over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd.Context())
		},
	}
}

func runMCP(ctx context.Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	srv := mcp.NewServer(st, mcp.WithMaxLine(ServerConfig.MCP.MaxLine))
	return srv.Serve(ctx, os.Stdin, os.Stdout)
}
