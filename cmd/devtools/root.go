package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neboloop/chplg-devtools/internal/config"
	"github.com/neboloop/chplg-devtools/internal/defaults"
	"github.com/neboloop/chplg-devtools/internal/logging"
	"github.com/neboloop/chplg-devtools/internal/store"
)

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(c *config.Config) *cobra.Command {
	ServerConfig = c

	rootCmd := &cobra.Command{
		Use:   "chplg-devtools",
		Short: "Browser extension debugging relay",
		Long: `chplg-devtools collects console logs, exceptions and network requests from
browser extensions and serves them to AI coding assistants.

Run without a subcommand it is the native messaging host the browser
launches. Use --mcp (or the mcp subcommand) to serve the collected data
over MCP on stdio.`,
		// The browser passes the caller origin and window handle as
		// positional args and flags of its own.
		Args:               cobra.ArbitraryArgs,
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		SilenceUsage:       true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if mcpMode {
				return runMCP(cmd.Context())
			}
			return runHost(cmd.Context(), "", true)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <data dir>/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.Flags().BoolVar(&mcpMode, "mcp", false, "serve MCP on stdio instead of running the native host")

	rootCmd.AddCommand(
		newHostCmd(),
		newMCPCmd(),
		newStatusCmd(),
		newClearCmd(),
		newTailCmd(),
		newRelayCmd(),
	)
	return rootCmd
}

// initConfig applies --config and sets up logging on stderr.
func initConfig() error {
	if cfgFile != "" {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		*ServerConfig = c
	}

	level := ServerConfig.Log.Level
	if verbose {
		level = "debug"
	}
	_, err := logging.Setup(os.Stderr, level, ServerConfig.Log.Format)
	return err
}

// openStore opens the shared on-disk store, installing the default
// config.yaml into the data dir on first use.
func openStore() (*store.FileStore, error) {
	dir, err := ServerConfig.ResolveDataDir()
	if err != nil {
		return nil, err
	}
	if err := defaults.EnsureDir(dir); err != nil {
		return nil, err
	}
	path, err := ServerConfig.DataFile()
	if err != nil {
		return nil, err
	}
	st, err := store.NewFileStore(path, store.WithLimits(ServerConfig.Store))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}
