package cli

import (
	"github.com/neboloop/chplg-devtools/internal/config"
)

// Shared CLI flags (used across multiple command files)
var (
	cfgFile    string
	verbose    bool
	mcpMode    bool
	listenAddr string
	serveStdio bool
	clearAll   bool
	tailErrors bool
	tailLines  int
	relayURL   string
	hostCmd    string
)

// ServerConfig holds the loaded configuration (set by main, replaced when
// --config is given)
var ServerConfig *config.Config
