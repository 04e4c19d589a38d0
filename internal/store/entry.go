package store

// Level is a console severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// NormalizeLevel maps console API call types onto Level. Unknown types
// are info.
func NormalizeLevel(consoleType string) Level {
	switch consoleType {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error", "assert":
		return LevelError
	}
	return LevelInfo
}

// LogEntry is one console message. Entries are never modified after insert.
type LogEntry struct {
	ID            string `json:"id"`
	Timestamp     int64  `json:"timestamp"`
	Level         Level  `json:"level"`
	Message       string `json:"message"`
	Source        string `json:"source"`
	Line          *int   `json:"line,omitempty"`
	ExtensionID   string `json:"extensionId"`
	ExtensionName string `json:"extensionName,omitempty"`
}

// ErrorEntry is a LogEntry with exception details. Error-level logs are
// mirrored into the error collection without Type or Stack.
type ErrorEntry struct {
	LogEntry
	Type  string `json:"type,omitempty"`
	Stack string `json:"stack,omitempty"`
}

// NetworkEntry tracks one request from request-sent to loading-finished.
type NetworkEntry struct {
	ID              string         `json:"id"`
	Timestamp       int64          `json:"timestamp"`
	Method          string         `json:"method"`
	URL             string         `json:"url"`
	RequestHeaders  map[string]any `json:"requestHeaders,omitempty"`
	Status          *int           `json:"status,omitempty"`
	ResponseHeaders map[string]any `json:"responseHeaders,omitempty"`
	Duration        *int64         `json:"duration,omitempty"`
	ExtensionID     string         `json:"extensionId"`
}

// NetworkUpdate carries the fields known once a response arrives. Nil
// fields are left unchanged.
type NetworkUpdate struct {
	Status          *int
	ResponseHeaders map[string]any
}

// Stats are running counters. ClearLogs resets the log and error totals
// and ClearAll resets all three.
type Stats struct {
	TotalLogs            int64 `json:"totalLogs"`
	TotalErrors          int64 `json:"totalErrors"`
	TotalNetworkRequests int64 `json:"totalNetworkRequests"`
	StartTime            int64 `json:"startTime"`
}

// StatusStats is Stats plus uptime in milliseconds.
type StatusStats struct {
	Stats
	Uptime int64 `json:"uptime"`
}

// Status is the answer to GetStatus.
type Status struct {
	ExtensionConnected     bool        `json:"extensionConnected"`
	LastMessageTime        *int64      `json:"lastMessageTime"`
	LogsCount              int         `json:"logsCount"`
	ErrorsCount            int         `json:"errorsCount"`
	NetworkRequestsCount   int         `json:"networkRequestsCount"`
	PendingNetworkRequests int         `json:"pendingNetworkRequests"`
	Stats                  StatusStats `json:"stats"`
}

// Limits caps each collection. Pending network requests are not capped.
type Limits struct {
	Logs    int `yaml:"logs"`
	Errors  int `yaml:"errors"`
	Network int `yaml:"network"`
}

// DurableLimits are the defaults for the shared on-disk store.
func DurableLimits() Limits {
	return Limits{Logs: 2000, Errors: 500, Network: 1000}
}

// CollectorLimits are the defaults for the in-memory collector.
func CollectorLimits() Limits {
	return Limits{Logs: 1000, Errors: 100, Network: 500}
}

// orDefault fills zero fields from def.
func (l Limits) orDefault(def Limits) Limits {
	if l.Logs <= 0 {
		l.Logs = def.Logs
	}
	if l.Errors <= 0 {
		l.Errors = def.Errors
	}
	if l.Network <= 0 {
		l.Network = def.Network
	}
	return l
}
