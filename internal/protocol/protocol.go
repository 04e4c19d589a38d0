// Package protocol defines the message envelope exchanged between the
// capturing extension side and the native host, plus the message types.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message types carried in Message.Type.
const (
	TypeInit    = "INIT"
	TypeInitAck = "INIT_ACK"

	TypeLog     = "LOG"
	TypeError   = "ERROR"
	TypeNetwork = "NETWORK"

	TypeQueryLogs    = "QUERY_LOGS"
	TypeLogsResult   = "LOGS_RESULT"
	TypeQueryErrors  = "QUERY_ERRORS"
	TypeErrorsResult = "ERRORS_RESULT"
	TypeQueryStatus  = "QUERY_STATUS"
	TypeStatusResult = "STATUS_RESULT"
	TypeClearLogs    = "CLEAR_LOGS"
	TypeClearResult  = "CLEAR_RESULT"
)

// Version is reported in INIT and INIT_ACK.
const Version = "1.0.0"

// Message is the JSON envelope inside every frame.
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Version   string          `json:"version,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// New builds a Message with data marshaled into Data. A nil data leaves
// Data empty.
func New(typ string, data any) (Message, error) {
	m := Message{Type: typ}
	if data == nil {
		return m, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return m, fmt.Errorf("marshal %s data: %w", typ, err)
	}
	m.Data = raw
	return m, nil
}

// Decode parses a frame payload into a Message. A payload without a type
// is rejected.
func Decode(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return m, fmt.Errorf("decode message: missing type")
	}
	return m, nil
}

// DecodeData unmarshals m.Data into v. Empty data leaves v untouched.
func (m Message) DecodeData(v any) error {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", m.Type, err)
	}
	return nil
}

// DecodeParams unmarshals m.Params into v. Empty params leave v untouched.
func (m Message) DecodeParams(v any) error {
	if len(m.Params) == 0 || string(m.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(m.Params, v); err != nil {
		return fmt.Errorf("decode %s params: %w", m.Type, err)
	}
	return nil
}

var resultTypes = map[string]string{
	TypeQueryLogs:   TypeLogsResult,
	TypeQueryErrors: TypeErrorsResult,
	TypeQueryStatus: TypeStatusResult,
	TypeClearLogs:   TypeClearResult,
}

// ResultTypeFor returns the reply type for a query type.
func ResultTypeFor(queryType string) (string, bool) {
	t, ok := resultTypes[queryType]
	return t, ok
}

// IsResult reports whether typ answers a query.
func IsResult(typ string) bool {
	return strings.HasSuffix(typ, "_RESULT")
}

// QueryTypeFor maps a short query kind ("logs", "errors", "status",
// "clear") to its request type.
func QueryTypeFor(kind string) (string, bool) {
	switch strings.ToLower(kind) {
	case "logs":
		return TypeQueryLogs, true
	case "errors":
		return TypeQueryErrors, true
	case "status":
		return TypeQueryStatus, true
	case "clear":
		return TypeClearLogs, true
	}
	return "", false
}

// Bool returns a pointer to b, for Message.Success.
func Bool(b bool) *bool { return &b }
