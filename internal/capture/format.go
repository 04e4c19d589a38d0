package capture

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	"github.com/go-json-experiment/json/jsontext"
)

// topFrame returns the innermost call frame of st.
func topFrame(st *runtime.StackTrace) (*runtime.CallFrame, bool) {
	if st == nil || len(st.CallFrames) == 0 || st.CallFrames[0] == nil {
		return nil, false
	}
	return st.CallFrames[0], true
}

// formatArg renders one console argument the way the console shows it.
func formatArg(arg *runtime.RemoteObject) string {
	if arg == nil {
		return "undefined"
	}
	switch arg.Type {
	case runtime.TypeString, runtime.TypeNumber, runtime.TypeBoolean:
		return valueString(arg.Value)
	case runtime.TypeUndefined:
		return "undefined"
	case runtime.TypeObject:
		if arg.Subtype == runtime.SubtypeNull {
			return "null"
		}
		if arg.Description != "" {
			return arg.Description
		}
		return "[Object]"
	}
	if arg.Description != "" {
		return arg.Description
	}
	return valueString(arg.Value)
}

// valueString stringifies a JSON primitive. Strings lose their quotes and
// a missing value reads as undefined.
func valueString(raw jsontext.Value) string {
	if len(raw) == 0 {
		return "undefined"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func formatArgs(args []*runtime.RemoteObject) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = formatArg(arg)
	}
	return strings.Join(parts, " ")
}

// formatStackTrace renders frames one per line as "    at fn (url:line:col)".
func formatStackTrace(st *runtime.StackTrace) string {
	if st == nil || len(st.CallFrames) == 0 {
		return ""
	}
	lines := make([]string, 0, len(st.CallFrames))
	for _, f := range st.CallFrames {
		if f == nil {
			continue
		}
		fn := f.FunctionName
		if fn == "" {
			fn = "(anonymous)"
		}
		lines = append(lines, fmt.Sprintf("    at %s (%s:%d:%d)", fn, f.URL, f.LineNumber, f.ColumnNumber))
	}
	return strings.Join(lines, "\n")
}
