package capture

import (
	"testing"

	"github.com/chromedp/cdproto/runtime"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/stretchr/testify/assert"
)

func TestFormatArg(t *testing.T) {
	tests := []struct {
		name string
		arg  *runtime.RemoteObject
		want string
	}{
		{"string", &runtime.RemoteObject{Type: runtime.TypeString, Value: jsontext.Value(`"a b"`)}, "a b"},
		{"number", &runtime.RemoteObject{Type: runtime.TypeNumber, Value: jsontext.Value(`1.5`)}, "1.5"},
		{"unserializable number", &runtime.RemoteObject{Type: runtime.TypeNumber, Description: "NaN"}, "undefined"},
		{"boolean", &runtime.RemoteObject{Type: runtime.TypeBoolean, Value: jsontext.Value(`true`)}, "true"},
		{"undefined", &runtime.RemoteObject{Type: runtime.TypeUndefined}, "undefined"},
		{"null", &runtime.RemoteObject{Type: runtime.TypeObject, Subtype: runtime.SubtypeNull}, "null"},
		{"object", &runtime.RemoteObject{Type: runtime.TypeObject, Description: "Array(3)"}, "Array(3)"},
		{"bare object", &runtime.RemoteObject{Type: runtime.TypeObject}, "[Object]"},
		{"function", &runtime.RemoteObject{Type: runtime.TypeFunction, Description: "function f() {}"}, "function f() {}"},
		{"bigint", &runtime.RemoteObject{Type: runtime.TypeBigint, Description: "10n"}, "10n"},
		{"symbol without description", &runtime.RemoteObject{Type: runtime.TypeSymbol}, "undefined"},
		{"nil", nil, "undefined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatArg(tt.arg))
		})
	}
}

func TestFormatStackTrace(t *testing.T) {
	assert.Empty(t, formatStackTrace(nil))
	assert.Empty(t, formatStackTrace(&runtime.StackTrace{}))
	assert.Equal(t, "    at (anonymous) (u.js:0:0)",
		formatStackTrace(&runtime.StackTrace{CallFrames: []*runtime.CallFrame{{URL: "u.js"}}}))
	assert.Equal(t, "    at f (a.js:3:9)",
		formatStackTrace(&runtime.StackTrace{CallFrames: []*runtime.CallFrame{nil, {FunctionName: "f", URL: "a.js", LineNumber: 3, ColumnNumber: 9}}}))
}

func TestTopFrame(t *testing.T) {
	_, ok := topFrame(nil)
	assert.False(t, ok)
	_, ok = topFrame(&runtime.StackTrace{})
	assert.False(t, ok)
	f, ok := topFrame(&runtime.StackTrace{CallFrames: []*runtime.CallFrame{{URL: "a.js", LineNumber: 4}, {URL: "b.js"}}})
	assert.True(t, ok)
	assert.Equal(t, "a.js", f.URL)
}
