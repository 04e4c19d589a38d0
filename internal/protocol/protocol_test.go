package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndDecode(t *testing.T) {
	msg, err := New(TypeLog, map[string]string{"message": "hi"})
	require.NoError(t, err)
	msg.RequestID = "r1"

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"LOG","requestId":"r1","data":{"message":"hi"}}`, string(raw))

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeLog, got.Type)

	var data struct {
		Message string `json:"message"`
	}
	require.NoError(t, got.DecodeData(&data))
	assert.Equal(t, "hi", data.Message)
}

func TestDecodeRejectsMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"data":{}}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeDataEmpty(t *testing.T) {
	m := Message{Type: TypeQueryStatus}
	v := struct{ A int }{A: 7}
	require.NoError(t, m.DecodeData(&v))
	require.NoError(t, m.DecodeParams(&v))
	assert.Equal(t, 7, v.A)
}

func TestResultTypeFor(t *testing.T) {
	cases := map[string]string{
		TypeQueryLogs:   TypeLogsResult,
		TypeQueryErrors: TypeErrorsResult,
		TypeQueryStatus: TypeStatusResult,
		TypeClearLogs:   TypeClearResult,
	}
	for q, want := range cases {
		got, ok := ResultTypeFor(q)
		assert.True(t, ok, q)
		assert.Equal(t, want, got)
		assert.True(t, IsResult(got))
	}
	_, ok := ResultTypeFor(TypeLog)
	assert.False(t, ok)
	assert.False(t, IsResult(TypeInitAck))
}

func TestQueryTypeFor(t *testing.T) {
	got, ok := QueryTypeFor("Logs")
	assert.True(t, ok)
	assert.Equal(t, TypeQueryLogs, got)

	_, ok = QueryTypeFor("network")
	assert.False(t, ok)
}
