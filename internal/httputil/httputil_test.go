package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePathAndQuery(t *testing.T) {
	type params struct {
		Kind  string `path:"kind"`
		Limit int    `form:"limit"`
		Level string `form:"level"`
		All   bool   `form:"all"`
	}

	var got params
	r := chi.NewRouter()
	r.Get("/query/{kind}", func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, Parse(req, &got))
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/query/logs?limit=5&level=warn&all=true", nil))

	assert.Equal(t, params{Kind: "logs", Limit: 5, Level: "warn", All: true}, got)
}

func TestParseIgnoresBadNumbers(t *testing.T) {
	var p struct {
		Limit int `form:"limit"`
	}
	req := httptest.NewRequest(http.MethodGet, "/?limit=lots", nil)
	require.NoError(t, Parse(req, &p))
	assert.Zero(t, p.Limit)
}

func TestIsLocalOrigin(t *testing.T) {
	tests := map[string]bool{
		"":                                 true,
		"chrome-extension://abcdefghijklm": true,
		"http://localhost:3000":            true,
		"http://127.0.0.1:9000":            true,
		"http://[::1]:80":                  true,
		"https://evil.example.com":         false,
		"http://192.168.1.10":              false,
	}
	for origin, want := range tests {
		assert.Equal(t, want, IsLocalOrigin(origin), origin)
	}
}

func TestErrorWithCode(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorWithCode(rec, http.StatusGatewayTimeout, "too slow")

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrorResponse{Code: http.StatusGatewayTimeout, Message: "too slow"}, body)
}
