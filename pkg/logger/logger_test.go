package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandlerLevels(t *testing.T) {
	testCases := []struct {
		level    string
		expected slog.Level
	}{
		{level: "", expected: slog.LevelInfo},
		{level: "debug", expected: slog.LevelDebug},
		{level: " WARN ", expected: slog.LevelWarn},
		{level: "error", expected: slog.LevelError},
		{level: "nonsense", expected: slog.LevelInfo},
	}

	for _, test := range testCases {
		t.Run(test.level, func(t *testing.T) {
			assert.Equal(t, test.expected, parseLevel(test.level))
		})
	}
}

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&Options{Output: &buf}))

	h := NewLoggerMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/backlog", nil))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "HTTP request", record["msg"])
	assert.Equal(t, "/api/backlog", record["path"])
	assert.Equal(t, float64(http.StatusTeapot), record["status"])
}
