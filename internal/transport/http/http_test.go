package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/corray333/backend-labs/dispatcher/internal/dal/backlog"
	"github.com/corray333/backend-labs/dispatcher/internal/service/models/event"
	"github.com/corray333/backend-labs/dispatcher/internal/service/models/retry"
	"github.com/corray333/backend-labs/dispatcher/internal/service/models/status"
	"github.com/corray333/backend-labs/dispatcher/internal/service/services/statussvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	st  status.ApplicationStatus
	err error
	id  string
}

func (f *fakeStatus) CheckStatus(_ context.Context, id string) (status.ApplicationStatus, error) {
	f.id = id
	return f.st, f.err
}

func serve(t *testing.T, h *HTTPTransport, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	return rec
}

func TestGetBacklog(t *testing.T) {
	b := backlog.New(2)
	b.Push(retry.NewEntry("a", event.Payload("p"), time.Now()))
	b.Push(retry.NewEntry("b", event.Payload("p"), time.Now()))

	h := NewHTTPTransport(b, nil)
	h.RegisterRoutes()

	rec := serve(t, h, "/api/backlog")
	require.Equal(t, http.StatusOK, rec.Code)

	var got backlogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, backlogResponse{Size: 2, MaxSize: 2, Accepting: false}, got)
}

func TestGetStatus(t *testing.T) {
	testCases := []struct {
		desc         string
		status       *fakeStatus
		expectedCode int
		expectedBody map[string]any
	}{
		{
			desc:         "success",
			status:       &fakeStatus{st: status.ApplicationStatus{ApplicationID: "app-1", Status: "SERVING"}},
			expectedCode: http.StatusOK,
			expectedBody: map[string]any{"applicationId": "app-1", "status": "SERVING"},
		},
		{
			desc: "failure",
			status: &fakeStatus{err: &statussvc.FailureError{
				LastRequestTime: 1500 * time.Millisecond,
				RetriesCount:    2,
				Err:             errors.New("both backends down"),
			}},
			expectedCode: http.StatusGatewayTimeout,
			expectedBody: map[string]any{
				"error":           "status check failed after 2 retries (last request 1.5s): both backends down",
				"retries":         float64(2),
				"last_request_ms": float64(1500),
			},
		},
	}

	for _, test := range testCases {
		t.Run(test.desc, func(t *testing.T) {
			h := NewHTTPTransport(backlog.New(1), test.status)
			h.RegisterRoutes()

			rec := serve(t, h, "/api/status/app-1")
			assert.Equal(t, test.expectedCode, rec.Code)
			assert.Equal(t, "app-1", test.status.id)

			var got map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, test.expectedBody, got)
		})
	}
}

func TestGetStatusNotConfigured(t *testing.T) {
	h := NewHTTPTransport(backlog.New(1), nil)
	h.RegisterRoutes()

	rec := serve(t, h, "/api/status/app-1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := NewHTTPTransport(backlog.New(1), nil)
	h.RegisterRoutes()

	rec := serve(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestBacklogImplementsRetryBacklog(t *testing.T) {
	var b retryBacklog = backlog.New(3)

	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 3, b.MaxSize())
	assert.True(t, b.Accepting())
}
