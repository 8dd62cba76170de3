package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubPool struct{ saturated bool }

func (s stubPool) Saturated() bool { return s.saturated }

func newTestServer() *Server {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewServer(Config{ServiceName: "backtest-orchestrator", Version: "test", Logger: log})
}

func TestLiveAndHealth(t *testing.T) {
	s := newTestServer()

	for _, path := range []string{"/live", "/health"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)

		var resp HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "ok", resp.Status)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name      string
		ready     bool
		db        error
		saturated bool
		wantCode  int
		wantCheck map[string]string
	}{
		{
			name:      "all healthy",
			ready:     true,
			wantCode:  http.StatusOK,
			wantCheck: map[string]string{"service": "ok", "database": "ok", "worker_pool": "ok"},
		},
		{
			name:     "not marked ready",
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name:      "database down",
			ready:     true,
			db:        errors.New("connection refused"),
			wantCode:  http.StatusServiceUnavailable,
			wantCheck: map[string]string{"database": "error: connection refused"},
		},
		{
			name:      "pool saturated",
			ready:     true,
			saturated: true,
			wantCode:  http.StatusServiceUnavailable,
			wantCheck: map[string]string{"worker_pool": "error: worker pool saturated"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			s.SetReady(tt.ready)
			s.AddCheck("database", DatabaseCheck(stubPinger{err: tt.db}))
			s.AddCheck("worker_pool", PoolCheck(stubPool{saturated: tt.saturated}))

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.wantCode, rec.Code)

			var resp ReadyResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			for k, v := range tt.wantCheck {
				assert.Equal(t, v, resp.Checks[k], k)
			}
		})
	}
}
