package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harun/craftpilot/pkg/dashboard"
	"github.com/harun/craftpilot/pkg/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *dashboardClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return newDashboardClient(strings.TrimPrefix(ts.URL, "http://"), "tok")
}

func TestDashboardClient(t *testing.T) {
	t.Run("sends bearer token and query", func(t *testing.T) {
		var gotAuth, gotQuery string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotQuery = r.URL.RawQuery
			_, _ = w.Write([]byte(`{"entries":[{"action":"explore","outcome":"success"}],"limit":3}`))
		})

		entries, err := client.History(context.Background(), 3)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "explore", entries[0].Action)
		assert.Equal(t, "Bearer tok", gotAuth)
		assert.Equal(t, "limit=3", gotQuery)
	})

	t.Run("busy command is a result", func(t *testing.T) {
		var body dashboard.CommandRequest
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(executor.Result{Message: executor.BusyMessage})
		})

		result, err := client.Command(context.Background(), "mine stone")
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, executor.BusyMessage, result.Message)
		assert.Equal(t, "mine stone", body.Command)
	})

	t.Run("api error message", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
		})

		_, err := client.Command(context.Background(), "explore")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
		assert.Contains(t, err.Error(), "rate limit exceeded")
	})

	t.Run("plain error status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})

		_, err := client.Status(context.Background())
		require.Error(t, err)
		assert.Equal(t, "dashboard returned 500", err.Error())
	})

	t.Run("unreachable", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		addr := strings.TrimPrefix(ts.URL, "http://")
		ts.Close()

		_, err := newDashboardClient(addr, "").Status(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dashboard unreachable")
	})
}
