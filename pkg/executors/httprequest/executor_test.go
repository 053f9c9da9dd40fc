package httprequest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_Kind(t *testing.T) {
	assert.Equal(t, "http-request", NewExecutor().Kind())
}

func TestExecutor_Execute_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	result, err := NewExecutor().Execute(t.Context(), models.ExecutionScope{},
		map[string]any{"url": server.URL}, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, protocol.OutcomeSuccess, result.Outcome)
	assert.Equal(t, http.StatusOK, result.Output["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, result.Output["body"])

	headers, ok := result.Output["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "application/json", headers["Content-Type"])
}

func TestExecutor_Execute_PostWithBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Token"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "alice", payload["user"])

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	result, err := NewExecutor().Execute(t.Context(), models.ExecutionScope{}, map[string]any{
		"url":     server.URL,
		"method":  "post",
		"body":    map[string]any{"user": "alice"},
		"headers": map[string]any{"X-Token": "secret"},
	}, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, result.Output["status_code"])
}

func TestExecutor_Execute_ClientErrorIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	defer server.Close()

	// 4xx is a successful invocation: the status lands in the output for
	// downstream branching.
	result, err := NewExecutor().Execute(t.Context(), models.ExecutionScope{},
		map[string]any{"url": server.URL}, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, result.Output["status_code"])
	assert.Equal(t, "missing", result.Output["body"])
}

func TestExecutor_Execute_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewExecutor().Execute(t.Context(), models.ExecutionScope{},
		map[string]any{"url": server.URL}, slog.Default())
	assert.ErrorIs(t, err, ErrServerError)
}

func TestExecutor_Execute_MissingURL(t *testing.T) {
	_, err := NewExecutor().Execute(t.Context(), models.ExecutionScope{}, map[string]any{}, slog.Default())
	assert.ErrorIs(t, err, ErrURLMissing)
}
