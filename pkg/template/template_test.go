package template

import (
	"testing"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScope() models.ExecutionScope {
	return models.ExecutionScope{
		RunID:  "run-abc",
		FlowID: "flow-abc",
		Args:   map[string]any{"user": "alice"},
		Variables: map[string]any{
			"base_url": "https://example.com",
		},
		NodeOutputs: map[string]map[string]any{
			"fetch": {"status_code": 200.0, "body": `{"ok":true}`},
		},
	}
}

func TestRenderWithScope(t *testing.T) {
	scope := testScope()

	t.Run("args", func(t *testing.T) {
		out, err := RenderWithScope("{{ .args.user }}", scope)
		require.NoError(t, err)
		assert.Equal(t, "alice", out)
	})

	t.Run("variables short form", func(t *testing.T) {
		out, err := RenderWithScope("{{ .vars.base_url }}/items", scope)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/items", out)
	})

	t.Run("node outputs", func(t *testing.T) {
		out, err := RenderWithScope("{{ .outputs.fetch.status_code }}", scope)
		require.NoError(t, err)
		assert.Equal(t, 200.0, out)
	})

	t.Run("run identity", func(t *testing.T) {
		out, err := RenderWithScope("{{ .run.id }}", scope)
		require.NoError(t, err)
		assert.Equal(t, "run-abc", out)
	})
}

func TestRender_Retyping(t *testing.T) {
	t.Run("number", func(t *testing.T) {
		out, err := Render("42", nil)
		require.NoError(t, err)
		assert.Equal(t, 42.0, out)
	})

	t.Run("boolean", func(t *testing.T) {
		out, err := Render("true", nil)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("json object", func(t *testing.T) {
		out, err := Render(`{"name": "alice", "age": 30}`, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"name": "alice", "age": 30.0}, out)
	})

	t.Run("json array", func(t *testing.T) {
		out, err := Render(`[1, 2, 3]`, nil)
		require.NoError(t, err)
		assert.Equal(t, []any{1.0, 2.0, 3.0}, out)
	})

	t.Run("plain string", func(t *testing.T) {
		out, err := Render("hello", nil)
		require.NoError(t, err)
		assert.Equal(t, "hello", out)
	})

	t.Run("invalid template", func(t *testing.T) {
		_, err := Render("{{ .broken", nil)
		assert.Error(t, err)
	})
}

func TestRenderConfig(t *testing.T) {
	scope := testScope()

	t.Run("nil config", func(t *testing.T) {
		out, err := RenderConfig(nil, scope)
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("nested values render recursively", func(t *testing.T) {
		config := map[string]any{
			"url":    "{{ .vars.base_url }}/users/{{ .args.user }}",
			"method": "GET",
			"count":  3,
			"headers": map[string]any{
				"X-Run-ID": "{{ .run.id }}",
			},
			"tags": []any{"static", "{{ .args.user }}"},
		}

		out, err := RenderConfig(config, scope)
		require.NoError(t, err)

		assert.Equal(t, "https://example.com/users/alice", out["url"])
		assert.Equal(t, "GET", out["method"])
		assert.Equal(t, 3, out["count"])
		assert.Equal(t, map[string]any{"X-Run-ID": "run-abc"}, out["headers"])
		assert.Equal(t, []any{"static", "alice"}, out["tags"])
	})

	t.Run("strings without expressions pass through untouched", func(t *testing.T) {
		out, err := RenderConfig(map[string]any{"plain": "no templates here"}, scope)
		require.NoError(t, err)
		assert.Equal(t, "no templates here", out["plain"])
	})

	t.Run("bad expression surfaces the key", func(t *testing.T) {
		_, err := RenderConfig(map[string]any{"url": "{{ .broken"}, scope)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `config key "url"`)
	})
}
