// Package template resolves {{ ... }} expressions in node configuration
// against run-scoped state before the executor sees it.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/replaykit/replaykit/pkg/models"
)

// RenderWithScope renders input against the run's execution scope. Node
// outputs are exposed as .outputs, keyed by node id.
func RenderWithScope(input string, scope models.ExecutionScope) (any, error) {
	data := map[string]any{
		"args":      scope.Args,
		"variables": scope.Variables,
		"vars":      scope.Variables, // short form used by recorded flows
		"outputs":   scope.NodeOutputs,
		"env":       getEnvVars(),
		"run": map[string]any{
			"id":      scope.RunID,
			"flow_id": scope.FlowID,
		},
	}

	return Render(input, data)
}

// RenderConfig returns a copy of config with every string leaf rendered
// against the scope. Non-string values pass through untouched.
func RenderConfig(config map[string]any, scope models.ExecutionScope) (map[string]any, error) {
	if config == nil {
		return nil, nil
	}

	rendered := make(map[string]any, len(config))

	for key, value := range config {
		resolved, err := renderValue(value, scope)
		if err != nil {
			return nil, fmt.Errorf("config key %q: %w", key, err)
		}

		rendered[key] = resolved
	}

	return rendered, nil
}

func renderValue(value any, scope models.ExecutionScope) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v, nil
		}

		return RenderWithScope(v, scope)
	case map[string]any:
		return RenderConfig(v, scope)
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			resolved, err := renderValue(item, scope)
			if err != nil {
				return nil, err
			}

			out[i] = resolved
		}

		return out, nil
	default:
		return value, nil
	}
}

// Render executes templateStr against data. The result is re-typed: JSON
// documents, numbers and booleans come back as their native values so
// rendered config keeps its shape.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("config").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
