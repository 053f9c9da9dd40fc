// Package httprequest provides an executor that performs one HTTP request
// and publishes the response as the node output.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/protocol"
)

var (
	// ErrURLMissing is returned when the configuration has no url.
	ErrURLMissing = errors.New("missing or invalid 'url' in configuration")

	// ErrServerError is returned for 5xx responses so the runner's retry
	// policy can take over.
	ErrServerError = errors.New("server error during HTTP request")
)

type Executor struct {
	client *http.Client
}

func NewExecutor() *Executor {
	// Deadlines come from the node context; the client itself sets none.
	return &Executor{client: &http.Client{}}
}

func (e *Executor) Kind() string {
	return "http-request"
}

// Execute performs the request. 5xx responses are reported as errors, which
// makes them retryable under the node's retry policy; every other status is
// a success and lands in the output for downstream branching.
func (e *Executor) Execute(ctx context.Context, _ models.ExecutionScope, config map[string]any, logger *slog.Logger) (*protocol.Result, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, ErrURLMissing
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	method = strings.ToUpper(method)

	req, err := e.buildRequest(ctx, method, url, config)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Performing HTTP request", "method", method, "url", url)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	return e.processResponse(ctx, resp, logger)
}

func (e *Executor) buildRequest(ctx context.Context, method, url string, config map[string]any) (*http.Request, error) {
	var bodyReader io.Reader

	if body, exists := config["body"]; exists && body != nil {
		if str, ok := body.(string); ok {
			bodyReader = strings.NewReader(str)
		} else {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal body: %w", err)
			}

			bodyReader = strings.NewReader(string(encoded))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if str, ok := value.(string); ok {
				req.Header.Set(key, str)
			}
		}
	}

	return req, nil
}

func (e *Executor) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (*protocol.Result, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	}

	var body any

	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	logger.DebugContext(ctx, "HTTP request completed",
		"status_code", resp.StatusCode, "body_length", len(bodyBytes))

	return &protocol.Result{
		Outcome: protocol.OutcomeSuccess,
		Output: map[string]any{
			"status_code": resp.StatusCode,
			"body":        body,
			"headers":     flattenHeaders(resp.Header),
		},
	}, nil
}

func flattenHeaders(header http.Header) map[string]any {
	flat := make(map[string]any, len(header))

	for key := range header {
		flat[key] = header.Get(key)
	}

	return flat
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL, may contain template expressions",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method (default: GET)",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
				"default":     "GET",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers as string values",
			},
			"body": map[string]any{
				"description": "Request body; non-string values are JSON encoded",
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
