package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const fetchBodyLimit = 64 * 1024

// FetchURLTool retrieves a web page or API response for the planner to
// read. GET only; the body is truncated to keep prompts bounded.
type FetchURLTool struct {
	client  *http.Client
	maxBody int64
}

// NewFetchURLTool creates the fetch_url tool.
func NewFetchURLTool() *FetchURLTool {
	return &FetchURLTool{
		client:  &http.Client{Timeout: 30 * time.Second},
		maxBody: fetchBodyLimit,
	}
}

func (t *FetchURLTool) Definition() Definition {
	return Definition{
		Name:        "fetch_url",
		Description: "Fetch a URL with HTTP GET. Returns the status code and up to 64KB of the response body.",
		Params: []Param{
			{Name: "url", Type: TypeString, Description: "Full URL including scheme", Required: true},
		},
	}
}

func (t *FetchURLTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	url, _ := params["url"].(string)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch_url: create request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch_url: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody))
	if err != nil {
		return "", fmt.Errorf("fetch_url: read body: %w", err)
	}

	out, err := json.Marshal(map[string]any{
		"status": resp.StatusCode,
		"body":   string(body),
	})
	if err != nil {
		return "", fmt.Errorf("fetch_url: marshal: %w", err)
	}
	return string(out), nil
}
