package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	aerrors "github.com/ella-systems/ella-agent/internal/errors"
	"github.com/ella-systems/ella-agent/internal/metrics"
	"github.com/ella-systems/ella-agent/internal/retry"
)

const (
	defaultEndpoint  = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel     = "deepseek/deepseek-chat"
	defaultMaxTokens = 16000
)

// OpenRouterClient implements Client against any OpenAI-compatible
// chat-completions endpoint.
type OpenRouterClient struct {
	endpoint  string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
	retryCfg  retry.Config
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// Option configures the client.
type Option func(*OpenRouterClient)

func WithEndpoint(url string) Option {
	return func(c *OpenRouterClient) { c.endpoint = url }
}

func WithModel(model string) Option {
	return func(c *OpenRouterClient) { c.model = model }
}

func WithMaxTokens(n int) Option {
	return func(c *OpenRouterClient) { c.maxTokens = n }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *OpenRouterClient) { c.client = h }
}

func WithRetry(cfg retry.Config) Option {
	return func(c *OpenRouterClient) { c.retryCfg = cfg }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *OpenRouterClient) { c.metrics = m }
}

// NewOpenRouterClient constructs a chat client.
func NewOpenRouterClient(apiKey string, logger zerolog.Logger, opts ...Option) *OpenRouterClient {
	c := &OpenRouterClient{
		endpoint:  defaultEndpoint,
		apiKey:    apiKey,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		client:    &http.Client{Timeout: 120 * time.Second},
		retryCfg:  retry.DefaultConfig(),
		logger:    logger.With().Str("component", "llm").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ModelID returns the configured model identifier.
func (c *OpenRouterClient) ModelID() string { return c.model }

// ---- wire types ----

type chatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Chat sends a blocking chat-completion request, retrying transient failures.
func (c *OpenRouterClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	maxTok := c.maxTokens
	if req.MaxTokens > 0 {
		maxTok = req.MaxTokens
	}

	wire := chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Tools:       req.Tools,
		ToolChoice:  req.ToolChoice,
		Temperature: req.Temperature,
		MaxTokens:   maxTok,
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	var out *ChatResponse
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		resp, doErr := c.doRequest(ctx, body)
		if doErr != nil {
			return doErr
		}
		out = resp
		return nil
	})

	if c.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.LLMRequestsTotal.WithLabelValues(outcome).Inc()
		if out != nil {
			c.metrics.LLMTokensTotal.WithLabelValues("prompt").Add(float64(out.Usage.PromptTokens))
			c.metrics.LLMTokensTotal.WithLabelValues("completion").Add(float64(out.Usage.CompletionTokens))
		}
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("model", model).
		Str("finish_reason", out.FinishReason).
		Int("tool_calls", len(out.ToolCalls)).
		Int("total_tokens", out.Usage.TotalTokens).
		Msg("chat completion")

	return out, nil
}

func (c *OpenRouterClient) doRequest(ctx context.Context, body []byte) (*ChatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm http: %w: %w", aerrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, aerrors.NewAPIError("llm", resp.StatusCode, truncate(string(raw), 200))
	}

	var wire chatCompletionResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if wire.Error != nil {
		return nil, aerrors.NewAPIError("llm", resp.StatusCode, wire.Error.Message)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("llm response has no choices")
	}

	choice := wire.Choices[0]
	return &ChatResponse{
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		Usage:        wire.Usage,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
