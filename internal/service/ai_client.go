package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"suburbiq/internal/config"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ChatCompleter is the part of the OpenAI client the planner and classifier use
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// AIClient sends JSON-mode chat completions to an OpenAI-compatible API
type AIClient struct {
	client   ChatCompleter
	config   config.OpenAIConfig
	jsonMode bool
	logger   *zap.Logger
}

// NewAIClient creates a client for cfg. Without an API key the client is
// disabled and every call fails fast.
func NewAIClient(cfg config.OpenAIConfig, logger *zap.Logger) *AIClient {
	c := &AIClient{config: cfg, logger: logger, jsonMode: SupportsJSONMode(cfg.APIBase)}
	if !cfg.Enabled {
		return c
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		oc.BaseURL = strings.TrimRight(cfg.APIBase, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}
	c.client = openai.NewClientWithConfig(oc)

	logger.Info("LLM client configured",
		zap.String("api_base", oc.BaseURL),
		zap.String("planner_model", cfg.PlannerModel),
		zap.String("classifier_model", cfg.ClassifierModel),
		zap.Bool("json_mode", c.jsonMode),
	)
	return c
}

// NewAIClientWith wraps an existing completer, for tests and custom transports
func NewAIClientWith(client ChatCompleter, cfg config.OpenAIConfig, logger *zap.Logger) *AIClient {
	cfg.Enabled = client != nil
	return &AIClient{client: client, config: cfg, jsonMode: SupportsJSONMode(cfg.APIBase), logger: logger}
}

// IsEnabled returns whether the client is configured and ready
func (c *AIClient) IsEnabled() bool {
	return c != nil && c.config.Enabled && c.client != nil
}

// CompleteJSON sends a system prompt plus messages and returns the raw reply
func (c *AIClient) CompleteJSON(ctx context.Context, model, systemPrompt string, messages []openai.ChatCompletionMessage) (string, error) {
	if !c.IsEnabled() {
		return "", fmt.Errorf("LLM is not enabled (missing API key)")
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    append([]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: systemPrompt}}, messages...),
		Temperature: float32(c.config.Temperature),
		MaxTokens:   c.config.MaxTokens,
	}
	if c.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	c.logger.Debug("chat completion",
		zap.String("model", model),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("took", time.Since(start)),
	)
	return resp.Choices[0].Message.Content, nil
}

// SupportsJSONMode reports whether the provider honours response_format.
// Reasoning models behind NVIDIA's endpoint emit <think> blocks instead,
// which ParseAIJSON strips.
func SupportsJSONMode(baseURL string) bool {
	return !strings.Contains(baseURL, "integrate.api.nvidia.com")
}
