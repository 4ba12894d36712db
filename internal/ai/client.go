// Package ai implements the email classifier on top of an OpenAI-compatible
// chat completions endpoint.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/JakeFAU/scrapeforge/internal/extractor"
)

const defaultModel = openai.GPT4o

// Config controls the chat completions client. BaseURL points the client at
// any OpenAI-compatible server; empty means the public API.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls a chat completions API to classify free text.
type Client struct {
	model string
	api   *openai.Client
}

// New builds a Client. An API key is required.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("ai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	apiCfg.HTTPClient = httpClient
	return &Client{model: cfg.Model, api: openai.NewClientWithConfig(apiCfg)}, nil
}

type emailAnswer struct {
	Email      *string  `json:"email"`
	Confidence *float64 `json:"confidence"`
}

// ClassifyEmail asks the model for an email hidden in text.
func (c *Client) ClassifyEmail(ctx context.Context, text string) (extractor.Classification, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(text)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return extractor.Classification{}, chatError(err)
	}
	if len(resp.Choices) == 0 {
		return extractor.Classification{}, errors.New("chat api returned no choices")
	}

	var answer emailAnswer
	if err := json.Unmarshal([]byte(cleanMarkdownJSON(resp.Choices[0].Message.Content)), &answer); err != nil {
		return extractor.Classification{}, fmt.Errorf("decode classification: %w", err)
	}
	out := extractor.Classification{}
	if answer.Email != nil {
		out.Email = strings.TrimSpace(*answer.Email)
	}
	if answer.Confidence != nil {
		out.Confidence = clamp(*answer.Confidence)
	}
	return out, nil
}

// chatError keeps the HTTP status visible whichever error shape the SDK returns.
func chatError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("chat api returned status %d: %w", apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("chat api returned status %d: %w", reqErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("chat request: %w", err)
}

// cleanMarkdownJSON strips a ```json fence some models wrap answers in.
func cleanMarkdownJSON(content string) string {
	content = strings.TrimSpace(content)
	switch {
	case strings.HasPrefix(content, "```json"):
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	case strings.HasPrefix(content, "```"):
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	return strings.TrimSpace(content)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
