package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"RivalScanner/internal/ports"
)

// ClaudeConfig holds the Anthropic credentials and model.
type ClaudeConfig struct {
	APIKey       string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
	// BaseURL overrides the API host; empty uses the SDK default.
	BaseURL string
}

// ClaudeAnalyzer implements ports.TextAnalyzer on the Anthropic Messages API.
type ClaudeAnalyzer struct {
	client       anthropic.Client
	model        string
	systemPrompt string
}

var _ ports.TextAnalyzer = (*ClaudeAnalyzer)(nil)

// NewClaudeAnalyzer builds the SDK client. Retries are left to the caller's pacing.
func NewClaudeAnalyzer(cfg ClaudeConfig) (*ClaudeAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &ClaudeAnalyzer{
		client:       anthropic.NewClient(opts...),
		model:        cfg.Model,
		systemPrompt: strings.TrimSpace(cfg.SystemPrompt),
	}, nil
}

// Analyze sends prompt as a single user turn and concatenates the text blocks of the reply.
func (a *ClaudeAnalyzer) Analyze(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(temperature),
	}
	if a.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.systemPrompt}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("claude returned no text content")
	}
	return out.String(), nil
}
