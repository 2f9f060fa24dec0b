package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You distill AI coding-session activity into durable observations " +
	"worth remembering across sessions. Be specific and terse. Never invent detail " +
	"that is not in the activity log."

// AnthropicConfig configures the Claude-backed summarizer.
type AnthropicConfig struct {
	APIKey        string
	Model         string
	ContextWindow int
	MaxTokens     int64
}

// DefaultAnthropicConfig returns defaults for the Claude backend.
func DefaultAnthropicConfig() AnthropicConfig {
	return AnthropicConfig{
		Model:         "claude-haiku-4-5-20251001",
		ContextWindow: 200_000,
		MaxTokens:     2048,
	}
}

// Anthropic summarizes batches with a Claude model.
type Anthropic struct {
	client *anthropic.Client
	cfg    AnthropicConfig
}

// NewAnthropic creates the Claude-backed summarizer.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("summarize: anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicConfig().Model
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultAnthropicConfig().ContextWindow
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultAnthropicConfig().MaxTokens
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Anthropic{client: &client, cfg: cfg}, nil
}

// ContextWindow returns the model's input window in tokens.
func (a *Anthropic) ContextWindow() int {
	return a.cfg.ContextWindow
}

// Summarize sends one batch to the model and parses the returned
// observations.
func (a *Anthropic) Summarize(ctx context.Context, req Request) (*Response, error) {
	class := Classify(req.UserPrompt, len(req.FilesCreated)+len(req.FilesModified), len(req.FilesRead), 0)
	budget := ComputeBudget(a.cfg.ContextWindow)
	prompt := BuildPrompt(req, class, budget)

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: a.cfg.MaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("summarize: anthropic call: %w", err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		content.WriteString(block.Text)
	}
	return parseResponse(content.String())
}

// parseResponse extracts the JSON observations block from model output,
// tolerating surrounding prose and markdown fences.
func parseResponse(content string) (*Response, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("summarize: no JSON object in response")
	}

	var resp Response
	if err := json.Unmarshal([]byte(content[start:end+1]), &resp); err != nil {
		return nil, fmt.Errorf("summarize: parse response: %w", err)
	}
	for i := range resp.Observations {
		if resp.Observations[i].Importance <= 0 {
			resp.Observations[i].Importance = 3
		}
	}
	return &resp, nil
}
