package answers

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ternarybob/peto/internal/common"
)

const claudeMaxTokens = 512

type claudeProvider struct {
	client anthropic.Client
	model  string
}

func newClaude(config *common.ClaudeConfig) (*claudeProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("claude provider requires an API key")
	}
	return &claudeProvider{
		client: anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		model:  config.Model,
	}, nil
}

func (p *claudeProvider) name() string { return "claude" }

func (p *claudeProvider) generate(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: claudeMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response")
	}
	return text.String(), nil
}
