package answers

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/common"
)

type stubProvider struct {
	reply string
	err   error
	seen  string
}

func (p *stubProvider) name() string { return "stub" }

func (p *stubProvider) generate(_ context.Context, _, prompt string) (string, error) {
	p.seen = prompt
	return p.reply, p.err
}

func TestAnswerTrimsAndReturnsProviderText(t *testing.T) {
	provider := &stubProvider{reply: "  5 years of Go experience.  "}
	svc := &Service{provider: provider, logger: arbor.NewLogger()}

	answer, err := svc.Answer(context.Background(), "How many years of Go experience do you have?",
		map[string]string{"first_name": "Jane", "email": "jane@example.com"},
		"Senior engineer, Go since 2019.", "https://example.com/jobs/1")
	require.NoError(t, err)
	assert.Equal(t, "5 years of Go experience.", answer)

	assert.Contains(t, provider.seen, "first_name: Jane")
	assert.Contains(t, provider.seen, "Go since 2019")
	assert.Contains(t, provider.seen, "How many years of Go experience")
}

func TestAnswerUnknownIsAnError(t *testing.T) {
	svc := &Service{provider: &stubProvider{reply: "UNKNOWN"}, logger: arbor.NewLogger()}

	_, err := svc.Answer(context.Background(), "What is your visa status?", nil, "", "")
	assert.ErrorContains(t, err, "could not answer")
}

func TestAnswerProviderErrorPropagates(t *testing.T) {
	svc := &Service{provider: &stubProvider{err: fmt.Errorf("429 rate limited")}, logger: arbor.NewLogger()}

	_, err := svc.Answer(context.Background(), "Why this role?", nil, "", "")
	assert.ErrorContains(t, err, "stub answer failed")
}

func TestBuildPromptTruncatesCV(t *testing.T) {
	longCV := make([]byte, maxCVChars*2)
	for i := range longCV {
		longCV[i] = 'x'
	}

	prompt := buildPrompt("Question?", nil, string(longCV), "")
	assert.Less(t, len(prompt), maxCVChars+200)
}

func TestNewFromConfig(t *testing.T) {
	logger := arbor.NewLogger()

	svc, err := NewFromConfig(context.Background(), &common.LLMConfig{}, logger)
	require.NoError(t, err)
	assert.Nil(t, svc, "empty provider disables answering")

	_, err = NewFromConfig(context.Background(), &common.LLMConfig{Provider: "claude"}, logger)
	assert.ErrorContains(t, err, "API key")

	_, err = NewFromConfig(context.Background(), &common.LLMConfig{Provider: "oracle"}, logger)
	assert.ErrorContains(t, err, "unknown llm provider")
}
