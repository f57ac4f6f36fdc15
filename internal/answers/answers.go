package answers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/common"
	"github.com/ternarybob/peto/internal/interfaces"
)

const (
	maxCVChars    = 4000
	systemPrompt  = "You answer job-application form questions on behalf of a candidate. Answer in the first person, truthfully from the profile and CV provided. Keep answers short: one sentence for free-text questions, a single word or number where the question calls for it. If the profile does not contain the information, reply exactly UNKNOWN."
	unknownAnswer = "UNKNOWN"
)

// generator is one LLM backend producing a completion for a prompt
type generator interface {
	generate(ctx context.Context, system, prompt string) (string, error)
	name() string
}

// Service answers custom application questions through a configured
// LLM provider
type Service struct {
	provider generator
	logger   arbor.ILogger
}

// NewFromConfig builds the answering service for the configured
// provider. An empty provider disables answering; callers get (nil, nil)
// and escalate questions to interventions instead.
func NewFromConfig(ctx context.Context, config *common.LLMConfig, logger arbor.ILogger) (interfaces.QuestionAnswerer, error) {
	switch config.Provider {
	case "":
		return nil, nil
	case "claude":
		provider, err := newClaude(&config.Claude)
		if err != nil {
			return nil, err
		}
		return &Service{provider: provider, logger: logger}, nil
	case "gemini":
		provider, err := newGemini(ctx, &config.Gemini)
		if err != nil {
			return nil, err
		}
		return &Service{provider: provider, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", config.Provider)
	}
}

// Answer produces one answer for a custom form question
func (s *Service) Answer(ctx context.Context, question string, userData map[string]string, cvContent, jobContext string) (string, error) {
	prompt := buildPrompt(question, userData, cvContent, jobContext)

	text, err := s.provider.generate(ctx, systemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("%s answer failed: %w", s.provider.name(), err)
	}

	answer := strings.TrimSpace(text)
	if answer == "" || strings.EqualFold(answer, unknownAnswer) {
		return "", fmt.Errorf("provider could not answer %q", question)
	}

	s.logger.Debug().
		Str("provider", s.provider.name()).
		Str("question", question).
		Int("answer_len", len(answer)).
		Msg("Custom question answered")
	return answer, nil
}

func buildPrompt(question string, userData map[string]string, cvContent, jobContext string) string {
	var b strings.Builder

	b.WriteString("Candidate profile:\n")
	for key, value := range userData {
		if value == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", key, value)
	}

	if cvContent != "" {
		if len(cvContent) > maxCVChars {
			cvContent = cvContent[:maxCVChars]
		}
		b.WriteString("\nCV:\n")
		b.WriteString(cvContent)
		b.WriteString("\n")
	}

	if jobContext != "" {
		fmt.Fprintf(&b, "\nJob posting: %s\n", jobContext)
	}

	fmt.Fprintf(&b, "\nApplication question: %s\n\nAnswer:", question)
	return b.String()
}
