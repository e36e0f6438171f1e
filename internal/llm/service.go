package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/RichardoC/chatdesk/internal/models"
)

const DefaultModel = "gpt-3.5-turbo"

var ErrEmptyResponse = errors.New("empty completion response")

// Completer returns the next assistant message for an ordered transcript.
type Completer interface {
	Complete(ctx context.Context, messages []models.Message) (models.Message, error)
}

type Service struct {
	llm     llms.Model
	timeout time.Duration
}

// New builds a Service against an OpenAI compatible endpoint. An empty
// baseURL targets the OpenAI API itself.
func New(baseURL, token, model string, timeout time.Duration) (*Service, error) {
	if model == "" {
		model = DefaultModel
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return NewWithModel(llm, timeout), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, timeout time.Duration) *Service {
	return &Service{llm: model, timeout: timeout}
}

func (s *Service) Complete(ctx context.Context, messages []models.Message) (models.Message, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.llm.GenerateContent(ctx, convertMessages(messages))
	if err != nil {
		// keep the deadline visible to callers whatever the client wrapped it in
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return models.Message{}, fmt.Errorf("failed to generate completion: %w: %w", ctxErr, err)
		}
		return models.Message{}, fmt.Errorf("failed to generate completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.Message{}, ErrEmptyResponse
	}
	return models.AssistantMessage(resp.Choices[0].Content), nil
}

func convertMessages(messages []models.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, len(messages))
	for i, m := range messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		out[i] = llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		}
	}
	return out
}

var _ Completer = (*Service)(nil)
