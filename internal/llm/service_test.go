package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/RichardoC/chatdesk/internal/models"
)

type fakeModel struct {
	got      []llms.MessageContent
	reply    *llms.ContentResponse
	err      error
	deadline bool
	// block waits for the context to end before failing with err.
	block bool
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = messages
	_, f.deadline = ctx.Deadline()
	if f.block {
		<-ctx.Done()
	}
	return f.reply, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, _ ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func TestNew(t *testing.T) {
	svc, err := New("", "test-key", "", time.Second)
	require.NoError(t, err)
	assert.NotNil(t, svc)

	svc, err = New("http://localhost:11434/v1/", "test-key", "llama3.1:8b", 0)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestComplete(t *testing.T) {
	model := &fakeModel{reply: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "Hi there"}},
	}}
	svc := NewWithModel(model, time.Minute)

	transcript := []models.Message{
		models.UserMessage("Hello"),
		models.AssistantMessage("Hi"),
		models.UserMessage("How are you?"),
	}
	reply, err := svc.Complete(context.Background(), transcript)
	require.NoError(t, err)
	assert.Equal(t, models.AssistantMessage("Hi there"), reply)
	assert.True(t, model.deadline)

	require.Len(t, model.got, 3)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.got[0].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.got[1].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.got[2].Role)
	assert.Equal(t, llms.TextContent{Text: "How are you?"}, model.got[2].Parts[0])
}

func TestComplete_Errors(t *testing.T) {
	t.Run("transport failure", func(t *testing.T) {
		boom := errors.New("connection refused")
		svc := NewWithModel(&fakeModel{err: boom}, 0)
		_, err := svc.Complete(context.Background(), []models.Message{models.UserMessage("Hello")})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("no choices", func(t *testing.T) {
		svc := NewWithModel(&fakeModel{reply: &llms.ContentResponse{}}, 0)
		_, err := svc.Complete(context.Background(), []models.Message{models.UserMessage("Hello")})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("timeout", func(t *testing.T) {
		model := &fakeModel{block: true, err: errors.New("request canceled")}
		_, err := NewWithModel(model, 10*time.Millisecond).Complete(context.Background(), []models.Message{models.UserMessage("Hello")})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorContains(t, err, "request canceled")
	})

	t.Run("no timeout configured", func(t *testing.T) {
		model := &fakeModel{reply: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}
		_, err := NewWithModel(model, 0).Complete(context.Background(), nil)
		require.NoError(t, err)
		assert.False(t, model.deadline)
	})
}
