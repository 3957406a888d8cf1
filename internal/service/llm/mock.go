package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/mirror-persona/backend/internal/config"
)

// mockBackend serves local runs without calling any external service.
type mockBackend struct {
	model *mockChatModel
}

// NewMockBackend returns a Backend whose models answer with canned text.
func NewMockBackend() Backend {
	return &mockBackend{model: &mockChatModel{}}
}

func (b *mockBackend) Name() string                     { return string(config.ProviderMock) }
func (b *mockBackend) ChatModel() model.BaseChatModel   { return b.model }
func (b *mockBackend) VisionModel() model.BaseChatModel { return b.model }
func (b *mockBackend) Ping(context.Context) error       { return nil }

type mockChatModel struct{}

const (
	mockVisionReply = "```json\n{\"emotion\":\"neutral\",\"gender\":\"Other\"}\n```"
	mockChatReply   = "Honestly? It's been a long day, but talking helps."
)

func (m *mockChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var prompt strings.Builder
	for _, msg := range input {
		if msg == nil {
			continue
		}
		for _, part := range msg.MultiContent {
			if part.Type == schema.ChatMessagePartTypeImageURL {
				return schema.AssistantMessage(mockVisionReply, nil), nil
			}
		}
		prompt.WriteString(msg.Content)
	}

	text := prompt.String()
	if strings.Contains(text, "character creator") {
		return schema.AssistantMessage(mockBiography(text), nil), nil
	}
	return schema.AssistantMessage(mockChatReply, nil), nil
}

func (m *mockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// mockBiography pulls the character name back out of the prompt and always answers in three sentences.
func mockBiography(prompt string) string {
	name := "The character"
	if _, rest, ok := strings.Cut(prompt, "name is "); ok {
		if candidate, _, ok := strings.Cut(rest, ","); ok && strings.TrimSpace(candidate) != "" {
			name = strings.TrimSpace(candidate)
		}
	}
	return fmt.Sprintf(
		"%s is a 30-something night-shift librarian in Lisbon. %s walks the riverfront every dawn and restores old radios on weekends. Everyone knows %s never forgets a face.",
		name, name, name,
	)
}
