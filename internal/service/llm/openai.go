package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/zhouzirui/mirror-persona/backend/internal/config"
)

type openAIBackend struct {
	client openaigo.Client
	chat   *openAIChatModel
	vision *openAIChatModel
}

func newOpenAIBackend(cfg config.AIConfig, sampling Sampling, apiKey string) *openAIBackend {
	b := &openAIBackend{
		client: openaigo.NewClient(
			option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
			option.WithAPIKey(strings.TrimSpace(apiKey)),
			// Failures surface to the caller; no retries.
			option.WithMaxRetries(0),
		),
	}
	b.chat = &openAIChatModel{backend: b, model: cfg.Model, sampling: sampling}
	b.vision = &openAIChatModel{backend: b, model: cfg.VisionModel, sampling: sampling}
	return b
}

func (b *openAIBackend) Name() string                     { return string(config.ProviderOpenAI) }
func (b *openAIBackend) ChatModel() model.BaseChatModel   { return b.chat }
func (b *openAIBackend) VisionModel() model.BaseChatModel { return b.vision }

// Ping lists the models visible to the key.
func (b *openAIBackend) Ping(ctx context.Context) error {
	if _, err := b.client.Models.List(ctx); err != nil {
		return ClassifyCredentialError(err)
	}
	return nil
}

// openAIChatModel adapts chat completions to eino's BaseChatModel.
type openAIChatModel struct {
	backend  *openAIBackend
	model    string
	sampling Sampling
}

func (m *openAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := m.sampling.options(m.model, opts...)

	params := openaigo.ChatCompletionNewParams{
		Model:    openaigo.ChatModel(*options.Model),
		Messages: toOpenAIMessages(input),
	}
	if options.Temperature != nil {
		params.Temperature = openaigo.Float(float64(*options.Temperature))
	}
	if options.TopP != nil {
		params.TopP = openaigo.Float(float64(*options.TopP))
	}
	if options.MaxTokens != nil {
		params.MaxCompletionTokens = openaigo.Int(int64(*options.MaxTokens))
	}

	resp, err := m.backend.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return schema.AssistantMessage(resp.Choices[0].Message.Content, nil), nil
}

func (m *openAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func toOpenAIMessages(input []*schema.Message) []openaigo.ChatCompletionMessageParamUnion {
	out := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			out = append(out, openaigo.SystemMessage(msg.Content))
		case schema.Assistant:
			out = append(out, openaigo.AssistantMessage(msg.Content))
		default:
			if len(msg.MultiContent) == 0 {
				out = append(out, openaigo.UserMessage(msg.Content))
				continue
			}
			parts := make([]openaigo.ChatCompletionContentPartUnionParam, 0, 1+len(msg.MultiContent))
			if msg.Content != "" {
				parts = append(parts, openaigo.TextContentPart(msg.Content))
			}
			for _, part := range msg.MultiContent {
				switch part.Type {
				case schema.ChatMessagePartTypeText:
					parts = append(parts, openaigo.TextContentPart(part.Text))
				case schema.ChatMessagePartTypeImageURL:
					if part.ImageURL == nil {
						continue
					}
					parts = append(parts, openaigo.ImageContentPart(openaigo.ChatCompletionContentPartImageImageURLParam{
						URL: part.ImageURL.URL,
					}))
				}
			}
			out = append(out, openaigo.UserMessage(parts))
		}
	}
	return out
}
