package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/zhouzirui/mirror-persona/backend/internal/config"
)

type geminiBackend struct {
	client *genai.Client
	chat   *geminiChatModel
	vision *geminiChatModel
}

func newGeminiBackend(ctx context.Context, cfg config.AIConfig, sampling Sampling, apiKey string) (Backend, error) {
	key, err := requireKey(apiKey)
	if err != nil {
		return nil, err
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	return &geminiBackend{
		client: client,
		chat:   &geminiChatModel{client: client, model: cfg.Model, sampling: sampling},
		vision: &geminiChatModel{client: client, model: cfg.VisionModel, sampling: sampling},
	}, nil
}

func (b *geminiBackend) Name() string                     { return string(config.ProviderGemini) }
func (b *geminiBackend) ChatModel() model.BaseChatModel   { return b.chat }
func (b *geminiBackend) VisionModel() model.BaseChatModel { return b.vision }

// Ping lists a single model page.
func (b *geminiBackend) Ping(ctx context.Context) error {
	if _, err := b.client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1}); err != nil {
		return ClassifyCredentialError(err)
	}
	return nil
}

// geminiChatModel adapts genai's GenerateContent to eino's BaseChatModel.
type geminiChatModel struct {
	client   *genai.Client
	model    string
	sampling Sampling
}

func (m *geminiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := m.sampling.options(m.model, opts...)

	system, contents, err := toGeminiContents(input)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: options.Temperature,
		TopP:        options.TopP,
	}
	if system != "" {
		// The genai samples send the system instruction as a user-role content.
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if options.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*options.MaxTokens)
	}

	res, err := m.client.Models.GenerateContent(ctx, *options.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return schema.AssistantMessage(text, nil), nil
}

func (m *geminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// toGeminiContents splits system text out and converts the rest into genai contents.
func toGeminiContents(input []*schema.Message) (string, []*genai.Content, error) {
	var system []string
	contents := make([]*genai.Content, 0, len(input))

	for _, msg := range input {
		if msg == nil {
			continue
		}
		if msg.Role == schema.System {
			system = append(system, msg.Content)
			continue
		}

		role := genai.Role(genai.RoleUser)
		if msg.Role == schema.Assistant {
			role = genai.RoleModel
		}

		parts := make([]*genai.Part, 0, 1+len(msg.MultiContent))
		if msg.Content != "" {
			parts = append(parts, genai.NewPartFromText(msg.Content))
		}
		for _, part := range msg.MultiContent {
			switch part.Type {
			case schema.ChatMessagePartTypeText:
				parts = append(parts, genai.NewPartFromText(part.Text))
			case schema.ChatMessagePartTypeImageURL:
				if part.ImageURL == nil {
					continue
				}
				imagePart, err := geminiImagePart(part.ImageURL)
				if err != nil {
					return "", nil, err
				}
				parts = append(parts, imagePart)
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}

	return strings.Join(system, "\n\n"), contents, nil
}

func geminiImagePart(image *schema.ChatMessageImageURL) (*genai.Part, error) {
	if strings.HasPrefix(image.URL, "data:") {
		mime, data, err := DecodeDataURL(image.URL)
		if err != nil {
			return nil, err
		}
		return genai.NewPartFromBytes(data, mime), nil
	}
	return genai.NewPartFromURI(image.URL, image.MIMEType), nil
}
