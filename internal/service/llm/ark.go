package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/mirror-persona/backend/internal/config"
)

type arkBackend struct {
	chat   model.BaseChatModel
	vision model.BaseChatModel
}

func newArkBackend(ctx context.Context, cfg config.AIConfig, sampling Sampling, apiKey string) (Backend, error) {
	key, err := requireKey(apiKey)
	if err != nil {
		return nil, err
	}

	chat, err := newArkChatModel(ctx, cfg, sampling, key, cfg.Model)
	if err != nil {
		return nil, err
	}

	vision := model.BaseChatModel(chat)
	if cfg.VisionModel != cfg.Model {
		vision, err = newArkChatModel(ctx, cfg, sampling, key, cfg.VisionModel)
		if err != nil {
			return nil, err
		}
	}

	return &arkBackend{chat: chat, vision: vision}, nil
}

func newArkChatModel(ctx context.Context, cfg config.AIConfig, sampling Sampling, key, modelName string) (*ark.ChatModel, error) {
	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		Region:      cfg.Region,
		APIKey:      key,
		Model:       modelName,
		MaxTokens:   sampling.MaxTokens,
		Temperature: sampling.Temperature,
		TopP:        sampling.TopP,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ark chat model: %w", err)
	}
	return cm, nil
}

func (b *arkBackend) Name() string                     { return string(config.ProviderArk) }
func (b *arkBackend) ChatModel() model.BaseChatModel   { return b.chat }
func (b *arkBackend) VisionModel() model.BaseChatModel { return b.vision }

// Ping spends a single output token: the Ark data plane has no model listing endpoint.
func (b *arkBackend) Ping(ctx context.Context) error {
	_, err := b.chat.Generate(ctx, []*schema.Message{schema.UserMessage("ping")}, model.WithMaxTokens(1))
	if err != nil {
		return ClassifyCredentialError(err)
	}
	return nil
}
