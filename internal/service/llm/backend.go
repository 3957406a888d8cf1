// Package llm opens authenticated model backends for a session. Every backend
// exposes eino chat models so the services above it stay provider agnostic.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mirror-persona/backend/internal/config"
	"github.com/zhouzirui/mirror-persona/backend/internal/logging"
)

// Backend is one session's connection to a model vendor, bound to that session's key.
type Backend interface {
	// Name identifies the provider in logs.
	Name() string
	// ChatModel serves biography and chat generation.
	ChatModel() model.BaseChatModel
	// VisionModel serves image analysis.
	VisionModel() model.BaseChatModel
	// Ping issues one cheap list-style call to prove the key works.
	Ping(ctx context.Context) error
}

// Factory opens a Backend for an API key.
type Factory interface {
	Open(ctx context.Context, apiKey string) (Backend, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, apiKey string) (Backend, error)

// Open implements Factory.
func (f FactoryFunc) Open(ctx context.Context, apiKey string) (Backend, error) {
	return f(ctx, apiKey)
}

// Sampling carries the optional generation knobs shared by every provider.
type Sampling struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
}

func samplingFrom(cfg config.AIConfig) Sampling {
	var s Sampling
	if cfg.Temperature != nil {
		val := float32(*cfg.Temperature)
		s.Temperature = &val
	}
	if cfg.TopP != nil {
		val := float32(*cfg.TopP)
		s.TopP = &val
	}
	if cfg.MaxTokens != nil {
		val := *cfg.MaxTokens
		s.MaxTokens = &val
	}
	return s
}

// options merges call options over the configured sampling defaults.
func (s Sampling) options(modelName string, opts ...model.Option) *model.Options {
	name := modelName
	return model.GetCommonOptions(&model.Options{
		Model:       &name,
		Temperature: s.Temperature,
		TopP:        s.TopP,
		MaxTokens:   s.MaxTokens,
	}, opts...)
}

// NewFactory returns the Factory for the configured provider.
func NewFactory(cfg config.AIConfig, logger zerolog.Logger) (Factory, error) {
	sampling := samplingFrom(cfg)
	logger = logging.Component(logger, "llm").With().Str("provider", string(cfg.Provider)).Logger()

	switch cfg.Provider {
	case config.ProviderGemini:
		return FactoryFunc(func(ctx context.Context, apiKey string) (Backend, error) {
			return newGeminiBackend(ctx, cfg, sampling, apiKey)
		}), nil
	case config.ProviderArk:
		return FactoryFunc(func(ctx context.Context, apiKey string) (Backend, error) {
			return newArkBackend(ctx, cfg, sampling, apiKey)
		}), nil
	case config.ProviderOpenAI:
		return FactoryFunc(func(_ context.Context, apiKey string) (Backend, error) {
			return newOpenAIBackend(cfg, sampling, apiKey), nil
		}), nil
	case config.ProviderMock:
		logger.Warn().Msg("mock provider enabled, replies are canned")
		return FactoryFunc(func(_ context.Context, _ string) (Backend, error) {
			return NewMockBackend(), nil
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

func requireKey(apiKey string) (string, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return "", ErrCredentialRequired
	}
	return key, nil
}
