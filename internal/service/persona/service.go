// Package persona 分两步生成角色：先由模型写一段简短人物小传，再套上固定的角色扮演提示词。
package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mirror-persona/backend/internal/logging"
	character "github.com/zhouzirui/mirror-persona/backend/internal/model/persona"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm"
)

// ErrSynthesis 包装两个阶段的所有失败。
var ErrSynthesis = errors.New("character synthesis failed")

// Service 负责人物生成。
type Service struct {
	biography compose.Runnable[map[string]any, *schema.Message]
	roleplay  prompt.ChatTemplate
	logger    zerolog.Logger
}

// NewService 围绕 chatModel 编译人物小传的链。
func NewService(ctx context.Context, chatModel model.BaseChatModel, logger zerolog.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is nil")
	}

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(prompt.FromMessages(schema.FString, schema.UserMessage(biographyTemplate)))
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile biography chain: %w", err)
	}

	return &Service{
		biography: runnable,
		roleplay:  prompt.FromMessages(schema.FString, schema.SystemMessage(roleplayTemplate)),
		logger:    logging.Component(logger, "persona"),
	}, nil
}

// BiographyPrompt 渲染第一阶段的请求。
func BiographyPrompt(ctx context.Context, spec character.Spec) (string, error) {
	msgs, err := prompt.FromMessages(schema.FString, schema.UserMessage(biographyTemplate)).Format(ctx, biographyVars(spec))
	if err != nil {
		return "", err
	}
	return msgs[0].Content, nil
}

func biographyVars(spec character.Spec) map[string]any {
	return map[string]any{
		"name":    spec.Name,
		"gender":  spec.Gender,
		"emotion": spec.Emotion,
	}
}

// Create 执行两个阶段，任何一步失败都不产出 Profile。
func (s *Service) Create(ctx context.Context, spec character.Spec) (character.Profile, error) {
	start := time.Now()

	msg, err := s.biography.Invoke(ctx, biographyVars(spec))
	if err != nil {
		s.logger.Warn().Err(err).Msg("biography generation failed")
		return character.Profile{}, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	bio := ""
	if msg != nil {
		bio = strings.TrimSpace(msg.Content)
	}
	if bio == "" {
		return character.Profile{}, fmt.Errorf("%w: %v", ErrSynthesis, llm.ErrEmptyResponse)
	}

	system, err := s.SystemPrompt(ctx, bio)
	if err != nil {
		return character.Profile{}, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	s.logger.Info().
		Str("gender", spec.Gender).
		Str("emotion", spec.Emotion).
		Int("profile_len", len(bio)).
		Dur("elapsed", logging.Since(start)).
		Msg("character synthesized")

	return character.Profile{
		Name:         spec.Name,
		Gender:       spec.Gender,
		Emotion:      spec.Emotion,
		ProfileText:  bio,
		SystemPrompt: system,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// SystemPrompt 用角色扮演规则包装人物小传。
func (s *Service) SystemPrompt(ctx context.Context, biography string) (string, error) {
	msgs, err := s.roleplay.Format(ctx, map[string]any{"profile": biography})
	if err != nil {
		return "", fmt.Errorf("format roleplay prompt: %w", err)
	}
	if len(msgs) == 0 {
		return "", errors.New("format roleplay prompt: no output")
	}
	return msgs[0].Content, nil
}
