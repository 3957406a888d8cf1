// Package vision 让多模态模型判断照片中人物的主要情绪与性别。
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mirror-persona/backend/internal/analysis/attribute"
	"github.com/zhouzirui/mirror-persona/backend/internal/logging"
	"github.com/zhouzirui/mirror-persona/backend/internal/model/persona"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm"
)

// Instruction 随每张照片一起发送。
const Instruction = `Look at the person in the photo and infer two things: 1) their dominant emotion as one of: angry, happy, sad, fear, disgust, surprise, neutral, contempt; 2) perceived gender as one of: Man, Woman, Other. Respond ONLY as compact JSON like {"emotion":"happy","gender":"Man"}.`

// Config 控制图片预处理。
type Config struct {
	MaxImageBytes int64
	MaxPixels     int64
	MaxDimension  int
	JPEGQuality   int
}

// Outcome Analyze 的结果：属性，以及降级时给用户的提示。
type Outcome struct {
	Analysis persona.Analysis `json:"analysis"`
	Warning  string           `json:"warning,omitempty"`
}

// Service 对照片做一次视觉分析，失败时回退为 unknown。
type Service struct {
	cfg    Config
	runner compose.Runnable[[]byte, *schema.Message]
	logger zerolog.Logger
}

// NewService 编译 图片 → 消息 → 模型 的链。
func NewService(ctx context.Context, visionModel model.BaseChatModel, cfg Config, logger zerolog.Logger) (*Service, error) {
	if visionModel == nil {
		return nil, errors.New("vision model is nil")
	}

	chain := compose.NewChain[[]byte, *schema.Message]()
	chain.AppendLambda(compose.InvokableLambda(buildRequest))
	chain.AppendChatModel(visionModel)

	runner, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile vision chain: %w", err)
	}

	return &Service{
		cfg:    cfg,
		runner: runner,
		logger: logging.Component(logger, "vision"),
	}, nil
}

func buildRequest(_ context.Context, jpegBytes []byte) ([]*schema.Message, error) {
	return []*schema.Message{{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:      llm.EncodeDataURL("image/jpeg", jpegBytes),
					MIMEType: "image/jpeg",
				},
			},
			{Type: schema.ChatMessagePartTypeText, Text: Instruction},
		},
	}}, nil
}

// Analyze 不返回错误：任何失败都变成 unknown 加一条提示。
func (s *Service) Analyze(ctx context.Context, data []byte) Outcome {
	start := time.Now()

	normalized, err := NormalizeImage(data, s.cfg)
	if err != nil {
		return s.failed(err)
	}

	msg, err := s.runner.Invoke(ctx, normalized)
	if err != nil {
		return s.failed(err)
	}
	if msg == nil {
		return s.failed(llm.ErrEmptyResponse)
	}

	reply, err := ParseReply(msg.Content)
	if err != nil {
		return s.failed(err)
	}

	outcome := Outcome{Analysis: persona.Analysis{DominantEmotion: persona.Unknown, Gender: persona.Unknown}}
	var invalid []string

	if label, ok := attribute.ParseEmotion(reply.Emotion); ok {
		outcome.Analysis.DominantEmotion = string(label)
	} else {
		invalid = append(invalid, fmt.Sprintf("emotion %q", reply.Emotion))
	}
	if attribute.IsGender(reply.Gender) {
		outcome.Analysis.Gender = reply.Gender
	} else {
		invalid = append(invalid, fmt.Sprintf("gender %q", reply.Gender))
	}

	if len(invalid) > 0 {
		outcome.Warning = "Image analysis returned unrecognized " + strings.Join(invalid, " and ") + "; please choose manually."
	}

	s.logger.Info().
		Str("emotion", outcome.Analysis.DominantEmotion).
		Str("gender", outcome.Analysis.Gender).
		Dur("elapsed", logging.Since(start)).
		Msg("image analyzed")
	return outcome
}

func (s *Service) failed(err error) Outcome {
	s.logger.Warn().Err(err).Msg("image analysis failed")
	return Outcome{
		Analysis: persona.UnknownAnalysis(),
		Warning:  "Image analysis failed: " + err.Error(),
	}
}

// Reply 要求模型返回的 JSON。
type Reply struct {
	Emotion string
	Gender  string
}

type replyPayload struct {
	Emotion *string `json:"emotion"`
	Gender  *string `json:"gender"`
}

// ParseReply 去掉可选的代码块标记，并严格解码一个 JSON 对象。
func ParseReply(content string) (Reply, error) {
	text := stripFence(content)
	if text == "" {
		return Reply{}, llm.ErrEmptyResponse
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	var payload replyPayload
	if err := dec.Decode(&payload); err != nil {
		return Reply{}, fmt.Errorf("parse vision reply: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Reply{}, errors.New("parse vision reply: unexpected data after json object")
	}
	if payload.Emotion == nil || payload.Gender == nil {
		return Reply{}, errors.New("parse vision reply: emotion and gender are required")
	}

	return Reply{
		Emotion: strings.ToLower(strings.TrimSpace(*payload.Emotion)),
		Gender:  *payload.Gender,
	}, nil
}

func stripFence(content string) string {
	text := strings.TrimSpace(content)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	// 去掉 ``` 和紧跟的语言标记，标记后可能没有换行。
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimLeftFunc(text, isFenceTagRune)
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func isFenceTagRune(r rune) bool {
	return r == '_' || r == '-' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}
