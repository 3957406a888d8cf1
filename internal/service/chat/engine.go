// Package chat 基于角色的系统提示词执行一轮对话。
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mirror-persona/backend/internal/logging"
	"github.com/zhouzirui/mirror-persona/backend/internal/model/chat"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm"
)

const (
	// HistoryHeader 分隔系统提示词与历史记录窗口。
	HistoryHeader = "Conversation history (last few turns):\n"
	// FallbackReply 模型没能给出回复时记录的占位回复。
	FallbackReply = "Sorry, I couldn't produce a response right now."
	// DefaultWindow 提示词携带的历史条数。
	DefaultWindow = 8
)

// BuildPrompt 把系统提示词、最近 window 条历史和新消息拼成一段以 "Character:" 结尾的提示词。
func BuildPrompt(system string, history []chat.Turn, message string, window int) string {
	if window < 0 {
		window = 0
	}
	start := len(history) - window
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\n")
	b.WriteString(HistoryHeader)
	for _, turn := range history[start:] {
		b.WriteString(string(turn.Speaker))
		b.WriteString(": ")
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(message)
	b.WriteString("\nCharacter:")
	return b.String()
}

type turnInput struct {
	system  string
	history []chat.Turn
	message string
}

// Engine 对一轮对话调用一次模型。
type Engine struct {
	window int
	chain  compose.Runnable[turnInput, *schema.Message]
	logger zerolog.Logger
}

// NewEngine 编译 提示词 → 模型 的链。
func NewEngine(ctx context.Context, chatModel model.BaseChatModel, window int, logger zerolog.Logger) (*Engine, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is nil")
	}
	if window < 0 {
		window = DefaultWindow
	}

	e := &Engine{
		window: window,
		logger: logging.Component(logger, "chat"),
	}

	chain := compose.NewChain[turnInput, *schema.Message]()
	chain.AppendLambda(compose.InvokableLambda(func(_ context.Context, in turnInput) ([]*schema.Message, error) {
		return []*schema.Message{schema.UserMessage(BuildPrompt(in.system, in.history, in.message, e.window))}, nil
	}))
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	e.chain = runnable
	return e, nil
}

// Window 返回配置的历史窗口大小。
func (e *Engine) Window() int {
	return e.window
}

// Reply 原样返回模型文本。失败时同时返回 FallbackReply 和错误，调用方仍可记录这一轮。
func (e *Engine) Reply(ctx context.Context, system string, history []chat.Turn, message string) (string, error) {
	start := time.Now()

	msg, err := e.chain.Invoke(ctx, turnInput{system: system, history: history, message: message})
	if err == nil && (msg == nil || msg.Content == "") {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		e.logger.Warn().Err(err).Dur("elapsed", logging.Since(start)).Msg("chat reply failed")
		return FallbackReply, fmt.Errorf("generate reply: %w", err)
	}

	e.logger.Debug().
		Int("history", len(history)).
		Int("reply_len", len(msg.Content)).
		Dur("elapsed", logging.Since(start)).
		Msg("chat reply generated")
	return msg.Content, nil
}
