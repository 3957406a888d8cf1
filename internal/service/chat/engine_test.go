package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mirror-persona/backend/internal/model/chat"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm/llmtest"
)

func TestBuildPromptLayout(t *testing.T) {
	history := []chat.Turn{
		chat.NewTurn(chat.SpeakerSystem, chat.CreationNotice),
		chat.NewTurn(chat.SpeakerUser, "hi"),
		chat.NewTurn(chat.SpeakerCharacter, "hey there"),
	}

	got := BuildPrompt("SYS", history, "how are you?", 8)
	want := "SYS\n\nConversation history (last few turns):\n" +
		"System: A new character has been created!\n" +
		"User: hi\n" +
		"Character: hey there\n" +
		"User: how are you?\nCharacter:"
	assert.Equal(t, want, got)
}

func TestBuildPromptWindow(t *testing.T) {
	history := make([]chat.Turn, 0, 10)
	for i := 0; i < 10; i++ {
		history = append(history, chat.NewTurn(chat.SpeakerUser, fmt.Sprintf("m%d", i)))
	}

	got := BuildPrompt("SYS", history, "next", 8)
	assert.NotContains(t, got, "User: m0\n")
	assert.NotContains(t, got, "User: m1\n")
	for i := 2; i < 10; i++ {
		assert.Contains(t, got, fmt.Sprintf("User: m%d\n", i))
	}
	assert.Equal(t, 1, strings.Count(got, "User: next\n"))

	empty := BuildPrompt("SYS", nil, "first", 8)
	assert.Equal(t, "SYS\n\nConversation history (last few turns):\nUser: first\nCharacter:", empty)

	none := BuildPrompt("SYS", history, "x", 0)
	assert.NotContains(t, none, "m9")
}

func TestEngineReply(t *testing.T) {
	m := llmtest.NewModel(llmtest.Text("  Not bad, you?  "))
	engine, err := NewEngine(context.Background(), m, 8, zerolog.Nop())
	require.NoError(t, err)

	reply, err := engine.Reply(context.Background(), "SYS", nil, "hello")
	require.NoError(t, err)
	assert.Equal(t, "  Not bad, you?  ", reply)

	call := m.Call(0)
	require.Len(t, call, 1)
	assert.Equal(t, "SYS\n\nConversation history (last few turns):\nUser: hello\nCharacter:", call[0].Content)
}

func TestEngineReplyFailure(t *testing.T) {
	m := llmtest.NewModel(llmtest.Fail(errors.New("rate limited")), llmtest.Text(""))
	engine, err := NewEngine(context.Background(), m, 8, zerolog.Nop())
	require.NoError(t, err)

	reply, err := engine.Reply(context.Background(), "SYS", nil, "hello")
	assert.Error(t, err)
	assert.Equal(t, FallbackReply, reply)

	reply, err = engine.Reply(context.Background(), "SYS", nil, "hello")
	assert.Error(t, err)
	assert.Equal(t, FallbackReply, reply)
}
