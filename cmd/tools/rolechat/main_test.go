package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mirror-persona/backend/internal/analysis/attribute"
	chathandler "github.com/zhouzirui/mirror-persona/backend/internal/handler/chat"
	"github.com/zhouzirui/mirror-persona/backend/internal/model/persona"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm/llmtest"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/session"
)

func TestReadAPIKeyFromPipe(t *testing.T) {
	stdin := strings.NewReader("  sk-test  \nhello\n")
	in := bufio.NewReader(stdin)
	var out bytes.Buffer

	key, err := readAPIKey(stdin, in, &out, "gemini")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)
	assert.Contains(t, out.String(), "gemini API key: ")
	assert.NotContains(t, out.String(), "sk-test")

	rest, _ := in.ReadString('\n')
	assert.Equal(t, "hello\n", rest)
}

func TestChatLoop(t *testing.T) {
	backend := llmtest.NewBackend()
	sessions := session.NewManager(llmtest.NewFactory(backend), session.Options{HistoryWindow: 8}, zerolog.Nop())
	ctx := context.Background()

	sess, err := sessions.Create(ctx, "key")
	require.NoError(t, err)
	backend.Chat.Push(llmtest.Text("Mira is a 30-something baker in Porto. She sings at dawn. She never burns bread."))
	_, err = sess.CreateCharacter(ctx, session.Selection{Name: "Mira", Emotion: "sad", Gender: "Man"})
	require.NoError(t, err)

	backend.Chat.Push(llmtest.Text("Morning! Fresh bread?"))
	input := bufio.NewReader(strings.NewReader("\n/profile\nhi there\n/end\nignored\n"))
	var out bytes.Buffer

	require.NoError(t, chatLoop(ctx, sessions, sess, input, &out))

	text := out.String()
	assert.Contains(t, text, "Mira is a 30-something baker in Porto.")
	assert.Contains(t, text, "Mira is typing...")
	assert.Contains(t, text, "Mira: Morning! Fresh bread?")
	assert.Contains(t, text, chathandler.EndedMessage)
	assert.Equal(t, 2, backend.Chat.Calls())

	_, err = sessions.Get(sess.ID())
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestChatLoopEndsSessionOnEOF(t *testing.T) {
	backend := llmtest.NewBackend()
	sessions := session.NewManager(llmtest.NewFactory(backend), session.Options{}, zerolog.Nop())
	ctx := context.Background()

	sess, err := sessions.Create(ctx, "key")
	require.NoError(t, err)
	backend.Chat.Push(llmtest.Text("Sam is a 30-something pilot in Accra. He flies at night. He hates small talk."))
	_, err = sess.CreateCharacter(ctx, session.Selection{Emotion: "happy", Gender: "Woman"})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, chatLoop(ctx, sessions, sess, bufio.NewReader(strings.NewReader("")), &out))
	assert.Contains(t, out.String(), chathandler.EndedMessage)
	assert.Equal(t, 0, sessions.Count())
}

func TestPromptChoice(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("\nbored\n9\n3\nWoman\n"))
	var out bytes.Buffer

	got, err := promptChoice(in, &out, "your emotion", attribute.Emotions(), attribute.IsEmotion)
	require.NoError(t, err)
	assert.Equal(t, "sad", got)
	assert.Contains(t, out.String(), "1) angry")
	assert.Contains(t, out.String(), `"bored" is not one of the options.`)
	assert.Contains(t, out.String(), `"9" is not one of the options.`)

	got, err = promptChoice(in, &out, "your gender", attribute.Genders(), attribute.IsGender)
	require.NoError(t, err)
	assert.Equal(t, "Woman", got)
}

func TestPromptChoiceEOF(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("woman"))
	_, err := promptChoice(in, &bytes.Buffer{}, "your gender", attribute.Genders(), attribute.IsGender)
	assert.ErrorIs(t, err, session.ErrAttributeRequired)
}

func TestChooseMissingAsksOnlyForUnknown(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("2\n"))
	var out bytes.Buffer

	detected := persona.Analysis{DominantEmotion: persona.Unknown, Gender: "Man"}
	sel, err := chooseMissing(in, &out, session.Selection{Name: "Kai"}, detected)
	require.NoError(t, err)
	assert.Equal(t, session.Selection{Name: "Kai", Emotion: "happy"}, sel)
	assert.Contains(t, out.String(), "Choose your emotion:")
	assert.NotContains(t, out.String(), "Choose your gender:")

	out.Reset()
	sel, err = chooseMissing(in, &out, session.Selection{Emotion: "fear", Gender: "Other"}, persona.UnknownAnalysis())
	require.NoError(t, err)
	assert.Equal(t, session.Selection{Emotion: "fear", Gender: "Other"}, sel)
	assert.Empty(t, out.String())
}

func TestChooseMissingWithoutPhoto(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("angry\n3\n"))
	sel, err := chooseMissing(in, &bytes.Buffer{}, session.Selection{}, persona.UnknownAnalysis())
	require.NoError(t, err)
	assert.Equal(t, "angry", sel.Emotion)
	assert.Equal(t, "Other", sel.Gender)
}
