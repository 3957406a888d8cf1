package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mirror-persona/backend/internal/model/chat"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm/llmtest"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/session"
)

func setupRouter() (*chi.Mux, *session.Manager, *llmtest.Backend) {
	backend := llmtest.NewBackend()
	sessions := session.NewManager(llmtest.NewFactory(backend), session.Options{HistoryWindow: 8}, zerolog.Nop())
	handler := New(sessions)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, sessions, backend
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateSession(t *testing.T) {
	r, sessions, _ := setupRouter()

	resp := doJSON(r, http.MethodPost, "/sessions", `{"apiKey":"sk-test"}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	var snap chat.Snapshot
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &snap))
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, chat.StateIdle, snap.State)
	assert.NotContains(t, resp.Body.String(), "sk-test")
	assert.Equal(t, 1, sessions.Count())
}

func TestCreateSessionCredentialErrors(t *testing.T) {
	r, _, backend := setupRouter()

	resp := doJSON(r, http.MethodPost, "/sessions", `{"apiKey":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doJSON(r, http.MethodPost, "/sessions", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	backend.PingErr = errors.New("401 Unauthorized")
	resp = doJSON(r, http.MethodPost, "/sessions", `{"apiKey":"sk-bad"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Contains(t, resp.Body.String(), "Invalid API Key")

	backend.PingErr = errors.New("connection refused")
	resp = doJSON(r, http.MethodPost, "/sessions", `{"apiKey":"sk-ok"}`)
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Contains(t, resp.Body.String(), "An error occurred during configuration")
}

func TestSendMessageFlow(t *testing.T) {
	r, sessions, backend := setupRouter()
	ctx := context.Background()

	s, err := sessions.Create(ctx, "sk-test")
	require.NoError(t, err)

	resp := doJSON(r, http.MethodPost, "/sessions/"+s.ID()+"/messages", `{"text":"hello"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)

	backend.Chat.Push(llmtest.Text("Ana is a pilot. Ana sails. Everyone knows Ana."))
	_, err = s.CreateCharacter(ctx, session.Selection{Emotion: "happy", Gender: "Man", Name: "Ana"})
	require.NoError(t, err)

	resp = doJSON(r, http.MethodPost, "/sessions/"+s.ID()+"/messages", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	backend.Chat.Push(llmtest.Text("Hi yourself."))
	resp = doJSON(r, http.MethodPost, "/sessions/"+s.ID()+"/messages", `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var ex chat.Exchange
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &ex))
	assert.Equal(t, "hello", ex.User.Text)
	assert.Equal(t, "Hi yourself.", ex.Reply.Text)

	resp = doJSON(r, http.MethodGet, "/sessions/"+s.ID()+"/messages", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var transcript struct {
		State      chat.State  `json:"state"`
		Transcript []chat.Turn `json:"transcript"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &transcript))
	assert.Equal(t, chat.StateReady, transcript.State)
	require.Len(t, transcript.Transcript, 3)
	assert.Equal(t, chat.CreationNotice, transcript.Transcript[0].Text)
}

func TestEndSession(t *testing.T) {
	r, sessions, _ := setupRouter()

	s, err := sessions.Create(context.Background(), "sk-test")
	require.NoError(t, err)

	resp := doJSON(r, http.MethodDelete, "/sessions/"+s.ID(), "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), EndedMessage)
	assert.Equal(t, 0, sessions.Count())

	resp = doJSON(r, http.MethodGet, "/sessions/"+s.ID(), "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = doJSON(r, http.MethodDelete, "/sessions/"+s.ID(), "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
