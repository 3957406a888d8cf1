package chat

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mirror-persona/backend/internal/handler/httperror"
	"github.com/zhouzirui/mirror-persona/backend/internal/model/chat"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/session"
	"github.com/zhouzirui/mirror-persona/backend/pkg/utils"
)

// EndedMessage 在会话及其凭证被清除后展示。
const EndedMessage = "Session ended. All data (including API key) cleared."

// Handler 会话与聊天消息的HTTP处理器
type Handler struct {
	sessions *session.Manager
}

// New 创建聊天处理器
func New(sessions *session.Manager) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleEndSession)
	r.Get("/sessions/{sessionID}/messages", h.handleListMessages)
	r.Post("/sessions/{sessionID}/messages", h.handleSendMessage)
}

// handleCreateSession 校验 API Key 并创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		APIKey string `json:"apiKey"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.sessions.Create(r.Context(), payload.APIKey)
	if err != nil {
		httperror.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		httperror.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, s.Snapshot())
}

// handleEndSession 结束会话并清除所有数据
func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(chi.URLParam(r, "sessionID")); err != nil {
		httperror.Respond(w, err)
		return
	}
	utils.RespondMessage(w, http.StatusOK, EndedMessage)
}

type transcriptResponse struct {
	State      chat.State  `json:"state"`
	Transcript []chat.Turn `json:"transcript"`
	Pending    string      `json:"pending,omitempty"`
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		httperror.Respond(w, err)
		return
	}

	turns, pending, err := s.Transcript()
	if err != nil {
		httperror.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, transcriptResponse{
		State:      s.State(),
		Transcript: turns,
		Pending:    pending,
	})
}

// handleSendMessage 发送一条消息并同步等待角色回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		httperror.Respond(w, err)
		return
	}

	exchange, err := s.Submit(r.Context(), payload.Text)
	if err != nil {
		httperror.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, exchange)
}
