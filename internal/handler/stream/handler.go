package stream

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mirror-persona/backend/internal/handler/httperror"
	"github.com/zhouzirui/mirror-persona/backend/internal/logging"
	"github.com/zhouzirui/mirror-persona/backend/internal/model/chat"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/session"
	"github.com/zhouzirui/mirror-persona/backend/pkg/utils"
)

// Handler 用 Server-Sent Events 包装一轮对话，角色回复期间前端可以显示“正在输入”。
type Handler struct {
	sessions *session.Manager
	logger   zerolog.Logger
}

// New 创建流式处理器
func New(sessions *session.Manager, logger zerolog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		logger:   logging.Component(logger, "sse"),
	}
}

// RegisterRoutes 注册 SSE 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/stream", h.handleStream)
}

// StreamResponse 流式响应的数据块
type StreamResponse struct {
	SessionID string       `json:"sessionId,omitempty"`
	Content   string       `json:"content,omitempty"`
	Speaker   chat.Speaker `json:"speaker,omitempty"`
	Failure   string       `json:"failure,omitempty"`
	Finished  bool         `json:"finished,omitempty"`
	Error     string       `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	message := strings.TrimSpace(r.URL.Query().Get("message"))
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	s, err := h.sessions.Get(sessionID)
	if err != nil {
		httperror.Respond(w, err)
		return
	}

	stream, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	name := "Character"
	if profile, ok := s.Profile(); ok {
		name = profile.Name
	}
	if err := stream.Event("start", StreamResponse{
		SessionID: sessionID,
		Content:   name + " is typing...",
	}); err != nil {
		h.logger.Debug().Str("session_id", sessionID).Err(err).Msg("client went away before the turn")
		return
	}

	exchange, err := s.Submit(r.Context(), message)
	if err != nil {
		_, msg := httperror.Status(err)
		h.logger.Debug().Str("session_id", sessionID).Err(err).Msg("stream turn rejected")
		_ = stream.Event("error", StreamResponse{SessionID: sessionID, Error: msg})
		_ = stream.Event("end", StreamResponse{SessionID: sessionID, Finished: true})
		return
	}

	// 客户端断开时回合已经记进记录里，这里只丢掉推送。
	if err := stream.Event("message", StreamResponse{
		SessionID: sessionID,
		Content:   exchange.Reply.Text,
		Speaker:   exchange.Reply.Speaker,
		Failure:   exchange.Failure,
	}); err != nil {
		h.logger.Debug().Str("session_id", sessionID).Err(err).Msg("reply not delivered")
		return
	}
	_ = stream.Event("end", StreamResponse{SessionID: sessionID, Finished: true})
}
