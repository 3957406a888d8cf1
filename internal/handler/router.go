package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mirror-persona/backend/internal/config"
	"github.com/zhouzirui/mirror-persona/backend/internal/handler/chat"
	"github.com/zhouzirui/mirror-persona/backend/internal/handler/persona"
	"github.com/zhouzirui/mirror-persona/backend/internal/handler/realtime"
	"github.com/zhouzirui/mirror-persona/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/mirror-persona/backend/internal/middleware"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/session"
	"github.com/zhouzirui/mirror-persona/backend/pkg/utils"
)

// NewRouter 把 HTTP 路由接到核心服务上。
func NewRouter(sessions *session.Manager, cfg config.SessionConfig, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": sessions.Count(),
		})
	})

	chatHandler := chat.New(sessions)
	personaHandler := persona.New(sessions, cfg.DefaultName, cfg.MaxImageBytes)
	streamHandler := stream.New(sessions, logger)
	realtimeHandler := realtime.New(sessions, logger)

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		realtimeHandler.RegisterRoutes(api)
	})

	return r
}
