package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mirror-persona/backend/internal/config"
	"github.com/zhouzirui/mirror-persona/backend/internal/handler"
	"github.com/zhouzirui/mirror-persona/backend/internal/logging"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/session"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/vision"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 加载 .env 文件
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.Log)
	log.Logger = logger
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file loaded, using system environment variables only")
	}

	factory, err := llm.NewFactory(cfg.AI, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize model provider")
	}

	sessions := session.NewManager(factory, session.Options{
		HistoryWindow: cfg.Session.HistoryWindow,
		DefaultName:   cfg.Session.DefaultName,
		Vision: vision.Config{
			MaxImageBytes: cfg.Session.MaxImageBytes,
			MaxPixels:     cfg.Session.MaxImagePixels,
			MaxDimension:  cfg.Session.MaxImageSide,
			JPEGQuality:   cfg.Session.JPEGQuality,
		},
	}, logger)
	// 进程退出时清空内存中的所有会话与凭证。
	defer sessions.Shutdown()

	logger.Info().
		Str("provider", string(cfg.AI.Provider)).
		Str("model", cfg.AI.Model).
		Str("vision_model", cfg.AI.VisionModel).
		Int("history_window", cfg.Session.HistoryWindow).
		Msg("model provider configured")

	router := handler.NewRouter(sessions, cfg.Session, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("mirror persona backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Error().Err(err).Msg("server error")
		return
	}
	logger.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
