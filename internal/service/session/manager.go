// Package session 管理每个用户的会话状态：模型连接、识别出的属性、当前角色与对话记录。
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mirror-persona/backend/internal/logging"
	"github.com/zhouzirui/mirror-persona/backend/internal/model/chat"
	chatengine "github.com/zhouzirui/mirror-persona/backend/internal/service/chat"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm"
	personaservice "github.com/zhouzirui/mirror-persona/backend/internal/service/persona"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/vision"
)

// Options 控制新会话的默认行为。
type Options struct {
	HistoryWindow int
	DefaultName   string
	Vision        vision.Config
}

// Manager 内存中的会话注册表。
type Manager struct {
	factory llm.Factory
	opts    Options
	base    zerolog.Logger
	logger  zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager 创建空的注册表。
func NewManager(factory llm.Factory, opts Options, logger zerolog.Logger) *Manager {
	if strings.TrimSpace(opts.DefaultName) == "" {
		opts.DefaultName = "Alex"
	}
	return &Manager{
		factory:  factory,
		opts:     opts,
		base:     logger,
		logger:   logging.Component(logger, "session"),
		sessions: make(map[string]*Session),
	}
}

// Create 向模型供应商校验 apiKey，并登记一个新的空闲会话。
func (m *Manager) Create(ctx context.Context, apiKey string) (*Session, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, llm.ErrCredentialRequired
	}

	backend, err := m.factory.Open(ctx, key)
	if err != nil {
		if errors.Is(err, llm.ErrCredentialRequired) {
			return nil, err
		}
		return nil, llm.ClassifyCredentialError(err)
	}
	if err := backend.Ping(ctx); err != nil {
		m.logger.Warn().Str("provider", backend.Name()).Err(err).Msg("credential check failed")
		return nil, llm.ClassifyCredentialError(err)
	}

	visionSvc, err := vision.NewService(ctx, backend.VisionModel(), m.opts.Vision, m.base)
	if err != nil {
		return nil, fmt.Errorf("init vision: %w", err)
	}
	personaSvc, err := personaservice.NewService(ctx, backend.ChatModel(), m.base)
	if err != nil {
		return nil, fmt.Errorf("init persona: %w", err)
	}
	engine, err := chatengine.NewEngine(ctx, backend.ChatModel(), m.opts.HistoryWindow, m.base)
	if err != nil {
		return nil, fmt.Errorf("init chat: %w", err)
	}

	id := uuid.NewString()
	s := &Session{
		id:          id,
		createdAt:   time.Now().UTC(),
		defaultName: m.opts.DefaultName,
		logger:      m.logger.With().Str("session_id", id).Logger(),
		backend:     backend,
		vision:      visionSvc,
		personas:    personaSvc,
		engine:      engine,
		state:       chat.StateIdle,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	s.logger.Info().Str("provider", backend.Name()).Msg("session created")
	return s, nil
}

// Get 按 ID 获取会话。
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// End 移除会话并清空其持有的一切，包括凭证。
func (m *Manager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.end()
	m.logger.Info().Str("session_id", id).Msg("session ended")
	return nil
}

// Count 返回当前会话数。
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown 结束所有会话。
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.end()
	}
}
