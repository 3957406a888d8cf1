package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/mirror-persona/backend/internal/analysis/attribute"
	"github.com/zhouzirui/mirror-persona/backend/internal/model/chat"
	"github.com/zhouzirui/mirror-persona/backend/internal/model/persona"
	chatengine "github.com/zhouzirui/mirror-persona/backend/internal/service/chat"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm"
	personaservice "github.com/zhouzirui/mirror-persona/backend/internal/service/persona"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/vision"
)

// Selection 用户的手动选择。空字段使用照片分析的结果，Name 为空时使用默认名字。
type Selection struct {
	Name    string `json:"name"`
	Emotion string `json:"emotion"`
	Gender  string `json:"gender"`
}

// Session 一个用户的会话。所有方法都可并发调用，同一时间最多只有一次模型调用。
type Session struct {
	id          string
	createdAt   time.Time
	defaultName string
	logger      zerolog.Logger

	mu         sync.Mutex
	backend    llm.Backend
	vision     *vision.Service
	personas   *personaservice.Service
	engine     *chatengine.Engine
	analysis   *persona.Analysis
	spec       *persona.Spec
	profile    *persona.Profile
	transcript []chat.Turn
	state      chat.State
	pending    string
	busy       bool
	ended      bool
}

// ID 返回会话 ID。
func (s *Session) ID() string { return s.id }

// State 返回对话状态。
func (s *Session) State() chat.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// checkLocked 校验会话可以开始新的操作。调用方需持有锁。
func (s *Session) checkLocked() error {
	if s.ended {
		return ErrSessionEnded
	}
	if s.busy {
		return ErrSessionBusy
	}
	return nil
}

// AnalyzeImage 分析照片并保存结果，覆盖之前的结果。分析失败体现在 Outcome 里，不作为错误返回。
func (s *Session) AnalyzeImage(ctx context.Context, image []byte) (vision.Outcome, error) {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return vision.Outcome{}, err
	}
	s.busy = true
	svc := s.vision
	s.mu.Unlock()

	outcome := svc.Analyze(ctx, image)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.ended {
		return vision.Outcome{}, ErrSessionEnded
	}
	analysis := outcome.Analysis
	s.analysis = &analysis
	return outcome, nil
}

// Preview 把 sel 解析为相反的角色设定，但不生成角色。
func (s *Session) Preview(sel Selection) (persona.Spec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return persona.Spec{}, err
	}

	spec, err := s.resolveLocked(sel)
	if err != nil {
		return persona.Spec{}, err
	}
	s.spec = &spec
	return spec, nil
}

func (s *Session) resolveLocked(sel Selection) (persona.Spec, error) {
	emotion := strings.TrimSpace(sel.Emotion)
	if emotion == "" && s.analysis != nil && s.analysis.EmotionKnown() {
		emotion = s.analysis.DominantEmotion
	}
	if !attribute.IsEmotion(emotion) {
		return persona.Spec{}, ErrAttributeRequired
	}

	gender := strings.TrimSpace(sel.Gender)
	if gender == "" && s.analysis != nil && s.analysis.GenderKnown() {
		gender = s.analysis.Gender
	}
	if !attribute.IsGender(gender) {
		return persona.Spec{}, ErrAttributeRequired
	}

	name := strings.TrimSpace(sel.Name)
	if name == "" {
		name = s.defaultName
	}

	return persona.Spec{
		Name:    name,
		Gender:  attribute.OppositeGender(gender),
		Emotion: attribute.OppositeEmotion(emotion),
	}, nil
}

// CreateCharacter 为 sel 生成相反的角色。成功时替换原角色和对话记录，失败时不做任何改动。
func (s *Session) CreateCharacter(ctx context.Context, sel Selection) (persona.Profile, error) {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return persona.Profile{}, err
	}
	spec, err := s.resolveLocked(sel)
	if err != nil {
		s.mu.Unlock()
		return persona.Profile{}, err
	}
	s.busy = true
	svc := s.personas
	s.mu.Unlock()

	profile, err := svc.Create(ctx, spec)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.ended {
		return persona.Profile{}, ErrSessionEnded
	}
	if err != nil {
		return persona.Profile{}, err
	}

	s.spec = &spec
	s.profile = &profile
	s.transcript = []chat.Turn{chat.NewTurn(chat.SpeakerSystem, chat.CreationNotice)}
	s.pending = ""
	s.state = chat.StateReady

	s.logger.Info().Str("gender", spec.Gender).Str("emotion", spec.Emotion).Msg("character created")
	return profile, nil
}

// Submit 向角色发送一条消息。模型失败不算错误：记录占位回复，原因放在 Exchange.Failure。
func (s *Session) Submit(ctx context.Context, text string) (chat.Exchange, error) {
	message := strings.TrimSpace(text)
	if message == "" {
		return chat.Exchange{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if !s.ended && s.state == chat.StateAwaitingReply {
		s.mu.Unlock()
		return chat.Exchange{}, ErrReplyPending
	}
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return chat.Exchange{}, err
	}
	if s.profile == nil {
		s.mu.Unlock()
		return chat.Exchange{}, ErrNoCharacter
	}
	system := s.profile.SystemPrompt
	history := append([]chat.Turn(nil), s.transcript...)
	userTurn := chat.NewTurn(chat.SpeakerUser, message)
	s.state = chat.StateAwaitingReply
	s.pending = message
	s.busy = true
	engine := s.engine
	s.mu.Unlock()

	reply, replyErr := engine.Reply(ctx, system, history, message)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.ended {
		return chat.Exchange{}, ErrSessionEnded
	}

	exchange := chat.Exchange{
		User:  userTurn,
		Reply: chat.NewTurn(chat.SpeakerCharacter, reply),
	}
	if replyErr != nil {
		exchange.Failure = replyErr.Error()
	}
	s.transcript = append(s.transcript, exchange.User, exchange.Reply)
	s.pending = ""
	s.state = chat.StateReady
	return exchange, nil
}

// Transcript 返回对话记录的副本，以及正在等待回复的消息（如有）。
func (s *Session) Transcript() ([]chat.Turn, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil, "", ErrSessionEnded
	}
	return append([]chat.Turn{}, s.transcript...), s.pending, nil
}

// Profile 返回当前角色（如有）。
func (s *Session) Profile() (persona.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return persona.Profile{}, false
	}
	return *s.profile, true
}

// Snapshot 返回不含凭证的会话只读副本。
func (s *Session) Snapshot() chat.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := chat.Snapshot{
		ID:         s.id,
		State:      s.state,
		CreatedAt:  s.createdAt,
		Transcript: append([]chat.Turn{}, s.transcript...),
		Pending:    s.pending,
	}
	if s.analysis != nil {
		analysis := *s.analysis
		snap.Analysis = &analysis
	}
	if s.spec != nil {
		spec := *s.spec
		snap.Spec = &spec
	}
	if s.profile != nil {
		snap.Character = &chat.Character{
			Name:        s.profile.Name,
			Gender:      s.profile.Gender,
			Emotion:     s.profile.Emotion,
			ProfileText: s.profile.ProfileText,
			Brief:       persona.Brief(s.profile.ProfileText, persona.BriefMaxLen),
		}
	}
	return snap
}

func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = nil
	s.vision = nil
	s.personas = nil
	s.engine = nil
	s.analysis = nil
	s.spec = nil
	s.profile = nil
	s.transcript = nil
	s.pending = ""
	s.state = chat.StateIdle
	s.ended = true
}
