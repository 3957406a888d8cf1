package chat

import (
	"time"

	"github.com/zhouzirui/mirror-persona/backend/internal/model/persona"
)

// State 会话的对话状态。
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingReply State = "awaiting_reply"
	StateReady         State = "ready"
)

// Character 当前角色对前端可见的部分。
type Character struct {
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	Emotion     string `json:"emotion"`
	ProfileText string `json:"profileText"`
	Brief       string `json:"brief"`
}

// Snapshot 会话的只读副本，不包含凭证。
type Snapshot struct {
	ID         string            `json:"id"`
	State      State             `json:"state"`
	CreatedAt  time.Time         `json:"createdAt"`
	Analysis   *persona.Analysis `json:"analysis,omitempty"`
	Spec       *persona.Spec     `json:"spec,omitempty"`
	Character  *Character        `json:"character,omitempty"`
	Transcript []Turn            `json:"transcript"`
	Pending    string            `json:"pending,omitempty"`
}
