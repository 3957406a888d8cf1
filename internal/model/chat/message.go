package chat

import "time"

// Speaker 标识一条记录的发言方。
type Speaker string

const (
	SpeakerUser      Speaker = "User"
	SpeakerCharacter Speaker = "Character"
	SpeakerSystem    Speaker = "System"
)

// CreationNotice 是新对话记录开头唯一的 System 条目。
const CreationNotice = "A new character has been created!"

// Turn 对话记录中的一条。
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewTurn 以当前 UTC 时间创建一条记录。
func NewTurn(speaker Speaker, text string) Turn {
	return Turn{Speaker: speaker, Text: text, CreatedAt: time.Now().UTC()}
}

// Exchange 一轮对话的结果。模型出错时 Reply 是占位回复，Failure 记录原因。
type Exchange struct {
	User    Turn   `json:"user"`
	Reply   Turn   `json:"reply"`
	Failure string `json:"failure,omitempty"`
}
