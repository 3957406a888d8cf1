package session

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionEnded      = errors.New("session has ended")
	ErrSessionBusy       = errors.New("session is busy with another request")
	ErrReplyPending      = errors.New("still waiting for the previous reply")
	ErrNoCharacter       = errors.New("create a character before chatting")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrAttributeRequired = errors.New("emotion and gender must be selected")
)
