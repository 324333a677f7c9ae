package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Session struct {
	ID        string
	StartedAt time.Time
	BaseURL   string
}

// SessionSummary is a Session with its message count.
type SessionSummary struct {
	Session
	MessageCount int
}

type Message struct {
	ID             string
	SessionID      string
	Seq            int
	Sender         string // "user" or "bot"
	Text           string
	AttachmentPath string // empty when the message has no attachment
	AttemptID      string
	Failed         bool
	CreatedAt      time.Time
}
