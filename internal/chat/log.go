package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/signchat/internal/storage"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one immutable chat line. Failed marks a bot reply that reports
// an unsuccessful attempt rather than an interpretation.
type Message struct {
	ID             string    `json:"id" yaml:"id"`
	Seq            int       `json:"seq" yaml:"seq"`
	Text           string    `json:"text" yaml:"text"`
	Sender         Sender    `json:"sender" yaml:"sender"`
	AttachmentPath string    `json:"attachment_path,omitempty" yaml:"attachment_path,omitempty"`
	AttemptID      string    `json:"attempt_id,omitempty" yaml:"attempt_id,omitempty"`
	Failed         bool      `json:"failed,omitempty" yaml:"failed,omitempty"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

// MessageStore persists appended messages.
type MessageStore interface {
	SaveMessage(m storage.Message) error
}

// Observer is told about every append, with the index of the new last item.
type Observer interface {
	MessageInserted(index int, m Message)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(index int, m Message)

func (f ObserverFunc) MessageInserted(index int, m Message) { f(index, m) }

// Log is the append-only, insertion-ordered conversation of one session.
// Only the session's event loop calls Append; readers on other goroutines
// use Messages and Len.
type Log struct {
	sessionID string
	store     MessageStore
	now       func() time.Time
	logger    *slog.Logger

	mu        sync.RWMutex
	messages  []Message
	observers []Observer
}

// NewLog creates an empty log for sessionID. store may be nil.
func NewLog(sessionID string, store MessageStore) *Log {
	return &Log{
		sessionID: sessionID,
		store:     store,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

func (l *Log) SessionID() string {
	return l.sessionID
}

// Observe registers o for all future appends.
func (l *Log) Observe(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// Append adds m at the end and notifies observers with the new last index.
// ID, Seq and CreatedAt are assigned here. A persistence failure is logged;
// the in-memory sequence stays authoritative.
func (l *Log) Append(m Message) Message {
	l.mu.Lock()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.Seq = len(l.messages)
	m.CreatedAt = l.now().UTC()
	l.messages = append(l.messages, m)
	observers := append([]Observer(nil), l.observers...)
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.SaveMessage(toStorage(l.sessionID, m)); err != nil {
			l.logger.Warn("persisting message failed", "session_id", l.sessionID, "seq", m.Seq, "error", err)
		}
	}

	for _, o := range observers {
		o.MessageInserted(m.Seq, m)
	}
	return m
}

// Messages returns a copy of the ordered sequence.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

func toStorage(sessionID string, m Message) storage.Message {
	return storage.Message{
		ID:             m.ID,
		SessionID:      sessionID,
		Seq:            m.Seq,
		Sender:         string(m.Sender),
		Text:           m.Text,
		AttachmentPath: m.AttachmentPath,
		AttemptID:      m.AttemptID,
		Failed:         m.Failed,
		CreatedAt:      m.CreatedAt,
	}
}

// FromStorage converts persisted messages back into chat messages.
func FromStorage(msgs []storage.Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{
			ID:             m.ID,
			Seq:            m.Seq,
			Text:           m.Text,
			Sender:         Sender(m.Sender),
			AttachmentPath: m.AttachmentPath,
			AttemptID:      m.AttemptID,
			Failed:         m.Failed,
			CreatedAt:      m.CreatedAt,
		}
	}
	return out
}

// SessionStore creates session rows.
type SessionStore interface {
	CreateSession(s storage.Session) error
}

// NewSession records a fresh session and returns its id.
func NewSession(store SessionStore, baseURL string) (string, error) {
	id := uuid.New().String()
	if err := store.CreateSession(storage.Session{ID: id, StartedAt: time.Now().UTC(), BaseURL: baseURL}); err != nil {
		return "", err
	}
	return id, nil
}
