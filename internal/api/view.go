package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/signchat/internal/chat"
	"github.com/kalambet/signchat/internal/storage"
)

const maxSelectBodySize = 64 << 10 // 64KB

// Conversation is the read side of the live chat log.
type Conversation interface {
	SessionID() string
	Messages() []chat.Message
}

// Selector queues a video selection on the running chat.
type Selector interface {
	Select(ctx context.Context, ref string) (string, error)
}

// History reads persisted sessions.
type History interface {
	ListSessions(limit int) ([]storage.SessionSummary, error)
	GetSession(id string) (storage.Session, error)
	ListMessages(sessionID string) ([]storage.Message, error)
}

type ViewDeps struct {
	Log      Conversation
	Selector Selector
	Store    History // optional; session routes answer 404 without it
	Token    string
}

type SelectRequest struct {
	Ref string `json:"ref"`
}

type SelectResponse struct {
	AttemptID string `json:"attempt_id"`
}

type sessionJSON struct {
	ID           string `json:"id"`
	StartedAt    string `json:"started_at"`
	BaseURL      string `json:"base_url"`
	MessageCount int    `json:"message_count"`
}

// NewViewHandler serves the live conversation and session history.
func NewViewHandler(deps ViewDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/messages", handleListMessages(deps))
		r.Post("/videos", handleSelectVideo(deps))
		r.Get("/sessions", handleListSessions(deps))
		r.Get("/sessions/{id}/messages", handleSessionMessages(deps))
	})

	return r
}

func handleHealth(deps ViewDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"session_id": deps.Log.SessionID(),
		})
	}
}

// handleListMessages returns the live log. ?since=N skips the first N
// entries so pollers can fetch only new lines.
func handleListMessages(deps ViewDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs := deps.Log.Messages()
		since := parseIntParam(r, "since", 0, 0)
		if since > len(msgs) {
			since = len(msgs)
		}
		writeJSON(w, http.StatusOK, msgs[since:])
	}
}

func handleSelectVideo(deps ViewDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSelectBodySize)
		defer r.Body.Close()

		var req SelectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Ref = strings.TrimSpace(req.Ref)
		if req.Ref == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "ref is required")
			return
		}

		id, err := deps.Selector.Select(r.Context(), req.Ref)
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "failed to queue video: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, SelectResponse{AttemptID: id})
	}
}

func handleListSessions(deps ViewDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httpError(w, http.StatusNotFound, "not_found", "history is not available")
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)
		sessions, err := deps.Store.ListSessions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
			return
		}

		out := make([]sessionJSON, len(sessions))
		for i, s := range sessions {
			out[i] = sessionJSON{
				ID:           s.ID,
				StartedAt:    s.StartedAt.Format(timeFormat),
				BaseURL:      s.BaseURL,
				MessageCount: s.MessageCount,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleSessionMessages(deps ViewDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httpError(w, http.StatusNotFound, "not_found", "history is not available")
			return
		}
		id := chi.URLParam(r, "id")

		if _, err := deps.Store.GetSession(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}

		msgs, err := deps.Store.ListMessages(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list messages: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, chat.FromStorage(msgs))
	}
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
