package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/signchat/internal/chat"
	"github.com/kalambet/signchat/internal/config"
	"github.com/kalambet/signchat/internal/media"
	"github.com/kalambet/signchat/internal/storage"
	"github.com/kalambet/signchat/internal/upload"
)

// chatSession is one running conversation: a fresh session row, its log and
// the handler loop that feeds it.
type chatSession struct {
	cfg     config.Config
	store   *storage.Store
	log     *chat.Log
	handler *chat.Handler

	stop context.CancelFunc
	done chan struct{}
}

// loadConfig reads the configuration and installs logging for it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg.Log.Level)
	return cfg, nil
}

func openStore(cfg config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

// startSession opens storage, records a new session and starts the handler
// loop. Close must be called to stop the loop and release storage.
func startSession(ctx context.Context) (*chatSession, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.UploadTimeout()
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	sessionID, err := chat.NewSession(store, cfg.Server.BaseURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating session: %w", err)
	}

	httpClient := &http.Client{Timeout: timeout}
	log := chat.NewLog(sessionID, store)
	handler := chat.NewHandler(
		log,
		media.NewMaterializer(cfg.Storage.CacheDir, httpClient),
		upload.New(cfg.Server.BaseURL, httpClient),
	)

	loopCtx, stop := context.WithCancel(ctx)
	s := &chatSession{
		cfg:     cfg,
		store:   store,
		log:     log,
		handler: handler,
		stop:    stop,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		handler.Run(loopCtx)
	}()

	slog.Debug("session started", "session_id", sessionID, "base_url", cfg.Server.BaseURL)
	return s, nil
}

func (s *chatSession) Close() {
	s.stop()
	<-s.done
	if err := s.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}

// resolveSession returns the session with id, or the latest one when id is empty.
func resolveSession(store *storage.Store, id string) (storage.Session, error) {
	var (
		sess storage.Session
		err  error
	)
	if id == "" {
		sess, err = store.LatestSession()
	} else {
		sess, err = store.GetSession(id)
	}
	if errors.Is(err, storage.ErrNotFound) {
		if id == "" {
			return storage.Session{}, fmt.Errorf("no sessions recorded yet")
		}
		return storage.Session{}, fmt.Errorf("session %s not found", id)
	}
	return sess, err
}
