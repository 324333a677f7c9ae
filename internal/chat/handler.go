package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/signchat/internal/media"
	"github.com/kalambet/signchat/internal/upload"
)

// Fixed conversation texts.
const (
	TextVideoSent        = "Video sent"
	TextFileNotFound     = "video file not found"
	TextServerFailed     = "server response failed"
	TextConnectionFailed = "connection failed: "
)

// Materializer turns a content reference into a local file.
type Materializer interface {
	Materialize(ctx context.Context, ref string) (media.Result, error)
}

// Uploader starts an upload whose single Result arrives on the channel.
type Uploader interface {
	Start(ctx context.Context, path string) <-chan upload.Result
}

// State is the per-attempt lifecycle.
type State int

const (
	StateIdle State = iota
	StateMaterializing
	StateUploading
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMaterializing:
		return "materializing"
	case StateUploading:
		return "uploading"
	case StateDone:
		return "done"
	}
	return "unknown"
}

type attempt struct {
	id    string
	ref   string
	state State

	// guarded by Handler.mu
	done     chan struct{}
	finished bool
	err      error
}

type selectEvent struct{ a *attempt }

type materializedEvent struct {
	a   *attempt
	res media.Result
	err error
}

type uploadedEvent struct {
	a   *attempt
	res upload.Result
}

// ErrStopped is returned for selections made after Run has returned, and for
// attempts that were still pending when it did.
var ErrStopped = errors.New("chat handler stopped")

// Handler turns video selections into conversation entries. A single event
// loop (Run) owns the Log; materialization and upload run in background
// tasks and report back through the events channel.
//
// Attempts are processed one at a time in selection order because every
// materialization writes the same cache file.
type Handler struct {
	log      *Log
	mat      Materializer
	uploader Uploader
	events   chan any
	logger   *slog.Logger

	mu        sync.Mutex
	attempts  map[string]*attempt // finished entries stay for WaitAttempt
	pending   int
	idle      chan struct{} // closed while pending == 0
	stopped   bool
	abandoned int
	quit      chan struct{}

	// owned by the loop
	queue  []*attempt
	active *attempt
}

func NewHandler(log *Log, mat Materializer, uploader Uploader) *Handler {
	idle := make(chan struct{})
	close(idle)
	return &Handler{
		log:      log,
		mat:      mat,
		uploader: uploader,
		events:   make(chan any, 16),
		logger:   slog.Default(),
		attempts: make(map[string]*attempt),
		idle:     idle,
		quit:     make(chan struct{}),
	}
}

// Log returns the conversation the handler appends to.
func (h *Handler) Log() *Log {
	return h.log
}

// Select queues a video selection and returns its attempt id.
// Safe to call from any goroutine. Blocks only if the loop is not running
// and the event buffer is full, or until ctx is done. Fails with ErrStopped
// once Run has returned.
func (h *Handler) Select(ctx context.Context, ref string) (string, error) {
	a := &attempt{id: uuid.New().String(), ref: ref, state: StateIdle, done: make(chan struct{})}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return "", ErrStopped
	}
	h.attempts[a.id] = a
	if h.pending == 0 {
		h.idle = make(chan struct{})
	}
	h.pending++
	h.mu.Unlock()

	select {
	case h.events <- selectEvent{a: a}:
		return a.id, nil
	case <-h.quit:
		return "", ErrStopped
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.attempts, a.id)
		h.release(a, ctx.Err())
		h.mu.Unlock()
		return "", ctx.Err()
	}
}

// WaitAttempt blocks until the attempt with the given id reached Done, or
// ctx ends. Other attempts do not delay it beyond the selection order.
func (h *Handler) WaitAttempt(ctx context.Context, id string) error {
	h.mu.Lock()
	a, ok := h.attempts[id]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown attempt %s", id)
	}

	select {
	case <-a.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every selected attempt reached Done, or ctx ends.
// Selections made while waiting extend the wait.
func (h *Handler) Wait(ctx context.Context) error {
	for {
		h.mu.Lock()
		idle := h.idle
		h.mu.Unlock()

		select {
		case <-idle:
			h.mu.Lock()
			settled, abandoned := h.pending == 0, h.abandoned
			h.mu.Unlock()
			if !settled {
				continue
			}
			if abandoned > 0 {
				return ErrStopped
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// release marks a as finished. Callers hold h.mu.
func (h *Handler) release(a *attempt, err error) {
	if a.finished {
		return
	}
	a.finished = true
	a.err = err
	close(a.done)
	h.pending--
	if h.pending == 0 {
		close(h.idle)
	}
}

// Run is the event loop. It returns when ctx is cancelled, after background
// tasks have exited. Cancelling ctx aborts in-flight work; it is meant for
// process shutdown only. Attempts still pending at that point end with
// ErrStopped.
func (h *Handler) Run(ctx context.Context) {
	var g errgroup.Group
	defer h.stop()
	defer g.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.events:
			h.handle(ctx, &g, ev)
		}
	}
}

func (h *Handler) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	close(h.quit)
	for _, a := range h.attempts {
		if !a.finished {
			h.logger.Debug("attempt abandoned", "attempt", a.id, "state", a.state.String())
			h.abandoned++
			h.release(a, ErrStopped)
		}
	}
}

func (h *Handler) handle(ctx context.Context, g *errgroup.Group, ev any) {
	switch ev := ev.(type) {
	case selectEvent:
		h.queue = append(h.queue, ev.a)
		h.logger.Debug("video selected", "attempt", ev.a.id, "ref", ev.a.ref, "queued", len(h.queue))
		h.next(ctx, g)

	case materializedEvent:
		a := ev.a
		if ev.err != nil {
			h.logger.Warn("materialization failed", "attempt", a.id, "error", ev.err)
			h.log.Append(Message{Text: TextFileNotFound, Sender: SenderBot, AttemptID: a.id, Failed: true})
			h.finish(ctx, g, a)
			return
		}
		h.log.Append(Message{Text: TextVideoSent, Sender: SenderUser, AttachmentPath: a.ref, AttemptID: a.id})
		h.transition(a, StateUploading)
		results := h.uploader.Start(ctx, ev.res.Path)
		g.Go(func() error {
			var res upload.Result
			select {
			case r, ok := <-results:
				res = r
				if !ok {
					res = upload.TransportFailure{Reason: "upload ended without a result"}
				}
			case <-ctx.Done():
				return nil
			}
			h.post(ctx, uploadedEvent{a: a, res: res})
			return nil
		})

	case uploadedEvent:
		h.logger.Debug("upload finished", "attempt", ev.a.id, "result", ev.res.String())
		_, ok := ev.res.(upload.Success)
		h.log.Append(Message{Text: ReplyFor(ev.res), Sender: SenderBot, AttemptID: ev.a.id, Failed: !ok})
		h.finish(ctx, g, ev.a)
	}
}

// next starts the oldest queued attempt if nothing is active.
func (h *Handler) next(ctx context.Context, g *errgroup.Group) {
	if h.active != nil || len(h.queue) == 0 {
		return
	}
	a := h.queue[0]
	h.queue = h.queue[1:]
	h.active = a
	h.transition(a, StateMaterializing)

	g.Go(func() error {
		res, err := h.mat.Materialize(ctx, a.ref)
		h.post(ctx, materializedEvent{a: a, res: res, err: err})
		return nil
	})
}

func (h *Handler) finish(ctx context.Context, g *errgroup.Group, a *attempt) {
	h.transition(a, StateDone)
	h.active = nil
	h.mu.Lock()
	h.release(a, nil)
	h.mu.Unlock()
	h.next(ctx, g)
}

func (h *Handler) transition(a *attempt, to State) {
	h.logger.Debug("attempt transition", "attempt", a.id, "from", a.state.String(), "to", to.String())
	a.state = to
}

// post hands an event back to the loop. It drops the event once the loop
// is shutting down.
func (h *Handler) post(ctx context.Context, ev any) {
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}

// ReplyFor maps an upload outcome to the bot's reply text.
func ReplyFor(r upload.Result) string {
	switch r := r.(type) {
	case upload.Success:
		return r.Sentence
	case upload.TransportFailure:
		return TextConnectionFailed + r.Reason
	default:
		return TextServerFailed
	}
}
