package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/kalambet/signchat/internal/media"
)

const chatHelp = `Commands:
  <video>         send a video (path, file:// URI or http(s) URL)
  /pick <video>   same as above
  /record         record a new video with the capture command and send it
  /help           show this help
  /quit           leave the chat`

// drainTimeout bounds how long leaving the chat waits for in-flight uploads.
const drainTimeout = 30 * time.Second

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session. Each video you pick or record is
uploaded, and the interpretation appears as the bot's reply.

` + chatHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		video, _ := cmd.Flags().GetString("video")
		return runChat(cmd.Context(), video)
	},
}

func init() {
	chatCmd.Flags().String("video", "", "video to send as soon as the chat opens")
}

type chatAction int

const (
	actionNone chatAction = iota
	actionPick
	actionRecord
	actionHelp
	actionQuit
	actionInvalid
)

type chatInput struct {
	action chatAction
	arg    string
}

// parseChatLine turns one prompt line into an action. Anything that is not
// a slash command is taken as a video reference, so absolute paths work
// without /pick.
func parseChatLine(line string) chatInput {
	line = strings.TrimSpace(line)
	if line == "" {
		return chatInput{action: actionNone}
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/pick":
		if rest == "" {
			return chatInput{action: actionInvalid, arg: "/pick needs a video"}
		}
		return chatInput{action: actionPick, arg: rest}
	case "/record":
		return chatInput{action: actionRecord}
	case "/help", "/?":
		return chatInput{action: actionHelp}
	case "/quit", "/exit", "/q":
		return chatInput{action: actionQuit}
	}

	if looksLikeCommand(name) {
		return chatInput{action: actionInvalid, arg: fmt.Sprintf("unknown command %s (try /help)", name)}
	}
	return chatInput{action: actionPick, arg: line}
}

// looksLikeCommand is true for "/word" tokens that cannot be a file path.
func looksLikeCommand(token string) bool {
	return strings.HasPrefix(token, "/") && !strings.ContainsAny(token[1:], "/.")
}

func runChat(parent context.Context, video string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM)
	defer stop()

	s, err := startSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          colorize(labelStyle, "signchat› "),
		HistoryFile:     filepath.Join(s.cfg.Storage.DataDir, "chat_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("opening prompt: %w", err)
	}
	defer rl.Close()

	s.log.Observe(newTranscript(rl.Stdout()))
	recorder := media.NewRecorder(s.cfg.Capture.Command, s.cfg.Capture.Dir)

	fmt.Fprintln(rl.Stdout(), renderSessionHeader(s.log.SessionID(), time.Now().Format("2006-01-02 15:04"), s.cfg.Server.BaseURL))
	fmt.Fprintln(rl.Stdout(), chatHelp)

	if video != "" {
		if _, err := s.handler.Select(ctx, video); err != nil {
			return err
		}
	}

loop:
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break loop
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break loop
		}
		if err != nil {
			return err
		}

		in := parseChatLine(line)
		switch in.action {
		case actionNone:
		case actionPick:
			if _, err := s.handler.Select(ctx, in.arg); err != nil {
				return err
			}
		case actionRecord:
			if s.cfg.Capture.Command == "" {
				printWarning("No capture command configured; set capture.command first")
				continue
			}
			printStep("Recording into %s", s.cfg.Capture.Dir)
			path, err := recorder.Record(ctx)
			if err != nil {
				printWarning("Recording failed: %v", err)
				continue
			}
			if _, err := s.handler.Select(ctx, path); err != nil {
				return err
			}
		case actionHelp:
			fmt.Fprintln(rl.Stdout(), chatHelp)
		case actionQuit:
			break loop
		case actionInvalid:
			printWarning("%s", in.arg)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	if err := s.handler.Wait(waitCtx); err != nil {
		printWarning("Leaving with uploads still in flight")
	}
	fmt.Fprintln(os.Stderr)
	return nil
}
