package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/signchat/internal/chat"
	"github.com/kalambet/signchat/internal/config"
	"github.com/kalambet/signchat/internal/storage"
)

// --- send ---

var sendCmd = &cobra.Command{
	Use:   "send <video>...",
	Short: "Send one or more videos and print the replies",
	Long: `Send videos for interpretation, one after another, in a new session.

A video is a local path, a file:// URI or an http(s) URL.

Examples:
  signchat send ~/Movies/SIGN_240501_1030.mp4
  signchat send clip1.mp4 clip2.mp4`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := startSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		s.log.Observe(newTranscript(cmd.OutOrStdout()))

		for _, ref := range args {
			if _, err := s.handler.Select(ctx, ref); err != nil {
				return err
			}
		}
		if err := s.handler.Wait(ctx); err != nil {
			return err
		}

		if failed := countFailures(s.log.Messages()); failed > 0 {
			return fmt.Errorf("%d of %d videos failed", failed, len(args))
		}
		return nil
	},
}

func countFailures(msgs []chat.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Sender == chat.SenderBot && m.Failed {
			n++
		}
	}
	return n
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the messages of a session (default: the latest)",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		sess, err := resolveSession(store, sessionID)
		if err != nil {
			return err
		}
		msgs, err := store.ListMessages(sess.ID)
		if err != nil {
			return fmt.Errorf("listing messages: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, renderSessionHeader(sess.ID, sess.StartedAt.Local().Format("2006-01-02 15:04"), sess.BaseURL))
		for _, m := range chat.FromStorage(msgs) {
			fmt.Fprintln(out, renderMessage(m))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().String("session", "", "session id (default: latest)")
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := store.ListSessions(limit)
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
			return nil
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-36s  %-16s  %5s  %s\n", "ID", "STARTED", "MSGS", "SERVER")
		for _, s := range sessions {
			fmt.Fprintf(out, "%-36s  %-16s  %5d  %s\n",
				s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), s.MessageCount, s.BaseURL)
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().Int("limit", 20, "maximum number of sessions to list")
}

// --- export ---

type exportDoc struct {
	Session   string         `json:"session" yaml:"session"`
	StartedAt time.Time      `json:"started_at" yaml:"started_at"`
	BaseURL   string         `json:"base_url" yaml:"base_url"`
	Messages  []chat.Message `json:"messages" yaml:"messages"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a session as JSONL or YAML",
	Long: `Export a session's messages.

jsonl writes one JSON object per message; yaml writes a single document
with the session and its messages.

Examples:
  signchat export --format yaml --output session.yaml
  signchat export --session 6f1c... --format jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		if format != "jsonl" && format != "yaml" {
			return fmt.Errorf("unsupported format %q (want jsonl or yaml)", format)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		sess, err := resolveSession(store, sessionID)
		if err != nil {
			return err
		}
		msgs, err := store.ListMessages(sess.ID)
		if err != nil {
			return fmt.Errorf("listing messages: %w", err)
		}

		var writer io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}

		if err := writeExport(writer, format, sess, chat.FromStorage(msgs)); err != nil {
			return err
		}
		if output != "" {
			printSuccess("Session %s exported to %s", sess.ID, output)
		}
		return nil
	},
}

func writeExport(w io.Writer, format string, sess storage.Session, msgs []chat.Message) error {
	switch format {
	case "jsonl":
		enc := json.NewEncoder(w)
		for _, m := range msgs {
			record := map[string]any{"session": sess.ID, "message": m}
			if err := enc.Encode(record); err != nil {
				return fmt.Errorf("encoding message %d: %w", m.Seq, err)
			}
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		doc := exportDoc{Session: sess.ID, StartedAt: sess.StartedAt, BaseURL: sess.BaseURL, Messages: msgs}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format %q", format)
}

func init() {
	exportCmd.Flags().String("session", "", "session id (default: latest)")
	exportCmd.Flags().String("format", "jsonl", "output format: jsonl or yaml")
	exportCmd.Flags().String("output", "", "output file path (default: stdout)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s  (%s)\n", colorize(labelStyle, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in the config file.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %v)", err, config.ValidKeys())
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return fmt.Errorf("%w (valid keys: %v)", err, config.ValidKeys())
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
