package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/signchat/internal/api"
	"github.com/kalambet/signchat/internal/upload"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a chat session behind a local HTTP view",
	Long: `Run a chat session and expose it on 127.0.0.1:

  GET  /health                  liveness and current session id
  GET  /messages[?since=N]      the live conversation
  POST /videos {"ref": "..."}   queue a video
  GET  /sessions                recorded sessions
  GET  /sessions/{id}/messages  messages of a recorded session

All routes except /health require the view.token bearer token when it is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		return runServe(cmd.Context(), port)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (default: view.port)")
}

func runServe(parent context.Context, port int) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := startSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	s.log.Observe(newTranscript(os.Stdout))

	if port == 0 {
		port = s.cfg.View.Port
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewViewHandler(api.ViewDeps{
			Log:      s.log,
			Selector: s.handler,
			Store:    s.store,
			Token:    s.cfg.View.Token,
		}),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		printStep("signchat %s listening on http://%s (session %s)", version, addr, s.log.SessionID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the chat as MCP tools over stdio",
	Long: `Serve a chat session over the Model Context Protocol on stdin/stdout.

Tools: send_video (ref) returns the interpretation; list_messages (limit)
returns recent messages as JSON. The transcript is also readable as the
signchat://transcript resource.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(cmd.Context())
	},
}

func runMCP(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := startSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Log:     s.log,
		Chat:    s.handler,
		Version: version,
	})
	slog.Info("MCP server started (stdio transport)", "session_id", s.log.SessionID())

	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service, view and storage status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func showStatus(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}

	service := upload.New(cfg.Server.BaseURL, client)
	if service.IsReachable(ctx) {
		printStatus("Service", "reachable at %s", service.BaseURL())
	} else {
		printStatus("Service", "unreachable at %s", service.BaseURL())
	}

	viewURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.View.Port)
	resp, err := client.Get(viewURL)
	if err != nil {
		printStatus("View", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("View", "running on port %d", cfg.View.Port)
		} else {
			printStatus("View", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Capture.Command == "" {
		printStatus("Capture", "not configured")
	} else {
		printStatus("Capture", "%s -> %s", cfg.Capture.Command, cfg.Capture.Dir)
	}

	store, err := openStore(cfg)
	if err != nil {
		printStatus("Storage", "error: %v", err)
		return nil
	}
	defer store.Close()

	printStatus("Storage", "%s", cfg.Storage.DataDir)
	if sess, err := store.LatestSession(); err == nil {
		printStatus("Last session", "%s (%s)", sess.ID, sess.StartedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
