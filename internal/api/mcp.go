package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/signchat/internal/chat"
)

// MCPChat is the part of the chat handler the MCP tools drive.
type MCPChat interface {
	Selector
	WaitAttempt(ctx context.Context, attemptID string) error
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Log     Conversation
	Chat    MCPChat
	Version string
}

// NewMCPServer creates an MCP server exposing the conversation as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"signchat",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("signchat sends sign-language videos to an interpretation service and keeps the conversation."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("send_video",
			mcp.WithDescription("Upload a video for interpretation and return the bot's reply."),
			mcp.WithString("ref", mcp.Description("Local path, file:// URI or http(s) URL of the video"), mcp.Required()),
		),
		mcpSendVideo(deps),
	)

	s.AddTool(
		mcp.NewTool("list_messages",
			mcp.WithDescription("List the most recent messages of the current conversation."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of messages (default 20)")),
		),
		mcpListMessages(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"signchat://transcript",
			"Conversation Transcript",
			mcp.WithResourceDescription("Current conversation as plain text, one line per message"),
			mcp.WithMIMEType("text/plain"),
		),
		mcpResourceTranscript(deps),
	)

	return s
}

func mcpSendVideo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, err := req.RequireString("ref")
		if err != nil || strings.TrimSpace(ref) == "" {
			return mcpError("ref is required"), nil
		}

		attemptID, err := deps.Chat.Select(ctx, strings.TrimSpace(ref))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to queue video: %v", err)), nil
		}
		if err := deps.Chat.WaitAttempt(ctx, attemptID); err != nil {
			return mcpError(fmt.Sprintf("waiting for reply: %v", err)), nil
		}

		reply, ok := botReply(deps.Log.Messages(), attemptID)
		if !ok {
			return mcpError("no reply recorded for this video"), nil
		}
		if reply.Failed {
			return mcpError(reply.Text), nil
		}
		return mcpText(reply.Text), nil
	}
}

func mcpListMessages(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 200 {
			limit = 200
		}

		msgs := deps.Log.Messages()
		if len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}

		b, err := json.Marshal(msgs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal messages: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceTranscript(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		var b strings.Builder
		for _, m := range deps.Log.Messages() {
			fmt.Fprintf(&b, "[%s] %s\n", m.Sender, m.Text)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/plain",
				Text:     b.String(),
			},
		}, nil
	}
}

// botReply finds the bot message belonging to attemptID.
func botReply(msgs []chat.Message, attemptID string) (chat.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].AttemptID == attemptID && msgs[i].Sender == chat.SenderBot {
			return msgs[i], true
		}
	}
	return chat.Message{}, false
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
