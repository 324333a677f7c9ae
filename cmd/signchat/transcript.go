package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/signchat/internal/chat"
)

const bubbleWidth = 72

var (
	userBubbleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("33")).
			Padding(0, 1)

	botBubbleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("238")).
			Padding(0, 1)

	failureBubbleStyle = botBubbleStyle.
				Foreground(lipgloss.Color("203"))

	attachmentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				MarginBottom(1)
)

// transcript prints every appended message as a chat bubble. New lines are
// only ever added at the bottom, so the terminal scrolls with the log.
type transcript struct {
	mu sync.Mutex
	w  io.Writer
}

func newTranscript(w io.Writer) *transcript {
	return &transcript{w: w}
}

func (t *transcript) MessageInserted(_ int, m chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, renderMessage(m))
}

// renderMessage draws user messages on the right and bot replies on the left.
func renderMessage(m chat.Message) string {
	if noColor {
		return renderPlain(m)
	}

	style := botBubbleStyle
	align := lipgloss.Left
	switch {
	case m.Sender == chat.SenderUser:
		style = userBubbleStyle
		align = lipgloss.Right
	case m.Failed:
		style = failureBubbleStyle
	}

	text := m.Text
	if text == "" {
		text = " "
	}
	if lipgloss.Width(text)+2 > bubbleWidth-8 {
		style = style.Width(bubbleWidth - 8)
	}
	bubble := style.Render(text)
	if m.AttachmentPath != "" {
		bubble = lipgloss.JoinVertical(lipgloss.Right, bubble, attachmentStyle.Render(m.AttachmentPath))
	}
	return lipgloss.PlaceHorizontal(bubbleWidth, align, bubble)
}

func renderPlain(m chat.Message) string {
	var b strings.Builder
	if m.Sender == chat.SenderUser {
		b.WriteString("you: ")
	} else {
		b.WriteString("bot: ")
	}
	b.WriteString(m.Text)
	if m.AttachmentPath != "" {
		fmt.Fprintf(&b, " [%s]", m.AttachmentPath)
	}
	return b.String()
}

func renderSessionHeader(id, startedAt, baseURL string) string {
	line := fmt.Sprintf("Session %s  %s  %s", id, startedAt, baseURL)
	if noColor {
		return line + "\n"
	}
	return sessionHeaderStyle.Render(line)
}
