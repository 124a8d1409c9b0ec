package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iksnae/chatsync/internal"
)

// MarkdownExporter writes a readable transcript
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(session *internal.Session, w io.Writer) error {
	title := session.Title
	if title == "" {
		title = internal.DeriveTitle(session.Messages)
	}
	if _, err := fmt.Fprintf(w, "# %s\n\n", escapeMarkdown(title)); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "**Session:** %s  \n", session.ID)
	if at := session.LastActivity(); !at.IsZero() {
		_, _ = fmt.Fprintf(w, "**Updated:** %s  \n", at.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n---\n\n", len(session.Messages))

	for i, msg := range session.Messages {
		_, _ = fmt.Fprintf(w, "**%s:**\n\n%s\n\n", msg.Sender, escapeMarkdown(msg.Text))
		if i < len(session.Messages)-1 {
			_, _ = fmt.Fprint(w, "---\n\n")
		}
	}
	return nil
}

// escapeMarkdown escapes bold and underline markers outside fenced code
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	inCode := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCode = !inCode
			continue
		}
		if inCode {
			continue
		}
		line = strings.ReplaceAll(line, "**", "\\*\\*")
		lines[i] = strings.ReplaceAll(line, "__", "\\_\\_")
	}
	return strings.Join(lines, "\n")
}

func (e *MarkdownExporter) Extension() string {
	return "md"
}
