package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/chatsync/internal"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	groupStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true)

	aiMessageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2)

	traceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// renderGroups prints the grouped history listing
func renderGroups(w io.Writer, groups []internal.Group, now time.Time) {
	total := 0
	for _, g := range groups {
		total += len(g.Sessions)
	}
	if total == 0 {
		fmt.Fprintln(w, headerStyle.Render("No conversations found"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d conversation(s)", total)))

	for _, g := range groups {
		fmt.Fprintln(w)
		fmt.Fprintln(w, groupStyle.Render(g.Label))
		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		for _, s := range g.Sessions {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n",
				idStyle.Render(s.ID),
				internal.TruncateTitle(displayTitle(s.Title)),
				countStyle.Render(strconv.Itoa(s.Count())),
				dateStyle.Render(formatWhen(s.LastActivity(), now)))
		}
		_ = tw.Flush()
	}
}

func displayTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return internal.DefaultTitle
	}
	return title
}

// formatWhen renders t relative to now
func formatWhen(t, now time.Time) string {
	if t.IsZero() {
		return "—"
	}
	t = t.In(now.Location())
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour && t.Day() == now.Day():
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func renderSessionHeader(w io.Writer, session *internal.Session) {
	fmt.Fprintln(w, headerStyle.Render(displayTitle(session.Title)))
	meta := []string{"ID: " + session.ID, fmt.Sprintf("Messages: %d", len(session.Messages))}
	if at := session.LastActivity(); !at.IsZero() {
		meta = append(meta, "Updated: "+at.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w, dateStyle.Render(strings.Join(meta, " • ")))
	fmt.Fprintln(w)
}

func renderMessage(w io.Writer, md *markdown, index, total int, msg internal.Message) {
	label := userMessageStyle.Render("You")
	if msg.Sender == internal.SenderAI {
		label = aiMessageStyle.Render("Assistant")
	}
	fmt.Fprintf(w, "%s %s\n", label, idStyle.Render(fmt.Sprintf("[%d/%d]", index, total)))

	text := strings.TrimSpace(msg.Text)
	switch {
	case text == "":
		fmt.Fprintln(w, messageContentStyle.Render(idStyle.Render("(empty message)")))
	case msg.Sender == internal.SenderAI:
		fmt.Fprintln(w, md.Render(text))
	default:
		fmt.Fprintln(w, messageContentStyle.Render(wrapText(text, 80)))
	}
	fmt.Fprintln(w)
}

func renderTrace(w io.Writer, entry internal.LogEntry) {
	line := fmt.Sprintf("[%s] %s", strings.ToUpper(string(entry.Type)), entry.Text)
	if entry.Details != "" {
		line += " :: " + entry.Details
	}
	fmt.Fprintln(w, traceStyle.Render(line))
}

// markdown renders assistant replies, falling back to plain wrapped text
type markdown struct {
	r *glamour.TermRenderer
}

func newMarkdown(w io.Writer) *markdown {
	style := glamour.WithStylePath("notty")
	if internal.IsTerminal(w) {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(80))
	if err != nil {
		internal.LogDebug("markdown renderer unavailable: %v", err)
		return &markdown{}
	}
	return &markdown{r: r}
}

func (m *markdown) Render(text string) string {
	if m.r != nil {
		if out, err := m.r.Render(text); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return messageContentStyle.Render(wrapText(text, 80))
}

func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		current := ""
		for _, word := range strings.Fields(line) {
			switch {
			case current == "":
				current = word
			case len(current)+len(word)+1 > width:
				wrapped = append(wrapped, current)
				current = word
			default:
				current += " " + word
			}
		}
		if current != "" {
			wrapped = append(wrapped, current)
		}
	}

	return strings.Join(wrapped, "\n")
}
