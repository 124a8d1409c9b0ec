package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iksnae/chatsync/internal"
	"github.com/iksnae/chatsync/internal/conversation"
	"github.com/spf13/cobra"
)

var chatTrace bool

const chatHelp = `Commands:
  /new           start a new conversation
  /load <id>     continue a saved conversation
  /history [q]   list saved conversations, optionally filtered
  /cancel        abandon the reply being generated
  /help          show this help
  /quit          leave`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long: `Start an interactive chat with the assistant backend.

Every assistant reply is saved: to your account when signed in, locally
otherwise. Typing while a reply is pending replaces the pending turn.

` + chatHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		welcome(ctx, a, out)
		r := &repl{app: a, shell: a.shell(), out: out, md: newMarkdown(out)}
		return r.run(ctx, cmd.InOrStdin())
	},
}

func welcome(ctx context.Context, a *app, out io.Writer) {
	seen, err := internal.HasSeenWelcome(ctx, a.storage)
	if err != nil {
		internal.LogDebug("%v", err)
	}
	if seen {
		return
	}
	fmt.Fprintln(out, sectionStyle.Render("Welcome to chatsync"))
	fmt.Fprintln(out, "Ask anything. Replies are saved automatically; sign in with 'chatsync login' to keep them in your account.")
	fmt.Fprintln(out, chatHelp)
	fmt.Fprintln(out)
	if err := internal.DismissWelcome(ctx, a.storage); err != nil {
		internal.LogWarn("%v", err)
	}
}

type turnDone struct {
	result *conversation.TurnResult
	err    error
}

// repl reads input lines while at most one turn is in flight
type repl struct {
	app       *app
	shell     *conversation.Shell
	out       io.Writer
	md        *markdown
	lastTrace int64
	pending   int
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	done := make(chan turnDone, 8)
	r.prompt()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				r.drain(done)
				return nil
			}
			if quit := r.handle(ctx, line, done); quit {
				r.shell.Cancel()
				r.drain(done)
				return nil
			}
		case d := <-done:
			r.pending--
			r.finish(d)
		}
	}
}

// handle runs one input line and reports whether to quit
func (r *repl) handle(ctx context.Context, line string, done chan<- turnDone) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		r.prompt()
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.pending++
		go func() {
			res, err := r.shell.Send(ctx, line)
			done <- turnDone{result: res, err: err}
		}()
		return false
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch command {
	case "/quit", "/exit":
		return true
	case "/new":
		r.shell.NewChat()
		fmt.Fprintln(r.out, infoStyle.Render("Started a new conversation"))
	case "/cancel":
		if r.shell.State().Processing() {
			r.shell.Cancel()
			fmt.Fprintln(r.out, infoStyle.Render("Cancelled"))
		}
	case "/load":
		if arg == "" {
			fmt.Fprintln(r.out, errorStyle.Render("usage: /load <session-id>"))
			break
		}
		session, err := r.shell.Load(ctx, arg)
		if err != nil {
			r.reportError(err)
			break
		}
		renderSessionHeader(r.out, session)
		for i, msg := range session.Messages {
			renderMessage(r.out, r.md, i+1, len(session.Messages), msg)
		}
	case "/history":
		view := r.app.history()
		if err := view.Refresh(ctx); err != nil {
			r.reportError(err)
			break
		}
		renderGroups(r.out, view.Groups(arg), time.Now())
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	default:
		fmt.Fprintln(r.out, errorStyle.Render("unknown command "+command+", try /help"))
	}
	r.prompt()
	return false
}

func (r *repl) finish(d turnDone) {
	switch {
	case errors.Is(d.err, conversation.ErrSuperseded):
		internal.LogDebug("dropped superseded reply")
		return
	case d.err != nil:
		r.reportError(d.err)
	default:
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, r.md.Render(d.result.Reply.Text))
		fmt.Fprintln(r.out)
		if d.result.SyncErr != nil {
			if internal.IsAuthRequired(d.result.SyncErr) {
				fmt.Fprintln(r.out, warningStyle.Render("Not saved: your session expired. Run 'chatsync login'."))
			} else {
				fmt.Fprintln(r.out, warningStyle.Render("Not saved yet: "+d.result.SyncErr.Error()))
			}
		}
	}
	r.trace()
	r.prompt()
}

func (r *repl) drain(done <-chan turnDone) {
	for ; r.pending > 0; r.pending-- {
		r.finish(<-done)
	}
}

func (r *repl) trace() {
	if !chatTrace {
		return
	}
	for _, entry := range r.shell.State().Logs() {
		if entry.ID > r.lastTrace {
			renderTrace(r.out, entry)
			r.lastTrace = entry.ID
		}
	}
}

func (r *repl) reportError(err error) {
	if internal.IsAuthRequired(err) {
		fmt.Fprintln(r.out, errorStyle.Render("Not signed in or session expired. Run 'chatsync login'."))
		return
	}
	fmt.Fprintln(r.out, errorStyle.Render("Error: "+err.Error()))
}

func (r *repl) prompt() {
	if r.pending == 0 {
		fmt.Fprint(r.out, userMessageStyle.Render("> "))
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVar(&chatTrace, "trace", false, "Print the diagnostic log of each turn")
}
