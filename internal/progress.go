package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	spinnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// ProgressStep is one named unit of a multi-step network operation
type ProgressStep struct {
	Message string
	Fn      func() error
}

// Spinner animates a message on w while a single operation runs
type Spinner struct {
	w        io.Writer
	interval time.Duration
}

// NewSpinner returns a Spinner drawing on w
func NewSpinner(w io.Writer) *Spinner {
	return &Spinner{w: w, interval: 100 * time.Millisecond}
}

// Run calls fn and animates until it returns or ctx is done. The final line
// carries a ✓ or ✗ marker. On cancellation fn keeps running in the
// background and Run returns ctx.Err().
func (s *Spinner) Run(ctx context.Context, message string, fn func() error) error {
	result := make(chan error, 1)
	go func() { result <- fn() }()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for frame := 0; ; frame++ {
		select {
		case err := <-result:
			s.finish(message, err)
			return err
		case <-ctx.Done():
			fmt.Fprintln(s.w)
			return ctx.Err()
		case <-ticker.C:
			fmt.Fprintf(s.w, "\r%s %s", spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]), message)
		}
	}
}

func (s *Spinner) finish(message string, err error) {
	marker := doneStyle.Render("✓")
	if err != nil {
		marker = failedStyle.Render("✗")
	}
	fmt.Fprintf(s.w, "\r%s %s\n", marker, message)
}

// ShowProgress runs fn behind a spinner when stderr is a terminal. Otherwise
// the message goes to the info log and fn runs plainly.
func ShowProgress(ctx context.Context, message string, fn func() error) error {
	if !IsTerminal(os.Stderr) {
		LogInfo("%s", message)
		return fn()
	}
	return NewSpinner(os.Stderr).Run(ctx, message, fn)
}

// ShowProgressWithSteps runs steps in order, numbering each message, and
// stops at the first failure.
func ShowProgressWithSteps(ctx context.Context, steps []ProgressStep) error {
	for i, step := range steps {
		label := fmt.Sprintf("[%d/%d] %s", i+1, len(steps), step.Message)
		if err := ShowProgress(ctx, label, step.Fn); err != nil {
			return fmt.Errorf("%s: %w", step.Message, err)
		}
	}
	return nil
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
