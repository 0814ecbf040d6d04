package verify

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/savioxavier/termlink"
)

// Reporter receives the progress of a run.
type Reporter interface {
	Report(msg string)
	Screenshot(session, path string)
	Error(err error)
}

var (
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFF88"))
	checkStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF3333"))
	linkStyle   = "italic green"
)

// ConsoleReporter writes progress lines. Lipgloss drops the colors when out
// is not a terminal, so piped output is the plain message text.
type ConsoleReporter struct {
	out        io.Writer
	hyperlinks bool
	mu         sync.Mutex
}

func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out, hyperlinks: termlink.SupportsHyperlinks()}
}

func (r *ConsoleReporter) Report(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, styleMessage(msg))
}

func (r *ConsoleReporter) Screenshot(session, path string) {
	if !r.hyperlinks {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "  %s screenshot saved to %s\n", session,
		termlink.ColorLink(filepath.Base(path), "file://"+abs, linkStyle))
}

func (r *ConsoleReporter) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, errorStyle.Render(errorMessage(err)))
}

func errorMessage(err error) string {
	return fmt.Sprintf("An error occurred: %s", err)
}

// styleMessage keeps leading newlines outside the styled text.
func styleMessage(msg string) string {
	text := strings.TrimLeft(msg, "\n")
	prefix := msg[:len(msg)-len(text)]
	switch {
	case strings.HasPrefix(text, "- "):
		return prefix + checkStyle.Render(text)
	case text != "":
		return prefix + bannerStyle.Render(text)
	}
	return msg
}
