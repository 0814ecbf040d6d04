package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
)

var headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF88")).Background(lipgloss.Color("#444444"))

type (
	lineMsg string
	doneMsg struct{ err error }
)

type progressModel struct {
	target  string
	loader  spinner.Model
	lines   []string
	done    bool
	aborted bool
	err     error
}

func newProgressModel(target string) *progressModel {
	return &progressModel{
		target: target,
		loader: spinner.New(
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("205"))),
			spinner.WithSpinner(spinner.Dot),
		),
	}
}

func (m *progressModel) Init() tea.Cmd {
	return m.loader.Tick
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		}
	case lineMsg:
		m.lines = append(m.lines, strings.Split(string(msg), "\n")...)
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.loader, cmd = m.loader.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	header := headerStyle.Render("Verifying " + m.target)
	status := m.loader.View() + " running checks..."
	switch {
	case m.aborted:
		status = errorStyle.Render("aborted")
	case m.done && m.err != nil:
		status = errorStyle.Render("failed: " + m.err.Error())
	case m.done:
		status = checkStyle.Render("done")
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s\n", header, strings.Join(m.lines, "\n"), status)
}

// programReporter forwards progress to a running bubbletea program.
type programReporter struct {
	p *tea.Program
}

func (r *programReporter) Report(msg string) {
	r.p.Send(lineMsg(styleMessage(msg)))
}

func (r *programReporter) Screenshot(session, path string) {
	r.p.Send(lineMsg(fmt.Sprintf("  %s screenshot saved to %s", session, path)))
}

func (r *programReporter) Error(err error) {
	r.p.Send(lineMsg(errorStyle.Render(errorMessage(err))))
}

// RunInteractive runs fn while rendering its progress with a spinner.
// Quitting the view cancels fn and waits for it to clean up.
func RunInteractive(ctx context.Context, target string, fn func(ctx context.Context, reporter Reporter) (*Result, error)) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(target))
	var (
		res    *Result
		runErr error
		done   = make(chan struct{})
	)
	go func() {
		defer close(done)
		res, runErr = fn(ctx, &programReporter{p: p})
		p.Send(doneMsg{err: runError(res, runErr)})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return res, errors.Wrapf(err, "failed to render progress")
	}
	cancel()
	<-done
	return res, runErr
}

func runError(res *Result, err error) error {
	if err != nil {
		return err
	}
	if res != nil {
		return res.Err
	}
	return nil
}
