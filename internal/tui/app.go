// Package tui renders scan progress in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/smsledger/internal/service"
)

// ProgressMsg mirrors one service.ProgressFunc call.
type ProgressMsg struct {
	Current int
	Total   int
	Status  string
}

// DoneMsg ends the scan.
type DoneMsg struct {
	Summary service.Summary
	Err     error
}

// ScanFunc runs a scan, reporting through progress.
type ScanFunc func(ctx context.Context, progress service.ProgressFunc) (service.Summary, error)

// Model is the bubbletea model of a running scan.
type Model struct {
	title   string
	cancel  context.CancelFunc
	started time.Time
	width   int

	current int
	total   int
	status  string
	tally   map[string]int

	cancelling bool
	done       bool
	summary    service.Summary
	err        error
}

func New(title string, cancel context.CancelFunc) Model {
	return Model{
		title:   title,
		cancel:  cancel,
		started: time.Now(),
		width:   60,
		tally:   map[string]int{},
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case ProgressMsg:
		m.current, m.total, m.status = msg.Current, msg.Total, msg.Status
		m.tally[statusKind(msg.Status)]++
	case DoneMsg:
		m.done = true
		m.summary, m.err = msg.Summary, msg.Err
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// the first press asks the scan to stop and waits for its
			// partial summary; a second press leaves at once
			if m.cancelling {
				return m, tea.Quit
			}
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	b.WriteString(m.bar())
	fmt.Fprintf(&b, " %s\n", textStyle.Render(fmt.Sprintf("%d/%d", m.current, m.total)))

	fmt.Fprintf(&b, "%s  %s  %s  %s\n",
		okStyle.Render(fmt.Sprintf("inserted %d", m.tally["inserted"])),
		mutedStyle.Render(fmt.Sprintf("duplicate %d", m.tally["duplicate"])),
		mutedStyle.Render(fmt.Sprintf("rejected %d", m.tally["rejected"])),
		warnStyle.Render(fmt.Sprintf("malformed %d", m.tally["malformed"])),
	)

	switch {
	case m.done && m.err != nil:
		b.WriteString(errStyle.Render(stopReason(m.err)))
	case m.done:
		b.WriteString(okStyle.Render(fmt.Sprintf("done in %s", time.Since(m.started).Round(time.Millisecond))))
	case m.cancelling:
		b.WriteString(warnStyle.Render("cancelling..."))
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
	default:
		b.WriteString(mutedStyle.Render("fetching messages..."))
	}
	b.WriteString("\n")
	if !m.done {
		b.WriteString(mutedStyle.Render("q to stop"))
		b.WriteString("\n")
	}
	return b.String()
}

// Result returns the summary and error the scan finished with.
func (m Model) Result() (service.Summary, error) {
	if !m.done {
		return m.summary, context.Canceled
	}
	return m.summary, m.err
}

func (m Model) bar() string {
	w := max(m.width-20, 10)
	filled := 0
	if m.total > 0 {
		filled = w * m.current / m.total
	}
	return barFull.Render(strings.Repeat("█", filled)) + barEmpty.Render(strings.Repeat("░", w-filled))
}

// statusKind reduces a progress status such as "duplicate (exact)" or
// "rejected: OTP" to its outcome word.
func statusKind(status string) string {
	kind, _, _ := strings.Cut(status, " ")
	return strings.TrimSuffix(kind, ":")
}

func stopReason(err error) string {
	var be *service.BatchError
	switch {
	case errors.Is(err, context.Canceled):
		return "stopped; progress so far is saved"
	case errors.As(err, &be):
		return fmt.Sprintf("stopped at message %d: %v", be.Index, be.Err)
	default:
		return "failed: " + err.Error()
	}
}

// Run shows the scan in the terminal until it finishes or the user stops it.
func Run(ctx context.Context, title string, scan ScanFunc) (service.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(title, cancel))
	go func() {
		sum, err := scan(ctx, func(current, total int, status string) {
			p.Send(ProgressMsg{Current: current, Total: total, Status: status})
		})
		p.Send(DoneMsg{Summary: sum, Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return service.Summary{}, fmt.Errorf("run progress view: %w", err)
	}
	if m, ok := final.(Model); ok {
		return m.Result()
	}
	return service.Summary{}, context.Canceled
}
