// Package ui renders generation progress in the terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"bridgegen/internal/buildpipeline"
)

type progressModel struct {
	title   string
	events  <-chan buildpipeline.Event
	spinner spinner.Model
	prog    progress.Model
	stages  []stageRow
	index   map[buildpipeline.Stage]int
	width   int
	done    bool
	failed  bool
}

type stageRow struct {
	stage   buildpipeline.Stage
	status  buildpipeline.Status
	detail  string
	crates  []crateRow
	byCrate map[string]int
}

type crateRow struct {
	name   string
	status buildpipeline.Status
}

type eventMsg buildpipeline.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders one row per
// pipeline stage, with per-crate rows under the stages that report them.
func NewProgressModel(title string, events <-chan buildpipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	rows := make([]stageRow, len(buildpipeline.Stages))
	index := make(map[buildpipeline.Stage]int, len(rows))
	for i, st := range buildpipeline.Stages {
		rows[i] = stageRow{stage: st, status: buildpipeline.StatusQueued, byCrate: make(map[string]int)}
		index[st] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		stages:  rows,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(buildpipeline.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	switch {
	case m.done && m.failed:
		header = "failed: " + header
	case m.done:
		header = "done: " + header
	default:
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	const statusWidth = 9
	nameWidth := max(m.width-statusWidth-6, 20)
	for _, row := range m.stages {
		name := string(row.stage)
		if row.detail != "" {
			name += "  " + row.detail
		}
		fmt.Fprintf(&b, "  %s %s\n", styleStatus(row.status).Render(fmt.Sprintf("%*s", statusWidth, row.status)), truncate(name, nameWidth))
		for _, c := range row.crates {
			fmt.Fprintf(&b, "    %s %s\n", styleStatus(c.status).Render(fmt.Sprintf("%*s", statusWidth, c.status)), truncate(c.name, nameWidth-2))
		}
	}

	b.WriteString("\n")
	if m.done && !m.failed {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev buildpipeline.Event) tea.Cmd {
	idx, ok := m.index[ev.Stage]
	if !ok {
		return nil
	}
	row := &m.stages[idx]
	if ev.Crate != "" {
		ci, seen := row.byCrate[ev.Crate]
		if !seen {
			ci = len(row.crates)
			row.byCrate[ev.Crate] = ci
			row.crates = append(row.crates, crateRow{name: ev.Crate})
		}
		row.crates[ci].status = ev.Status
		return nil
	}
	row.status = ev.Status
	switch ev.Status {
	case buildpipeline.StatusDone, buildpipeline.StatusSkipped:
		row.detail = ev.Elapsed.Round(time.Millisecond).String()
	case buildpipeline.StatusError:
		m.failed = true
		if ev.Err != nil {
			row.detail = firstLine(ev.Err.Error())
		}
	}
	return m.prog.SetPercent(completion(m.stages))
}

// completion is the share of stages that have finished either way.
func completion(rows []stageRow) float64 {
	if len(rows) == 0 {
		return 0
	}
	finished := 0.0
	for _, r := range rows {
		switch r.status {
		case buildpipeline.StatusDone, buildpipeline.StatusSkipped, buildpipeline.StatusError:
			finished++
		case buildpipeline.StatusWorking:
			finished += 0.5
		}
	}
	return finished / float64(len(rows))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func styleStatus(status buildpipeline.Status) lipgloss.Style {
	switch status {
	case buildpipeline.StatusDone:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case buildpipeline.StatusError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case buildpipeline.StatusWorking:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	case buildpipeline.StatusSkipped:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
