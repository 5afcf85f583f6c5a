package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

type uiModel struct {
	config *Config
	cancel *CancelFlag

	spinner  spinner.Model
	progress progress.Model

	prog       ScanProgress
	report     *Report
	err        error
	cancelling bool
	done       bool

	progressChan chan ScanProgress

	width  int
	height int
}

type runCompleteMsg struct {
	report *Report
	err    error
}

type progressMsg ScanProgress

func initialModel(config *Config, cancel *CancelFlag) uiModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithoutPercentage(),
	)
	p.Width = 60

	return uiModel{
		config:       config,
		cancel:       cancel,
		spinner:      s,
		progress:     p,
		progressChan: make(chan ScanProgress, 100),
	}
}

func (m uiModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		runPipeline(m.config, m.cancel, m.progressChan),
		waitForProgress(m.progressChan),
	)
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		progressWidth := msg.Width - 35
		if progressWidth < 20 {
			progressWidth = 20
		}
		m.progress.Width = progressWidth
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.done {
				return m, tea.Quit
			}
			// cooperative: request cancel, wait for state to be saved
			m.cancelling = true
			m.cancel.Cancel()
			return m, nil
		case "enter":
			if m.done {
				return m, tea.Quit
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		m.prog = ScanProgress(msg)
		return m, waitForProgress(m.progressChan)

	case runCompleteMsg:
		m.report = msg.report
		m.err = msg.err
		m.done = true
		return m, nil
	}

	return m, nil
}

func (m uiModel) View() string {
	var b strings.Builder
	b.WriteString("\n")

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		MarginLeft(2)
	b.WriteString(titleStyle.Render("Takeout Fixer"))
	b.WriteString("\n\n")

	configStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		MarginLeft(2)
	b.WriteString(configStyle.Render(fmt.Sprintf(
		"%s → %s | %s | Workers: %d",
		truncatePath(m.config.SourcePath, 25),
		truncatePath(m.config.DestPath, 25),
		m.config.Mode,
		m.config.CopyWorkers,
	)))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).MarginLeft(2)
		b.WriteString(errStyle.Render("✗ " + m.err.Error()))
		b.WriteString("\n")

	case m.done:
		b.WriteString(m.renderSummary())

	default:
		status := m.prog.Message
		if m.cancelling {
			status = "Cancelling... saving state"
		}
		b.WriteString(fmt.Sprintf("  %s %s\n\n", m.spinner.View(), status))

		if m.prog.TotalItems > 0 {
			percent := float64(m.prog.CurrentItem) / float64(m.prog.TotalItems)
			b.WriteString("  ")
			b.WriteString(m.progress.ViewAs(percent))
			b.WriteString(fmt.Sprintf(" %d%% (%d/%d)\n", int(percent*100), m.prog.CurrentItem, m.prog.TotalItems))
		} else if m.prog.CurrentItem > 0 {
			b.WriteString(fmt.Sprintf("  %d items found so far...\n", m.prog.CurrentItem))
		}
	}

	b.WriteString("\n\n")
	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		MarginLeft(2)
	if m.done {
		b.WriteString(helpStyle.Render("enter/q: quit"))
	} else {
		b.WriteString(helpStyle.Render("q: cancel (state is saved for resume)"))
	}
	b.WriteString("\n")

	return b.String()
}

func (m uiModel) renderSummary() string {
	var b strings.Builder

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		MarginLeft(2)

	r := m.report
	head := "✓ Complete"
	if r.Cancelled {
		head = "■ Cancelled — state saved, re-run to resume"
	}

	var lines []string
	lines = append(lines, head)
	lines = append(lines, fmt.Sprintf("Sidecars: %d • Media: %d • Matched: %d",
		r.SidecarCount, r.MediaCount, r.MatchedCount))
	if m.config.Mode == ModeDryRun {
		lines = append(lines, fmt.Sprintf("Would tag: %d GPS • %d people", r.Stats.WithGPS, r.Stats.WithPeople))
	} else {
		lines = append(lines, fmt.Sprintf("Processed: %d (%s) • Errors: %d",
			r.Stats.Processed, humanize.Bytes(uint64(r.Stats.BytesCopied)), r.Stats.Errors))
	}
	lines = append(lines, fmt.Sprintf("Unmatched: %d sidecars • %d media",
		r.Stats.UnmatchedJSONs, r.Stats.UnmatchedMedia))
	if r.OutputDir != "" {
		lines = append(lines, "Output: "+truncatePath(r.OutputDir, 50))
	}

	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")
	return b.String()
}

// Commands

func runPipeline(config *Config, cancel *CancelFlag, progressChan chan ScanProgress) tea.Cmd {
	return func() tea.Msg {
		orch, err := NewOrchestrator(config, cancel)
		if err != nil {
			close(progressChan)
			return runCompleteMsg{err: err}
		}

		onProgress := func(current, total int, message string) {
			select {
			case progressChan <- ScanProgress{CurrentItem: current, TotalItems: total, Message: message}:
			default:
			}
		}

		var report *Report
		switch config.Mode {
		case ModeDryRun:
			report, err = orch.DryRun(onProgress)
		case ModeProcess:
			report, err = orch.Process(context.Background(), onProgress)
		case ModeExtend:
			report, err = orch.Extend(context.Background(), onProgress)
		}
		close(progressChan)
		return runCompleteMsg{report: report, err: err}
	}
}

func waitForProgress(progressChan <-chan ScanProgress) tea.Cmd {
	return func() tea.Msg {
		prog, ok := <-progressChan
		if !ok {
			return nil
		}
		return progressMsg(prog)
	}
}
