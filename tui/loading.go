package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/v2/spinner"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/pb33f/logtracker/report"
)

type LoadState int

const (
	LoadStateLoading LoadState = iota
	LoadStateLoaded
	LoadStateError
)

type loadCompleteMsg struct {
	summary  *report.Summary
	duration time.Duration
}

type loadErrorMsg struct {
	err error
}

// scanning happens off the update loop; the spinner keeps ticking meanwhile
func (m *CaptureViewModel) startLoading() tea.Cmd {
	path := m.fileName
	return func() tea.Msg {
		start := time.Now()
		summary, err := report.LoadHAR(path)
		if err != nil {
			return loadErrorMsg{err: err}
		}
		return loadCompleteMsg{summary: summary, duration: time.Since(start)}
	}
}

func (m *CaptureViewModel) renderLoadingView() string {
	frame := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center)

	title := lipgloss.NewStyle().Bold(true).Foreground(RGBPink).Render("Reading capture")
	file := lipgloss.NewStyle().Foreground(RGBGrey).Render(m.fileName)

	return frame.Render(fmt.Sprintf("%s %s\n%s", m.loadingSpinner.View(), title, file))
}

func (m *CaptureViewModel) renderErrorView() string {
	frame := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center)

	return frame.Render(errorTextStyle.Render(
		fmt.Sprintf("unable to read capture\n\n%v\n\npress 'q' to quit", m.err)))
}

func newLoadingSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(RGBPink)
	return s
}
