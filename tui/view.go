package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss/v2"
)

func (m *CaptureViewModel) View() string {
	if m.quitting {
		return ""
	}

	switch m.loadState {
	case LoadStateLoading:
		return m.renderLoadingView()
	case LoadStateError:
		return m.renderErrorView()
	}
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.renderTitle())
	b.WriteString("\n")
	b.WriteString(ColorizeTable(m.table.View(), m.table.Cursor(), m.rows))
	b.WriteString("\n")

	switch m.viewMode {
	case ViewModeTableWithSplit:
		b.WriteString(m.renderSplitPanel())
		b.WriteString("\n")
	case ViewModeTableWithFilter:
		b.WriteString(m.renderFilterPanel())
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *CaptureViewModel) renderTitle() string {
	title := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("logTracker: %s ", m.fileName))

	var detail string
	if m.summary != nil {
		detail = fmt.Sprintf("(%d entries, %d urls, %s", len(m.summary.Entries), m.summary.UniqueURLs,
			formatBytes(m.summary.TotalResponseBytes))
		if creator := m.summary.Creator; creator != nil && creator.Name != "" {
			detail += ", " + creator.Name + " " + creator.Version
		}
		if m.loadTime > 0 {
			detail += fmt.Sprintf(", read in %v", m.loadTime.Round(time.Millisecond))
		}
		detail += ")"
	}

	return titleBarStyle.Width(m.width).Render(title + statusBarStyle.Render(detail))
}

func (m *CaptureViewModel) renderStatusBar() string {
	var parts []string
	switch m.viewMode {
	case ViewModeTableWithSplit:
		parts = append(parts, "↑/↓: Scroll", "Tab: Switch Panel", "Esc: Close")
	case ViewModeTableWithFilter:
		parts = append(parts, "Enter: Apply", "Esc: Cancel")
	default:
		parts = append(parts, "↑/↓: Navigate", "Enter: Details", "/: Filter", "f: Failed Only")
		if m.filter.IsActive() {
			parts = append(parts, "Esc: Clear")
		}
		parts = append(parts, "q: Quit")
	}

	if len(m.visible) > 0 {
		parts = append(parts, fmt.Sprintf("Entry %d/%d", m.table.Cursor()+1, len(m.visible)))
	}
	if desc := m.filter.String(); desc != "" {
		parts = append(parts, desc)
	}
	if m.viewMode == ViewModeTableWithSplit {
		if m.focus == focusRequest {
			parts = append(parts, "[Request]")
		} else {
			parts = append(parts, "[Response]")
		}
	}

	bar := statusBarStyle.Render(strings.Join(parts, " | "))
	if m.err != nil {
		bar += "  " + errorTextStyle.Render(m.err.Error())
	}
	return bar
}

func (m *CaptureViewModel) renderSplitPanel() string {
	w, h := m.panelDimensions()
	base := lipgloss.NewStyle().
		Width(w).
		Height(h).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(RGBDimGrey)
	focused := base.BorderForeground(RGBBlue)

	left, right := base, base
	if m.focus == focusRequest {
		left = focused
	} else {
		right = focused
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		left.Render(m.requestViewport.View()),
		right.Render(m.responseViewport.View()))
}

func (m *CaptureViewModel) renderFilterPanel() string {
	return filterPanelStyle.Width(m.width).Render(
		filterLabelStyle.Render("Filter") + "\n" + m.filterInput.View())
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
