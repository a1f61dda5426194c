package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/table"
	"github.com/charmbracelet/bubbles/v2/textinput"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/pb33f/harhar"
	"github.com/pb33f/logtracker/report"
)

// ViewMode is what occupies the space below the entry table.
type ViewMode int

const (
	ViewModeTable ViewMode = iota
	ViewModeTableWithSplit
	ViewModeTableWithFilter
)

type panelFocus int

const (
	focusRequest panelFocus = iota
	focusResponse
)

// CaptureViewModel browses a network report written by the tracker.
type CaptureViewModel struct {
	fileName string
	summary  *report.Summary
	loadTime time.Duration

	table   table.Model
	columns []table.Column
	rows    []table.Row
	visible []int // summary.Entries index per table row

	filter      *EntryFilter
	filterInput textinput.Model
	failedOnly  bool

	selectedEntry *harhar.Entry
	selectedIndex int

	requestViewport  viewport.Model
	responseViewport viewport.Model
	focus            panelFocus

	viewMode ViewMode
	width    int
	height   int
	ready    bool
	quitting bool

	loadState      LoadState
	loadingSpinner spinner.Model
	err            error
}

func NewCaptureViewModel(fileName string) *CaptureViewModel {
	input := textinput.New()
	input.Prompt = "/ "
	input.Placeholder = "text, or re:<regex>"
	input.CharLimit = filterCharLimit

	return &CaptureViewModel{
		fileName: fileName,
		columns: []table.Column{
			{Title: "Method", Width: methodColumnWidth},
			{Title: "URL", Width: minURLColumnWidth},
			{Title: "Status", Width: statusColumnWidth},
			{Title: "Duration", Width: durationColumnWidth},
		},
		filterInput:    input,
		selectedIndex:  -1,
		loadState:      LoadStateLoading,
		loadingSpinner: newLoadingSpinner(),
	}
}

func (m *CaptureViewModel) Init() tea.Cmd {
	return tea.Batch(m.loadingSpinner.Tick, m.startLoading())
}

func (m *CaptureViewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.loadState == LoadStateLoading {
		var cmd tea.Cmd
		m.loadingSpinner, cmd = m.loadingSpinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	switch msg := msg.(type) {
	case loadCompleteMsg:
		m.loadState = LoadStateLoaded
		m.summary = msg.summary
		m.loadTime = msg.duration
		if m.width > 0 && m.height > 0 {
			m.initializeTable()
		}
		return m, nil

	case loadErrorMsg:
		m.loadState = LoadStateError
		m.err = msg.err
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		switch {
		case m.loadState == LoadStateLoaded && !m.ready:
			m.initializeTable()
		case m.ready:
			m.resize()
		}
		return m, nil

	case tea.KeyPressMsg:
		if handled, cmd := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	if m.loadState != LoadStateLoaded || !m.ready {
		return m, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	switch m.viewMode {
	case ViewModeTableWithFilter:
		m.filterInput, cmd = m.filterInput.Update(msg)
		cmds = append(cmds, cmd)
	case ViewModeTableWithSplit:
		if m.focus == focusRequest {
			m.requestViewport, cmd = m.requestViewport.Update(msg)
		} else {
			m.responseViewport, cmd = m.responseViewport.Update(msg)
		}
		cmds = append(cmds, cmd)
	default:
		m.table, cmd = m.table.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *CaptureViewModel) handleKey(msg tea.KeyPressMsg) (bool, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		m.quitting = true
		return true, tea.Quit
	}
	if m.loadState != LoadStateLoaded || !m.ready {
		if key == "q" {
			m.quitting = true
			return true, tea.Quit
		}
		return false, nil
	}

	if m.viewMode == ViewModeTableWithFilter {
		switch key {
		case "enter":
			m.applyFilter(m.filterInput.Value())
			m.closeFilter()
			return true, nil
		case "esc":
			m.closeFilter()
			return true, nil
		}
		return false, nil
	}

	switch key {
	case "q":
		m.quitting = true
		return true, tea.Quit

	case "enter":
		if m.viewMode == ViewModeTableWithSplit {
			m.closeSplit()
		} else {
			m.openSplit()
		}
		return true, nil

	case "tab":
		if m.viewMode == ViewModeTableWithSplit {
			m.focus = 1 - m.focus
			return true, nil
		}

	case "/":
		m.viewMode = ViewModeTableWithFilter
		m.filterInput.SetValue(m.filter.Query())
		m.filterInput.Focus()
		m.resize()
		return true, nil

	case "f":
		m.failedOnly = !m.failedOnly
		m.applyFilter(m.filter.Query())
		return true, nil

	case "esc":
		switch {
		case m.viewMode == ViewModeTableWithSplit:
			m.closeSplit()
		case m.filter.IsActive():
			m.failedOnly = false
			m.applyFilter("")
		}
		return true, nil
	}
	return false, nil
}

func (m *CaptureViewModel) initializeTable() {
	m.buildTableRows()
	m.table = ApplyTableStyles(table.New(
		table.WithColumns(m.columns),
		table.WithRows(m.rows),
		table.WithFocused(true),
	))
	m.ready = true
	m.resize()
}

// applyFilter keeps an invalid regex visible as an error instead of
// dropping the current filter
func (m *CaptureViewModel) applyFilter(query string) {
	filter, err := NewEntryFilter(query, m.failedOnly)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.filter = filter
	m.buildTableRows()
	m.table.SetRows(m.rows)
	m.table.SetCursor(0)
}

func (m *CaptureViewModel) closeFilter() {
	m.filterInput.Blur()
	m.viewMode = ViewModeTable
	m.resize()
}

func (m *CaptureViewModel) openSplit() {
	if err := m.loadSelectedEntry(); err != nil {
		m.err = err
		return
	}
	if m.selectedEntry == nil {
		return
	}
	m.viewMode = ViewModeTableWithSplit
	m.focus = focusRequest
	m.resize()
	m.updateViewportContent()
}

func (m *CaptureViewModel) closeSplit() {
	m.viewMode = ViewModeTable
	m.resize()
}

func (m *CaptureViewModel) loadSelectedEntry() error {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.visible) {
		m.selectedEntry = nil
		return nil
	}

	index := m.visible[cursor]
	if index == m.selectedIndex && m.selectedEntry != nil {
		return nil
	}

	entry, err := m.summary.Entry(index)
	if err != nil {
		return err
	}
	m.selectedEntry = entry
	m.selectedIndex = index
	return nil
}

func (m *CaptureViewModel) tableHeight() int {
	h := m.height - tableVerticalPadding
	switch m.viewMode {
	case ViewModeTableWithSplit:
		h /= 2
	case ViewModeTableWithFilter:
		h -= filterPanelHeight
	}
	return max(h, 1)
}

func (m *CaptureViewModel) panelDimensions() (width, height int) {
	width = m.width/2 - splitPanelPadding
	height = (m.height-tableVerticalPadding)/2 - splitPanelPadding
	return max(width, 1), max(height, 1)
}

func (m *CaptureViewModel) resize() {
	if !m.ready {
		return
	}
	m.columns[1].Width = urlColumnWidth(m.width)
	m.table.SetColumns(m.columns)
	m.table.SetWidth(m.width)
	m.table.SetHeight(m.tableHeight())

	if m.viewMode != ViewModeTableWithSplit {
		return
	}
	w, h := m.panelDimensions()
	if m.requestViewport.Width() == 0 {
		m.requestViewport = viewport.New(viewport.WithWidth(w), viewport.WithHeight(h))
		m.responseViewport = viewport.New(viewport.WithWidth(w), viewport.WithHeight(h))
		return
	}
	m.requestViewport.SetWidth(w)
	m.requestViewport.SetHeight(h)
	m.responseViewport.SetWidth(w)
	m.responseViewport.SetHeight(h)
	m.updateViewportContent()
}

func (m *CaptureViewModel) updateViewportContent() {
	if m.selectedEntry == nil {
		return
	}
	m.requestViewport.SetContent(renderSections(requestSections(m.selectedEntry), m.requestViewport.Width(), true))
	m.responseViewport.SetContent(renderSections(responseSections(m.selectedEntry), m.responseViewport.Width(), true))
	m.requestViewport.GotoTop()
	m.responseViewport.GotoTop()
}
