package tui

const (
	tableVerticalPadding = 4
	filterPanelHeight    = 3
	splitPanelPadding    = 2
	borderPadding        = 6

	minURLColumnWidth = 20
	maxURLColumnWidth = 100

	methodColumnWidth   = 8
	statusColumnWidth   = 10
	durationColumnWidth = 10

	maxBodyDisplayLength = 5000
	filterCharLimit      = 120
)
