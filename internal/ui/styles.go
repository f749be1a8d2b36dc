package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarning   = lipgloss.Color("214") // Amber
)

// TitleBar style for the header line.
var TitleBar = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// FieldLabel style for form labels.
var FieldLabel = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Width(10)

// FocusedLabel style for the label of the focused row.
var FocusedLabel = FieldLabel.
	Foreground(colorHighlight).
	Bold(true)

// ChoiceSelected style for the active period or strategy.
var ChoiceSelected = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// ChoiceNormal style for inactive choices.
var ChoiceNormal = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(0, 1)

// SectionHeader style for the result list headings.
var SectionHeader = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	MarginTop(1).
	Padding(0, 1)

// ResultTitle style for a record title.
var ResultTitle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// ResultMeta style for a record's date and URL.
var ResultMeta = lipgloss.NewStyle().
	Foreground(colorMuted).
	PaddingLeft(3)

// DroppedMark style for the marker next to records removed as duplicates.
var DroppedMark = lipgloss.NewStyle().
	Foreground(colorMuted).
	Strikethrough(true)

// KeptCount style for the dedup summary.
var KeptCount = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// WarningStyle for the "deduplication unavailable" banner.
var WarningStyle = lipgloss.NewStyle().
	Foreground(colorWarning).
	Bold(true).
	Padding(0, 1)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("196")).
	Bold(true).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)
