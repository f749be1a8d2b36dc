// Package ui provides the Bubble Tea TUI and the terminal rendering shared
// with the CLI.
package ui

import "github.com/abelbrown/newsdedup/internal/coord"

// SearchComplete is sent when a search request finishes, successfully or not.
type SearchComplete struct {
	Outcome coord.Outcome
}
