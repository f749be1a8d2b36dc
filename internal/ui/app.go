package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/newsdedup/internal/coord"
	"github.com/abelbrown/newsdedup/internal/dedup"
	"github.com/abelbrown/newsdedup/internal/record"
)

// Form rows, in focus order.
const (
	rowKeyword1 = iota
	rowKeyword2
	rowKeyword3
	rowPeriod
	rowStrategy
	rowCount
)

// App is the root Bubble Tea model.
// App does not hold the coordinator; it runs searches through the search func.
type App struct {
	search func(q record.Query, strategy dedup.Strategy) tea.Cmd

	inputs   [3]textinput.Model
	focus    int
	period   record.Period
	strategy dedup.Strategy
	spinner  spinner.Model

	outcome *coord.Outcome
	loading bool
	width   int
	height  int
}

// NewApp creates an App. search returns a Cmd that runs one request and
// replies with SearchComplete.
func NewApp(search func(q record.Query, strategy dedup.Strategy) tea.Cmd, strategy dedup.Strategy) App {
	var inputs [3]textinput.Model
	for i := range inputs {
		in := textinput.New()
		in.Placeholder = []string{"first keyword", "second keyword", "third keyword"}[i]
		in.CharLimit = 100
		in.Width = 40
		inputs[i] = in
	}
	inputs[0].Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SectionHeader.UnsetMargins()

	if strategy == "" {
		strategy = dedup.StrategyBatched
	}
	return App{
		search:   search,
		inputs:   inputs,
		strategy: strategy,
		spinner:  sp,
	}
}

// Init starts the cursor blinking.
func (a App) Init() tea.Cmd {
	return textinput.Blink
}

// Query returns the query the form currently describes.
func (a App) Query() record.Query {
	return record.NewQuery(a.inputs[0].Value(), a.inputs[1].Value(), a.inputs[2].Value(), a.period)
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case SearchComplete:
		a.loading = false
		out := msg.Outcome
		a.outcome = &out
		return a, nil

	case spinner.TickMsg:
		if !a.loading {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a.updateInput(msg)
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return a, tea.Quit

	case "tab", "down":
		return a.setFocus((a.focus + 1) % rowCount)

	case "shift+tab", "up":
		return a.setFocus((a.focus + rowCount - 1) % rowCount)

	case "enter":
		if a.loading || a.search == nil {
			return a, nil
		}
		a.loading = true
		return a, tea.Batch(a.spinner.Tick, a.search(a.Query(), a.strategy))

	case "left", "right", " ":
		step := 1
		if msg.String() == "left" {
			step = -1
		}
		switch a.focus {
		case rowPeriod:
			a.period = cycle(record.Periods(), a.period, step)
			return a, nil
		case rowStrategy:
			a.strategy = cycle(dedup.Strategies(), a.strategy, step)
			return a, nil
		}
	}

	return a.updateInput(msg)
}

func (a App) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if a.focus > rowKeyword3 {
		return a, nil
	}
	var cmd tea.Cmd
	a.inputs[a.focus], cmd = a.inputs[a.focus].Update(msg)
	return a, cmd
}

func (a App) setFocus(row int) (tea.Model, tea.Cmd) {
	a.focus = row
	var cmd tea.Cmd
	for i := range a.inputs {
		if i == row {
			cmd = a.inputs[i].Focus()
		} else {
			a.inputs[i].Blur()
		}
	}
	return a, cmd
}

// cycle steps through choices, wrapping at both ends.
func cycle[T comparable](choices []T, cur T, step int) T {
	for i, c := range choices {
		if c == cur {
			return choices[(i+step+len(choices))%len(choices)]
		}
	}
	return choices[0]
}

// View renders the form, then a spinner or the last outcome.
func (a App) View() string {
	var b strings.Builder

	b.WriteString(TitleBar.Render("newsdedup"))
	b.WriteString("\n\n")

	for i, in := range a.inputs {
		b.WriteString(a.label(i, "Keyword "+string(rune('1'+i))))
		b.WriteString(in.View())
		b.WriteString("\n")
	}

	b.WriteString(a.label(rowPeriod, "Period"))
	for _, p := range record.Periods() {
		b.WriteString(choice(p.String(), p == a.period))
	}
	b.WriteString("\n")

	b.WriteString(a.label(rowStrategy, "Dedup"))
	for _, s := range dedup.Strategies() {
		b.WriteString(choice(string(s), s == a.strategy))
	}
	b.WriteString("\n")

	switch {
	case a.loading:
		b.WriteString("\n")
		b.WriteString(a.spinner.View())
		b.WriteString(" Searching and comparing results...\n")
	case a.outcome != nil:
		b.WriteString(RenderOutcome(*a.outcome, a.width))
	}

	b.WriteString(HelpStyle.Render("tab: next field · ←/→: change choice · enter: search · esc: quit"))
	return b.String()
}

func (a App) label(row int, text string) string {
	if a.focus == row {
		return FocusedLabel.Render(text)
	}
	return FieldLabel.Render(text)
}

func choice(text string, selected bool) string {
	if selected {
		return ChoiceSelected.Render(text)
	}
	return ChoiceNormal.Render(text)
}
