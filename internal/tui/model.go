// Package tui is the interactive search controller: a Bubble Tea program
// that owns a search.Machine and drives it from the Update loop.
package tui

import (
	"context"

	"github.com/Sternrassler/gh-user-search/pkg/logging"
	"github.com/Sternrassler/gh-user-search/pkg/search"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

type focus int

const (
	focusInput focus = iota
	focusList
)

// defaultListHeight is used until the first WindowSizeMsg arrives.
const defaultListHeight = 20

// Options contains configuration for the Model
type Options struct {
	// Query is submitted on start when non-empty.
	Query string

	// Context bounds every fetch; defaults to context.Background().
	Context context.Context
}

// Model is the Bubble Tea model for the user search screen.
//
// The machine is only touched inside Update. Fetches run as commands and come
// back as fetchCompleteMsg, so every state transition happens on the Bubble
// Tea event loop.
type Model struct {
	// Services
	machine   *search.Machine
	transport search.Transport
	ctx       context.Context
	logger    zerolog.Logger

	// UI Components
	input   textinput.Model
	spinner spinner.Model

	// View state
	focus   focus
	cursor  int
	offset  int
	width   int
	height  int
	notice  string
	initial string
}

// NewModel creates a new Bubble Tea model
func NewModel(machine *search.Machine, transport search.Transport, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "search GitHub users"
	ti.Prompt = "› "
	ti.CharLimit = 256
	ti.SetValue(opts.Query)
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	return Model{
		machine:   machine,
		transport: transport,
		ctx:       ctx,
		logger:    logging.NewLogger("tui"),
		input:     ti,
		spinner:   s,
		focus:     focusInput,
		initial:   opts.Query,
	}
}

// Results returns the accumulated results.
func (m Model) Results() []search.Item {
	return m.machine.Results()
}

// State returns the current fetch state.
func (m Model) State() search.State {
	return m.machine.State()
}

// listHeight is the number of result rows that fit on screen.
func (m Model) listHeight() int {
	if m.height <= 0 {
		return defaultListHeight
	}
	// header, input, blank line, and two footer lines
	h := m.height - 5
	if h < 1 {
		h = 1
	}
	return h
}
