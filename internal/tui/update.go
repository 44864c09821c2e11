package tui

import (
	"errors"

	"github.com/Sternrassler/gh-user-search/pkg/search"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Init initializes the model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.initial != "" {
		cmds = append(cmds, func() tea.Msg { return submitMsg{} })
	}
	return tea.Batch(cmds...)
}

// Update handles messages and state transitions
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		m.clampScroll()
		return m, m.maybeLoadMore()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.focus == focusInput {
			return m.updateInput(msg)
		}
		return m.updateList(msg)

	case submitMsg:
		return m.submit()

	case fetchCompleteMsg:
		if !m.machine.OnResponse(msg.token, msg.outcome) {
			return m, nil
		}
		m.clampScroll()
		return m, m.maybeLoadMore()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return m.submit()
	case "esc", "tab", "down":
		if len(m.machine.Results()) > 0 {
			m.focus = focusList
			m.input.Blur()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.machine.Results())

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "/", "tab", "esc":
		m.focus = focusInput
		return m, m.input.Focus()
	case "up", "k":
		m.cursor--
	case "down", "j":
		m.cursor++
	case "pgup", "ctrl+u":
		m.cursor -= m.listHeight()
	case "pgdown", "ctrl+d", " ":
		m.cursor += m.listHeight()
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = count - 1
	case "r":
		return m, m.retry()
	default:
		return m, nil
	}

	m.clampScroll()
	return m, m.maybeLoadMore()
}

// submit starts a new search for the input's value.
func (m Model) submit() (tea.Model, tea.Cmd) {
	req, err := m.machine.StartSearch(m.input.Value())
	if err != nil {
		if errors.Is(err, search.ErrInvalidQuery) {
			m.notice = "Type something to search for"
			return m, nil
		}
		m.notice = err.Error()
		return m, nil
	}

	m.notice = ""
	m.cursor = 0
	m.offset = 0
	m.focus = focusList
	m.input.Blur()
	m.logger.Debug().Str("query", m.machine.Query()).Msg("Query submitted")

	return m, m.fetch(req)
}

func (m Model) retry() tea.Cmd {
	req, ok := m.machine.Retry()
	if !ok {
		return nil
	}
	return m.fetch(req)
}

// maybeLoadMore requests the next page once the last loaded row is on screen.
func (m Model) maybeLoadMore() tea.Cmd {
	count := len(m.machine.Results())
	if count == 0 || m.offset+m.listHeight() < count {
		return nil
	}
	req, ok := m.machine.RequestMore()
	if !ok {
		return nil
	}
	return m.fetch(req)
}

// fetch runs the request off the event loop and reports back with its token.
func (m Model) fetch(req search.Request) tea.Cmd {
	ctx, transport := m.ctx, m.transport
	return func() tea.Msg {
		resp, err := transport.Fetch(ctx, req.URL)
		return fetchCompleteMsg{
			token:   req.Token,
			outcome: search.Outcome{Response: resp, Err: err},
		}
	}
}

// clampScroll keeps the cursor on a loaded row and inside the viewport.
func (m *Model) clampScroll() {
	count := len(m.machine.Results())
	height := m.listHeight()

	if m.cursor >= count {
		m.cursor = count - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+height {
		m.offset = m.cursor - height + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}
