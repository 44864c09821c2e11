package tui

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/gh-user-search/pkg/search"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// View renders the search screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(m.listView())
	b.WriteString(m.statusView())
	b.WriteString("\n")
	b.WriteString(m.helpView())
	b.WriteString("\n")

	return b.String()
}

func (m Model) headerView() string {
	title := titleStyle.Render("GitHub user search")
	if m.machine.Query() == "" {
		return title
	}
	return fmt.Sprintf("%s  %s", title,
		dimStyle.Render(fmt.Sprintf("%d of %d for %q",
			len(m.machine.Results()), m.machine.TotalCount(), m.machine.Query())))
}

func (m Model) listView() string {
	results := m.machine.Results()
	if len(results) == 0 {
		return ""
	}

	end := m.offset + m.listHeight()
	if end > len(results) {
		end = len(results)
	}

	var b strings.Builder
	for i := m.offset; i < end; i++ {
		b.WriteString(m.rowView(results[i], i == m.cursor && m.focus == focusList))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) rowView(item search.Item, selected bool) string {
	marker := "  "
	name := item.Name
	if selected {
		marker = cursorStyle.Render("▸ ")
		name = cursorStyle.Render(name)
	}

	avatar := dimStyle.Render("(no avatar)")
	if item.HasAvatar() {
		avatar = dimStyle.Render(item.AvatarURL)
	}

	return fmt.Sprintf("%s%-24s %s %s", marker, name, dimStyle.Render(fmt.Sprintf("#%d", item.ID)), avatar)
}

// statusView renders one line describing the fetch state.
func (m Model) statusView() string {
	if m.notice != "" {
		return noticeStyle.Render(m.notice)
	}

	switch st := m.machine.State().(type) {
	case search.Idle:
		if st.Pending == nil {
			if m.machine.Query() == "" {
				return infoStyle.Render("Enter a query and press enter")
			}
			return ""
		}
		return infoStyle.Render("More results available, scroll down to load")

	case search.InFlight:
		return fmt.Sprintf("%s Loading...", m.spinner.View())

	case search.Exhausted:
		if len(m.machine.Results()) == 0 {
			return successStyle.Render("No users found")
		}
		return successStyle.Render("✓ End of results")

	case search.Failed:
		return errorStyle.Render(fmt.Sprintf("✗ %s. Press r to retry", failureText(st)))

	default:
		panic(fmt.Sprintf("tui: unexpected state %T", st))
	}
}

func (m Model) helpView() string {
	if m.focus == focusInput {
		return dimStyle.Render("enter search • tab results • ctrl+c quit")
	}
	return dimStyle.Render("↑/↓ move • / edit query • r retry • q quit")
}

func failureText(st search.Failed) string {
	if st.Err == nil {
		return "Request failed"
	}
	switch st.Err.Kind {
	case search.KindTransport:
		return fmt.Sprintf("Network error: %v", st.Err.Err)
	case search.KindHTTP:
		return fmt.Sprintf("GitHub returned %d", st.Err.StatusCode)
	case search.KindDecode:
		return fmt.Sprintf("Unexpected response: %v", st.Err.Err)
	default:
		return st.Err.Error()
	}
}
