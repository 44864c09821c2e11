package tui

import "github.com/Sternrassler/gh-user-search/pkg/search"

// Message types for Bubble Tea state transitions

// fetchCompleteMsg carries the completion of one issued request back to
// Update, tagged with the token it was issued under.
type fetchCompleteMsg struct {
	token   search.Token
	outcome search.Outcome
}

// submitMsg starts a search for the initial query.
type submitMsg struct{}
