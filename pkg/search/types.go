// Package search implements the paginated user-search core: a token-checked
// fetch state machine, the page decoder it relies on, and a Session that
// confines the machine to a single event-loop goroutine.
package search

import (
	"context"
	"net/http"
	"net/url"
)

// DefaultEndpoint is the GitHub user search endpoint.
const DefaultEndpoint = "https://api.github.com/search/users"

// Item is one decoded search result. It is never modified after decoding.
type Item struct {
	// ID is the unique account identifier.
	ID int64 `json:"id"`

	// Name is the account login.
	Name string `json:"login"`

	// AvatarURL is empty when the API did not send one.
	AvatarURL string `json:"avatar_url,omitempty"`

	// HTMLURL is the profile page, empty when absent.
	HTMLURL string `json:"html_url,omitempty"`
}

// HasAvatar reports whether the item carries an avatar URL.
func (i Item) HasAvatar() bool {
	return i.AvatarURL != ""
}

// Page is one response's worth of items.
type Page struct {
	Items []Item

	// TotalCount is the server-side match count. Informational only.
	TotalCount int

	// IncompleteResults is set when the API timed out building the page.
	IncompleteResults bool
}

// Response is what a Transport hands back for a completed HTTP exchange,
// whatever its status code.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs a single GET. Only network-level failures are returned
// as errors; non-2xx statuses come back as a Response.
type Transport interface {
	Fetch(ctx context.Context, u *url.URL) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, u *url.URL) (*Response, error)

// Fetch implements Transport.
func (f TransportFunc) Fetch(ctx context.Context, u *url.URL) (*Response, error) {
	return f(ctx, u)
}

// Request is a fetch the caller must issue on behalf of the machine. Its
// completion has to be reported back with the same Token.
type Request struct {
	Token Token
	URL   *url.URL
}

// Outcome is the result of issuing a Request: either a Response or a
// transport error.
type Outcome struct {
	Response *Response
	Err      error
}
