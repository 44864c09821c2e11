package search

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/gh-user-search/pkg/logging"
	"github.com/Sternrassler/gh-user-search/pkg/pagination"
	"github.com/rs/zerolog"
)

// MaxPerPage is the largest page size the search API accepts.
const MaxPerPage = 100

// MachineConfig holds the state machine configuration.
type MachineConfig struct {
	// Endpoint is the search URL the query parameter is added to.
	Endpoint string

	// PerPage sets the per_page parameter of the first request (0 = server default).
	// Continuation URLs carry whatever the server put in them.
	PerPage int
}

// DefaultMachineConfig returns a configuration targeting GitHub.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		Endpoint: DefaultEndpoint,
	}
}

// Machine owns the fetch state and the accumulated results of one search
// session at a time. It performs no I/O: StartSearch, RequestMore and Retry
// return the Request to issue, and the caller reports its completion through
// OnResponse.
//
// A Machine is not safe for concurrent use. All calls must come from a single
// goroutine (see Session, or a bubbletea Update loop).
type Machine struct {
	endpoint *url.URL
	perPage  int
	logger   zerolog.Logger
	newToken func() Token

	query      string
	state      State
	results    []Item
	totalCount int
}

// NewMachine creates a machine in the Idle state with no pending page.
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("endpoint must be absolute (got %q)", cfg.Endpoint)
	}

	if cfg.PerPage < 0 || cfg.PerPage > MaxPerPage {
		return nil, fmt.Errorf("per_page must be between 0 and %d (got %d)", MaxPerPage, cfg.PerPage)
	}

	return &Machine{
		endpoint: endpoint,
		perPage:  cfg.PerPage,
		logger:   logging.NewLogger("search"),
		newToken: newToken,
		state:    Idle{},
	}, nil
}

// StartSearch resets the session for query and returns the first-page
// request. It is valid from any state; an outstanding request is abandoned
// and its completion will be ignored.
func (m *Machine) StartSearch(query string) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, ErrInvalidQuery
	}

	if prev, ok := m.state.(InFlight); ok {
		m.logger.Debug().
			Str("token", prev.Token.String()).
			Msg("Abandoning in-flight request for new search")
	}

	m.query = query
	m.results = nil
	m.totalCount = 0
	resultsAccumulated.Set(0)

	req := m.issue(m.firstPageURL(query))

	m.logger.Info().
		Str("query", query).
		Str("url", req.URL.String()).
		Str("token", req.Token.String()).
		Msg("Search started")

	return req, nil
}

// RequestMore returns the next-page request when the state is Idle with a
// pending URL. In every other state it does nothing and returns false, which
// keeps at most one request in flight.
func (m *Machine) RequestMore() (Request, bool) {
	idle, ok := m.state.(Idle)
	if !ok || idle.Pending == nil {
		return Request{}, false
	}

	req := m.issue(idle.Pending)

	m.logger.Debug().
		Str("url", req.URL.String()).
		Str("token", req.Token.String()).
		Msg("Requesting next page")

	return req, true
}

// Retry re-issues the request that put the machine into Failed. It returns
// false in every other state.
func (m *Machine) Retry() (Request, bool) {
	failed, ok := m.state.(Failed)
	if !ok || failed.URL == nil {
		return Request{}, false
	}

	m.logger.Info().
		Str("url", failed.URL.String()).
		Str("kind", failed.Kind().String()).
		Msg("Retrying failed page")

	m.state = Idle{Pending: failed.URL}
	return m.RequestMore()
}

// OnResponse applies the completion of the request identified by token. It
// returns false, leaving everything untouched, when token does not match the
// current in-flight request.
func (m *Machine) OnResponse(token Token, out Outcome) bool {
	inFlight, ok := m.state.(InFlight)
	if !ok || inFlight.Token != token {
		staleResponsesTotal.Inc()
		m.logger.Debug().
			Str("token", token.String()).
			Str("state", m.state.String()).
			Msg("Dropping stale response")
		return false
	}

	page, links, fetchErr := evaluate(inFlight.URL, out)
	if fetchErr != nil {
		m.state = Failed{Err: fetchErr, URL: inFlight.URL}
		fetchesTotal.WithLabelValues(fetchErr.Kind.String()).Inc()
		m.logger.Warn().
			Err(fetchErr.Err).
			Str("url", fetchErr.URL).
			Str("kind", fetchErr.Kind.String()).
			Int("status", fetchErr.StatusCode).
			Msg("Page fetch failed")
		return true
	}

	if links.IsFirstPage() {
		m.results = append([]Item(nil), page.Items...)
	} else {
		m.results = append(m.results, page.Items...)
	}
	m.totalCount = page.TotalCount

	if links.HasNext() {
		m.state = Idle{Pending: links.Next}
	} else {
		m.state = Exhausted{}
	}

	fetchesTotal.WithLabelValues("success").Inc()
	resultsAccumulated.Set(float64(len(m.results)))

	m.logger.Info().
		Str("query", m.query).
		Int("page_items", len(page.Items)).
		Int("results", len(m.results)).
		Bool("first_page", links.IsFirstPage()).
		Str("state", m.state.String()).
		Msg("Page applied")

	return true
}

// Results returns a copy of the accumulated results in page-arrival order.
func (m *Machine) Results() []Item {
	out := make([]Item, len(m.results))
	copy(out, m.results)
	return out
}

// State returns the current fetch state.
func (m *Machine) State() State {
	return m.state
}

// Query returns the trimmed query of the current session.
func (m *Machine) Query() string {
	return m.query
}

// TotalCount returns the match count reported with the last applied page.
func (m *Machine) TotalCount() int {
	return m.totalCount
}

func (m *Machine) issue(u *url.URL) Request {
	req := Request{Token: m.newToken(), URL: u}
	m.state = InFlight{Token: req.Token, URL: u}
	return req
}

func (m *Machine) firstPageURL(query string) *url.URL {
	u := *m.endpoint
	params := u.Query()
	params.Set("q", query)
	if m.perPage > 0 {
		params.Set("per_page", strconv.Itoa(m.perPage))
	}
	u.RawQuery = params.Encode()
	return &u
}

// evaluate classifies an outcome and, on success, decodes it.
func evaluate(u *url.URL, out Outcome) (Page, pagination.Links, *FetchError) {
	target := ""
	if u != nil {
		target = u.String()
	}

	if out.Err != nil {
		return Page{}, pagination.Links{}, &FetchError{Kind: KindTransport, URL: target, Err: out.Err}
	}
	if out.Response == nil {
		return Page{}, pagination.Links{}, &FetchError{Kind: KindTransport, URL: target, Err: ErrNoResponse}
	}

	resp := out.Response
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Page{}, pagination.Links{}, &FetchError{
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			URL:        target,
			Err:        fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	page, err := Decode(resp.Body)
	if err != nil {
		return Page{}, pagination.Links{}, &FetchError{
			Kind:       KindDecode,
			StatusCode: resp.StatusCode,
			URL:        target,
			Err:        err,
		}
	}

	return page, pagination.LinksFromHeader(resp.Header), nil
}
