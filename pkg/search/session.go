package search

import (
	"context"
	"errors"
	"sync"

	"github.com/Sternrassler/gh-user-search/pkg/logging"
	"github.com/rs/zerolog"
)

// ErrSessionClosed is returned when a command is posted after Run returned.
var ErrSessionClosed = errors.New("session closed")

// Snapshot is what the display collaborator receives after every applied
// transition.
type Snapshot struct {
	Query      string
	Results    []Item
	State      State
	TotalCount int
}

// Observer receives snapshots. It is called on the session goroutine and must
// not call back into the Session synchronously.
type Observer func(Snapshot)

// Session runs a Machine on a single event-loop goroutine. Commands and fetch
// completions are delivered through one queue, so the machine is only ever
// touched by Run. Each issued request is fetched on its own goroutine; a
// superseded fetch is left to finish and its completion is dropped by the
// machine's token check.
type Session struct {
	machine   *Machine
	transport Transport
	observer  Observer
	logger    zerolog.Logger

	events chan any
	done   chan struct{}
	wg     sync.WaitGroup
}

type searchCmd struct {
	query string
	reply chan error
}

type moreCmd struct{}

type retryCmd struct{}

type completion struct {
	token   Token
	outcome Outcome
}

// NewSession creates a session. observer may be nil.
func NewSession(machine *Machine, transport Transport, observer Observer) *Session {
	if observer == nil {
		observer = func(Snapshot) {}
	}
	return &Session{
		machine:   machine,
		transport: transport,
		observer:  observer,
		logger:    logging.NewLogger("session"),
		events:    make(chan any, 16),
		done:      make(chan struct{}),
	}
}

// Run processes events until ctx is done. It must be called exactly once.
// Outstanding fetches see ctx cancellation through the transport; Run waits
// for them before returning.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		close(s.done)
		s.wg.Wait()
	}()

	s.logger.Debug().Msg("Session loop started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("Session loop stopped")
			return ctx.Err()
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

// Search starts a new search. It returns ErrInvalidQuery for a blank query
// once the loop has rejected it.
func (s *Session) Search(ctx context.Context, query string) error {
	reply := make(chan error, 1)
	if err := s.post(ctx, searchCmd{query: query, reply: reply}); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

// More asks for the next page. It is a no-op unless the machine is Idle with
// a pending page.
func (s *Session) More(ctx context.Context) error {
	return s.post(ctx, moreCmd{})
}

// Retry re-issues a failed page. It is a no-op unless the machine is Failed.
func (s *Session) Retry(ctx context.Context) error {
	return s.post(ctx, retryCmd{})
}

func (s *Session) post(ctx context.Context, ev any) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case searchCmd:
		req, err := s.machine.StartSearch(ev.query)
		ev.reply <- err
		if err != nil {
			return
		}
		s.dispatch(ctx, req)
		s.notify()

	case moreCmd:
		req, ok := s.machine.RequestMore()
		if !ok {
			return
		}
		s.dispatch(ctx, req)
		s.notify()

	case retryCmd:
		req, ok := s.machine.Retry()
		if !ok {
			return
		}
		s.dispatch(ctx, req)
		s.notify()

	case completion:
		if s.machine.OnResponse(ev.token, ev.outcome) {
			s.notify()
		}

	default:
		s.logger.Error().Msgf("Unknown session event %T", ev)
	}
}

func (s *Session) dispatch(ctx context.Context, req Request) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		resp, err := s.transport.Fetch(ctx, req.URL)

		select {
		case s.events <- completion{token: req.Token, outcome: Outcome{Response: resp, Err: err}}:
		case <-s.done:
		}
	}()
}

func (s *Session) notify() {
	s.observer(Snapshot{
		Query:      s.machine.Query(),
		Results:    s.machine.Results(),
		State:      s.machine.State(),
		TotalCount: s.machine.TotalCount(),
	})
}
