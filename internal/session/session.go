// Package session drives one request/response exchange with an agent:
// it opens a stream, feeds deltas through fence extraction, mutates the
// transcript's in-progress slot, and publishes extracted code to the
// current-code sink. Progress is reported as a single typed event
// stream so ordering and exhaustiveness are explicit.
package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/thruflo/drafter/internal/fence"
	"github.com/thruflo/drafter/internal/transcript"
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventType tags session events.
type EventType int

const (
	// EventDelta reports one decoded content delta.
	EventDelta EventType = iota
	// EventDone is the terminal event of a successful stream.
	EventDone
	// EventError is the terminal event of a failed stream. Partial
	// transcript content is preserved, not rolled back.
	EventError
)

// Event is one entry in the session's event stream. Exactly one
// terminal event (EventDone or EventError) is delivered, after which
// the channel closes.
type Event struct {
	Type EventType

	// Delta is the raw content chunk for EventDelta.
	Delta string

	// Narrative is the full narrative text after applying this event.
	Narrative string

	// Err is set for EventError.
	Err error
}

// Streamer yields content deltas until io.EOF.
type Streamer interface {
	Recv() (string, error)
	Close() error
}

// OpenFunc opens the network stream for a session. Open failures
// (non-2xx, unavailable body) surface before any delta is emitted.
type OpenFunc func(ctx context.Context) (Streamer, error)

// CodeSink receives sanitized code extracted from the stream. It is
// updated on every delta once a fence opener has arrived, regardless of
// whether the block is complete, so the code side-channel tracks the
// stream continuously.
type CodeSink interface {
	SetCode(code string)
}

// ErrBusy is returned when Run is called on a session that already ran
// or while the transcript's in-progress slot is held by another
// session.
var ErrBusy = errors.New("session: already streaming")

// Session drives one exchange. A Session is single-use: create a new
// one for each turn.
type Session struct {
	transcript *transcript.Transcript
	role       transcript.Role
	agent      transcript.AgentType
	sink       CodeSink

	mu sync.Mutex
	// buf is the session's stream accumulator: the full raw text
	// received so far. It is owned exclusively by this session and
	// fence extraction always recomputes from it in full.
	buf    strings.Builder
	state  State
	result fence.Result
}

// New creates a session that writes to the given transcript role. The
// sink may be nil when the caller has no code side-channel.
func New(t *transcript.Transcript, role transcript.Role, agent transcript.AgentType, sink CodeSink) *Session {
	return &Session{
		transcript: t,
		role:       role,
		agent:      agent,
		sink:       sink,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Raw returns the full accumulated text received so far.
func (s *Session) Raw() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Result returns the fence extraction of the accumulated text.
func (s *Session) Result() fence.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Code returns the sanitized extracted code, if any.
func (s *Session) Code() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.result.HasCode {
		return "", false
	}
	return fence.Sanitize(s.result.Code), true
}

// Passed reports whether the accumulated text contains the QA pass
// sentinel. The check is case-insensitive so a QA agent that writes
// "qa_passed" still counts; no structured response format is required.
func (s *Session) Passed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Contains(strings.ToUpper(s.buf.String()), "QA_PASSED")
}

// Run executes the exchange and returns its event channel. The channel
// delivers zero or more EventDelta entries in arrival order, then
// exactly one terminal event, then closes. The in-progress transcript
// entry is created before streaming starts and finalized, with
// whatever content it holds, on both success and failure. Canceling
// ctx aborts the underlying read and fails the session.
func (s *Session) Run(ctx context.Context, open OpenFunc) <-chan Event {
	events := make(chan Event, 16)

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		events <- Event{Type: EventError, Err: ErrBusy}
		close(events)
		return events
	}
	s.state = StateStreaming
	s.mu.Unlock()

	go s.run(ctx, open, events)
	return events
}

func (s *Session) run(ctx context.Context, open OpenFunc, events chan<- Event) {
	defer close(events)

	slot, err := s.transcript.Begin(s.role, s.agent)
	if err != nil {
		s.fail(events, err)
		return
	}
	defer slot.Close()

	stream, err := open(ctx)
	if err != nil {
		s.fail(events, err)
		return
	}
	defer stream.Close()

	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.fail(events, err)
			return
		}

		narrative := s.apply(delta, slot)
		events <- Event{Type: EventDelta, Delta: delta, Narrative: narrative}
	}

	s.mu.Lock()
	s.state = StateCompleted
	narrative := s.result.Narrative
	s.mu.Unlock()

	events <- Event{Type: EventDone, Narrative: narrative}
}

// apply appends a delta to the accumulator, re-extracts the fence split
// from the full buffer, updates only this session's in-progress
// message, and pushes sanitized code to the sink.
func (s *Session) apply(delta string, slot *transcript.Slot) string {
	s.mu.Lock()
	s.buf.WriteString(delta)
	s.result = fence.Extract(s.buf.String())
	res := s.result
	s.mu.Unlock()

	if res.HasCode && s.sink != nil {
		s.sink.SetCode(fence.Sanitize(res.Code))
	}

	// A failed Set means the slot was closed under us; the stream is
	// already being torn down, so the write is simply dropped.
	_ = slot.Set(res.Narrative)
	return res.Narrative
}

func (s *Session) fail(events chan<- Event, err error) {
	s.mu.Lock()
	s.state = StateFailed
	narrative := s.result.Narrative
	s.mu.Unlock()

	events <- Event{Type: EventError, Narrative: narrative, Err: err}
}

// Wait drains the event channel, invoking onDelta (if non-nil) for each
// delta, and returns the terminal error, if any. It is the await-style
// companion to Run.
func Wait(events <-chan Event, onDelta func(Event)) error {
	var err error
	for ev := range events {
		switch ev.Type {
		case EventDelta:
			if onDelta != nil {
				onDelta(ev)
			}
		case EventError:
			err = ev.Err
		}
	}
	return err
}
