// Package transcript maintains the ordered, role-tagged conversation
// log. Entries are append-only except for the single trailing
// in-progress message owned by an active streaming session. Mutation of
// that entry requires the slot token issued by Begin, so a caller that
// loses its turn cannot silently interleave writes.
package transcript

import (
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleQA        Role = "qa"
)

// AgentType identifies which agent produced an assistant-side message.
type AgentType string

const (
	AgentNone     AgentType = ""
	AgentDesigner AgentType = "designer"
	AgentQA       AgentType = "qa"
)

// Message is one transcript entry. Immutable once a later message has
// been appended, except while it is the open in-progress entry.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	AgentType AgentType `json:"agent_type,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrSlotBusy is returned by Begin while another in-progress entry is
// still open. Exactly one stream may mutate the transcript at a time.
var ErrSlotBusy = errors.New("transcript: in-progress slot already open")

// ErrSlotClosed is returned when writing through a token whose slot has
// already been closed.
var ErrSlotClosed = errors.New("transcript: slot closed")

// Transcript is an ordered message log with a single in-progress slot.
type Transcript struct {
	mu       sync.Mutex
	messages []Message
	open     *Slot
}

// New creates an empty Transcript.
func New() *Transcript {
	return &Transcript{}
}

// Append adds a fully-formed message, such as a user turn.
func (t *Transcript) Append(role Role, agent AgentType, content string) Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg := newMessage(role, agent, content)
	t.messages = append(t.messages, msg)
	return msg
}

// Begin appends a new in-progress message with empty content and
// returns the token required to mutate it. It fails with ErrSlotBusy if
// another slot is still open; the caller must not start a second stream
// until the first completes.
func (t *Transcript) Begin(role Role, agent AgentType) (*Slot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open != nil {
		return nil, ErrSlotBusy
	}

	msg := newMessage(role, agent, "")
	t.messages = append(t.messages, msg)

	s := &Slot{t: t, index: len(t.messages) - 1}
	t.open = s
	return s, nil
}

// Messages returns a copy of the transcript in insertion order.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Last returns the most recent message, if any.
func (t *Transcript) Last() (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// UserContents returns the contents of user-authored messages in order.
// The QA agent is seeded with only these, so its judgment stays
// independent of the designer's rationale.
func (t *Transcript) UserContents() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for _, m := range t.messages {
		if m.Role == RoleUser {
			out = append(out, m.Content)
		}
	}
	return out
}

// Slot is the mutation token for the trailing in-progress message.
type Slot struct {
	t      *Transcript
	index  int
	closed bool
}

// Set replaces the in-progress message's content. Sibling and earlier
// messages are never touched through a slot.
func (s *Slot) Set(content string) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	if s.closed {
		return ErrSlotClosed
	}
	s.t.messages[s.index].Content = content
	return nil
}

// Message returns the current state of the slot's message.
func (s *Slot) Message() Message {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	return s.t.messages[s.index]
}

// Close finalizes the in-progress entry, making it permanent. Whatever
// content was last set is kept; a failed stream's partial output is
// preserved, not rolled back. Close is idempotent.
func (s *Slot) Close() {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.t.open == s {
		s.t.open = nil
	}
}

func newMessage(role Role, agent AgentType, content string) Message {
	return Message{
		ID:        ulid.Make().String(),
		Role:      role,
		AgentType: agent,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
