// Package store persists design sessions, their transcripts and the
// outcome of each auto-mode round across CLI invocations.
package store

import (
	"context"
	"time"

	"github.com/thruflo/drafter/internal/transcript"
)

// DesignSession is one saved conversation with the design assistant,
// including the latest version of the generated code.
type DesignSession struct {
	ID          string
	Title       string
	CurrentCode string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LoopRound records one designer-and-QA round of the iteration loop.
type LoopRound struct {
	ID          string
	SessionID   string
	Iteration   int
	Outcome     string
	QAFeedback  string
	RenderURL   string
	TestSummary string
	CreatedAt   time.Time
}

// Store defines the persistence interface for drafter.
type Store interface {
	// Design sessions
	CreateSession(ctx context.Context, s *DesignSession) error
	GetSession(ctx context.Context, id string) (*DesignSession, error)
	ListSessions(ctx context.Context, limit int) ([]*DesignSession, error)
	UpdateSession(ctx context.Context, s *DesignSession) error
	DeleteSession(ctx context.Context, id string) error

	// Messages
	SaveMessages(ctx context.Context, sessionID string, msgs []transcript.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]transcript.Message, error)

	// Auto-mode rounds
	RecordRound(ctx context.Context, r *LoopRound) error
	ListRounds(ctx context.Context, sessionID string) ([]*LoopRound, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
