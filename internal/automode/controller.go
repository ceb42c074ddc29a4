// Package automode sequences the bounded Designer → Execute/Test → QA
// iteration loop. The controller runs the two agent turns itself but
// never invokes execution: its owner executes the current code
// externally and reports each completion, which is what advances the
// loop. There is no server-side scheduler behind any of this.
package automode

import (
	"context"
	"fmt"
	"sync"

	"github.com/thruflo/drafter/internal/api"
	"github.com/thruflo/drafter/internal/session"
	"github.com/thruflo/drafter/internal/transcript"
)

// Outcome indicates what a completed round decided.
type Outcome int

const (
	// OutcomeContinue means a revision turn ran; the owner should
	// execute the updated code and report completion again.
	OutcomeContinue Outcome = iota
	// OutcomePassed means QA accepted the design.
	OutcomePassed
	// OutcomeStopped means the user stopped the loop.
	OutcomeStopped
	// OutcomeMaxIterations means the iteration cap was reached without
	// a pass.
	OutcomeMaxIterations
	// OutcomeError means an agent turn failed; the loop deactivates
	// without crediting a pass.
	OutcomeError
)

// String returns a human-readable outcome description.
func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomePassed:
		return "passed"
	case OutcomeStopped:
		return "stopped"
	case OutcomeMaxIterations:
		return "max iterations"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Round is the result of one loop round.
type Round struct {
	Outcome   Outcome
	Iteration int
	// QAFeedback is the QA agent's narrative for this round, empty when
	// the round ended before the QA turn ran.
	QAFeedback string
}

// State is a snapshot of the controller's loop state.
type State struct {
	Iteration     int
	MaxIterations int
	Active        bool
	StoppedByUser bool
}

// DesignerOpener opens a designer stream for the given driving message,
// conversation history and current code.
type DesignerOpener func(ctx context.Context, message string, history []transcript.Message, currentCode string) (session.Streamer, error)

// QAOpener opens a QA review stream.
type QAOpener func(ctx context.Context, req *api.QARequest) (session.Streamer, error)

// DeltaFunc observes streamed events from either agent, for display.
type DeltaFunc func(agent transcript.AgentType, ev session.Event)

// Options configures a Controller. OpenDesigner, OpenQA, Transcript and
// Code are required; OnDelta is optional.
type Options struct {
	Transcript    *transcript.Transcript
	Code          *session.CodeStore
	OpenDesigner  DesignerOpener
	OpenQA        QAOpener
	MaxIterations int
	OnDelta       DeltaFunc
}

// DefaultMaxIterations bounds the loop when the caller does not say
// otherwise.
const DefaultMaxIterations = 3

// Controller drives the bounded iterate-until-pass loop.
type Controller struct {
	transcript   *transcript.Transcript
	code         *session.CodeStore
	openDesigner DesignerOpener
	openQA       QAOpener
	onDelta      DeltaFunc

	mu            sync.Mutex
	iteration     int
	maxIterations int
	active        bool
	stopped       bool
}

// New creates a Controller. It starts inactive; Start activates it.
func New(opts Options) *Controller {
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	return &Controller{
		transcript:    opts.Transcript,
		code:          opts.Code,
		openDesigner:  opts.OpenDesigner,
		openQA:        opts.OpenQA,
		onDelta:       opts.OnDelta,
		maxIterations: maxIter,
	}
}

// State returns a snapshot of the loop state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Iteration:     c.iteration,
		MaxIterations: c.maxIterations,
		Active:        c.active,
		StoppedByUser: c.stopped,
	}
}

// Active reports whether the loop is engaged.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Stop requests deactivation. It is forward-looking: the in-flight turn
// is left to finish, but no further round will start.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

// Start activates the loop for a user turn and runs the first designer
// turn with the user's message. On return the current code store holds
// whatever code the designer produced; the owner executes it and
// reports via OnExecutionComplete.
func (c *Controller) Start(ctx context.Context, userMessage string) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return fmt.Errorf("auto mode already active")
	}
	c.iteration = 0
	c.stopped = false
	c.active = true
	c.mu.Unlock()

	history := c.transcript.Messages()
	c.transcript.Append(transcript.RoleUser, transcript.AgentNone, userMessage)

	if err := c.runDesigner(ctx, userMessage, history); err != nil {
		c.deactivate()
		return err
	}
	return nil
}

// OnExecutionComplete reports that the owner finished executing and
// testing the current code. The controller runs the QA turn, evaluates
// the pass sentinel and decides: deactivate on pass, stop or cap, or
// feed the QA feedback into a new designer turn and hand control back
// for the next execution.
func (c *Controller) OnExecutionComplete(ctx context.Context, exec *api.ExecutionResult, tests *api.TestSuiteResult) (Round, error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return Round{Outcome: OutcomeStopped}, fmt.Errorf("auto mode not active")
	}
	if c.stopped {
		c.mu.Unlock()
		c.deactivate()
		return Round{Outcome: OutcomeStopped}, nil
	}
	iteration := c.iteration
	c.mu.Unlock()

	// Snapshot the history before the QA turn appends its critique, so
	// a revision turn carries the feedback only as its driving message
	// and not duplicated in the history as well.
	history := c.transcript.Messages()

	qa := session.New(c.transcript, transcript.RoleQA, transcript.AgentQA, nil)
	req := &api.QARequest{
		ViewsURL:           exec.RenderURL(),
		TestResultsSummary: buildTestSummary(exec, tests),
		UserMessages:       c.transcript.UserContents(),
	}

	err := session.Wait(qa.Run(ctx, func(ctx context.Context) (session.Streamer, error) {
		return c.openQA(ctx, req)
	}), c.deltaFunc(transcript.AgentQA))
	if err != nil {
		c.deactivate()
		return Round{Outcome: OutcomeError, Iteration: iteration}, err
	}

	feedback := qa.Result().Narrative
	if feedback == "" {
		feedback = qa.Raw()
	}

	if qa.Passed() {
		c.deactivate()
		return Round{Outcome: OutcomePassed, Iteration: iteration, QAFeedback: feedback}, nil
	}

	c.mu.Lock()
	stopped := c.stopped
	c.iteration++
	next := c.iteration
	capped := next >= c.maxIterations
	c.mu.Unlock()

	if stopped {
		c.deactivate()
		return Round{Outcome: OutcomeStopped, Iteration: next, QAFeedback: feedback}, nil
	}
	if capped {
		c.deactivate()
		return Round{Outcome: OutcomeMaxIterations, Iteration: next, QAFeedback: feedback}, nil
	}

	// QA did not pass and the cap is not reached: feed the feedback
	// straight back to the designer without user action.
	if err := c.runDesigner(ctx, feedback, history); err != nil {
		c.deactivate()
		return Round{Outcome: OutcomeError, Iteration: next, QAFeedback: feedback}, err
	}

	return Round{Outcome: OutcomeContinue, Iteration: next, QAFeedback: feedback}, nil
}

// runDesigner executes one designer turn and blocks until it finishes.
func (c *Controller) runDesigner(ctx context.Context, message string, history []transcript.Message) error {
	s := session.New(c.transcript, transcript.RoleAssistant, transcript.AgentDesigner, c.code)
	return session.Wait(s.Run(ctx, func(ctx context.Context) (session.Streamer, error) {
		return c.openDesigner(ctx, message, history, c.code.Code())
	}), c.deltaFunc(transcript.AgentDesigner))
}

func (c *Controller) deltaFunc(agent transcript.AgentType) func(session.Event) {
	if c.onDelta == nil {
		return nil
	}
	return func(ev session.Event) {
		c.onDelta(agent, ev)
	}
}

// deactivate resets the loop to its inactive state.
func (c *Controller) deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.iteration = 0
}

// buildTestSummary renders the execution and test outcome as the text
// block the QA agent reviews. An execution failure leads the summary so
// QA sees it even when the test suite could not run.
func buildTestSummary(exec *api.ExecutionResult, tests *api.TestSuiteResult) string {
	var parts []string
	if exec != nil && !exec.Success && exec.Error != "" {
		parts = append(parts, "Execution failed: "+exec.Error)
	}
	if tests != nil {
		parts = append(parts, tests.Summary())
	}
	if len(parts) == 0 {
		return "no execution or test results available"
	}
	summary := parts[0]
	for _, p := range parts[1:] {
		summary += "\n" + p
	}
	return summary
}
