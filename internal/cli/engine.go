package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/thruflo/drafter/internal/api"
	"github.com/thruflo/drafter/internal/automode"
	"github.com/thruflo/drafter/internal/config"
	"github.com/thruflo/drafter/internal/logging"
	"github.com/thruflo/drafter/internal/output"
	"github.com/thruflo/drafter/internal/session"
	"github.com/thruflo/drafter/internal/store"
	"github.com/thruflo/drafter/internal/transcript"
)

// engine wires the backend client, the transcript and the auto-mode
// controller together for one CLI conversation.
type engine struct {
	client     *api.Client
	ui         *output.UI
	transcript *transcript.Transcript
	code       *session.CodeStore
	controller *automode.Controller

	// persistence, nil when the command runs without a store
	store     store.Store
	sessionID string

	// systemPrompt overrides the backend default when configured;
	// otherwise it is fetched once from the backend before the first
	// designer turn.
	systemPrompt  string
	promptFetched bool
}

func newEngine(client *api.Client, ui *output.UI, maxIterations int) *engine {
	e := &engine{
		client:     client,
		ui:         ui,
		transcript: transcript.New(),
		code:       session.NewCodeStore(),
	}
	e.controller = automode.New(automode.Options{
		Transcript:    e.transcript,
		Code:          e.code,
		MaxIterations: maxIterations,
		OpenDesigner:  e.openDesigner,
		OpenQA:        e.openQA,
		OnDelta:       e.onDelta,
	})
	return e
}

func (e *engine) openDesigner(ctx context.Context, message string, history []transcript.Message, currentCode string) (session.Streamer, error) {
	e.ui.AgentHeader(transcript.AgentDesigner)
	return e.client.ChatStream(ctx, &api.ChatRequest{
		Message:      message,
		History:      api.WireHistory(history),
		SystemPrompt: e.resolveSystemPrompt(ctx),
		CurrentCode:  currentCode,
	})
}

// resolveSystemPrompt returns the configured prompt, fetching the
// backend's default once when nothing was configured. A fetch failure
// falls through to the empty prompt, which the backend treats as its
// own default.
func (e *engine) resolveSystemPrompt(ctx context.Context) string {
	if e.promptFetched || e.systemPrompt != "" {
		return e.systemPrompt
	}
	e.promptFetched = true

	prompt, err := e.client.SystemPrompt(ctx)
	if err != nil {
		logging.Warn("fetch system prompt", "error", err)
		return ""
	}
	e.systemPrompt = prompt
	return e.systemPrompt
}

func (e *engine) openQA(ctx context.Context, req *api.QARequest) (session.Streamer, error) {
	e.ui.AgentHeader(transcript.AgentQA)
	return e.client.QAReviewStream(ctx, req)
}

func (e *engine) onDelta(agent transcript.AgentType, ev session.Event) {
	if ev.Type == session.EventDelta {
		e.ui.Delta(ev.Delta)
	}
}

// chatTurn runs a single designer turn outside the auto-mode loop.
func (e *engine) chatTurn(ctx context.Context, message string) error {
	history := e.transcript.Messages()
	e.transcript.Append(transcript.RoleUser, transcript.AgentNone, message)

	s := session.New(e.transcript, transcript.RoleAssistant, transcript.AgentDesigner, e.code)
	err := session.Wait(s.Run(ctx, func(ctx context.Context) (session.Streamer, error) {
		return e.openDesigner(ctx, message, history, e.code.Code())
	}), func(ev session.Event) {
		e.onDelta(transcript.AgentDesigner, ev)
	})
	e.ui.EndTurn()
	if err != nil {
		return err
	}
	e.persist(ctx)
	return nil
}

// loadSystemPrompt reads the configured system prompt file, when one
// is set.
func (e *engine) loadSystemPrompt(cfg *config.Config) error {
	if cfg.Backend.SystemPromptFile == "" {
		return nil
	}
	data, err := os.ReadFile(cfg.Backend.SystemPromptFile)
	if err != nil {
		return fmt.Errorf("read system prompt file: %w", err)
	}
	e.systemPrompt = string(data)
	return nil
}

// executeAndShow runs the current code on the backend outside the
// auto-mode loop and prints the execution and test results.
func (e *engine) executeAndShow(ctx context.Context) error {
	code := e.code.Code()
	if code == "" {
		return nil
	}

	exec, err := e.client.Execute(ctx, code)
	if err != nil {
		return fmt.Errorf("execute code: %w", err)
	}
	if !exec.Success {
		e.ui.Warning("execution failed: %s", exec.Error)
		return nil
	}
	if url := exec.RenderURL(); url != "" {
		e.ui.Info("render: %s", url)
	}

	tests, err := e.client.RunTests(ctx, code)
	if err != nil {
		return fmt.Errorf("run tests: %w", err)
	}
	e.ui.TestResults(tests)
	return nil
}

// autoTurn runs the full design-execute-test-review loop for one user
// message and reports how it ended.
func (e *engine) autoTurn(ctx context.Context, message string) (automode.Outcome, error) {
	if err := e.controller.Start(ctx, message); err != nil {
		return automode.OutcomeError, err
	}
	e.ui.EndTurn()

	for {
		round, err := e.runExecution(ctx)
		if err != nil {
			return round.Outcome, err
		}

		e.recordRound(ctx, round)
		e.persist(ctx)

		if round.Outcome != automode.OutcomeContinue {
			return round.Outcome, nil
		}
	}
}

// runExecution executes and tests the current code on the backend,
// shows the results, and hands them to the controller.
func (e *engine) runExecution(ctx context.Context) (automode.Round, error) {
	code := e.code.Code()
	if code == "" {
		e.ui.Warning("designer produced no code; skipping execution")
	}

	exec, err := e.client.Execute(ctx, code)
	if err != nil {
		e.controller.Stop()
		return automode.Round{Outcome: automode.OutcomeError}, fmt.Errorf("execute code: %w", err)
	}
	if !exec.Success {
		e.ui.Warning("execution failed: %s", exec.Error)
	} else if url := exec.RenderURL(); url != "" {
		e.ui.Info("render: %s", url)
	}

	tests, err := e.client.RunTests(ctx, code)
	if err != nil {
		logging.Warn("test run failed", "error", err)
		tests = nil
	}
	e.ui.TestResults(tests)

	round, err := e.controller.OnExecutionComplete(ctx, exec, tests)
	e.ui.EndTurn()
	return round, err
}

// withStore attaches a persistence target. Every completed turn then
// updates the stored session.
func (e *engine) withStore(ctx context.Context, s store.Store, title string) error {
	ds := &store.DesignSession{Title: title}
	if err := s.CreateSession(ctx, ds); err != nil {
		return err
	}
	e.store = s
	e.sessionID = ds.ID
	return nil
}

func (e *engine) persist(ctx context.Context) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveMessages(ctx, e.sessionID, e.transcript.Messages()); err != nil {
		logging.Warn("save transcript", "error", err)
	}
	ds, err := e.store.GetSession(ctx, e.sessionID)
	if err != nil {
		logging.Warn("load session", "error", err)
		return
	}
	ds.CurrentCode = e.code.Code()
	if err := e.store.UpdateSession(ctx, ds); err != nil {
		logging.Warn("update session", "error", err)
	}
}

func (e *engine) recordRound(ctx context.Context, round automode.Round) {
	if e.store == nil {
		return
	}
	err := e.store.RecordRound(ctx, &store.LoopRound{
		SessionID:  e.sessionID,
		Iteration:  round.Iteration,
		Outcome:    round.Outcome.String(),
		QAFeedback: round.QAFeedback,
	})
	if err != nil {
		logging.Warn("record round", "error", err)
	}
}

// reportOutcome prints the loop's final disposition.
func (e *engine) reportOutcome(outcome automode.Outcome) {
	switch outcome {
	case automode.OutcomePassed:
		e.ui.Success("design passed QA review")
	case automode.OutcomeMaxIterations:
		e.ui.Warning("iteration budget exhausted without a QA pass")
	case automode.OutcomeStopped:
		e.ui.Info("auto mode stopped")
	case automode.OutcomeError:
		e.ui.Error("auto mode aborted")
	}
}
