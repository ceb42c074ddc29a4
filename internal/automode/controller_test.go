package automode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thruflo/drafter/internal/api"
	"github.com/thruflo/drafter/internal/session"
	"github.com/thruflo/drafter/internal/transcript"
)

// scriptStream replays fixed deltas then ends cleanly.
type scriptStream struct {
	deltas []string
	err    error
}

func (s *scriptStream) Recv() (string, error) {
	if len(s.deltas) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	d := s.deltas[0]
	s.deltas = s.deltas[1:]
	return d, nil
}

func (s *scriptStream) Close() error { return nil }

// harness wires a Controller to scripted designer and QA responses and
// records what each opener was called with.
type harness struct {
	mu sync.Mutex

	tr   *transcript.Transcript
	code *session.CodeStore
	ctrl *Controller

	designerTexts []string // response script, one per designer turn
	qaTexts       []string // response script, one per QA turn

	designerCalls []string         // driving messages seen
	qaCalls       []*api.QARequest // QA requests seen
	designerErr   error
	qaErr         error
}

func newHarness(maxIterations int) *harness {
	h := &harness{
		tr:   transcript.New(),
		code: session.NewCodeStore(),
	}
	h.ctrl = New(Options{
		Transcript:    h.tr,
		Code:          h.code,
		MaxIterations: maxIterations,
		OpenDesigner: func(ctx context.Context, message string, history []transcript.Message, currentCode string) (session.Streamer, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.designerErr != nil {
				return nil, h.designerErr
			}
			h.designerCalls = append(h.designerCalls, message)
			n := len(h.designerCalls) - 1
			text := fmt.Sprintf("Revision %d.\n```python\ncode_v%d\n```", n+1, n+1)
			if n < len(h.designerTexts) {
				text = h.designerTexts[n]
			}
			return &scriptStream{deltas: []string{text}}, nil
		},
		OpenQA: func(ctx context.Context, req *api.QARequest) (session.Streamer, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.qaErr != nil {
				return nil, h.qaErr
			}
			h.qaCalls = append(h.qaCalls, req)
			n := len(h.qaCalls) - 1
			text := "QA_FAILED: needs work"
			if n < len(h.qaTexts) {
				text = h.qaTexts[n]
			}
			return &scriptStream{deltas: []string{text}}, nil
		},
	})
	return h
}

func execOK() *api.ExecutionResult {
	return &api.ExecutionResult{Success: true, ViewsURL: "/files/views.html", STLURL: "/files/out.stl"}
}

func testsFailing() *api.TestSuiteResult {
	return &api.TestSuiteResult{
		Passed: 2, Failed: 1,
		Tests: []api.TestResultItem{
			{Name: "Static Stability", Status: api.TestStatusFailed, Message: "unstable"},
		},
	}
}

func TestControllerPassDeactivates(t *testing.T) {
	t.Parallel()

	h := newHarness(3)
	h.qaTexts = []string{"Meets all requirements. QA_PASSED"}

	require.NoError(t, h.ctrl.Start(context.Background(), "design a stool"))
	assert.True(t, h.ctrl.Active())
	assert.Equal(t, "code_v1", h.code.Code())

	round, err := h.ctrl.OnExecutionComplete(context.Background(), execOK(), &api.TestSuiteResult{Passed: 5, Success: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomePassed, round.Outcome)
	assert.Contains(t, round.QAFeedback, "Meets all requirements")

	// Deactivation resets the loop entirely.
	st := h.ctrl.State()
	assert.False(t, st.Active)
	assert.Equal(t, 0, st.Iteration)

	// No further designer turn was scheduled after the pass.
	assert.Len(t, h.designerCalls, 1)
}

func TestControllerMaxIterationsRounds(t *testing.T) {
	t.Parallel()

	// QA never passes: exactly 3 Designer→QA rounds, then deactivate.
	h := newHarness(3)

	require.NoError(t, h.ctrl.Start(context.Background(), "design a stool"))

	round, err := h.ctrl.OnExecutionComplete(context.Background(), execOK(), testsFailing())
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, round.Outcome)
	assert.Equal(t, 1, round.Iteration)

	round, err = h.ctrl.OnExecutionComplete(context.Background(), execOK(), testsFailing())
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, round.Outcome)
	assert.Equal(t, 2, round.Iteration)

	round, err = h.ctrl.OnExecutionComplete(context.Background(), execOK(), testsFailing())
	require.NoError(t, err)
	assert.Equal(t, OutcomeMaxIterations, round.Outcome)
	assert.Equal(t, 3, round.Iteration)

	assert.Len(t, h.designerCalls, 3, "no designer turn after the cap")
	assert.Len(t, h.qaCalls, 3)
	assert.False(t, h.ctrl.Active())
}

func TestControllerFeedsQAFeedbackToDesigner(t *testing.T) {
	t.Parallel()

	h := newHarness(5)
	h.qaTexts = []string{"QA_FAILED: the legs are detached from the seat"}

	require.NoError(t, h.ctrl.Start(context.Background(), "design a stool"))
	round, err := h.ctrl.OnExecutionComplete(context.Background(), execOK(), testsFailing())
	require.NoError(t, err)
	require.Equal(t, OutcomeContinue, round.Outcome)

	require.Len(t, h.designerCalls, 2)
	assert.Equal(t, "design a stool", h.designerCalls[0])
	assert.Contains(t, h.designerCalls[1], "legs are detached")

	// The revision updated the code side-channel.
	assert.Equal(t, "code_v2", h.code.Code())
}

func TestControllerQARequestSeeding(t *testing.T) {
	t.Parallel()

	h := newHarness(3)
	h.qaTexts = []string{"QA_PASSED"}

	require.NoError(t, h.ctrl.Start(context.Background(), "design a stool"))

	exec := &api.ExecutionResult{Success: false, Error: "NameError: box", STLURL: "/files/out.stl"}
	_, err := h.ctrl.OnExecutionComplete(context.Background(), exec, testsFailing())
	require.NoError(t, err)

	require.Len(t, h.qaCalls, 1)
	req := h.qaCalls[0]

	// QA sees only the user-authored messages, never designer output.
	assert.Equal(t, []string{"design a stool"}, req.UserMessages)

	// Execution failure leads the summary; no views page, so the STL is
	// the render reference.
	assert.Contains(t, req.TestResultsSummary, "Execution failed: NameError: box")
	assert.Contains(t, req.TestResultsSummary, "Static Stability")
	assert.Equal(t, "/files/out.stl", req.ViewsURL)
}

func TestControllerStopPreventsNextRound(t *testing.T) {
	t.Parallel()

	h := newHarness(10)

	require.NoError(t, h.ctrl.Start(context.Background(), "design a stool"))
	round, err := h.ctrl.OnExecutionComplete(context.Background(), execOK(), testsFailing())
	require.NoError(t, err)
	require.Equal(t, OutcomeContinue, round.Outcome)

	h.ctrl.Stop()

	round, err = h.ctrl.OnExecutionComplete(context.Background(), execOK(), testsFailing())
	require.NoError(t, err)
	assert.Equal(t, OutcomeStopped, round.Outcome)

	// The stopped round ran no further agent turns.
	assert.Len(t, h.qaCalls, 1)
	assert.Len(t, h.designerCalls, 2)
	assert.False(t, h.ctrl.Active())
}

func TestControllerAgentErrorDeactivatesWithoutPass(t *testing.T) {
	t.Parallel()

	h := newHarness(3)
	h.qaErr = errors.New("backend returned status 502")

	require.NoError(t, h.ctrl.Start(context.Background(), "design a stool"))
	round, err := h.ctrl.OnExecutionComplete(context.Background(), execOK(), testsFailing())
	require.Error(t, err)
	assert.Equal(t, OutcomeError, round.Outcome)
	assert.False(t, h.ctrl.Active())
}

func TestControllerDesignerErrorOnStart(t *testing.T) {
	t.Parallel()

	h := newHarness(3)
	h.designerErr = errors.New("connection refused")

	err := h.ctrl.Start(context.Background(), "design a stool")
	require.Error(t, err)
	assert.False(t, h.ctrl.Active())
}

func TestControllerInactiveRejectsCompletion(t *testing.T) {
	t.Parallel()

	h := newHarness(3)
	_, err := h.ctrl.OnExecutionComplete(context.Background(), execOK(), testsFailing())
	require.Error(t, err)
}

func TestControllerStartWhileActive(t *testing.T) {
	t.Parallel()

	h := newHarness(3)
	require.NoError(t, h.ctrl.Start(context.Background(), "first"))
	assert.Error(t, h.ctrl.Start(context.Background(), "second"))
}

func TestBuildTestSummary(t *testing.T) {
	t.Parallel()

	t.Run("success with tests", func(t *testing.T) {
		t.Parallel()

		got := buildTestSummary(execOK(), &api.TestSuiteResult{Passed: 5})
		assert.Equal(t, "5 passed, 0 failed, 0 skipped, 0 errors", got)
	})

	t.Run("exec failure leads", func(t *testing.T) {
		t.Parallel()

		exec := &api.ExecutionResult{Success: false, Error: "boom"}
		got := buildTestSummary(exec, &api.TestSuiteResult{Failed: 1})
		assert.Contains(t, got, "Execution failed: boom")
	})

	t.Run("nothing available", func(t *testing.T) {
		t.Parallel()

		got := buildTestSummary(nil, nil)
		assert.Equal(t, "no execution or test results available", got)
	})
}
