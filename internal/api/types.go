// Package api is the HTTP client for the design backend. It consumes
// two SSE endpoints (designer chat, QA review) plus non-streaming JSON
// endpoints for code execution, constraint tests, health and the
// default system prompt. The backend's internals are opaque; only the
// response shapes matter here.
package api

import (
	"fmt"
	"strings"

	"github.com/thruflo/drafter/internal/transcript"
)

// WireMessage is one history entry in the chat request body.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body for POST /api/chat/stream.
type ChatRequest struct {
	Message      string        `json:"message"`
	History      []WireMessage `json:"history"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	CurrentCode  string        `json:"current_code,omitempty"`
}

// QARequest is the body for POST /api/qa-review/stream. The QA agent is
// deliberately seeded with only the user-authored messages plus the
// execution summary, never the designer's rationale.
type QARequest struct {
	ViewsURL           string   `json:"views_url"`
	TestResultsSummary string   `json:"test_results_summary"`
	UserMessages       []string `json:"user_messages"`
}

// ExecutionResult is the response from POST /api/execute.
type ExecutionResult struct {
	Success        bool   `json:"success"`
	Output         string `json:"output"`
	Error          string `json:"error"`
	STLURL         string `json:"stl_url"`
	ViewsURL       string `json:"views_url"`
	AssemblyGifURL string `json:"assembly_gif_url"`
}

// RenderURL returns the best available reference to the rendered
// design: the views page when present, else the raw STL.
func (r *ExecutionResult) RenderURL() string {
	if r.ViewsURL != "" {
		return r.ViewsURL
	}
	return r.STLURL
}

// Test status values used by the backend.
const (
	TestStatusPassed  = "passed"
	TestStatusFailed  = "failed"
	TestStatusSkipped = "skipped"
	TestStatusError   = "error"
)

// TestResultItem is a single constraint test outcome.
type TestResultItem struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	// LongMessage carries the detailed explanation meant for the agent,
	// not shown in compact UI output.
	LongMessage string         `json:"long_message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// agentMessage returns the text to feed back to an agent: the long
// message when the backend provided one, else the short one.
func (t *TestResultItem) agentMessage() string {
	if t.LongMessage != "" {
		return t.LongMessage
	}
	return t.Message
}

// TestSuiteResult is the response from POST /api/test.
type TestSuiteResult struct {
	Passed  int              `json:"passed"`
	Failed  int              `json:"failed"`
	Skipped int              `json:"skipped"`
	Errors  int              `json:"errors"`
	Success bool             `json:"success"`
	Tests   []TestResultItem `json:"tests"`
}

// Summary renders the suite result as text for the QA review request:
// a counts line followed by one line per non-passing test.
func (r *TestSuiteResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d passed, %d failed, %d skipped, %d errors",
		r.Passed, r.Failed, r.Skipped, r.Errors)
	for _, t := range r.Tests {
		if t.Status == TestStatusPassed {
			continue
		}
		fmt.Fprintf(&b, "\n[%s] %s: %s", t.Status, t.Name, t.agentMessage())
	}
	return b.String()
}

// HealthStatus is the response from GET /api/health.
type HealthStatus struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// wireRole maps transcript roles to the protocol's role strings. The
// mapping lives here, at the protocol boundary, so the rest of the
// engine never handles raw role literals.
func wireRole(r transcript.Role) string {
	switch r {
	case transcript.RoleAssistant:
		return "model"
	case transcript.RoleQA:
		return "qa_agent"
	default:
		return "user"
	}
}

// WireHistory converts transcript messages into request history
// entries.
func WireHistory(msgs []transcript.Message) []WireMessage {
	out := make([]WireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, WireMessage{Role: wireRole(m.Role), Content: m.Content})
	}
	return out
}
