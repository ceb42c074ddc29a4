package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thruflo/drafter/internal/transcript"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("trims trailing slash from URL", func(t *testing.T) {
		t.Parallel()

		c := NewClient("http://localhost:8000/")
		assert.Equal(t, "http://localhost:8000", c.BaseURL())
	})

	t.Run("applies options", func(t *testing.T) {
		t.Parallel()

		hc := &http.Client{}
		c := NewClient("http://localhost:8000", WithHTTPClient(hc))
		assert.Same(t, hc, c.httpClient)
	})
}

func TestChatStream(t *testing.T) {
	t.Parallel()

	t.Run("receives deltas and suppresses sentinel", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/chat/stream", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)

			var req ChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "design a stool", req.Message)

			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			fmt.Fprint(w, "data: Hello\n\n")
			flusher.Flush()
			fmt.Fprint(w, "data:  world\n\ndata: [DONE]\n\n")
			flusher.Flush()
		}))
		defer server.Close()

		c := NewClient(server.URL)
		stream, err := c.ChatStream(context.Background(), &ChatRequest{Message: "design a stool"})
		require.NoError(t, err)
		defer stream.Close()

		var deltas []string
		for {
			d, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			deltas = append(deltas, d)
		}
		assert.Equal(t, []string{"Hello", " world"}, deltas)
	})

	t.Run("non-2xx fails before any delta", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down"))
		}))
		defer server.Close()

		c := NewClient(server.URL)
		_, err := c.ChatStream(context.Background(), &ChatRequest{Message: "hi"})
		require.Error(t, err)

		he, ok := IsHTTPError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadGateway, he.Status)
		assert.Contains(t, he.Error(), "upstream down")
	})

	t.Run("missing body fails with ErrStreamUnavailable", func(t *testing.T) {
		t.Parallel()

		c := NewClient("http://backend", WithHTTPClient(&http.Client{
			Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusOK,
					Body:       http.NoBody,
					Header:     make(http.Header),
				}, nil
			}),
		}))

		_, err := c.ChatStream(context.Background(), &ChatRequest{Message: "hi"})
		assert.ErrorIs(t, err, ErrStreamUnavailable)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := NewClient(server.URL)
		_, err := c.ChatStream(ctx, &ChatRequest{Message: "hi"})
		require.Error(t, err)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestQAReviewStream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/qa-review/stream", r.URL.Path)

		var req QARequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"make a stool"}, req.UserMessages)
		assert.Equal(t, "http://x/views", req.ViewsURL)

		fmt.Fprint(w, "data: QA_PASSED\n\n")
	}))
	defer server.Close()

	c := NewClient(server.URL)
	stream, err := c.QAReviewStream(context.Background(), &QARequest{
		ViewsURL:           "http://x/views",
		TestResultsSummary: "5 passed, 0 failed, 0 skipped, 0 errors",
		UserMessages:       []string{"make a stool"},
	})
	require.NoError(t, err)
	defer stream.Close()

	d, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "QA_PASSED", d)
}

func TestExecute(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/execute", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "result = box(1)", body["code"])

		json.NewEncoder(w).Encode(ExecutionResult{
			Success:  true,
			Output:   "ok",
			STLURL:   "/files/design.stl",
			ViewsURL: "/files/views.html",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	result, err := c.Execute(context.Background(), "result = box(1)")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "/files/views.html", result.RenderURL())
}

func TestExecutionResultRenderURLFallsBackToSTL(t *testing.T) {
	t.Parallel()

	r := &ExecutionResult{STLURL: "/files/design.stl"}
	assert.Equal(t, "/files/design.stl", r.RenderURL())
}

func TestRunTests(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/test", r.URL.Path)
		json.NewEncoder(w).Encode(TestSuiteResult{
			Passed: 4, Failed: 1, Success: false,
			Tests: []TestResultItem{
				{Name: "Code Execution", Status: TestStatusPassed, Message: "ok"},
				{Name: "Static Stability", Status: TestStatusFailed, Message: "unstable"},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	result, err := c.RunTests(context.Background(), "result = box(1)")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.Success)
}

func TestHealthAndSystemPrompt(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			json.NewEncoder(w).Encode(HealthStatus{Status: "healthy", Model: "gemini-2.5-flash"})
		case "/api/system-prompt":
			json.NewEncoder(w).Encode(map[string]string{"system_prompt": "You are a designer."})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL)

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "gemini-2.5-flash", health.Model)

	prompt, err := c.SystemPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "You are a designer.", prompt)
}

func TestWireHistoryRoleMapping(t *testing.T) {
	t.Parallel()

	msgs := []transcript.Message{
		{Role: transcript.RoleUser, Content: "u"},
		{Role: transcript.RoleAssistant, Content: "a"},
		{Role: transcript.RoleQA, Content: "q"},
	}

	got := WireHistory(msgs)
	require.Len(t, got, 3)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "model", got[1].Role)
	assert.Equal(t, "qa_agent", got[2].Role)
}

func TestTestSuiteSummary(t *testing.T) {
	t.Parallel()

	r := &TestSuiteResult{
		Passed: 3, Failed: 1, Skipped: 0, Errors: 1,
		Tests: []TestResultItem{
			{Name: "Code Execution", Status: TestStatusPassed, Message: "ok"},
			{Name: "Parts in Library", Status: TestStatusFailed, Message: "2 violations", LongMessage: "leg_1 too long\nleg_2 too long"},
			{Name: "No Part Intersections", Status: TestStatusError, Message: "boolean op failed"},
		},
	}

	summary := r.Summary()
	assert.Contains(t, summary, "3 passed, 1 failed, 0 skipped, 1 errors")
	// Non-passing tests use the long message when present.
	assert.Contains(t, summary, "leg_1 too long")
	assert.NotContains(t, summary, "2 violations")
	assert.Contains(t, summary, "[error] No Part Intersections: boolean op failed")
	assert.NotContains(t, summary, "Code Execution")
}

func TestWithRequestTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRequestTimeout(20*time.Millisecond))
	_, err := c.Health(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
