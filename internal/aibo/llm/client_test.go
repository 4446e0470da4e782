package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeCompletionServer speaks just enough of the OpenAI chat completions
// wire format for the client under test. Each call pops the next scripted
// response body.
func fakeCompletionServer(t *testing.T, responses []string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if calls >= len(responses) {
			t.Errorf("unexpected completion call %d", calls+1)
			http.Error(w, "no scripted response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, responses[calls])
		calls++
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func textResponse(content string, totalTokens int) string {
	return fmt.Sprintf(`{
		"choices": [{"message": {"role": "assistant", "content": %q}, "finish_reason": "stop"}],
		"usage": {"total_tokens": %d}
	}`, content, totalTokens)
}

func toolCallResponse(toolName, arguments string, totalTokens int) string {
	args, _ := json.Marshal(arguments)
	return fmt.Sprintf(`{
		"choices": [{"message": {"role": "assistant", "content": "",
			"tool_calls": [{"id": "call-1", "type": "function",
				"function": {"name": %q, "arguments": %s}}]},
			"finish_reason": "tool_calls"}],
		"usage": {"total_tokens": %d}
	}`, toolName, args, totalTokens)
}

func TestCompletePlainReply(t *testing.T) {
	srv, calls := fakeCompletionServer(t, []string{
		textResponse("hello back", 17),
	})

	c := New(Config{APIKey: "test", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	ex, err := c.Complete(context.Background(), []Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}, "hello", nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if *calls != 1 {
		t.Errorf("expected 1 completion call, got %d", *calls)
	}
	if ex.Reply != "hello back" {
		t.Errorf("Reply = %q, want %q", ex.Reply, "hello back")
	}
	if ex.TotalTokens != 17 {
		t.Errorf("TotalTokens = %d, want 17", ex.TotalTokens)
	}
	if len(ex.Turns) != 2 || ex.Turns[0].Role != "user" || ex.Turns[1].Role != "assistant" {
		t.Errorf("unexpected transcript: %+v", ex.Turns)
	}
}

func TestCompleteRunsToolThenReplies(t *testing.T) {
	srv, calls := fakeCompletionServer(t, []string{
		toolCallResponse("summarize_url", `{"query": "summarize https://example.com/a"}`, 10),
		textResponse("here is the summary", 25),
	})

	var toolInput string
	def := queryTool(t, func(ctx context.Context, args json.RawMessage) (string, error) {
		var parsed struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(args, &parsed); err != nil {
			return "", err
		}
		toolInput = parsed.Query
		return `{"context": "Hello world", "title": "Example"}`, nil
	})

	c := New(Config{APIKey: "test", BaseURL: srv.URL})
	ex, err := c.Complete(context.Background(), nil, "summarize https://example.com/a", []ToolDef{def})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if *calls != 2 {
		t.Errorf("expected 2 completion calls, got %d", *calls)
	}
	if toolInput != "summarize https://example.com/a" {
		t.Errorf("tool received %q", toolInput)
	}
	if ex.Reply != "here is the summary" {
		t.Errorf("Reply = %q", ex.Reply)
	}
	if ex.TotalTokens != 35 {
		t.Errorf("TotalTokens = %d, want 35 (summed across rounds)", ex.TotalTokens)
	}
	// Transcript: user, tool, assistant.
	if len(ex.Turns) != 3 {
		t.Fatalf("expected 3 transcript turns, got %d: %+v", len(ex.Turns), ex.Turns)
	}
	if ex.Turns[1].Role != "tool" {
		t.Errorf("middle turn role = %q, want tool", ex.Turns[1].Role)
	}
}

func TestCompleteBoundsToolRounds(t *testing.T) {
	// The model keeps asking for tools forever; the client must give up.
	loop := toolCallResponse("summarize_url", `{"query": "x"}`, 1)
	srv, _ := fakeCompletionServer(t, []string{loop, loop, loop})

	def := queryTool(t, func(ctx context.Context, args json.RawMessage) (string, error) {
		return "output", nil
	})

	c := New(Config{APIKey: "test", BaseURL: srv.URL, MaxToolRounds: 3})
	_, err := c.Complete(context.Background(), nil, "x", []ToolDef{def})
	if err == nil {
		t.Fatal("expected error after exceeding tool rounds")
	}
}

func TestCompleteSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "quota exceeded", "type": "insufficient_quota"}}`,
			http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{APIKey: "test", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), nil, "hello", nil)
	if err == nil {
		t.Fatal("expected error from failed completion")
	}
}
