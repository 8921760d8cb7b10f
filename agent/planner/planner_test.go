package planner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	contractx "github.com/tanpawarit/crmpilot/agent/contract"
	toolx "github.com/tanpawarit/crmpilot/agent/tool"
	llmx "github.com/tanpawarit/crmpilot/pkg/llm"
)

// completionServer fakes an OpenAI-compatible chat completions endpoint.
// Each call pops the next canned response and records the request payload.
func completionServer(t *testing.T, responses ...string) (*httptest.Server, *[]map[string]any) {
	t.Helper()

	var seen []map[string]any
	idx := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		seen = append(seen, payload)

		if idx >= len(responses) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(responses[idx]))
		idx++
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func newTestPlanner(t *testing.T, baseURL string) *Planner {
	t.Helper()

	cfg := llmx.Config{
		BaseURL:             baseURL,
		APIKey:              "test-key",
		Model:               "gpt-4o-mini",
		MaxCompletionTokens: 512,
	}
	client, err := llmx.NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return New(client, cfg, "You are a CRM assistant.", toolx.Catalog())
}

const answerCompletion = `{
	"id": "cmpl-1",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "All done, contact 42 is up to date."}}]
}`

const toolCallCompletion = `{
	"id": "cmpl-2",
	"choices": [{"index": 0, "message": {
		"role": "assistant",
		"tool_calls": [{
			"id": "call-abc",
			"type": "function",
			"function": {"name": "create_contact", "arguments": "{\"email\": \"jane@x.com\", \"first_name\": \"Jane\"}"}
		}]
	}}]
}`

const badArgsCompletion = `{
	"id": "cmpl-3",
	"choices": [{"index": 0, "message": {
		"role": "assistant",
		"tool_calls": [{
			"id": "call-bad",
			"type": "function",
			"function": {"name": "create_contact", "arguments": "not json"}
		}]
	}}]
}`

const emptyCompletion = `{
	"id": "cmpl-4",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "   "}}]
}`

func TestPlanTerminalAnswer(t *testing.T) {
	t.Parallel()

	srv, _ := completionServer(t, answerCompletion)
	p := newTestPlanner(t, srv.URL)

	decision, err := p.Plan(context.Background(), contractx.PlanRequest{
		History: []contractx.Turn{{Role: contractx.RoleUser, Text: "update contact 42"}},
	})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !decision.Terminal() {
		t.Fatalf("expected terminal decision, got %+v", decision)
	}
	if decision.Answer != "All done, contact 42 is up to date." {
		t.Fatalf("unexpected answer: %q", decision.Answer)
	}
}

func TestPlanToolCalls(t *testing.T) {
	t.Parallel()

	srv, seen := completionServer(t, toolCallCompletion)
	p := newTestPlanner(t, srv.URL)

	decision, err := p.Plan(context.Background(), contractx.PlanRequest{
		History: []contractx.Turn{{Role: contractx.RoleUser, Text: "create jane@x.com"}},
	})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if decision.Terminal() {
		t.Fatalf("expected tool requests, got terminal decision %+v", decision)
	}
	if len(decision.ToolRequests) != 1 {
		t.Fatalf("expected one tool request, got %d", len(decision.ToolRequests))
	}
	req := decision.ToolRequests[0]
	if req.CallID != "call-abc" || req.Tool != "create_contact" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Args["email"] != "jane@x.com" || req.Args["first_name"] != "Jane" {
		t.Fatalf("arguments not decoded: %v", req.Args)
	}

	payload := (*seen)[0]
	tools, ok := payload["tools"].([]any)
	if !ok || len(tools) != len(toolx.Catalog()) {
		t.Fatalf("expected the full tool catalog on the wire, got %v", payload["tools"])
	}
	messages, ok := payload["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("expected system + user messages, got %v", payload["messages"])
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" {
		t.Fatalf("expected a leading system message, got %v", first)
	}
}

func TestPlanTranscriptCarriesExchanges(t *testing.T) {
	t.Parallel()

	srv, seen := completionServer(t, answerCompletion)
	p := newTestPlanner(t, srv.URL)

	_, err := p.Plan(context.Background(), contractx.PlanRequest{
		History: []contractx.Turn{{Role: contractx.RoleUser, Text: "create jane@x.com"}},
		Exchanges: []contractx.ToolExchange{{
			Request: contractx.ToolRequest{CallID: "call-abc", Tool: "create_contact", Args: map[string]any{"email": "jane@x.com"}},
			Result:  contractx.ToolResult{CallID: "call-abc", Tool: "create_contact", Result: map[string]any{"id": "42"}},
		}},
	})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	messages := (*seen)[0]["messages"].([]any)
	// system, user, assistant tool-call, tool result
	if len(messages) != 4 {
		t.Fatalf("expected 4 transcript messages, got %d: %v", len(messages), messages)
	}

	assistant := messages[2].(map[string]any)
	calls, ok := assistant["tool_calls"].([]any)
	if !ok || len(calls) != 1 {
		t.Fatalf("expected assistant tool-call message, got %v", assistant)
	}
	call := calls[0].(map[string]any)
	if call["id"] != "call-abc" {
		t.Fatalf("tool call id not carried: %v", call)
	}

	toolMsg := messages[3].(map[string]any)
	if toolMsg["role"] != "tool" || toolMsg["tool_call_id"] != "call-abc" {
		t.Fatalf("expected a tool message bound to call-abc, got %v", toolMsg)
	}
}

func TestPlanRejectsEmptyHistory(t *testing.T) {
	t.Parallel()

	srv, _ := completionServer(t)
	p := newTestPlanner(t, srv.URL)

	_, err := p.Plan(context.Background(), contractx.PlanRequest{})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPlanBadToolArguments(t *testing.T) {
	t.Parallel()

	srv, _ := completionServer(t, badArgsCompletion)
	p := newTestPlanner(t, srv.URL)

	_, err := p.Plan(context.Background(), contractx.PlanRequest{
		History: []contractx.Turn{{Role: contractx.RoleUser, Text: "create jane@x.com"}},
	})
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
}

func TestPlanEmptyCompletion(t *testing.T) {
	t.Parallel()

	srv, _ := completionServer(t, emptyCompletion)
	p := newTestPlanner(t, srv.URL)

	_, err := p.Plan(context.Background(), contractx.PlanRequest{
		History: []contractx.Turn{{Role: contractx.RoleUser, Text: "hello"}},
	})
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
}

func TestPlanModelFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "boom"}}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	p := newTestPlanner(t, srv.URL)

	_, err := p.Plan(context.Background(), contractx.PlanRequest{
		History: []contractx.Turn{{Role: contractx.RoleUser, Text: "hello"}},
	})
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
}
