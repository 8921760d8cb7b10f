package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/crmpilot/agent/contract"
	orchestratorx "github.com/tanpawarit/crmpilot/agent/orchestrator"
)

type scriptedPlanner struct {
	answer string
	err    error
}

func (p *scriptedPlanner) Plan(ctx context.Context, req contractx.PlanRequest) (contractx.Decision, error) {
	if p.err != nil {
		return contractx.Decision{}, p.err
	}
	return contractx.Decision{Answer: p.answer}, nil
}

type noopGateway struct{}

func (noopGateway) Execute(ctx context.Context, reqs []contractx.ToolRequest) ([]contractx.ToolResult, error) {
	return nil, nil
}

func newTestServer(t *testing.T, planner contractx.Planner) (*Server, *atomic.Int32) {
	t.Helper()

	var factoryCalls atomic.Int32
	srv := New(func() (*orchestratorx.Service, error) {
		factoryCalls.Add(1)
		return orchestratorx.New(planner, noopGateway{}, orchestratorx.Config{})
	})
	return srv, &factoryCalls
}

func postRun(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &scriptedPlanner{answer: "ok"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &scriptedPlanner{answer: "Created contact 42."})

	rec := postRun(t, srv.Handler(), `{"prompt":"create jane@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Created contact 42.", resp.Output)
}

func TestRunRejectsBadJSON(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &scriptedPlanner{answer: "ok"})

	rec := postRun(t, srv.Handler(), `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_request", resp.Error.Code)
}

func TestRunRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &scriptedPlanner{answer: "ok"})

	for _, body := range []string{`{}`, `{"prompt":""}`, `{"prompt":"   "}`} {
		rec := postRun(t, srv.Handler(), body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}

func TestRunModelFailure(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &scriptedPlanner{err: contractx.ErrModelInvoke})

	rec := postRun(t, srv.Handler(), `{"prompt":"hello"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "model_failure", resp.Error.Code)
}

func TestRunSchemaViolationIsModelFailure(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &scriptedPlanner{err: contractx.ErrSchemaViolation})

	rec := postRun(t, srv.Handler(), `{"prompt":"hello"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRunSessionsAreReused(t *testing.T) {
	t.Parallel()

	srv, factoryCalls := newTestServer(t, &scriptedPlanner{answer: "ok"})

	postRun(t, srv.Handler(), `{"prompt":"one"}`)
	postRun(t, srv.Handler(), `{"prompt":"two"}`)
	assert.Equal(t, int32(1), factoryCalls.Load(), "the default session is built once")

	postRun(t, srv.Handler(), `{"prompt":"three","session_id":"alice"}`)
	assert.Equal(t, int32(2), factoryCalls.Load(), "a new session id gets its own orchestrator")

	postRun(t, srv.Handler(), `{"prompt":"four","session_id":"alice"}`)
	assert.Equal(t, int32(2), factoryCalls.Load())
}

func TestRunFactoryFailure(t *testing.T) {
	t.Parallel()

	srv := New(func() (*orchestratorx.Service, error) {
		return nil, assert.AnError
	})

	rec := postRun(t, srv.Handler(), `{"prompt":"hello"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "configuration", resp.Error.Code)
}

func TestClassifyRunError(t *testing.T) {
	t.Parallel()

	status, code, _ := classifyRunError(contractx.ErrInvalidMessage)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", code)

	status, code, _ = classifyRunError(context.Canceled)
	assert.Equal(t, http.StatusRequestTimeout, status)
	assert.Equal(t, "cancelled", code)

	status, code, _ = classifyRunError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", code)
}
