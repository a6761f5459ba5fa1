package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/speca-google/goes-agents-poc/internal/agent"
	"github.com/speca-google/goes-agents-poc/internal/tools"
)

type mockAsker struct {
	mock.Mock
}

func (m *mockAsker) Ask(ctx context.Context, sess *agent.Session, question string) (string, error) {
	args := m.Called(sess.ID, question)
	return args.String(0), args.Error(1)
}

type mockTools struct {
	mock.Mock
}

func (m *mockTools) Schema(ctx context.Context) string {
	return m.Called().String(0)
}

func (m *mockTools) Execute(ctx context.Context, sqlText string) tools.QueryResult {
	return m.Called(sqlText).Get(0).(tools.QueryResult)
}

type nopChat struct{}

func (nopChat) SendMessage(context.Context, ...genai.Part) (*genai.GenerateContentResponse, error) {
	return nil, errors.New("not used")
}

func newTestServer(asker Asker, toolset Tools) (*Server, *agent.Store) {
	store := agent.NewStore(func() agent.ChatSession { return nopChat{} }, 0)
	return New(asker, store, toolset, nil), store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(&mockAsker{}, &mockTools{})
	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAsk(t *testing.T) {
	asker := &mockAsker{}
	asker.On("Ask", "abc", "¿Cuánto se devengó?").Return("Se devengaron $10.", nil)
	srv, store := newTestServer(asker, &mockTools{})

	rec := do(t, srv.Handler(), http.MethodPost, "/v1/ask", `{"session_id":"abc","question":"¿Cuánto se devengó?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"session_id":"abc","answer":"Se devengaron $10."}`, rec.Body.String())
	assert.Equal(t, 1, store.Len())
	asker.AssertExpectations(t)
}

func TestAskNewSession(t *testing.T) {
	asker := &mockAsker{}
	asker.On("Ask", mock.AnythingOfType("string"), "hola").Return("Hola.", nil)
	srv, _ := newTestServer(asker, &mockTools{})

	rec := do(t, srv.Handler(), http.MethodPost, "/v1/ask", `{"question":"hola"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "Hola.", resp.Answer)
}

func TestAskBadRequests(t *testing.T) {
	srv, _ := newTestServer(&mockAsker{}, &mockTools{})
	for _, body := range []string{`{`, `{"question":"  "}`} {
		rec := do(t, srv.Handler(), http.MethodPost, "/v1/ask", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestAskErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"model", &agent.ErrModelCall{Msg: "sending", Err: errors.New("503")}, http.StatusBadGateway},
		{"tool loop", &agent.ErrToolLoop{Limit: 10}, http.StatusUnprocessableEntity},
		{"cancelled", &agent.ErrCancelled{Msg: "cancelled", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asker := &mockAsker{}
			asker.On("Ask", "s", "hola").Return("", tt.err)
			srv, _ := newTestServer(asker, &mockTools{})

			rec := do(t, srv.Handler(), http.MethodPost, "/v1/ask", `{"session_id":"s","question":"hola"}`)
			assert.Equal(t, tt.want, rec.Code)
			var resp askResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "s", resp.SessionID)
			assert.Equal(t, tt.err.Error(), resp.Error)
		})
	}
}

func TestDeleteSession(t *testing.T) {
	srv, store := newTestServer(&mockAsker{}, &mockTools{})
	store.Get("abc")

	rec := do(t, srv.Handler(), http.MethodDelete, "/v1/sessions/abc", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, store.Len())
}

func TestSchemaEndpoint(t *testing.T) {
	toolset := &mockTools{}
	toolset.On("Schema").Return("CREATE OR REPLACE TABLE `p.d.t` (\n);\n\n")
	srv, _ := newTestServer(&mockAsker{}, toolset)

	rec := do(t, srv.Handler(), http.MethodGet, "/v1/tools/schema", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "CREATE OR REPLACE TABLE `p.d.t` (\n);\n\n", rec.Body.String())
}

func TestQueryEndpoint(t *testing.T) {
	toolset := &mockTools{}
	toolset.On("Execute", "SELECT 1 AS uno").Return(tools.QueryResult{
		Kind:    tools.ResultRows,
		Columns: []string{"uno"},
		Rows:    [][]any{{int64(1)}},
		JSON:    "[\n  {\n    \"uno\": 1\n  }\n]",
	})
	toolset.On("Execute", "DELETE FROM t").Return(tools.QueryResult{
		Kind:    tools.ResultFault,
		Fault:   tools.FaultRejected,
		Message: "not read-only",
	})
	srv, _ := newTestServer(&mockAsker{}, toolset)

	rec := do(t, srv.Handler(), http.MethodPost, "/v1/tools/query", `{"sql_query":"SELECT 1 AS uno"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, queryResponse{Kind: "rows", Rows: 1, Result: "[\n  {\n    \"uno\": 1\n  }\n]"}, resp)

	rec = do(t, srv.Handler(), http.MethodPost, "/v1/tools/query", `{"sql_query":"DELETE FROM t"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, queryResponse{Kind: "fault", Fault: "rejected", Result: tools.RejectedMessage}, resp)

	rec = do(t, srv.Handler(), http.MethodPost, "/v1/tools/query", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	toolset.AssertNumberOfCalls(t, "Execute", 2)
}

func TestRequestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	store := agent.NewStore(func() agent.ChatSession { return nopChat{} }, 0)
	srv := New(&mockAsker{}, store, &mockTools{}, zap.New(core))

	do(t, srv.Handler(), http.MethodGet, "/healthz", "")

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/healthz", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}
