// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"medquery/cli/internal/chat"
	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/retrieval"
	"medquery/cli/internal/sqlexec"
	"medquery/cli/internal/subjects"
)

type fakeAsker struct {
	got  chat.Request
	resp chat.Response
	err  error
}

func (f *fakeAsker) Ask(_ context.Context, req chat.Request) (chat.Response, error) {
	f.got = req
	return f.resp, f.err
}

type fakeRetriever struct{ ret retrieval.Retrieval }

func (f fakeRetriever) Retrieve(context.Context, string, string, sqlexec.AttemptFunc) retrieval.Retrieval {
	return f.ret
}

type fakeLister struct {
	list []subjects.Subject
	err  error
}

func (f fakeLister) List(context.Context) ([]subjects.Subject, error) { return f.list, f.err }

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestSendMessage(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		askErr      error
		wantStatus  int
		wantSubject string
		wantKey     string
	}{
		{name: "numeric subject", body: `{"message":"what is their diagnosis?","subject_id":7}`, wantStatus: 200, wantSubject: "7", wantKey: "response"},
		{name: "string subject", body: `{"message":"q","subject_id":" A-7 "}`, wantStatus: 200, wantSubject: "A-7", wantKey: "response"},
		{name: "legacy patientId", body: `{"message":"q","patientId":"12"}`, wantStatus: 200, wantSubject: "12", wantKey: "response"},
		{name: "null subject", body: `{"message":"q","subject_id":null}`, wantStatus: 200, wantKey: "response"},
		{name: "empty message", body: `{"message":"  "}`, wantStatus: 400, wantKey: "error"},
		{name: "bad json", body: `{"message":`, wantStatus: 400, wantKey: "error"},
		{name: "bool subject", body: `{"message":"q","subject_id":true}`, wantStatus: 400, wantKey: "error"},
		{
			name:       "classification failure",
			body:       `{"message":"q"}`,
			askErr:     apperrors.Wrap(apperrors.ClassificationFailed, "classification call failed", errors.New("api_key=sk-abcdefghijklmnopqrstuvwx")),
			wantStatus: 500,
			wantKey:    "details",
		},
		{
			name:       "invalid history",
			body:       `{"message":"q","history":[{"role":"tool","content":"x"}]}`,
			askErr:     apperrors.New(apperrors.InvalidRequest, "history entry 0"),
			wantStatus: 400,
			wantKey:    "error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asker := &fakeAsker{resp: chat.Response{Answer: "Asthma."}, err: tt.askErr}
			s := New(Deps{Asker: asker}, Options{AllowedOrigins: []string{"*"}}, nil)

			rec, out := do(t, s, http.MethodPost, "/send_message", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, out, tt.wantKey)
			if tt.wantStatus == 200 {
				assert.Equal(t, "Asthma.", out["response"])
				assert.Equal(t, tt.wantSubject, asker.got.SubjectID)
			}
			if tt.wantStatus == 500 {
				assert.NotContains(t, out["details"], "sk-abcdefghijklmnopqrstuvwx")
			}
		})
	}
}

func TestSendMessage_ForwardsHistory(t *testing.T) {
	asker := &fakeAsker{resp: chat.Response{Answer: "ok"}}
	s := New(Deps{Asker: asker}, Options{}, nil)

	rec, _ := do(t, s, http.MethodPost, "/send_message",
		`{"message":"and now?","history":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []chat.Turn{{Role: chat.RoleUser, Content: "hi"}, {Role: chat.RoleAssistant, Content: "hello"}}, asker.got.History)
}

func TestQuery(t *testing.T) {
	rows := &sqlexec.Result{Columns: []string{"subject_id", "given_name"}, Rows: [][]any{{"42", "Elena"}}}
	tests := []struct {
		name       string
		body       string
		ret        retrieval.Retrieval
		wantStatus int
		wantError  string
	}{
		{name: "rows", body: `{"message":"list patients"}`, ret: retrieval.Retrieval{Query: "SELECT subject_id, given_name FROM patients", Result: rows}, wantStatus: 200},
		{name: "missing message", body: `{}`, wantStatus: 400, wantError: "message is required"},
		{
			name:       "failure text",
			body:       `{"message":"q"}`,
			ret:        retrieval.Retrieval{Err: apperrors.New(apperrors.QueryStripped, "x"), Payload: "could not produce a valid query after removing problematic parts"},
			wantStatus: 400,
			wantError:  "could not produce a valid query after removing problematic parts",
		},
		{
			name:       "zero rows",
			body:       `{"message":"q"}`,
			ret:        retrieval.Retrieval{Result: &sqlexec.Result{Columns: []string{"a"}, Rows: [][]any{}}, Payload: retrieval.NoResultsPayload},
			wantStatus: 400,
			wantError:  retrieval.NoResultsPayload,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Deps{Retriever: fakeRetriever{ret: tt.ret}}, Options{}, nil)
			rec, out := do(t, s, http.MethodPost, "/query", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != 200 {
				assert.Equal(t, tt.wantError, out["error"])
				return
			}
			assert.Equal(t, []any{"subject_id", "given_name"}, out["columns"])
			assert.Equal(t, []any{[]any{"42", "Elena"}}, out["data"])
			assert.Equal(t, "SELECT subject_id, given_name FROM patients", out["query"])
		})
	}
}

func TestSubjects(t *testing.T) {
	list := []subjects.Subject{{ID: "1", GivenName: "Ana", FamilyName: "Pérez"}}
	s := New(Deps{Subjects: fakeLister{list: list}}, Options{}, nil)

	rec, _ := do(t, s, http.MethodGet, "/subjects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []subjects.Subject
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, list, got)

	s = New(Deps{Subjects: fakeLister{err: errors.New("no such table: patients")}}, Options{}, nil)
	rec, out := do(t, s, http.MethodGet, "/subjects", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, out["error"], "no such table")
}

func TestHealth(t *testing.T) {
	pinger := &fakePinger{}
	s := New(Deps{Store: pinger}, Options{}, nil)

	rec, out := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])

	pinger.err = errors.New("connection refused")
	rec, out = do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", out["status"])
}

func TestCORS(t *testing.T) {
	s := New(Deps{Store: &fakePinger{}}, Options{AllowedOrigins: []string{"http://localhost:3000"}}, nil)

	rec, _ := do(t, s, http.MethodOptions, "/send_message", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGRPCHealthTracksStore(t *testing.T) {
	pinger := &fakePinger{}
	s := New(Deps{Store: pinger}, Options{}, nil)

	lis := bufconn.Listen(1 << 20)
	g := s.GRPCServer()
	go func() { _ = g.Serve(lis) }()
	t.Cleanup(g.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, s.CheckHealth(ctx))
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	pinger.err = errors.New("down")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, s.CheckHealth(ctx))
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
