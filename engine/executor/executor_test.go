package executor_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/executor"
	"github.com/nlapi/orchestra/engine/metadata"
	"github.com/nlapi/orchestra/engine/planner"
)

type fakeMessages struct{}

func (fakeMessages) FindResponseMessage(_ context.Context, _, _ core.ID, status int) (*metadata.ResponseMessage, bool) {
	if status == 404 {
		return &metadata.ResponseMessage{Message: "not found", Suggestion: "check the id"}, true
	}
	return nil, false
}

type fakeJudge struct {
	satisfiedAfter int
	calls          int
}

func (f *fakeJudge) IsSatisfied(_ context.Context, _ string, results []executor.StepResult) bool {
	f.calls++
	return len(results) >= f.satisfiedAfter
}

func TestExecutor_Run_InterpolatesCrossStepReference(t *testing.T) {
	t.Run("Should pass a field from step one's response into step two's path", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/pets":
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"items":[{"id":"pet-42"}]}`))
			case "/pets/pet-42":
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"pet-42","name":"Rex"}`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()

		ep1 := &metadata.Endpoint{ID: core.NewID(), Method: metadata.MethodGet, Path: "/pets"}
		ep2 := &metadata.Endpoint{
			ID: core.NewID(), Method: metadata.MethodGet, Path: "/pets/{id}",
			Parameters: []metadata.RequestParameter{{Name: "id", In: metadata.InPath, Required: true}},
		}
		endpoints := map[string]*metadata.Endpoint{ep1.Label(): ep1, ep2.Label(): ep2}

		plan := &planner.Plan{Steps: []planner.Step{
			{Endpoint: ep1.Label()},
			{Endpoint: ep2.Label(), Params: map[string]any{"id": "$.steps[0].response.items.0.id"}},
		}}

		exec := executor.New(5*time.Second, 10*time.Millisecond, fakeMessages{}, nil)
		run, err := exec.Run(context.Background(), plan, server.URL, core.NewID(), endpoints, nil, "get Rex's details", nil)
		require.NoError(t, err)
		require.Len(t, run.Steps, 2)
		assert.False(t, run.EarlyTerminated)
		assert.Equal(t, 200, run.Steps[1].StatusCode)

		var body map[string]string
		require.NoError(t, json.Unmarshal(run.Steps[1].Response, &body))
		assert.Equal(t, "Rex", body["name"])
	})
}

func TestExecutor_Run_AttachesErrorMessageOnFailure(t *testing.T) {
	t.Run("Should attach the registered message and suggestion on a 404", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		ep := &metadata.Endpoint{ID: core.NewID(), Method: metadata.MethodGet, Path: "/missing"}
		endpoints := map[string]*metadata.Endpoint{ep.Label(): ep}
		plan := &planner.Plan{Steps: []planner.Step{{Endpoint: ep.Label()}}}

		exec := executor.New(5*time.Second, 10*time.Millisecond, fakeMessages{}, nil)
		run, err := exec.Run(context.Background(), plan, server.URL, core.NewID(), endpoints, nil, "find my pet", nil)
		require.Error(t, err)
		require.Len(t, run.Steps, 1)
		assert.Equal(t, "not found", run.Steps[0].ErrMessage)
		assert.Equal(t, "check the id", run.Steps[0].Suggestion)
	})
}

func TestExecutor_Run_ForwardsBearerAuth(t *testing.T) {
	t.Run("Should forward the bearer token as an Authorization header", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		ep := &metadata.Endpoint{ID: core.NewID(), Method: metadata.MethodGet, Path: "/secure"}
		endpoints := map[string]*metadata.Endpoint{ep.Label(): ep}
		plan := &planner.Plan{Steps: []planner.Step{{Endpoint: ep.Label()}}}

		exec := executor.New(5*time.Second, 10*time.Millisecond, fakeMessages{}, nil)
		auth := &core.AuthBlob{Kind: core.AuthKindBearer, Token: "abc123"}
		_, err := exec.Run(context.Background(), plan, server.URL, core.NewID(), endpoints, auth, "secure call", nil)
		require.NoError(t, err)
		assert.Equal(t, "Bearer abc123", gotAuth)
	})
}

func TestExecutor_Run_EarlyTerminatesMultiStepPlanWhenJudgeSaysYes(t *testing.T) {
	t.Run("Should stop after step one and never call step two's endpoint", func(t *testing.T) {
		var secondStepCalled bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/pets":
				_, _ = w.Write([]byte(`{"items":[{"id":"pet-1"}]}`))
			case "/orders":
				secondStepCalled = true
				_, _ = w.Write([]byte(`{}`))
			}
		}))
		defer server.Close()

		ep1 := &metadata.Endpoint{ID: core.NewID(), Method: metadata.MethodGet, Path: "/pets"}
		ep2 := &metadata.Endpoint{ID: core.NewID(), Method: metadata.MethodGet, Path: "/orders"}
		endpoints := map[string]*metadata.Endpoint{ep1.Label(): ep1, ep2.Label(): ep2}

		plan := &planner.Plan{Steps: []planner.Step{
			{Endpoint: ep1.Label()},
			{Endpoint: ep2.Label()},
		}}

		judge := &fakeJudge{satisfiedAfter: 1}
		exec := executor.New(5*time.Second, 10*time.Millisecond, nil, judge)
		run, err := exec.Run(context.Background(), plan, server.URL, core.NewID(), endpoints, nil, "list my pets", nil)
		require.NoError(t, err)
		require.Len(t, run.Steps, 1)
		assert.True(t, run.EarlyTerminated)
		assert.NotEmpty(t, run.TerminationReason)
		assert.False(t, secondStepCalled, "second step's endpoint must never be called once the judge is satisfied")
		assert.Equal(t, 1, judge.calls)
	})
}

func TestExecutor_Run_DropsUnknownParams(t *testing.T) {
	t.Run("Should drop a param not declared on the endpoint instead of shipping it as a body field", func(t *testing.T) {
		var gotBody []byte
		var gotQuery string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			gotBody, _ = io.ReadAll(r.Body)
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		ep := &metadata.Endpoint{
			ID: core.NewID(), Method: metadata.MethodGet, Path: "/pets",
			Parameters: []metadata.RequestParameter{{Name: "limit", In: metadata.InQuery}},
		}
		endpoints := map[string]*metadata.Endpoint{ep.Label(): ep}
		plan := &planner.Plan{Steps: []planner.Step{
			{Endpoint: ep.Label(), Params: map[string]any{"limit": "10", "notDeclared": "should be dropped"}},
		}}

		exec := executor.New(5*time.Second, 10*time.Millisecond, nil, nil)
		run, err := exec.Run(context.Background(), plan, server.URL, core.NewID(), endpoints, nil, "list pets", nil)
		require.NoError(t, err)
		require.Len(t, run.Steps, 1)
		assert.Equal(t, "limit=10", gotQuery)
		assert.Empty(t, strings.TrimSpace(string(gotBody)))
	})
}

func TestExecutor_Run_OnlyAttachesBodyForMethodsThatAllowOne(t *testing.T) {
	t.Run("Should not send a body on a GET even when a param is declared with location body", func(t *testing.T) {
		var gotBody []byte
		var gotContentType string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotContentType = r.Header.Get("Content-Type")
			gotBody, _ = io.ReadAll(r.Body)
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		ep := &metadata.Endpoint{
			ID: core.NewID(), Method: metadata.MethodGet, Path: "/pets",
			Parameters: []metadata.RequestParameter{{Name: "filter", In: metadata.InBody}},
		}
		endpoints := map[string]*metadata.Endpoint{ep.Label(): ep}
		plan := &planner.Plan{Steps: []planner.Step{
			{Endpoint: ep.Label(), Params: map[string]any{"filter": "active"}},
		}}

		exec := executor.New(5*time.Second, 10*time.Millisecond, nil, nil)
		_, err := exec.Run(context.Background(), plan, server.URL, core.NewID(), endpoints, nil, "list active pets", nil)
		require.NoError(t, err)
		assert.Empty(t, strings.TrimSpace(string(gotBody)))
		assert.Empty(t, gotContentType)
	})
}

func TestExecutor_Run_URLEncodesPathParams(t *testing.T) {
	t.Run("Should URL-encode a path param value containing reserved characters", func(t *testing.T) {
		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.EscapedPath()
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		ep := &metadata.Endpoint{
			ID: core.NewID(), Method: metadata.MethodGet, Path: "/pets/{id}",
			Parameters: []metadata.RequestParameter{{Name: "id", In: metadata.InPath, Required: true}},
		}
		endpoints := map[string]*metadata.Endpoint{ep.Label(): ep}
		plan := &planner.Plan{Steps: []planner.Step{
			{Endpoint: ep.Label(), Params: map[string]any{"id": "a/b c"}},
		}}

		exec := executor.New(5*time.Second, 10*time.Millisecond, nil, nil)
		run, err := exec.Run(context.Background(), plan, server.URL, core.NewID(), endpoints, nil, "get pet a/b c", nil)
		require.NoError(t, err)
		require.Len(t, run.Steps, 1)
		assert.Equal(t, "/pets/a%2Fb%20c", gotPath)
	})
}

func TestExecutor_Run_DoesNotJudgeAfterTheLastStep(t *testing.T) {
	t.Run("Should run every step and skip the judge call after the final one", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		ep := &metadata.Endpoint{ID: core.NewID(), Method: metadata.MethodGet, Path: "/pets"}
		endpoints := map[string]*metadata.Endpoint{ep.Label(): ep}
		plan := &planner.Plan{Steps: []planner.Step{{Endpoint: ep.Label()}}}

		judge := &fakeJudge{satisfiedAfter: 99}
		exec := executor.New(5*time.Second, 10*time.Millisecond, nil, judge)
		run, err := exec.Run(context.Background(), plan, server.URL, core.NewID(), endpoints, nil, "ping", nil)
		require.NoError(t, err)
		assert.False(t, run.EarlyTerminated)
		assert.Equal(t, 0, judge.calls)
	})
}
