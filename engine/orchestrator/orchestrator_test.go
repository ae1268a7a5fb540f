package orchestrator_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlapi/orchestra/engine/contextcache"
	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/executor"
	"github.com/nlapi/orchestra/engine/formatter"
	"github.com/nlapi/orchestra/engine/healer"
	"github.com/nlapi/orchestra/engine/judge"
	"github.com/nlapi/orchestra/engine/llmgateway"
	"github.com/nlapi/orchestra/engine/metadata"
	"github.com/nlapi/orchestra/engine/orchestrator"
	plannerpkg "github.com/nlapi/orchestra/engine/planner"
)

type fakeMetadataRepo struct {
	project   *metadata.Project
	endpoints []*metadata.Endpoint
	links     []*metadata.FieldLink
}

func (f *fakeMetadataRepo) GetProject(_ context.Context, _ core.ID) (*metadata.Project, error) {
	return f.project, nil
}
func (f *fakeMetadataRepo) ListEndpoints(_ context.Context, _ core.ID, _ bool) ([]*metadata.Endpoint, error) {
	return f.endpoints, nil
}
func (f *fakeMetadataRepo) ListFieldLinks(_ context.Context, _ core.ID) ([]*metadata.FieldLink, error) {
	return f.links, nil
}

type fakeContextStore struct {
	stored []contextcache.ResponseEntry
}

func (f *fakeContextStore) FindRelevantContext(_ context.Context, _ core.ID, _ string, _ string) ([]contextcache.RankedEntry, error) {
	return nil, nil
}
func (f *fakeContextStore) StoreResult(_ context.Context, entry contextcache.ResponseEntry) error {
	f.stored = append(f.stored, entry)
	return nil
}
func (f *fakeContextStore) AppendHistory(_ context.Context, _ string, _ contextcache.HistoryItem) error {
	return nil
}

type fakeChatGateway struct {
	planJSON string
	judgeYes bool
}

func (f *fakeChatGateway) ChatJSON(_ context.Context, _ llmgateway.ChatRequest) (string, error) {
	return f.planJSON, nil
}
func (f *fakeChatGateway) Chat(_ context.Context, _ llmgateway.ChatRequest) (*llmgateway.ChatResponse, error) {
	if f.judgeYes {
		return &llmgateway.ChatResponse{Content: "YES"}, nil
	}
	return &llmgateway.ChatResponse{Content: "NO"}, nil
}

func TestOrchestrator_Process_HappyPath(t *testing.T) {
	t.Run("Should execute a single-step plan and report satisfied", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"items":[]}`))
		}))
		defer server.Close()

		projectID := core.NewID()
		ep := &metadata.Endpoint{ID: core.NewID(), ProjectID: projectID, Method: metadata.MethodGet, Path: "/pets", Keywords: []string{"pets"}}
		project := &metadata.Project{ID: projectID, BaseURL: server.URL}

		gw := &fakeChatGateway{
			planJSON: `{"steps":[{"endpoint":"GET /pets","params":{}}]}`,
			judgeYes: true,
		}

		repo := &fakeMetadataRepo{project: project, endpoints: []*metadata.Endpoint{ep}}
		store := &fakeContextStore{}

		orch := orchestrator.New(orchestrator.Config{
			MetadataRepo: repo,
			ContextStore: store,
			Planner:      plannerpkg.New(gw),
			Executor:     executor.New(5*time.Second, 10*time.Millisecond, nil, judge.New(gw)),
			Healer:       healer.New(gw, nil),
			Formatter:    formatter.New(gw),
			MaxRetries:   2,
		})

		resp, err := orch.Process(context.Background(), orchestrator.ChatRequest{
			ProjectID: projectID, Utterance: "list my pets", UserID: "user-1",
		})
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		require.Len(t, resp.Results, 1)
		assert.True(t, resp.Results[0].Succeeded())
		assert.Len(t, store.stored, 1)
	})
}

func TestOrchestrator_Process_StreamsStageTransitions(t *testing.T) {
	t.Run("Should emit at least the core lifecycle stages", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		projectID := core.NewID()
		ep := &metadata.Endpoint{ID: core.NewID(), ProjectID: projectID, Method: metadata.MethodGet, Path: "/ping"}
		project := &metadata.Project{ID: projectID, BaseURL: server.URL}
		gw := &fakeChatGateway{
			planJSON: `{"steps":[{"endpoint":"GET /ping","params":{}}]}`,
			judgeYes: true,
		}
		repo := &fakeMetadataRepo{project: project, endpoints: []*metadata.Endpoint{ep}}

		orch := orchestrator.New(orchestrator.Config{
			MetadataRepo: repo,
			ContextStore: &fakeContextStore{},
			Planner:      plannerpkg.New(gw),
			Executor:     executor.New(5*time.Second, 10*time.Millisecond, nil, judge.New(gw)),
			Healer:       healer.New(gw, nil),
		})

		updates := make(chan orchestrator.ChatStreamUpdate, 32)
		err := orch.ProcessStream(context.Background(), orchestrator.ChatRequest{ProjectID: projectID, Utterance: "ping it"}, updates)
		close(updates)
		require.NoError(t, err)

		var stages []orchestrator.Stage
		var types []orchestrator.UpdateType
		for u := range updates {
			stages = append(stages, u.Stage)
			types = append(types, u.Type)
			assert.NotEmpty(t, u.Timestamp)
		}
		assert.Contains(t, stages, orchestrator.StageInit)
		assert.Contains(t, stages, orchestrator.StagePlanning)
		assert.Contains(t, stages, orchestrator.StageExecuting)
		assert.Contains(t, stages, orchestrator.StageDone)

		assert.Contains(t, types, orchestrator.UpdateTypePlanning)
		assert.Contains(t, types, orchestrator.UpdateTypeExecuting)
		assert.Contains(t, types, orchestrator.UpdateTypeStepCompleted)
		assert.Contains(t, types, orchestrator.UpdateTypeFormatting)
		assert.Contains(t, types, orchestrator.UpdateTypeCompleted)
	})
}
