package healer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/healer"
	"github.com/nlapi/orchestra/engine/metadata"
)

type fakeRepo struct {
	endpoint *metadata.Endpoint

	renamedFrom, renamedTo string
	upsertedParam          *metadata.RequestParameter
	upsertedMessage        *metadata.ResponseMessage
	err                    error
}

func (f *fakeRepo) FindEndpoint(_ context.Context, _ core.ID, _, _ string) (*metadata.Endpoint, error) {
	if f.endpoint == nil {
		return nil, core.NewError(nil, core.ErrCodeEndpointNotFound, "endpoint not found", nil)
	}
	return f.endpoint, nil
}

func (f *fakeRepo) UpsertParameter(_ context.Context, _ core.ID, p metadata.RequestParameter) error {
	f.upsertedParam = &p
	return f.err
}

func (f *fakeRepo) RenameParameter(_ context.Context, _ core.ID, oldName, newName string) error {
	f.renamedFrom, f.renamedTo = oldName, newName
	return f.err
}

func (f *fakeRepo) UpsertResponseMessage(_ context.Context, _ core.ID, msg metadata.ResponseMessage) error {
	f.upsertedMessage = &msg
	return f.err
}

func TestApplyDeltas_MissingParameter(t *testing.T) {
	t.Run("Should upsert a newly discovered parameter against the endpoint it belongs to", func(t *testing.T) {
		ep := &metadata.Endpoint{ID: core.NewID(), Method: metadata.MethodPost, Path: "/pet"}
		repo := &fakeRepo{endpoint: ep}

		healer.ApplyDeltas(context.Background(), repo, core.NewID(), &healer.MetadataDeltas{
			MissingParameters: []healer.MissingParameter{
				{EndpointPath: "/pet", Method: "POST", ParameterName: "photoUrls", ParameterType: "array", IsRequired: true, Location: "body"},
			},
		})

		require.NotNil(t, repo.upsertedParam)
		assert.Equal(t, "photoUrls", repo.upsertedParam.Name)
		assert.True(t, repo.upsertedParam.Required)
		assert.Equal(t, metadata.InBody, repo.upsertedParam.In)
	})

	t.Run("Should default an unspecified location to query", func(t *testing.T) {
		ep := &metadata.Endpoint{ID: core.NewID(), Method: metadata.MethodGet, Path: "/pets"}
		repo := &fakeRepo{endpoint: ep}

		healer.ApplyDeltas(context.Background(), repo, core.NewID(), &healer.MetadataDeltas{
			MissingParameters: []healer.MissingParameter{
				{EndpointPath: "/pets", Method: "GET", ParameterName: "limit", ParameterType: "integer"},
			},
		})

		require.NotNil(t, repo.upsertedParam)
		assert.Equal(t, metadata.InQuery, repo.upsertedParam.In)
	})
}

func TestApplyDeltas_ParameterCorrection(t *testing.T) {
	t.Run("Should rename the parameter via the repository", func(t *testing.T) {
		ep := &metadata.Endpoint{ID: core.NewID(), Method: metadata.MethodGet, Path: "/pets/{petId}"}
		repo := &fakeRepo{endpoint: ep}

		healer.ApplyDeltas(context.Background(), repo, core.NewID(), &healer.MetadataDeltas{
			ParameterCorrections: []healer.ParameterCorrection{
				{EndpointPath: "/pets/{petId}", Method: "GET", OldParameterName: "petId", NewParameterName: "id"},
			},
		})

		assert.Equal(t, "petId", repo.renamedFrom)
		assert.Equal(t, "id", repo.renamedTo)
	})
}

func TestApplyDeltas_ErrorMessage(t *testing.T) {
	t.Run("Should upsert a response message", func(t *testing.T) {
		ep := &metadata.Endpoint{ID: core.NewID(), Method: metadata.MethodGet, Path: "/pets/{petId}"}
		repo := &fakeRepo{endpoint: ep}

		healer.ApplyDeltas(context.Background(), repo, core.NewID(), &healer.MetadataDeltas{
			ErrorMessages: []healer.ErrorMessageDelta{
				{EndpointPath: "/pets/{petId}", Method: "GET", StatusCode: 404, Message: "not found", Suggestion: "check the id"},
			},
		})

		require.NotNil(t, repo.upsertedMessage)
		assert.Equal(t, 404, repo.upsertedMessage.StatusCode)
	})
}

func TestApplyDeltas_SkipsUnresolvableEndpoint(t *testing.T) {
	t.Run("Should skip a delta whose endpoint cannot be found instead of failing", func(t *testing.T) {
		repo := &fakeRepo{endpoint: nil}

		assert.NotPanics(t, func() {
			healer.ApplyDeltas(context.Background(), repo, core.NewID(), &healer.MetadataDeltas{
				MissingParameters: []healer.MissingParameter{
					{EndpointPath: "/unknown", Method: "GET", ParameterName: "x"},
				},
			})
		})
		assert.Nil(t, repo.upsertedParam)
	})
}

func TestApplyDeltas_NilIsANoOp(t *testing.T) {
	t.Run("Should do nothing when deltas is nil", func(t *testing.T) {
		repo := &fakeRepo{}
		healer.ApplyDeltas(context.Background(), repo, core.NewID(), nil)
		assert.Nil(t, repo.upsertedParam)
		assert.Nil(t, repo.upsertedMessage)
		assert.Empty(t, repo.renamedFrom)
	})
}
