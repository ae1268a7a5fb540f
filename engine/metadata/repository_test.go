package metadata_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/metadata"
)

func nowUTC() time.Time { return time.Now().UTC() }

func TestRepository_GetProject(t *testing.T) {
	t.Run("Should return the project on a matching row", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := metadata.NewRepository(mockPool, nil)
		id := core.NewID()
		rows := mockPool.NewRows([]string{"id", "name", "version", "base_url", "domain", "description", "created_at"}).
			AddRow(id, "Petstore", "v1", "https://petstore.example.com", "retail", "", nowUTC())
		mockPool.ExpectQuery("SELECT (.+) FROM projects").WithArgs(id).WillReturnRows(rows)

		project, err := repo.GetProject(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "Petstore", project.Name)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should return a tagged not-found error when no row matches", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := metadata.NewRepository(mockPool, nil)
		id := core.NewID()
		mockPool.ExpectQuery("SELECT (.+) FROM projects").WithArgs(id).
			WillReturnRows(mockPool.NewRows([]string{"id", "name", "version", "base_url", "domain", "description", "created_at"}))

		_, err = repo.GetProject(context.Background(), id)
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeProjectNotFound, core.CodeOf(err))
	})
}

func TestRepository_ListEndpoints_CachesDenormalizedList(t *testing.T) {
	t.Run("Should serve the second call from cache without hitting the database", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := metadata.NewRepository(mockPool, metadata.NewEndpointCache(1<<20))
		projectID := core.NewID()
		epID := core.NewID()
		rows := mockPool.NewRows([]string{
			"id", "project_id", "method", "path", "summary", "prompt_text", "keywords", "intent_patterns", "embedding_vector",
		}).AddRow(epID, projectID, "GET", "/pets", "list pets", "", []string{"pets"}, []string{"list pets"}, []float64{})
		mockPool.ExpectQuery("SELECT (.+) FROM endpoints").WithArgs(projectID).WillReturnRows(rows)

		first, err := repo.ListEndpoints(context.Background(), projectID, false)
		require.NoError(t, err)
		require.Len(t, first, 1)

		second, err := repo.ListEndpoints(context.Background(), projectID, false)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRepository_ListProjectIDs(t *testing.T) {
	t.Run("Should return every registered project id", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := metadata.NewRepository(mockPool, nil)
		first, second := core.NewID(), core.NewID()
		rows := mockPool.NewRows([]string{"id"}).AddRow(first).AddRow(second)
		mockPool.ExpectQuery("SELECT (.+) FROM projects").WillReturnRows(rows)

		ids, err := repo.ListProjectIDs(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []core.ID{first, second}, ids)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRepository_RenameParameter_NoOpOnConflict(t *testing.T) {
	t.Run("Should leave the parameter untouched when the new name already exists", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := metadata.NewRepository(mockPool, nil)
		endpointID := core.NewID()

		mockPool.ExpectBeginTx(pgx.TxOptions{})
		oldID := core.NewID()
		mockPool.ExpectQuery("SELECT (.+) FROM request_parameters").
			WithArgs(endpointID, "petId").
			WillReturnRows(mockPool.NewRows([]string{"id", "endpoint_id", "name", "in", "type", "required", "description"}).
				AddRow(oldID, endpointID, "petId", "path", "string", true, ""))
		mockPool.ExpectQuery("SELECT (.+) FROM request_parameters").
			WithArgs(endpointID, "id").
			WillReturnRows(mockPool.NewRows([]string{"id", "endpoint_id", "name", "in", "type", "required", "description"}).
				AddRow(core.NewID(), endpointID, "id", "path", "string", true, ""))
		mockPool.ExpectQuery("SELECT (.+) FROM endpoints").
			WithArgs(endpointID).
			WillReturnRows(mockPool.NewRows([]string{"project_id"}).AddRow(core.NewID()))
		mockPool.ExpectCommit()

		err = repo.RenameParameter(context.Background(), endpointID, "petId", "id")
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
