package metadata

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/pkg/logger"
)

// Repository implements C1: typed lookups over the Postgres-backed metadata
// catalog with a denormalized per-project endpoint cache, grounded on the
// teacher's engine/auth/infra/postgres/repository.go squirrel+pgxscan style.
type Repository struct {
	db    DBInterface
	cache *endpointCache
}

// NewRepository wires a Repository against db and cache; a nil cache is
// replaced by one sized to defaultCacheMaxCost.
func NewRepository(db DBInterface, cache *endpointCache) *Repository {
	if cache == nil {
		cache = newEndpointCache(defaultCacheMaxCost)
	}
	return &Repository{db: db, cache: cache}
}

var sq = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// GetProject resolves project metadata by ID.
func (r *Repository) GetProject(ctx context.Context, id core.ID) (*Project, error) {
	query, args, err := sq.Select("id", "name", "version", "base_url", "domain", "description", "created_at").
		From("projects").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building project query: %w", err)
	}
	var p Project
	if err := pgxscan.Get(ctx, r.db, &p, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, core.NewError(err, core.ErrCodeProjectNotFound, "project not found",
				map[string]any{"projectId": id})
		}
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	return &p, nil
}

// ListProjectIDs returns every registered project's ID, used by the
// context cache sweeper to know which response tiers to prune.
func (r *Repository) ListProjectIDs(ctx context.Context) ([]core.ID, error) {
	query, args, err := sq.Select("id").From("projects").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building project id query: %w", err)
	}
	var ids []core.ID
	if err := pgxscan.Select(ctx, r.db, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("scanning project ids: %w", err)
	}
	return ids, nil
}

// ListEndpoints returns the denormalized endpoint list for a project,
// optionally eager-loading parameters and response fields (field-links are
// loaded separately by ListFieldLinks). Only the list without details is
// cached: it is served from the in-memory cache when present, and writes to
// the project invalidate the cache entry (spec §4.1). A withDetails call
// always reads from the database.
func (r *Repository) ListEndpoints(ctx context.Context, projectID core.ID, withDetails bool) ([]*Endpoint, error) {
	if !withDetails {
		if cached, ok := r.cache.get(projectID); ok {
			return cached, nil
		}
	}
	log := logger.FromContext(ctx)

	query, args, err := sq.Select(
		"id", "project_id", "method", "path", "summary", "prompt_text", "keywords",
		"intent_patterns", "embedding_vector",
	).From("endpoints").Where(squirrel.Eq{"project_id": projectID}).OrderBy("method", "path").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building endpoint query: %w", err)
	}
	var endpoints []*Endpoint
	if err := pgxscan.Select(ctx, r.db, &endpoints, query, args...); err != nil {
		return nil, fmt.Errorf("scanning endpoints: %w", err)
	}

	if withDetails {
		if err := r.attachDetails(ctx, endpoints); err != nil {
			return nil, err
		}
	} else {
		r.cache.set(projectID, endpoints)
	}
	log.Debug("listed endpoints", "projectId", projectID, "count", len(endpoints), "withDetails", withDetails)
	return endpoints, nil
}

func (r *Repository) attachDetails(ctx context.Context, endpoints []*Endpoint) error {
	for _, ep := range endpoints {
		params, err := r.listParameters(ctx, ep.ID)
		if err != nil {
			return err
		}
		ep.Parameters = params

		fields, err := r.listResponseFields(ctx, ep.ID)
		if err != nil {
			return err
		}
		ep.ResponseFields = fields
	}
	return nil
}

func (r *Repository) listParameters(ctx context.Context, endpointID core.ID) ([]RequestParameter, error) {
	query, args, err := sq.Select("id", "endpoint_id", "name", "in", "type", "required", "description").
		From("request_parameters").Where(squirrel.Eq{"endpoint_id": endpointID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building parameter query: %w", err)
	}
	var params []RequestParameter
	if err := pgxscan.Select(ctx, r.db, &params, query, args...); err != nil {
		return nil, fmt.Errorf("scanning parameters: %w", err)
	}
	return params, nil
}

func (r *Repository) listResponseFields(ctx context.Context, endpointID core.ID) ([]ResponseField, error) {
	query, args, err := sq.Select("id", "endpoint_id", "json_path", "type", "description").
		From("response_fields").Where(squirrel.Eq{"endpoint_id": endpointID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building response field query: %w", err)
	}
	var fields []ResponseField
	if err := pgxscan.Select(ctx, r.db, &fields, query, args...); err != nil {
		return nil, fmt.Errorf("scanning response fields: %w", err)
	}
	return fields, nil
}

// ListFieldLinks returns the field-links for every endpoint of a project,
// eager-loading the source field and target endpoint labels used by the
// planner's prompt hints (spec §4.5 step 3).
func (r *Repository) ListFieldLinks(ctx context.Context, projectID core.ID) ([]*FieldLink, error) {
	query, args, err := sq.Select(
		"fl.id", "fl.from_field_id", "fl.to_endpoint_id", "fl.to_param_name",
		"fl.relation_type", "fl.description",
		"rf.json_path", "rf.endpoint_id",
		"te.method", "te.path",
	).From("field_links fl").
		Join("response_fields rf ON rf.id = fl.from_field_id").
		Join("endpoints fe ON fe.id = rf.endpoint_id").
		Join("endpoints te ON te.id = fl.to_endpoint_id").
		Where(squirrel.Eq{"fe.project_id": projectID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building field link query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying field links: %w", err)
	}
	defer rows.Close()

	var links []*FieldLink
	for rows.Next() {
		var (
			link                  FieldLink
			fromJSONPath          string
			fromEndpointID        core.ID
			toMethod, toPath      string
		)
		if err := rows.Scan(
			&link.ID, &link.FromFieldID, &link.ToEndpointID, &link.ToParamName,
			&link.RelationType, &link.Description,
			&fromJSONPath, &fromEndpointID,
			&toMethod, &toPath,
		); err != nil {
			return nil, fmt.Errorf("scanning field link: %w", err)
		}
		link.FromField = &ResponseField{ID: link.FromFieldID, EndpointID: fromEndpointID, JSONPath: fromJSONPath}
		link.ToEndpoint = &Endpoint{ID: link.ToEndpointID, Method: HTTPMethod(toMethod), Path: toPath}
		links = append(links, &link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating field links: %w", err)
	}
	return links, nil
}

// FindEndpoint looks up a single endpoint by its immutable key
// (projectId, method, path). Method matching is case-insensitive, path is
// case-sensitive (spec §4.1).
func (r *Repository) FindEndpoint(ctx context.Context, projectID core.ID, method, path string) (*Endpoint, error) {
	query, args, err := sq.Select(
		"id", "project_id", "method", "path", "summary", "prompt_text", "keywords",
		"intent_patterns", "embedding_vector",
	).From("endpoints").
		Where(squirrel.Eq{"project_id": projectID, "method": NormalizeMethod(method), "path": path}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building endpoint lookup: %w", err)
	}
	var ep Endpoint
	if err := pgxscan.Get(ctx, r.db, &ep, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, core.NewError(err, core.ErrCodeEndpointNotFound, "endpoint not found",
				map[string]any{"method": method, "path": path})
		}
		return nil, fmt.Errorf("scanning endpoint: %w", err)
	}
	return &ep, nil
}

// UpsertParameter inserts or updates a RequestParameter keyed on
// (endpointId, name), satisfying §4.8's idempotent missing-parameter delta
// and property P6.
func (r *Repository) UpsertParameter(ctx context.Context, endpointID core.ID, p RequestParameter) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		existing, err := r.findParameterTx(ctx, tx, endpointID, p.Name)
		if err != nil {
			return err
		}
		if existing == nil {
			query, args, err := sq.Insert("request_parameters").
				Columns("id", "endpoint_id", "name", "in", "type", "required", "description").
				Values(core.NewID(), endpointID, p.Name, p.In, p.Type, p.Required, p.Description).
				ToSql()
			if err != nil {
				return fmt.Errorf("building parameter insert: %w", err)
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("inserting parameter: %w", err)
			}
			return nil
		}
		query, args, err := sq.Update("request_parameters").
			Set("required", p.Required).
			Set("type", p.Type).
			Set("in", p.In).
			Set("description", p.Description).
			Where(squirrel.Eq{"id": existing.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("building parameter update: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("updating parameter: %w", err)
		}
		return nil
	}, endpointID)
}

// RenameParameter renames oldName to newName on endpointID, a no-op if
// oldName is absent or newName already exists (spec §4.8 / property P6).
func (r *Repository) RenameParameter(ctx context.Context, endpointID core.ID, oldName, newName string) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		oldParam, err := r.findParameterTx(ctx, tx, endpointID, oldName)
		if err != nil {
			return err
		}
		if oldParam == nil {
			return nil
		}
		newParam, err := r.findParameterTx(ctx, tx, endpointID, newName)
		if err != nil {
			return err
		}
		if newParam != nil {
			return nil
		}
		query, args, err := sq.Update("request_parameters").
			Set("name", newName).
			Where(squirrel.Eq{"id": oldParam.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("building parameter rename: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("renaming parameter: %w", err)
		}
		return nil
	}, endpointID)
}

// UpsertResponseMessage inserts a ResponseMessage for (endpointId, status)
// only if one doesn't already exist (spec §4.8).
func (r *Repository) UpsertResponseMessage(ctx context.Context, endpointID core.ID, msg ResponseMessage) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		query, args, err := sq.Select("id").From("response_messages").
			Where(squirrel.Eq{"endpoint_id": endpointID, "status_code": msg.StatusCode}).ToSql()
		if err != nil {
			return fmt.Errorf("building response message lookup: %w", err)
		}
		var existingID core.ID
		err = pgxscan.Get(ctx, tx, &existingID, query, args...)
		if err == nil {
			return nil
		}
		if !pgxscan.NotFound(err) {
			return fmt.Errorf("checking response message: %w", err)
		}
		insQuery, insArgs, err := sq.Insert("response_messages").
			Columns("id", "endpoint_id", "status_code", "message", "suggestion").
			Values(core.NewID(), endpointID, msg.StatusCode, msg.Message, msg.Suggestion).
			ToSql()
		if err != nil {
			return fmt.Errorf("building response message insert: %w", err)
		}
		if _, err := tx.Exec(ctx, insQuery, insArgs...); err != nil {
			return fmt.Errorf("inserting response message: %w", err)
		}
		return nil
	}, endpointID)
}

// FindResponseMessage resolves the user-facing text for an endpoint/status
// following the fallback order of spec §7: endpoint-specific, then
// project-wide (endpointID == zero value is treated as project-wide),
// then the generic table.
func (r *Repository) FindResponseMessage(ctx context.Context, projectID, endpointID core.ID, status int) (*ResponseMessage, bool) {
	query, args, err := sq.Select("rm.id", "rm.endpoint_id", "rm.status_code", "rm.message", "rm.suggestion").
		From("response_messages rm").
		Where(squirrel.Eq{"rm.endpoint_id": endpointID, "rm.status_code": status}).ToSql()
	if err == nil {
		var m ResponseMessage
		if err := pgxscan.Get(ctx, r.db, &m, query, args...); err == nil {
			return &m, true
		}
	}
	pquery, pargs, err := sq.Select("rm.id", "rm.endpoint_id", "rm.status_code", "rm.message", "rm.suggestion").
		From("response_messages rm").
		Join("endpoints e ON e.id = rm.endpoint_id").
		Where(squirrel.Eq{"e.project_id": projectID, "rm.status_code": status}).
		Limit(1).ToSql()
	if err == nil {
		var m ResponseMessage
		if err := pgxscan.Get(ctx, r.db, &m, pquery, pargs...); err == nil {
			return &m, true
		}
	}
	if text, ok := GenericStatusMessages[status]; ok {
		return &ResponseMessage{StatusCode: status, Message: text}, true
	}
	return nil, false
}

// Invalidate drops the cached denormalized endpoint list for a project.
func (r *Repository) Invalidate(projectID core.ID) {
	r.cache.invalidate(projectID)
}

func (r *Repository) findParameterTx(ctx context.Context, tx pgx.Tx, endpointID core.ID, name string) (*RequestParameter, error) {
	query, args, err := sq.Select("id", "endpoint_id", "name", "in", "type", "required", "description").
		From("request_parameters").
		Where(squirrel.Eq{"endpoint_id": endpointID, "name": name}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building parameter lookup: %w", err)
	}
	var p RequestParameter
	if err := pgxscan.Get(ctx, tx, &p, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning parameter: %w", err)
	}
	return &p, nil
}

// withTx runs fn inside a transaction and invalidates the endpoint cache for
// the project owning endpointID on successful commit (writes are
// transactional per update, spec §4.1). The project lookup happens on the
// same transaction as fn so a write costs at most one extra round trip.
func (r *Repository) withTx(ctx context.Context, fn func(tx pgx.Tx) error, endpointID core.ID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	projectID, err := r.resolveProjectIDTx(ctx, tx, endpointID)
	if err != nil {
		logger.FromContext(ctx).Warn("could not resolve project for cache invalidation", "endpointId", endpointID, "err", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true
	if !projectID.IsZero() {
		r.cache.invalidate(projectID)
	}
	return nil
}

func (r *Repository) resolveProjectIDTx(ctx context.Context, tx pgx.Tx, endpointID core.ID) (core.ID, error) {
	query, args, err := sq.Select("project_id").From("endpoints").Where(squirrel.Eq{"id": endpointID}).ToSql()
	if err != nil {
		return "", err
	}
	var projectID core.ID
	if err := pgxscan.Get(ctx, tx, &projectID, query, args...); err != nil {
		return "", err
	}
	return projectID, nil
}
