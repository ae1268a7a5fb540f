package healer

import (
	"context"

	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/metadata"
	"github.com/nlapi/orchestra/pkg/logger"
)

// Repository is the narrow surface ApplyDeltas needs from C1.
type Repository interface {
	FindEndpoint(ctx context.Context, projectID core.ID, method, path string) (*metadata.Endpoint, error)
	UpsertParameter(ctx context.Context, endpointID core.ID, p metadata.RequestParameter) error
	RenameParameter(ctx context.Context, endpointID core.ID, oldName, newName string) error
	UpsertResponseMessage(ctx context.Context, endpointID core.ID, msg metadata.ResponseMessage) error
}

// ApplyDeltas applies every delta in deltas against projectID's metadata.
// A failure to resolve an endpoint or apply one delta is logged and
// skipped, never returned: a bad heal should not prevent the orchestrator
// from retrying the plan with whatever metadata it already has (spec
// §4.8's "heal failures are non-fatal").
func ApplyDeltas(ctx context.Context, repo Repository, projectID core.ID, deltas *MetadataDeltas) {
	if deltas == nil {
		return
	}
	log := logger.FromContext(ctx)

	for _, mp := range deltas.MissingParameters {
		ep, err := repo.FindEndpoint(ctx, projectID, mp.Method, mp.EndpointPath)
		if err != nil {
			log.Warn("skipping missing-parameter heal, endpoint not found", "endpoint", mp.Method+" "+mp.EndpointPath, "err", err)
			continue
		}
		loc := metadata.ParamLocation(mp.Location)
		if loc == "" {
			loc = metadata.InQuery
		}
		if err := repo.UpsertParameter(ctx, ep.ID, metadata.RequestParameter{
			Name: mp.ParameterName, In: loc, Type: mp.ParameterType, Required: mp.IsRequired,
		}); err != nil {
			log.Warn("failed to apply missing-parameter heal", "endpoint", ep.Label(), "param", mp.ParameterName, "err", err)
		}
	}

	for _, pc := range deltas.ParameterCorrections {
		ep, err := repo.FindEndpoint(ctx, projectID, pc.Method, pc.EndpointPath)
		if err != nil {
			log.Warn("skipping parameter-correction heal, endpoint not found", "endpoint", pc.Method+" "+pc.EndpointPath, "err", err)
			continue
		}
		if err := repo.RenameParameter(ctx, ep.ID, pc.OldParameterName, pc.NewParameterName); err != nil {
			log.Warn("failed to apply parameter-correction heal", "endpoint", ep.Label(), "err", err)
		}
	}

	for _, em := range deltas.ErrorMessages {
		ep, err := repo.FindEndpoint(ctx, projectID, em.Method, em.EndpointPath)
		if err != nil {
			log.Warn("skipping error-message heal, endpoint not found", "endpoint", em.Method+" "+em.EndpointPath, "err", err)
			continue
		}
		if err := repo.UpsertResponseMessage(ctx, ep.ID, metadata.ResponseMessage{
			StatusCode: em.StatusCode, Message: em.Message, Suggestion: em.Suggestion,
		}); err != nil {
			log.Warn("failed to apply error-message heal", "endpoint", ep.Label(), "err", err)
		}
	}
}
