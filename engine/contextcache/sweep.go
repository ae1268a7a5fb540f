package contextcache

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/pkg/logger"
)

// Sweeper periodically evicts response-tier entries older than responseTTL
// for a known set of projects. Redis's own key TTL reclaims an idle key
// eventually, but an actively-used key (pushed to within the last hour) can
// still carry stale individual list elements; the sweep trims those so
// FindRelevantContext never has to filter a large backlog at read time.
type Sweeper struct {
	store      *Store
	projectIDs func(ctx context.Context) ([]core.ID, error)
	cron       *cron.Cron
}

// NewSweeper builds a sweeper that calls projectIDs to discover which
// projects have a response tier worth pruning. schedule is a standard cron
// expression (e.g. "@every 10m").
func NewSweeper(store *Store, projectIDs func(ctx context.Context) ([]core.ID, error), schedule string) (*Sweeper, error) {
	s := &Sweeper{store: store, projectIDs: projectIDs, cron: cron.New()}
	if _, err := s.cron.AddFunc(schedule, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the sweep schedule. Stop must be called to release the
// underlying goroutine.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop blocks until the currently running sweep (if any) finishes.
func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }

func (s *Sweeper) runOnce() {
	ctx := context.Background()
	log := logger.FromContext(ctx).With("component", "contextcache.sweeper")
	ids, err := s.projectIDs(ctx)
	if err != nil {
		log.Warn("could not list projects for context cache sweep", "err", err)
		return
	}
	s.store.PruneExpired(ctx, ids)
	log.Debug("context cache sweep complete", "projects", len(ids))
}
