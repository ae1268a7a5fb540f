package contextcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/pkg/logger"
)

// Store backs the three TTL tiers with Redis lists, grounded on the
// teacher's engine/infra/cache/redis.go RedisInterface-over-go-redis style.
// Each tier is a per-key list; expiry is enforced both by a Redis TTL on the
// key (reset on every push, matching "TTL 1h/30m/24h" semantics for an
// actively-used key) and by filtering stale items at read time so a key that
// stops being touched doesn't serve data past its tier's TTL before Redis
// reaps it.
type Store struct {
	client redis.UniversalClient
}

// NewStore wraps an existing redis client. The caller owns the client's
// lifecycle (creation/Close), matching spec §9's "no hidden singletons".
func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func responseKey(projectID core.ID) string { return fmt.Sprintf("ctxcache:resp:%s", projectID) }
func sessionKey(userID string) string      { return fmt.Sprintf("ctxcache:session:%s", userID) }
func historyKey(userID string) string      { return fmt.Sprintf("ctxcache:history:%s", userID) }

// StoreResult appends a successful {query -> result} pair to the project's
// response tier and, when a userID is present, to its session list; it also
// appends a HistoryItem to the user-or-anonymous chat history (spec §9:
// "A successful response stores {query, result} into C2 and appends to
// history").
func (s *Store) StoreResult(ctx context.Context, entry ResponseEntry) error {
	entry.CreatedAt = timeNow()
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling response entry: %w", err)
	}
	key := responseKey(entry.ProjectID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, responseTTL)
	if entry.UserID != "" {
		sk := sessionKey(entry.UserID)
		pipe.RPush(ctx, sk, payload)
		pipe.LTrim(ctx, sk, -sessionCap, -1)
		pipe.Expire(ctx, sk, sessionTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing response entry: %w", err)
	}
	return s.appendHistory(ctx, entry.UserID, HistoryItem{Query: entry.Query, Success: true, CreatedAt: entry.CreatedAt})
}

// AppendHistory records a turn (success or failure) for a user, or for the
// "anonymous" bucket when userID is empty.
func (s *Store) AppendHistory(ctx context.Context, userID string, item HistoryItem) error {
	item.CreatedAt = timeNow()
	return s.appendHistory(ctx, userID, item)
}

func (s *Store) appendHistory(ctx context.Context, userID string, item HistoryItem) error {
	bucket := userID
	if bucket == "" {
		bucket = "anonymous"
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshaling history item: %w", err)
	}
	hk := historyKey(bucket)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, hk, payload)
	pipe.LTrim(ctx, hk, -historyCap, -1)
	pipe.Expire(ctx, hk, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing history item: %w", err)
	}
	return nil
}

// FindRelevantContext returns the top-5 cached response entries for
// projectID ranked by (relevance desc, recency desc), never returning
// entries from another project (property P5: the key itself scopes the
// read). Expired entries (older than the 1h response TTL) are skipped.
func (s *Store) FindRelevantContext(ctx context.Context, projectID core.ID, query string, userID string) ([]RankedEntry, error) {
	raw, err := s.client.LRange(ctx, responseKey(projectID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("reading response tier: %w", err)
	}
	cutoff := timeNow().Add(-responseTTL)
	ranked := make([]RankedEntry, 0, len(raw))
	for _, item := range raw {
		var entry ResponseEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			logger.FromContext(ctx).Warn("dropping malformed context cache entry", "err", err)
			continue
		}
		if entry.CreatedAt.Before(cutoff) {
			continue
		}
		ranked = append(ranked, RankedEntry{Entry: entry, Relevance: relevanceScore(query, entry.Query)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		return ranked[i].Entry.CreatedAt.After(ranked[j].Entry.CreatedAt)
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

// PruneExpired removes response-tier items older than responseTTL for each
// of projectIDs. Session and history lists are not pruned here; only their
// Redis key TTLs expire them. Invoked by the cron sweep in sweep.go;
// exposed so tests can drive it deterministically.
func (s *Store) PruneExpired(ctx context.Context, projectIDs []core.ID) {
	now := timeNow()
	for _, pid := range projectIDs {
		s.pruneList(ctx, responseKey(pid), now.Add(-responseTTL))
	}
}

func (s *Store) pruneList(ctx context.Context, key string, cutoff time.Time) {
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return
	}
	for _, item := range raw {
		var entry ResponseEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			_ = s.client.LRem(ctx, key, 1, item).Err()
			continue
		}
		if entry.CreatedAt.Before(cutoff) {
			_ = s.client.LRem(ctx, key, 1, item).Err()
		}
	}
}

// timeNow is a seam for deterministic tests.
var timeNow = time.Now
