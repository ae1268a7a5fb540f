// Package contextcache implements C2: the two/three-tier TTL store of past
// {query -> result} pairs and per-user history that the orchestrator
// consults before planning and writes to on success.
package contextcache

import (
	"encoding/json"
	"time"

	"github.com/nlapi/orchestra/engine/core"
)

// ResponseEntry is a single cached {query -> result} pair, scoped to one
// project and optionally one user (spec §4.2).
type ResponseEntry struct {
	ProjectID core.ID         `json:"projectId"`
	Query     string          `json:"query"`
	UserID    string          `json:"userId,omitempty"`
	Endpoint  string          `json:"endpoint,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// HistoryItem is a single turn appended to a user-or-anonymous chat history.
type HistoryItem struct {
	Query     string    `json:"query"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"createdAt"`
}

// RankedEntry pairs a ResponseEntry with the relevance score computed
// against a new query.
type RankedEntry struct {
	Entry     ResponseEntry
	Relevance int
}

const (
	responseTTL = 1 * time.Hour
	sessionTTL  = 30 * time.Minute
	historyTTL  = 24 * time.Hour

	sessionCap = 20
	historyCap = 100
	topK       = 5
)
