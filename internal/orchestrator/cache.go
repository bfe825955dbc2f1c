package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/odd-ai/reviewers/internal/domain"
)

// CacheSchemaVersion is embedded in every cache key so a format change to
// AgentResult invalidates old entries rather than crashing on them.
const CacheSchemaVersion = 1

// Cache is the agent-result cache the orchestrator consults before running
// an agent and populates after a Success. Implementations (e.g. a sqlite
// store) must treat a value that fails schema validation as a miss, never
// as an error — stale or pre-migration rows must not crash a run.
type Cache interface {
	Get(ctx context.Context, key string) (domain.AgentResult, bool, error)
	Put(ctx context.Context, key string, result domain.AgentResult) error
}

// CacheKey computes the orchestrator's cache key: a hash of the PR number,
// head SHA, config hash, agent ID, and cache schema version, so a config
// change or schema bump naturally invalidates prior entries.
func CacheKey(prNumber int, headSHA, configHash, agentID string) string {
	payload := fmt.Sprintf("%d:%s:%s:%s:%d", prNumber, headSHA, configHash, agentID, CacheSchemaVersion)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// NoopCache is a Cache that never hits, suitable for runs with caching
// disabled or for tests that don't exercise caching behavior.
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, key string) (domain.AgentResult, bool, error) {
	return domain.AgentResult{}, false, nil
}

func (NoopCache) Put(ctx context.Context, key string, result domain.AgentResult) error {
	return nil
}
