package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/autoresearch/orchestrator-core/core"
	"github.com/autoresearch/orchestrator-core/querystate"
)

// RedisCacheMirror is an optional write-through mirror for the hybrid
// retrieval merger's cache (§4.7): a local miss falls back to Redis
// before paying for a fresh backend fan-out, and every freshly computed
// result is written through so other orchestrator-core processes sharing
// the same Redis instance observe it too. Grounded on the pack's
// pkg/discovery/redis.go (redis.ParseURL + redis.NewClient at
// construction, a connectivity check before the client is handed back).
type RedisCacheMirror struct {
	client *redis.Client
	ttl    time.Duration
	logger core.Logger
}

// NewRedisCacheMirror parses redisURL, confirms connectivity with a
// single Ping, and returns a mirror ready for retrieval.NewCacheWithMirror.
// An explicitly-configured mirror that can't connect is a configuration
// error returned to the caller, not a silent runtime degradation — unlike
// a Get/Set call against an already-connected client, which degrades.
func NewRedisCacheMirror(redisURL string, ttl time.Duration, logger core.Logger) (*RedisCacheMirror, error) {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid redis cache mirror url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("storage: redis cache mirror unreachable: %w", err)
	}

	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCacheMirror{client: client, ttl: ttl, logger: logger}, nil
}

// Get returns the mirrored documents for key, degrading to (nil, false)
// on any Redis error or decode failure — a mirror miss or outage must
// never fail a retrieval call, only cost it a cache hit.
func (m *RedisCacheMirror) Get(ctx context.Context, key string) ([]querystate.RetrievalDocument, bool) {
	raw, err := m.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var docs []querystate.RetrievalDocument
	if err := json.Unmarshal(raw, &docs); err != nil {
		m.logger.Warn("storage: redis cache mirror returned a malformed payload", map[string]interface{}{
			"key": key, "error": err.Error(),
		})
		return nil, false
	}
	return docs, true
}

// Set writes docs to the mirror under key. A write failure is logged,
// not returned — the in-memory cache the mirror backs stays authoritative
// for the process that computed docs.
func (m *RedisCacheMirror) Set(ctx context.Context, key string, docs []querystate.RetrievalDocument) {
	raw, err := json.Marshal(docs)
	if err != nil {
		m.logger.Warn("storage: failed to marshal documents for the redis cache mirror", map[string]interface{}{
			"key": key, "error": err.Error(),
		})
		return
	}
	if err := m.client.Set(ctx, key, raw, m.ttl).Err(); err != nil {
		m.logger.Warn("storage: redis cache mirror write failed", map[string]interface{}{
			"key": key, "error": err.Error(),
		})
	}
}

// Close releases the mirror's Redis connection.
func (m *RedisCacheMirror) Close() error {
	return m.client.Close()
}
