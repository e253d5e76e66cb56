// Package cache keeps computed dashboard summaries in redis so repeated
// previews of the same inputs skip the pipeline.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/dispatch-hub/internal/config"
	"github.com/andresuchdata/dispatch-hub/internal/domain"
)

const (
	summaryKeyPrefix = "dispatch:summary"
	scanBatchSize    = 100
)

// SummaryCache stores summaries by input fingerprint.
type SummaryCache interface {
	GetSummary(ctx context.Context, fingerprint string) (*domain.Summary, bool, error)
	SetSummary(ctx context.Context, fingerprint string, summary *domain.Summary) error
	InvalidateAll(ctx context.Context) error
}

type redisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopSummaryCache struct{}

// NewSummaryCache returns a redis-backed cache, or a no-op one when caching
// is disabled.
func NewSummaryCache(cfg config.CacheConfig) (SummaryCache, error) {
	if !cfg.Enabled {
		return &noopSummaryCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return &redisSummaryCache{client: client, ttl: ttl}, nil
}

func NewNoopSummaryCache() SummaryCache {
	return &noopSummaryCache{}
}

func (c *redisSummaryCache) GetSummary(ctx context.Context, fingerprint string) (*domain.Summary, bool, error) {
	payload, err := c.client.Get(ctx, summaryKey(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var summary domain.Summary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return nil, false, fmt.Errorf("decode summary cache: %w", err)
	}
	return &summary, true, nil
}

func (c *redisSummaryCache) SetSummary(ctx context.Context, fingerprint string, summary *domain.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary cache: %w", err)
	}
	if err := c.client.Set(ctx, summaryKey(fingerprint), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisSummaryCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, summaryKeyPrefix, scanBatchSize)
}

func (n *noopSummaryCache) GetSummary(ctx context.Context, fingerprint string) (*domain.Summary, bool, error) {
	return nil, false, nil
}

func (n *noopSummaryCache) SetSummary(ctx context.Context, fingerprint string, summary *domain.Summary) error {
	return nil
}

func (n *noopSummaryCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func summaryKey(fingerprint string) string {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return summaryKeyPrefix + ":default"
	}
	hash := sha1.Sum([]byte(fingerprint))
	return fmt.Sprintf("%s:%s", summaryKeyPrefix, hex.EncodeToString(hash[:]))
}
