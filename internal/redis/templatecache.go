package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/metrics"
)

// DefaultTemplateTTL is how long a template stays cached when no TTL is
// configured.
const DefaultTemplateTTL = 5 * time.Minute

// TemplateSource is the backing template lookup.
type TemplateSource interface {
	GetTemplateByCode(ctx context.Context, code string) (*db.MessageTemplate, error)
}

// TemplateCache is a read-through cache of message templates. Redis
// failures fall back to the source.
type TemplateCache struct {
	client *Client
	source TemplateSource
	ttl    time.Duration
	logger *zap.Logger
}

func NewTemplateCache(client *Client, source TemplateSource, ttl time.Duration, logger *zap.Logger) *TemplateCache {
	if ttl <= 0 {
		ttl = DefaultTemplateTTL
	}
	return &TemplateCache{
		client: client,
		source: source,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *TemplateCache) buildKey(code string) string {
	return fmt.Sprintf("template:%s", code)
}

// GetTemplateByCode returns the cached template or loads it from the
// source. A missing template is not cached.
func (c *TemplateCache) GetTemplateByCode(ctx context.Context, code string) (*db.MessageTemplate, error) {
	key := c.buildKey(code)

	val, err := c.client.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t db.MessageTemplate
		if err := json.Unmarshal(val, &t); err == nil {
			metrics.RecordTemplateCache(true)
			return &t, nil
		}
		c.logger.Warn("invalid cached template, reloading", zap.String("code", code))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("template cache read failed", zap.String("code", code), zap.Error(err))
	}
	metrics.RecordTemplateCache(false)

	t, err := c.source.GetTemplateByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	if err := c.client.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("template cache write failed", zap.String("code", code), zap.Error(err))
	}
	return t, nil
}

// Invalidate drops a cached template so the next read goes to the source.
func (c *TemplateCache) Invalidate(ctx context.Context, code string) error {
	if err := c.client.rdb.Del(ctx, c.buildKey(code)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
