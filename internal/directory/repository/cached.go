package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/cache"
	directorydomain "github.com/smallbiznis/invoicely/internal/directory/domain"
	"go.uber.org/zap"
)

const defaultCacheTTL = 5 * time.Minute

type cached struct {
	next  directorydomain.Directory
	cache *cache.JSONCache
	ttl   time.Duration
	log   *zap.Logger
}

// NewCached puts a read-through cache in front of next. Cache errors are
// logged and the lookup falls through to next.
func NewCached(next directorydomain.Directory, c *cache.JSONCache, ttl time.Duration, log *zap.Logger) directorydomain.Directory {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &cached{next: next, cache: c, ttl: ttl, log: log.Named("directory.cache")}
}

func (c *cached) GetClient(ctx context.Context, orgID, clientID snowflake.ID) (*directorydomain.Client, error) {
	key := fmt.Sprintf("client:%s:%s", orgID, clientID)

	var hit directorydomain.Client
	if found, err := c.cache.Get(ctx, key, &hit); err != nil {
		c.log.Warn("directory.cache.get_failed", zap.String("key", key), zap.Error(err))
	} else if found {
		return &hit, nil
	}

	client, err := c.next.GetClient(ctx, orgID, clientID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, client, c.ttl); err != nil {
		c.log.Warn("directory.cache.set_failed", zap.String("key", key), zap.Error(err))
	}
	return client, nil
}

func (c *cached) GetCatalogItem(ctx context.Context, orgID, itemID snowflake.ID) (*directorydomain.CatalogItem, error) {
	key := fmt.Sprintf("catalog_item:%s:%s", orgID, itemID)

	var hit directorydomain.CatalogItem
	if found, err := c.cache.Get(ctx, key, &hit); err != nil {
		c.log.Warn("directory.cache.get_failed", zap.String("key", key), zap.Error(err))
	} else if found {
		return &hit, nil
	}

	item, err := c.next.GetCatalogItem(ctx, orgID, itemID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, item, c.ttl); err != nil {
		c.log.Warn("directory.cache.set_failed", zap.String("key", key), zap.Error(err))
	}
	return item, nil
}
