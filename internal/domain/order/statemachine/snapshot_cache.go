package statemachine

import (
	"context"
	"fmt"
	"time"

	"orders_manager/internal/domain/order/model"
	"orders_manager/pkg/cache"
)

// SnapshotCache 订单快照缓存，key: orders:snapshot:<id>
type SnapshotCache struct {
	cache cache.CacheService
	ttl   time.Duration
}

func NewSnapshotCache(c cache.CacheService, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{cache: c, ttl: ttl}
}

func snapshotKey(orderID int64) string {
	return fmt.Sprintf("orders:snapshot:%d", orderID)
}

// Get 未命中返回 cache.ErrCacheMiss
func (c *SnapshotCache) Get(ctx context.Context, orderID int64) (*model.OrderSnapshot, error) {
	var snap model.OrderSnapshot
	if err := c.cache.Get(ctx, snapshotKey(orderID), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *SnapshotCache) Put(ctx context.Context, snap *model.OrderSnapshot) error {
	return c.cache.Set(ctx, snapshotKey(snap.ID), snap, c.ttl)
}

// Create 首次写入快照，已存在时返回 ErrAlreadyExists
func (c *SnapshotCache) Create(ctx context.Context, snap *model.OrderSnapshot) error {
	ok, err := c.cache.SetNX(ctx, snapshotKey(snap.ID), snap, c.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("order %d: %w", snap.ID, model.ErrAlreadyExists)
	}
	return nil
}

func (c *SnapshotCache) Delete(ctx context.Context, orderID int64) error {
	return c.cache.Delete(ctx, snapshotKey(orderID))
}
