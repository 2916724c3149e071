package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
)

const (
	facilityKeyPrefix = "facility:id:"
	headedKeyPrefix   = "facility:head:"
)

// cachedFacilityRepository is a read-through Redis cache in front of a
// facility store. Redis failures degrade to the store, never to an error.
type cachedFacilityRepository struct {
	next   FacilityRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedFacilityRepository wraps next. A nil client disables caching.
func NewCachedFacilityRepository(next FacilityRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) FacilityRepository {
	if client == nil {
		return next
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedFacilityRepository{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *cachedFacilityRepository) Resolve(ctx context.Context, id string) (*domain.Facility, error) {
	return c.readThrough(ctx, facilityKeyPrefix+id, func() (*domain.Facility, error) {
		return c.next.Resolve(ctx, id)
	})
}

func (c *cachedFacilityRepository) HeadedBy(ctx context.Context, managerID string) (*domain.Facility, error) {
	return c.readThrough(ctx, headedKeyPrefix+managerID, func() (*domain.Facility, error) {
		return c.next.HeadedBy(ctx, managerID)
	})
}

// Save writes through and drops every key the facility could be cached under.
func (c *cachedFacilityRepository) Save(ctx context.Context, f *domain.Facility) error {
	keys := []string{facilityKeyPrefix + f.ID, headedKeyPrefix + f.HeadManagerID}
	if prev, err := c.next.Resolve(ctx, f.ID); err == nil && prev.HeadManagerID != f.HeadManagerID {
		keys = append(keys, headedKeyPrefix+prev.HeadManagerID)
	}
	if err := c.next.Save(ctx, f); err != nil {
		return err
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("facility cache invalidation failed", zap.String("facility_id", f.ID), zap.Error(err))
	}
	return nil
}

func (c *cachedFacilityRepository) readThrough(ctx context.Context, key string, load func() (*domain.Facility, error)) (*domain.Facility, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var f domain.Facility
		if jsonErr := json.Unmarshal(raw, &f); jsonErr == nil {
			return &f, nil
		}
		c.logger.Warn("discarding malformed facility cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Debug("facility cache unavailable", zap.String("key", key), zap.Error(err))
	}

	f, err := load()
	if err != nil {
		return nil, err
	}
	if payload, jsonErr := json.Marshal(f); jsonErr == nil {
		if setErr := c.client.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			c.logger.Debug("facility cache write failed", zap.String("key", key), zap.Error(setErr))
		}
	}
	return f, nil
}
