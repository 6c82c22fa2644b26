package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/kirinyoku/classbook/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const DefaultOfferingTTL = 30 * time.Second

// OfferingCache keeps short-lived copies of offering rows for the read path.
// Writers never consult it: every seat decision reads the row under its lock.
type OfferingCache struct {
	rdb *redis.Client
	ttl time.Duration
	sf  singleflight.Group
	log *slog.Logger
}

func NewOfferingCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *OfferingCache {
	if ttl <= 0 {
		ttl = DefaultOfferingTTL
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &OfferingCache{
		rdb: rdb,
		ttl: ttl,
		log: logger.With(slog.String("component", "offering_cache")),
	}
}

// cachedOffering is the stored form. It is kept apart from domain.Offering so
// a change to the API shape does not silently change what old entries decode to.
type cachedOffering struct {
	ID        int64     `json:"id"`
	Capacity  int       `json:"cap"`
	Occupancy int       `json:"occ"`
	StartsAt  time.Time `json:"starts"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"updated"`
}

func toCached(o *domain.Offering) cachedOffering {
	return cachedOffering{
		ID:        o.ID,
		Capacity:  o.Capacity,
		Occupancy: o.Occupancy,
		StartsAt:  o.StartsAt,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func (c cachedOffering) offering() *domain.Offering {
	return &domain.Offering{
		ID:        c.ID,
		Capacity:  c.Capacity,
		Occupancy: c.Occupancy,
		StartsAt:  c.StartsAt,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// GetOffering returns the cached offering. A missing or undecodable entry is
// reported as a miss; undecodable ones are dropped.
func (c *OfferingCache) GetOffering(ctx context.Context, offeringID int64) (*domain.Offering, bool, error) {
	key := KeyOffering(offeringID)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	var v cachedOffering
	if err := json.Unmarshal(raw, &v); err != nil || v.ID != offeringID {
		return nil, false, c.rdb.Del(ctx, key).Err()
	}

	return v.offering(), true, nil
}

func (c *OfferingCache) SetOffering(ctx context.Context, o *domain.Offering) error {
	b, err := json.Marshal(toCached(o))
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, KeyOffering(o.ID), string(b), c.ttl).Err()
}

// Offering serves offeringID from the cache, falling back to load on a miss.
// Concurrent misses for the same offering share one load. Errors from load
// are returned unchanged and nothing is cached for them. Redis failures are
// logged and the read goes to load.
func (c *OfferingCache) Offering(
	ctx context.Context,
	offeringID int64,
	load func(ctx context.Context) (*domain.Offering, error),
) (*domain.Offering, error) {
	if o, ok := c.lookup(ctx, offeringID); ok {
		return o, nil
	}

	v, err, _ := c.sf.Do(strconv.FormatInt(offeringID, 10), func() (any, error) {
		if o, ok := c.lookup(ctx, offeringID); ok {
			return o, nil
		}

		o, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if err := c.SetOffering(ctx, o); err != nil {
			c.log.Warn("offering cache write failed",
				slog.Int64("offering_id", offeringID),
				slog.String("error", err.Error()),
			)
		}

		return o, nil
	})
	if err != nil {
		return nil, err
	}

	// Callers sharing a load each get their own copy.
	o := *v.(*domain.Offering)
	return &o, nil
}

func (c *OfferingCache) lookup(ctx context.Context, offeringID int64) (*domain.Offering, bool) {
	o, ok, err := c.GetOffering(ctx, offeringID)
	if err != nil {
		c.log.Warn("offering cache read failed",
			slog.Int64("offering_id", offeringID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	return o, ok
}

// InvalidateOffering drops the cached offering.
func (c *OfferingCache) InvalidateOffering(ctx context.Context, offeringID int64) error {
	return c.rdb.Del(ctx, KeyOffering(offeringID)).Err()
}
