package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"vehiql/internal/events"
	"vehiql/internal/metrics"
)

const (
	DealershipKey = "vehiql:dealership"
	slotsPrefix   = "vehiql:slots:"

	// Invalidation counters. A slot list computed under an older counter value is not stored.
	slotsVersionKey  = "vehiql:slots-version"
	carVersionPrefix = "vehiql:slots-version:"
)

var errStaleSlots = errors.New("slot list invalidated while computing")

func carVersionKey(carID string) string {
	return carVersionPrefix + carID
}

// SlotsKey addresses the computed free slots of one car on one date (YYYY-MM-DD).
func SlotsKey(carID, date string) string {
	return fmt.Sprintf("%s%s:%s", slotsPrefix, carID, date)
}

// Cache is an optional Redis JSON cache. A nil client or non-positive TTL disables it.
type Cache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func New(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *Cache {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "cache").Logger()
	}
	return &Cache{redis: client, ttl: ttl, logger: l}
}

func (c *Cache) enabled() bool {
	return c != nil && c.redis != nil && c.ttl > 0
}

// Get decodes the cached value into out and reports whether it was found.
func (c *Cache) Get(ctx context.Context, kind, key string, out any) bool {
	if !c.enabled() {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cache read failed")
		}
		metrics.IncCache(kind, false)
		return false
	}
	if err := json.Unmarshal(val, out); err != nil {
		metrics.IncCache(kind, false)
		return false
	}
	metrics.IncCache(kind, true)
	return true
}

func (c *Cache) Set(ctx context.Context, key string, val any) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if !c.enabled() || len(keys) == 0 {
		return
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Strs("keys", keys).Msg("Cache invalidation failed")
	}
}

// SlotsVersion snapshots the counters guarding carID's slot lists. Take it before
// reading the bookings the list is computed from and hand it to SetSlots.
func (c *Cache) SlotsVersion(ctx context.Context, carID string) string {
	if !c.enabled() {
		return ""
	}
	v, err := versionOf(ctx, c.redis, carID)
	if err != nil {
		c.logger.Debug().Err(err).Str("car_id", carID).Msg("Cache version read failed")
	}
	return v
}

// SetSlots stores a computed slot list unless an invalidation for carID ran after version was taken.
func (c *Cache) SetSlots(ctx context.Context, carID, key, version string, val any) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}

	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := versionOf(ctx, tx, carID)
		if err != nil {
			return err
		}
		if cur != version {
			return errStaleSlots
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, slotsVersionKey, carVersionKey(carID))

	switch {
	case err == nil:
	case errors.Is(err, errStaleSlots), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug().Str("key", key).Msg("Skipped caching stale slot list")
	default:
		c.logger.Debug().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

type multiGetter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func versionOf(ctx context.Context, r multiGetter, carID string) (string, error) {
	vals, err := r.MGet(ctx, slotsVersionKey, carVersionKey(carID)).Result()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v/%v", vals[0], vals[1]), nil
}

func (c *Cache) bump(ctx context.Context, key string) {
	if err := c.redis.Incr(ctx, key).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache version bump failed")
	}
}

// InvalidateCarSlots drops the slot lists of one car on date.
func (c *Cache) InvalidateCarSlots(ctx context.Context, carID, date string) {
	if !c.enabled() {
		return
	}
	c.bump(ctx, carVersionKey(carID))
	c.Delete(ctx, SlotsKey(carID, date))
}

// InvalidateCar drops every slot list of one car.
func (c *Cache) InvalidateCar(ctx context.Context, carID string) {
	if !c.enabled() {
		return
	}
	c.bump(ctx, carVersionKey(carID))
	c.Delete(ctx, c.scan(ctx, slotsPrefix+carID+":*")...)
}

// InvalidateAllSlots drops every cached slot list.
func (c *Cache) InvalidateAllSlots(ctx context.Context) {
	if !c.enabled() {
		return
	}
	c.bump(ctx, slotsVersionKey)
	c.Delete(ctx, c.scan(ctx, slotsPrefix+"*")...)
}

func (c *Cache) scan(ctx context.Context, pattern string) []string {
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn().Err(err).Str("pattern", pattern).Msg("Cache scan failed")
	}
	return keys
}

// HandleEvent keeps cached reads consistent with writes. Subscribe it synchronously.
func (c *Cache) HandleEvent(ev events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	switch ev.Type {
	case events.TestDriveBooked, events.TestDriveCancelled, events.TestDriveStatusChanged:
		var p events.BookingPayload
		if err := ev.Decode(&p); err != nil {
			return fmt.Errorf("decode booking payload: %w", err)
		}
		c.InvalidateCarSlots(ctx, p.CarID, p.BookingDate)
	case events.CarDeleted:
		var p events.CarPayload
		if err := ev.Decode(&p); err != nil {
			return fmt.Errorf("decode car payload: %w", err)
		}
		c.InvalidateCar(ctx, p.CarID)
	case events.DealershipHoursSaved:
		c.Delete(ctx, DealershipKey)
		c.InvalidateAllSlots(ctx)
	}
	return nil
}

// Subscribe registers the invalidation handler on the bus.
func (c *Cache) Subscribe(bus *events.EventBus) {
	for _, t := range []string{events.TestDriveBooked, events.TestDriveCancelled,
		events.TestDriveStatusChanged, events.DealershipHoursSaved, events.CarDeleted} {
		bus.Subscribe(t, c.HandleEvent)
	}
}
