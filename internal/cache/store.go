package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotkeeper/internal/availability"
	"slotkeeper/internal/metrics"
	"slotkeeper/internal/model"
)

const (
	layerLocal = "lru"
	layerRedis = "redis"
)

// Options configures the cache layers. A nil Redis leaves only the in-process LRU.
// TTL bounds entries in both layers.
type Options struct {
	Redis *redis.Client
	TTL   time.Duration
	Size  int
}

// Store caches range loads in front of another availability.Store.
// Every write goes through to the wrapped store and invalidates the provider's entries.
type Store struct {
	next       availability.Store
	providerID int64
	redis      *redis.Client
	ttl        time.Duration
	local      *expirable.LRU[string, *model.RangeData]
	logger     *zerolog.Logger
}

var _ availability.Store = (*Store)(nil)

func New(next availability.Store, providerID int64, opts Options, logger *zerolog.Logger) (*Store, error) {
	if providerID <= 0 {
		return nil, fmt.Errorf("cache: invalid provider id %d", providerID)
	}
	if opts.Size <= 0 {
		opts.Size = 64
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}

	return &Store{
		next:       next,
		providerID: providerID,
		redis:      opts.Redis,
		ttl:        opts.TTL,
		local:      expirable.NewLRU[string, *model.RangeData](opts.Size, nil, opts.TTL),
		logger:     logger,
	}, nil
}

func (s *Store) LoadWorkingHours(ctx context.Context) ([]model.WorkingHours, error) {
	return s.next.LoadWorkingHours(ctx)
}

func (s *Store) SaveWorkingHours(ctx context.Context, hours []model.WorkingHours) error {
	return s.next.SaveWorkingHours(ctx, hours)
}

func (s *Store) LoadSettings(ctx context.Context) ([]model.Settings, error) {
	return s.next.LoadSettings(ctx)
}

func (s *Store) SaveSettings(ctx context.Context, settings model.Settings) error {
	return s.next.SaveSettings(ctx, settings)
}

// LoadTimeSlotsForDateRange serves from the LRU, then redis, then the wrapped store.
func (s *Store) LoadTimeSlotsForDateRange(ctx context.Context, startDate, endDate string) (*model.RangeData, error) {
	gen := s.generation(ctx)
	key := s.rangeKey(gen, startDate, endDate)

	if data, ok := s.local.Get(key); ok {
		metrics.IncCacheLookup(layerLocal, "hit")
		return cloneRange(data), nil
	}
	metrics.IncCacheLookup(layerLocal, "miss")

	var cached model.RangeData
	if s.readCache(ctx, key, &cached) {
		metrics.IncCacheLookup(layerRedis, "hit")
		s.local.Add(key, cloneRange(&cached))
		return &cached, nil
	}

	data, err := s.next.LoadTimeSlotsForDateRange(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}

	s.local.Add(key, cloneRange(data))
	s.writeCache(ctx, key, data)
	return data, nil
}

func (s *Store) SaveException(ctx context.Context, exc model.AvailabilityException) error {
	if err := s.next.SaveException(ctx, exc); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

func (s *Store) SaveTimeSlots(ctx context.Context, date string, slots []model.SlotWrite) error {
	if err := s.next.SaveTimeSlots(ctx, date, slots); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

func (s *Store) UpdateTimeSlot(ctx context.Context, update model.SlotUpdate) error {
	if err := s.next.UpdateTimeSlot(ctx, update); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

func (s *Store) DeleteTimeSlotsForDate(ctx context.Context, date string) error {
	if err := s.next.DeleteTimeSlotsForDate(ctx, date); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

// Invalidate drops every cached range of the provider. Redis entries are
// orphaned by bumping the generation and expire on their own.
func (s *Store) Invalidate(ctx context.Context) {
	s.local.Purge()
	if s.redis == nil {
		return
	}
	if err := s.redis.Incr(ctx, s.generationKey()).Err(); err != nil {
		s.logger.Warn().Err(err).Int64("provider_id", s.providerID).Msg("failed to bump cache generation")
	}
}

func (s *Store) generation(ctx context.Context) int64 {
	if s.redis == nil {
		return 0
	}
	gen, err := s.redis.Get(ctx, s.generationKey()).Int64()
	if err != nil && err != redis.Nil {
		s.logger.Debug().Err(err).Msg("cache generation unavailable")
	}
	return gen
}

func (s *Store) generationKey() string {
	return fmt.Sprintf("slotkeeper:gen:%d", s.providerID)
}

func (s *Store) rangeKey(gen int64, startDate, endDate string) string {
	return fmt.Sprintf("slotkeeper:range:%d:%d:%s:%s", s.providerID, gen, startDate, endDate)
}

func (s *Store) readCache(ctx context.Context, key string, out any) bool {
	if s.redis == nil {
		return false
	}
	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Debug().Err(err).Str("key", key).Msg("redis read failed")
		}
		metrics.IncCacheLookup(layerRedis, "miss")
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		metrics.IncCacheLookup(layerRedis, "miss")
		return false
	}
	return true
}

func (s *Store) writeCache(ctx context.Context, key string, val any) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, key, data, s.ttl).Err()
}

func cloneRange(data *model.RangeData) *model.RangeData {
	if data == nil {
		return &model.RangeData{}
	}
	out := &model.RangeData{}
	if data.Exceptions != nil {
		out.Exceptions = append([]model.AvailabilityException(nil), data.Exceptions...)
	}
	if data.TimeSlots != nil {
		out.TimeSlots = append([]model.StoredSlot(nil), data.TimeSlots...)
	}
	return out
}
