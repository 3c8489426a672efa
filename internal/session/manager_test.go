package session

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotkeeper/internal/availability"
	"slotkeeper/internal/cache"
	"slotkeeper/internal/db"
	"slotkeeper/internal/model"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManager(t *testing.T) (*Manager, *db.DB, *clock, *int) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	clk := &clock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	var (
		mu     sync.Mutex
		builds int
	)
	factory := func(providerID int64) (availability.Store, error) {
		mu.Lock()
		builds++
		mu.Unlock()
		return cache.New(database.ProviderStore(providerID), providerID, cache.Options{}, &logger)
	}

	m := NewManager(factory, Options{
		Engine:      availability.DefaultConfig(),
		IdleTimeout: 10 * time.Minute,
		Now:         clk.Now,
	}, &logger)
	return m, database, clk, &builds
}

func TestManager_GetLoadsCurrentMonth(t *testing.T) {
	m, _, _, builds := newManager(t)
	ctx := context.Background()

	s, err := m.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, s.Engine.Ready())

	_, ok := s.Engine.Day("2026-01-14")
	assert.True(t, ok)
	_, ok = s.Engine.Day("2026-02-02")
	assert.False(t, ok)

	again, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.Equal(t, 1, *builds)
	assert.Equal(t, 1, m.Active())
}

func TestManager_ConcurrentGetSharesLoad(t *testing.T) {
	m, _, _, builds := newManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]*Session, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Get(ctx, 3)
			assert.NoError(t, err)
			got[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, 1, *builds)
}

func TestManager_EnsureMonth(t *testing.T) {
	m, _, _, _ := newManager(t)
	ctx := context.Background()

	s, err := m.Get(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, s.EnsureMonth(ctx, "2026-02-10"))

	day, ok := s.Engine.Day("2026-02-02")
	require.True(t, ok)
	assert.True(t, day.IsWorkingDay)

	assert.Error(t, s.EnsureMonth(ctx, "not-a-date"))
}

func TestManager_RefreshSeesExternalWrites(t *testing.T) {
	m, database, _, _ := newManager(t)
	ctx := context.Background()

	s, err := m.Get(ctx, 1)
	require.NoError(t, err)

	day, _ := s.Engine.Day("2026-01-14")
	require.True(t, day.IsWorkingDay)

	// Written behind the engine's back.
	require.NoError(t, database.ProviderStore(1).SaveException(ctx, model.AvailabilityException{Date: "2026-01-14", IsAvailable: false}))

	day, _ = s.Engine.Day("2026-01-14")
	assert.True(t, day.IsWorkingDay)

	require.NoError(t, s.Refresh(ctx, "2026-01-14"))
	day, ok := s.Engine.Day("2026-01-14")
	require.True(t, ok)
	assert.False(t, day.IsWorkingDay)
}

func TestManager_IdleSessionsExpire(t *testing.T) {
	m, _, clk, builds := newManager(t)
	ctx := context.Background()

	first, err := m.Get(ctx, 1)
	require.NoError(t, err)
	_, err = m.Get(ctx, 2)
	require.NoError(t, err)

	clk.Advance(5 * time.Minute)
	_, err = m.Get(ctx, 2)
	require.NoError(t, err)

	clk.Advance(6 * time.Minute)
	assert.Equal(t, 1, m.Cleanup())
	assert.Equal(t, 1, m.Active())

	rebuilt, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.NotSame(t, first, rebuilt)
	assert.Equal(t, 3, *builds)

	m.Evict(1)
	assert.Equal(t, 1, m.Active())
	m.EvictAll()
	assert.Zero(t, m.Active())
}

func TestManager_FailedBuildIsNotCached(t *testing.T) {
	logger := zerolog.New(io.Discard)
	calls := 0
	m := NewManager(func(int64) (availability.Store, error) {
		calls++
		return nil, errors.New("no database")
	}, Options{}, &logger)

	_, err := m.Get(context.Background(), 1)
	assert.Error(t, err)
	_, err = m.Get(context.Background(), 1)
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Zero(t, m.Active())
}
