package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// replaceFile swaps the file in one rename so a poller never reads it half written.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_REDIS_PASSWORD", "s3cret")
	t.Setenv("SLOTKEEPER_HTTP_ADDR", ":9999")

	path := writeFile(t, dir, "config.yaml", `
database:
  path: `+filepath.Join(dir, "db", "slotkeeper.db")+`
redis:
  address: localhost:6379
  password: ${TEST_REDIS_PASSWORD}
http:
  address: ":8080"
  rate_limit_per_sec: 5
engine:
  persist_generated: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, ":9999", cfg.HTTP.Address, "environment overrides the file")
	assert.Equal(t, 5.0, cfg.HTTP.RateLimitPerSec)
	assert.True(t, cfg.Engine.AutoRollback, "auto rollback defaults on")
	assert.True(t, cfg.Engine.PersistGenerated)
	assert.Equal(t, "configs/template.yaml", cfg.TemplatePath)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoad_AutoRollbackOff(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
database:
  path: `+filepath.Join(dir, "slotkeeper.db")+`
engine:
  auto_rollback: false
  session_idle_minutes: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Engine.AutoRollback)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdle())
}

const templateYAML = `
providers:
  - id: 1
    name: Dr. Smith
    is_active: true
  - id: 2
    name: Dr. Jones
    is_active: false
    schedule:
      start_time: "10:00"
      end_time: "14:00"
      slot_duration_minutes: 30
      advance_booking_days: 14
    days_off: [3, 6, 7]
defaults:
  schedule:
    start_time: "09:00"
    end_time: "17:00"
    slot_duration_minutes: 60
    advance_booking_days: 30
holidays:
  - date: "2026-01-01"
    name: New Year
`

func TestLoadTemplateConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "template.yaml", templateYAML)

	cfg, err := LoadTemplateConfig(path)
	require.NoError(t, err)

	assert.Len(t, cfg.GetActiveProviders(), 1)
	assert.Equal(t, []int{6, 7}, cfg.Defaults.DaysOff)

	tpl := cfg.WeeklyTemplate(1)
	require.NoError(t, tpl.Validate())
	assert.True(t, tpl[0].IsWorking)
	assert.False(t, tpl[5].IsWorking)
	assert.False(t, tpl[6].IsWorking)
	assert.Equal(t, "09:00", tpl[0].StartTime)

	jones := cfg.WeeklyTemplate(2)
	assert.False(t, jones[2].IsWorking, "Wednesday off")
	assert.Equal(t, "10:00", jones[0].StartTime)
	assert.Equal(t, 30, cfg.Settings(2).SlotDurationMinutes)
	assert.Equal(t, 14, cfg.Settings(2).AdvanceBookingDays)

	unknown := cfg.Settings(99)
	assert.Equal(t, 60, unknown.SlotDurationMinutes)

	ok, name := cfg.IsHoliday("2026-01-01")
	assert.True(t, ok)
	assert.Equal(t, "New Year", name)
}

func TestTemplateConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  TemplateConfig
	}{
		{name: "non-positive id", cfg: TemplateConfig{Providers: []ProviderConfig{{ID: 0}}}},
		{name: "duplicate id", cfg: TemplateConfig{Providers: []ProviderConfig{{ID: 1}, {ID: 1}}}},
		{name: "bad days off", cfg: TemplateConfig{Defaults: DefaultsConfig{DaysOff: []int{0}}}},
		{name: "bad holiday", cfg: TemplateConfig{Holidays: []HolidayConfig{{Date: "01.01.2026"}}}},
		{name: "inverted hours", cfg: TemplateConfig{Defaults: DefaultsConfig{Schedule: &ScheduleConfig{
			StartTime: "18:00", EndTime: "09:00", SlotDurationMinutes: 30,
		}}}},
		{name: "zero duration", cfg: TemplateConfig{Defaults: DefaultsConfig{Schedule: &ScheduleConfig{
			StartTime: "09:00", EndTime: "18:00",
		}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestWatchTemplate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "template.yaml", templateYAML)
	logger := zerolog.New(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan TemplateChange, 4)
	require.NoError(t, WatchTemplate(ctx, path, 10*time.Millisecond, &logger, func(change TemplateChange) {
		updates <- change
	}))

	first := <-updates
	assert.True(t, first.All)
	assert.Len(t, first.Config.Holidays, 1)
	assert.Len(t, first.Checksum, 64)

	// Touching the file without changing it is not a revision.
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	// Neither is an invalid one.
	replaceFile(t, path, "providers: [{id: 0}]\n")

	select {
	case change := <-updates:
		t.Fatalf("unexpected change %+v", change)
	case <-time.After(100 * time.Millisecond):
	}

	updated := strings.Replace(templateYAML, "name: Dr. Jones", "name: Dr. Jones-Smith", 1)
	replaceFile(t, path, updated)

	select {
	case change := <-updates:
		assert.False(t, change.All)
		assert.Equal(t, []int{2}, change.Providers)
		assert.Equal(t, "Dr. Jones-Smith", change.Config.GetProviderByID(2).Name)
		assert.NotEqual(t, first.Checksum, change.Checksum)
	case <-time.After(2 * time.Second):
		t.Fatal("template change not picked up")
	}
}

func TestDiffTemplates(t *testing.T) {
	base, err := ParseTemplateConfig([]byte(templateYAML))
	require.NoError(t, err)

	parse := func(old, replacement string) *TemplateConfig {
		t.Helper()
		cfg, err := ParseTemplateConfig([]byte(strings.Replace(templateYAML, old, replacement, 1)))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name      string
		next      *TemplateConfig
		all       bool
		providers []int
	}{
		{name: "unchanged", next: base},
		{name: "schedule", next: parse(`start_time: "10:00"`, `start_time: "11:00"`), providers: []int{2}},
		{name: "activation", next: parse("is_active: false", "is_active: true"), providers: []int{2}},
		{name: "holiday", next: parse("name: New Year", "name: New Year's Day"), providers: []int{1}},
		{name: "defaults", next: parse("slot_duration_minutes: 60", "slot_duration_minutes: 45"), all: true, providers: []int{1}},
		{name: "new provider", next: parse("providers:\n", "providers:\n  - id: 3\n    name: Dr. Lee\n"), providers: []int{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change := DiffTemplates(base, tt.next)
			assert.Equal(t, tt.all, change.All)
			assert.Equal(t, tt.providers, change.Providers)
		})
	}

	first := DiffTemplates(nil, base)
	assert.True(t, first.All)
	assert.True(t, first.Affects(42))
	assert.False(t, DiffTemplates(base, base).Affects(1))
}
