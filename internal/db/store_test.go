package db

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotkeeper/internal/availability"
	"slotkeeper/internal/config"
	"slotkeeper/internal/events"
	"slotkeeper/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertBooking(t *testing.T, db *DB, providerID int64, date, start, end, status string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO bookings (provider_id, date, start_time, end_time, client_name, status)
		VALUES (?, ?, ?, ?, 'Ann', ?)`, providerID, date, start, end, status)
	require.NoError(t, err)
}

func TestStore_WorkingHoursWeekdayMapping(t *testing.T) {
	db := newTestDB(t)
	store := db.ProviderStore(1)
	ctx := context.Background()

	tpl := model.DefaultTemplate("09:00", "17:00")
	require.NoError(t, store.SaveWorkingHours(ctx, tpl))

	var dow int
	require.NoError(t, db.QueryRow(
		"SELECT day_of_week FROM working_hours WHERE provider_id = 1 AND is_working = 0 ORDER BY day_of_week LIMIT 1",
	).Scan(&dow))
	assert.Equal(t, 0, dow, "Sunday is stored as 0")

	loaded, err := store.LoadWorkingHours(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.WorkingHours(tpl), loaded)

	other, err := db.ProviderStore(2).LoadWorkingHours(ctx)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStore_Settings(t *testing.T) {
	store := newTestDB(t).ProviderStore(1)
	ctx := context.Background()

	got, err := store.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.SaveSettings(ctx, model.Settings{SlotDurationMinutes: 45, AdvanceBookingDays: 10}))
	require.NoError(t, store.SaveSettings(ctx, model.Settings{SlotDurationMinutes: 30, AdvanceBookingDays: 10}))

	got, err = store.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Settings{{SlotDurationMinutes: 30, AdvanceBookingDays: 10}}, got)
}

func TestStore_ExceptionsAndSlots(t *testing.T) {
	db := newTestDB(t)
	store := db.ProviderStore(1)
	ctx := context.Background()

	require.NoError(t, store.SaveException(ctx, model.AvailabilityException{Date: "2026-01-14", IsAvailable: false, Reason: "vacation"}))
	require.NoError(t, store.SaveException(ctx, model.AvailabilityException{Date: "2026-01-14", IsAvailable: true}))

	writes := []model.SlotWrite{
		{StartTime: "10:00", EndTime: "11:00", IsAvailable: true},
		{StartTime: "09:00", EndTime: "10:00", IsAvailable: true},
	}
	require.NoError(t, store.SaveTimeSlots(ctx, "2026-01-14", writes))

	data, err := store.LoadTimeSlotsForDateRange(ctx, "2026-01-01", "2026-01-31")
	require.NoError(t, err)
	require.Len(t, data.Exceptions, 1)
	assert.True(t, data.Exceptions[0].IsAvailable)
	assert.Empty(t, data.Exceptions[0].Reason)
	require.Len(t, data.TimeSlots, 2)
	assert.Equal(t, "09:00", data.TimeSlots[0].StartTime)
	firstID := data.TimeSlots[0].ID

	// Upserts keep row identity.
	require.NoError(t, store.SaveTimeSlots(ctx, "2026-01-14", writes))
	require.NoError(t, store.UpdateTimeSlot(ctx, model.SlotUpdate{Date: "2026-01-14", StartTime: "09:00", EndTime: "10:00", IsAvailable: false}))

	data, err = store.LoadTimeSlotsForDateRange(ctx, "2026-01-14", "2026-01-14")
	require.NoError(t, err)
	require.Len(t, data.TimeSlots, 2)
	assert.Equal(t, firstID, data.TimeSlots[0].ID)
	assert.False(t, data.TimeSlots[0].IsAvailable)

	require.NoError(t, store.DeleteTimeSlotsForDate(ctx, "2026-01-14"))
	data, err = store.LoadTimeSlotsForDateRange(ctx, "2026-01-14", "2026-01-14")
	require.NoError(t, err)
	assert.Empty(t, data.TimeSlots)
	assert.Len(t, data.Exceptions, 1, "exceptions outlive slots")
}

func TestStore_BookedSlotsAreFlagged(t *testing.T) {
	db := newTestDB(t)
	store := db.ProviderStore(1)
	ctx := context.Background()

	require.NoError(t, store.SaveTimeSlots(ctx, "2026-01-14", []model.SlotWrite{
		{StartTime: "09:00", EndTime: "10:00", IsAvailable: true},
		{StartTime: "10:00", EndTime: "11:00", IsAvailable: true},
		{StartTime: "11:00", EndTime: "12:00", IsAvailable: true},
	}))
	insertBooking(t, db, 1, "2026-01-14", "10:00", "11:00", model.BookingStatusConfirmed)
	insertBooking(t, db, 1, "2026-01-14", "11:00", "12:00", model.BookingStatusCanceled)
	insertBooking(t, db, 2, "2026-01-14", "09:00", "10:00", model.BookingStatusConfirmed)

	data, err := store.LoadTimeSlotsForDateRange(ctx, "2026-01-14", "2026-01-14")
	require.NoError(t, err)
	require.Len(t, data.TimeSlots, 3)

	assert.False(t, data.TimeSlots[0].IsBooked, "other provider's booking")
	assert.True(t, data.TimeSlots[1].IsBooked)
	assert.Equal(t, model.BookingStatusConfirmed, data.TimeSlots[1].BookingStatus)
	require.NotNil(t, data.TimeSlots[1].BookingDetails)
	assert.Equal(t, "Ann", data.TimeSlots[1].BookingDetails.ClientName)
	assert.False(t, data.TimeSlots[2].IsBooked, "canceled booking")
}

func TestStore_WithEngine(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	engine := availability.NewEngine(1, db.ProviderStore(1), availability.DefaultConfig(), &logger)
	require.NoError(t, engine.Load(ctx))
	require.NoError(t, engine.LoadTimeSlotsForMonth(ctx, "2026-01-01", "2026-01-31"))
	require.True(t, engine.Ready())

	res := engine.RegenerateDaySlots(ctx, "2026-01-14", "09:00", "12:00", 60)
	require.True(t, res.Success, "%v", res.Err)

	day, ok := engine.Day("2026-01-14")
	require.True(t, ok)
	require.Len(t, day.TimeSlots, 3)
	assert.False(t, day.TimeSlots[0].Provisional)

	insertBooking(t, db, 1, "2026-01-14", "10:00", "11:00", model.BookingStatusConfirmed)
	engine.RefreshCalendar()
	require.NoError(t, engine.LoadTimeSlotsForMonth(ctx, "2026-01-01", "2026-01-31"))

	day, _ = engine.Day("2026-01-14")
	res = engine.ToggleTimeSlot(ctx, "2026-01-14", day.TimeSlots[1])
	assert.ErrorIs(t, res.Err, availability.ErrSlotBooked)

	res = engine.ToggleWorkingDay(ctx, "2026-01-14")
	require.True(t, res.Success, "%v", res.Err)

	var slotCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM time_slots WHERE date = '2026-01-14'").Scan(&slotCount))
	assert.Zero(t, slotCount)

	bookings, err := db.ListBookings(ctx, 1, "2026-01-14", "2026-01-14")
	require.NoError(t, err)
	assert.Len(t, bookings, 1, "bookings are never deleted by the engine")
}

func TestStore_ToggleGeneratedSlotSurvivesReload(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	engine := availability.NewEngine(1, db.ProviderStore(1), availability.DefaultConfig(), &logger)
	require.NoError(t, engine.Load(ctx))
	require.NoError(t, engine.LoadTimeSlotsForMonth(ctx, "2030-01-01", "2030-01-31"))

	day, ok := engine.Day("2030-01-02")
	require.True(t, ok)
	require.Len(t, day.TimeSlots, 8)
	require.Equal(t, model.SourceGenerated, day.Source)

	res := engine.ToggleTimeSlot(ctx, "2030-01-02", day.TimeSlots[0])
	require.True(t, res.Success, "%v", res.Err)

	engine.RefreshCalendar()
	require.NoError(t, engine.LoadTimeSlotsForMonth(ctx, "2030-01-01", "2030-01-31"))
	day, _ = engine.Day("2030-01-02")
	require.Len(t, day.TimeSlots, 8)
	assert.False(t, day.TimeSlots[0].IsAvailable)
	assert.True(t, day.TimeSlots[1].IsAvailable)

	fresh := availability.NewEngine(1, db.ProviderStore(1), availability.DefaultConfig(), &logger)
	require.NoError(t, fresh.Load(ctx))
	require.NoError(t, fresh.LoadTimeSlotsForMonth(ctx, "2030-01-01", "2030-01-31"))
	day, _ = fresh.Day("2030-01-02")
	assert.Len(t, day.TimeSlots, 8)
}

func TestSyncTemplateConfig(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cfg := &config.TemplateConfig{
		Providers: []config.ProviderConfig{
			{ID: 1, Name: "Dr. Smith", IsActive: true},
			{ID: 2, Name: "Dr. Jones", IsActive: false},
		},
		Defaults: config.DefaultsConfig{
			Schedule: &config.ScheduleConfig{StartTime: "08:00", EndTime: "12:00", SlotDurationMinutes: 30, AdvanceBookingDays: 7},
			DaysOff:  []int{7},
		},
		Holidays: []config.HolidayConfig{{Date: "2026-01-01", Name: "New Year"}, {Date: "2026-01-02"}},
	}

	store := db.ProviderStore(1)
	// A manual override that the holiday must not replace.
	require.NoError(t, store.SaveException(ctx, model.AvailabilityException{Date: "2026-01-02", IsAvailable: true}))

	require.NoError(t, db.SyncTemplateConfig(ctx, cfg))
	require.NoError(t, db.SyncTemplateConfig(ctx, cfg))

	providers, err := db.ListActiveProviders(ctx)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "Dr. Smith", providers[0].Name)

	hours, err := store.LoadWorkingHours(ctx)
	require.NoError(t, err)
	require.Len(t, hours, 7)
	assert.Equal(t, "08:00", hours[0].StartTime)
	assert.True(t, hours[5].IsWorking)
	assert.False(t, hours[6].IsWorking)

	settings, err := store.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, settings[0].SlotDurationMinutes)

	data, err := store.LoadTimeSlotsForDateRange(ctx, "2026-01-01", "2026-01-02")
	require.NoError(t, err)
	require.Len(t, data.Exceptions, 2)
	assert.False(t, data.Exceptions[0].IsAvailable)
	assert.Equal(t, "New Year", data.Exceptions[0].Reason)
	assert.True(t, data.Exceptions[1].IsAvailable)

	jones, err := db.ProviderStore(2).LoadTimeSlotsForDateRange(ctx, "2026-01-01", "2026-01-02")
	require.NoError(t, err)
	assert.Empty(t, jones.Exceptions, "inactive providers get no holidays")
}

func TestEnsureDefaultsKeepsExistingRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := db.ProviderStore(1)

	require.NoError(t, store.SaveSettings(ctx, model.Settings{SlotDurationMinutes: 15}))
	require.NoError(t, db.EnsureDefaults(ctx, 1, model.DefaultTemplate("09:00", "17:00"), model.DefaultSettings()))

	settings, err := store.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, settings[0].SlotDurationMinutes)
}

func TestBackupService(t *testing.T) {
	db := newTestDB(t)
	logger := zerolog.New(io.Discard)
	dir := filepath.Join(t.TempDir(), "backups")

	svc := NewBackupService(db, BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, &logger)

	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	old := filepath.Join(dir, "backup_20000101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	assert.Equal(t, 1, svc.CleanupOldBackups())
	assert.NoFileExists(t, old)
	assert.FileExists(t, path)
}

func TestEventLog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	bus := events.NewEventBus()
	bus.SubscribeAll(func(e events.Event) error { return db.RecordEvent(ctx, e) })

	engine := availability.NewEngine(1, db.ProviderStore(1), availability.DefaultConfig(), &logger)
	engine.UseEvents(bus)
	require.NoError(t, engine.Load(ctx))
	require.NoError(t, engine.LoadTimeSlotsForMonth(ctx, "2026-01-01", "2026-01-31"))

	require.True(t, engine.ToggleWorkingDay(ctx, "2026-01-14").Success)

	logged, err := db.ListEvents(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, events.TypeDayToggled, logged[0].Type)
	assert.Equal(t, "2026-01-14", logged[0].Date)

	var m events.Mutation
	require.NoError(t, logged[0].Decode(&m))
	assert.False(t, m.IsWorkingDay)

	other, err := db.ListEvents(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}
