package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"slotkeeper/internal/calendar"
	"slotkeeper/internal/events"
	"slotkeeper/internal/metrics"
	"slotkeeper/internal/model"
	"slotkeeper/internal/slots"
)

// Config selects engine behaviour variants.
type Config struct {
	// AutoRollback reverts the optimistic update when persistence fails.
	AutoRollback bool
	// PersistGenerated writes slots generated during a range load back to the store.
	PersistGenerated bool

	FallbackStart string
	FallbackEnd   string

	// Provisioned when the store has no template or settings yet.
	DefaultTemplate model.Template
	DefaultSettings model.Settings
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		AutoRollback:    true,
		FallbackStart:   model.FallbackHours.StartTime,
		FallbackEnd:     model.FallbackHours.EndTime,
		DefaultTemplate: model.DefaultTemplate(model.FallbackHours.StartTime, model.FallbackHours.EndTime),
		DefaultSettings: model.DefaultSettings(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.FallbackStart == "" || c.FallbackEnd == "" {
		c.FallbackStart, c.FallbackEnd = d.FallbackStart, d.FallbackEnd
	}
	if len(c.DefaultTemplate) == 0 {
		c.DefaultTemplate = d.DefaultTemplate
	}
	if c.DefaultSettings.SlotDurationMinutes <= 0 {
		c.DefaultSettings = d.DefaultSettings
	}
}

type pendingRange struct {
	stamp      uint64
	days       []string
	exceptions map[string]model.AvailabilityException
	slots      map[string][]model.TimeSlot
}

// Engine owns the resolved availability of one provider.
type Engine struct {
	providerID int64
	store      Store
	cfg        Config
	logger     *zerolog.Logger
	bus        *events.EventBus
	now        func() time.Time

	mu       sync.RWMutex
	template model.Template
	settings model.Settings
	gate     Gate
	days     map[string]model.DayAvailability
	versions map[string]uint64
	inflight map[string]int
	floor    uint64
	seq      uint64
	pending  []pendingRange

	locks dateLocks
}

// NewEngine creates an engine in the Loading state.
func NewEngine(providerID int64, store Store, cfg Config, logger *zerolog.Logger) *Engine {
	cfg.applyDefaults()
	l := logger.With().Int64("provider_id", providerID).Logger()
	return &Engine{
		providerID: providerID,
		store:      store,
		cfg:        cfg,
		logger:     &l,
		now:        time.Now,
		days:       make(map[string]model.DayAvailability),
		versions:   make(map[string]uint64),
		inflight:   make(map[string]int),
	}
}

// UseEvents publishes mutation events to bus.
func (e *Engine) UseEvents(bus *events.EventBus) {
	e.bus = bus
}

// UseClock overrides the clock used for booking windows.
func (e *Engine) UseClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// ProviderID returns the provider this engine serves.
func (e *Engine) ProviderID() int64 {
	return e.providerID
}

// Load fetches the template and settings, provisioning defaults when the store has none.
func (e *Engine) Load(ctx context.Context) error {
	var (
		hours    []model.WorkingHours
		settings []model.Settings
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hours, err = e.store.LoadWorkingHours(gctx)
		return persistenceError("load_working_hours", "", err)
	})
	g.Go(func() error {
		var err error
		settings, err = e.store.LoadSettings(gctx)
		return persistenceError("load_settings", "", err)
	})
	if err := g.Wait(); err != nil {
		metrics.IncPersistenceError(opOf(err))
		e.logger.Error().Err(err).Msg("failed to load template and settings")
		return err
	}

	tpl := model.Template(hours)
	if len(tpl) == 0 {
		tpl = append(model.Template(nil), e.cfg.DefaultTemplate...)
		if err := e.store.SaveWorkingHours(ctx, tpl); err != nil {
			perr := persistenceError("save_working_hours", "", err)
			metrics.IncPersistenceError("save_working_hours")
			e.logger.Error().Err(err).Msg("failed to provision default template")
			return perr
		}
		e.logger.Info().Msg("provisioned default weekly template")
	}
	if err := tpl.Validate(); err != nil {
		return fmt.Errorf("invalid weekly template: %w", err)
	}

	var current model.Settings
	if len(settings) == 0 {
		current = e.cfg.DefaultSettings
		if err := e.store.SaveSettings(ctx, current); err != nil {
			perr := persistenceError("save_settings", "", err)
			metrics.IncPersistenceError("save_settings")
			e.logger.Error().Err(err).Msg("failed to provision default settings")
			return perr
		}
		e.logger.Info().Int("slot_duration", current.SlotDurationMinutes).Msg("provisioned default settings")
	} else {
		current = settings[0]
	}
	if current.SlotDurationMinutes <= 0 {
		return fmt.Errorf("invalid settings: slot duration %d", current.SlotDurationMinutes)
	}

	e.mu.Lock()
	e.template = tpl
	e.settings = current
	e.gate.TemplateLoaded = true
	e.gate.TemplateEntries = len(tpl)
	e.gate.SettingsLoaded = true
	e.gate.SlotDurationMinutes = current.SlotDurationMinutes
	generated := e.openGateLocked()
	e.mu.Unlock()

	e.persistGenerated(ctx, generated)
	return nil
}

// Ready reports whether the load gate is open.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gate.State() == StateReady
}

// GateState returns a copy of the load gate.
func (e *Engine) GateState() Gate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gate
}

// Template returns the loaded weekly template.
func (e *Engine) Template() model.Template {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append(model.Template(nil), e.template...)
}

// Settings returns the loaded settings.
func (e *Engine) Settings() model.Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// MarkSlotsLoaded sets the slots flag of the load gate.
func (e *Engine) MarkSlotsLoaded(ctx context.Context) {
	e.mu.Lock()
	e.gate.SlotsLoaded = true
	generated := e.openGateLocked()
	e.mu.Unlock()

	e.persistGenerated(ctx, generated)
}

// LoadTimeSlotsForMonth fetches exceptions and slots for [start, end] and merges the resolved days.
// Data fetched before the gate opens is kept and resolved once it does.
func (e *Engine) LoadTimeSlotsForMonth(ctx context.Context, start, end string) error {
	days, err := calendar.DaysInRange(start, end)
	if err != nil {
		return model.NewValidationError("range", start+".."+end, fmt.Errorf("%w: %v", ErrInvalidDate, err))
	}

	generated, err := e.loadRange(ctx, start, end, days, "")
	if err != nil {
		return err
	}
	e.persistGenerated(ctx, generated)
	return nil
}

// loadRange fetches and merges a range; own is a date the caller is mutating and may overwrite.
func (e *Engine) loadRange(ctx context.Context, start, end string, days []string, own string) (Patch, error) {
	stamp := e.nextStamp()

	data, err := e.store.LoadTimeSlotsForDateRange(ctx, start, end)
	if err != nil {
		metrics.IncMonthLoad("error")
		metrics.IncPersistenceError("load_range")
		e.logger.Error().Err(err).Str("start", start).Str("end", end).Msg("failed to load time slots")
		return nil, persistenceError("load_range", start, err)
	}
	exceptions, slotsByDate := GroupRange(data)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.gate.ExceptionsLoaded = true
	e.gate.SlotsLoaded = true

	if e.gate.State() != StateReady {
		e.pending = append(e.pending, pendingRange{stamp: stamp, days: days, exceptions: exceptions, slots: slotsByDate})
		generated := e.openGateLocked()
		if e.gate.State() != StateReady {
			metrics.IncMonthLoad("pending")
			e.logger.Debug().Str("start", start).Str("end", end).Msg("range loaded before gate opened, kept pending")
		}
		return generated, nil
	}

	patch, err := ProcessDays(days, e.template, e.settings, exceptions, slotsByDate)
	if err != nil {
		metrics.IncMonthLoad("error")
		return nil, err
	}
	metrics.IncMonthLoad("ok")
	return e.mergeLocked(stamp, patch, own), nil
}

// ProcessMonthDays resolves days against already fetched maps and merges the result.
func (e *Engine) ProcessMonthDays(
	days []string,
	exceptionsByDate map[string]model.AvailabilityException,
	slotsByDate map[string][]model.TimeSlot,
) error {
	stamp := e.nextStamp()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gate.State() != StateReady {
		return ErrNotReady
	}
	patch, err := ProcessDays(days, e.template, e.settings, exceptionsByDate, slotsByDate)
	if err != nil {
		return err
	}
	e.mergeLocked(stamp, patch, "")
	return nil
}

// RefreshCalendar drops every resolved day so the next range load resolves afresh.
// Loads started before the refresh are discarded. The gate stays open.
func (e *Engine) RefreshCalendar() {
	stamp := e.nextStamp()

	e.mu.Lock()
	e.days = make(map[string]model.DayAvailability)
	e.versions = make(map[string]uint64)
	e.pending = nil
	e.floor = stamp
	e.mu.Unlock()

	e.logger.Debug().Msg("calendar refreshed")
	e.publish(events.TypeCalendarRefreshed, "", events.Mutation{Op: "refresh"})
}

// GetAvailability returns a copy of every resolved day.
func (e *Engine) GetAvailability() map[string]model.DayAvailability {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]model.DayAvailability, len(e.days))
	for date, day := range e.days {
		out[date] = day.Clone()
	}
	return out
}

// Day returns the resolved day for date.
func (e *Engine) Day(date string) (model.DayAvailability, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	day, ok := e.days[date]
	if !ok {
		return model.DayAvailability{}, false
	}
	return day.Clone(), true
}

// BookableSlots lists the slots of date a client may book now. Dates in the past or
// beyond the advance booking window yield none.
func (e *Engine) BookableSlots(date string) ([]model.TimeSlot, error) {
	target, err := calendar.ParseDate(date)
	if err != nil {
		return nil, model.NewValidationError("date", date, ErrInvalidDate)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.gate.State() != StateReady {
		return nil, ErrNotReady
	}

	now := e.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if target.Before(today) {
		return []model.TimeSlot{}, nil
	}
	if e.settings.AdvanceBookingDays > 0 && target.After(today.AddDate(0, 0, e.settings.AdvanceBookingDays)) {
		return []model.TimeSlot{}, nil
	}

	day, ok := e.days[date]
	if !ok || !day.IsWorkingDay {
		return []model.TimeSlot{}, nil
	}
	return slots.Available(day.TimeSlots), nil
}

func (e *Engine) nextStamp() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return e.seq
}

// openGateLocked advances the gate and resolves pending ranges once it opens.
func (e *Engine) openGateLocked() Patch {
	if !e.gate.advance() {
		return nil
	}
	metrics.SetGateReady(e.providerID, true)
	e.logger.Info().Msg("availability ready")

	merged := make(Patch)
	for _, p := range e.pending {
		patch, err := ProcessDays(p.days, e.template, e.settings, p.exceptions, p.slots)
		if err != nil {
			e.logger.Error().Err(err).Msg("failed to resolve pending range")
			continue
		}
		for date, day := range e.mergeLocked(p.stamp, patch, "") {
			merged[date] = day
		}
	}
	e.pending = nil
	return merged
}

// mergeLocked merges patch entries newer than what is held. Dates with a mutation in
// flight are skipped unless they are own. It returns the merged generated days.
func (e *Engine) mergeLocked(stamp uint64, patch Patch, own string) Patch {
	generated := make(Patch)
	for date, day := range patch {
		stale := stamp <= e.floor || stamp <= e.versions[date]
		if stale || (e.inflight[date] > 0 && date != own) {
			metrics.IncStalePatchDropped()
			e.logger.Debug().Str("date", date).Uint64("stamp", stamp).Msg("dropped stale day")
			continue
		}
		e.days[date] = day
		e.versions[date] = stamp
		metrics.IncDayResolved(string(day.Source))
		if day.Source == model.SourceGenerated && len(day.TimeSlots) > 0 {
			generated[date] = day
		}
	}
	return generated
}

// persistGenerated writes generated days back when configured. Failures are logged only.
func (e *Engine) persistGenerated(ctx context.Context, generated Patch) {
	if !e.cfg.PersistGenerated || len(generated) == 0 {
		return
	}
	for date, day := range generated {
		if err := e.store.SaveTimeSlots(ctx, date, model.ToWrites(day.TimeSlots)); err != nil {
			metrics.IncPersistenceError("save_time_slots")
			e.logger.Warn().Err(err).Str("date", date).Msg("failed to persist generated slots")
		}
	}
}

func (e *Engine) publish(eventType, date string, payload events.Mutation) {
	if e.bus == nil {
		return
	}
	ev, err := events.NewEvent(eventType, e.providerID, date, payload)
	if err != nil {
		e.logger.Warn().Err(err).Str("type", eventType).Msg("failed to build event")
		return
	}
	if err := e.bus.Publish(ev); err != nil {
		e.logger.Warn().Err(err).Str("type", eventType).Msg("event handler failed")
	}
}
