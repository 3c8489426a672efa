package availability

import (
	"context"

	"slotkeeper/internal/calendar"
	"slotkeeper/internal/events"
	"slotkeeper/internal/model"
	"slotkeeper/internal/slots"
)

// Command is one mutation: Apply changes local state optimistically, Persist writes it
// to the store and Rollback restores the state seen by Apply.
type Command interface {
	Apply() error
	Persist(ctx context.Context) error
	Rollback()
}

type mutation interface {
	Command
	event() (string, events.Mutation)
}

// reconciler is implemented by commands that reload state after a successful persist.
type reconciler interface {
	Reconcile(ctx context.Context) error
}

// dayCommand snapshots one date so it can be restored.
type dayCommand struct {
	e       *Engine
	date    string
	before  model.DayAvailability
	existed bool
}

func (c *dayCommand) snapshotLocked() (model.DayAvailability, bool) {
	current, ok := c.e.days[c.date]
	c.before = current.Clone()
	c.existed = ok
	return current, ok
}

func (c *dayCommand) setLocked(day model.DayAvailability) {
	c.e.seq++
	c.e.days[c.date] = day
	c.e.versions[c.date] = c.e.seq
}

func (c *dayCommand) Rollback() {
	c.e.mu.Lock()
	defer c.e.mu.Unlock()

	c.e.seq++
	c.e.versions[c.date] = c.e.seq
	if !c.existed {
		delete(c.e.days, c.date)
		return
	}
	c.e.days[c.date] = c.before
}

type toggleDayCommand struct {
	dayCommand
	working   bool
	generated bool
	slots     []model.TimeSlot
}

func (c *toggleDayCommand) Apply() error {
	c.e.mu.Lock()
	defer c.e.mu.Unlock()

	current, ok := c.snapshotLocked()
	c.working = !(ok && current.IsWorkingDay)

	if !c.working {
		c.slots = []model.TimeSlot{}
		c.setLocked(model.DayAvailability{
			Date:      c.date,
			TimeSlots: c.slots,
			Source:    model.SourceMasked,
		})
		return nil
	}

	source := current.Source
	c.slots = model.CloneSlots(current.TimeSlots)
	if len(c.slots) == 0 {
		generated, err := c.e.defaultSlotsLocked(c.date)
		if err != nil {
			return err
		}
		c.slots = generated
		c.generated = true
		source = model.SourceGenerated
	} else if source == model.SourceClosed || source == "" {
		source = model.SourcePersisted
	}

	c.setLocked(model.DayAvailability{
		Date:         c.date,
		IsWorkingDay: true,
		TimeSlots:    model.CloneSlots(c.slots),
		Source:       source,
	})
	return nil
}

func (c *toggleDayCommand) Persist(ctx context.Context) error {
	exc := model.AvailabilityException{
		Date:        c.date,
		IsAvailable: c.working,
		UpdatedAt:   c.e.now(),
	}
	if err := c.e.store.SaveException(ctx, exc); err != nil {
		return persistenceError("save_exception", c.date, err)
	}

	if !c.working {
		return persistenceError("delete_time_slots", c.date, c.e.store.DeleteTimeSlotsForDate(ctx, c.date))
	}
	if !c.generated {
		return nil
	}
	// Rows left behind while the day was closed are replaced, not merged.
	if err := c.e.store.DeleteTimeSlotsForDate(ctx, c.date); err != nil {
		return persistenceError("delete_time_slots", c.date, err)
	}
	return persistenceError("save_time_slots", c.date, c.e.store.SaveTimeSlots(ctx, c.date, model.ToWrites(c.slots)))
}

// Reconcile picks up store ids and booking flags for freshly generated slots.
func (c *toggleDayCommand) Reconcile(ctx context.Context) error {
	if !c.generated {
		return nil
	}
	return c.e.reloadMonth(ctx, c.date)
}

func (c *toggleDayCommand) event() (string, events.Mutation) {
	return events.TypeDayToggled, events.Mutation{
		Op:           opToggleWorkingDay,
		Date:         c.date,
		IsWorkingDay: c.working,
		SlotCount:    len(c.slots),
	}
}

type toggleSlotCommand struct {
	dayCommand
	slot   model.TimeSlot
	target model.TimeSlot
	// wholeDay is set when the day's slots exist only locally. Writing just the
	// toggled slot would leave the store with a one-slot day.
	wholeDay bool
	slots    []model.TimeSlot
}

func (c *toggleSlotCommand) Apply() error {
	c.e.mu.Lock()
	defer c.e.mu.Unlock()

	current, ok := c.snapshotLocked()
	if !ok {
		return ErrSlotNotFound
	}
	idx := current.SlotIndex(c.slot.ID)
	if idx < 0 {
		// Ids change once generated slots are stored; the time range does not.
		idx = slotByTime(current.TimeSlots, c.slot.StartTime, c.slot.EndTime)
	}
	if idx < 0 {
		return ErrSlotNotFound
	}
	if c.slot.IsBooked || current.TimeSlots[idx].IsBooked {
		return ErrSlotBooked
	}

	next := current.Clone()
	next.TimeSlots[idx].IsAvailable = !next.TimeSlots[idx].IsAvailable
	c.target = next.TimeSlots[idx]
	c.wholeDay = current.Source == model.SourceGenerated || hasProvisional(current.TimeSlots)
	c.slots = model.CloneSlots(next.TimeSlots)
	c.setLocked(next)
	return nil
}

func (c *toggleSlotCommand) Persist(ctx context.Context) error {
	if c.wholeDay {
		return persistenceError("save_time_slots", c.date, c.e.store.SaveTimeSlots(ctx, c.date, model.ToWrites(c.slots)))
	}
	update := model.SlotUpdate{
		Date:        c.date,
		StartTime:   c.target.StartTime,
		EndTime:     c.target.EndTime,
		IsAvailable: c.target.IsAvailable,
	}
	return persistenceError("update_time_slot", c.date, c.e.store.UpdateTimeSlot(ctx, update))
}

// Reconcile swaps provisional ids for store ids after a whole day was written.
func (c *toggleSlotCommand) Reconcile(ctx context.Context) error {
	if !c.wholeDay {
		return nil
	}
	return c.e.reloadMonth(ctx, c.date)
}

func (c *toggleSlotCommand) event() (string, events.Mutation) {
	return events.TypeSlotToggled, events.Mutation{
		Op:           opToggleTimeSlot,
		Date:         c.date,
		SlotID:       c.slot.ID,
		IsWorkingDay: c.before.IsWorkingDay,
		SlotCount:    len(c.before.TimeSlots),
	}
}

func slotByTime(slots []model.TimeSlot, start, end string) int {
	if start == "" || end == "" {
		return -1
	}
	for i, s := range slots {
		if s.StartTime == start && s.EndTime == end {
			return i
		}
	}
	return -1
}

func hasProvisional(slots []model.TimeSlot) bool {
	for _, s := range slots {
		if s.Provisional {
			return true
		}
	}
	return false
}

type regenerateCommand struct {
	dayCommand
	slots []model.TimeSlot
}

func (c *regenerateCommand) Apply() error {
	c.e.mu.Lock()
	defer c.e.mu.Unlock()

	c.snapshotLocked()
	c.setLocked(model.DayAvailability{
		Date:         c.date,
		IsWorkingDay: true,
		TimeSlots:    model.CloneSlots(c.slots),
		Source:       model.SourceGenerated,
	})
	return nil
}

func (c *regenerateCommand) Persist(ctx context.Context) error {
	exc := model.AvailabilityException{
		Date:        c.date,
		IsAvailable: true,
		UpdatedAt:   c.e.now(),
	}
	if err := c.e.store.SaveException(ctx, exc); err != nil {
		return persistenceError("save_exception", c.date, err)
	}
	if err := c.e.store.DeleteTimeSlotsForDate(ctx, c.date); err != nil {
		return persistenceError("delete_time_slots", c.date, err)
	}
	return persistenceError("save_time_slots", c.date, c.e.store.SaveTimeSlots(ctx, c.date, model.ToWrites(c.slots)))
}

// Reconcile reloads the month around the date so local slots carry store ids.
func (c *regenerateCommand) Reconcile(ctx context.Context) error {
	return c.e.reloadMonth(ctx, c.date)
}

// reloadMonth refetches the month of date, letting the result overwrite date even
// while it is being mutated.
func (e *Engine) reloadMonth(ctx context.Context, date string) error {
	start, end, err := calendar.MonthWindow(date)
	if err != nil {
		return err
	}
	days, err := calendar.DaysInRange(start, end)
	if err != nil {
		return err
	}

	generated, err := e.loadRange(ctx, start, end, days, date)
	if err != nil {
		return err
	}
	e.persistGenerated(ctx, generated)
	return nil
}

func (c *regenerateCommand) event() (string, events.Mutation) {
	return events.TypeDayRegenerated, events.Mutation{
		Op:           opRegenerateDaySlots,
		Date:         c.date,
		IsWorkingDay: true,
		SlotCount:    len(c.slots),
	}
}

// defaultSlotsLocked generates slots for a day forced working, from its template hours
// or the fallback hours when none resolve.
func (e *Engine) defaultSlotsLocked(date string) ([]model.TimeSlot, error) {
	start, end := e.cfg.FallbackStart, e.cfg.FallbackEnd

	idx, err := calendar.TemplateIndexForDate(date)
	if err != nil {
		return nil, model.NewValidationError("date", date, ErrInvalidDate)
	}
	if entry, ok := e.template.Entry(idx); ok && validHours(entry.StartTime, entry.EndTime) {
		start, end = entry.StartTime, entry.EndTime
	} else {
		e.logger.Debug().Err(ErrTemplateMissing).Str("date", date).Int("weekday", idx).Msg("using fallback hours")
	}

	return slots.Generate(start, end, e.settings.SlotDurationMinutes, slots.WithDeterministicIDs(date))
}

func validHours(start, end string) bool {
	c, err := calendar.CompareClock(start, end)
	return err == nil && c < 0
}
