package availability

import (
	"context"
	"strconv"

	"slotkeeper/internal/calendar"
	"slotkeeper/internal/events"
	"slotkeeper/internal/metrics"
	"slotkeeper/internal/model"
	"slotkeeper/internal/slots"
)

const (
	opToggleWorkingDay   = "toggle_working_day"
	opToggleTimeSlot     = "toggle_time_slot"
	opRegenerateDaySlots = "regenerate_day_slots"
)

// MutationResult reports the outcome of a mutation. Err is a *ValidationError, a
// *PersistenceError or one of ErrNotReady, ErrSlotBooked, ErrSlotNotFound.
// RolledBack is set when local state was reverted after a persistence failure.
type MutationResult struct {
	Success    bool
	Err        error
	RolledBack bool
}

// ToggleWorkingDay flips the working status of date. A day turned on without slots
// gets fresh slots from its template hours, replacing rows stored while it was closed,
// and its month is reloaded. A day turned off loses its slots. The override is always
// stored as an exception.
func (e *Engine) ToggleWorkingDay(ctx context.Context, date string) MutationResult {
	if err := validateDate(date); err != nil {
		return MutationResult{Err: err}
	}
	return e.run(ctx, opToggleWorkingDay, date, &toggleDayCommand{dayCommand: dayCommand{e: e, date: date}})
}

// ToggleTimeSlot flips the availability of the slot of date with slot.ID, or with the
// same time range when the id is no longer known. Booked slots are left untouched and
// nothing is written. On a day whose slots were never stored, the whole day is written
// and reloaded so its slots carry store ids.
func (e *Engine) ToggleTimeSlot(ctx context.Context, date string, slot model.TimeSlot) MutationResult {
	if err := validateDate(date); err != nil {
		return MutationResult{Err: err}
	}
	if slot.IsBooked {
		metrics.IncMutation(opToggleTimeSlot, "rejected")
		return MutationResult{Err: ErrSlotBooked}
	}
	return e.run(ctx, opToggleTimeSlot, date, &toggleSlotCommand{
		dayCommand: dayCommand{e: e, date: date},
		slot:       slot,
	})
}

// RegenerateDaySlots replaces every slot of date with freshly generated ones, marks the
// day working and reloads its month so the slots carry store ids.
//
// If the writes succeed but the reload fails, the result carries the reload error and
// the local slots keep their provisional ids.
func (e *Engine) RegenerateDaySlots(ctx context.Context, date, start, end string, durationMinutes int) MutationResult {
	if err := validateDate(date); err != nil {
		return MutationResult{Err: err}
	}
	if durationMinutes <= 0 {
		return MutationResult{Err: model.NewValidationError("duration", strconv.Itoa(durationMinutes), ErrInvalidDuration)}
	}
	c, err := calendar.CompareClock(start, end)
	if err != nil {
		return MutationResult{Err: model.NewValidationError("time_range", start+"-"+end, ErrInvalidTime)}
	}
	if c >= 0 {
		return MutationResult{Err: model.NewValidationError("time_range", start+"-"+end, ErrInvalidRange)}
	}

	generated, err := slots.Generate(start, end, durationMinutes)
	if err != nil {
		return MutationResult{Err: err}
	}

	return e.run(ctx, opRegenerateDaySlots, date, &regenerateCommand{
		dayCommand: dayCommand{e: e, date: date},
		slots:      generated,
	})
}

// run executes m while holding the date lock: apply, persist, roll back on failure when
// configured, then reconcile.
func (e *Engine) run(ctx context.Context, op, date string, m mutation) MutationResult {
	unlock := e.locks.lock(date)
	defer unlock()

	if !e.Ready() {
		metrics.IncMutation(op, "not_ready")
		return MutationResult{Err: ErrNotReady}
	}

	e.beginMutation(date)
	defer e.endMutation(date)

	log := e.logger.With().Str("op", op).Str("date", date).Logger()

	if err := m.Apply(); err != nil {
		metrics.IncMutation(op, "rejected")
		log.Debug().Err(err).Msg("mutation rejected")
		return MutationResult{Err: err}
	}

	if err := m.Persist(ctx); err != nil {
		metrics.IncMutation(op, "error")
		metrics.IncPersistenceError(opOf(err))

		res := MutationResult{Err: err}
		if e.cfg.AutoRollback {
			m.Rollback()
			res.RolledBack = true
			metrics.IncRollback(op)
		}
		log.Error().Err(err).Bool("rolled_back", res.RolledBack).Msg("failed to persist mutation")

		_, payload := m.event()
		payload.RolledBack = res.RolledBack
		payload.Error = err.Error()
		e.publish(events.TypeMutationFailed, date, payload)
		return res
	}

	if r, ok := m.(reconciler); ok {
		if err := r.Reconcile(ctx); err != nil {
			metrics.IncMutation(op, "error")
			log.Error().Err(err).Msg("failed to reload after mutation")
			return MutationResult{Err: err}
		}
	}

	metrics.IncMutation(op, "ok")
	eventType, payload := m.event()
	e.publish(eventType, date, payload)
	log.Debug().Msg("mutation persisted")

	return MutationResult{Success: true}
}

func (e *Engine) beginMutation(date string) {
	e.mu.Lock()
	e.inflight[date]++
	e.mu.Unlock()
}

func (e *Engine) endMutation(date string) {
	e.mu.Lock()
	e.inflight[date]--
	if e.inflight[date] <= 0 {
		delete(e.inflight, date)
	}
	e.mu.Unlock()
}

func validateDate(date string) error {
	if _, err := calendar.ParseDate(date); err != nil {
		return model.NewValidationError("date", date, ErrInvalidDate)
	}
	return nil
}
