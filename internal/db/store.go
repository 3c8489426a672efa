package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"time"

	"slotkeeper/internal/calendar"
	"slotkeeper/internal/model"
)

// Store is the persistence of a single provider. It satisfies availability.Store.
type Store struct {
	db         *DB
	providerID int64
}

// ProviderStore returns the store scoped to providerID.
func (db *DB) ProviderStore(providerID int64) *Store {
	return &Store{db: db, providerID: providerID}
}

// LoadWorkingHours returns the provider's weekly template, Monday first.
func (s *Store) LoadWorkingHours(ctx context.Context) ([]model.WorkingHours, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day_of_week, start_time, end_time, is_working
		FROM working_hours
		WHERE provider_id = ?`,
		s.providerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query working hours: %w", err)
	}
	defer rows.Close()

	var hours []model.WorkingHours
	for rows.Next() {
		var (
			wh  model.WorkingHours
			dow int
		)
		if err := rows.Scan(&dow, &wh.StartTime, &wh.EndTime, &wh.IsWorking); err != nil {
			return nil, err
		}
		wh.Weekday = calendar.FromStoreWeekday(dow)
		hours = append(hours, wh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hours, func(i, j int) bool { return hours[i].Weekday < hours[j].Weekday })
	return hours, nil
}

// SaveWorkingHours upserts every template entry in one transaction.
func (s *Store) SaveWorkingHours(ctx context.Context, hours []model.WorkingHours) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now()
	for _, wh := range hours {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO working_hours (provider_id, day_of_week, start_time, end_time, is_working, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(provider_id, day_of_week) DO UPDATE SET
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				is_working = excluded.is_working,
				updated_at = excluded.updated_at`,
			s.providerID, calendar.ToStoreWeekday(wh.Weekday), wh.StartTime, wh.EndTime, wh.IsWorking, now, now,
		)
		if err != nil {
			return fmt.Errorf("save working hours for weekday %d: %w", wh.Weekday, err)
		}
	}
	return tx.Commit()
}

// LoadSettings returns zero or one settings row.
func (s *Store) LoadSettings(ctx context.Context) ([]model.Settings, error) {
	var st model.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT slot_duration_minutes, advance_booking_days
		FROM provider_settings
		WHERE provider_id = ?`,
		s.providerID,
	).Scan(&st.SlotDurationMinutes, &st.AdvanceBookingDays)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	return []model.Settings{st}, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings model.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_settings (provider_id, slot_duration_minutes, advance_booking_days, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider_id) DO UPDATE SET
			slot_duration_minutes = excluded.slot_duration_minutes,
			advance_booking_days = excluded.advance_booking_days,
			updated_at = excluded.updated_at`,
		s.providerID, settings.SlotDurationMinutes, settings.AdvanceBookingDays, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// LoadTimeSlotsForDateRange returns exceptions and slots of [startDate, endDate].
// Slots covered by an active booking come back flagged as booked.
func (s *Store) LoadTimeSlotsForDateRange(ctx context.Context, startDate, endDate string) (*model.RangeData, error) {
	data := &model.RangeData{}

	exceptions, err := s.listExceptions(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}
	data.Exceptions = exceptions

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, start_time, end_time, is_available
		FROM time_slots
		WHERE provider_id = ? AND date >= ? AND date <= ?
		ORDER BY date, start_time`,
		s.providerID, startDate, endDate,
	)
	if err != nil {
		return nil, fmt.Errorf("query time slots: %w", err)
	}
	defer rows.Close()

	byDate := make(map[string][]model.TimeSlot)
	var dates []string
	for rows.Next() {
		var (
			id   int64
			date string
			slot model.TimeSlot
		)
		if err := rows.Scan(&id, &date, &slot.StartTime, &slot.EndTime, &slot.IsAvailable); err != nil {
			return nil, err
		}
		slot.ID = strconv.FormatInt(id, 10)
		if _, ok := byDate[date]; !ok {
			dates = append(dates, date)
		}
		byDate[date] = append(byDate[date], slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	bookings, err := s.db.ListBookings(ctx, s.providerID, startDate, endDate)
	if err != nil {
		return nil, err
	}

	for _, date := range dates {
		daySlots := byDate[date]
		model.MarkBooked(date, daySlots, bookings)
		for _, slot := range daySlots {
			data.TimeSlots = append(data.TimeSlots, model.StoredSlot{TimeSlot: slot, Date: date})
		}
	}

	return data, nil
}

func (s *Store) listExceptions(ctx context.Context, startDate, endDate string) ([]model.AvailabilityException, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, is_available, reason, updated_at
		FROM availability_exceptions
		WHERE provider_id = ? AND date >= ? AND date <= ?
		ORDER BY date`,
		s.providerID, startDate, endDate,
	)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	defer rows.Close()

	var exceptions []model.AvailabilityException
	for rows.Next() {
		var (
			exc    model.AvailabilityException
			reason sql.NullString
		)
		if err := rows.Scan(&exc.Date, &exc.IsAvailable, &reason, &exc.UpdatedAt); err != nil {
			return nil, err
		}
		if reason.Valid {
			exc.Reason = reason.String
		}
		exceptions = append(exceptions, exc)
	}
	return exceptions, rows.Err()
}

// SaveException creates or updates the exception for its date.
func (s *Store) SaveException(ctx context.Context, exc model.AvailabilityException) error {
	now := exc.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO availability_exceptions (provider_id, date, is_available, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_id, date) DO UPDATE SET
			is_available = excluded.is_available,
			reason = excluded.reason,
			updated_at = excluded.updated_at`,
		s.providerID, exc.Date, exc.IsAvailable, nullString(exc.Reason), now, now,
	)
	if err != nil {
		return fmt.Errorf("save exception: %w", err)
	}
	return nil
}

// SaveTimeSlots upserts the slots of date in one transaction.
func (s *Store) SaveTimeSlots(ctx context.Context, date string, slots []model.SlotWrite) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now()
	for _, slot := range slots {
		if err := upsertSlot(ctx, tx, s.providerID, date, slot.StartTime, slot.EndTime, slot.IsAvailable, now); err != nil {
			return fmt.Errorf("save time slot %s %s: %w", date, slot.StartTime, err)
		}
	}
	return tx.Commit()
}

func (s *Store) UpdateTimeSlot(ctx context.Context, update model.SlotUpdate) error {
	if err := upsertSlot(ctx, s.db, s.providerID, update.Date, update.StartTime, update.EndTime, update.IsAvailable, time.Now()); err != nil {
		return fmt.Errorf("update time slot %s %s: %w", update.Date, update.StartTime, err)
	}
	return nil
}

func (s *Store) DeleteTimeSlotsForDate(ctx context.Context, date string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM time_slots WHERE provider_id = ? AND date = ?",
		s.providerID, date,
	)
	if err != nil {
		return fmt.Errorf("delete time slots for %s: %w", date, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertSlot(ctx context.Context, ex execer, providerID int64, date, start, end string, available bool, now time.Time) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO time_slots (provider_id, date, start_time, end_time, is_available, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_id, date, start_time, end_time) DO UPDATE SET
			is_available = excluded.is_available,
			updated_at = excluded.updated_at`,
		providerID, date, start, end, available, now, now,
	)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
