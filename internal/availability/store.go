package availability

import (
	"context"

	"slotkeeper/internal/model"
)

// Store is the persistence collaborator of one provider's engine.
// Weekday values crossing this interface are template indexes (Monday=0).
type Store interface {
	LoadWorkingHours(ctx context.Context) ([]model.WorkingHours, error)
	SaveWorkingHours(ctx context.Context, hours []model.WorkingHours) error
	LoadSettings(ctx context.Context) ([]model.Settings, error)
	SaveSettings(ctx context.Context, settings model.Settings) error

	LoadTimeSlotsForDateRange(ctx context.Context, startDate, endDate string) (*model.RangeData, error)

	// SaveException upserts by date.
	SaveException(ctx context.Context, exc model.AvailabilityException) error
	// SaveTimeSlots upserts by (date, start_time, end_time).
	SaveTimeSlots(ctx context.Context, date string, slots []model.SlotWrite) error
	// UpdateTimeSlot upserts by (date, start_time, end_time).
	UpdateTimeSlot(ctx context.Context, update model.SlotUpdate) error
	DeleteTimeSlotsForDate(ctx context.Context, date string) error
}
