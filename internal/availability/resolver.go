package availability

import (
	"fmt"
	"strconv"

	"slotkeeper/internal/calendar"
	"slotkeeper/internal/model"
	"slotkeeper/internal/slots"
)

// Resolve merges the weekly template, an optional exception and the persisted slots
// of one date into its day availability.
//
// An exception closing the day hides persisted slots without deleting them. Persisted
// slots always win over generated ones so bookings are never replaced. A weekday with
// no template entry counts as non-working.
func Resolve(date string, tpl model.Template, settings model.Settings, exc *model.AvailabilityException, persisted []model.TimeSlot) (model.DayAvailability, error) {
	idx, err := calendar.TemplateIndexForDate(date)
	if err != nil {
		return model.DayAvailability{}, model.NewValidationError("date", date, ErrInvalidDate)
	}
	if settings.SlotDurationMinutes <= 0 {
		return model.DayAvailability{}, model.NewValidationError(
			"slot_duration_minutes", strconv.Itoa(settings.SlotDurationMinutes), ErrInvalidDuration)
	}

	entry, found := tpl.Entry(idx)
	templateWorking := found && entry.IsWorking

	day := model.DayAvailability{Date: date}

	switch {
	case exc != nil && !exc.IsAvailable:
		day.TimeSlots = []model.TimeSlot{}
		day.Source = model.SourceMasked

	case exc != nil:
		day.IsWorkingDay = true
		switch {
		case len(persisted) > 0:
			day.TimeSlots = model.CloneSlots(persisted)
			day.Source = model.SourcePersisted
		case templateWorking:
			generated, err := generateFor(date, entry, settings)
			if err != nil {
				return model.DayAvailability{}, err
			}
			day.TimeSlots = generated
			day.Source = model.SourceGenerated
		default:
			day.TimeSlots = []model.TimeSlot{}
			day.Source = model.SourceEmpty
		}

	case templateWorking:
		day.IsWorkingDay = true
		if len(persisted) > 0 {
			day.TimeSlots = model.CloneSlots(persisted)
			day.Source = model.SourcePersisted
			break
		}
		generated, err := generateFor(date, entry, settings)
		if err != nil {
			return model.DayAvailability{}, err
		}
		day.TimeSlots = generated
		day.Source = model.SourceGenerated
		if len(generated) == 0 {
			day.Source = model.SourceEmpty
		}

	default:
		// Closed by template: keep stored slots for display only.
		day.TimeSlots = model.CloneSlots(persisted)
		day.Source = model.SourceClosed
	}

	return day, nil
}

func generateFor(date string, entry model.WorkingHours, settings model.Settings) ([]model.TimeSlot, error) {
	generated, err := slots.Generate(entry.StartTime, entry.EndTime, settings.SlotDurationMinutes, slots.WithDeterministicIDs(date))
	if err != nil {
		return nil, fmt.Errorf("generate slots for %s: %w", date, err)
	}
	return generated, nil
}
