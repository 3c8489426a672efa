package availability

import (
	"sort"

	"slotkeeper/internal/calendar"
	"slotkeeper/internal/model"
)

// Patch maps dates to freshly resolved days. It is merged into the engine state,
// never used to replace it.
type Patch map[string]model.DayAvailability

// ProcessDays resolves every day against prefetched exception and slot maps.
func ProcessDays(
	days []string,
	tpl model.Template,
	settings model.Settings,
	exceptionsByDate map[string]model.AvailabilityException,
	slotsByDate map[string][]model.TimeSlot,
) (Patch, error) {
	patch := make(Patch, len(days))
	for _, date := range days {
		var exc *model.AvailabilityException
		if e, ok := exceptionsByDate[date]; ok {
			exc = &e
		}

		day, err := Resolve(date, tpl, settings, exc, slotsByDate[date])
		if err != nil {
			return nil, err
		}
		patch[date] = day
	}
	return patch, nil
}

// GroupRange indexes a store response by date. Slot times are normalized to HH:mm
// and each day's slots are ordered by start time.
func GroupRange(data *model.RangeData) (map[string]model.AvailabilityException, map[string][]model.TimeSlot) {
	exceptions := make(map[string]model.AvailabilityException)
	slotsByDate := make(map[string][]model.TimeSlot)
	if data == nil {
		return exceptions, slotsByDate
	}

	for _, exc := range data.Exceptions {
		exceptions[exc.Date] = exc
	}

	for _, stored := range data.TimeSlots {
		s := stored.TimeSlot
		if v, err := calendar.NormalizeClock(s.StartTime); err == nil {
			s.StartTime = v
		}
		if v, err := calendar.NormalizeClock(s.EndTime); err == nil {
			s.EndTime = v
		}
		s.Provisional = false
		slotsByDate[stored.Date] = append(slotsByDate[stored.Date], s)
	}

	for date := range slotsByDate {
		daySlots := slotsByDate[date]
		sort.SliceStable(daySlots, func(i, j int) bool {
			c, err := calendar.CompareClock(daySlots[i].StartTime, daySlots[j].StartTime)
			return err == nil && c < 0
		})
	}

	return exceptions, slotsByDate
}
