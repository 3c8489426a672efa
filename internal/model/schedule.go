package model

import (
	"fmt"
	"time"
)

// WorkingHours is one weekday of the weekly template.
type WorkingHours struct {
	Weekday   int    `json:"weekday"`    // 0-6 (Monday-Sunday)
	StartTime string `json:"start_time"` // "09:00"
	EndTime   string `json:"end_time"`   // "17:00"
	IsWorking bool   `json:"is_working"`
}

// Template is the 7-entry weekly default, one entry per weekday.
type Template []WorkingHours

// FallbackHours apply when a day is forced working but no template entry resolves.
var FallbackHours = struct {
	StartTime string
	EndTime   string
}{
	StartTime: "09:00",
	EndTime:   "17:00",
}

// Entry returns the template entry for a weekday index.
func (t Template) Entry(weekday int) (WorkingHours, bool) {
	for _, wh := range t {
		if wh.Weekday == weekday {
			return wh, true
		}
	}
	return WorkingHours{}, false
}

// Validate checks the template invariants: exactly 7 entries, one per weekday,
// start before end on working days.
func (t Template) Validate() error {
	if len(t) != 7 {
		return fmt.Errorf("template must have 7 entries, got %d", len(t))
	}

	seen := make(map[int]bool, 7)
	for i, wh := range t {
		if wh.Weekday < 0 || wh.Weekday > 6 {
			return fmt.Errorf("template[%d]: weekday %d out of range 0-6", i, wh.Weekday)
		}
		if seen[wh.Weekday] {
			return fmt.Errorf("template[%d]: duplicate weekday %d", i, wh.Weekday)
		}
		seen[wh.Weekday] = true

		if !wh.IsWorking {
			continue
		}
		start, err := time.Parse("15:04", wh.StartTime)
		if err != nil {
			return fmt.Errorf("template[%d]: invalid start_time '%s', expected HH:MM", i, wh.StartTime)
		}
		end, err := time.Parse("15:04", wh.EndTime)
		if err != nil {
			return fmt.Errorf("template[%d]: invalid end_time '%s', expected HH:MM", i, wh.EndTime)
		}
		if !end.After(start) {
			return fmt.Errorf("template[%d]: end_time must be after start_time", i)
		}
	}
	return nil
}

// DefaultTemplate is provisioned when a provider has no template yet: Monday-Friday working.
func DefaultTemplate(start, end string) Template {
	t := make(Template, 7)
	for i := range t {
		t[i] = WorkingHours{
			Weekday:   i,
			StartTime: start,
			EndTime:   end,
			IsWorking: i < 5,
		}
	}
	return t
}

// Settings holds provider-wide slot parameters.
type Settings struct {
	SlotDurationMinutes int `json:"slot_duration_minutes"`
	AdvanceBookingDays  int `json:"advance_booking_days"`
}

// DefaultSettings is provisioned when a provider has no settings row.
func DefaultSettings() Settings {
	return Settings{
		SlotDurationMinutes: 60,
		AdvanceBookingDays:  30,
	}
}

// AvailabilityException overrides the template for a single date.
type AvailabilityException struct {
	Date        string    `json:"date"` // YYYY-MM-DD
	IsAvailable bool      `json:"is_available"`
	Reason      string    `json:"reason,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}
