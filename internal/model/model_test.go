package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBooking_Duration(t *testing.T) {
	b := Booking{StartTime: "10:00", EndTime: "12:30"}
	assert.Equal(t, 2*time.Hour+30*time.Minute, b.Duration())

	broken := Booking{StartTime: "12:00", EndTime: "10:00"}
	assert.Equal(t, time.Duration(0), broken.Duration())
}

func TestBooking_Overlaps(t *testing.T) {
	existing := Booking{Date: "2026-01-15", StartTime: "10:00", EndTime: "14:00"}

	assert.False(t, existing.Overlaps("2026-01-15", "08:00", "10:00"), "before")
	assert.False(t, existing.Overlaps("2026-01-15", "14:00", "16:00"), "after")
	assert.True(t, existing.Overlaps("2026-01-15", "12:00", "16:00"), "starts during")
	assert.True(t, existing.Overlaps("2026-01-15", "11:00", "13:00"), "contained")
	assert.False(t, existing.Overlaps("2026-01-16", "11:00", "13:00"), "other date")
}

func TestBooking_IsActive(t *testing.T) {
	assert.True(t, (&Booking{Status: BookingStatusPending}).IsActive())
	assert.True(t, (&Booking{Status: BookingStatusConfirmed}).IsActive())
	assert.False(t, (&Booking{Status: BookingStatusCanceled}).IsActive())
	assert.False(t, (&Booking{Status: BookingStatusRejected}).IsActive())
}

func TestMarkBooked(t *testing.T) {
	slots := []TimeSlot{
		{ID: "a", StartTime: "09:00", EndTime: "10:00", IsAvailable: true},
		{ID: "b", StartTime: "10:00", EndTime: "11:00", IsAvailable: true},
		{ID: "c", StartTime: "11:00", EndTime: "12:00", IsAvailable: true},
	}
	bookings := []Booking{
		{ID: 7, Date: "2026-01-15", StartTime: "10:00", EndTime: "11:00", ClientName: "Ann", Status: BookingStatusConfirmed},
		{ID: 8, Date: "2026-01-15", StartTime: "11:00", EndTime: "12:00", Status: BookingStatusCanceled},
	}

	MarkBooked("2026-01-15", slots, bookings)

	assert.False(t, slots[0].IsBooked)
	assert.True(t, slots[1].IsBooked)
	assert.Equal(t, BookingStatusConfirmed, slots[1].BookingStatus)
	assert.Equal(t, int64(7), slots[1].BookingDetails.BookingID)
	assert.False(t, slots[2].IsBooked, "canceled bookings free the slot")
	assert.False(t, slots[1].Bookable())
}

func TestTemplate_Validate(t *testing.T) {
	assert.NoError(t, DefaultTemplate("09:00", "17:00").Validate())

	short := DefaultTemplate("09:00", "17:00")[:6]
	assert.Error(t, short.Validate())

	dup := DefaultTemplate("09:00", "17:00")
	dup[6].Weekday = 0
	assert.Error(t, dup.Validate())

	inverted := DefaultTemplate("09:00", "17:00")
	inverted[2].StartTime = "18:00"
	assert.Error(t, inverted.Validate())

	// Closed days are not checked for hours.
	closed := DefaultTemplate("09:00", "17:00")
	closed[6].StartTime = "bogus"
	assert.NoError(t, closed.Validate())
}

func TestTemplate_Entry(t *testing.T) {
	tpl := DefaultTemplate("09:00", "17:00")

	wed, ok := tpl.Entry(2)
	assert.True(t, ok)
	assert.True(t, wed.IsWorking)

	sun, ok := tpl.Entry(6)
	assert.True(t, ok)
	assert.False(t, sun.IsWorking)

	_, ok = Template{}.Entry(3)
	assert.False(t, ok)
}

func TestDayAvailability_Clone(t *testing.T) {
	day := DayAvailability{
		Date:      "2026-01-15",
		TimeSlots: []TimeSlot{{ID: "a", IsAvailable: true}},
	}
	cp := day.Clone()
	cp.TimeSlots[0].IsAvailable = false

	assert.True(t, day.TimeSlots[0].IsAvailable)
	assert.Equal(t, 0, day.SlotIndex("a"))
	assert.Equal(t, -1, day.SlotIndex("zz"))
}
