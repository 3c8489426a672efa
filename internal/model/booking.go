package model

import (
	"time"

	"slotkeeper/internal/calendar"
)

// Booking is owned by the booking service; the engine only reads it to flag slots as booked.
type Booking struct {
	ID          int64     `json:"id"`
	ProviderID  int64     `json:"provider_id"`
	Date        string    `json:"date"`       // YYYY-MM-DD
	StartTime   string    `json:"start_time"` // "10:00"
	EndTime     string    `json:"end_time"`   // "11:00"
	ClientName  string    `json:"client_name"`
	ClientPhone string    `json:"client_phone"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsActive reports whether the booking still holds its time.
func (b *Booking) IsActive() bool {
	return b.Status != BookingStatusCanceled && b.Status != BookingStatusRejected
}

// Duration returns the booked length; malformed times yield zero.
func (b *Booking) Duration() time.Duration {
	start, err := calendar.ParseClock(b.StartTime)
	if err != nil {
		return 0
	}
	end, err := calendar.ParseClock(b.EndTime)
	if err != nil {
		return 0
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

// Overlaps reports whether the booking intersects [start, end) on date.
func (b *Booking) Overlaps(date, start, end string) bool {
	if b.Date != date {
		return false
	}
	bs, err := calendar.ParseClock(b.StartTime)
	if err != nil {
		return false
	}
	be, err := calendar.ParseClock(b.EndTime)
	if err != nil {
		return false
	}
	ss, err := calendar.ParseClock(start)
	if err != nil {
		return false
	}
	se, err := calendar.ParseClock(end)
	if err != nil {
		return false
	}
	return bs.Before(se) && ss.Before(be)
}

// Details projects the booking onto the fields a slot carries.
func (b *Booking) Details() *BookingDetails {
	return &BookingDetails{
		BookingID:   b.ID,
		ClientName:  b.ClientName,
		ClientPhone: b.ClientPhone,
	}
}

// MarkBooked flags every slot of date covered by an active booking.
func MarkBooked(date string, slots []TimeSlot, bookings []Booking) {
	for i := range slots {
		for j := range bookings {
			b := &bookings[j]
			if !b.IsActive() || !b.Overlaps(date, slots[i].StartTime, slots[i].EndTime) {
				continue
			}
			slots[i].IsBooked = true
			slots[i].BookingStatus = b.Status
			slots[i].BookingDetails = b.Details()
			break
		}
	}
}
