package model

// Booking statuses as reported by the booking service.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCanceled  = "canceled"
	BookingStatusRejected  = "rejected"
)

// BookingDetails is the slice of a booking shown next to a slot.
type BookingDetails struct {
	BookingID   int64  `json:"booking_id"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone,omitempty"`
}

// TimeSlot is a fixed-duration bookable interval within a day.
type TimeSlot struct {
	ID             string          `json:"id"`
	StartTime      string          `json:"start_time"` // "09:00"
	EndTime        string          `json:"end_time"`   // "10:00"
	IsAvailable    bool            `json:"is_available"`
	IsBooked       bool            `json:"is_booked"`
	BookingStatus  string          `json:"booking_status,omitempty"`
	BookingDetails *BookingDetails `json:"booking_details,omitempty"`

	// Provisional marks ids assigned locally that the store has not confirmed yet.
	Provisional bool `json:"provisional,omitempty"`
}

// Bookable reports whether a client may book the slot.
func (s TimeSlot) Bookable() bool {
	return s.IsAvailable && !s.IsBooked
}

// DaySource records how a day's schedule was derived.
type DaySource string

const (
	SourcePersisted DaySource = "persisted"
	SourceGenerated DaySource = "generated"
	SourceMasked    DaySource = "masked" // exception closed the day
	SourceClosed    DaySource = "closed" // template closed the day
	SourceEmpty     DaySource = "empty"  // working, nothing to show
)

// DayAvailability is the resolved schedule for one date. It is derived data:
// it can always be rebuilt from template, exception and stored slots.
type DayAvailability struct {
	Date         string     `json:"date"`
	IsWorkingDay bool       `json:"is_working_day"`
	TimeSlots    []TimeSlot `json:"time_slots"`
	Source       DaySource  `json:"source,omitempty"`
}

// Clone returns a copy that shares no slot storage with d.
func (d DayAvailability) Clone() DayAvailability {
	out := d
	out.TimeSlots = CloneSlots(d.TimeSlots)
	return out
}

// SlotIndex returns the position of the slot with id, or -1.
func (d DayAvailability) SlotIndex(id string) int {
	for i, s := range d.TimeSlots {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// CloneSlots copies a slot list; BookingDetails pointers are shared since they are read-only.
func CloneSlots(slots []TimeSlot) []TimeSlot {
	if slots == nil {
		return []TimeSlot{}
	}
	out := make([]TimeSlot, len(slots))
	copy(out, slots)
	return out
}

// StoredSlot is a slot row as returned by the store, keyed by its date.
type StoredSlot struct {
	TimeSlot
	Date string `json:"date"`
}

// RangeData is the store response for a date range.
type RangeData struct {
	Exceptions []AvailabilityException `json:"exceptions"`
	TimeSlots  []StoredSlot            `json:"time_slots"`
}

// SlotWrite is the payload for saving a day's slots.
type SlotWrite struct {
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

// SlotUpdate is the payload for updating a single slot, keyed by date and times.
type SlotUpdate struct {
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

// ToWrites converts slots into store payloads.
func ToWrites(slots []TimeSlot) []SlotWrite {
	out := make([]SlotWrite, len(slots))
	for i, s := range slots {
		out[i] = SlotWrite{
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			IsAvailable: s.IsAvailable,
		}
	}
	return out
}
