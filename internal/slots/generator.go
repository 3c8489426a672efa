package slots

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"slotkeeper/internal/calendar"
	"slotkeeper/internal/model"
)

// slotNamespace seeds deterministic slot ids.
var slotNamespace = uuid.MustParse("6f1c5d0e-2b7a-4c55-9a43-0d7b8e1f2a90")

type options struct {
	idFor func(index int) string
}

// Option tunes Generate.
type Option func(*options)

// WithDeterministicIDs derives ids from date and slot index so repeated generation
// of the same day yields the same ids.
func WithDeterministicIDs(date string) Option {
	return func(o *options) {
		o.idFor = func(index int) string {
			return DeterministicID(date, index)
		}
	}
}

// DeterministicID returns the id WithDeterministicIDs assigns to a slot.
func DeterministicID(date string, index int) string {
	return uuid.NewSHA1(slotNamespace, []byte(fmt.Sprintf("%s#%d", date, index))).String()
}

// Generate produces contiguous slots of durationMinutes from start, dropping any
// trailing partial slot. An empty or inverted range yields no slots.
func Generate(start, end string, durationMinutes int, opts ...Option) ([]model.TimeSlot, error) {
	if durationMinutes <= 0 {
		return nil, model.NewValidationError("duration", strconv.Itoa(durationMinutes), model.ErrInvalidDuration)
	}

	o := options{idFor: func(int) string { return uuid.NewString() }}
	for _, opt := range opts {
		opt(&o)
	}

	startTime, err := calendar.ParseClock(start)
	if err != nil {
		return nil, model.NewValidationError("start_time", start, fmt.Errorf("%w: %v", model.ErrInvalidTime, err))
	}
	endTime, err := calendar.ParseClock(end)
	if err != nil {
		return nil, model.NewValidationError("end_time", end, fmt.Errorf("%w: %v", model.ErrInvalidTime, err))
	}

	slotDuration := time.Duration(durationMinutes) * time.Minute
	result := make([]model.TimeSlot, 0)

	for cursor := startTime; !cursor.Add(slotDuration).After(endTime); cursor = cursor.Add(slotDuration) {
		result = append(result, model.TimeSlot{
			ID:          o.idFor(len(result)),
			StartTime:   calendar.FormatClock(cursor),
			EndTime:     calendar.FormatClock(cursor.Add(slotDuration)),
			IsAvailable: true,
			Provisional: true,
		})
	}

	return result, nil
}

// Available returns only slots a client may book.
func Available(slots []model.TimeSlot) []model.TimeSlot {
	available := make([]model.TimeSlot, 0, len(slots))
	for _, s := range slots {
		if s.Bookable() {
			available = append(available, s)
		}
	}
	return available
}

// FindConsecutive groups bookable slots that touch end-to-start.
func FindConsecutive(slots []model.TimeSlot) [][]model.TimeSlot {
	available := Available(slots)
	if len(available) == 0 {
		return nil
	}

	sort.SliceStable(available, func(i, j int) bool {
		c, _ := calendar.CompareClock(available[i].StartTime, available[j].StartTime)
		return c < 0
	})

	var groups [][]model.TimeSlot
	current := []model.TimeSlot{available[0]}

	for i := 1; i < len(available); i++ {
		if sameClock(available[i].StartTime, current[len(current)-1].EndTime) {
			current = append(current, available[i])
		} else {
			groups = append(groups, current)
			current = []model.TimeSlot{available[i]}
		}
	}
	groups = append(groups, current)

	return groups
}

// CanBookConsecutive checks if count consecutive bookable slots start at start.
func CanBookConsecutive(slots []model.TimeSlot, start string, count int) bool {
	if count <= 0 {
		return false
	}

	startIdx := -1
	for i, s := range slots {
		if sameClock(s.StartTime, start) {
			startIdx = i
			break
		}
	}

	if startIdx < 0 || startIdx+count > len(slots) {
		return false
	}

	for i := 0; i < count; i++ {
		idx := startIdx + i
		if !slots[idx].Bookable() {
			return false
		}
		if i > 0 && !sameClock(slots[idx].StartTime, slots[idx-1].EndTime) {
			return false
		}
	}

	return true
}

// DurationOptions lists bookable lengths in minutes for a booking starting at start.
func DurationOptions(slots []model.TimeSlot, start string, slotMinutes int) []int {
	startIdx := -1
	for i, s := range slots {
		if sameClock(s.StartTime, start) && s.Bookable() {
			startIdx = i
			break
		}
	}

	if startIdx < 0 {
		return nil
	}

	maxSlots := 0
	for i := startIdx; i < len(slots); i++ {
		if !slots[i].Bookable() {
			break
		}
		if i > startIdx && !sameClock(slots[i].StartTime, slots[i-1].EndTime) {
			break
		}
		maxSlots++
	}

	var durations []int
	for i := 1; i <= maxSlots; i++ {
		durations = append(durations, i*slotMinutes)
	}

	return durations
}

func sameClock(a, b string) bool {
	c, err := calendar.CompareClock(a, b)
	return err == nil && c == 0
}
