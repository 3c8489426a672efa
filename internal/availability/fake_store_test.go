package availability

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"

	"slotkeeper/internal/model"
)

// fakeStore is an in-memory Store with per-operation failure injection.
type fakeStore struct {
	mu         sync.Mutex
	hours      []model.WorkingHours
	settings   []model.Settings
	exceptions map[string]model.AvailabilityException
	slots      map[string][]model.TimeSlot
	nextID     int
	fail       map[string]error
	calls      []string
	updates    []model.SlotUpdate

	// When set, LoadTimeSlotsForDateRange snapshots its data, signals rangeStarted
	// and waits on rangeRelease before returning.
	rangeStarted chan struct{}
	rangeRelease chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hours:      weekdayTemplate(),
		settings:   []model.Settings{hourly()},
		exceptions: make(map[string]model.AvailabilityException),
		slots:      make(map[string][]model.TimeSlot),
		fail:       make(map[string]error),
	}
}

func (s *fakeStore) record(op string) error {
	s.calls = append(s.calls, op)
	return s.fail[op]
}

func (s *fakeStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

func (s *fakeStore) called(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (s *fakeStore) LoadWorkingHours(context.Context) ([]model.WorkingHours, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("LoadWorkingHours"); err != nil {
		return nil, err
	}
	return append([]model.WorkingHours(nil), s.hours...), nil
}

func (s *fakeStore) SaveWorkingHours(_ context.Context, hours []model.WorkingHours) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SaveWorkingHours"); err != nil {
		return err
	}
	s.hours = append([]model.WorkingHours(nil), hours...)
	return nil
}

func (s *fakeStore) LoadSettings(context.Context) ([]model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("LoadSettings"); err != nil {
		return nil, err
	}
	return append([]model.Settings(nil), s.settings...), nil
}

func (s *fakeStore) SaveSettings(_ context.Context, settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SaveSettings"); err != nil {
		return err
	}
	s.settings = []model.Settings{settings}
	return nil
}

func (s *fakeStore) LoadTimeSlotsForDateRange(_ context.Context, startDate, endDate string) (*model.RangeData, error) {
	s.mu.Lock()
	if err := s.record("LoadTimeSlotsForDateRange"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	data := &model.RangeData{}
	for date, exc := range s.exceptions {
		if date >= startDate && date <= endDate {
			data.Exceptions = append(data.Exceptions, exc)
		}
	}
	for date, daySlots := range s.slots {
		if date < startDate || date > endDate {
			continue
		}
		for _, slot := range daySlots {
			data.TimeSlots = append(data.TimeSlots, model.StoredSlot{TimeSlot: slot, Date: date})
		}
	}
	started, release := s.rangeStarted, s.rangeRelease
	s.mu.Unlock()

	if release != nil {
		started <- struct{}{}
		<-release
	}
	return data, nil
}

func (s *fakeStore) SaveException(_ context.Context, exc model.AvailabilityException) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SaveException"); err != nil {
		return err
	}
	s.exceptions[exc.Date] = exc
	return nil
}

func (s *fakeStore) SaveTimeSlots(_ context.Context, date string, writes []model.SlotWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("SaveTimeSlots"); err != nil {
		return err
	}
	for _, w := range writes {
		s.upsertLocked(date, w.StartTime, w.EndTime, w.IsAvailable)
	}
	return nil
}

func (s *fakeStore) UpdateTimeSlot(_ context.Context, u model.SlotUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("UpdateTimeSlot"); err != nil {
		return err
	}
	s.updates = append(s.updates, u)
	s.upsertLocked(u.Date, u.StartTime, u.EndTime, u.IsAvailable)
	return nil
}

func (s *fakeStore) DeleteTimeSlotsForDate(_ context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("DeleteTimeSlotsForDate"); err != nil {
		return err
	}
	delete(s.slots, date)
	return nil
}

func (s *fakeStore) upsertLocked(date, start, end string, available bool) {
	for i, slot := range s.slots[date] {
		if slot.StartTime == start && slot.EndTime == end {
			s.slots[date][i].IsAvailable = available
			return
		}
	}
	s.nextID++
	s.slots[date] = append(s.slots[date], model.TimeSlot{
		ID:          fmt.Sprintf("db-%d", s.nextID),
		StartTime:   start,
		EndTime:     end,
		IsAvailable: available,
	})
	sort.Slice(s.slots[date], func(i, j int) bool {
		return s.slots[date][i].StartTime < s.slots[date][j].StartTime
	})
}

// mockStore records calls with testify/mock.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) LoadWorkingHours(ctx context.Context) ([]model.WorkingHours, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.WorkingHours), args.Error(1)
}

func (m *mockStore) SaveWorkingHours(ctx context.Context, hours []model.WorkingHours) error {
	return m.Called(ctx, hours).Error(0)
}

func (m *mockStore) LoadSettings(ctx context.Context) ([]model.Settings, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Settings), args.Error(1)
}

func (m *mockStore) SaveSettings(ctx context.Context, settings model.Settings) error {
	return m.Called(ctx, settings).Error(0)
}

func (m *mockStore) LoadTimeSlotsForDateRange(ctx context.Context, startDate, endDate string) (*model.RangeData, error) {
	args := m.Called(ctx, startDate, endDate)
	data, _ := args.Get(0).(*model.RangeData)
	return data, args.Error(1)
}

func (m *mockStore) SaveException(ctx context.Context, exc model.AvailabilityException) error {
	return m.Called(ctx, exc).Error(0)
}

func (m *mockStore) SaveTimeSlots(ctx context.Context, date string, slots []model.SlotWrite) error {
	return m.Called(ctx, date, slots).Error(0)
}

func (m *mockStore) UpdateTimeSlot(ctx context.Context, update model.SlotUpdate) error {
	return m.Called(ctx, update).Error(0)
}

func (m *mockStore) DeleteTimeSlotsForDate(ctx context.Context, date string) error {
	return m.Called(ctx, date).Error(0)
}
