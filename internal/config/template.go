package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"slotkeeper/internal/model"
)

// ProviderConfig represents a single provider configuration.
type ProviderConfig struct {
	ID       int             `yaml:"id"`
	Name     string          `yaml:"name"`
	IsActive bool            `yaml:"is_active"`
	Schedule *ScheduleConfig `yaml:"schedule,omitempty"`
	DaysOff  []int           `yaml:"days_off,omitempty"` // 1=Mon, 7=Sun
}

// ScheduleConfig represents default weekly hours and slot settings.
type ScheduleConfig struct {
	StartTime           string `yaml:"start_time"`            // "09:00"
	EndTime             string `yaml:"end_time"`              // "17:00"
	SlotDurationMinutes int    `yaml:"slot_duration_minutes"` // 60
	AdvanceBookingDays  int    `yaml:"advance_booking_days"`  // 30
}

// HolidayConfig represents a holiday configuration.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-01-01"
	Name string `yaml:"name"`
}

// DefaultsConfig represents global default settings.
type DefaultsConfig struct {
	Schedule *ScheduleConfig `yaml:"schedule"`
	DaysOff  []int           `yaml:"days_off"` // 1=Mon, 7=Sun
}

// TemplateConfig is the root configuration for template.yaml.
type TemplateConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
	Defaults  DefaultsConfig   `yaml:"defaults"`
	Holidays  []HolidayConfig  `yaml:"holidays"`
}

// LoadTemplateConfig loads and validates template configuration from YAML file.
func LoadTemplateConfig(path string) (*TemplateConfig, error) {
	if path == "" {
		path = "configs/template.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template config: %w", err)
	}
	return ParseTemplateConfig(data)
}

// ParseTemplateConfig parses and validates template.yaml contents.
func ParseTemplateConfig(data []byte) (*TemplateConfig, error) {
	var cfg TemplateConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse template config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate template config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *TemplateConfig) Validate() error {
	ids := make(map[int]bool)

	for i, p := range c.Providers {
		if p.ID <= 0 {
			return fmt.Errorf("provider[%d]: id must be positive, got %d", i, p.ID)
		}
		if ids[p.ID] {
			return fmt.Errorf("provider[%d]: duplicate id %d", i, p.ID)
		}
		ids[p.ID] = true

		if p.Schedule != nil {
			if err := validateSchedule(p.Schedule, fmt.Sprintf("provider[%d].schedule", i)); err != nil {
				return err
			}
		}
		if err := validateDaysOff(p.DaysOff, fmt.Sprintf("provider[%d].days_off", i)); err != nil {
			return err
		}
	}

	if c.Defaults.Schedule != nil {
		if err := validateSchedule(c.Defaults.Schedule, "defaults.schedule"); err != nil {
			return err
		}
	}
	if err := validateDaysOff(c.Defaults.DaysOff, "defaults.days_off"); err != nil {
		return err
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse("2006-01-02", h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	return nil
}

func validateSchedule(s *ScheduleConfig, prefix string) error {
	if s.StartTime == "" {
		return fmt.Errorf("%s.start_time is required", prefix)
	}
	if s.EndTime == "" {
		return fmt.Errorf("%s.end_time is required", prefix)
	}

	startTime, err := time.Parse("15:04", s.StartTime)
	if err != nil {
		return fmt.Errorf("%s.start_time: invalid format '%s', expected HH:MM", prefix, s.StartTime)
	}

	endTime, err := time.Parse("15:04", s.EndTime)
	if err != nil {
		return fmt.Errorf("%s.end_time: invalid format '%s', expected HH:MM", prefix, s.EndTime)
	}

	if !endTime.After(startTime) {
		return fmt.Errorf("%s: end_time must be after start_time", prefix)
	}

	if s.SlotDurationMinutes <= 0 {
		return fmt.Errorf("%s.slot_duration_minutes must be positive", prefix)
	}
	if s.AdvanceBookingDays < 0 {
		return fmt.Errorf("%s.advance_booking_days cannot be negative", prefix)
	}

	return nil
}

func validateDaysOff(days []int, prefix string) error {
	for i, d := range days {
		if d < 1 || d > 7 {
			return fmt.Errorf("%s[%d]: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", prefix, i, d)
		}
	}
	return nil
}

// applyDefaults applies default values to providers without explicit configuration.
func (c *TemplateConfig) applyDefaults() {
	if c.Defaults.Schedule == nil {
		c.Defaults.Schedule = &ScheduleConfig{
			StartTime:           model.FallbackHours.StartTime,
			EndTime:             model.FallbackHours.EndTime,
			SlotDurationMinutes: model.DefaultSettings().SlotDurationMinutes,
			AdvanceBookingDays:  model.DefaultSettings().AdvanceBookingDays,
		}
	}
	if c.Defaults.DaysOff == nil {
		c.Defaults.DaysOff = []int{6, 7}
	}

	for i := range c.Providers {
		if c.Providers[i].Schedule == nil {
			c.Providers[i].Schedule = c.Defaults.Schedule
		}
		if c.Providers[i].DaysOff == nil {
			c.Providers[i].DaysOff = c.Defaults.DaysOff
		}
	}
}

// GetProviderByID returns provider config by ID.
func (c *TemplateConfig) GetProviderByID(id int) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i]
		}
	}
	return nil
}

// GetActiveProviders returns only active providers.
func (c *TemplateConfig) GetActiveProviders() []ProviderConfig {
	result := make([]ProviderConfig, 0)
	for _, p := range c.Providers {
		if p.IsActive {
			result = append(result, p)
		}
	}
	return result
}

// WeeklyTemplate builds the weekly template provisioned for a provider.
// Unknown providers get the defaults.
func (c *TemplateConfig) WeeklyTemplate(providerID int) model.Template {
	schedule, daysOff := c.scheduleFor(providerID)

	off := make(map[int]bool, len(daysOff))
	for _, d := range daysOff {
		off[d-1] = true // 1=Mon → index 0
	}

	tpl := make(model.Template, 7)
	for i := range tpl {
		tpl[i] = model.WorkingHours{
			Weekday:   i,
			StartTime: schedule.StartTime,
			EndTime:   schedule.EndTime,
			IsWorking: !off[i],
		}
	}
	return tpl
}

// Settings returns the slot settings provisioned for a provider.
func (c *TemplateConfig) Settings(providerID int) model.Settings {
	schedule, _ := c.scheduleFor(providerID)
	settings := model.Settings{
		SlotDurationMinutes: schedule.SlotDurationMinutes,
		AdvanceBookingDays:  schedule.AdvanceBookingDays,
	}
	if settings.SlotDurationMinutes <= 0 {
		settings.SlotDurationMinutes = model.DefaultSettings().SlotDurationMinutes
	}
	return settings
}

// IsHoliday checks if a date is a holiday.
func (c *TemplateConfig) IsHoliday(date string) (bool, string) {
	for _, h := range c.Holidays {
		if h.Date == date {
			return true, h.Name
		}
	}
	return false, ""
}

func (c *TemplateConfig) scheduleFor(providerID int) (ScheduleConfig, []int) {
	schedule := c.Defaults.Schedule
	daysOff := c.Defaults.DaysOff
	if p := c.GetProviderByID(providerID); p != nil {
		if p.Schedule != nil {
			schedule = p.Schedule
		}
		if p.DaysOff != nil {
			daysOff = p.DaysOff
		}
	}
	if schedule == nil {
		return ScheduleConfig{
			StartTime:           model.FallbackHours.StartTime,
			EndTime:             model.FallbackHours.EndTime,
			SlotDurationMinutes: model.DefaultSettings().SlotDurationMinutes,
			AdvanceBookingDays:  model.DefaultSettings().AdvanceBookingDays,
		}, daysOff
	}
	return *schedule, daysOff
}
