package db

import (
	"context"
	"fmt"
	"time"

	"slotkeeper/internal/calendar"
	"slotkeeper/internal/config"
	"slotkeeper/internal/model"
)

// Provider is a row of the providers table.
type Provider struct {
	ID       int64
	Name     string
	IsActive bool
}

// UpsertProvider creates or renames a provider.
func (db *DB) UpsertProvider(ctx context.Context, p Provider) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO providers (id, name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert provider %d: %w", p.ID, err)
	}
	return nil
}

// GetProvider returns the provider with id.
func (db *DB) GetProvider(ctx context.Context, id int64) (*Provider, error) {
	var p Provider
	err := db.QueryRowContext(ctx,
		"SELECT id, name, is_active FROM providers WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.IsActive)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActiveProviders returns active providers ordered by id.
func (db *DB) ListActiveProviders(ctx context.Context) ([]Provider, error) {
	rows, err := db.QueryContext(ctx, "SELECT id, name, is_active FROM providers WHERE is_active = 1 ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.IsActive); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// EnsureDefaults provisions a template and settings for a provider that has none.
// Existing rows are never overwritten.
func (db *DB) EnsureDefaults(ctx context.Context, providerID int64, tpl model.Template, settings model.Settings) error {
	now := time.Now()
	for _, wh := range tpl {
		_, err := db.ExecContext(ctx, `
			INSERT INTO working_hours (provider_id, day_of_week, start_time, end_time, is_working, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(provider_id, day_of_week) DO NOTHING`,
			providerID, calendar.ToStoreWeekday(wh.Weekday), wh.StartTime, wh.EndTime, wh.IsWorking, now, now,
		)
		if err != nil {
			return fmt.Errorf("provision working hours for provider %d weekday %d: %w", providerID, wh.Weekday, err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO provider_settings (provider_id, slot_duration_minutes, advance_booking_days, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider_id) DO NOTHING`,
		providerID, settings.SlotDurationMinutes, settings.AdvanceBookingDays, now,
	)
	if err != nil {
		return fmt.Errorf("provision settings for provider %d: %w", providerID, err)
	}
	return nil
}

// SyncTemplateConfig applies template.yaml to the database.
// It upserts providers, provisions missing templates and settings, and adds
// day-off exceptions for configured holidays without replacing manual overrides.
func (db *DB) SyncTemplateConfig(ctx context.Context, cfg *config.TemplateConfig) error {
	if cfg == nil {
		return fmt.Errorf("template config is nil")
	}

	for _, p := range cfg.Providers {
		if err := db.UpsertProvider(ctx, Provider{ID: int64(p.ID), Name: p.Name, IsActive: p.IsActive}); err != nil {
			return err
		}
		if err := db.EnsureDefaults(ctx, int64(p.ID), cfg.WeeklyTemplate(p.ID), cfg.Settings(p.ID)); err != nil {
			return err
		}
	}

	now := time.Now()
	for _, h := range cfg.Holidays {
		for _, p := range cfg.GetActiveProviders() {
			_, err := db.ExecContext(ctx, `
				INSERT INTO availability_exceptions (provider_id, date, is_available, reason, created_at, updated_at)
				VALUES (?, ?, 0, ?, ?, ?)
				ON CONFLICT(provider_id, date) DO NOTHING`,
				p.ID, h.Date, nullString(h.Name), now, now,
			)
			if err != nil {
				db.logger.Warn().Err(err).Int("provider_id", p.ID).Str("date", h.Date).Msg("failed to add holiday")
			}
		}
	}

	return nil
}
