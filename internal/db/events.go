package db

import (
	"context"
	"database/sql"
	"fmt"

	"slotkeeper/internal/events"
)

// RecordEvent appends an engine event to the audit log.
func (db *DB) RecordEvent(ctx context.Context, e events.Event) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO availability_events (provider_id, event_type, date, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ProviderID, e.Type, nullString(e.Date), string(e.Payload), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record event %s: %w", e.Type, err)
	}
	return nil
}

// ListEvents returns the newest events of a provider, newest first.
func (db *DB) ListEvents(ctx context.Context, providerID int64, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT provider_id, event_type, date, payload, created_at
		FROM availability_events
		WHERE provider_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		providerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			e             events.Event
			date, payload sql.NullString
		)
		if err := rows.Scan(&e.ProviderID, &e.Type, &date, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Date = date.String
		e.Payload = []byte(payload.String)
		out = append(out, e)
	}
	return out, rows.Err()
}
