package db

import (
	"context"
	"database/sql"
	"fmt"

	"slotkeeper/internal/model"
)

// ListBookings returns the provider's active bookings between two dates inclusive.
func (db *DB) ListBookings(ctx context.Context, providerID int64, startDate, endDate string) ([]model.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, provider_id, date, start_time, end_time, client_name, client_phone, status, created_at, updated_at
		FROM bookings
		WHERE provider_id = ? AND date >= ? AND date <= ?
		AND status NOT IN ('canceled', 'rejected')
		ORDER BY date, start_time`,
		providerID, startDate, endDate,
	)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var (
			b           model.Booking
			name, phone sql.NullString
		)
		if err := rows.Scan(
			&b.ID, &b.ProviderID, &b.Date, &b.StartTime, &b.EndTime,
			&name, &phone, &b.Status, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		b.ClientName = name.String
		b.ClientPhone = phone.String
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
