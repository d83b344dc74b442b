package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/luckygas/gasdesk/internal/bot/action"
)

// defaultWindow answers schedule questions for weekdays without a
// configured row.
const defaultWindow = "08:00-18:00"

// Schedule returns the delivery window for the given day.
func (s *Store) Schedule(ctx context.Context, day time.Time) (string, error) {
	var window string
	err := s.db.QueryRowContext(ctx,
		`SELECT delivery_window FROM delivery_schedule WHERE weekday = $1`,
		int(day.Weekday()),
	).Scan(&window)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultWindow, nil
	}
	if err != nil {
		return "", fmt.Errorf("store: read schedule: %w", err)
	}
	return window, nil
}

var _ action.ScheduleReader = (*Store)(nil)
