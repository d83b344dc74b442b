package store

import (
	"context"
	"fmt"

	"github.com/luckygas/gasdesk/internal/bot/action"
)

// RecordCheck stores one completed safety inspection.
func (s *Store) RecordCheck(ctx context.Context, c action.SafetyCheck) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO safety_checks (customer_phone, result, checked_by, checked_at)
		VALUES ($1, $2, $3, $4)
	`, c.CustomerPhone, c.Result, c.CheckedBy, c.CheckedAt)
	if err != nil {
		return fmt.Errorf("store: record safety check: %w", err)
	}
	return nil
}

var _ action.CheckStore = (*Store)(nil)
