package store

import (
	"context"
	"fmt"

	"github.com/luckygas/gasdesk/internal/bot/action"
)

// Record appends one audit entry. Audit rows are append-only.
func (s *Store) Record(ctx context.Context, actor, act, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor, action, detail)
		VALUES ($1, $2, $3)
	`, actor, act, detail)
	if err != nil {
		return fmt.Errorf("store: record audit: %w", err)
	}
	return nil
}

var _ action.AuditLog = (*Store)(nil)
