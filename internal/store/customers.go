package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/luckygas/gasdesk/internal/bot/action"
	"github.com/luckygas/gasdesk/internal/bot/identity"
)

// FindByPhone resolves a customer by their registered phone.
func (s *Store) FindByPhone(ctx context.Context, phone string) (int64, string, error) {
	var (
		id   int64
		name string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM customers WHERE phone = $1`, phone,
	).Scan(&id, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", action.ErrNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("store: find customer by phone: %w", err)
	}
	return id, name, nil
}

// MatchByPhone returns every customer registered under the phone. A shared
// household phone can legitimately return more than one row.
func (s *Store) MatchByPhone(ctx context.Context, phone string) ([]identity.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM customers WHERE phone = $1 ORDER BY id`, phone)
	if err != nil {
		return nil, fmt.Errorf("store: match customers by phone: %w", err)
	}
	defer rows.Close()

	var matches []identity.Customer
	for rows.Next() {
		var c identity.Customer
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("store: scan customer match: %w", err)
		}
		matches = append(matches, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: match customers by phone: %w", err)
	}
	return matches, nil
}

var (
	_ action.CustomerDirectory = (*Store)(nil)
	_ identity.CustomerMatcher = (*Store)(nil)
)
