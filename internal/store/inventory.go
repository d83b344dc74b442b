package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/luckygas/gasdesk/internal/bot/action"
)

// ErrInsufficientStock is returned when an outbound adjustment would drive a
// product's count below zero.
var ErrInsufficientStock = errors.New("store: insufficient stock")

// Levels returns the on-hand count for every product.
func (s *Store) Levels(ctx context.Context) ([]action.StockLevel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product, on_hand FROM inventory ORDER BY product`)
	if err != nil {
		return nil, fmt.Errorf("store: read inventory: %w", err)
	}
	defer rows.Close()

	var out []action.StockLevel
	for rows.Next() {
		var lv action.StockLevel
		if err := rows.Scan(&lv.Product, &lv.OnHand); err != nil {
			return nil, fmt.Errorf("store: scan inventory: %w", err)
		}
		out = append(out, lv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate inventory: %w", err)
	}
	return out, nil
}

// Adjust applies a signed stock movement and records it, in one
// transaction. The update's WHERE clause keeps the count from going
// negative; zero rows affected means insufficient stock.
func (s *Store) Adjust(ctx context.Context, product string, delta int, actor string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin adjust: %w", err)
	}
	defer tx.Rollback()

	var newLevel int
	err = tx.QueryRowContext(ctx, `
		UPDATE inventory
		SET on_hand = on_hand + $2, updated_at = now()
		WHERE product = $1 AND on_hand + $2 >= 0
		RETURNING on_hand
	`, product, delta).Scan(&newLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInsufficientStock
	}
	if err != nil {
		return 0, fmt.Errorf("store: adjust inventory: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (product, delta, actor)
		VALUES ($1, $2, $3)
	`, product, delta, actor)
	if err != nil {
		return 0, fmt.Errorf("store: record movement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit adjust: %w", err)
	}
	return newLevel, nil
}

var _ action.InventoryStore = (*Store)(nil)
