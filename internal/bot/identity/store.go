package identity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgBindingStore persists sender bindings in Postgres, joined against the
// customer directory so a resolution carries the display name and phone.
type PgBindingStore struct {
	pool PgxPool
}

func NewPgBindingStore(pool PgxPool) *PgBindingStore {
	if pool == nil {
		return nil
	}
	return &PgBindingStore{pool: pool}
}

var _ BindingStore = (*PgBindingStore)(nil)

func (s *PgBindingStore) FindBySender(ctx context.Context, channel, senderID string) ([]Binding, error) {
	query := `
		SELECT b.channel, b.sender_id, b.customer_id, c.name, c.phone
		FROM account_bindings b
		JOIN customers c ON c.id = b.customer_id
		WHERE b.channel = $1 AND b.sender_id = $2
		ORDER BY b.created_at
	`
	rows, err := s.pool.Query(ctx, query, channel, senderID)
	if err != nil {
		return nil, fmt.Errorf("identity: query bindings: %w", err)
	}
	defer rows.Close()

	var out []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.Channel, &b.SenderID, &b.CustomerID, &b.CustomerName, &b.Phone); err != nil {
			return nil, fmt.Errorf("identity: scan binding: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity: iterate bindings: %w", err)
	}
	return out, nil
}

// Create inserts a binding. The table carries UNIQUE (channel, sender_id),
// so a sender bound to a different customer gets ErrAlreadyBound instead of
// a second row; re-binding the same customer is a no-op.
func (s *PgBindingStore) Create(ctx context.Context, b Binding) error {
	query := `
		INSERT INTO account_bindings (channel, sender_id, customer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel, sender_id) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query, b.Channel, b.SenderID, b.CustomerID)
	if err != nil {
		return fmt.Errorf("identity: insert binding: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var existing int64
	row := s.pool.QueryRow(ctx,
		`SELECT customer_id FROM account_bindings WHERE channel = $1 AND sender_id = $2`,
		b.Channel, b.SenderID)
	if err := row.Scan(&existing); err != nil {
		return fmt.Errorf("identity: check existing binding: %w", err)
	}
	if existing != b.CustomerID {
		return ErrAlreadyBound
	}
	return nil
}

func (s *PgBindingStore) Delete(ctx context.Context, channel, senderID string) (bool, error) {
	query := `DELETE FROM account_bindings WHERE channel = $1 AND sender_id = $2`
	tag, err := s.pool.Exec(ctx, query, channel, senderID)
	if err != nil {
		return false, fmt.Errorf("identity: delete binding: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
