package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/luckygas/gasdesk/internal/bot/action"
)

// CreateOrder inserts a confirmed order and returns its id. Unlinked
// senders order with customer_id NULL; the channel identity still ties the
// order back to them.
func (s *Store) CreateOrder(ctx context.Context, o action.Order) (int64, error) {
	var customerID sql.NullInt64
	if o.CustomerID != 0 {
		customerID = sql.NullInt64{Int64: o.CustomerID, Valid: true}
	}
	var deliverAt sql.NullTime
	if o.DeliverAt != nil {
		deliverAt = sql.NullTime{Time: *o.DeliverAt, Valid: true}
	}

	var id int64
	query := `
		INSERT INTO orders (customer_id, channel, sender_id, product, quantity, address, deliver_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		customerID, o.Channel, o.SenderID, o.Product, o.Quantity, o.Address, deliverAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert order: %w", err)
	}
	return id, nil
}

// LatestOrder returns the customer's most recent order.
func (s *Store) LatestOrder(ctx context.Context, customerID int64) (*action.OrderStatus, error) {
	query := `
		SELECT id, product, quantity, status, created_at, deliver_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var (
		out       action.OrderStatus
		deliverAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, customerID).Scan(
		&out.OrderID, &out.Product, &out.Quantity, &out.Status, &out.PlacedAt, &deliverAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, action.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest order: %w", err)
	}
	if deliverAt.Valid {
		out.DeliverAt = &deliverAt.Time
	}
	return &out, nil
}

var _ action.OrderStore = (*Store)(nil)

// AdminOrder is one row of the back-office order listing.
type AdminOrder struct {
	ID           int64      `json:"id"`
	CustomerName string     `json:"customer_name,omitempty"`
	Channel      string     `json:"channel"`
	SenderID     string     `json:"sender_id"`
	Product      string     `json:"product"`
	Quantity     int        `json:"quantity"`
	Address      string     `json:"address"`
	Status       string     `json:"status"`
	DeliverAt    *time.Time `json:"deliver_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// RecentOrders lists the newest orders for the back-office view.
func (s *Store) RecentOrders(ctx context.Context, limit int) ([]AdminOrder, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT o.id, COALESCE(c.name, ''), o.channel, o.sender_id,
		       o.product, o.quantity, o.address, o.status, o.deliver_at, o.created_at
		FROM orders o
		LEFT JOIN customers c ON c.id = o.customer_id
		ORDER BY o.created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent orders: %w", err)
	}
	defer rows.Close()

	var out []AdminOrder
	for rows.Next() {
		var (
			o         AdminOrder
			deliverAt sql.NullTime
		)
		if err := rows.Scan(&o.ID, &o.CustomerName, &o.Channel, &o.SenderID,
			&o.Product, &o.Quantity, &o.Address, &o.Status, &deliverAt, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan order: %w", err)
		}
		if deliverAt.Valid {
			o.DeliverAt = &deliverAt.Time
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
