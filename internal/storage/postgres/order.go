package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcart/internal/domain/order"
	"github.com/xenking/foodcart/internal/domain/user"
)

const (
	orderColumns = `o.id, o.user_id, o.items, o.subtotal, o.discount, o.coupon_code, o.total_amount,
		o.delivery_status, o.created_at, o.updated_at`

	clearCheckedOutCartSQL = `UPDATE carts SET items = '[]'::jsonb, coupon_code = '', version = version + 1, updated_at = $3
		WHERE owner_id = $1 AND version = $2`

	createOrderSQL = `INSERT INTO orders (id, user_id, items, subtotal, discount, coupon_code, total_amount,
		delivery_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`

	updateOrderStatusSQL = `UPDATE orders SET delivery_status = $3, updated_at = $4
		WHERE id = $1 AND delivery_status = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	listOrdersSQL = `SELECT ` + orderColumns + `, COALESCE(u.name, ''), COALESCE(u.email, '')
		FROM orders o LEFT JOIN users u ON u.id = o.user_id
		WHERE $1 = '' OR o.user_id = $1
		ORDER BY o.created_at DESC, o.id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateFromCart empties the owner's cart and persists o in one transaction.
// The cart update is conditioned on cartVersion so a concurrent cart write
// aborts the checkout with order.ErrCartChanged.
func (r *OrderRepository) CreateFromCart(ctx context.Context, o *order.Order, cartVersion int64) error {
	items, err := marshalItems(o.Items)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, clearCheckedOutCartSQL, o.UserID, cartVersion, o.CreatedAt)
		if err != nil {
			return errors.Wrapf(err, "clear cart of %q", o.UserID)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrCartChanged
		}

		_, err = tx.Exec(ctx, createOrderSQL,
			o.ID, o.UserID, items, o.Subtotal, o.Discount, o.CouponCode, o.TotalAmount,
			string(o.DeliveryStatus), o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return errors.Wrapf(user.ErrNotFound, "create order for %q", o.UserID)
			}
			return errors.Wrapf(err, "create order %q", o.ID)
		}
		return nil
	})
}

// Get returns the order with the given id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (order.Order, error) {
		var o order.Order
		err := scanOrder(row, &o)
		return o, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

// UpdateStatus performs a compare-and-set on the delivery status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to), at)
	if err != nil {
		return errors.Wrapf(err, "update status of order %q", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check order %q", id)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusConflict
}

// List returns orders newest first, each with its owner's name and email.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Summary, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, f.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Summary, error) {
		var s order.Summary
		err := scanOrder(row, &s.Order, &s.Customer.Name, &s.Customer.Email)
		return s, err
	})
}

func scanOrder(row pgx.CollectableRow, o *order.Order, extra ...any) error {
	var (
		items  []byte
		status string
	)
	dest := []any{
		&o.ID, &o.UserID, &items, &o.Subtotal, &o.Discount, &o.CouponCode, &o.TotalAmount,
		&status, &o.CreatedAt, &o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	o.DeliveryStatus = order.Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return errors.Wrapf(err, "decode items of order %q", o.ID)
	}
	return nil
}
