package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcart/internal/domain/cart"
)

const (
	getCartSQL = `SELECT items, coupon_code, version, updated_at FROM carts WHERE owner_id = $1`

	insertCartSQL = `INSERT INTO carts (owner_id, items, coupon_code, version, updated_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (owner_id) DO NOTHING`

	updateCartSQL = `UPDATE carts SET items = $2, coupon_code = $3, version = version + 1, updated_at = $4
		WHERE owner_id = $1 AND version = $5`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores each cart as a single JSONB document guarded by a
// version counter.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the owner's cart, or an empty cart at version 0 if the owner
// never saved one.
func (r *CartRepository) Get(ctx context.Context, ownerID string) (*cart.Cart, error) {
	return getCart(ctx, r.pool, ownerID)
}

// Save writes c if the stored version still equals c.Version and bumps
// c.Version on success.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	items, err := marshalItems(c.Items)
	if err != nil {
		return err
	}

	sql, args := updateCartSQL, []any{c.OwnerID, items, c.CouponCode, c.UpdatedAt, c.Version}
	if c.Version == 0 {
		sql, args = insertCartSQL, []any{c.OwnerID, items, c.CouponCode, c.UpdatedAt}
	}

	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return errors.Wrapf(err, "save cart of %q", c.OwnerID)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrVersionConflict
	}
	c.Version++
	return nil
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getCart(ctx context.Context, q queryer, ownerID string) (*cart.Cart, error) {
	c := &cart.Cart{OwnerID: ownerID}
	var items []byte
	err := q.QueryRow(ctx, getCartSQL, ownerID).Scan(&items, &c.CouponCode, &c.Version, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, nil
		}
		return nil, errors.Wrapf(err, "get cart of %q", ownerID)
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return nil, errors.Wrapf(err, "decode cart items of %q", ownerID)
	}
	return c, nil
}

func marshalItems(items []cart.Item) ([]byte, error) {
	if items == nil {
		items = []cart.Item{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, errors.Wrap(err, "encode items")
	}
	return b, nil
}
