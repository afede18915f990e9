package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/foodcart/internal/domain/coupon"
)

const (
	couponColumns = `code, discount_type, value, min_order, valid_till, description`

	getCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE upper(code) = upper($1)`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY code`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, value, min_order, valid_till, description)
		VALUES (upper($1), $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE SET discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
			min_order = EXCLUDED.min_order, valid_till = EXCLUDED.valid_till, description = EXCLUDED.description`
)

var _ coupon.Registry = (*CouponRepository)(nil)

// CouponRepository is a coupon.Registry backed by the coupons table.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// Lookup finds a coupon by code, ignoring case. It returns
// coupon.ErrInvalidCode when no coupon matches.
func (r *CouponRepository) Lookup(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup coupon %q", code)
	}
	rule, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCode
		}
		return nil, errors.Wrapf(err, "lookup coupon %q", code)
	}
	return &rule, nil
}

// List returns every stored coupon ordered by code.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Upsert stores rules in a single batch, replacing coupons with the same code.
func (r *CouponRepository) Upsert(ctx context.Context, rules ...coupon.Rule) error {
	batch := &pgx.Batch{}
	for _, rule := range rules {
		var validTill pgtype.Date
		if !rule.ValidTill.IsZero() {
			validTill = pgtype.Date{Time: rule.ValidTill, Valid: true}
		}
		batch.Queue(upsertCouponSQL,
			rule.Code, string(rule.DiscountType), rule.Value, rule.MinOrder, validTill, rule.Description,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert coupons")
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule      coupon.Rule
		kind      string
		validTill pgtype.Date
	)
	if err := row.Scan(&rule.Code, &kind, &rule.Value, &rule.MinOrder, &validTill, &rule.Description); err != nil {
		return coupon.Rule{}, err
	}
	rule.DiscountType = coupon.DiscountType(kind)
	if validTill.Valid {
		rule.ValidTill = time.Date(validTill.Time.Year(), validTill.Time.Month(), validTill.Time.Day(), 0, 0, 0, 0, time.UTC)
	}
	return rule, nil
}
