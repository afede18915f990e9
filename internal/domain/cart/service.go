package cart

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/product"
)

// maxSaveAttempts bounds optimistic retries of a single cart mutation.
const maxSaveAttempts = 3

// CouponEvaluator computes a coupon discount for a subtotal.
type CouponEvaluator interface {
	Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (*coupon.Discount, error)
}

// View is a cart together with its pricing at read time.
type View struct {
	Cart     *Cart
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Payable  decimal.Decimal
	// RevokedCoupon is set when the last mutation made the applied coupon
	// ineligible and it was removed from the cart.
	RevokedCoupon string
}

// Service encapsulates cart business logic. Every operation is scoped to the
// owner it is given.
type Service struct {
	carts    Repository
	products product.Repository
	pricing  *product.Pricing
	coupons  CouponEvaluator
	newID    func() string
	now      func() time.Time
}

// NewService creates a cart Service with the required domain dependencies.
func NewService(
	carts Repository,
	products product.Repository,
	pricing *product.Pricing,
	coupons CouponEvaluator,
) *Service {
	return &Service{
		carts:    carts,
		products: products,
		pricing:  pricing,
		coupons:  coupons,
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}
}

// Get returns the owner's cart priced with its active coupon, if any.
func (s *Service) Get(ctx context.Context, ownerID string) (*View, error) {
	c, err := s.carts.Get(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return s.price(ctx, c)
}

// AddItem snapshots the product into the owner's cart.
func (s *Service) AddItem(ctx context.Context, ownerID, productID string, quantity int) (*View, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrap(err, "get product")
	}

	item := Item{
		ID:            s.newID(),
		ProductID:     p.ID,
		Name:          p.Name,
		Image:         p.Image,
		Category:      p.Category,
		Description:   p.Description,
		OriginalPrice: p.Price,
		DiscountPrice: s.pricing.DiscountedPrice(p),
		Quantity:      quantity,
	}
	return s.mutate(ctx, ownerID, func(c *Cart) error {
		return c.Add(item)
	})
}

// UpdateQuantity sets the quantity of a line item. Quantities below 1 are
// rejected before the cart is read.
func (s *Service) UpdateQuantity(ctx context.Context, ownerID, itemID string, quantity int) (*View, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	return s.mutate(ctx, ownerID, func(c *Cart) error {
		return c.SetQuantity(itemID, quantity)
	})
}

// RemoveItem deletes the line item with the given product name.
func (s *Service) RemoveItem(ctx context.Context, ownerID, name string) (*View, error) {
	return s.mutate(ctx, ownerID, func(c *Cart) error {
		return c.Remove(name)
	})
}

// Clear empties the owner's cart.
func (s *Service) Clear(ctx context.Context, ownerID string) (*View, error) {
	return s.mutate(ctx, ownerID, func(c *Cart) error {
		c.Clear()
		return nil
	})
}

// ApplyCoupon activates code on the owner's cart. Only one coupon may be
// active at a time; an applied coupon that no longer qualifies is revoked
// first and does not block the new one.
func (s *Service) ApplyCoupon(ctx context.Context, ownerID, code string) (*View, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, coupon.ErrInvalidCode
	}
	var revoked string
	v, err := s.mutate(ctx, ownerID, func(c *Cart) error {
		dropped, err := s.revalidateCoupon(ctx, c)
		if err != nil {
			return err
		}
		revoked = dropped
		if c.CouponCode != "" {
			return coupon.ErrAlreadyApplied
		}
		discount, err := s.coupons.Evaluate(ctx, code, c.Subtotal())
		if err != nil {
			return err
		}
		c.CouponCode = discount.Code
		return nil
	})
	if err != nil {
		return nil, err
	}
	if v.RevokedCoupon == "" {
		v.RevokedCoupon = revoked
	}
	return v, nil
}

// RemoveCoupon drops the active coupon, if any.
func (s *Service) RemoveCoupon(ctx context.Context, ownerID string) (*View, error) {
	return s.mutate(ctx, ownerID, func(c *Cart) error {
		c.CouponCode = ""
		return nil
	})
}

// mutate loads the cart, applies fn and saves it, retrying on version
// conflicts. After fn succeeds the active coupon is re-evaluated and revoked
// when the cart no longer qualifies.
func (s *Service) mutate(ctx context.Context, ownerID string, fn func(c *Cart) error) (*View, error) {
	var lastErr error
	for attempt := range maxSaveAttempts {
		c, err := s.carts.Get(ctx, ownerID)
		if err != nil {
			return nil, errors.Wrap(err, "get cart")
		}
		if err := fn(c); err != nil {
			return nil, err
		}

		revoked, err := s.revalidateCoupon(ctx, c)
		if err != nil {
			return nil, err
		}

		c.UpdatedAt = s.now()
		if err := s.carts.Save(ctx, c); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				zctx.From(ctx).Debug("Cart version conflict, retrying",
					zap.String("owner", ownerID),
					zap.Int("attempt", attempt+1),
				)
				continue
			}
			return nil, errors.Wrap(err, "save cart")
		}

		v, err := s.price(ctx, c)
		if err != nil {
			return nil, err
		}
		v.RevokedCoupon = revoked
		return v, nil
	}
	return nil, lastErr
}

// revalidateCoupon drops an ineligible coupon from c and returns its code.
func (s *Service) revalidateCoupon(ctx context.Context, c *Cart) (string, error) {
	if c.CouponCode == "" {
		return "", nil
	}
	_, err := s.coupons.Evaluate(ctx, c.CouponCode, c.Subtotal())
	switch {
	case err == nil:
		return "", nil
	case coupon.Ineligible(err):
		revoked := c.CouponCode
		c.CouponCode = ""
		zctx.From(ctx).Info("Coupon revoked",
			zap.String("owner", c.OwnerID),
			zap.String("coupon", revoked),
			zap.Error(err),
		)
		return revoked, nil
	default:
		return "", errors.Wrap(err, "evaluate coupon")
	}
}

// price computes the read-time totals of c. An applied coupon that no longer
// qualifies contributes no discount; it is revoked on the next mutation.
func (s *Service) price(ctx context.Context, c *Cart) (*View, error) {
	subtotal := c.Subtotal().Round(2)
	discount := decimal.Zero
	if c.CouponCode != "" {
		d, err := s.coupons.Evaluate(ctx, c.CouponCode, subtotal)
		switch {
		case err == nil:
			discount = d.Amount
		case coupon.Ineligible(err):
		default:
			return nil, errors.Wrap(err, "evaluate coupon")
		}
	}
	return &View{
		Cart:     c,
		Subtotal: subtotal,
		Discount: discount,
		Payable:  subtotal.Sub(discount),
	}, nil
}
