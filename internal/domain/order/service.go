package order

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/foodcart/internal/domain/cart"
	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/user"
)

const idempotencyTimeout = 5 * time.Second

// CartReader loads the cart an order is placed from.
type CartReader interface {
	Get(ctx context.Context, ownerID string) (*cart.Cart, error)
}

// Idempotency deduplicates checkout requests that carry the same key.
type Idempotency interface {
	// Reserve claims key within scope. When the key is already claimed it
	// returns reserved=false and the order id recorded by Complete, or an
	// empty id if the first request has not completed yet.
	Reserve(ctx context.Context, scope, key string) (orderID string, reserved bool, err error)
	Complete(ctx context.Context, scope, key, orderID string) error
	Release(ctx context.Context, scope, key string) error
}

// Options holds optional collaborators of the Service.
type Options struct {
	Idempotency   Idempotency
	Metrics       *Metrics
	NotifyTimeout time.Duration
}

// PlaceOrderResult holds the output of a checkout.
type PlaceOrderResult struct {
	Order *Order
	// Replayed is true when the order was created by an earlier request with
	// the same idempotency key.
	Replayed bool
}

// Service encapsulates the cart-to-order transition and the delivery status
// lifecycle.
type Service struct {
	carts    CartReader
	coupons  cart.CouponEvaluator
	orders   Repository
	users    user.Repository
	notifier Notifier
	idem     Idempotency
	metrics  *Metrics

	notifyTimeout time.Duration
	inflight      sync.WaitGroup

	newID func() string
	now   func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	carts CartReader,
	coupons cart.CouponEvaluator,
	orders Repository,
	users user.Repository,
	notifier Notifier,
	opts Options,
) *Service {
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	return &Service{
		carts:         carts,
		coupons:       coupons,
		orders:        orders,
		users:         users,
		notifier:      notifier,
		idem:          opts.Idempotency,
		metrics:       opts.Metrics,
		notifyTimeout: opts.NotifyTimeout,
		newID:         func() string { return uuid.New().String() },
		now:           time.Now,
	}
}

// PlaceOrder snapshots the user's cart into a Pending order and empties the
// cart. With a non-empty idempotencyKey, repeating the call returns the
// order created by the first one.
func (s *Service) PlaceOrder(ctx context.Context, userID, idempotencyKey string) (*PlaceOrderResult, error) {
	if idempotencyKey == "" || s.idem == nil {
		o, err := s.placeOrder(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &PlaceOrderResult{Order: o}, nil
	}

	existing, reserved, err := s.idem.Reserve(ctx, userID, idempotencyKey)
	if err != nil {
		return nil, errors.Wrap(err, "reserve idempotency key")
	}
	if !reserved {
		if existing == "" {
			return nil, ErrCheckoutInProgress
		}
		o, err := s.orders.Get(ctx, existing)
		if err != nil {
			return nil, errors.Wrap(err, "get replayed order")
		}
		return &PlaceOrderResult{Order: o, Replayed: true}, nil
	}

	o, err := s.placeOrder(ctx, userID)
	if err != nil {
		if relErr := s.settleKey(ctx, func(ctx context.Context) error {
			return s.idem.Release(ctx, userID, idempotencyKey)
		}); relErr != nil {
			zctx.From(ctx).Warn("Release idempotency key", zap.Error(relErr))
		}
		return nil, err
	}
	if err := s.settleKey(ctx, func(ctx context.Context) error {
		return s.idem.Complete(ctx, userID, idempotencyKey, o.ID)
	}); err != nil {
		// The order exists; a retry with this key will see it as in progress
		// until the reservation expires.
		zctx.From(ctx).Warn("Complete idempotency key", zap.Error(err), zap.String("order_id", o.ID))
	}
	return &PlaceOrderResult{Order: o}, nil
}

// settleKey runs fn detached from the request so that a client that went
// away mid-checkout does not leave its key reserved.
func (s *Service) settleKey(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencyTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *Service) placeOrder(ctx context.Context, userID string) (*Order, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	subtotal := c.Subtotal().Round(2)

	discount := decimal.Zero
	couponCode := ""
	if c.CouponCode != "" {
		d, err := s.coupons.Evaluate(ctx, c.CouponCode, subtotal)
		switch {
		case err == nil:
			discount = d.Amount
			couponCode = d.Code
		case coupon.Ineligible(err):
			zctx.From(ctx).Warn("Dropping ineligible coupon at checkout",
				zap.String("coupon", c.CouponCode),
				zap.Error(err),
			)
		default:
			return nil, errors.Wrap(err, "evaluate coupon")
		}
	}

	// Total = subtotal - discount, floored at zero and rounded to 2 decimal places.
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	now := s.now()
	o := &Order{
		ID:             s.newID(),
		UserID:         userID,
		Items:          c.Snapshot(),
		Subtotal:       subtotal,
		Discount:       discount.Round(2),
		CouponCode:     couponCode,
		TotalAmount:    total.Round(2),
		DeliveryStatus: StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.orders.CreateFromCart(ctx, o, c.Version); err != nil {
		if errors.Is(err, ErrCartChanged) {
			return nil, ErrCartChanged
		}
		return nil, errors.Wrap(err, "create order")
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", userID),
		zap.Int("items", len(o.Items)),
		zap.Stringer("total", o.TotalAmount),
	)
	s.metrics.orderPlaced(ctx, couponCode != "")
	s.notifyCreated(ctx, o)

	return o, nil
}

// AdvanceStatus moves the order to requested if it directly follows the
// current status.
func (s *Service) AdvanceStatus(ctx context.Context, orderID, requested string) (*Order, error) {
	to, err := ParseStatus(requested)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}

	from := o.DeliveryStatus
	if !from.CanTransitionTo(to) {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}

	now := s.now()
	if err := s.orders.UpdateStatus(ctx, orderID, from, to, now); err != nil {
		switch {
		case errors.Is(err, ErrStatusConflict):
			return nil, errors.Wrapf(ErrInvalidTransition, "%s -> %s: status changed concurrently", from, to)
		case errors.Is(err, ErrNotFound):
			return nil, ErrNotFound
		default:
			return nil, errors.Wrap(err, "update status")
		}
	}
	o.DeliveryStatus = to
	o.UpdatedAt = now

	zctx.From(ctx).Info("Order status advanced",
		zap.String("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	s.metrics.statusChanged(ctx, from, to)
	s.notifyStatusChanged(ctx, o)

	return o, nil
}

// ListOrders returns orders matching f, newest first, with owners joined in.
func (s *Service) ListOrders(ctx context.Context, f Filter) ([]Summary, error) {
	out, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return out, nil
}

// GetOrder returns a single order. Non-admin requesters only see their own
// orders; others are reported as not found.
func (s *Service) GetOrder(ctx context.Context, orderID, requesterID string, admin bool) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if !admin && o.UserID != requesterID {
		return nil, ErrNotFound
	}
	return o, nil
}
