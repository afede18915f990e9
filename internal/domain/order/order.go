package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodcart/internal/domain/cart"
)

// Status is an order's position in its delivery state machine.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusShipped   Status = "Shipped"
	StatusDelivered Status = "Delivered"
)

// ParseStatus returns the canonical Status for s, ignoring case.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusPending, StatusShipped, StatusDelivered} {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
}

// Next returns the only status s may move to. Delivered is terminal.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusPending:
		return StatusShipped, true
	case StatusShipped:
		return StatusDelivered, true
	default:
		return "", false
	}
}

// CanTransitionTo reports whether to directly follows s.
func (s Status) CanTransitionTo(to Status) bool {
	next, ok := s.Next()
	return ok && next == to
}

var (
	// ErrEmptyCart is returned when checking out a cart with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotFound is returned when an order does not exist or is not visible to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidStatus is returned for unknown delivery status values.
	ErrInvalidStatus = errors.New("invalid delivery status")
	// ErrInvalidTransition is returned when a status change skips, reverses or
	// leaves a terminal status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCartChanged is returned when the cart changed between reading it and
	// placing the order.
	ErrCartChanged = errors.New("cart changed during checkout")
	// ErrCheckoutInProgress is returned when a checkout with the same
	// idempotency key has not finished yet.
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	// ErrStatusConflict is returned by Repository.UpdateStatus when the stored
	// status no longer equals the expected one.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// Item is an order line item, copied from the cart at checkout.
type Item = cart.Item

// Order is an immutable checkout record. Only DeliveryStatus and UpdatedAt
// change after creation.
type Order struct {
	ID     string
	UserID string
	Items  []Item
	// Subtotal is the sum of DiscountPrice * Quantity over Items.
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	CouponCode string
	// TotalAmount is Subtotal minus Discount, never negative.
	TotalAmount    decimal.Decimal
	DeliveryStatus Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Customer is the owner information joined into order listings.
type Customer struct {
	Name  string
	Email string
}

// Summary is an order with its owner joined in.
type Summary struct {
	Order    Order
	Customer Customer
}

// Filter selects orders for listing. An empty UserID lists every order.
type Filter struct {
	UserID string
}

// Repository defines persistence operations for orders.
type Repository interface {
	// CreateFromCart inserts o and empties the owner's cart in a single
	// transaction, provided the cart is still at cartVersion. Otherwise it
	// returns ErrCartChanged and writes nothing.
	CreateFromCart(ctx context.Context, o *Order, cartVersion int64) error
	Get(ctx context.Context, id string) (*Order, error)
	// UpdateStatus sets the status to `to` only if it currently equals
	// `from`, returning ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error
	List(ctx context.Context, f Filter) ([]Summary, error)
}
