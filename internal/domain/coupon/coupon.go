package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the cart subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFlat takes a fixed amount, capped at the subtotal.
	DiscountFlat DiscountType = "flat"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFlat
}

var (
	// ErrInvalidCode is returned when no coupon is registered under a code.
	ErrInvalidCode = errors.New("invalid coupon code")
	// ErrExpired is returned when the evaluation date is past the coupon's validity.
	ErrExpired = errors.New("coupon expired")
	// ErrMinimumNotMet is returned when the cart subtotal is below the coupon's minimum order.
	ErrMinimumNotMet = errors.New("minimum order amount not met")
	// ErrAlreadyApplied is returned when a cart already carries an active coupon.
	ErrAlreadyApplied = errors.New("a coupon is already applied")
)

// Ineligible reports whether err means the coupon cannot be used for the
// cart as it is now, as opposed to a lookup failure in the registry backend.
func Ineligible(err error) bool {
	return errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrMinimumNotMet)
}

// Rule defines a coupon's discount behaviour and eligibility constraints.
type Rule struct {
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	MinOrder     decimal.Decimal
	// ValidTill is the last calendar day the coupon can be used on.
	ValidTill   time.Time
	Description string
}

// Discount holds the computed discount amount for a subtotal.
type Discount struct {
	Code        string
	Amount      decimal.Decimal
	Description string
}

// Registry provides case-insensitive lookup of coupon rules.
type Registry interface {
	Lookup(ctx context.Context, code string) (*Rule, error)
	List(ctx context.Context) ([]Rule, error)
}
