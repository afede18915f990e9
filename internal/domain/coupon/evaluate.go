package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluate computes the discount rule grants on subtotal when evaluated on
// today. It is pure: the same inputs always yield the same discount.
func Evaluate(rule *Rule, subtotal decimal.Decimal, today time.Time) (decimal.Decimal, error) {
	if expired(rule.ValidTill, today) {
		return decimal.Zero, ErrExpired
	}
	if subtotal.LessThan(rule.MinOrder) {
		return decimal.Zero, ErrMinimumNotMet
	}

	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(rule.Value).Div(hundred)
	case DiscountFlat:
		amount = rule.Value
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2), nil
}

// expired reports whether today falls after the validTill calendar day.
// validTill is inclusive through the end of its day in its own location.
func expired(validTill, today time.Time) bool {
	if validTill.IsZero() {
		return false
	}
	y, m, dd := validTill.Date()
	endOfDay := time.Date(y, m, dd, 0, 0, 0, 0, validTill.Location()).AddDate(0, 0, 1)
	return !today.Before(endOfDay)
}

// Evaluator resolves coupon codes through a Registry and evaluates them
// against the current date.
type Evaluator struct {
	registry Registry
	now      func() time.Time
}

// NewEvaluator creates an Evaluator backed by registry.
func NewEvaluator(registry Registry) *Evaluator {
	return &Evaluator{registry: registry, now: time.Now}
}

// Evaluate looks up code and computes its discount on subtotal.
func (e *Evaluator) Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (*Discount, error) {
	rule, err := e.registry.Lookup(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return nil, ErrInvalidCode
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	amount, err := Evaluate(rule, subtotal, e.now())
	if err != nil {
		return nil, err
	}
	return &Discount{
		Code:        rule.Code,
		Amount:      amount,
		Description: rule.Description,
	}, nil
}

// List returns every registered coupon rule.
func (e *Evaluator) List(ctx context.Context) ([]Rule, error) {
	return e.registry.List(ctx)
}
