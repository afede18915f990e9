package coupon

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var _ Registry = (*StaticRegistry)(nil)

// StaticRegistry is an in-memory, read-only coupon registry.
type StaticRegistry struct {
	rules map[string]Rule
}

// NewStaticRegistry indexes rules by upper-cased code. Duplicate codes,
// compared case-insensitively, are rejected.
func NewStaticRegistry(rules ...Rule) (*StaticRegistry, error) {
	r := &StaticRegistry{rules: make(map[string]Rule, len(rules))}
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		key := Normalize(rule.Code)
		if _, ok := r.rules[key]; ok {
			return nil, errors.Errorf("duplicate coupon code %q", rule.Code)
		}
		rule.Code = key
		r.rules[key] = rule
	}
	return r, nil
}

// Lookup returns the rule registered under code, ignoring case.
func (r *StaticRegistry) Lookup(_ context.Context, code string) (*Rule, error) {
	rule, ok := r.rules[Normalize(code)]
	if !ok {
		return nil, ErrInvalidCode
	}
	return &rule, nil
}

// List returns all rules ordered by code.
func (r *StaticRegistry) List(_ context.Context) ([]Rule, error) {
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	slices.SortFunc(out, func(a, b Rule) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

// Validate checks that rule can be registered.
func (r Rule) Validate() error {
	switch {
	case Normalize(r.Code) == "":
		return errors.New("coupon code is required")
	case !r.DiscountType.Valid():
		return errors.Errorf("coupon %s: unsupported discount type %q", r.Code, r.DiscountType)
	case r.Value.IsNegative() || r.MinOrder.IsNegative():
		return errors.Errorf("coupon %s: value and minimum order must not be negative", r.Code)
	case r.DiscountType == DiscountPercentage && r.Value.GreaterThan(hundred):
		return errors.Errorf("coupon %s: percentage above 100", r.Code)
	}
	return nil
}

// Normalize returns the canonical, upper-cased form of a coupon code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DefaultRules returns the built-in storefront coupons.
func DefaultRules() []Rule {
	validTill := time.Date(2027, time.December, 31, 0, 0, 0, 0, time.UTC)
	return []Rule{
		{
			Code:         "FIRST20",
			DiscountType: DiscountPercentage,
			Value:        decimal.NewFromInt(20),
			MinOrder:     decimal.NewFromInt(500),
			ValidTill:    validTill,
			Description:  "20% off on orders above ₹500",
		},
		{
			Code:         "SAVE100",
			DiscountType: DiscountFlat,
			Value:        decimal.NewFromInt(100),
			MinOrder:     decimal.NewFromInt(750),
			ValidTill:    validTill,
			Description:  "Flat ₹100 off on orders above ₹750",
		},
		{
			Code:         "WELCOME50",
			DiscountType: DiscountFlat,
			Value:        decimal.NewFromInt(50),
			MinOrder:     decimal.NewFromInt(300),
			ValidTill:    validTill,
			Description:  "Flat ₹50 off on orders above ₹300",
		},
		{
			Code:         "FEAST15",
			DiscountType: DiscountPercentage,
			Value:        decimal.NewFromInt(15),
			MinOrder:     decimal.NewFromInt(1000),
			ValidTill:    validTill,
			Description:  "15% off on orders above ₹1000",
		},
	}
}
