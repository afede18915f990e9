package product

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Pricing holds per-category percentage discounts applied when a product is
// snapshotted into a cart. Category keys are matched case-insensitively.
type Pricing struct {
	discounts map[string]decimal.Decimal
}

// NewPricing builds a Pricing table from category -> percent pairs.
func NewPricing(discounts map[string]decimal.Decimal) (*Pricing, error) {
	p := &Pricing{discounts: make(map[string]decimal.Decimal, len(discounts))}
	for category, pct := range discounts {
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return nil, errors.Errorf("discount for category %q must be within [0, 100], got %s", category, pct)
		}
		p.discounts[strings.ToLower(strings.TrimSpace(category))] = pct
	}
	return p, nil
}

// ParseCategoryDiscounts parses "category=percent" entries as they come from
// configuration, e.g. []string{"desserts=10", "beverages=5"}.
func ParseCategoryDiscounts(entries []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e) == "" {
			continue
		}
		category, raw, ok := strings.Cut(e, "=")
		if !ok || strings.TrimSpace(category) == "" {
			return nil, errors.Errorf("invalid category discount %q: want category=percent", e)
		}
		pct, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, errors.Wrapf(err, "parse discount for %q", category)
		}
		out[strings.TrimSpace(category)] = pct
	}
	return out, nil
}

// DiscountPercent returns the discount percentage configured for category.
func (p *Pricing) DiscountPercent(category string) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.discounts[strings.ToLower(strings.TrimSpace(category))]
}

// DiscountedPrice returns the unit price of prod after its category discount,
// rounded to 2 decimal places.
func (p *Pricing) DiscountedPrice(prod *Product) decimal.Decimal {
	pct := p.DiscountPercent(prod.Category)
	if pct.IsZero() {
		return prod.Price.Round(2)
	}
	off := prod.Price.Mul(pct).Div(hundred)
	return prod.Price.Sub(off).Round(2)
}
