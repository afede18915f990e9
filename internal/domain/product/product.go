package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInvalid is returned when a product fails validation.
	ErrInvalid = errors.New("invalid product")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Image       string
	Rating      Rating
	Metadata    *Metadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Rating is the aggregated customer rating of a product.
type Rating struct {
	Average decimal.Decimal `json:"average"`
	Count   int             `json:"count"`
}

// Metadata holds optional nutrition and ingredient information.
type Metadata struct {
	Ingredients []string `json:"ingredients,omitempty"`
	Calories    int      `json:"calories,omitempty"`
	Veg         bool     `json:"veg"`
}

var maxRating = decimal.NewFromInt(5)

// Validate checks the invariants of a catalog record before it is written.
func (p *Product) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return errors.Wrap(ErrInvalid, "name is required")
	case strings.TrimSpace(p.Category) == "":
		return errors.Wrap(ErrInvalid, "category is required")
	case p.Price.IsNegative():
		return errors.Wrap(ErrInvalid, "price must not be negative")
	case p.Rating.Average.IsNegative() || p.Rating.Average.GreaterThan(maxRating):
		return errors.Wrap(ErrInvalid, "rating average must be within [0, 5]")
	case p.Rating.Count < 0:
		return errors.Wrap(ErrInvalid, "rating count must not be negative")
	}
	return nil
}

// Repository defines catalog persistence. Writes are admin-only.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
