package cart

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateItem is returned when a product with the same name is already in the cart.
	ErrDuplicateItem = errors.New("item already in cart")
	// ErrItemNotFound is returned when no line item matches the given id or name.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidQuantity is returned for quantities below 1.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrVersionConflict is returned by Repository.Save when the stored cart
	// changed since it was loaded.
	ErrVersionConflict = errors.New("cart was modified concurrently")
)

// Item is a cart line item. Product fields are a snapshot taken when the item
// was added and never follow later catalog edits.
type Item struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	Name          string          `json:"name"`
	Image         string          `json:"image"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	DiscountPrice decimal.Decimal `json:"discount_price"`
	Quantity      int             `json:"quantity"`
}

// LineTotal returns DiscountPrice * Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.DiscountPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the line-item collection of a single owner. Version is bumped by
// the repository on every successful save.
type Cart struct {
	OwnerID    string
	Items      []Item
	CouponCode string
	Version    int64
	UpdatedAt  time.Time
}

// Add appends item unless an item with the same name is already present.
func (c *Cart) Add(item Item) error {
	if item.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if c.indexByName(item.Name) >= 0 {
		return errors.Wrapf(ErrDuplicateItem, "%q", item.Name)
	}
	c.Items = append(c.Items, item)
	return nil
}

// SetQuantity replaces the quantity of the item with the given id.
func (c *Cart) SetQuantity(itemID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items[i].Quantity = quantity
			return nil
		}
	}
	return errors.Wrapf(ErrItemNotFound, "id %q", itemID)
}

// Remove deletes the item with the given name.
func (c *Cart) Remove(name string) error {
	idx := c.indexByName(name)
	if idx < 0 {
		return errors.Wrapf(ErrItemNotFound, "name %q", name)
	}
	c.Items = slices.Delete(c.Items, idx, idx+1)
	return nil
}

// Clear empties the cart and drops any applied coupon.
func (c *Cart) Clear() {
	c.Items = nil
	c.CouponCode = ""
}

// IsEmpty reports whether the cart has no line items.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Subtotal returns the sum of DiscountPrice * Quantity over all items.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

// Snapshot returns a deep copy of the items, safe to hand to an order.
func (c *Cart) Snapshot() []Item {
	out := make([]Item, len(c.Items))
	copy(out, c.Items)
	return out
}

func (c *Cart) indexByName(name string) int {
	for i := range c.Items {
		if c.Items[i].Name == name {
			return i
		}
	}
	return -1
}

// Repository persists carts keyed by owner.
type Repository interface {
	// Get returns the owner's cart, or an empty cart with Version 0 if the
	// owner has none yet.
	Get(ctx context.Context, ownerID string) (*Cart, error)
	// Save writes c if the stored version still equals c.Version, then
	// increments c.Version. Otherwise it returns ErrVersionConflict.
	Save(ctx context.Context, c *Cart) error
}
