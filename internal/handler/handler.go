// Package handler exposes the storefront over HTTP.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/xenking/foodcart/internal/auth"
	"github.com/xenking/foodcart/internal/domain/cart"
	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/order"
	"github.com/xenking/foodcart/internal/domain/product"
	"github.com/xenking/foodcart/internal/domain/user"
)

// CouponLister lists the registered coupons.
type CouponLister interface {
	List(ctx context.Context) ([]coupon.Rule, error)
}

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(raw string) (auth.Identity, error)
}

// Deps holds the collaborators of the Handler.
type Deps struct {
	Products product.Repository
	Pricing  *product.Pricing
	Carts    *cart.Service
	Orders   *order.Service
	Coupons  CouponLister
	Tokens   TokenParser
	// Users, when set, receives the token's identity before checkout so
	// that orders always reference a registered user.
	Users user.Repository
}

// Handler serves the /api routes.
type Handler struct {
	products product.Repository
	pricing  *product.Pricing
	carts    *cart.Service
	orders   *order.Service
	coupons  CouponLister
	tokens   TokenParser
	users    user.Repository
	validate *validator.Validate

	newID func() string
	now   func() time.Time
}

// New constructs a Handler.
func New(deps Deps) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		products: deps.Products,
		pricing:  deps.Pricing,
		carts:    deps.Carts,
		orders:   deps.Orders,
		coupons:  deps.Coupons,
		tokens:   deps.Tokens,
		users:    deps.Users,
		validate: v,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Routes mounts the API under /api on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/coupons", h.listCoupons)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Route("/cart", func(r chi.Router) {
				r.Post("/add_item", h.addCartItem)
				r.Get("/get_cart_items", h.getCart)
				r.Patch("/update_cart_quantity", h.updateCartQuantity)
				r.Delete("/delete_cart_item/{name}", h.deleteCartItem)
				r.Delete("/clear_cart", h.clearCart)
				r.Post("/apply_coupon", h.applyCoupon)
				r.Delete("/remove_coupon", h.removeCoupon)
			})

			r.Post("/orders", h.placeOrder)
			r.Get("/orders/myorders", h.myOrders)
			r.Get("/orders/{id}", h.getOrder)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)

				r.Post("/products", h.createProduct)
				r.Put("/products/{id}", h.updateProduct)
				r.Delete("/products/{id}", h.deleteProduct)
				r.Get("/orders", h.listOrders)
				r.Patch("/orders/{id}/status", h.updateOrderStatus)
			})
		})
	})
}

// authenticate attaches the bearer token identity to the request context.
// Requests without an Authorization header pass through anonymously.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := auth.BearerToken(header)
		if !ok {
			writeError(w, r, auth.ErrUnauthenticated)
			return
		}
		id, err := h.tokens.Parse(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			writeError(w, r, auth.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, _ := auth.FromContext(r.Context()); !id.IsAdmin() {
			writeError(w, r, errForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identity returns the caller. Only valid behind requireUser.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
