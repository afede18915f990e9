package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/foodcart/internal/auth"
	"github.com/xenking/foodcart/internal/domain/order"
	"github.com/xenking/foodcart/internal/domain/user"
)

// IdempotencyHeader carries the client-chosen checkout key.
const IdempotencyHeader = "Idempotency-Key"

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(IdempotencyHeader)
	if len(key) > 128 {
		writeError(w, r, errors.Wrap(errInvalidBody, IdempotencyHeader+" is too long"))
		return
	}
	if err := h.registerUser(r.Context(), identity(r)); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.orders.PlaceOrder(r.Context(), identity(r).UserID, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, func(e *jx.Encoder) { encodeOrder(e, res.Order) })
}

// registerUser creates the user row for a token whose subject is not yet
// known. Existing profiles are left untouched.
func (h *Handler) registerUser(ctx context.Context, id auth.Identity) error {
	if h.users == nil {
		return nil
	}
	_, err := h.users.GetByID(ctx, id.UserID)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, user.ErrNotFound):
		return errors.Wrap(err, "get user")
	}
	role := id.Role
	if !role.Valid() {
		role = user.RoleCustomer
	}
	if err := h.users.Upsert(ctx, &user.User{ID: id.UserID, Name: id.Name, Email: id.Email, Role: role}); err != nil {
		return errors.Wrap(err, "register user")
	}
	zctx.From(ctx).Info("Registered user from token", zap.String("user_id", id.UserID))
	return nil
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	h.respondOrders(w, r, order.Filter{UserID: identity(r).UserID})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	h.respondOrders(w, r, order.Filter{UserID: r.URL.Query().Get("userId")})
}

func (h *Handler) respondOrders(w http.ResponseWriter, r *http.Request, f order.Filter) {
	orders, err := h.orders.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				s := &orders[i]
				encodeOrderWith(e, &s.Order, func(e *jx.Encoder) {
					e.Field("user", func(e *jx.Encoder) {
						e.Obj(func(e *jx.Encoder) {
							e.Field("id", func(e *jx.Encoder) { e.Str(s.Order.UserID) })
							e.Field("name", func(e *jx.Encoder) { e.Str(s.Customer.Name) })
							e.Field("email", func(e *jx.Encoder) { e.Str(s.Customer.Email) })
						})
					})
				})
			}
		})
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"), id.UserID, id.IsAdmin())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.AdvanceStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	encodeOrderWith(e, o, nil)
}

func encodeOrderWith(e *jx.Encoder, o *order.Order, extra func(e *jx.Encoder)) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("items", func(e *jx.Encoder) { encodeItems(e, o.Items) })
		e.Field("subtotal", func(e *jx.Encoder) { money(e, o.Subtotal) })
		e.Field("discount", func(e *jx.Encoder) { money(e, o.Discount) })
		if o.CouponCode != "" {
			e.Field("couponCode", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		e.Field("totalAmount", func(e *jx.Encoder) { money(e, o.TotalAmount) })
		e.Field("deliveryStatus", func(e *jx.Encoder) { e.Str(string(o.DeliveryStatus)) })
		e.Field("createdAt", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { timestamp(e, o.UpdatedAt) })
		if extra != nil {
			extra(e)
		}
	})
}
