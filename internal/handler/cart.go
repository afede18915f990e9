package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/foodcart/internal/domain/cart"
)

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	// Quantity defaults to 1 when omitted.
	Quantity *int `json:"quantity"`
}

type updateQuantityRequest struct {
	ItemID   string `json:"itemId" validate:"required"`
	Quantity int    `json:"quantity"`
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	v, err := h.carts.AddItem(r.Context(), identity(r).UserID, req.ProductID, qty)
	h.respondCart(w, r, http.StatusCreated, v, err)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.Get(r.Context(), identity(r).UserID)
	h.respondCart(w, r, http.StatusOK, v, err)
}

func (h *Handler) updateCartQuantity(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.carts.UpdateQuantity(r.Context(), identity(r).UserID, req.ItemID, req.Quantity)
	h.respondCart(w, r, http.StatusOK, v, err)
}

func (h *Handler) deleteCartItem(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "name")
	if err != nil {
		writeError(w, r, errors.Wrap(errInvalidBody, "invalid item name"))
		return
	}
	v, err := h.carts.RemoveItem(r.Context(), identity(r).UserID, name)
	h.respondCart(w, r, http.StatusOK, v, err)
}

// pathParam returns the decoded URL parameter. Chi matches on RawPath
// whenever it is set, and then the parameter is still percent-encoded.
func pathParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.Clear(r.Context(), identity(r).UserID)
	h.respondCart(w, r, http.StatusOK, v, err)
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.carts.ApplyCoupon(r.Context(), identity(r).UserID, req.Code)
	h.respondCart(w, r, http.StatusOK, v, err)
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.RemoveCoupon(r.Context(), identity(r).UserID)
	h.respondCart(w, r, http.StatusOK, v, err)
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, status int, v *cart.View, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("items", func(e *jx.Encoder) { encodeItems(e, v.Cart.Items) })
			e.Field("couponCode", func(e *jx.Encoder) { e.Str(v.Cart.CouponCode) })
			e.Field("subtotal", func(e *jx.Encoder) { money(e, v.Subtotal) })
			e.Field("discount", func(e *jx.Encoder) { money(e, v.Discount) })
			e.Field("payable", func(e *jx.Encoder) { money(e, v.Payable) })
			if v.RevokedCoupon != "" {
				e.Field("revokedCoupon", func(e *jx.Encoder) { e.Str(v.RevokedCoupon) })
			}
			e.Field("version", func(e *jx.Encoder) { e.Int64(v.Cart.Version) })
		})
	})
}

func encodeItems(e *jx.Encoder, items []cart.Item) {
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
				e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
				e.Field("image", func(e *jx.Encoder) { e.Str(it.Image) })
				e.Field("category", func(e *jx.Encoder) { e.Str(it.Category) })
				e.Field("description", func(e *jx.Encoder) { e.Str(it.Description) })
				e.Field("originalPrice", func(e *jx.Encoder) { money(e, it.OriginalPrice) })
				e.Field("discountPrice", func(e *jx.Encoder) { money(e, it.DiscountPrice) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
			})
		}
	})
}
