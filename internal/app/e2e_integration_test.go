//go:build integration

package app_test

import (
	"net/http"
	"testing"
)

func TestHealth(t *testing.T) {
	for _, path := range []string{"/livez", "/readyz"} {
		got := expect[healthResponse](t, do(t, http.MethodGet, path, "", nil), http.StatusOK)
		if got.Status != "ok" {
			t.Errorf("%s: status %q", path, got.Status)
		}
	}
}

func TestCart_RequiresAuth(t *testing.T) {
	got := expect[errorResponse](t, do(t, http.MethodGet, "/api/cart/get_cart_items", "", nil), http.StatusUnauthorized)
	if got.Error != "AuthError" {
		t.Errorf("error kind: got %q, want AuthError", got.Error)
	}
}

func TestCheckoutLifecycle(t *testing.T) {
	expect[cartResponse](t, do(t, http.MethodPost, "/api/cart/add_item", "asha",
		map[string]any{"productId": "biryani", "quantity": 2}), http.StatusCreated)
	cart := expect[cartResponse](t, do(t, http.MethodPost, "/api/cart/add_item", "asha",
		map[string]any{"productId": "jamun", "quantity": 3}), http.StatusCreated)

	// Desserts carry a 10% category discount: 2*300 + 3*90.
	if cart.Subtotal != 870 {
		t.Fatalf("subtotal: got %v, want 870", cart.Subtotal)
	}

	cart = expect[cartResponse](t, do(t, http.MethodPost, "/api/cart/apply_coupon", "asha",
		map[string]any{"code": "save100"}), http.StatusOK)
	if cart.CouponCode != "SAVE100" || cart.Payable != 770 {
		t.Fatalf("coupon: got %q payable %v", cart.CouponCode, cart.Payable)
	}

	key := []string{"Idempotency-Key", "asha-checkout-1"}
	placed := expect[orderResponse](t, do(t, http.MethodPost, "/api/orders", "asha", nil, key...), http.StatusCreated)
	if placed.TotalAmount != 770 || placed.Discount != 100 || placed.DeliveryStatus != "Pending" {
		t.Fatalf("order: %+v", placed)
	}
	if len(placed.Items) != 2 {
		t.Fatalf("items: got %d, want 2", len(placed.Items))
	}

	replayed := expect[orderResponse](t, do(t, http.MethodPost, "/api/orders", "asha", nil, key...), http.StatusOK)
	if replayed.ID != placed.ID {
		t.Fatalf("replay: got %s, want %s", replayed.ID, placed.ID)
	}

	cart = expect[cartResponse](t, do(t, http.MethodGet, "/api/cart/get_cart_items", "asha", nil), http.StatusOK)
	if len(cart.Items) != 0 || cart.CouponCode != "" {
		t.Fatalf("cart not cleared: %+v", cart)
	}

	expect[errorResponse](t, do(t, http.MethodPost, "/api/orders", "asha", nil), http.StatusBadRequest)
	expect[errorResponse](t, do(t, http.MethodGet, "/api/orders/"+placed.ID, "ravi", nil), http.StatusNotFound)
	expect[errorResponse](t, do(t, http.MethodGet, "/api/orders", "asha", nil), http.StatusForbidden)

	mine := expect[[]orderResponse](t, do(t, http.MethodGet, "/api/orders/myorders", "asha", nil), http.StatusOK)
	if len(mine) != 1 || mine[0].ID != placed.ID {
		t.Fatalf("myorders: %+v", mine)
	}

	statusPath := "/api/orders/" + placed.ID + "/status"
	expect[errorResponse](t, do(t, http.MethodPatch, statusPath, "admin",
		map[string]any{"status": "Delivered"}), http.StatusBadRequest)
	for _, next := range []string{"Shipped", "Delivered"} {
		got := expect[orderResponse](t, do(t, http.MethodPatch, statusPath, "admin",
			map[string]any{"status": next}), http.StatusOK)
		if got.DeliveryStatus != next {
			t.Fatalf("status: got %s, want %s", got.DeliveryStatus, next)
		}
	}
	expect[errorResponse](t, do(t, http.MethodPatch, statusPath, "admin",
		map[string]any{"status": "Pending"}), http.StatusBadRequest)
}
