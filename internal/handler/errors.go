package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/foodcart/internal/auth"
	"github.com/xenking/foodcart/internal/domain/cart"
	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/domain/order"
	"github.com/xenking/foodcart/internal/domain/product"
	"github.com/xenking/foodcart/internal/domain/user"
)

// Error kinds reported in the "error" field of error bodies.
const (
	KindValidation = "ValidationError"
	KindNotFound   = "NotFoundError"
	KindConflict   = "ConflictError"
	KindAuth       = "AuthError"
	KindState      = "StateError"
	KindUpstream   = "UpstreamError"
)

var (
	errInvalidBody = errors.New("invalid request body")
	errForbidden   = errors.New("admin role required")
)

type apiError struct {
	status  int
	kind    string
	message string
}

var errorTable = []struct {
	target error
	status int
	kind   string
}{
	{errInvalidBody, http.StatusBadRequest, KindValidation},
	{product.ErrInvalid, http.StatusBadRequest, KindValidation},
	{cart.ErrInvalidQuantity, http.StatusBadRequest, KindValidation},
	{order.ErrInvalidStatus, http.StatusBadRequest, KindValidation},
	{coupon.ErrInvalidCode, http.StatusBadRequest, KindValidation},
	{coupon.ErrExpired, http.StatusBadRequest, KindValidation},
	{coupon.ErrMinimumNotMet, http.StatusBadRequest, KindValidation},

	{product.ErrNotFound, http.StatusNotFound, KindNotFound},
	{cart.ErrItemNotFound, http.StatusNotFound, KindNotFound},
	{order.ErrNotFound, http.StatusNotFound, KindNotFound},

	{cart.ErrDuplicateItem, http.StatusBadRequest, KindConflict},
	{coupon.ErrAlreadyApplied, http.StatusBadRequest, KindConflict},
	{cart.ErrVersionConflict, http.StatusConflict, KindConflict},
	{order.ErrCartChanged, http.StatusConflict, KindConflict},
	{order.ErrCheckoutInProgress, http.StatusConflict, KindConflict},

	{auth.ErrUnauthenticated, http.StatusUnauthorized, KindAuth},
	{errForbidden, http.StatusForbidden, KindAuth},
	{user.ErrNotFound, http.StatusForbidden, KindAuth},
	{user.ErrEmailTaken, http.StatusConflict, KindConflict},

	{order.ErrInvalidTransition, http.StatusBadRequest, KindState},
	{order.ErrEmptyCart, http.StatusBadRequest, KindState},
}

func classify(err error) apiError {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return apiError{status: e.status, kind: e.kind, message: err.Error()}
		}
	}
	return apiError{
		status:  http.StatusInternalServerError,
		kind:    KindUpstream,
		message: "internal server error",
	}
}

// writeError maps err to a status and writes the error body. Unmapped errors
// are logged and reported without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeErrorBody(w, e)
}
