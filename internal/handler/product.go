package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodcart/internal/domain/product"
)

type ratingRequest struct {
	Average decimal.Decimal `json:"average"`
	Count   int             `json:"count" validate:"gte=0"`
}

type metadataRequest struct {
	Ingredients []string `json:"ingredients"`
	Calories    int      `json:"calories" validate:"gte=0"`
	Veg         bool     `json:"veg"`
}

type productRequest struct {
	ID          string           `json:"id" validate:"omitempty,max=64"`
	Name        string           `json:"name" validate:"required,max=200"`
	Description string           `json:"description" validate:"max=2000"`
	Price       decimal.Decimal  `json:"price"`
	Category    string           `json:"category" validate:"required,max=100"`
	Image       string           `json:"image" validate:"max=500"`
	Rating      *ratingRequest   `json:"rating"`
	Metadata    *metadataRequest `json:"metadata"`
}

func (req *productRequest) apply(p *product.Product) {
	p.Name = strings.TrimSpace(req.Name)
	p.Description = req.Description
	p.Price = req.Price
	p.Category = strings.TrimSpace(req.Category)
	p.Image = req.Image
	p.Rating = product.Rating{}
	if req.Rating != nil {
		p.Rating = product.Rating{Average: req.Rating.Average, Count: req.Rating.Count}
	}
	p.Metadata = nil
	if req.Metadata != nil {
		p.Metadata = &product.Metadata{
			Ingredients: req.Metadata.Ingredients,
			Calories:    req.Metadata.Calories,
			Veg:         req.Metadata.Veg,
		}
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	category := r.URL.Query().Get("category")
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range products {
				if category != "" && !strings.EqualFold(products[i].Category, category) {
					continue
				}
				h.encodeProduct(e, &products[i])
			}
		})
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	now := h.now().UTC()
	p := &product.Product{ID: req.ID, CreatedAt: now, UpdatedAt: now}
	if p.ID == "" {
		p.ID = h.newID()
	}
	req.apply(p)
	if err := p.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.Create(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p := &product.Product{ID: chi.URLParam(r, "id"), UpdatedAt: h.now().UTC()}
	req.apply(p)
	if err := p.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.Update(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("price", func(e *jx.Encoder) { money(e, p.Price) })
		e.Field("discountPrice", func(e *jx.Encoder) { money(e, h.pricing.DiscountedPrice(p)) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("image", func(e *jx.Encoder) { e.Str(p.Image) })
		e.Field("rating", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("average", func(e *jx.Encoder) { e.Num(jx.Num(p.Rating.Average.String())) })
				e.Field("count", func(e *jx.Encoder) { e.Int(p.Rating.Count) })
			})
		})
		if m := p.Metadata; m != nil {
			e.Field("metadata", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("ingredients", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, s := range m.Ingredients {
								e.Str(s)
							}
						})
					})
					e.Field("calories", func(e *jx.Encoder) { e.Int(m.Calories) })
					e.Field("veg", func(e *jx.Encoder) { e.Bool(m.Veg) })
				})
			})
		}
		if !p.CreatedAt.IsZero() {
			e.Field("createdAt", func(e *jx.Encoder) { timestamp(e, p.CreatedAt) })
		}
		e.Field("updatedAt", func(e *jx.Encoder) { timestamp(e, p.UpdatedAt) })
	})
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	rules, err := h.coupons.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, rule := range rules {
				e.Obj(func(e *jx.Encoder) {
					e.Field("code", func(e *jx.Encoder) { e.Str(rule.Code) })
					e.Field("type", func(e *jx.Encoder) { e.Str(string(rule.DiscountType)) })
					e.Field("value", func(e *jx.Encoder) { money(e, rule.Value) })
					e.Field("minOrder", func(e *jx.Encoder) { money(e, rule.MinOrder) })
					if !rule.ValidTill.IsZero() {
						e.Field("validTill", func(e *jx.Encoder) { e.Str(rule.ValidTill.Format(time.DateOnly)) })
					}
					e.Field("description", func(e *jx.Encoder) { e.Str(rule.Description) })
				})
			}
		})
	})
}
