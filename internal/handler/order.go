package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/tikis23/psp-2025/internal/domain/audit"
	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
	"github.com/tikis23/psp-2025/pkg/httpmiddleware"
)

// MerchantHeader carries the merchant id of every API request.
const MerchantHeader = httpmiddleware.MerchantHeader

type merchantHandler func(w http.ResponseWriter, r *http.Request, merchant tenant.MerchantID)

// merchant resolves the tenant of the request before calling next and tags
// audit events with the request id.
func (h *Handler) merchant(next merchantHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := tenant.Parse(r.Header.Get(MerchantHeader))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := audit.WithRequestID(r.Context(), httpmiddleware.RequestIDFromContext(r.Context()))
		next(w, r.WithContext(ctx), m)
	}
}

// view runs an order operation and writes the resulting view.
func (h *Handler) view(w http.ResponseWriter, r *http.Request, status int, fn func(ctx context.Context) (*order.View, error)) {
	v, err := fn(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, status, func(e *jx.Encoder) { encodeView(e, v) })
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request, m tenant.MerchantID) {
	h.view(w, r, http.StatusCreated, func(ctx context.Context) (*order.View, error) {
		return h.orders.Create(ctx, m)
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, m tenant.MerchantID) {
	h.view(w, r, http.StatusOK, func(ctx context.Context) (*order.View, error) {
		return h.orders.Get(ctx, m, r.PathValue("orderID"))
	})
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request, m tenant.MerchantID) {
	req := order.AddItemRequest{Quantity: 1}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "itemId":
			req.CatalogItemID, err = d.Str()
		case "quantity":
			req.Quantity, err = d.Int()
		case "variationIds":
			req.VariationIDs, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && req.CatalogItemID == "" {
		err = badRequest(errors.New("itemId is required"))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.view(w, r, http.StatusOK, func(ctx context.Context) (*order.View, error) {
		return h.orders.AddItem(ctx, m, r.PathValue("orderID"), req)
	})
}

func (h *Handler) updateQuantity(w http.ResponseWriter, r *http.Request, m tenant.MerchantID) {
	quantity, set := 0, false
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		set = true
		var err error
		quantity, err = d.Int()
		return err
	})
	if err == nil && !set {
		err = badRequest(errors.New("quantity is required"))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.view(w, r, http.StatusOK, func(ctx context.Context) (*order.View, error) {
		return h.orders.UpdateItemQuantity(ctx, m, r.PathValue("orderID"), r.PathValue("itemID"), quantity)
	})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request, m tenant.MerchantID) {
	h.view(w, r, http.StatusOK, func(ctx context.Context) (*order.View, error) {
		return h.orders.RemoveItem(ctx, m, r.PathValue("orderID"), r.PathValue("itemID"))
	})
}

// decodeCode reads {"code": "..."}.
func decodeCode(w http.ResponseWriter, r *http.Request) (string, error) {
	var code string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		var err error
		code, err = d.Str()
		return err
	})
	if err == nil && code == "" {
		err = badRequest(errors.New("code is required"))
	}
	return code, err
}

func (h *Handler) applyOrderDiscount(w http.ResponseWriter, r *http.Request, m tenant.MerchantID) {
	code, err := decodeCode(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.view(w, r, http.StatusOK, func(ctx context.Context) (*order.View, error) {
		return h.orders.ApplyOrderDiscount(ctx, m, r.PathValue("orderID"), code)
	})
}

func (h *Handler) applyItemDiscount(w http.ResponseWriter, r *http.Request, m tenant.MerchantID) {
	code, err := decodeCode(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.view(w, r, http.StatusOK, func(ctx context.Context) (*order.View, error) {
		return h.orders.ApplyItemDiscount(ctx, m, r.PathValue("orderID"), r.PathValue("itemID"), code)
	})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request, m tenant.MerchantID) {
	h.view(w, r, http.StatusOK, func(ctx context.Context) (*order.View, error) {
		return h.orders.Cancel(ctx, m, r.PathValue("orderID"))
	})
}
