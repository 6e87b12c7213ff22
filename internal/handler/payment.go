package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/tikis23/psp-2025/internal/domain/order"
	"github.com/tikis23/psp-2025/internal/domain/payment"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request, m tenant.MerchantID) {
	var req payment.Request
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "tender", "paymentType":
			var s string
			s, err = d.Str()
			req.Tender = order.Tender(s)
		case "amount":
			req.Amount, err = decodeDecimal(d)
		case "tip":
			req.Tip, err = decodeDecimal(d)
		case "giftCardCode":
			req.GiftCardCode, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.ledger.CreatePayment(r.Context(), m, r.PathValue("orderID"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, func(e *jx.Encoder) { encodePaymentResult(e, res) })
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request, m tenant.MerchantID) {
	p, err := h.ledger.CancelPayment(r.Context(), m, r.PathValue("paymentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodePayment(e, p) })
}
