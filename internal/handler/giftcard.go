package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

func (h *Handler) issueGiftCard(w http.ResponseWriter, r *http.Request, m tenant.MerchantID) {
	var (
		amount    decimal.Decimal
		expiresAt *time.Time
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "amount":
			amount, err = decodeDecimal(d)
		case "expiresAt":
			expiresAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	card, err := h.giftcards.Issue(r.Context(), m, amount, expiresAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, func(e *jx.Encoder) { encodeGiftCard(e, card) })
}

func (h *Handler) giftCardBalance(w http.ResponseWriter, r *http.Request, m tenant.MerchantID) {
	card, err := h.giftcards.Balance(r.Context(), m, r.PathValue("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, func(e *jx.Encoder) { encodeGiftCard(e, card) })
}
