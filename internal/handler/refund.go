package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

func (h *Handler) createRefund(w http.ResponseWriter, r *http.Request, m tenant.MerchantID) {
	var reason string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "reason" {
			return d.Skip()
		}
		var err error
		reason, err = d.Str()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.refunds.CreateFullRefund(r.Context(), m, r.PathValue("orderID"), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, func(e *jx.Encoder) { encodeRefundResult(e, res) })
}
