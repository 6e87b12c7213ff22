package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// stripeWebhook verifies a processor delivery and applies it. Only
// unreadable or unverifiable deliveries are rejected; processing failures
// are logged by the ledger and acknowledged so the sender stops retrying.
func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, badRequest(errors.Wrap(err, "read body")))
		return
	}
	ev, err := h.webhooks.Parse(payload, r.Header.Get(h.signatureHeader))
	if err != nil {
		writeError(w, r, badRequest(err))
		return
	}

	h.ledger.HandleWebhook(r.Context(), ev)
	respond(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("received")
		e.Bool(true)
		e.ObjEnd()
	})
}
