package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
	"github.com/tikis23/psp-2025/internal/domain/tenant"
)

// badRequestError marks malformed input that never reached the domain.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }

func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &badRequestError{err: err}
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var bre *badRequestError
	if errors.As(err, &bre) || errors.Is(err, tenant.ErrInvalidMerchant) {
		return http.StatusBadRequest
	}
	switch apperr.KindOf(err) {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Validation:
		return http.StatusUnprocessableEntity
	case apperr.InvalidState:
		return http.StatusConflict
	case apperr.InsufficientFunds:
		return http.StatusPaymentRequired
	case apperr.ExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with {"code","message"}. Internal errors are logged
// and their message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	lg := zctx.From(r.Context())
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusBadGateway:
		lg.Error("Request failed", zap.Error(err))
		msg = "internal error"
	case status == http.StatusBadGateway:
		lg.Warn("Processor call failed", zap.Error(err))
	default:
		lg.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// respond encodes a response body with fn.
func respond(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	writeJSON(w, status, e.Bytes())
}
