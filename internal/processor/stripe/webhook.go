package stripe

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
	"github.com/tikis23/psp-2025/internal/domain/payment"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = apperr.Mark(errors.New("invalid webhook signature"), apperr.Validation)

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

// WebhookVerifier checks and decodes webhook deliveries.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewWebhookVerifier creates a WebhookVerifier. With an empty secret the
// signature is not checked.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Parse verifies payload against the signature header and extracts the
// event together with the id of the payment intent it refers to. Events
// about other objects come back with an empty ExternalRef.
func (v *WebhookVerifier) Parse(payload []byte, signature string) (payment.WebhookEvent, error) {
	var (
		ev  stripe.Event
		err error
	)
	if v.secret == "" {
		ev, err = decodeEvent(payload)
	} else {
		ev, err = webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
			Tolerance:                v.tolerance,
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			return payment.WebhookEvent{}, errors.Wrap(ErrInvalidSignature, err.Error())
		}
	}
	if err != nil {
		return payment.WebhookEvent{}, err
	}

	out := payment.WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data != nil && len(ev.Data.Raw) > 0 {
		out.ExternalRef, err = intentID(ev.Data.Raw)
		if err != nil {
			return payment.WebhookEvent{}, errors.Wrap(err, "decode event object")
		}
	}
	return out, nil
}

// decodeEvent reads the envelope fields without a signature check.
func decodeEvent(payload []byte) (stripe.Event, error) {
	var ev stripe.Event
	d := jx.DecodeBytes(payload)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			s, err := d.Str()
			ev.ID = s
			return err
		case "type":
			s, err := d.Str()
			ev.Type = stripe.EventType(s)
			return err
		case "data":
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			ev.Data = &stripe.EventData{}
			return jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
				if key != "object" {
					return d.Skip()
				}
				obj, err := d.Raw()
				ev.Data.Raw = append([]byte(nil), obj...)
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return stripe.Event{}, apperr.Mark(errors.Wrap(err, "decode webhook payload"), apperr.Validation)
	}
	return ev, nil
}

// intentID returns the id of a payment_intent object, or "" for any other
// object type.
func intentID(raw []byte) (string, error) {
	var id, object string
	err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			s, err := d.Str()
			id = s
			return err
		case "object":
			s, err := d.Str()
			object = s
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return "", err
	}
	if object != "payment_intent" {
		return "", nil
	}
	return id, nil
}
