package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrBadSignature возвращается, если подпись уведомления не прошла проверку.
var ErrBadSignature = errors.New("invalid webhook signature")

// EventKind определяет, какие уведомления процессора обрабатывает портал.
type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment_succeeded"
	EventPaymentFailed    EventKind = "payment_failed"
	EventIgnored          EventKind = "ignored"
)

// Event описывает проверенное уведомление процессора о платёжном намерении или счёте процессора.
// Для событий счёта заполнен ProcessorInvoiceID.
type Event struct {
	ID                 string
	Type               string
	Kind               EventKind
	PaymentIntentID    string
	ProcessorInvoiceID string
	AmountCents        int64
	Metadata           map[string]string
	FailureMessage     string
}

// ParseEvent проверяет подпись уведомления и извлекает из него платёжное намерение или счёт.
func (g *Gateway) ParseEvent(payload []byte, signature string) (*Event, error) {
	if g == nil || g.webhookSecret == "" {
		return nil, ErrNotConfigured
	}
	if signature == "" {
		return nil, ErrBadSignature
	}

	ev, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	res := &Event{ID: ev.ID, Type: string(ev.Type), Kind: EventIgnored}

	switch ev.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		res.PaymentIntentID = pi.ID
		res.AmountCents = pi.Amount
		res.Metadata = pi.Metadata
		if ev.Type == stripe.EventTypePaymentIntentSucceeded {
			res.Kind = EventPaymentSucceeded
		} else {
			res.Kind = EventPaymentFailed
			if pi.LastPaymentError != nil {
				res.FailureMessage = pi.LastPaymentError.Msg
			}
		}
	case stripe.EventTypeInvoicePaid, stripe.EventTypeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		res.ProcessorInvoiceID = inv.ID
		res.Metadata = inv.Metadata
		if ev.Type == stripe.EventTypeInvoicePaid {
			res.Kind = EventPaymentSucceeded
			res.AmountCents = inv.AmountPaid
		} else {
			res.Kind = EventPaymentFailed
			res.AmountCents = inv.AmountDue
		}
	}
	return res, nil
}
