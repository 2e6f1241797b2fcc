// Package payment инкапсулирует обращения к платёжному процессору Stripe.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
)

// ErrNotConfigured возвращается, если ключ платёжного процессора не задан.
var ErrNotConfigured = errors.New("payment processor not configured")

const requiresActionCode = "invoice_payment_intent_requires_action"

// Status описывает итог попытки оплаты.
type Status string

const (
	StatusSucceeded      Status = "succeeded"
	StatusRequiresAction Status = "requires_action"
	StatusProcessing     Status = "processing"
	StatusFailed         Status = "failed"
)

// DeclineError передаёт сообщение процессора клиенту без изменений.
type DeclineError struct {
	Code    string
	Message string
}

func (e *DeclineError) Error() string {
	return e.Message
}

// ChargeRequest описывает оплату счёта картой.
type ChargeRequest struct {
	InvoiceID          string
	InvoiceNumber      string
	ProcessorInvoiceID string
	CustomerID         string
	PaymentMethodID    string
	AmountCents        int64
	SaveCard           bool
	ReceiptEmail       string
}

// IntentRequest описывает разовый платёж без счёта, например покупку подарочного сертификата.
type IntentRequest struct {
	AmountCents  int64
	Description  string
	ReceiptEmail string
	Metadata     map[string]string
}

// Result описывает состояние платёжного намерения после обращения к процессору.
type Result struct {
	Status          Status
	PaymentIntentID string
	ClientSecret    string
	AmountCents     int64
	PaymentMethodID string
	Metadata        map[string]string
}

// Card описывает реквизиты сохранённой карты, доступные для отображения.
type Card struct {
	ID       string
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
}

// Gateway выполняет платежи через Stripe.
type Gateway struct {
	sc            *stripe.Client
	currency      string
	webhookSecret string
}

// NewGateway создаёт шлюз. При пустом secretKey платёжные операции возвращают ErrNotConfigured,
// при пустом webhookSecret отклоняются все уведомления процессора.
func NewGateway(secretKey, webhookSecret, currency string) *Gateway {
	g := &Gateway{
		currency:      strings.ToLower(currency),
		webhookSecret: webhookSecret,
	}
	if g.currency == "" {
		g.currency = string(stripe.CurrencyUSD)
	}
	if secretKey != "" {
		g.sc = stripe.NewClient(secretKey)
	}
	return g
}

// Enabled сообщает, настроен ли доступ к процессору.
func (g *Gateway) Enabled() bool {
	return g != nil && g.sc != nil
}

// CreateCustomer заводит клиента в процессоре и возвращает его идентификатор.
func (g *Gateway) CreateCustomer(ctx context.Context, email, name, profileID string) (string, error) {
	if !g.Enabled() {
		return "", ErrNotConfigured
	}
	params := &stripe.CustomerCreateParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.AddMetadata("profile_id", profileID)

	c, err := g.sc.V1Customers.Create(ctx, params)
	if err != nil {
		return "", wrapError("create customer", err)
	}
	return c.ID, nil
}

// Charge оплачивает счёт. Если счёт выставлен в процессоре, оплачивается он,
// иначе создаётся и подтверждается платёжное намерение с metadata invoice_id.
func (g *Gateway) Charge(ctx context.Context, req ChargeRequest) (*Result, error) {
	if !g.Enabled() {
		return nil, ErrNotConfigured
	}
	if req.ProcessorInvoiceID != "" {
		return g.payProcessorInvoice(ctx, req)
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(g.currency),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String("Invoice " + req.InvoiceNumber),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.SaveCard && req.CustomerID != "" {
		params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	params.AddMetadata("invoice_id", req.InvoiceID)
	params.AddMetadata("invoice_number", req.InvoiceNumber)

	pi, err := g.sc.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, wrapError("create payment intent", err)
	}
	return intentResult(pi), nil
}

func (g *Gateway) payProcessorInvoice(ctx context.Context, req ChargeRequest) (*Result, error) {
	params := &stripe.InvoicePayParams{
		PaymentMethod: stripe.String(req.PaymentMethodID),
	}
	inv, err := g.sc.V1Invoices.Pay(ctx, req.ProcessorInvoiceID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && string(se.Code) == requiresActionCode && se.PaymentIntent != nil {
			return intentResult(se.PaymentIntent), nil
		}
		return nil, wrapError("pay invoice", err)
	}
	if inv.Status != stripe.InvoiceStatusPaid {
		return &Result{Status: StatusProcessing, AmountCents: inv.AmountDue}, nil
	}
	return &Result{Status: StatusSucceeded, AmountCents: inv.AmountPaid, PaymentMethodID: req.PaymentMethodID}, nil
}

// CreateIntent создаёт платёжное намерение, подтверждаемое в браузере по client secret.
func (g *Gateway) CreateIntent(ctx context.Context, req IntentRequest) (*Result, error) {
	if !g.Enabled() {
		return nil, ErrNotConfigured
	}
	params := &stripe.PaymentIntentCreateParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(g.currency),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.sc.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, wrapError("create payment intent", err)
	}
	return intentResult(pi), nil
}

// RetrieveIntent возвращает текущее состояние платёжного намерения.
func (g *Gateway) RetrieveIntent(ctx context.Context, id string) (*Result, error) {
	if !g.Enabled() {
		return nil, ErrNotConfigured
	}
	pi, err := g.sc.V1PaymentIntents.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, wrapError("retrieve payment intent", err)
	}
	return intentResult(pi), nil
}

// CardDetails возвращает отображаемые реквизиты карты.
func (g *Gateway) CardDetails(ctx context.Context, paymentMethodID string) (*Card, error) {
	if !g.Enabled() {
		return nil, ErrNotConfigured
	}
	pm, err := g.sc.V1PaymentMethods.Retrieve(ctx, paymentMethodID, nil)
	if err != nil {
		return nil, wrapError("retrieve payment method", err)
	}
	card := &Card{ID: pm.ID}
	if pm.Card != nil {
		card.Brand = string(pm.Card.Brand)
		card.Last4 = pm.Card.Last4
		card.ExpMonth = int(pm.Card.ExpMonth)
		card.ExpYear = int(pm.Card.ExpYear)
	}
	return card, nil
}

// DetachCard отвязывает карту от клиента в процессоре.
func (g *Gateway) DetachCard(ctx context.Context, paymentMethodID string) error {
	if !g.Enabled() {
		return ErrNotConfigured
	}
	if _, err := g.sc.V1PaymentMethods.Detach(ctx, paymentMethodID, nil); err != nil {
		return wrapError("detach payment method", err)
	}
	return nil
}

func intentResult(pi *stripe.PaymentIntent) *Result {
	res := &Result{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		AmountCents:     pi.Amount,
		Metadata:        pi.Metadata,
	}
	if pi.PaymentMethod != nil {
		res.PaymentMethodID = pi.PaymentMethod.ID
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		res.Status = StatusSucceeded
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		res.Status = StatusRequiresAction
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		res.Status = StatusProcessing
	default:
		res.Status = StatusFailed
	}
	return res
}

// wrapError превращает ошибки карты в DeclineError с сообщением процессора.
func wrapError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && (se.Type == stripe.ErrorTypeCard || se.Type == stripe.ErrorTypeInvalidRequest) {
		msg := se.Msg
		if msg == "" {
			msg = "payment was declined"
		}
		return &DeclineError{Code: string(se.Code), Message: msg}
	}
	return fmt.Errorf("%s: %w", op, err)
}
