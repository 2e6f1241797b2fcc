package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/payment"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

func TestPayByCard_Success(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusSent)
	env.gateway.chargeResult = &payment.Result{Status: payment.StatusSucceeded, PaymentIntentID: "pi_1"}

	out, err := env.svc.PayByCard(context.Background(), env.customer, inv.ID, CardPaymentInput{
		AmountCents:     10800,
		PaymentMethodID: "pm_new",
		SaveCard:        true,
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, model.InvoiceStatusPaid, out.Invoice.Status)
	assert.Equal(t, model.PaymentMethodStripe, *out.Invoice.PaymentMethod)

	assert.Equal(t, "cus_1", env.gateway.chargeReq.CustomerID)
	assert.Equal(t, inv.Number, env.gateway.chargeReq.InvoiceNumber)
	assert.True(t, env.gateway.chargeReq.SaveCard)
	require.NotNil(t, env.repo.profiles[env.customer.ID].StripeCustomerID)

	require.Len(t, env.repo.methods, 1)
	assert.Equal(t, "4242", env.repo.methods[0].Last4)

	require.Len(t, env.repo.feed(model.FeedCustomer), 1)
	require.Len(t, env.repo.feed(model.FeedAdmin), 1)
	require.Len(t, env.notifier.business, 1)
	assert.Contains(t, env.notifier.business[0].Body, "$108.00")
}

func TestPayByCard_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(env *testEnv)
		in      CardPaymentInput
		wantErr error
	}{
		{
			name:    "amount mismatch",
			in:      CardPaymentInput{AmountCents: 10000, PaymentMethodID: "pm_1"},
			wantErr: ErrAmountMismatch,
		},
		{
			name:    "not configured",
			prepare: func(env *testEnv) { env.gateway.enabled = false },
			in:      CardPaymentInput{AmountCents: 10800, PaymentMethodID: "pm_1"},
			wantErr: ErrNotConfigured,
		},
		{
			name: "foreign saved card",
			in: func() CardPaymentInput {
				id := uuid.New()
				return CardPaymentInput{AmountCents: 10800, SavedMethodID: &id}
			}(),
			wantErr: repository.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			inv := env.addInvoice(model.InvoiceStatusSent)
			if tt.prepare != nil {
				tt.prepare(env)
			}

			_, err := env.svc.PayByCard(context.Background(), env.customer, inv.ID, tt.in)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, env.repo.invoiceUpdates)
		})
	}
}

func TestPayByCard_DraftNotPayable(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusDraft)

	_, err := env.svc.PayByCard(context.Background(), env.customer, inv.ID, CardPaymentInput{AmountCents: 10800, PaymentMethodID: "pm_1"})
	assert.ErrorIs(t, err, ErrInvoiceNotPayable)
}

func TestPayByCard_DeclinePassesProcessorMessage(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusSent)
	env.gateway.chargeErr = &payment.DeclineError{Code: "insufficient_funds", Message: "Your card has insufficient funds."}

	_, err := env.svc.PayByCard(context.Background(), env.customer, inv.ID, CardPaymentInput{AmountCents: 10800, PaymentMethodID: "pm_1"})
	var decline *payment.DeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, "Your card has insufficient funds.", decline.Message)
	assert.Equal(t, model.InvoiceStatusSent, env.repo.invoices[inv.ID].Status)
}

func TestPayByCard_RequiresActionThenConfirm(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusSent)
	env.gateway.chargeResult = &payment.Result{
		Status:          payment.StatusRequiresAction,
		PaymentIntentID: "pi_3ds",
		ClientSecret:    "pi_3ds_secret",
	}

	out, err := env.svc.PayByCard(context.Background(), env.customer, inv.ID, CardPaymentInput{AmountCents: 10800, PaymentMethodID: "pm_1"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.True(t, out.RequiresAction)
	assert.Equal(t, "pi_3ds_secret", out.ClientSecret)
	assert.Equal(t, "pi_3ds", *env.repo.invoices[inv.ID].PaymentIntentID)
	assert.Equal(t, model.InvoiceStatusSent, env.repo.invoices[inv.ID].Status)

	_, err = env.svc.ConfirmCardPayment(context.Background(), env.customer, inv.ID, "pi_other", false)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	env.gateway.retrieveResult = &payment.Result{Status: payment.StatusProcessing, PaymentIntentID: "pi_3ds"}
	_, err = env.svc.ConfirmCardPayment(context.Background(), env.customer, inv.ID, "pi_3ds", false)
	require.ErrorIs(t, err, ErrPaymentIncomplete)

	env.gateway.retrieveResult = &payment.Result{Status: payment.StatusSucceeded, PaymentIntentID: "pi_3ds", PaymentMethodID: "pm_1"}
	confirmed, err := env.svc.ConfirmCardPayment(context.Background(), env.customer, inv.ID, "pi_3ds", true)
	require.NoError(t, err)
	assert.True(t, confirmed.Success)
	assert.Equal(t, model.InvoiceStatusPaid, confirmed.Invoice.Status)
	assert.Len(t, env.repo.methods, 1)

	again, err := env.svc.ConfirmCardPayment(context.Background(), env.customer, inv.ID, "pi_3ds", true)
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Len(t, env.repo.feed(model.FeedAdmin), 1)
}

func TestHandleWebhook_Succeeded(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusSent)
	env.gateway.event = &payment.Event{
		ID:              "evt_1",
		Kind:            payment.EventPaymentSucceeded,
		PaymentIntentID: "pi_hook",
		Metadata:        map[string]string{"invoice_id": inv.ID.String()},
	}

	require.NoError(t, env.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	stored := env.repo.invoices[inv.ID]
	assert.Equal(t, model.InvoiceStatusPaid, stored.Status)
	assert.Equal(t, "pi_hook", *stored.PaymentIntentID)

	// повторная доставка не меняет счёт и не дублирует уведомления
	require.NoError(t, env.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	assert.Equal(t, 1, env.repo.invoiceUpdates)
	assert.Len(t, env.repo.feed(model.FeedAdmin), 1)
}

func TestHandleWebhook_FailedProcessingCanBeRedelivered(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusSent)
	env.gateway.event = &payment.Event{
		ID:              "evt_2",
		Kind:            payment.EventPaymentSucceeded,
		PaymentIntentID: "pi_hook",
		Metadata:        map[string]string{"invoice_id": inv.ID.String()},
	}
	env.repo.updateInvoiceFn = func(*model.Invoice) error { return assert.AnError }

	err := env.svc.HandleWebhook(context.Background(), []byte("{}"), "sig")
	require.ErrorIs(t, err, assert.AnError)
	assert.False(t, env.repo.events["evt_2"])

	env.repo.updateInvoiceFn = nil
	require.NoError(t, env.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	assert.Equal(t, model.InvoiceStatusPaid, env.repo.invoices[inv.ID].Status)
}

func TestHandleWebhook_PaymentFailedNotifiesCustomer(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusSent)
	intent := "pi_fail"
	stored := env.repo.invoices[inv.ID]
	stored.PaymentIntentID = &intent
	env.repo.invoices[inv.ID] = stored
	env.gateway.event = &payment.Event{
		ID:              "evt_3",
		Kind:            payment.EventPaymentFailed,
		PaymentIntentID: intent,
		FailureMessage:  "Your card was declined.",
	}

	require.NoError(t, env.svc.HandleWebhook(context.Background(), nil, "sig"))
	assert.Equal(t, model.InvoiceStatusSent, env.repo.invoices[inv.ID].Status)
	feed := env.repo.feed(model.FeedCustomer)
	require.Len(t, feed, 1)
	assert.Equal(t, model.NotificationPaymentFailed, feed[0].Type)
	assert.Contains(t, feed[0].Message, "Your card was declined.")
}

func TestHandleWebhook_PaymentForCancelledInvoiceAlertsAdmins(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusCancelled)
	env.gateway.event = &payment.Event{
		ID:              "evt_late",
		Kind:            payment.EventPaymentSucceeded,
		PaymentIntentID: "pi_late",
		AmountCents:     10800,
		Metadata:        map[string]string{"invoice_id": inv.ID.String()},
	}

	require.NoError(t, env.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	assert.True(t, env.repo.events["evt_late"])
	assert.Equal(t, model.InvoiceStatusCancelled, env.repo.invoices[inv.ID].Status)

	feed := env.repo.feed(model.FeedAdmin)
	require.Len(t, feed, 1)
	assert.Equal(t, "Payment received for cancelled invoice", feed[0].Title)
	assert.Contains(t, feed[0].Message, inv.Number)
	assert.Contains(t, feed[0].Message, "$108.00")

	// повторная доставка считается дубликатом
	require.NoError(t, env.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	assert.Len(t, env.repo.feed(model.FeedAdmin), 1)
}

func TestHandleWebhook_ProcessorInvoicePaid(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusSent)
	processorID := "in_789"
	stored := env.repo.invoices[inv.ID]
	stored.ProcessorInvoiceID = &processorID
	env.repo.invoices[inv.ID] = stored

	// оплата счёта процессора завершилась позже, идентификатор намерения не сохранён
	env.gateway.chargeResult = &payment.Result{Status: payment.StatusProcessing}
	out, err := env.svc.PayByCard(context.Background(), env.customer, inv.ID, CardPaymentInput{
		AmountCents:     10800,
		PaymentMethodID: "pm_new",
	})
	require.NoError(t, err)
	assert.True(t, out.Processing)
	assert.Nil(t, env.repo.invoices[inv.ID].PaymentIntentID)

	env.gateway.event = &payment.Event{
		ID:                 "evt_inv_paid",
		Kind:               payment.EventPaymentSucceeded,
		ProcessorInvoiceID: processorID,
		AmountCents:        10800,
	}
	require.NoError(t, env.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))

	paid := env.repo.invoices[inv.ID]
	assert.Equal(t, model.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, model.PaymentStatePaid, paid.PaymentState)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.eventErr = payment.ErrBadSignature

	err := env.svc.HandleWebhook(context.Background(), nil, "forged")
	assert.ErrorIs(t, err, payment.ErrBadSignature)
	assert.Empty(t, env.repo.events)
}

func TestHandleWebhook_IgnoredEvent(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.event = &payment.Event{ID: "evt_4", Kind: payment.EventIgnored}

	require.NoError(t, env.svc.HandleWebhook(context.Background(), nil, "sig"))
	assert.Empty(t, env.repo.events)
}

func TestDeletePaymentMethod_DetachesCard(t *testing.T) {
	env := newTestEnv(t)
	pm := model.PaymentMethod{ID: uuid.New(), ProfileID: env.customer.ID, ProcessorMethodID: "pm_saved", IsDefault: true}
	env.repo.methods = append(env.repo.methods, pm)

	stranger := &model.Profile{ID: uuid.New(), Role: model.RoleCustomer}
	assert.ErrorIs(t, env.svc.DeletePaymentMethod(context.Background(), stranger, pm.ID), repository.ErrNotFound)

	require.NoError(t, env.svc.DeletePaymentMethod(context.Background(), env.customer, pm.ID))
	assert.Empty(t, env.repo.methods)
	assert.Equal(t, []string{"pm_saved"}, env.gateway.detached)
}
