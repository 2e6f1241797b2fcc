package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

func TestInvoiceDetail_PaidShowsZeroDue(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusPaid)

	d, err := env.svc.InvoiceDetail(context.Background(), env.customer, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, "$0.00", d.Breakdown.AmountDueDisplay)
	assert.Equal(t, int64(10800), d.Breakdown.TotalCents)
	assert.Equal(t, "Jane Doe", d.Customer.Name)
	assert.Equal(t, "jane@example.com", d.Customer.Email)
}

func TestInvoiceDetail_Access(t *testing.T) {
	env := newTestEnv(t)
	draft := env.addInvoice(model.InvoiceStatusDraft)
	sent := env.addInvoice(model.InvoiceStatusSent)
	stranger := &model.Profile{ID: uuid.New(), Role: model.RoleCustomer}

	_, err := env.svc.InvoiceDetail(context.Background(), env.customer, draft.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = env.svc.InvoiceDetail(context.Background(), stranger, sent.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	d, err := env.svc.InvoiceDetail(context.Background(), env.admin, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "$108.00", d.Breakdown.AmountDueDisplay)
}

func TestListInvoices_HidesDrafts(t *testing.T) {
	env := newTestEnv(t)
	env.addInvoice(model.InvoiceStatusDraft)
	sent := env.addInvoice(model.InvoiceStatusSent)

	list, err := env.svc.ListInvoices(context.Background(), env.customer)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sent.ID, list[0].ID)
}

func TestCreateInvoice_AddsTaxLine(t *testing.T) {
	env := newTestEnv(t)

	inv, err := env.svc.CreateInvoice(context.Background(), NewInvoiceInput{
		ProfileID: env.customer.ID,
		Items: []LineItemInput{
			{Description: "Deep Cleaning", Quantity: 1, RateCents: 20000},
			{Description: "Inside oven", Quantity: 2, RateCents: 2500},
		},
		TaxRate: 6.625,
	})
	require.NoError(t, err)

	require.Len(t, inv.LineItems, 3)
	assert.Equal(t, "Tax (6.625%)", inv.LineItems[2].Description)
	assert.Equal(t, int64(25000), inv.AmountCents)
	assert.Equal(t, int64(1656), inv.TaxAmountCents)
	assert.Equal(t, int64(26656), inv.TotalCents)
	assert.Equal(t, model.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, model.PaymentStateUnpaid, inv.PaymentState)
	assert.Equal(t, day(14), inv.DueDate)
}

func TestCreateInvoice_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		in    NewInvoiceInput
		field string
	}{
		{"no items", NewInvoiceInput{ProfileID: env.customer.ID}, "line_items"},
		{"manual tax row", NewInvoiceInput{ProfileID: env.customer.ID, Items: []LineItemInput{{Description: "Sales tax", RateCents: 5}}}, "line_items[0].description"},
		{"negative rate", NewInvoiceInput{ProfileID: env.customer.ID, Items: []LineItemInput{{Description: "Refund", RateCents: -5}}}, "line_items[0]"},
		{"tax rate", NewInvoiceInput{ProfileID: env.customer.ID, Items: []LineItemInput{{Description: "Cleaning", RateCents: 5}}, TaxRate: 120}, "tax_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateInvoice(context.Background(), tt.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCreateInvoiceFromAppointment(t *testing.T) {
	env := newTestEnv(t)
	pending := env.addAppointment(-1, model.TimeWindowMorning, model.AppointmentStatusConfirmed)
	done := env.addAppointment(-1, model.TimeWindowAfternoon, model.AppointmentStatusCompleted)

	_, err := env.svc.CreateInvoiceFromAppointment(context.Background(), FromAppointmentInput{
		AppointmentID: pending.ID,
		AmountCents:   15000,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	inv, err := env.svc.CreateInvoiceFromAppointment(context.Background(), FromAppointmentInput{
		AppointmentID: done.ID,
		AmountCents:   15000,
	})
	require.NoError(t, err)
	require.NotNil(t, inv.AppointmentID)
	assert.Equal(t, done.ID, *inv.AppointmentID)
	require.Len(t, inv.LineItems, 1)
	assert.Equal(t, "Standard Cleaning - Mar 9, 2026", inv.LineItems[0].Description)
	assert.Equal(t, int64(15000), inv.TotalCents)
}

func TestSendInvoice(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusDraft)

	sent, err := env.svc.SendInvoice(context.Background(), inv.ID, inv.RowVersion)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusSent, sent.Status)
	assert.NotNil(t, sent.SentAt)

	require.Len(t, env.notifier.customer, 1)
	assert.Contains(t, env.notifier.customer[0].Body, "$108.00")

	_, err = env.svc.SendInvoice(context.Background(), inv.ID, sent.RowVersion)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestClaimManualPayment(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusSent)

	claimed, err := env.svc.ClaimManualPayment(context.Background(), env.customer, inv.ID, inv.RowVersion)
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceStatusSent, claimed.Status)
	assert.Equal(t, model.PaymentStatePendingManualVerification, claimed.PaymentState)
	require.NotNil(t, claimed.PaymentMethod)
	assert.Equal(t, model.PaymentMethodZelle, *claimed.PaymentMethod)
	assert.Contains(t, claimed.Notes, "pending verification")
	assert.Nil(t, claimed.PaidDate)
	assert.Equal(t, 1, env.repo.invoiceUpdates)

	feed := env.repo.feed(model.FeedAdmin)
	require.Len(t, feed, 1)
	assert.Equal(t, model.NotificationManualPaymentSubmitted, feed[0].Type)

	_, err = env.svc.ClaimManualPayment(context.Background(), env.customer, inv.ID, claimed.RowVersion)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestClaimManualPayment_FailedUpdateLeavesInvoice(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusSent)
	env.repo.updateInvoiceFn = func(*model.Invoice) error { return assert.AnError }

	_, err := env.svc.ClaimManualPayment(context.Background(), env.customer, inv.ID, inv.RowVersion)
	require.ErrorIs(t, err, assert.AnError)

	stored := env.repo.invoices[inv.ID]
	assert.Equal(t, model.PaymentStateUnpaid, stored.PaymentState)
	assert.Nil(t, stored.PaymentMethod)
	assert.Empty(t, stored.Notes)
	assert.Empty(t, env.repo.feed(model.FeedAdmin))
}

func TestVerifyAndRejectManualPayment(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusOverdue)
	claimed, err := env.svc.ClaimManualPayment(context.Background(), env.customer, inv.ID, inv.RowVersion)
	require.NoError(t, err)

	rejected, err := env.svc.RejectManualPayment(context.Background(), inv.ID, claimed.RowVersion, "no transfer found")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStateUnpaid, rejected.PaymentState)
	assert.Nil(t, rejected.PaymentMethod)
	assert.Contains(t, rejected.Notes, "no transfer found")

	_, err = env.svc.VerifyManualPayment(context.Background(), inv.ID, rejected.RowVersion)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	claimed, err = env.svc.ClaimManualPayment(context.Background(), env.customer, inv.ID, rejected.RowVersion)
	require.NoError(t, err)
	paid, err := env.svc.VerifyManualPayment(context.Background(), inv.ID, claimed.RowVersion)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, model.PaymentStatePaid, paid.PaymentState)
	assert.Equal(t, model.PaymentMethodZelle, *paid.PaymentMethod)
	assert.NotNil(t, paid.PaidDate)
	assert.Equal(t, int64(0), paid.AmountDueCents())
}

func TestRecordOfflinePayment(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusSent)

	_, err := env.svc.RecordOfflinePayment(context.Background(), inv.ID, inv.RowVersion, model.PaymentMethodZelle, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = env.svc.RecordOfflinePayment(context.Background(), inv.ID, inv.RowVersion+3, model.PaymentMethodCash, "")
	require.ErrorIs(t, err, repository.ErrVersionConflict)

	paid, err := env.svc.RecordOfflinePayment(context.Background(), inv.ID, inv.RowVersion, model.PaymentMethodCheck, "check #1042")
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, model.PaymentMethodCheck, *paid.PaymentMethod)
	assert.Contains(t, paid.Notes, "check #1042")
}

func TestCancelInvoice(t *testing.T) {
	env := newTestEnv(t)
	paid := env.addInvoice(model.InvoiceStatusPaid)
	sent := env.addInvoice(model.InvoiceStatusSent)

	_, err := env.svc.CancelInvoice(context.Background(), paid.ID, paid.RowVersion)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	cancelled, err := env.svc.CancelInvoice(context.Background(), sent.ID, sent.RowVersion)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusCancelled, cancelled.Status)
}

func TestManualPaymentInstructions(t *testing.T) {
	env := newTestEnv(t)
	inv := env.addInvoice(model.InvoiceStatusSent)

	ins, err := env.svc.ManualPaymentInstructions(context.Background(), env.customer, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "pay@sparkle.example", ins.Recipient)
	assert.Equal(t, "$108.00", ins.AmountDisplay)
	assert.Equal(t, inv.Number, ins.Reference)
}
