package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

func TestAdminDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.addAppointment(0, model.TimeWindowMorning, model.AppointmentStatusConfirmed)
	env.addAppointment(1, model.TimeWindowMorning, model.AppointmentStatusConfirmed)
	env.addAppointment(7, model.TimeWindowMorning, model.AppointmentStatusConfirmed)
	env.addAppointment(8, model.TimeWindowMorning, model.AppointmentStatusConfirmed)
	env.addAppointment(3, model.TimeWindowMorning, model.AppointmentStatusCancelled)

	env.addInvoice(model.InvoiceStatusSent)
	env.addInvoice(model.InvoiceStatusOverdue)
	env.addInvoice(model.InvoiceStatusDraft)
	paid := env.addInvoice(model.InvoiceStatusPaid)
	paidAt := testNow.Add(-24 * time.Hour)
	stored := env.repo.invoices[paid.ID]
	stored.PaidDate = &paidAt
	env.repo.invoices[paid.ID] = stored

	claimed := env.addInvoice(model.InvoiceStatusSent)
	stored = env.repo.invoices[claimed.ID]
	stored.PaymentState = model.PaymentStatePendingManualVerification
	env.repo.invoices[claimed.ID] = stored

	env.addRequest(model.FrequencyOneTime)
	pending := model.Profile{ID: uuid.New(), Role: model.RoleCustomer, AccountStatus: model.AccountStatusPending}
	env.repo.profiles[pending.ID] = pending

	d, err := env.svc.AdminDashboard(context.Background())
	require.NoError(t, err)

	assert.Len(t, d.TodayAppointments, 1)
	assert.Equal(t, 2, d.UpcomingCount)
	assert.Len(t, d.UnpaidInvoices, 3)
	assert.Equal(t, int64(3*10800), d.OutstandingCents)
	assert.Equal(t, 1, d.OverdueCount)
	assert.Len(t, d.ManualClaims, 1)
	assert.Len(t, d.PendingRequests, 1)
	assert.Len(t, d.PendingRegistrations, 1)
	assert.Equal(t, 4, d.AttentionCount)
	assert.Equal(t, int64(10800), d.MonthRevenueCents)
	assert.Equal(t, int64(10800), d.TotalRevenueCents)
	assert.Len(t, d.RecentPayments, 1)
}

func TestCustomerDashboard(t *testing.T) {
	env := newTestEnv(t)
	next := env.addAppointment(3, model.TimeWindowMorning, model.AppointmentStatusConfirmed)
	env.addAppointment(9, model.TimeWindowMorning, model.AppointmentStatusConfirmed)
	env.addInvoice(model.InvoiceStatusSent)
	env.addInvoice(model.InvoiceStatusOverdue)
	env.addInvoice(model.InvoiceStatusDraft)
	env.addInvoice(model.InvoiceStatusPaid)
	env.addInvoice(model.InvoiceStatusPaid)
	env.repo.credits[env.customer.ID] = 2500
	env.svc.notifyCustomer(context.Background(), env.customer.ID, model.NotificationInvoiceSent, "x", "", "", false)

	d, err := env.svc.CustomerDashboard(context.Background(), env.customer)
	require.NoError(t, err)

	require.NotNil(t, d.NextAppointment)
	assert.Equal(t, next.ID, d.NextAppointment.ID)
	assert.True(t, d.NextAppointment.CanCancel)
	assert.Equal(t, int64(2*10800), d.OutstandingCents)
	assert.Equal(t, 2, d.OpenInvoices)
	assert.Equal(t, 1, d.UnreadCount)
	assert.Equal(t, int64(2500), d.CreditsCents)
	assert.Len(t, d.RecentInvoices, 3)
}
