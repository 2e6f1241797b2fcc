package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

const recentFeedSize = 5

// AdminDashboard содержит сводку для администратора. Все значения вычисляются заново при каждом запросе.
type AdminDashboard struct {
	TodayAppointments    []model.Appointment
	UpcomingCount        int
	UnpaidInvoices       []model.Invoice
	PendingRequests      []model.ServiceRequest
	PendingRegistrations []model.Profile
	RecentPayments       []model.Invoice
	MonthRevenueCents    int64
	TotalRevenueCents    int64
	ManualClaims         []model.Invoice
	RecentNotifications  []model.Notification
	UnreadNotifications  int

	OutstandingCents int64
	OverdueCount     int
	AttentionCount   int
}

// AdminDashboard собирает сводку параллельными запросами к хранилищу.
func (s *Service) AdminDashboard(ctx context.Context) (*AdminDashboard, error) {
	today := s.today()
	tomorrow := today.AddDate(0, 0, 1)
	weekAhead := today.AddDate(0, 0, 7)
	weekAgo := s.now().Add(-7 * 24 * time.Hour)
	nowLocal := s.now().In(s.loc)
	monthStart := time.Date(nowLocal.Year(), nowLocal.Month(), 1, 0, 0, 0, 0, s.loc)
	pending := model.ServiceRequestPending
	pendingAccount := model.AccountStatusPending

	d := &AdminDashboard{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		d.TodayAppointments, err = s.repo.ListAppointments(ctx, repository.AppointmentFilter{From: &today, To: &today})
		return err
	})
	g.Go(func() (err error) {
		d.UpcomingCount, err = s.repo.CountAppointments(ctx, tomorrow, weekAhead)
		return err
	})
	g.Go(func() (err error) {
		d.UnpaidInvoices, err = s.repo.ListInvoicesByStatus(ctx, model.InvoiceStatusSent, model.InvoiceStatusOverdue)
		return err
	})
	g.Go(func() (err error) {
		d.PendingRequests, err = s.repo.ListServiceRequests(ctx, &pending)
		return err
	})
	g.Go(func() (err error) {
		d.PendingRegistrations, err = s.repo.ListProfiles(ctx, &pendingAccount)
		return err
	})
	g.Go(func() (err error) {
		d.RecentPayments, err = s.repo.ListPaidInvoicesSince(ctx, weekAgo)
		return err
	})
	g.Go(func() (err error) {
		d.MonthRevenueCents, err = s.repo.SumRevenue(ctx, &monthStart)
		return err
	})
	g.Go(func() (err error) {
		d.TotalRevenueCents, err = s.repo.SumRevenue(ctx, nil)
		return err
	})
	g.Go(func() (err error) {
		d.ManualClaims, err = s.repo.ListPendingManualClaims(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.RecentNotifications, _, err = s.repo.ListNotifications(ctx, repository.NotificationQuery{
			Feed:  model.FeedAdmin,
			Limit: recentFeedSize,
		})
		return err
	})
	g.Go(func() (err error) {
		d.UnreadNotifications, err = s.repo.CountUnreadNotifications(ctx, model.FeedAdmin, nil)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, inv := range d.UnpaidInvoices {
		d.OutstandingCents += inv.AmountDueCents()
		if inv.Status == model.InvoiceStatusOverdue {
			d.OverdueCount++
		}
	}
	d.AttentionCount = d.OverdueCount + len(d.PendingRequests) + len(d.ManualClaims) + len(d.PendingRegistrations)
	return d, nil
}

// CustomerDashboard содержит сводку для клиента.
type CustomerDashboard struct {
	Profile          model.Profile
	NextAppointment  *AppointmentView
	OutstandingCents int64
	OpenInvoices     int
	UnreadCount      int
	CreditsCents     int64
	RecentInvoices   []model.Invoice
}

const recentInvoices = 3

// CustomerDashboard собирает сводку клиента.
func (s *Service) CustomerDashboard(ctx context.Context, actor *model.Profile) (*CustomerDashboard, error) {
	var (
		list     *AppointmentList
		invoices []model.Invoice
	)
	d := &CustomerDashboard{Profile: *actor}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		list, err = s.ListAppointments(ctx, actor)
		return err
	})
	g.Go(func() (err error) {
		invoices, err = s.ListInvoices(ctx, actor)
		return err
	})
	g.Go(func() (err error) {
		d.UnreadCount, err = s.repo.CountUnreadNotifications(ctx, model.FeedCustomer, &actor.ID)
		return err
	})
	g.Go(func() (err error) {
		d.CreditsCents, err = s.repo.SumCredits(ctx, actor.ID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(list.Upcoming) > 0 {
		next := list.Upcoming[0]
		d.NextAppointment = &next
	}
	for _, inv := range invoices {
		if inv.Status.Payable() {
			d.OutstandingCents += inv.AmountDueCents()
			d.OpenInvoices++
		}
	}
	if len(invoices) > recentInvoices {
		invoices = invoices[:recentInvoices]
	}
	d.RecentInvoices = invoices
	return d, nil
}
