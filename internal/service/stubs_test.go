package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleaning-portal/internal/formrelay"
	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/payment"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

var testLoc = time.FixedZone("EST", -5*60*60)

// testNow вторник, 10 марта 2026, 09:00 по времени бизнеса.
var testNow = time.Date(2026, time.March, 10, 9, 0, 0, 0, testLoc)

func day(offset int) time.Time {
	return civilDate(testNow).AddDate(0, 0, offset)
}

type stubRepo struct {
	Repository

	mu            sync.Mutex
	profiles      map[uuid.UUID]model.Profile
	addresses     map[uuid.UUID]model.ServiceAddress
	appointments  map[uuid.UUID]model.Appointment
	invoices      map[uuid.UUID]model.Invoice
	requests      map[uuid.UUID]model.ServiceRequest
	bookings      map[uuid.UUID]model.Booking
	gifts         map[uuid.UUID]model.GiftCertificate
	methods       []model.PaymentMethod
	notifications map[model.Feed][]model.Notification
	events        map[string]bool
	credits       map[uuid.UUID]int64

	invoiceUpdates  int
	approveNote     string
	invoiceSeq      int
	updateInvoiceFn func(inv *model.Invoice) error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		profiles:      map[uuid.UUID]model.Profile{},
		addresses:     map[uuid.UUID]model.ServiceAddress{},
		appointments:  map[uuid.UUID]model.Appointment{},
		invoices:      map[uuid.UUID]model.Invoice{},
		requests:      map[uuid.UUID]model.ServiceRequest{},
		bookings:      map[uuid.UUID]model.Booking{},
		gifts:         map[uuid.UUID]model.GiftCertificate{},
		notifications: map[model.Feed][]model.Notification{},
		events:        map[string]bool{},
		credits:       map[uuid.UUID]int64{},
	}
}

func (r *stubRepo) Close() error { return nil }

func (r *stubRepo) CreateProfile(_ context.Context, p *model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.ID]; ok {
		return repository.ErrProfileExists
	}
	r.profiles[p.ID] = *p
	return nil
}

func (r *stubRepo) GetProfile(_ context.Context, id uuid.UUID) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *stubRepo) ListProfiles(_ context.Context, status *model.AccountStatus) ([]model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Profile
	for _, p := range r.profiles {
		if p.Role != model.RoleCustomer {
			continue
		}
		if status != nil && p.AccountStatus != *status {
			continue
		}
		res = append(res, p)
	}
	return res, nil
}

func (r *stubRepo) UpdateProfileSettings(_ context.Context, p *model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.ID]; !ok {
		return repository.ErrNotFound
	}
	r.profiles[p.ID] = *p
	return nil
}

func (r *stubRepo) SetAccountStatus(_ context.Context, id uuid.UUID, status model.AccountStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.AccountStatus = status
	r.profiles[id] = p
	return nil
}

func (r *stubRepo) SetStripeCustomerID(_ context.Context, id uuid.UUID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.profiles[id]
	p.StripeCustomerID = &customerID
	r.profiles[id] = p
	return nil
}

func (r *stubRepo) ListAddresses(_ context.Context, profileID uuid.UUID) ([]model.ServiceAddress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.ServiceAddress
	for _, a := range r.addresses {
		if a.ProfileID == profileID {
			res = append(res, a)
		}
	}
	return res, nil
}

func (r *stubRepo) GetAddress(_ context.Context, id uuid.UUID) (*model.ServiceAddress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.addresses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r *stubRepo) AddAddress(_ context.Context, a *model.ServiceAddress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, other := range r.addresses {
		if other.ProfileID == a.ProfileID {
			count++
		}
	}
	if count == 0 {
		a.IsPrimary = true
	}
	if a.IsPrimary {
		r.clearPrimary(a.ProfileID)
	}
	a.ID = uuid.New()
	r.addresses[a.ID] = *a
	return nil
}

func (r *stubRepo) clearPrimary(profileID uuid.UUID) {
	for id, other := range r.addresses {
		if other.ProfileID == profileID && other.IsPrimary {
			other.IsPrimary = false
			r.addresses[id] = other
		}
	}
}

func (r *stubRepo) UpdateAddress(_ context.Context, a *model.ServiceAddress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.addresses[a.ID]
	if !ok || cur.ProfileID != a.ProfileID {
		return repository.ErrNotFound
	}
	a.IsPrimary = cur.IsPrimary
	r.addresses[a.ID] = *a
	return nil
}

func (r *stubRepo) SetPrimaryAddress(_ context.Context, profileID, addressID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.addresses[addressID]
	if !ok || a.ProfileID != profileID {
		return repository.ErrNotFound
	}
	r.clearPrimary(profileID)
	a.IsPrimary = true
	r.addresses[addressID] = a
	return nil
}

func (r *stubRepo) DeleteAddress(_ context.Context, profileID, addressID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.addresses[addressID]
	if !ok || a.ProfileID != profileID {
		return repository.ErrNotFound
	}
	delete(r.addresses, addressID)
	return nil
}

func (r *stubRepo) GetAppointment(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r *stubRepo) sortedAppointments(keep func(a model.Appointment) bool) []model.Appointment {
	var res []model.Appointment
	for _, a := range r.appointments {
		if keep(a) {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].ScheduledDate.Equal(res[j].ScheduledDate) {
			return res[i].ScheduledDate.Before(res[j].ScheduledDate)
		}
		return res[i].ScheduledTimeStart < res[j].ScheduledTimeStart
	})
	return res
}

func (r *stubRepo) ListAppointmentsByProfile(_ context.Context, profileID uuid.UUID) ([]model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedAppointments(func(a model.Appointment) bool { return a.ProfileID == profileID }), nil
}

func (r *stubRepo) ListAppointments(_ context.Context, f repository.AppointmentFilter) ([]model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedAppointments(func(a model.Appointment) bool {
		if f.ProfileID != nil && a.ProfileID != *f.ProfileID {
			return false
		}
		if f.From != nil && a.ScheduledDate.Before(civilDate(*f.From)) {
			return false
		}
		if f.To != nil && a.ScheduledDate.After(civilDate(*f.To)) {
			return false
		}
		if len(f.Statuses) > 0 {
			for _, s := range f.Statuses {
				if a.Status == s {
					return true
				}
			}
			return false
		}
		return true
	}), nil
}

func (r *stubRepo) CountAppointments(_ context.Context, from, to time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.appointments {
		if a.Status != model.AppointmentStatusCancelled &&
			!a.ScheduledDate.Before(civilDate(from)) && !a.ScheduledDate.After(civilDate(to)) {
			n++
		}
	}
	return n, nil
}

func (r *stubRepo) CreateAppointment(_ context.Context, a *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = uuid.New()
	a.RowVersion = 1
	r.appointments[a.ID] = *a
	return nil
}

func (r *stubRepo) UpdateAppointment(_ context.Context, a *model.Appointment, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.appointments[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.RowVersion != expectedVersion {
		return repository.ErrVersionConflict
	}
	a.RowVersion = expectedVersion + 1
	r.appointments[a.ID] = *a
	return nil
}

func (r *stubRepo) CreateServiceRequest(_ context.Context, sr *model.ServiceRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sr.ID = uuid.New()
	r.requests[sr.ID] = *sr
	return nil
}

func (r *stubRepo) GetServiceRequest(_ context.Context, id uuid.UUID) (*model.ServiceRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sr, ok := r.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sr, nil
}

func (r *stubRepo) ListServiceRequestsByProfile(_ context.Context, profileID uuid.UUID) ([]model.ServiceRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.ServiceRequest
	for _, sr := range r.requests {
		if sr.ProfileID == profileID {
			res = append(res, sr)
		}
	}
	return res, nil
}

func (r *stubRepo) ListServiceRequests(_ context.Context, status *model.ServiceRequestStatus) ([]model.ServiceRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.ServiceRequest
	for _, sr := range r.requests {
		if status == nil || sr.Status == *status {
			res = append(res, sr)
		}
	}
	return res, nil
}

func (r *stubRepo) ApproveServiceRequest(_ context.Context, id uuid.UUID, adminNote string, appts []model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sr, ok := r.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if sr.Status != model.ServiceRequestPending {
		return repository.ErrRequestNotPending
	}
	var parent *uuid.UUID
	for i := range appts {
		appts[i].ID = uuid.New()
		appts[i].RowVersion = 1
		appts[i].ParentRecurringID = parent
		r.appointments[appts[i].ID] = appts[i]
		if i == 0 && len(appts) > 1 {
			first := appts[0].ID
			parent = &first
		}
	}
	sr.Status = model.ServiceRequestApproved
	sr.AdminNote = adminNote
	r.requests[id] = sr
	r.approveNote = adminNote
	return nil
}

func (r *stubRepo) DeclineServiceRequest(_ context.Context, id uuid.UUID, adminNote string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sr := r.requests[id]
	sr.Status = model.ServiceRequestDeclined
	sr.AdminNote = adminNote
	r.requests[id] = sr
	return nil
}

func (r *stubRepo) CreateInvoice(_ context.Context, inv *model.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoiceSeq++
	inv.ID = uuid.New()
	inv.Number = fmt.Sprintf("INV-%04d", r.invoiceSeq)
	inv.RowVersion = 1
	r.invoices[inv.ID] = *inv
	return nil
}

func (r *stubRepo) GetInvoice(_ context.Context, id uuid.UUID) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	inv.LineItems = append([]model.LineItem(nil), inv.LineItems...)
	return &inv, nil
}

func (r *stubRepo) GetInvoiceByPaymentIntent(_ context.Context, intentID string) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.PaymentIntentID != nil && *inv.PaymentIntentID == intentID {
			return &inv, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRepo) GetInvoiceByProcessorInvoice(_ context.Context, processorInvoiceID string) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.ProcessorInvoiceID != nil && *inv.ProcessorInvoiceID == processorInvoiceID {
			return &inv, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRepo) filterInvoices(keep func(inv model.Invoice) bool) []model.Invoice {
	var res []model.Invoice
	for _, inv := range r.invoices {
		if keep(inv) {
			res = append(res, inv)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Number < res[j].Number })
	return res
}

func (r *stubRepo) ListInvoicesByProfile(_ context.Context, profileID uuid.UUID) ([]model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterInvoices(func(inv model.Invoice) bool { return inv.ProfileID == profileID }), nil
}

func (r *stubRepo) ListInvoicesByStatus(_ context.Context, statuses ...model.InvoiceStatus) ([]model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterInvoices(func(inv model.Invoice) bool {
		for _, s := range statuses {
			if inv.Status == s {
				return true
			}
		}
		return false
	}), nil
}

func (r *stubRepo) ListInvoicesDueBefore(_ context.Context, d time.Time) ([]model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterInvoices(func(inv model.Invoice) bool {
		return inv.Status == model.InvoiceStatusSent && inv.PaymentState == model.PaymentStateUnpaid &&
			inv.DueDate.Before(civilDate(d))
	}), nil
}

func (r *stubRepo) ListPaidInvoicesSince(_ context.Context, since time.Time) ([]model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterInvoices(func(inv model.Invoice) bool {
		return inv.Status == model.InvoiceStatusPaid && inv.PaidDate != nil && !inv.PaidDate.Before(since)
	}), nil
}

func (r *stubRepo) ListPendingManualClaims(_ context.Context) ([]model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterInvoices(func(inv model.Invoice) bool {
		return inv.PaymentState == model.PaymentStatePendingManualVerification
	}), nil
}

func (r *stubRepo) SumRevenue(_ context.Context, since *time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, inv := range r.invoices {
		if inv.Status != model.InvoiceStatusPaid || inv.PaidDate == nil {
			continue
		}
		if since != nil && inv.PaidDate.Before(*since) {
			continue
		}
		sum += inv.TotalCents
	}
	return sum, nil
}

func (r *stubRepo) UpdateInvoice(_ context.Context, inv *model.Invoice, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateInvoiceFn != nil {
		if err := r.updateInvoiceFn(inv); err != nil {
			return err
		}
	}
	cur, ok := r.invoices[inv.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.RowVersion != expectedVersion {
		return repository.ErrVersionConflict
	}
	r.invoiceUpdates++
	inv.RowVersion = expectedVersion + 1
	stored := *inv
	stored.LineItems = append([]model.LineItem(nil), inv.LineItems...)
	r.invoices[inv.ID] = stored
	return nil
}

func (r *stubRepo) InsertNotification(_ context.Context, feed model.Feed, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	r.notifications[feed] = append([]model.Notification{*n}, r.notifications[feed]...)
	return nil
}

func (r *stubRepo) inScope(n model.Notification, profileID *uuid.UUID) bool {
	if profileID == nil {
		return true
	}
	return n.ProfileID != nil && *n.ProfileID == *profileID
}

func (r *stubRepo) ListNotifications(_ context.Context, q repository.NotificationQuery) ([]model.Notification, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []model.Notification
	for _, n := range r.notifications[q.Feed] {
		if !r.inScope(n, q.ProfileID) || (q.UnreadOnly && n.Read) {
			continue
		}
		if len(q.Types) > 0 {
			found := false
			for _, t := range q.Types {
				found = found || n.Type == t
			}
			if !found {
				continue
			}
		}
		matched = append(matched, n)
	}
	total := len(matched)
	if q.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func (r *stubRepo) SetNotificationRead(_ context.Context, feed model.Feed, profileID *uuid.UUID, id uuid.UUID, read bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.notifications[feed] {
		if n.ID != id || !r.inScope(n, profileID) {
			continue
		}
		if n.Read == read {
			return false, nil
		}
		r.notifications[feed][i].Read = read
		return true, nil
	}
	return false, repository.ErrNotFound
}

func (r *stubRepo) MarkAllNotificationsRead(_ context.Context, feed model.Feed, profileID *uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i, item := range r.notifications[feed] {
		if r.inScope(item, profileID) && !item.Read {
			r.notifications[feed][i].Read = true
			n++
		}
	}
	return n, nil
}

func (r *stubRepo) CountUnreadNotifications(_ context.Context, feed model.Feed, profileID *uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.notifications[feed] {
		if r.inScope(item, profileID) && !item.Read {
			n++
		}
	}
	return n, nil
}

func (r *stubRepo) feed(feed model.Feed) []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Notification(nil), r.notifications[feed]...)
}

func (r *stubRepo) ListPaymentMethods(_ context.Context, profileID uuid.UUID) ([]model.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.PaymentMethod
	for _, pm := range r.methods {
		if pm.ProfileID == profileID {
			res = append(res, pm)
		}
	}
	return res, nil
}

func (r *stubRepo) GetPaymentMethod(_ context.Context, profileID, id uuid.UUID) (*model.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pm := range r.methods {
		if pm.ID == id && pm.ProfileID == profileID {
			return &pm, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRepo) SavePaymentMethod(_ context.Context, pm *model.PaymentMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pm.ID = uuid.New()
	pm.IsDefault = len(r.methods) == 0
	r.methods = append(r.methods, *pm)
	return nil
}

func (r *stubRepo) SetDefaultPaymentMethod(_ context.Context, profileID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for i := range r.methods {
		if r.methods[i].ProfileID == profileID {
			r.methods[i].IsDefault = r.methods[i].ID == id
			found = found || r.methods[i].ID == id
		}
	}
	if !found {
		return repository.ErrNotFound
	}
	return nil
}

func (r *stubRepo) DeletePaymentMethod(_ context.Context, profileID, id uuid.UUID) (*model.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, pm := range r.methods {
		if pm.ID == id && pm.ProfileID == profileID {
			r.methods = append(r.methods[:i], r.methods[i+1:]...)
			return &pm, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRepo) CreateBooking(_ context.Context, b *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[b.ID] = *b
	return nil
}

func (r *stubRepo) GetBooking(_ context.Context, id uuid.UUID) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r *stubRepo) CreateGiftCertificate(_ context.Context, g *model.GiftCertificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g.ID = uuid.New()
	g.Status = model.GiftCertificatePending
	r.gifts[g.ID] = *g
	return nil
}

func (r *stubRepo) SetGiftCertificateIntent(_ context.Context, id uuid.UUID, intentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.gifts[id]
	g.PaymentIntentID = &intentID
	r.gifts[id] = g
	return nil
}

func (r *stubRepo) MarkGiftCertificatePaid(_ context.Context, intentID string) (*model.GiftCertificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, g := range r.gifts {
		if g.PaymentIntentID != nil && *g.PaymentIntentID == intentID && g.Status == model.GiftCertificatePending {
			g.Status = model.GiftCertificatePaid
			r.gifts[id] = g
			return &g, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRepo) RecordWebhookEvent(_ context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events[eventID] {
		return false, nil
	}
	r.events[eventID] = true
	return true, nil
}

func (r *stubRepo) ForgetWebhookEvent(_ context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, eventID)
	return nil
}

func (r *stubRepo) SumCredits(_ context.Context, profileID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.credits[profileID], nil
}

type stubGateway struct {
	enabled bool

	chargeReq    payment.ChargeRequest
	chargeResult *payment.Result
	chargeErr    error

	intentReq    payment.IntentRequest
	intentResult *payment.Result

	retrieveResult *payment.Result
	card           *payment.Card
	detached       []string
	customers      int

	event    *payment.Event
	eventErr error
}

func (g *stubGateway) Enabled() bool { return g.enabled }

func (g *stubGateway) CreateCustomer(_ context.Context, _, _, _ string) (string, error) {
	g.customers++
	return fmt.Sprintf("cus_%d", g.customers), nil
}

func (g *stubGateway) Charge(_ context.Context, req payment.ChargeRequest) (*payment.Result, error) {
	g.chargeReq = req
	return g.chargeResult, g.chargeErr
}

func (g *stubGateway) CreateIntent(_ context.Context, req payment.IntentRequest) (*payment.Result, error) {
	g.intentReq = req
	return g.intentResult, nil
}

func (g *stubGateway) RetrieveIntent(_ context.Context, _ string) (*payment.Result, error) {
	return g.retrieveResult, nil
}

func (g *stubGateway) CardDetails(_ context.Context, id string) (*payment.Card, error) {
	if g.card == nil {
		return &payment.Card{ID: id, Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}, nil
	}
	return g.card, nil
}

func (g *stubGateway) DetachCard(_ context.Context, id string) error {
	g.detached = append(g.detached, id)
	return nil
}

func (g *stubGateway) ParseEvent(_ []byte, _ string) (*payment.Event, error) {
	return g.event, g.eventErr
}

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

type stubNotifier struct {
	mu       sync.Mutex
	business []sentMessage
	customer []sentMessage
	emails   []sentMessage
}

func (n *stubNotifier) NotifyBusiness(_ context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.business = append(n.business, sentMessage{Subject: subject, Body: body})
	return nil
}

func (n *stubNotifier) NotifyCustomer(_ context.Context, p *model.Profile, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.customer = append(n.customer, sentMessage{To: p.Email, Subject: subject, Body: body})
	return nil
}

func (n *stubNotifier) SendEmail(_ context.Context, _, toEmail, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, sentMessage{To: toEmail, Subject: subject, Body: body})
	return nil
}

type stubBots struct {
	err error
}

func (b *stubBots) Verify(_ context.Context, _, _ string) error { return b.err }

type stubRelay struct {
	got []formrelay.Application
	err error
}

func (r *stubRelay) Submit(_ context.Context, app formrelay.Application) error {
	r.got = append(r.got, app)
	return r.err
}

type testEnv struct {
	svc      *Service
	repo     *stubRepo
	gateway  *stubGateway
	notifier *stubNotifier
	bots     *stubBots
	relay    *stubRelay

	customer *model.Profile
	admin    *model.Profile
	address  model.ServiceAddress
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		repo:     newStubRepo(),
		gateway:  &stubGateway{enabled: true},
		notifier: &stubNotifier{},
		bots:     &stubBots{},
		relay:    &stubRelay{},
	}
	env.svc = NewService(Deps{
		Repo:      env.repo,
		Payments:  env.gateway,
		Notifier:  env.notifier,
		BotCheck:  env.bots,
		FormRelay: env.relay,
		Logger:    zap.NewNop(),
	}, Options{
		Location:       testLoc,
		LateFeePercent: 5,
		InvoiceDueDays: 14,
		ZelleRecipient: "pay@sparkle.example",
		Now:            func() time.Time { return testNow },
	})

	env.customer = &model.Profile{
		ID:                      uuid.New(),
		Email:                   "jane@example.com",
		FirstName:               "Jane",
		LastName:                "Doe",
		Role:                    model.RoleCustomer,
		AccountStatus:           model.AccountStatusActive,
		CommunicationPreference: model.CommunicationEmail,
	}
	env.admin = &model.Profile{
		ID:            uuid.New(),
		Email:         "owner@sparkle.example",
		FirstName:     "Olivia",
		Role:          model.RoleAdmin,
		AccountStatus: model.AccountStatusActive,
	}
	env.repo.profiles[env.customer.ID] = *env.customer
	env.repo.profiles[env.admin.ID] = *env.admin

	env.address = model.ServiceAddress{
		ID:        uuid.New(),
		ProfileID: env.customer.ID,
		Street:    "12 Main St",
		City:      "Springfield",
		State:     "NJ",
		ZIP:       "07081",
		IsPrimary: true,
	}
	env.repo.addresses[env.address.ID] = env.address
	return env
}

// addAppointment сохраняет визит клиента на дату day(offset) в указанное окно.
func (e *testEnv) addAppointment(offset int, w model.TimeWindow, status model.AppointmentStatus) model.Appointment {
	start, end := w.Bounds()
	a := model.Appointment{
		ID:                 uuid.New(),
		ProfileID:          e.customer.ID,
		AddressID:          e.address.ID,
		ServiceType:        model.ServiceTypeStandard,
		Status:             status,
		ScheduledDate:      day(offset),
		ScheduledTimeStart: start,
		ScheduledTimeEnd:   end,
		RowVersion:         1,
		CustomerName:       e.customer.FullName(),
	}
	e.repo.appointments[a.ID] = a
	return a
}

// addInvoice сохраняет выставленный счёт клиента на сумму 100 долларов с налогом 8%.
func (e *testEnv) addInvoice(status model.InvoiceStatus) model.Invoice {
	e.repo.invoiceSeq++
	inv := model.Invoice{
		ID:           uuid.New(),
		Number:       fmt.Sprintf("INV-%04d", e.repo.invoiceSeq),
		ProfileID:    e.customer.ID,
		Status:       status,
		PaymentState: model.PaymentStateUnpaid,
		LineItems: []model.LineItem{
			{Description: "Standard Cleaning", Quantity: 1, RateCents: 10000, AmountCents: 10000},
			{Description: "Tax (8%)", Quantity: 1, RateCents: 800, AmountCents: 800},
		},
		AmountCents:    10000,
		TaxRate:        8,
		TaxAmountCents: 800,
		TotalCents:     10800,
		DueDate:        day(7),
		RowVersion:     1,
	}
	e.repo.invoices[inv.ID] = inv
	return inv
}
