package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/service"
	"github.com/mmeshcher/cleaning-portal/internal/validation"
)

func formatDate(t time.Time) string {
	return t.Format(validation.DateLayout)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}

type profileResponse struct {
	ID                      uuid.UUID `json:"id"`
	Email                   string    `json:"email"`
	FirstName               string    `json:"first_name"`
	LastName                string    `json:"last_name"`
	FullName                string    `json:"full_name"`
	Phone                   string    `json:"phone"`
	Role                    string    `json:"role"`
	AccountStatus           string    `json:"account_status"`
	CommunicationPreference string    `json:"communication_preference"`
	CreatedAt               time.Time `json:"created_at"`
}

func toProfile(p *model.Profile) profileResponse {
	return profileResponse{
		ID:                      p.ID,
		Email:                   p.Email,
		FirstName:               p.FirstName,
		LastName:                p.LastName,
		FullName:                p.FullName(),
		Phone:                   p.Phone,
		Role:                    string(p.Role),
		AccountStatus:           string(p.AccountStatus),
		CommunicationPreference: string(p.CommunicationPreference),
		CreatedAt:               p.CreatedAt,
	}
}

func toProfiles(ps []model.Profile) []profileResponse {
	resp := make([]profileResponse, 0, len(ps))
	for i := range ps {
		resp = append(resp, toProfile(&ps[i]))
	}
	return resp
}

type addressResponse struct {
	ID           uuid.UUID `json:"id"`
	Label        string    `json:"label"`
	Street       string    `json:"street"`
	Unit         string    `json:"unit,omitempty"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	ZIP          string    `json:"zip"`
	Instructions string    `json:"instructions,omitempty"`
	IsPrimary    bool      `json:"is_primary"`
	OneLine      string    `json:"one_line"`
}

func toAddress(a *model.ServiceAddress) addressResponse {
	return addressResponse{
		ID:           a.ID,
		Label:        a.Label,
		Street:       a.Street,
		Unit:         a.Unit,
		City:         a.City,
		State:        a.State,
		ZIP:          a.ZIP,
		Instructions: a.Instructions,
		IsPrimary:    a.IsPrimary,
		OneLine:      a.OneLine(),
	}
}

func toAddresses(as []model.ServiceAddress) []addressResponse {
	resp := make([]addressResponse, 0, len(as))
	for i := range as {
		resp = append(resp, toAddress(&as[i]))
	}
	return resp
}

type appointmentResponse struct {
	ID                 uuid.UUID        `json:"id"`
	ServiceType        string           `json:"service_type"`
	ServiceLabel       string           `json:"service_label"`
	Status             string           `json:"status"`
	StatusLabel        string           `json:"status_label"`
	BadgeColor         string           `json:"badge_color"`
	Date               string           `json:"date"`
	TimeStart          string           `json:"time_start"`
	TimeEnd            string           `json:"time_end"`
	Window             string           `json:"window,omitempty"`
	WindowLabel        string           `json:"window_label,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
	CancellationNote   string           `json:"cancellation_note,omitempty"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	RecurringParentID  *uuid.UUID       `json:"recurring_parent_id,omitempty"`
	ServiceRequestID   *uuid.UUID       `json:"service_request_id,omitempty"`
	RowVersion         int64            `json:"row_version"`
	CanCancel          bool             `json:"can_cancel"`
	CanReschedule      bool             `json:"can_reschedule"`
	Address            *addressResponse `json:"address,omitempty"`
	CustomerName       string           `json:"customer_name,omitempty"`
}

func toAppointment(a *model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:                a.ID,
		ServiceType:       string(a.ServiceType),
		ServiceLabel:      a.ServiceType.Label(),
		Status:            string(a.Status),
		StatusLabel:       a.Status.Label(),
		BadgeColor:        a.Status.BadgeColor(),
		Date:              formatDate(a.ScheduledDate),
		TimeStart:         a.ScheduledTimeStart,
		TimeEnd:           a.ScheduledTimeEnd,
		Notes:             a.Notes,
		CancellationNote:  a.CancellationNote,
		CancelledAt:       a.CancelledAt,
		CompletedAt:       a.CompletedAt,
		RecurringParentID: a.ParentRecurringID,
		ServiceRequestID:  a.ServiceRequestID,
		RowVersion:        a.RowVersion,
		CustomerName:      a.CustomerName,
	}
	if w, ok := model.TimeWindowFromStart(a.ScheduledTimeStart); ok {
		resp.Window = string(w)
		resp.WindowLabel = w.Label()
	}
	if a.CancellationReason != nil {
		resp.CancellationReason = string(*a.CancellationReason)
	}
	if a.Address != nil {
		addr := toAddress(a.Address)
		resp.Address = &addr
	}
	return resp
}

func toAppointmentView(v *service.AppointmentView) appointmentResponse {
	resp := toAppointment(&v.Appointment)
	resp.CanCancel = v.CanCancel
	resp.CanReschedule = v.CanReschedule
	return resp
}

func toAppointmentViews(vs []service.AppointmentView) []appointmentResponse {
	resp := make([]appointmentResponse, 0, len(vs))
	for i := range vs {
		resp = append(resp, toAppointmentView(&vs[i]))
	}
	return resp
}

func toAppointments(as []model.Appointment) []appointmentResponse {
	resp := make([]appointmentResponse, 0, len(as))
	for i := range as {
		resp = append(resp, toAppointment(&as[i]))
	}
	return resp
}

type invoiceResponse struct {
	ID                   uuid.UUID        `json:"id"`
	Number               string           `json:"number"`
	AppointmentID        *uuid.UUID       `json:"appointment_id,omitempty"`
	Status               string           `json:"status"`
	StatusLabel          string           `json:"status_label"`
	BadgeColor           string           `json:"badge_color"`
	PaymentState         string           `json:"payment_state"`
	AwaitingVerification bool             `json:"awaiting_verification"`
	AmountCents          int64            `json:"amount_cents"`
	TaxRate              float64          `json:"tax_rate"`
	TaxAmountCents       int64            `json:"tax_amount_cents"`
	TotalCents           int64            `json:"total_cents"`
	AmountDueCents       int64            `json:"amount_due_cents"`
	AmountDueDisplay     string           `json:"amount_due_display"`
	LineItems            []model.LineItem `json:"line_items"`
	PaymentMethod        string           `json:"payment_method,omitempty"`
	Notes                string           `json:"notes,omitempty"`
	DueDate              string           `json:"due_date"`
	PaidDate             *string          `json:"paid_date,omitempty"`
	SentAt               *time.Time       `json:"sent_at,omitempty"`
	RowVersion           int64            `json:"row_version"`
	CreatedAt            time.Time        `json:"created_at"`
}

func toInvoice(inv *model.Invoice) invoiceResponse {
	due := inv.AmountDueCents()
	resp := invoiceResponse{
		ID:                   inv.ID,
		Number:               inv.Number,
		AppointmentID:        inv.AppointmentID,
		Status:               string(inv.Status),
		StatusLabel:          inv.Status.Label(),
		BadgeColor:           inv.Status.BadgeColor(),
		PaymentState:         string(inv.PaymentState),
		AwaitingVerification: inv.AwaitingManualVerification(),
		AmountCents:          inv.AmountCents,
		TaxRate:              inv.TaxRate,
		TaxAmountCents:       inv.TaxAmountCents,
		TotalCents:           inv.TotalCents,
		AmountDueCents:       due,
		AmountDueDisplay:     model.FormatUSD(due),
		LineItems:            inv.LineItems,
		Notes:                inv.Notes,
		DueDate:              formatDate(inv.DueDate),
		PaidDate:             formatDatePtr(inv.PaidDate),
		SentAt:               inv.SentAt,
		RowVersion:           inv.RowVersion,
		CreatedAt:            inv.CreatedAt,
	}
	if resp.LineItems == nil {
		resp.LineItems = []model.LineItem{}
	}
	if inv.PaymentMethod != nil {
		resp.PaymentMethod = string(*inv.PaymentMethod)
	}
	return resp
}

func toInvoices(invs []model.Invoice) []invoiceResponse {
	resp := make([]invoiceResponse, 0, len(invs))
	for i := range invs {
		resp = append(resp, toInvoice(&invs[i]))
	}
	return resp
}

type breakdownResponse struct {
	Items              []model.LineItem `json:"items"`
	SubtotalCents      int64            `json:"subtotal_cents"`
	HasTax             bool             `json:"has_tax"`
	TaxLabel           string           `json:"tax_label,omitempty"`
	TaxCents           int64            `json:"tax_cents"`
	HasLateFee         bool             `json:"has_late_fee"`
	LateFeeLabel       string           `json:"late_fee_label,omitempty"`
	LateFeeCents       int64            `json:"late_fee_cents"`
	OriginalTotalCents int64            `json:"original_total_cents"`
	TotalCents         int64            `json:"total_cents"`
	AmountDueCents     int64            `json:"amount_due_cents"`
	AmountDueDisplay   string           `json:"amount_due_display"`
}

type customerInfoResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone string    `json:"phone,omitempty"`
}

type invoiceDetailResponse struct {
	Invoice   invoiceResponse      `json:"invoice"`
	Customer  customerInfoResponse `json:"customer"`
	Breakdown breakdownResponse    `json:"breakdown"`
}

func toInvoiceDetail(d *service.InvoiceDetail) invoiceDetailResponse {
	b := d.Breakdown
	items := b.Items
	if items == nil {
		items = []model.LineItem{}
	}
	return invoiceDetailResponse{
		Invoice: toInvoice(&d.Invoice),
		Customer: customerInfoResponse{
			ID:    d.Customer.ID,
			Name:  d.Customer.Name,
			Email: d.Customer.Email,
			Phone: d.Customer.Phone,
		},
		Breakdown: breakdownResponse{
			Items:              items,
			SubtotalCents:      b.SubtotalCents,
			HasTax:             b.HasTax,
			TaxLabel:           b.TaxLabel,
			TaxCents:           b.TaxCents,
			HasLateFee:         b.HasLateFee,
			LateFeeLabel:       b.LateFeeLabel,
			LateFeeCents:       b.LateFeeCents,
			OriginalTotalCents: b.OriginalTotalCents,
			TotalCents:         b.TotalCents,
			AmountDueCents:     b.AmountDueCents,
			AmountDueDisplay:   b.AmountDueDisplay,
		},
	}
}

type serviceRequestResponse struct {
	ID            uuid.UUID  `json:"id"`
	AddressID     uuid.UUID  `json:"address_id"`
	ServiceType   string     `json:"service_type"`
	ServiceLabel  string     `json:"service_label"`
	Frequency     string     `json:"frequency"`
	PreferredDate string     `json:"preferred_date"`
	Window        string     `json:"window"`
	Notes         string     `json:"notes,omitempty"`
	Status        string     `json:"status"`
	AdminNote     string     `json:"admin_note,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	CustomerName  string     `json:"customer_name,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toServiceRequest(sr *model.ServiceRequest) serviceRequestResponse {
	return serviceRequestResponse{
		ID:            sr.ID,
		AddressID:     sr.AddressID,
		ServiceType:   string(sr.ServiceType),
		ServiceLabel:  sr.ServiceType.Label(),
		Frequency:     string(sr.Frequency),
		PreferredDate: formatDate(sr.PreferredDate),
		Window:        string(sr.PreferredWindow),
		Notes:         sr.Notes,
		Status:        string(sr.Status),
		AdminNote:     sr.AdminNote,
		ReviewedAt:    sr.ReviewedAt,
		CustomerName:  sr.CustomerName,
		CreatedAt:     sr.CreatedAt,
	}
}

func toServiceRequests(srs []model.ServiceRequest) []serviceRequestResponse {
	resp := make([]serviceRequestResponse, 0, len(srs))
	for i := range srs {
		resp = append(resp, toServiceRequest(&srs[i]))
	}
	return resp
}

type notificationResponse struct {
	ID        uuid.UUID  `json:"id"`
	Type      string     `json:"type"`
	Category  string     `json:"category"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Link      string     `json:"link,omitempty"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toNotifications(ns []model.Notification) []notificationResponse {
	resp := make([]notificationResponse, 0, len(ns))
	for _, n := range ns {
		resp = append(resp, notificationResponse{
			ID:        n.ID,
			Type:      string(n.Type),
			Category:  string(n.Type.Category()),
			Title:     n.Title,
			Message:   n.Message,
			Link:      n.Link,
			Read:      n.Read,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	return resp
}

type notificationPageResponse struct {
	Items       []notificationResponse `json:"items"`
	Page        int                    `json:"page"`
	PageSize    int                    `json:"page_size"`
	Total       int                    `json:"total"`
	TotalPages  int                    `json:"total_pages"`
	UnreadCount int                    `json:"unread_count"`
}

func toNotificationPage(p *service.NotificationPage) notificationPageResponse {
	return notificationPageResponse{
		Items:       toNotifications(p.Items),
		Page:        p.Page,
		PageSize:    p.PageSize,
		Total:       p.Total,
		TotalPages:  p.TotalPages,
		UnreadCount: p.UnreadCount,
	}
}

type paymentMethodResponse struct {
	ID        uuid.UUID `json:"id"`
	Brand     string    `json:"brand"`
	Last4     string    `json:"last4"`
	ExpMonth  int       `json:"exp_month"`
	ExpYear   int       `json:"exp_year"`
	IsDefault bool      `json:"is_default"`
}

func toPaymentMethods(pms []model.PaymentMethod) []paymentMethodResponse {
	resp := make([]paymentMethodResponse, 0, len(pms))
	for _, pm := range pms {
		resp = append(resp, paymentMethodResponse{
			ID:        pm.ID,
			Brand:     pm.Brand,
			Last4:     pm.Last4,
			ExpMonth:  pm.ExpMonth,
			ExpYear:   pm.ExpYear,
			IsDefault: pm.IsDefault,
		})
	}
	return resp
}

type paymentOutcomeResponse struct {
	Success         bool             `json:"success"`
	RequiresAction  bool             `json:"requires_action,omitempty"`
	Processing      bool             `json:"processing,omitempty"`
	ClientSecret    string           `json:"client_secret,omitempty"`
	PaymentIntentID string           `json:"payment_intent_id,omitempty"`
	Invoice         *invoiceResponse `json:"invoice,omitempty"`
}

func toPaymentOutcome(o *service.PaymentOutcome) paymentOutcomeResponse {
	resp := paymentOutcomeResponse{
		Success:         o.Success,
		RequiresAction:  o.RequiresAction,
		Processing:      o.Processing,
		ClientSecret:    o.ClientSecret,
		PaymentIntentID: o.PaymentIntentID,
	}
	if o.Invoice != nil {
		inv := toInvoice(o.Invoice)
		resp.Invoice = &inv
	}
	return resp
}

type manualInstructionsResponse struct {
	Recipient     string `json:"recipient"`
	AmountCents   int64  `json:"amount_cents"`
	AmountDisplay string `json:"amount_display"`
	Reference     string `json:"reference"`
}

type unreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

type customerDashboardResponse struct {
	Profile          profileResponse      `json:"profile"`
	NextAppointment  *appointmentResponse `json:"next_appointment"`
	OutstandingCents int64                `json:"outstanding_cents"`
	OutstandingText  string               `json:"outstanding_display"`
	OpenInvoices     int                  `json:"open_invoices"`
	UnreadCount      int                  `json:"unread_count"`
	CreditsCents     int64                `json:"credits_cents"`
	RecentInvoices   []invoiceResponse    `json:"recent_invoices"`
}

func toCustomerDashboard(d *service.CustomerDashboard) customerDashboardResponse {
	resp := customerDashboardResponse{
		Profile:          toProfile(&d.Profile),
		OutstandingCents: d.OutstandingCents,
		OutstandingText:  model.FormatUSD(d.OutstandingCents),
		OpenInvoices:     d.OpenInvoices,
		UnreadCount:      d.UnreadCount,
		CreditsCents:     d.CreditsCents,
		RecentInvoices:   toInvoices(d.RecentInvoices),
	}
	if d.NextAppointment != nil {
		next := toAppointmentView(d.NextAppointment)
		resp.NextAppointment = &next
	}
	return resp
}

type adminDashboardResponse struct {
	TodayAppointments    []appointmentResponse    `json:"today_appointments"`
	UpcomingCount        int                      `json:"upcoming_count"`
	UnpaidInvoices       []invoiceResponse        `json:"unpaid_invoices"`
	PendingRequests      []serviceRequestResponse `json:"pending_requests"`
	PendingRegistrations []profileResponse        `json:"pending_registrations"`
	RecentPayments       []invoiceResponse        `json:"recent_payments"`
	ManualClaims         []invoiceResponse        `json:"manual_claims"`
	RecentNotifications  []notificationResponse   `json:"recent_notifications"`
	UnreadNotifications  int                      `json:"unread_notifications"`
	MonthRevenueCents    int64                    `json:"month_revenue_cents"`
	TotalRevenueCents    int64                    `json:"total_revenue_cents"`
	OutstandingCents     int64                    `json:"outstanding_total_cents"`
	OverdueCount         int                      `json:"overdue_count"`
	AttentionCount       int                      `json:"attention_count"`
}

func toAdminDashboard(d *service.AdminDashboard) adminDashboardResponse {
	return adminDashboardResponse{
		TodayAppointments:    toAppointments(d.TodayAppointments),
		UpcomingCount:        d.UpcomingCount,
		UnpaidInvoices:       toInvoices(d.UnpaidInvoices),
		PendingRequests:      toServiceRequests(d.PendingRequests),
		PendingRegistrations: toProfiles(d.PendingRegistrations),
		RecentPayments:       toInvoices(d.RecentPayments),
		ManualClaims:         toInvoices(d.ManualClaims),
		RecentNotifications:  toNotifications(d.RecentNotifications),
		UnreadNotifications:  d.UnreadNotifications,
		MonthRevenueCents:    d.MonthRevenueCents,
		TotalRevenueCents:    d.TotalRevenueCents,
		OutstandingCents:     d.OutstandingCents,
		OverdueCount:         d.OverdueCount,
		AttentionCount:       d.AttentionCount,
	}
}

type bookingResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	ServiceType   string    `json:"service_type"`
	ServiceLabel  string    `json:"service_label"`
	Frequency     string    `json:"frequency"`
	PreferredDate string    `json:"preferred_date"`
	Window        string    `json:"window"`
	WindowLabel   string    `json:"window_label"`
	Address       string    `json:"address"`
	CreatedAt     time.Time `json:"created_at"`
}

func toBooking(b *model.Booking) bookingResponse {
	return bookingResponse{
		ID:            b.ID,
		Name:          b.Name,
		Email:         b.Email,
		ServiceType:   string(b.ServiceType),
		ServiceLabel:  b.ServiceType.Label(),
		Frequency:     string(b.Frequency),
		PreferredDate: formatDate(b.PreferredDate),
		Window:        string(b.PreferredWindow),
		WindowLabel:   b.PreferredWindow.Label(),
		Address:       b.Street + ", " + b.City + ", " + b.State + " " + b.ZIP,
		CreatedAt:     b.CreatedAt,
	}
}

type giftPurchaseResponse struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	AmountCents  int64     `json:"amount_cents"`
	Status       string    `json:"status"`
	ClientSecret string    `json:"client_secret"`
}
