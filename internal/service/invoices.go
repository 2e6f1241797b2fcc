package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

// CustomerInfo содержит отображаемые данные владельца счёта.
type CustomerInfo struct {
	ID    uuid.UUID
	Name  string
	Email string
	Phone string
}

// InvoiceDetail содержит счёт, данные клиента и раскладку итогов.
type InvoiceDetail struct {
	Invoice   model.Invoice
	Customer  CustomerInfo
	Breakdown model.Breakdown
}

// LineItemInput описывает строку нового счёта.
type LineItemInput struct {
	Description string
	Quantity    float64
	RateCents   int64
}

// NewInvoiceInput описывает счёт, создаваемый администратором.
type NewInvoiceInput struct {
	ProfileID          uuid.UUID
	AppointmentID      *uuid.UUID
	Items              []LineItemInput
	TaxRate            float64
	DueDate            *time.Time
	Notes              string
	ProcessorInvoiceID string
}

// FromAppointmentInput описывает счёт за выполненный визит. Если строки не заданы,
// счёт содержит одну строку с видом услуги и AmountCents.
type FromAppointmentInput struct {
	AppointmentID uuid.UUID
	Items         []LineItemInput
	AmountCents   int64
	TaxRate       float64
	DueDate       *time.Time
	Notes         string
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64) + "%"
}

// recomputeTotals пересчитывает итоговые поля счёта по его строкам.
func recomputeTotals(inv *model.Invoice) {
	b := inv.Breakdown()
	inv.AmountCents = b.SubtotalCents
	inv.TaxAmountCents = b.TaxCents
	inv.TotalCents = b.TotalCents
}

func buildLineItems(in []LineItemInput) ([]model.LineItem, error) {
	if len(in) == 0 {
		return nil, invalid("line_items", "at least one line item is required")
	}
	items := make([]model.LineItem, 0, len(in))
	for i, li := range in {
		desc := strings.TrimSpace(li.Description)
		if desc == "" {
			return nil, invalid(fmt.Sprintf("line_items[%d].description", i), "description is required")
		}
		if model.IsTaxItem(model.LineItem{Description: desc}) || model.IsLateFeeItem(model.LineItem{Description: desc}) {
			return nil, invalid(fmt.Sprintf("line_items[%d].description", i), "tax and late fee rows are added automatically")
		}
		qty := li.Quantity
		if qty == 0 {
			qty = 1
		}
		if qty < 0 || li.RateCents < 0 {
			return nil, invalid(fmt.Sprintf("line_items[%d]", i), "quantity and rate must not be negative")
		}
		items = append(items, model.LineItem{
			Description: desc,
			Quantity:    qty,
			RateCents:   li.RateCents,
			AmountCents: int64(math.Round(qty * float64(li.RateCents))),
		})
	}
	return items, nil
}

func (s *Service) customerInfo(ctx context.Context, profileID uuid.UUID) CustomerInfo {
	info := CustomerInfo{ID: profileID}
	p, err := s.repo.GetProfile(ctx, profileID)
	if err != nil {
		s.logger.Warn("load invoice customer", zap.Error(err), zap.String("profileID", profileID.String()))
		return info
	}
	info.Name = p.FullName()
	info.Email = p.Email
	info.Phone = p.Phone
	return info
}

// ListInvoices возвращает выставленные клиенту счета. Черновики клиенту не показываются.
func (s *Service) ListInvoices(ctx context.Context, actor *model.Profile) ([]model.Invoice, error) {
	all, err := s.repo.ListInvoicesByProfile(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	res := make([]model.Invoice, 0, len(all))
	for _, inv := range all {
		if inv.Status != model.InvoiceStatusDraft {
			res = append(res, inv)
		}
	}
	return res, nil
}

// AdminListInvoices возвращает счета всех клиентов с указанными статусами.
func (s *Service) AdminListInvoices(ctx context.Context, statuses []model.InvoiceStatus) ([]model.Invoice, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, invalid("status", "unknown invoice status")
		}
	}
	return s.repo.ListInvoicesByStatus(ctx, statuses...)
}

// InvoiceDetail возвращает счёт с раскладкой итогов. Для оплаченного счёта сумма к оплате равна нулю.
func (s *Service) InvoiceDetail(ctx context.Context, actor *model.Profile, id uuid.UUID) (*InvoiceDetail, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(actor, inv.ProfileID); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && inv.Status == model.InvoiceStatusDraft {
		return nil, repository.ErrNotFound
	}

	return &InvoiceDetail{
		Invoice:   *inv,
		Customer:  s.customerInfo(ctx, inv.ProfileID),
		Breakdown: inv.Breakdown(),
	}, nil
}

// CreateInvoice создаёт черновик счёта. Строка налога добавляется автоматически при ненулевой ставке.
func (s *Service) CreateInvoice(ctx context.Context, in NewInvoiceInput) (*model.Invoice, error) {
	items, err := buildLineItems(in.Items)
	if err != nil {
		return nil, err
	}
	if in.TaxRate < 0 || in.TaxRate > 100 {
		return nil, invalid("tax_rate", "tax rate must be between 0 and 100")
	}
	if _, err := s.repo.GetProfile(ctx, in.ProfileID); err != nil {
		return nil, err
	}

	var subtotal int64
	for _, li := range items {
		subtotal += li.AmountCents
	}
	if in.TaxRate > 0 {
		tax := model.PercentOf(subtotal, in.TaxRate)
		items = append(items, model.LineItem{
			Description: "Tax (" + formatPercent(in.TaxRate) + ")",
			Quantity:    1,
			RateCents:   tax,
			AmountCents: tax,
		})
	}

	due := s.today().AddDate(0, 0, s.dueDays)
	if in.DueDate != nil && !in.DueDate.IsZero() {
		due = civilDate(*in.DueDate)
	}

	inv := &model.Invoice{
		ProfileID:     in.ProfileID,
		AppointmentID: in.AppointmentID,
		Status:        model.InvoiceStatusDraft,
		PaymentState:  model.PaymentStateUnpaid,
		TaxRate:       in.TaxRate,
		LineItems:     items,
		Notes:         strings.TrimSpace(in.Notes),
		DueDate:       due,
	}
	if in.ProcessorInvoiceID != "" {
		id := in.ProcessorInvoiceID
		inv.ProcessorInvoiceID = &id
	}
	recomputeTotals(inv)

	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	s.logger.Info("invoice created", zap.String("invoiceID", inv.ID.String()), zap.String("number", inv.Number),
		zap.Int64("totalCents", inv.TotalCents))
	return inv, nil
}

// CreateInvoiceFromAppointment создаёт черновик счёта за выполненный визит.
func (s *Service) CreateInvoiceFromAppointment(ctx context.Context, in FromAppointmentInput) (*model.Invoice, error) {
	a, err := s.repo.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AppointmentStatusCompleted {
		return nil, invalid("appointment_id", "invoices can only be generated for completed appointments")
	}

	items := in.Items
	if len(items) == 0 {
		if in.AmountCents <= 0 {
			return nil, invalid("amount_cents", "amount is required when no line items are given")
		}
		items = []LineItemInput{{
			Description: a.ServiceType.Label() + " - " + a.ScheduledDate.Format("Jan 2, 2006"),
			Quantity:    1,
			RateCents:   in.AmountCents,
		}}
	}

	apptID := a.ID
	return s.CreateInvoice(ctx, NewInvoiceInput{
		ProfileID:     a.ProfileID,
		AppointmentID: &apptID,
		Items:         items,
		TaxRate:       in.TaxRate,
		DueDate:       in.DueDate,
		Notes:         in.Notes,
	})
}

// loadForAdmin загружает счёт и проверяет версию, полученную администратором.
func (s *Service) loadForAdmin(ctx context.Context, id uuid.UUID, version int64) (*model.Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(inv.RowVersion, version); err != nil {
		return nil, err
	}
	return inv, nil
}

// SendInvoice выставляет черновик счёта клиенту.
func (s *Service) SendInvoice(ctx context.Context, id uuid.UUID, version int64) (*model.Invoice, error) {
	inv, err := s.loadForAdmin(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if !inv.Status.CanTransitionTo(model.InvoiceStatusSent) {
		return nil, ErrInvalidTransition
	}

	now := s.now().UTC()
	inv.Status = model.InvoiceStatusSent
	inv.SentAt = &now
	if err := s.repo.UpdateInvoice(ctx, inv, version); err != nil {
		return nil, err
	}

	s.notifyCustomer(ctx, inv.ProfileID, model.NotificationInvoiceSent, "New invoice "+inv.Number,
		fmt.Sprintf("Invoice %s for %s is due %s", inv.Number, model.FormatUSD(inv.AmountDueCents()),
			inv.DueDate.Format("Jan 2, 2006")),
		"/portal/invoices/"+inv.ID.String(), true)
	return inv, nil
}

func markPaid(inv *model.Invoice, method model.PaymentMethodKind, at time.Time) {
	inv.Status = model.InvoiceStatusPaid
	inv.PaymentState = model.PaymentStatePaid
	inv.PaymentMethod = &method
	inv.PaidDate = &at
}

// VerifyManualPayment подтверждает перевод, о котором заявил клиент, и закрывает счёт.
func (s *Service) VerifyManualPayment(ctx context.Context, id uuid.UUID, version int64) (*model.Invoice, error) {
	inv, err := s.loadForAdmin(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if !inv.AwaitingManualVerification() || !inv.Status.CanTransitionTo(model.InvoiceStatusPaid) {
		return nil, ErrInvalidTransition
	}

	amount := inv.AmountDueCents()
	method := model.PaymentMethodZelle
	if inv.PaymentMethod != nil {
		method = *inv.PaymentMethod
	}
	markPaid(inv, method, s.now().UTC())
	inv.Notes = appendNote(inv.Notes, "Payment verified on "+s.now().In(s.loc).Format("Jan 2, 2006"))
	if err := s.repo.UpdateInvoice(ctx, inv, version); err != nil {
		return nil, err
	}

	s.notifyCustomer(ctx, inv.ProfileID, model.NotificationManualPaymentVerified, "Payment confirmed",
		fmt.Sprintf("We received your payment of %s for invoice %s. Thank you!", model.FormatUSD(amount), inv.Number),
		"/portal/invoices/"+inv.ID.String(), true)
	return inv, nil
}

// RejectManualPayment отклоняет заявленный перевод и возвращает счёт в состояние ожидания оплаты.
func (s *Service) RejectManualPayment(ctx context.Context, id uuid.UUID, version int64, reason string) (*model.Invoice, error) {
	inv, err := s.loadForAdmin(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if !inv.AwaitingManualVerification() {
		return nil, ErrInvalidTransition
	}

	note := "Manual payment could not be verified"
	if r := strings.TrimSpace(reason); r != "" {
		note += ": " + r
	}
	inv.PaymentState = model.PaymentStateUnpaid
	inv.PaymentMethod = nil
	inv.Notes = appendNote(inv.Notes, note)
	if err := s.repo.UpdateInvoice(ctx, inv, version); err != nil {
		return nil, err
	}

	s.notifyCustomer(ctx, inv.ProfileID, model.NotificationManualPaymentRejected, "Payment not received",
		note+". Invoice "+inv.Number+" is still open.", "/portal/invoices/"+inv.ID.String(), true)
	return inv, nil
}

// RecordOfflinePayment отмечает счёт оплаченным наличными или чеком.
func (s *Service) RecordOfflinePayment(ctx context.Context, id uuid.UUID, version int64, method model.PaymentMethodKind, note string) (*model.Invoice, error) {
	if method != model.PaymentMethodCash && method != model.PaymentMethodCheck {
		return nil, invalid("payment_method", "offline payments are cash or check")
	}
	inv, err := s.loadForAdmin(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if !inv.Status.Payable() {
		return nil, ErrInvoiceNotPayable
	}

	amount := inv.AmountDueCents()
	markPaid(inv, method, s.now().UTC())
	if n := strings.TrimSpace(note); n != "" {
		inv.Notes = appendNote(inv.Notes, n)
	}
	if err := s.repo.UpdateInvoice(ctx, inv, version); err != nil {
		return nil, err
	}

	s.notifyCustomer(ctx, inv.ProfileID, model.NotificationPaymentReceived, "Payment received",
		fmt.Sprintf("We recorded your %s payment of %s for invoice %s.", method, model.FormatUSD(amount), inv.Number),
		"/portal/invoices/"+inv.ID.String(), false)
	return inv, nil
}

// CancelInvoice отменяет неоплаченный счёт.
func (s *Service) CancelInvoice(ctx context.Context, id uuid.UUID, version int64) (*model.Invoice, error) {
	inv, err := s.loadForAdmin(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if !inv.Status.CanTransitionTo(model.InvoiceStatusCancelled) {
		return nil, ErrInvalidTransition
	}
	inv.Status = model.InvoiceStatusCancelled
	if err := s.repo.UpdateInvoice(ctx, inv, version); err != nil {
		return nil, err
	}
	return inv, nil
}

func appendNote(notes, line string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
