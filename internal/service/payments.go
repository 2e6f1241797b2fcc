package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/payment"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

// errAlreadyPaid прерывает повторную фиксацию оплаты уже закрытого счёта.
var errAlreadyPaid = errors.New("invoice already paid")

// CardPaymentInput описывает оплату счёта картой. Используется либо сохранённая карта SavedMethodID,
// либо новый платёжный метод PaymentMethodID, созданный в браузере.
type CardPaymentInput struct {
	AmountCents     int64
	PaymentMethodID string
	SavedMethodID   *uuid.UUID
	SaveCard        bool
}

// PaymentOutcome описывает результат попытки оплаты.
type PaymentOutcome struct {
	Success         bool
	RequiresAction  bool
	Processing      bool
	ClientSecret    string
	PaymentIntentID string
	Invoice         *model.Invoice
}

// ManualInstructions содержит реквизиты для ручного перевода.
type ManualInstructions struct {
	Recipient     string
	AmountCents   int64
	AmountDisplay string
	Reference     string
}

func (s *Service) paymentsEnabled() bool {
	return s.payments != nil && s.payments.Enabled()
}

// payableInvoice загружает счёт клиента и проверяет, что его можно оплатить.
func (s *Service) payableInvoice(ctx context.Context, actor *model.Profile, id uuid.UUID) (*model.Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(actor, inv.ProfileID); err != nil {
		return nil, err
	}
	if !inv.Status.Payable() || inv.PaymentState == model.PaymentStatePaid {
		return nil, ErrInvoiceNotPayable
	}
	return inv, nil
}

// ensureCustomer возвращает идентификатор клиента в процессоре, заводя его при первом обращении.
func (s *Service) ensureCustomer(ctx context.Context, p *model.Profile) (string, error) {
	if p.StripeCustomerID != nil && *p.StripeCustomerID != "" {
		return *p.StripeCustomerID, nil
	}
	id, err := s.payments.CreateCustomer(ctx, p.Email, p.FullName(), p.ID.String())
	if err != nil {
		return "", err
	}
	if err := s.repo.SetStripeCustomerID(ctx, p.ID, id); err != nil {
		return "", err
	}
	p.StripeCustomerID = &id
	return id, nil
}

// PayByCard оплачивает счёт картой. Сумма должна совпадать с суммой к оплате.
// Если процессор требует дополнительной аутентификации, возвращается client secret,
// а оплата завершается вызовом ConfirmCardPayment.
func (s *Service) PayByCard(ctx context.Context, actor *model.Profile, id uuid.UUID, in CardPaymentInput) (*PaymentOutcome, error) {
	if !s.paymentsEnabled() {
		return nil, ErrNotConfigured
	}
	inv, err := s.payableInvoice(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.AmountCents != inv.AmountDueCents() {
		return nil, ErrAmountMismatch
	}

	owner, err := s.repo.GetProfile(ctx, inv.ProfileID)
	if err != nil {
		return nil, err
	}

	pmID := strings.TrimSpace(in.PaymentMethodID)
	saveCard := in.SaveCard
	if in.SavedMethodID != nil {
		pm, err := s.repo.GetPaymentMethod(ctx, owner.ID, *in.SavedMethodID)
		if err != nil {
			return nil, err
		}
		pmID = pm.ProcessorMethodID
		saveCard = false
	}
	if pmID == "" {
		return nil, invalid("payment_method_id", "payment method is required")
	}

	var customerID string
	if saveCard || in.SavedMethodID != nil || owner.StripeCustomerID != nil {
		if customerID, err = s.ensureCustomer(ctx, owner); err != nil {
			return nil, err
		}
	}

	req := payment.ChargeRequest{
		InvoiceID:       inv.ID.String(),
		InvoiceNumber:   inv.Number,
		CustomerID:      customerID,
		PaymentMethodID: pmID,
		AmountCents:     in.AmountCents,
		SaveCard:        saveCard,
		ReceiptEmail:    owner.Email,
	}
	if inv.ProcessorInvoiceID != nil {
		req.ProcessorInvoiceID = *inv.ProcessorInvoiceID
	}

	res, err := s.payments.Charge(ctx, req)
	if err != nil {
		s.logger.Warn("card payment failed", zap.Error(err), zap.String("invoiceID", inv.ID.String()))
		return nil, err
	}

	switch res.Status {
	case payment.StatusSucceeded:
		paid, err := s.finalizeCardPayment(ctx, inv.ID, res.PaymentIntentID, pmID, saveCard)
		if err != nil {
			return nil, err
		}
		return &PaymentOutcome{Success: true, PaymentIntentID: res.PaymentIntentID, Invoice: paid}, nil
	case payment.StatusRequiresAction, payment.StatusProcessing:
		updated, err := s.rememberIntent(ctx, inv.ID, res.PaymentIntentID)
		if err != nil {
			return nil, err
		}
		return &PaymentOutcome{
			RequiresAction:  res.Status == payment.StatusRequiresAction,
			Processing:      res.Status == payment.StatusProcessing,
			ClientSecret:    res.ClientSecret,
			PaymentIntentID: res.PaymentIntentID,
			Invoice:         updated,
		}, nil
	default:
		return nil, &payment.DeclineError{Code: "card_declined", Message: "Your card was declined."}
	}
}

// rememberIntent сохраняет идентификатор платёжного намерения, ожидающего завершения.
func (s *Service) rememberIntent(ctx context.Context, invoiceID uuid.UUID, intentID string) (*model.Invoice, error) {
	if intentID == "" {
		return s.repo.GetInvoice(ctx, invoiceID)
	}
	return s.updateInvoice(ctx, invoiceID, func(inv *model.Invoice) error {
		inv.PaymentIntentID = &intentID
		return nil
	})
}

// ConfirmCardPayment завершает оплату после дополнительной аутентификации клиента.
func (s *Service) ConfirmCardPayment(ctx context.Context, actor *model.Profile, id uuid.UUID, intentID string, saveCard bool) (*PaymentOutcome, error) {
	if !s.paymentsEnabled() {
		return nil, ErrNotConfigured
	}
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(actor, inv.ProfileID); err != nil {
		return nil, err
	}
	if inv.PaymentIntentID == nil || *inv.PaymentIntentID != intentID {
		return nil, invalid("payment_intent_id", "payment does not belong to this invoice")
	}
	if inv.Status == model.InvoiceStatusPaid {
		return &PaymentOutcome{Success: true, PaymentIntentID: intentID, Invoice: inv}, nil
	}

	res, err := s.payments.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if res.Status != payment.StatusSucceeded {
		return nil, ErrPaymentIncomplete
	}

	paid, err := s.finalizeCardPayment(ctx, inv.ID, intentID, res.PaymentMethodID, saveCard)
	if err != nil {
		return nil, err
	}
	return &PaymentOutcome{Success: true, PaymentIntentID: intentID, Invoice: paid}, nil
}

// finalizeCardPayment закрывает счёт после подтверждённой оплаты картой. Повторный вызов
// для уже оплаченного счёта ничего не меняет и не порождает уведомлений.
func (s *Service) finalizeCardPayment(ctx context.Context, invoiceID uuid.UUID, intentID, pmID string, saveCard bool) (*model.Invoice, error) {
	var amount int64
	inv, err := s.updateInvoice(ctx, invoiceID, func(inv *model.Invoice) error {
		if inv.Status == model.InvoiceStatusPaid {
			return errAlreadyPaid
		}
		if !inv.Status.Payable() {
			return ErrInvoiceNotPayable
		}
		amount = inv.AmountDueCents()
		markPaid(inv, model.PaymentMethodStripe, s.now().UTC())
		if intentID != "" {
			inv.PaymentIntentID = &intentID
		}
		return nil
	})
	if errors.Is(err, errAlreadyPaid) {
		return s.repo.GetInvoice(ctx, invoiceID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice paid by card", zap.String("invoiceID", inv.ID.String()), zap.Int64("amountCents", amount))

	if saveCard && pmID != "" {
		s.saveCard(ctx, inv.ProfileID, pmID)
	}

	s.notifyCustomer(ctx, inv.ProfileID, model.NotificationPaymentReceived, "Payment received",
		fmt.Sprintf("Thank you! We received %s for invoice %s.", model.FormatUSD(amount), inv.Number),
		"/portal/invoices/"+inv.ID.String(), true)
	info := s.customerInfo(ctx, inv.ProfileID)
	msg := fmt.Sprintf("%s paid invoice %s (%s) by card", info.Name, inv.Number, model.FormatUSD(amount))
	s.notifyAdmins(ctx, model.NotificationPaymentReceived, "Payment received", msg, "/admin/invoices/"+inv.ID.String())
	s.emailBusiness(ctx, "Payment received: "+inv.Number, msg)
	return inv, nil
}

// saveCard сохраняет реквизиты карты для будущих оплат. Ошибка не влияет на результат оплаты.
func (s *Service) saveCard(ctx context.Context, profileID uuid.UUID, pmID string) {
	card, err := s.payments.CardDetails(ctx, pmID)
	if err != nil {
		s.logger.Warn("load card details", zap.Error(err), zap.String("profileID", profileID.String()))
		return
	}
	pm := &model.PaymentMethod{
		ProfileID:         profileID,
		ProcessorMethodID: card.ID,
		Brand:             card.Brand,
		Last4:             card.Last4,
		ExpMonth:          card.ExpMonth,
		ExpYear:           card.ExpYear,
	}
	if err := s.repo.SavePaymentMethod(ctx, pm); err != nil {
		s.logger.Warn("save payment method", zap.Error(err), zap.String("profileID", profileID.String()))
	}
}

// ManualPaymentInstructions возвращает реквизиты перевода для счёта.
func (s *Service) ManualPaymentInstructions(ctx context.Context, actor *model.Profile, id uuid.UUID) (*ManualInstructions, error) {
	if s.zelle == "" {
		return nil, ErrNotConfigured
	}
	inv, err := s.payableInvoice(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	due := inv.AmountDueCents()
	return &ManualInstructions{
		Recipient:     s.zelle,
		AmountCents:   due,
		AmountDisplay: model.FormatUSD(due),
		Reference:     inv.Number,
	}, nil
}

// ClaimManualPayment фиксирует заявление клиента о переводе. Счёт остаётся неоплаченным
// до проверки администратором. Все поля меняются одним обновлением.
func (s *Service) ClaimManualPayment(ctx context.Context, actor *model.Profile, id uuid.UUID, version int64) (*model.Invoice, error) {
	inv, err := s.payableInvoice(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(inv.RowVersion, version); err != nil {
		return nil, err
	}
	if inv.PaymentState != model.PaymentStateUnpaid {
		return nil, ErrInvalidTransition
	}

	method := model.PaymentMethodZelle
	inv.PaymentMethod = &method
	inv.PaymentState = model.PaymentStatePendingManualVerification
	inv.Notes = appendNote(inv.Notes,
		"Zelle payment submitted on "+s.now().In(s.loc).Format("Jan 2, 2006")+", pending verification")
	if err := s.repo.UpdateInvoice(ctx, inv, version); err != nil {
		return nil, err
	}

	info := s.customerInfo(ctx, inv.ProfileID)
	msg := fmt.Sprintf("%s reports a Zelle payment of %s for invoice %s", info.Name,
		model.FormatUSD(inv.AmountDueCents()), inv.Number)
	s.notifyAdmins(ctx, model.NotificationManualPaymentSubmitted, "Manual payment to verify", msg,
		"/admin/invoices/"+inv.ID.String())
	s.emailBusiness(ctx, "Zelle payment to verify: "+inv.Number, msg)
	return inv, nil
}

// HandleWebhook обрабатывает уведомление платёжного процессора. Повторная доставка
// того же события игнорируется. При ошибке обработки событие можно доставить снова.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.payments == nil {
		return ErrNotConfigured
	}
	ev, err := s.payments.ParseEvent(payload, signature)
	if err != nil {
		return err
	}
	if ev.Kind == payment.EventIgnored {
		return nil
	}

	first, err := s.repo.RecordWebhookEvent(ctx, ev.ID)
	if err != nil {
		return err
	}
	if !first {
		s.logger.Info("duplicate webhook event", zap.String("eventID", ev.ID))
		return nil
	}

	if err := s.handleEvent(ctx, ev); err != nil {
		if ferr := s.repo.ForgetWebhookEvent(ctx, ev.ID); ferr != nil {
			s.logger.Error("forget webhook event", zap.Error(ferr), zap.String("eventID", ev.ID))
		}
		return err
	}
	return nil
}

func (s *Service) handleEvent(ctx context.Context, ev *payment.Event) error {
	if _, ok := ev.Metadata["gift_certificate_id"]; ok {
		if ev.Kind == payment.EventPaymentSucceeded {
			return s.giftCertificatePaid(ctx, ev.PaymentIntentID)
		}
		s.logger.Info("gift certificate payment failed", zap.String("paymentIntentID", ev.PaymentIntentID),
			zap.String("reason", ev.FailureMessage))
		return nil
	}

	inv, err := s.invoiceForEvent(ctx, ev)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("webhook for unknown invoice", zap.String("paymentIntentID", ev.PaymentIntentID),
			zap.String("processorInvoiceID", ev.ProcessorInvoiceID))
		return nil
	}
	if err != nil {
		return err
	}

	switch ev.Kind {
	case payment.EventPaymentSucceeded:
		_, err := s.finalizeCardPayment(ctx, inv.ID, ev.PaymentIntentID, "", false)
		if errors.Is(err, ErrInvoiceNotPayable) {
			s.unexpectedPayment(ctx, inv, ev)
			return nil
		}
		return err
	case payment.EventPaymentFailed:
		msg := "Your card payment for invoice " + inv.Number + " did not go through"
		if ev.FailureMessage != "" {
			msg += ": " + ev.FailureMessage
		}
		s.notifyCustomer(ctx, inv.ProfileID, model.NotificationPaymentFailed, "Payment failed", msg,
			"/portal/invoices/"+inv.ID.String(), true)
	}
	return nil
}

// unexpectedPayment сообщает администраторам о деньгах, списанных по счёту, который уже нельзя оплатить.
// Событие считается обработанным, чтобы процессор не доставлял его повторно.
func (s *Service) unexpectedPayment(ctx context.Context, inv *model.Invoice, ev *payment.Event) {
	s.logger.Warn("payment received for non-payable invoice",
		zap.String("invoiceID", inv.ID.String()),
		zap.String("status", string(inv.Status)),
		zap.String("eventID", ev.ID),
		zap.String("paymentIntentID", ev.PaymentIntentID),
		zap.Int64("amountCents", ev.AmountCents))

	msg := fmt.Sprintf("Payment of %s received for %s invoice %s. Review and refund if needed.",
		model.FormatUSD(ev.AmountCents), strings.ToLower(inv.Status.Label()), inv.Number)
	s.notifyAdmins(ctx, model.NotificationPaymentReceived, "Payment received for "+strings.ToLower(inv.Status.Label())+" invoice",
		msg, "/admin/invoices/"+inv.ID.String())
	s.emailBusiness(ctx, "Unexpected payment: "+inv.Number, msg)
}

func (s *Service) invoiceForEvent(ctx context.Context, ev *payment.Event) (*model.Invoice, error) {
	if raw, ok := ev.Metadata["invoice_id"]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			return s.repo.GetInvoice(ctx, id)
		}
	}
	if ev.ProcessorInvoiceID != "" {
		return s.repo.GetInvoiceByProcessorInvoice(ctx, ev.ProcessorInvoiceID)
	}
	return s.repo.GetInvoiceByPaymentIntent(ctx, ev.PaymentIntentID)
}

// ListPaymentMethods возвращает сохранённые карты клиента, карта по умолчанию первой.
func (s *Service) ListPaymentMethods(ctx context.Context, actor *model.Profile) ([]model.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(ctx, actor.ID)
}

// SetDefaultPaymentMethod делает карту клиента картой по умолчанию.
func (s *Service) SetDefaultPaymentMethod(ctx context.Context, actor *model.Profile, id uuid.UUID) error {
	return s.repo.SetDefaultPaymentMethod(ctx, actor.ID, id)
}

// DeletePaymentMethod удаляет сохранённую карту и отвязывает её в процессоре.
func (s *Service) DeletePaymentMethod(ctx context.Context, actor *model.Profile, id uuid.UUID) error {
	pm, err := s.repo.DeletePaymentMethod(ctx, actor.ID, id)
	if err != nil {
		return err
	}
	if s.paymentsEnabled() {
		if err := s.payments.DetachCard(ctx, pm.ProcessorMethodID); err != nil {
			s.logger.Warn("detach card", zap.Error(err), zap.String("paymentMethodID", pm.ID.String()))
		}
	}
	return nil
}
