package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleaning-portal/internal/botcheck"
	"github.com/mmeshcher/cleaning-portal/internal/formrelay"
	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/payment"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

// Пределы суммы подарочного сертификата в центах.
const (
	MinGiftCents = 2500
	MaxGiftCents = 100000
)

// BotToken содержит токен защиты публичной формы и адрес отправителя.
type BotToken struct {
	Token    string
	RemoteIP string
}

// BookingInput описывает заявку с публичной формы бронирования.
type BookingInput struct {
	Name          string
	Email         string
	Phone         string
	Street        string
	City          string
	State         string
	ZIP           string
	ServiceType   model.ServiceType
	Frequency     model.Frequency
	PreferredDate *time.Time
	Window        model.TimeWindow
	Bedrooms      int
	Bathrooms     int
	Notes         string
}

// GiftInput описывает покупку подарочного сертификата.
type GiftInput struct {
	PurchaserName  string
	PurchaserEmail string
	RecipientName  string
	RecipientEmail string
	Message        string
	AmountCents    int64
}

// GiftPurchase содержит созданный сертификат и client secret для оплаты в браузере.
type GiftPurchase struct {
	Certificate  model.GiftCertificate
	ClientSecret string
}

func (s *Service) verifyBot(ctx context.Context, t BotToken) error {
	if s.bots == nil {
		return nil
	}
	err := s.bots.Verify(ctx, t.Token, t.RemoteIP)
	if errors.Is(err, botcheck.ErrRejected) {
		return ErrBotCheck
	}
	if err != nil {
		return fmt.Errorf("verify bot token: %w", err)
	}
	return nil
}

// CreateBooking сохраняет заявку с публичной формы и возвращает её идентификатор для страницы подтверждения.
func (s *Service) CreateBooking(ctx context.Context, t BotToken, in BookingInput) (*model.Booking, error) {
	if err := s.verifyBot(ctx, t); err != nil {
		return nil, err
	}
	if !in.ServiceType.Valid() {
		return nil, invalid("service_type", "unknown service type")
	}
	if in.Frequency == "" {
		in.Frequency = model.FrequencyOneTime
	}
	if !in.Frequency.Valid() {
		return nil, invalid("frequency", "unknown frequency")
	}
	day, _, _, err := s.validateSlot(in.PreferredDate, in.Window)
	if err != nil {
		return nil, err
	}

	b := &model.Booking{
		ID:              uuid.New(),
		Name:            strings.TrimSpace(in.Name),
		Email:           strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:           strings.TrimSpace(in.Phone),
		Street:          strings.TrimSpace(in.Street),
		City:            strings.TrimSpace(in.City),
		State:           strings.ToUpper(strings.TrimSpace(in.State)),
		ZIP:             strings.TrimSpace(in.ZIP),
		ServiceType:     in.ServiceType,
		Frequency:       in.Frequency,
		PreferredDate:   day,
		PreferredWindow: in.Window,
		Bedrooms:        in.Bedrooms,
		Bathrooms:       in.Bathrooms,
		Notes:           strings.TrimSpace(in.Notes),
	}
	if err := s.repo.CreateBooking(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("booking created", zap.String("bookingID", b.ID.String()))

	summary := fmt.Sprintf("%s booked %s on %s, %s\nPhone: %s\nEmail: %s\nAddress: %s, %s, %s %s",
		b.Name, b.ServiceType.Label(), formatDate(b.PreferredDate), b.PreferredWindow.Label(),
		b.Phone, b.Email, b.Street, b.City, b.State, b.ZIP)
	s.emailBusiness(ctx, "New booking: "+b.Name, summary)
	s.notifyAdmins(ctx, model.NotificationSystem, "New booking",
		fmt.Sprintf("%s booked %s on %s", b.Name, b.ServiceType.Label(), formatDate(b.PreferredDate)), "")
	if s.notifier != nil {
		body := fmt.Sprintf("Thank you for booking %s on %s, %s. We will contact you shortly to confirm.",
			b.ServiceType.Label(), formatDate(b.PreferredDate), b.PreferredWindow.Label())
		if err := s.notifier.SendEmail(ctx, b.Name, b.Email, "We received your booking", body); err != nil {
			s.logger.Warn("send booking confirmation", zap.Error(err), zap.String("bookingID", b.ID.String()))
		}
	}
	return b, nil
}

// BookingConfirmation возвращает заявку для страницы подтверждения.
func (s *Service) BookingConfirmation(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// SubmitApplication пересылает анкету соискателя в сервис форм.
func (s *Service) SubmitApplication(ctx context.Context, t BotToken, app formrelay.Application) error {
	if err := s.verifyBot(ctx, t); err != nil {
		return err
	}
	if s.relay == nil {
		return ErrNotConfigured
	}
	if err := s.relay.Submit(ctx, app); err != nil {
		if errors.Is(err, formrelay.ErrNotConfigured) {
			return ErrNotConfigured
		}
		return fmt.Errorf("relay application: %w", err)
	}
	s.logger.Info("application relayed", zap.String("formType", app.FormType))
	return nil
}

// giftCode формирует код сертификата вида GC-XXXX-XXXX.
func giftCode() string {
	h := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "GC-" + h[:4] + "-" + h[4:8]
}

// PurchaseGiftCertificate создаёт сертификат в статусе pending и платёжное намерение для его оплаты.
// Сертификат становится оплаченным после уведомления процессора.
func (s *Service) PurchaseGiftCertificate(ctx context.Context, t BotToken, in GiftInput) (*GiftPurchase, error) {
	if err := s.verifyBot(ctx, t); err != nil {
		return nil, err
	}
	if !s.paymentsEnabled() {
		return nil, ErrNotConfigured
	}
	if in.AmountCents < MinGiftCents || in.AmountCents > MaxGiftCents {
		return nil, invalid("amount_cents", fmt.Sprintf("amount must be between %s and %s",
			model.FormatUSD(MinGiftCents), model.FormatUSD(MaxGiftCents)))
	}

	g := &model.GiftCertificate{
		Code:           giftCode(),
		PurchaserName:  strings.TrimSpace(in.PurchaserName),
		PurchaserEmail: strings.ToLower(strings.TrimSpace(in.PurchaserEmail)),
		RecipientName:  strings.TrimSpace(in.RecipientName),
		RecipientEmail: strings.ToLower(strings.TrimSpace(in.RecipientEmail)),
		Message:        strings.TrimSpace(in.Message),
		AmountCents:    in.AmountCents,
	}
	if err := s.repo.CreateGiftCertificate(ctx, g); err != nil {
		return nil, err
	}

	res, err := s.payments.CreateIntent(ctx, payment.IntentRequest{
		AmountCents:  g.AmountCents,
		Description:  "Gift certificate " + g.Code,
		ReceiptEmail: g.PurchaserEmail,
		Metadata: map[string]string{
			"gift_certificate_id": g.ID.String(),
			"gift_code":           g.Code,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetGiftCertificateIntent(ctx, g.ID, res.PaymentIntentID); err != nil {
		return nil, err
	}
	g.PaymentIntentID = &res.PaymentIntentID

	return &GiftPurchase{Certificate: *g, ClientSecret: res.ClientSecret}, nil
}

// giftCertificatePaid отмечает сертификат оплаченным и отправляет его получателю.
func (s *Service) giftCertificatePaid(ctx context.Context, intentID string) error {
	g, err := s.repo.MarkGiftCertificatePaid(ctx, intentID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info("gift certificate already paid or unknown", zap.String("paymentIntentID", intentID))
		return nil
	}
	if err != nil {
		return err
	}

	amount := model.FormatUSD(g.AmountCents)
	if s.notifier != nil {
		to, name := g.RecipientEmail, g.RecipientName
		if to == "" {
			to, name = g.PurchaserEmail, g.PurchaserName
		}
		body := fmt.Sprintf("%s sent you a %s cleaning gift certificate.\nCode: %s", g.PurchaserName, amount, g.Code)
		if g.Message != "" {
			body += "\n\n" + g.Message
		}
		if err := s.notifier.SendEmail(ctx, name, to, "You received a gift certificate", body); err != nil {
			s.logger.Warn("send gift certificate", zap.Error(err), zap.String("code", g.Code))
		}
	}

	msg := fmt.Sprintf("%s bought a %s gift certificate (%s)", g.PurchaserName, amount, g.Code)
	s.notifyAdmins(ctx, model.NotificationGiftCertificatePaid, "Gift certificate sold", msg, "")
	s.emailBusiness(ctx, "Gift certificate sold", msg)
	return nil
}
