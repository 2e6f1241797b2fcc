// Package service реализует бизнес-логику портала клининговой службы.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleaning-portal/internal/formrelay"
	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/payment"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateProfile(ctx context.Context, p *model.Profile) error
	GetProfile(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	ListProfiles(ctx context.Context, status *model.AccountStatus) ([]model.Profile, error)
	UpdateProfileSettings(ctx context.Context, p *model.Profile) error
	SetAccountStatus(ctx context.Context, id uuid.UUID, status model.AccountStatus) error
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error

	ListAddresses(ctx context.Context, profileID uuid.UUID) ([]model.ServiceAddress, error)
	GetAddress(ctx context.Context, id uuid.UUID) (*model.ServiceAddress, error)
	AddAddress(ctx context.Context, a *model.ServiceAddress) error
	UpdateAddress(ctx context.Context, a *model.ServiceAddress) error
	SetPrimaryAddress(ctx context.Context, profileID, addressID uuid.UUID) error
	DeleteAddress(ctx context.Context, profileID, addressID uuid.UUID) error

	GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	ListAppointmentsByProfile(ctx context.Context, profileID uuid.UUID) ([]model.Appointment, error)
	ListAppointments(ctx context.Context, f repository.AppointmentFilter) ([]model.Appointment, error)
	CountAppointments(ctx context.Context, from, to time.Time) (int, error)
	CreateAppointment(ctx context.Context, a *model.Appointment) error
	UpdateAppointment(ctx context.Context, a *model.Appointment, expectedVersion int64) error

	CreateServiceRequest(ctx context.Context, sr *model.ServiceRequest) error
	GetServiceRequest(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error)
	ListServiceRequestsByProfile(ctx context.Context, profileID uuid.UUID) ([]model.ServiceRequest, error)
	ListServiceRequests(ctx context.Context, status *model.ServiceRequestStatus) ([]model.ServiceRequest, error)
	ApproveServiceRequest(ctx context.Context, id uuid.UUID, adminNote string, appts []model.Appointment) error
	DeclineServiceRequest(ctx context.Context, id uuid.UUID, adminNote string) error

	CreateInvoice(ctx context.Context, inv *model.Invoice) error
	GetInvoice(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	GetInvoiceByPaymentIntent(ctx context.Context, intentID string) (*model.Invoice, error)
	GetInvoiceByProcessorInvoice(ctx context.Context, processorInvoiceID string) (*model.Invoice, error)
	ListInvoicesByProfile(ctx context.Context, profileID uuid.UUID) ([]model.Invoice, error)
	ListInvoicesByStatus(ctx context.Context, statuses ...model.InvoiceStatus) ([]model.Invoice, error)
	ListInvoicesDueBefore(ctx context.Context, day time.Time) ([]model.Invoice, error)
	ListPaidInvoicesSince(ctx context.Context, since time.Time) ([]model.Invoice, error)
	ListPendingManualClaims(ctx context.Context) ([]model.Invoice, error)
	SumRevenue(ctx context.Context, since *time.Time) (int64, error)
	UpdateInvoice(ctx context.Context, inv *model.Invoice, expectedVersion int64) error

	InsertNotification(ctx context.Context, feed model.Feed, n *model.Notification) error
	ListNotifications(ctx context.Context, q repository.NotificationQuery) ([]model.Notification, int, error)
	SetNotificationRead(ctx context.Context, feed model.Feed, profileID *uuid.UUID, id uuid.UUID, read bool) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, feed model.Feed, profileID *uuid.UUID) (int64, error)
	CountUnreadNotifications(ctx context.Context, feed model.Feed, profileID *uuid.UUID) (int, error)

	ListPaymentMethods(ctx context.Context, profileID uuid.UUID) ([]model.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, profileID, id uuid.UUID) (*model.PaymentMethod, error)
	SavePaymentMethod(ctx context.Context, pm *model.PaymentMethod) error
	SetDefaultPaymentMethod(ctx context.Context, profileID, id uuid.UUID) error
	DeletePaymentMethod(ctx context.Context, profileID, id uuid.UUID) (*model.PaymentMethod, error)

	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	CreateGiftCertificate(ctx context.Context, g *model.GiftCertificate) error
	SetGiftCertificateIntent(ctx context.Context, id uuid.UUID, intentID string) error
	MarkGiftCertificatePaid(ctx context.Context, intentID string) (*model.GiftCertificate, error)
	RecordWebhookEvent(ctx context.Context, eventID string) (bool, error)
	ForgetWebhookEvent(ctx context.Context, eventID string) error
	SumCredits(ctx context.Context, profileID uuid.UUID) (int64, error)
}

// Gateway описывает платёжный процессор.
type Gateway interface {
	Enabled() bool
	CreateCustomer(ctx context.Context, email, name, profileID string) (string, error)
	Charge(ctx context.Context, req payment.ChargeRequest) (*payment.Result, error)
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Result, error)
	RetrieveIntent(ctx context.Context, id string) (*payment.Result, error)
	CardDetails(ctx context.Context, paymentMethodID string) (*payment.Card, error)
	DetachCard(ctx context.Context, paymentMethodID string) error
	ParseEvent(payload []byte, signature string) (*payment.Event, error)
}

// Notifier доставляет письма и SMS вне портала.
type Notifier interface {
	NotifyBusiness(ctx context.Context, subject, body string) error
	NotifyCustomer(ctx context.Context, p *model.Profile, subject, body string) error
	SendEmail(ctx context.Context, toName, toEmail, subject, body string) error
}

// BotVerifier проверяет токены защиты публичных форм.
type BotVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// FormRelay пересылает анкеты соискателей во внешний сервис форм.
type FormRelay interface {
	Submit(ctx context.Context, app formrelay.Application) error
}

// Ошибки бизнес-правил.
var (
	ErrForbidden          = errors.New("forbidden")
	ErrAccountInactive    = errors.New("account is not active")
	ErrCancellationWindow = errors.New("appointments within 48 hours of the start time cannot be cancelled online, please contact support")
	ErrReasonRequired     = errors.New("cancellation reason is required")
	ErrDetailsRequired    = errors.New("please describe the cancellation reason")
	ErrDateRequired       = errors.New("date is required")
	ErrTimeWindowRequired = errors.New("time window is required")
	ErrDateInPast         = errors.New("date must not be in the past")
	ErrVersionRequired    = errors.New("row version is required")
	ErrInvalidTransition  = errors.New("status transition is not allowed")
	ErrInvoiceNotPayable  = errors.New("invoice cannot be paid in its current state")
	ErrAmountMismatch     = errors.New("amount does not match the amount due")
	ErrPaymentIncomplete  = errors.New("payment has not completed")
	ErrNotConfigured      = errors.New("integration is not configured")
	ErrBotCheck           = errors.New("bot verification failed")
)

// ValidationError описывает неверное значение поля запроса.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// Options задаёт параметры бизнес-правил.
type Options struct {
	Location       *time.Location
	LateFeePercent float64
	InvoiceDueDays int
	ZelleRecipient string
	Now            func() time.Time
}

// Deps объединяет зависимости сервиса.
type Deps struct {
	Repo      Repository
	Payments  Gateway
	Notifier  Notifier
	BotCheck  BotVerifier
	FormRelay FormRelay
	Logger    *zap.Logger
}

// Service содержит бизнес-логику портала.
type Service struct {
	repo     Repository
	payments Gateway
	notifier Notifier
	bots     BotVerifier
	relay    FormRelay
	logger   *zap.Logger

	loc            *time.Location
	lateFeePercent float64
	dueDays        int
	zelle          string
	now            func() time.Time
}

// NewService создаёт сервис с указанными зависимостями и параметрами.
func NewService(d Deps, opts Options) *Service {
	s := &Service{
		repo:           d.Repo,
		payments:       d.Payments,
		notifier:       d.Notifier,
		bots:           d.BotCheck,
		relay:          d.FormRelay,
		logger:         d.Logger,
		loc:            opts.Location,
		lateFeePercent: opts.LateFeePercent,
		dueDays:        opts.InvoiceDueDays,
		zelle:          opts.ZelleRecipient,
		now:            opts.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.dueDays <= 0 {
		s.dueDays = 14
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Location возвращает временную зону бизнеса.
func (s *Service) Location() *time.Location {
	return s.loc
}

// today возвращает текущую дату во временной зоне бизнеса, приведённую к полуночи UTC,
// в том же представлении, в котором хранятся даты визитов.
func (s *Service) today() time.Time {
	return civilDate(s.now().In(s.loc))
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const maxConflictRetries = 3

// updateInvoice перечитывает счёт и применяет mutate до успешной записи.
// Используется фоновыми операциями, у которых нет версии, полученной клиентом.
func (s *Service) updateInvoice(ctx context.Context, id uuid.UUID, mutate func(inv *model.Invoice) error) (*model.Invoice, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		inv, err := s.repo.GetInvoice(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(inv); err != nil {
			return nil, err
		}
		err = s.repo.UpdateInvoice(ctx, inv, inv.RowVersion)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// updateAppointment перечитывает визит и применяет mutate до успешной записи.
func (s *Service) updateAppointment(ctx context.Context, id uuid.UUID, mutate func(a *model.Appointment) error) (*model.Appointment, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		a, err := s.repo.GetAppointment(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(a); err != nil {
			return nil, err
		}
		err = s.repo.UpdateAppointment(ctx, a, a.RowVersion)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// checkVersion отклоняет изменение, если клиент видел устаревшую версию записи.
func checkVersion(current, expected int64) error {
	if expected <= 0 {
		return ErrVersionRequired
	}
	if current != expected {
		return repository.ErrVersionConflict
	}
	return nil
}

// notifyCustomer добавляет запись в ленту клиента и, если указано, отправляет сообщение по его каналу связи.
// Ошибки доставки не прерывают операцию.
func (s *Service) notifyCustomer(ctx context.Context, profileID uuid.UUID, typ model.NotificationType, title, message, link string, deliver bool) {
	n := &model.Notification{
		ProfileID: &profileID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Link:      link,
	}
	if err := s.repo.InsertNotification(ctx, model.FeedCustomer, n); err != nil {
		s.logger.Warn("insert customer notification", zap.Error(err), zap.String("profileID", profileID.String()))
	}

	if !deliver || s.notifier == nil {
		return
	}
	p, err := s.repo.GetProfile(ctx, profileID)
	if err != nil {
		s.logger.Warn("load profile for notification", zap.Error(err), zap.String("profileID", profileID.String()))
		return
	}
	if err := s.notifier.NotifyCustomer(ctx, p, title, message); err != nil {
		s.logger.Warn("deliver customer notification", zap.Error(err), zap.String("profileID", profileID.String()))
	}
}

// notifyAdmins добавляет запись в общую ленту администраторов.
func (s *Service) notifyAdmins(ctx context.Context, typ model.NotificationType, title, message, link string) {
	n := &model.Notification{
		Type:    typ,
		Title:   title,
		Message: message,
		Link:    link,
	}
	if err := s.repo.InsertNotification(ctx, model.FeedAdmin, n); err != nil {
		s.logger.Warn("insert admin notification", zap.Error(err), zap.String("type", string(typ)))
	}
}

// emailBusiness отправляет письмо владельцу бизнеса.
func (s *Service) emailBusiness(ctx context.Context, subject, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyBusiness(ctx, subject, body); err != nil {
		s.logger.Warn("email business", zap.Error(err), zap.String("subject", subject))
	}
}

// ownedBy скрывает чужие записи от клиентов. Администраторам доступны все записи.
func ownedBy(actor *model.Profile, ownerID uuid.UUID) error {
	if actor == nil {
		return ErrForbidden
	}
	if actor.IsAdmin() || actor.ID == ownerID {
		return nil
	}
	return repository.ErrNotFound
}

func formatDate(t time.Time) string {
	return t.Format("Monday, January 2, 2006")
}

func describeAppointment(a *model.Appointment) string {
	window := fmt.Sprintf("%s - %s", a.ScheduledTimeStart, a.ScheduledTimeEnd)
	if w, ok := model.TimeWindowFromStart(a.ScheduledTimeStart); ok {
		window = w.Label()
	}
	return fmt.Sprintf("%s on %s, %s", a.ServiceType.Label(), formatDate(a.ScheduledDate), window)
}
