// Package handler содержит HTTP-обработчики API портала.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleaning-portal/internal/formrelay"
	"github.com/mmeshcher/cleaning-portal/internal/middleware"
	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/payment"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
	"github.com/mmeshcher/cleaning-portal/internal/service"
	"github.com/mmeshcher/cleaning-portal/internal/validation"
)

const maxBodySize = 1 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Me(ctx context.Context, id model.Identity) (*model.Profile, error)
	Register(ctx context.Context, id model.Identity, in service.ProfileInput) (*model.Profile, error)
	UpdateSettings(ctx context.Context, actor *model.Profile, in service.ProfileInput) (*model.Profile, error)
	CustomerDashboard(ctx context.Context, actor *model.Profile) (*service.CustomerDashboard, error)

	ListAddresses(ctx context.Context, actor *model.Profile) ([]model.ServiceAddress, error)
	AddAddress(ctx context.Context, actor *model.Profile, in service.AddressInput) (*model.ServiceAddress, error)
	UpdateAddress(ctx context.Context, actor *model.Profile, id uuid.UUID, in service.AddressInput) (*model.ServiceAddress, error)
	SetPrimaryAddress(ctx context.Context, actor *model.Profile, id uuid.UUID) error
	DeleteAddress(ctx context.Context, actor *model.Profile, id uuid.UUID) error

	ListAppointments(ctx context.Context, actor *model.Profile) (*service.AppointmentList, error)
	GetAppointment(ctx context.Context, actor *model.Profile, id uuid.UUID) (*service.AppointmentView, error)
	Reschedule(ctx context.Context, actor *model.Profile, id uuid.UUID, in service.RescheduleInput) (*service.AppointmentView, error)
	Cancel(ctx context.Context, actor *model.Profile, id uuid.UUID, in service.CancelInput) (*service.AppointmentView, error)

	RequestService(ctx context.Context, actor *model.Profile, in service.ServiceRequestInput) (*model.ServiceRequest, error)
	ListServiceRequests(ctx context.Context, actor *model.Profile) ([]model.ServiceRequest, error)

	ListInvoices(ctx context.Context, actor *model.Profile) ([]model.Invoice, error)
	InvoiceDetail(ctx context.Context, actor *model.Profile, id uuid.UUID) (*service.InvoiceDetail, error)
	PayByCard(ctx context.Context, actor *model.Profile, id uuid.UUID, in service.CardPaymentInput) (*service.PaymentOutcome, error)
	ConfirmCardPayment(ctx context.Context, actor *model.Profile, id uuid.UUID, intentID string, saveCard bool) (*service.PaymentOutcome, error)
	ManualPaymentInstructions(ctx context.Context, actor *model.Profile, id uuid.UUID) (*service.ManualInstructions, error)
	ClaimManualPayment(ctx context.Context, actor *model.Profile, id uuid.UUID, version int64) (*model.Invoice, error)

	ListPaymentMethods(ctx context.Context, actor *model.Profile) ([]model.PaymentMethod, error)
	SetDefaultPaymentMethod(ctx context.Context, actor *model.Profile, id uuid.UUID) error
	DeletePaymentMethod(ctx context.Context, actor *model.Profile, id uuid.UUID) error

	ListNotifications(ctx context.Context, actor *model.Profile, feed model.Feed, filter model.NotificationFilter, page int) (*service.NotificationPage, error)
	SetNotificationRead(ctx context.Context, actor *model.Profile, feed model.Feed, id uuid.UUID, read bool) (int, error)
	MarkAllNotificationsRead(ctx context.Context, actor *model.Profile, feed model.Feed) (int64, error)
	UnreadCount(ctx context.Context, actor *model.Profile, feed model.Feed) (int, error)

	AdminDashboard(ctx context.Context) (*service.AdminDashboard, error)
	ListCustomers(ctx context.Context, status *model.AccountStatus) ([]model.Profile, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (*model.Profile, []model.ServiceAddress, error)
	SetAccountStatus(ctx context.Context, id uuid.UUID, next model.AccountStatus) (*model.Profile, error)
	InviteCustomer(ctx context.Context, in service.InviteInput) (*model.Profile, error)

	AdminListAppointments(ctx context.Context, f service.AdminAppointmentFilter) ([]service.AppointmentView, error)
	CreateAppointment(ctx context.Context, in service.NewAppointmentInput) (*model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, next model.AppointmentStatus, version int64) (*model.Appointment, error)
	AdminListServiceRequests(ctx context.Context, status *model.ServiceRequestStatus) ([]model.ServiceRequest, error)
	ApproveServiceRequest(ctx context.Context, id uuid.UUID, in service.ApproveInput) ([]model.Appointment, error)
	DeclineServiceRequest(ctx context.Context, id uuid.UUID, adminNote string) error

	AdminListInvoices(ctx context.Context, statuses []model.InvoiceStatus) ([]model.Invoice, error)
	CreateInvoice(ctx context.Context, in service.NewInvoiceInput) (*model.Invoice, error)
	CreateInvoiceFromAppointment(ctx context.Context, in service.FromAppointmentInput) (*model.Invoice, error)
	SendInvoice(ctx context.Context, id uuid.UUID, version int64) (*model.Invoice, error)
	VerifyManualPayment(ctx context.Context, id uuid.UUID, version int64) (*model.Invoice, error)
	RejectManualPayment(ctx context.Context, id uuid.UUID, version int64, reason string) (*model.Invoice, error)
	RecordOfflinePayment(ctx context.Context, id uuid.UUID, version int64, method model.PaymentMethodKind, note string) (*model.Invoice, error)
	CancelInvoice(ctx context.Context, id uuid.UUID, version int64) (*model.Invoice, error)

	CreateBooking(ctx context.Context, t service.BotToken, in service.BookingInput) (*model.Booking, error)
	BookingConfirmation(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	SubmitApplication(ctx context.Context, t service.BotToken, app formrelay.Application) error
	PurchaseGiftCertificate(ctx context.Context, t service.BotToken, in service.GiftInput) (*service.GiftPurchase, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// Options задаёт необязательные части маршрутизатора.
type Options struct {
	// AdminFeed обслуживает websocket ленты администратора.
	AdminFeed http.Handler
	// AllowedOrigins перечисляет источники, которым разрешены запросы из браузера.
	AllowedOrigins []string
}

// Handler реализует HTTP-обработчики API портала.
type Handler struct {
	service  Service
	logger   *zap.Logger
	auth     *middleware.AuthMiddleware
	authz    *middleware.Authorizer
	validate *validator.Validate
	opts     Options
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, authz *middleware.Authorizer, opts Options) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		service:  s,
		logger:   logger,
		auth:     auth,
		authz:    authz,
		validate: v,
		opts:     opts,
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message, field string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message, Field: field})
}

// decode читает JSON-тело запроса в dst и проверяет его теги validate.
// При ошибке ответ уже записан.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_body", "Request body is not valid JSON.", "")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeErr(w, http.StatusUnprocessableEntity, "validation_failed", fieldMessage(fe), fe.Field())
			return false
		}
		writeErr(w, http.StatusBadRequest, "invalid_body", "Request body is not valid.", "")
		return false
	}
	return true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "datetime":
		return fe.Field() + " must be a date in YYYY-MM-DD format"
	case "uuid4", "uuid":
		return fe.Field() + " must be a valid id"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "gt", "gte", "min":
		return fe.Field() + " is too small"
	case "lte", "max":
		return fe.Field() + " is too large"
	}
	return fe.Field() + " is invalid"
}

// pathID извлекает идентификатор из параметра маршрута.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_id", "The link you followed contains an invalid id.", name)
		return uuid.Nil, false
	}
	return id, true
}

func queryPage(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// actor возвращает профиль текущего пользователя, добавленный Authorizer.
func actor(r *http.Request) *model.Profile {
	p, _ := middleware.ProfileFromContext(r.Context())
	return p
}

// fail переводит ошибку бизнес-логики в HTTP-ответ. Непредвиденные ошибки пишутся в журнал.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		writeErr(w, http.StatusUnprocessableEntity, "validation_failed", verr.Message, verr.Field)
		return
	}
	var decline *payment.DeclineError
	if errors.As(err, &decline) {
		writeErr(w, http.StatusPaymentRequired, "payment_declined", decline.Message, "")
		return
	}

	switch {
	case errors.Is(err, service.ErrReasonRequired):
		writeErr(w, http.StatusUnprocessableEntity, "reason_required", err.Error(), "reason")
	case errors.Is(err, service.ErrDetailsRequired):
		writeErr(w, http.StatusUnprocessableEntity, "details_required", err.Error(), "details")
	case errors.Is(err, service.ErrDateRequired):
		writeErr(w, http.StatusUnprocessableEntity, "date_required", err.Error(), "date")
	case errors.Is(err, service.ErrTimeWindowRequired):
		writeErr(w, http.StatusUnprocessableEntity, "time_window_required", err.Error(), "window")
	case errors.Is(err, service.ErrDateInPast):
		writeErr(w, http.StatusUnprocessableEntity, "date_in_past", err.Error(), "date")
	case errors.Is(err, service.ErrVersionRequired):
		writeErr(w, http.StatusUnprocessableEntity, "version_required", err.Error(), "row_version")
	case errors.Is(err, service.ErrAmountMismatch):
		writeErr(w, http.StatusUnprocessableEntity, "amount_mismatch", err.Error(), "amount_cents")

	case errors.Is(err, service.ErrCancellationWindow):
		writeErr(w, http.StatusConflict, "cancellation_window", err.Error(), "")
	case errors.Is(err, service.ErrInvalidTransition):
		writeErr(w, http.StatusConflict, "invalid_transition", err.Error(), "")
	case errors.Is(err, service.ErrInvoiceNotPayable):
		writeErr(w, http.StatusConflict, "not_payable", err.Error(), "")
	case errors.Is(err, service.ErrPaymentIncomplete):
		writeErr(w, http.StatusConflict, "payment_incomplete", err.Error(), "")
	case errors.Is(err, repository.ErrVersionConflict):
		writeErr(w, http.StatusConflict, "version_conflict", "This record was changed by someone else. Reload and try again.", "")
	case errors.Is(err, repository.ErrRequestNotPending):
		writeErr(w, http.StatusConflict, "request_not_pending", err.Error(), "")
	case errors.Is(err, repository.ErrProfileExists):
		writeErr(w, http.StatusConflict, "profile_exists", "A profile already exists for this account.", "")
	case errors.Is(err, repository.ErrInUse):
		writeErr(w, http.StatusConflict, "in_use", "This record is still used by appointments or requests.", "")

	case errors.Is(err, service.ErrForbidden):
		writeErr(w, http.StatusForbidden, "forbidden", "You do not have access to this page.", "")
	case errors.Is(err, service.ErrAccountInactive):
		writeErr(w, http.StatusForbidden, "account_inactive", "Your account is not active. Please contact us.", "")
	case errors.Is(err, service.ErrBotCheck):
		writeErr(w, http.StatusForbidden, "bot_check_failed", "We could not verify the request. Please try again.", "")
	case errors.Is(err, repository.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not_found", "We could not find what you were looking for.", "")

	case errors.Is(err, validation.ErrLegacyLink):
		writeErr(w, http.StatusGone, "outdated_link", "This link is outdated. Please use the link from your latest confirmation email.", "")
	case errors.Is(err, validation.ErrMissingID):
		writeErr(w, http.StatusBadRequest, "missing_id", "The link is missing a booking id.", "id")
	case errors.Is(err, validation.ErrInvalidID):
		writeErr(w, http.StatusBadRequest, "invalid_id", "The booking id in this link is not valid.", "id")
	case errors.Is(err, payment.ErrBadSignature):
		writeErr(w, http.StatusBadRequest, "bad_signature", err.Error(), "")

	case errors.Is(err, service.ErrNotConfigured),
		errors.Is(err, payment.ErrNotConfigured),
		errors.Is(err, formrelay.ErrNotConfigured):
		writeErr(w, http.StatusServiceUnavailable, "not_configured", "This feature is temporarily unavailable.", "")

	default:
		fields := []zap.Field{zap.Error(err), zap.String("op", op)}
		if p := actor(r); p != nil {
			fields = append(fields, zap.String("profileID", p.ID.String()))
		}
		h.logger.Error("request failed", fields...)
		writeErr(w, http.StatusInternalServerError, "internal", "Something went wrong. Please try again.", "")
	}
}
