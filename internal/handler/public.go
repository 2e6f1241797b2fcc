package handler

import (
	"io"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/mmeshcher/cleaning-portal/internal/formrelay"
	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/service"
	"github.com/mmeshcher/cleaning-portal/internal/validation"
)

// maxWebhookSize ограничивает тело уведомления платёжного процессора.
const maxWebhookSize = 64 << 10

func botToken(r *http.Request, token string) service.BotToken {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return service.BotToken{Token: token, RemoteIP: ip}
}

type bookingRequest struct {
	BotToken      string `json:"bot_token"`
	Name          string `json:"name" validate:"required,max=200"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"required,max=32"`
	Street        string `json:"street" validate:"required,max=200"`
	City          string `json:"city" validate:"required,max=100"`
	State         string `json:"state" validate:"required,len=2"`
	ZIP           string `json:"zip" validate:"required,max=10"`
	ServiceType   string `json:"service_type" validate:"required"`
	Frequency     string `json:"frequency"`
	PreferredDate string `json:"preferred_date" validate:"omitempty,datetime=2006-01-02"`
	Window        string `json:"window"`
	Bedrooms      int    `json:"bedrooms" validate:"gte=0,lte=20"`
	Bathrooms     int    `json:"bathrooms" validate:"gte=0,lte=20"`
	Notes         string `json:"notes" validate:"max=2000"`
}

type bookingCreatedResponse struct {
	ID uuid.UUID `json:"id"`
}

// CreateBooking принимает заявку с публичной формы бронирования.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := validation.ParseDate(req.PreferredDate)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "validation_failed", "preferred_date must be a date in YYYY-MM-DD format", "preferred_date")
		return
	}

	b, err := h.service.CreateBooking(r.Context(), botToken(r, req.BotToken), service.BookingInput{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Street:        req.Street,
		City:          req.City,
		State:         req.State,
		ZIP:           req.ZIP,
		ServiceType:   model.ServiceType(req.ServiceType),
		Frequency:     model.Frequency(req.Frequency),
		PreferredDate: date,
		Window:        model.TimeWindow(req.Window),
		Bedrooms:      req.Bedrooms,
		Bathrooms:     req.Bathrooms,
		Notes:         req.Notes,
	})
	if err != nil {
		h.fail(w, r, "create booking", err)
		return
	}
	writeJSON(w, http.StatusCreated, bookingCreatedResponse{ID: b.ID})
}

// BookingConfirmation возвращает заявку для страницы подтверждения по ссылке ?id=.
func (h *Handler) BookingConfirmation(w http.ResponseWriter, r *http.Request) {
	id, err := validation.BookingID(r.URL.Query())
	if err != nil {
		h.fail(w, r, "booking confirmation", err)
		return
	}

	b, err := h.service.BookingConfirmation(r.Context(), id)
	if err != nil {
		h.fail(w, r, "booking confirmation", err)
		return
	}
	writeJSON(w, http.StatusOK, toBooking(b))
}

type applicationRequest struct {
	BotToken         string `json:"bot_token"`
	FormType         string `json:"form_type" validate:"required,oneof=job_application contact"`
	Name             string `json:"name" validate:"required,max=200"`
	Email            string `json:"email" validate:"required,email"`
	Phone            string `json:"phone" validate:"max=32"`
	City             string `json:"city" validate:"max=100"`
	Position         string `json:"position" validate:"max=100"`
	Experience       string `json:"experience" validate:"max=2000"`
	Availability     string `json:"availability" validate:"max=500"`
	HasTransport     bool   `json:"has_transport"`
	AuthorizedToWork bool   `json:"authorized_to_work"`
	Message          string `json:"message" validate:"max=5000"`
}

// SubmitApplication пересылает анкету соискателя или сообщение с формы контактов.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req applicationRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.service.SubmitApplication(r.Context(), botToken(r, req.BotToken), formrelay.Application{
		FormType:         req.FormType,
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		City:             req.City,
		Position:         req.Position,
		Experience:       req.Experience,
		Availability:     req.Availability,
		HasTransport:     req.HasTransport,
		AuthorizedToWork: req.AuthorizedToWork,
		Message:          req.Message,
	})
	if err != nil {
		h.fail(w, r, "submit application", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type giftRequest struct {
	BotToken       string `json:"bot_token"`
	PurchaserName  string `json:"purchaser_name" validate:"required,max=200"`
	PurchaserEmail string `json:"purchaser_email" validate:"required,email"`
	RecipientName  string `json:"recipient_name" validate:"required,max=200"`
	RecipientEmail string `json:"recipient_email" validate:"required,email"`
	Message        string `json:"message" validate:"max=1000"`
	AmountCents    int64  `json:"amount_cents" validate:"gt=0"`
}

// PurchaseGiftCertificate создаёт подарочный сертификат и возвращает client secret для оплаты.
func (h *Handler) PurchaseGiftCertificate(w http.ResponseWriter, r *http.Request) {
	var req giftRequest
	if !h.decode(w, r, &req) {
		return
	}

	gp, err := h.service.PurchaseGiftCertificate(r.Context(), botToken(r, req.BotToken), service.GiftInput{
		PurchaserName:  req.PurchaserName,
		PurchaserEmail: req.PurchaserEmail,
		RecipientName:  req.RecipientName,
		RecipientEmail: req.RecipientEmail,
		Message:        req.Message,
		AmountCents:    req.AmountCents,
	})
	if err != nil {
		h.fail(w, r, "purchase gift certificate", err)
		return
	}
	writeJSON(w, http.StatusCreated, giftPurchaseResponse{
		ID:           gp.Certificate.ID,
		Code:         gp.Certificate.Code,
		AmountCents:  gp.Certificate.AmountCents,
		Status:       string(gp.Certificate.Status),
		ClientSecret: gp.ClientSecret,
	})
}

// StripeWebhook принимает уведомления платёжного процессора. Тело передаётся без изменений
// для проверки подписи.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookSize))
	if err != nil {
		writeErr(w, http.StatusRequestEntityTooLarge, "body_too_large", "Webhook payload is too large.", "")
		return
	}

	if err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		h.fail(w, r, "stripe webhook", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// Healthz сообщает, что процесс запущен.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
