package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mmeshcher/cleaning-portal/internal/middleware"
	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/service"
	"github.com/mmeshcher/cleaning-portal/internal/validation"
)

type profileRequest struct {
	FirstName               string `json:"first_name" validate:"required,max=100"`
	LastName                string `json:"last_name" validate:"max=100"`
	Phone                   string `json:"phone" validate:"max=32"`
	CommunicationPreference string `json:"communication_preference" validate:"omitempty,oneof=email sms both"`
}

func (r profileRequest) input() service.ProfileInput {
	return service.ProfileInput{
		FirstName:               r.FirstName,
		LastName:                r.LastName,
		Phone:                   r.Phone,
		CommunicationPreference: model.CommunicationPreference(r.CommunicationPreference),
	}
}

// Register создаёт профиль клиента для пользователя, вошедшего через провайдера аутентификации.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized", "Please sign in to continue.", "")
		return
	}

	var req profileRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.service.Register(r.Context(), id, req.input())
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfile(p))
}

// GetMe возвращает профиль текущего пользователя.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toProfile(actor(r)))
}

// UpdateSettings обновляет контактные данные и способ связи.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.service.UpdateSettings(r.Context(), actor(r), req.input())
	if err != nil {
		h.fail(w, r, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(p))
}

// GetDashboard возвращает сводку для клиента.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.CustomerDashboard(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, "customer dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDashboard(d))
}

type addressRequest struct {
	Label        string `json:"label" validate:"max=50"`
	Street       string `json:"street" validate:"max=200"`
	Unit         string `json:"unit" validate:"max=50"`
	City         string `json:"city" validate:"max=100"`
	State        string `json:"state" validate:"max=2"`
	ZIP          string `json:"zip" validate:"max=10"`
	Instructions string `json:"instructions" validate:"max=1000"`
	IsPrimary    bool   `json:"is_primary"`
}

func (r addressRequest) input() service.AddressInput {
	return service.AddressInput{
		Label:        r.Label,
		Street:       r.Street,
		Unit:         r.Unit,
		City:         r.City,
		State:        r.State,
		ZIP:          r.ZIP,
		Instructions: r.Instructions,
		IsPrimary:    r.IsPrimary,
	}
}

// ListAddresses возвращает адреса текущего клиента.
func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListAddresses(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, "list addresses", err)
		return
	}
	writeJSON(w, http.StatusOK, toAddresses(list))
}

// AddAddress добавляет адрес обслуживания.
func (h *Handler) AddAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, err := h.service.AddAddress(r.Context(), actor(r), req.input())
	if err != nil {
		h.fail(w, r, "add address", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAddress(a))
}

// UpdateAddress изменяет адрес обслуживания.
func (h *Handler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req addressRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, err := h.service.UpdateAddress(r.Context(), actor(r), id, req.input())
	if err != nil {
		h.fail(w, r, "update address", err)
		return
	}
	writeJSON(w, http.StatusOK, toAddress(a))
}

// SetPrimaryAddress делает адрес основным.
func (h *Handler) SetPrimaryAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.SetPrimaryAddress(r.Context(), actor(r), id); err != nil {
		h.fail(w, r, "set primary address", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAddress удаляет адрес обслуживания.
func (h *Handler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteAddress(r.Context(), actor(r), id); err != nil {
		h.fail(w, r, "delete address", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type appointmentListResponse struct {
	Upcoming []appointmentResponse `json:"upcoming"`
	Past     []appointmentResponse `json:"past"`
}

// ListAppointments возвращает предстоящие и прошедшие визиты клиента.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListAppointments(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, "list appointments", err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentListResponse{
		Upcoming: toAppointmentViews(list.Upcoming),
		Past:     toAppointmentViews(list.Past),
	})
}

// GetAppointment возвращает визит.
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	v, err := h.service.GetAppointment(r.Context(), actor(r), id)
	if err != nil {
		h.fail(w, r, "get appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentView(v))
}

type rescheduleRequest struct {
	Date       string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Window     string `json:"window" validate:"omitempty,oneof=morning afternoon evening"`
	RowVersion int64  `json:"row_version"`
}

// Reschedule переносит визит на другую дату и окно времени.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := validation.ParseDate(req.Date)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "validation_failed", "date must be a date in YYYY-MM-DD format", "date")
		return
	}

	v, err := h.service.Reschedule(r.Context(), actor(r), id, service.RescheduleInput{
		Date:    date,
		Window:  model.TimeWindow(req.Window),
		Version: req.RowVersion,
	})
	if err != nil {
		h.fail(w, r, "reschedule appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentView(v))
}

type cancelRequest struct {
	Reason     string `json:"reason"`
	Details    string `json:"details" validate:"max=1000"`
	RowVersion int64  `json:"row_version"`
}

// Cancel отменяет визит.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if !h.decode(w, r, &req) {
		return
	}

	v, err := h.service.Cancel(r.Context(), actor(r), id, service.CancelInput{
		Reason:  model.CancellationReason(req.Reason),
		Details: req.Details,
		Version: req.RowVersion,
	})
	if err != nil {
		h.fail(w, r, "cancel appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentView(v))
}

type serviceRequestRequest struct {
	AddressID     uuid.UUID `json:"address_id" validate:"required"`
	ServiceType   string    `json:"service_type" validate:"required"`
	Frequency     string    `json:"frequency"`
	PreferredDate string    `json:"preferred_date" validate:"omitempty,datetime=2006-01-02"`
	Window        string    `json:"window"`
	Notes         string    `json:"notes" validate:"max=2000"`
}

// RequestService создаёт заявку на уборку.
func (h *Handler) RequestService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequestRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := validation.ParseDate(req.PreferredDate)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "validation_failed", "preferred_date must be a date in YYYY-MM-DD format", "preferred_date")
		return
	}

	sr, err := h.service.RequestService(r.Context(), actor(r), service.ServiceRequestInput{
		AddressID:     req.AddressID,
		ServiceType:   model.ServiceType(req.ServiceType),
		Frequency:     model.Frequency(req.Frequency),
		PreferredDate: date,
		Window:        model.TimeWindow(req.Window),
		Notes:         req.Notes,
	})
	if err != nil {
		h.fail(w, r, "request service", err)
		return
	}
	writeJSON(w, http.StatusCreated, toServiceRequest(sr))
}

// ListServiceRequests возвращает заявки клиента.
func (h *Handler) ListServiceRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListServiceRequests(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, "list service requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceRequests(list))
}

// ListInvoices возвращает счета клиента.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListInvoices(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, "list invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoices(list))
}

// GetInvoice возвращает счёт с расшифровкой сумм.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.service.InvoiceDetail(r.Context(), actor(r), id)
	if err != nil {
		h.fail(w, r, "invoice detail", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDetail(d))
}

type payRequest struct {
	AmountCents     int64      `json:"amount_cents" validate:"gt=0"`
	PaymentMethodID string     `json:"payment_method_id" validate:"required_without=SavedMethodID"`
	SavedMethodID   *uuid.UUID `json:"saved_method_id"`
	SaveCard        bool       `json:"save_card"`
}

// PayInvoice оплачивает счёт картой.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req payRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.PayByCard(r.Context(), actor(r), id, service.CardPaymentInput{
		AmountCents:     req.AmountCents,
		PaymentMethodID: req.PaymentMethodID,
		SavedMethodID:   req.SavedMethodID,
		SaveCard:        req.SaveCard,
	})
	if err != nil {
		h.fail(w, r, "pay invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentOutcome(out))
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
	SaveCard        bool   `json:"save_card"`
}

// ConfirmPayment завершает оплату после дополнительной проверки карты.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req confirmPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.ConfirmCardPayment(r.Context(), actor(r), id, req.PaymentIntentID, req.SaveCard)
	if err != nil {
		h.fail(w, r, "confirm payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentOutcome(out))
}

// GetManualInstructions возвращает реквизиты для оплаты переводом.
func (h *Handler) GetManualInstructions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	mi, err := h.service.ManualPaymentInstructions(r.Context(), actor(r), id)
	if err != nil {
		h.fail(w, r, "manual instructions", err)
		return
	}
	writeJSON(w, http.StatusOK, manualInstructionsResponse{
		Recipient:     mi.Recipient,
		AmountCents:   mi.AmountCents,
		AmountDisplay: mi.AmountDisplay,
		Reference:     mi.Reference,
	})
}

type versionRequest struct {
	RowVersion int64 `json:"row_version"`
}

// ClaimManualPayment отмечает, что клиент отправил перевод.
func (h *Handler) ClaimManualPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req versionRequest
	if !h.decode(w, r, &req) {
		return
	}

	inv, err := h.service.ClaimManualPayment(r.Context(), actor(r), id, req.RowVersion)
	if err != nil {
		h.fail(w, r, "claim manual payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoice(inv))
}

// ListPaymentMethods возвращает сохранённые карты клиента.
func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPaymentMethods(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, "list payment methods", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentMethods(list))
}

// SetDefaultPaymentMethod делает карту основной.
func (h *Handler) SetDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.SetDefaultPaymentMethod(r.Context(), actor(r), id); err != nil {
		h.fail(w, r, "set default payment method", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePaymentMethod удаляет сохранённую карту.
func (h *Handler) DeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePaymentMethod(r.Context(), actor(r), id); err != nil {
		h.fail(w, r, "delete payment method", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
