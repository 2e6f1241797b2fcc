package handler

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/service"
	"github.com/mmeshcher/cleaning-portal/internal/validation"
)

// GetAdminDashboard возвращает сводку для администратора.
func (h *Handler) GetAdminDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.AdminDashboard(r.Context())
	if err != nil {
		h.fail(w, r, "admin dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminDashboard(d))
}

// ListCustomers возвращает профили клиентов, при необходимости с фильтром по статусу.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	var status *model.AccountStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := model.AccountStatus(s)
		if !st.Valid() {
			writeErr(w, http.StatusUnprocessableEntity, "validation_failed", "unknown account status", "status")
			return
		}
		status = &st
	}

	list, err := h.service.ListCustomers(r.Context(), status)
	if err != nil {
		h.fail(w, r, "list customers", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfiles(list))
}

type customerResponse struct {
	Profile   profileResponse   `json:"profile"`
	Addresses []addressResponse `json:"addresses"`
}

// GetCustomer возвращает профиль клиента с адресами.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, addrs, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get customer", err)
		return
	}
	writeJSON(w, http.StatusOK, customerResponse{Profile: toProfile(p), Addresses: toAddresses(addrs)})
}

type inviteRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email" validate:"required,email"`
	profileRequest
}

// InviteCustomer создаёт активный профиль клиента по приглашению.
func (h *Handler) InviteCustomer(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.service.InviteCustomer(r.Context(), service.InviteInput{
		UserID:       req.UserID,
		Email:        req.Email,
		ProfileInput: req.input(),
	})
	if err != nil {
		h.fail(w, r, "invite customer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfile(p))
}

type accountStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending active suspended deleted"`
}

// SetAccountStatus меняет статус учётной записи клиента.
func (h *Handler) SetAccountStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req accountStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.service.SetAccountStatus(r.Context(), id, model.AccountStatus(req.Status))
	if err != nil {
		h.fail(w, r, "set account status", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(p))
}

// AdminListAppointments возвращает визиты с фильтрами customer_id, from, to, status.
func (h *Handler) AdminListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f service.AdminAppointmentFilter

	if s := q.Get("customer_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid_id", "customer_id is not a valid id", "customer_id")
			return
		}
		f.ProfileID = &id
	}
	var err error
	if f.From, err = validation.ParseDate(q.Get("from")); err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "validation_failed", "from must be a date in YYYY-MM-DD format", "from")
		return
	}
	if f.To, err = validation.ParseDate(q.Get("to")); err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "validation_failed", "to must be a date in YYYY-MM-DD format", "to")
		return
	}
	if s := q.Get("status"); s != "" {
		st := model.AppointmentStatus(s)
		if !st.Valid() {
			writeErr(w, http.StatusUnprocessableEntity, "validation_failed", "unknown appointment status", "status")
			return
		}
		f.Status = &st
	}

	list, err := h.service.AdminListAppointments(r.Context(), f)
	if err != nil {
		h.fail(w, r, "admin list appointments", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentViews(list))
}

type newAppointmentRequest struct {
	CustomerID  uuid.UUID `json:"customer_id" validate:"required"`
	AddressID   uuid.UUID `json:"address_id" validate:"required"`
	ServiceType string    `json:"service_type" validate:"required"`
	Date        string    `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Window      string    `json:"window"`
	Notes       string    `json:"notes" validate:"max=2000"`
}

// CreateAppointment назначает визит клиенту.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req newAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := validation.ParseDate(req.Date)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "validation_failed", "date must be a date in YYYY-MM-DD format", "date")
		return
	}

	a, err := h.service.CreateAppointment(r.Context(), service.NewAppointmentInput{
		ProfileID:   req.CustomerID,
		AddressID:   req.AddressID,
		ServiceType: model.ServiceType(req.ServiceType),
		Date:        date,
		Window:      model.TimeWindow(req.Window),
		Notes:       req.Notes,
	})
	if err != nil {
		h.fail(w, r, "create appointment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointment(a))
}

type appointmentStatusRequest struct {
	Status     string `json:"status" validate:"required"`
	RowVersion int64  `json:"row_version"`
}

// UpdateAppointmentStatus переводит визит в новый статус по таблице переходов.
func (h *Handler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req appointmentStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, err := h.service.UpdateAppointmentStatus(r.Context(), id, model.AppointmentStatus(req.Status), req.RowVersion)
	if err != nil {
		h.fail(w, r, "update appointment status", err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointment(a))
}

// AdminListServiceRequests возвращает заявки, при необходимости с фильтром по статусу.
func (h *Handler) AdminListServiceRequests(w http.ResponseWriter, r *http.Request) {
	var status *model.ServiceRequestStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := model.ServiceRequestStatus(s)
		if !st.Valid() {
			writeErr(w, http.StatusUnprocessableEntity, "validation_failed", "unknown request status", "status")
			return
		}
		status = &st
	}

	list, err := h.service.AdminListServiceRequests(r.Context(), status)
	if err != nil {
		h.fail(w, r, "admin list service requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceRequests(list))
}

type approveRequest struct {
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Window    string `json:"window"`
	AdminNote string `json:"admin_note" validate:"max=1000"`
}

// ApproveServiceRequest одобряет заявку и создаёт визиты.
func (h *Handler) ApproveServiceRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req approveRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := validation.ParseDate(req.Date)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "validation_failed", "date must be a date in YYYY-MM-DD format", "date")
		return
	}

	created, err := h.service.ApproveServiceRequest(r.Context(), id, service.ApproveInput{
		Date:      date,
		Window:    model.TimeWindow(req.Window),
		AdminNote: req.AdminNote,
	})
	if err != nil {
		h.fail(w, r, "approve service request", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointments(created))
}

type declineRequest struct {
	AdminNote string `json:"admin_note" validate:"max=1000"`
}

// DeclineServiceRequest отклоняет заявку.
func (h *Handler) DeclineServiceRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req declineRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.DeclineServiceRequest(r.Context(), id, req.AdminNote); err != nil {
		h.fail(w, r, "decline service request", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminListInvoices возвращает счета; status принимает список через запятую.
func (h *Handler) AdminListInvoices(w http.ResponseWriter, r *http.Request) {
	var statuses []model.InvoiceStatus
	if s := r.URL.Query().Get("status"); s != "" {
		for _, v := range strings.Split(s, ",") {
			st := model.InvoiceStatus(strings.TrimSpace(v))
			if !st.Valid() {
				writeErr(w, http.StatusUnprocessableEntity, "validation_failed", "unknown invoice status", "status")
				return
			}
			statuses = append(statuses, st)
		}
	}

	list, err := h.service.AdminListInvoices(r.Context(), statuses)
	if err != nil {
		h.fail(w, r, "admin list invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoices(list))
}

type lineItemRequest struct {
	Description string  `json:"description" validate:"required,max=200"`
	Quantity    float64 `json:"quantity" validate:"gte=0"`
	RateCents   int64   `json:"rate_cents"`
}

func lineItems(reqs []lineItemRequest) []service.LineItemInput {
	items := make([]service.LineItemInput, 0, len(reqs))
	for _, li := range reqs {
		items = append(items, service.LineItemInput{
			Description: li.Description,
			Quantity:    li.Quantity,
			RateCents:   li.RateCents,
		})
	}
	return items
}

type newInvoiceRequest struct {
	CustomerID         uuid.UUID         `json:"customer_id" validate:"required"`
	AppointmentID      *uuid.UUID        `json:"appointment_id"`
	Items              []lineItemRequest `json:"items" validate:"dive"`
	TaxRate            float64           `json:"tax_rate" validate:"gte=0,lte=100"`
	DueDate            string            `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes              string            `json:"notes" validate:"max=2000"`
	ProcessorInvoiceID string            `json:"processor_invoice_id"`
}

// CreateInvoice создаёт черновик счёта.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req newInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	due, err := validation.ParseDate(req.DueDate)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "validation_failed", "due_date must be a date in YYYY-MM-DD format", "due_date")
		return
	}

	inv, err := h.service.CreateInvoice(r.Context(), service.NewInvoiceInput{
		ProfileID:          req.CustomerID,
		AppointmentID:      req.AppointmentID,
		Items:              lineItems(req.Items),
		TaxRate:            req.TaxRate,
		DueDate:            due,
		Notes:              req.Notes,
		ProcessorInvoiceID: req.ProcessorInvoiceID,
	})
	if err != nil {
		h.fail(w, r, "create invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoice(inv))
}

type fromAppointmentRequest struct {
	Items       []lineItemRequest `json:"items" validate:"dive"`
	AmountCents int64             `json:"amount_cents" validate:"gte=0"`
	TaxRate     float64           `json:"tax_rate" validate:"gte=0,lte=100"`
	DueDate     string            `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes       string            `json:"notes" validate:"max=2000"`
}

// CreateInvoiceFromAppointment создаёт счёт по выполненному визиту.
func (h *Handler) CreateInvoiceFromAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req fromAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	due, err := validation.ParseDate(req.DueDate)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, "validation_failed", "due_date must be a date in YYYY-MM-DD format", "due_date")
		return
	}

	inv, err := h.service.CreateInvoiceFromAppointment(r.Context(), service.FromAppointmentInput{
		AppointmentID: id,
		Items:         lineItems(req.Items),
		AmountCents:   req.AmountCents,
		TaxRate:       req.TaxRate,
		DueDate:       due,
		Notes:         req.Notes,
	})
	if err != nil {
		h.fail(w, r, "create invoice from appointment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoice(inv))
}

// invoiceAction обрабатывает переходы счёта, которым нужна только версия строки.
func (h *Handler) invoiceAction(op string, do func(r *http.Request, id uuid.UUID, version int64) (*model.Invoice, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req versionRequest
		if !h.decode(w, r, &req) {
			return
		}

		inv, err := do(r, id, req.RowVersion)
		if err != nil {
			h.fail(w, r, op, err)
			return
		}
		writeJSON(w, http.StatusOK, toInvoice(inv))
	}
}

// SendInvoice отправляет счёт клиенту.
func (h *Handler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction("send invoice", func(r *http.Request, id uuid.UUID, v int64) (*model.Invoice, error) {
		return h.service.SendInvoice(r.Context(), id, v)
	})(w, r)
}

// VerifyManualPayment подтверждает полученный перевод.
func (h *Handler) VerifyManualPayment(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction("verify manual payment", func(r *http.Request, id uuid.UUID, v int64) (*model.Invoice, error) {
		return h.service.VerifyManualPayment(r.Context(), id, v)
	})(w, r)
}

// CancelInvoice отменяет счёт.
func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction("cancel invoice", func(r *http.Request, id uuid.UUID, v int64) (*model.Invoice, error) {
		return h.service.CancelInvoice(r.Context(), id, v)
	})(w, r)
}

type rejectPaymentRequest struct {
	RowVersion int64  `json:"row_version"`
	Reason     string `json:"reason" validate:"max=1000"`
}

// RejectManualPayment отклоняет заявленный клиентом перевод.
func (h *Handler) RejectManualPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rejectPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	inv, err := h.service.RejectManualPayment(r.Context(), id, req.RowVersion, req.Reason)
	if err != nil {
		h.fail(w, r, "reject manual payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoice(inv))
}

type offlinePaymentRequest struct {
	RowVersion int64  `json:"row_version"`
	Method     string `json:"method" validate:"required,oneof=cash check"`
	Note       string `json:"note" validate:"max=1000"`
}

// RecordOfflinePayment отмечает счёт оплаченным наличными или чеком.
func (h *Handler) RecordOfflinePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req offlinePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	inv, err := h.service.RecordOfflinePayment(r.Context(), id, req.RowVersion, model.PaymentMethodKind(req.Method), req.Note)
	if err != nil {
		h.fail(w, r, "record offline payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoice(inv))
}
