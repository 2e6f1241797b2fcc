package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

// RecurringHorizon ограничивает, насколько вперёд создаются визиты периодической заявки.
const RecurringHorizon = 12 * 7 * 24 * time.Hour

// ServiceRequestInput описывает заявку клиента на обслуживание.
type ServiceRequestInput struct {
	AddressID     uuid.UUID
	ServiceType   model.ServiceType
	Frequency     model.Frequency
	PreferredDate *time.Time
	Window        model.TimeWindow
	Notes         string
}

// ApproveInput позволяет администратору уточнить дату и окно при одобрении заявки.
type ApproveInput struct {
	Date      *time.Time
	Window    model.TimeWindow
	AdminNote string
}

// RequestService сохраняет заявку клиента. Адрес должен принадлежать клиенту.
func (s *Service) RequestService(ctx context.Context, actor *model.Profile, in ServiceRequestInput) (*model.ServiceRequest, error) {
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

	addr, err := s.repo.GetAddress(ctx, in.AddressID)
	if err != nil {
		return nil, err
	}
	if addr.ProfileID != actor.ID {
		return nil, invalid("address_id", "address not found")
	}

	sr := &model.ServiceRequest{
		ProfileID:       actor.ID,
		AddressID:       in.AddressID,
		ServiceType:     in.ServiceType,
		Frequency:       in.Frequency,
		PreferredDate:   day,
		PreferredWindow: in.Window,
		Notes:           strings.TrimSpace(in.Notes),
		Status:          model.ServiceRequestPending,
	}
	if err := s.repo.CreateServiceRequest(ctx, sr); err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("%s requested %s (%s) on %s, %s", actor.FullName(), in.ServiceType.Label(),
		strings.ReplaceAll(string(in.Frequency), "_", " "), formatDate(day), in.Window.Label())
	s.notifyAdmins(ctx, model.NotificationServiceRequestSubmitted, "New service request", summary,
		"/admin/requests/"+sr.ID.String())
	s.emailBusiness(ctx, "New service request", summary+"\nAddress: "+addr.OneLine())
	return sr, nil
}

// ListServiceRequests возвращает заявки клиента.
func (s *Service) ListServiceRequests(ctx context.Context, actor *model.Profile) ([]model.ServiceRequest, error) {
	return s.repo.ListServiceRequestsByProfile(ctx, actor.ID)
}

// AdminListServiceRequests возвращает заявки всех клиентов, при необходимости по статусу.
func (s *Service) AdminListServiceRequests(ctx context.Context, status *model.ServiceRequestStatus) ([]model.ServiceRequest, error) {
	if status != nil && !status.Valid() {
		return nil, invalid("status", "unknown request status")
	}
	return s.repo.ListServiceRequests(ctx, status)
}

// recurringDates возвращает даты визитов серии начиная с first в пределах горизонта.
func recurringDates(first time.Time, f model.Frequency) []time.Time {
	dates := []time.Time{first}
	limit := first.Add(RecurringHorizon)
	for k := 1; ; k++ {
		next, ok := f.Occurrence(first, k)
		if !ok || next.After(limit) {
			return dates
		}
		dates = append(dates, next)
	}
}

// ApproveServiceRequest одобряет заявку и создаёт визит, а для периодической заявки серию визитов.
func (s *Service) ApproveServiceRequest(ctx context.Context, id uuid.UUID, in ApproveInput) ([]model.Appointment, error) {
	sr, err := s.repo.GetServiceRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sr.Status.CanTransitionTo(model.ServiceRequestApproved) {
		return nil, ErrInvalidTransition
	}

	date := in.Date
	if date == nil {
		date = &sr.PreferredDate
	}
	window := in.Window
	if window == "" {
		window = sr.PreferredWindow
	}
	day, start, end, err := s.validateSlot(date, window)
	if err != nil {
		return nil, err
	}

	var appts []model.Appointment
	requestID := sr.ID
	for _, d := range recurringDates(day, sr.Frequency) {
		appts = append(appts, model.Appointment{
			ProfileID:          sr.ProfileID,
			AddressID:          sr.AddressID,
			ServiceRequestID:   &requestID,
			ServiceType:        sr.ServiceType,
			Status:             model.AppointmentStatusConfirmed,
			ScheduledDate:      d,
			ScheduledTimeStart: start,
			ScheduledTimeEnd:   end,
			Notes:              sr.Notes,
		})
	}

	if err := s.repo.ApproveServiceRequest(ctx, id, in.AdminNote, appts); err != nil {
		return nil, err
	}
	s.logger.Info("service request approved", zap.String("requestID", id.String()), zap.Int("appointments", len(appts)))

	first := appts[0]
	msg := "Your request for " + describeAppointment(&first) + " was approved"
	if len(appts) > 1 {
		msg += fmt.Sprintf(". %d visits are scheduled", len(appts))
	}
	s.notifyCustomer(ctx, sr.ProfileID, model.NotificationServiceRequestApproved, "Service request approved",
		msg, "/portal/appointments", true)
	return appts, nil
}

// DeclineServiceRequest отклоняет заявку клиента.
func (s *Service) DeclineServiceRequest(ctx context.Context, id uuid.UUID, adminNote string) error {
	sr, err := s.repo.GetServiceRequest(ctx, id)
	if err != nil {
		return err
	}
	if !sr.Status.CanTransitionTo(model.ServiceRequestDeclined) {
		return ErrInvalidTransition
	}
	if err := s.repo.DeclineServiceRequest(ctx, id, adminNote); err != nil {
		return err
	}

	msg := "Your request for " + sr.ServiceType.Label() + " was declined"
	if note := strings.TrimSpace(adminNote); note != "" {
		msg += ": " + note
	}
	s.notifyCustomer(ctx, sr.ProfileID, model.NotificationServiceRequestDeclined, "Service request declined",
		msg, "/portal/request-service", true)
	return nil
}
