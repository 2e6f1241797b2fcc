package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

// CancellationCutoff минимальный запас времени до начала визита для отмены через портал.
const CancellationCutoff = 48 * time.Hour

// AppointmentView дополняет визит признаками доступных клиенту действий.
type AppointmentView struct {
	model.Appointment
	CanCancel     bool
	CanReschedule bool
}

// AppointmentList делит визиты клиента на предстоящие и прошедшие или отменённые.
type AppointmentList struct {
	Upcoming []AppointmentView
	Past     []AppointmentView
}

// RescheduleInput описывает перенос визита.
type RescheduleInput struct {
	Date    *time.Time
	Window  model.TimeWindow
	Version int64
}

// CancelInput описывает отмену визита клиентом.
type CancelInput struct {
	Reason  model.CancellationReason
	Details string
	Version int64
}

// NewAppointmentInput описывает визит, создаваемый администратором.
type NewAppointmentInput struct {
	ProfileID   uuid.UUID
	AddressID   uuid.UUID
	ServiceType model.ServiceType
	Date        *time.Time
	Window      model.TimeWindow
	Notes       string
}

func (s *Service) canCancel(a *model.Appointment, now time.Time) bool {
	if a.Status.Terminal() {
		return false
	}
	start, err := a.StartsAt(s.loc)
	if err != nil {
		return false
	}
	return start.Sub(now) >= CancellationCutoff
}

func (s *Service) canReschedule(a *model.Appointment, now time.Time) bool {
	if !a.Status.Reschedulable() {
		return false
	}
	start, err := a.StartsAt(s.loc)
	if err != nil {
		return false
	}
	return start.After(now)
}

func (s *Service) view(a model.Appointment, now time.Time) AppointmentView {
	return AppointmentView{
		Appointment:   a,
		CanCancel:     s.canCancel(&a, now),
		CanReschedule: s.canReschedule(&a, now),
	}
}

func sortAppointments(list []AppointmentView) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.ScheduledDate.Equal(b.ScheduledDate) {
			return a.ScheduledDate.Before(b.ScheduledDate)
		}
		return a.ScheduledTimeStart < b.ScheduledTimeStart
	})
}

// ListAppointments возвращает визиты клиента, разделённые на предстоящие и прошедшие.
// Предстоящими считаются неотменённые визиты с датой не раньше сегодняшней в зоне бизнеса.
func (s *Service) ListAppointments(ctx context.Context, actor *model.Profile) (*AppointmentList, error) {
	appts, err := s.repo.ListAppointmentsByProfile(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := s.today()
	res := &AppointmentList{Upcoming: []AppointmentView{}, Past: []AppointmentView{}}
	for _, a := range appts {
		v := s.view(a, now)
		if a.Status != model.AppointmentStatusCancelled && !civilDate(a.ScheduledDate).Before(today) {
			res.Upcoming = append(res.Upcoming, v)
		} else {
			res.Past = append(res.Past, v)
		}
	}
	sortAppointments(res.Upcoming)
	sortAppointments(res.Past)
	return res, nil
}

// GetAppointment возвращает визит, если он доступен пользователю.
func (s *Service) GetAppointment(ctx context.Context, actor *model.Profile, id uuid.UUID) (*AppointmentView, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(actor, a.ProfileID); err != nil {
		return nil, err
	}
	v := s.view(*a, s.now())
	return &v, nil
}

// validateSlot проверяет дату и окно визита и возвращает время начала и конца.
func (s *Service) validateSlot(date *time.Time, window model.TimeWindow) (time.Time, string, string, error) {
	if date == nil || date.IsZero() {
		return time.Time{}, "", "", ErrDateRequired
	}
	if window == "" {
		return time.Time{}, "", "", ErrTimeWindowRequired
	}
	if !window.Valid() {
		return time.Time{}, "", "", invalid("time_window", "unknown time window")
	}
	day := civilDate(*date)
	if day.Before(s.today()) {
		return time.Time{}, "", "", ErrDateInPast
	}
	start, end := window.Bounds()
	return day, start, end, nil
}

// Reschedule переносит визит клиента на новую дату и окно времени и подтверждает его.
func (s *Service) Reschedule(ctx context.Context, actor *model.Profile, id uuid.UUID, in RescheduleInput) (*AppointmentView, error) {
	day, start, end, err := s.validateSlot(in.Date, in.Window)
	if err != nil {
		return nil, err
	}

	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(actor, a.ProfileID); err != nil {
		return nil, err
	}
	if err := checkVersion(a.RowVersion, in.Version); err != nil {
		return nil, err
	}
	if !a.Status.Reschedulable() {
		return nil, ErrInvalidTransition
	}

	oldDesc := describeAppointment(a)
	a.ScheduledDate = day
	a.ScheduledTimeStart = start
	a.ScheduledTimeEnd = end
	a.Status = model.AppointmentStatusConfirmed

	if err := s.repo.UpdateAppointment(ctx, a, in.Version); err != nil {
		return nil, err
	}

	newDesc := describeAppointment(a)
	s.logger.Info("appointment rescheduled", zap.String("appointmentID", a.ID.String()),
		zap.String("profileID", a.ProfileID.String()))

	who := customerName(actor, a)
	s.emailBusiness(ctx, "Appointment rescheduled",
		fmt.Sprintf("%s rescheduled an appointment.\nFrom: %s\nTo: %s", who, oldDesc, newDesc))
	s.notifyAdmins(ctx, model.NotificationAppointmentRescheduled, "Appointment rescheduled",
		fmt.Sprintf("%s moved %s", who, newDesc), "/admin/appointments/"+a.ID.String())
	if actor.IsAdmin() {
		s.notifyCustomer(ctx, a.ProfileID, model.NotificationAppointmentRescheduled, "Appointment rescheduled",
			"Your appointment was moved to "+newDesc, "/portal/appointments", true)
	}

	v := s.view(*a, s.now())
	return &v, nil
}

// Cancel отменяет визит клиента. Визиты, до начала которых меньше 48 часов, клиент отменить не может.
func (s *Service) Cancel(ctx context.Context, actor *model.Profile, id uuid.UUID, in CancelInput) (*AppointmentView, error) {
	if in.Reason == "" {
		return nil, ErrReasonRequired
	}
	if !in.Reason.Valid() {
		return nil, invalid("reason", "unknown cancellation reason")
	}
	details := strings.TrimSpace(in.Details)
	if in.Reason == model.CancellationOther && details == "" {
		return nil, ErrDetailsRequired
	}

	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(actor, a.ProfileID); err != nil {
		return nil, err
	}
	if err := checkVersion(a.RowVersion, in.Version); err != nil {
		return nil, err
	}
	if !a.Status.CanTransitionTo(model.AppointmentStatusCancelled) {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	if !actor.IsAdmin() && !s.canCancel(a, now) {
		return nil, ErrCancellationWindow
	}

	reason := in.Reason
	cancelledAt := now.UTC()
	a.Status = model.AppointmentStatusCancelled
	a.CancellationReason = &reason
	a.CancellationNote = details
	a.CancelledAt = &cancelledAt

	if err := s.repo.UpdateAppointment(ctx, a, in.Version); err != nil {
		return nil, err
	}

	s.logger.Info("appointment cancelled", zap.String("appointmentID", a.ID.String()),
		zap.String("reason", string(reason)))

	desc := describeAppointment(a)
	who := customerName(actor, a)
	body := fmt.Sprintf("%s cancelled %s.\nReason: %s", who, desc, reason.Label())
	if details != "" {
		body += "\nDetails: " + details
	}
	s.emailBusiness(ctx, "Appointment cancelled", body)
	s.notifyAdmins(ctx, model.NotificationAppointmentCancelled, "Appointment cancelled",
		fmt.Sprintf("%s cancelled %s", who, desc), "/admin/appointments/"+a.ID.String())
	if actor.IsAdmin() {
		s.notifyCustomer(ctx, a.ProfileID, model.NotificationAppointmentCancelled, "Appointment cancelled",
			"Your appointment "+desc+" was cancelled", "/portal/appointments", true)
	}

	v := s.view(*a, now)
	return &v, nil
}

func customerName(actor *model.Profile, a *model.Appointment) string {
	if a.CustomerName != "" {
		return a.CustomerName
	}
	if actor != nil && !actor.IsAdmin() {
		return actor.FullName()
	}
	return "A customer"
}

// AdminAppointmentFilter описывает выборку визитов для администратора.
type AdminAppointmentFilter struct {
	ProfileID *uuid.UUID
	From, To  *time.Time
	Status    *model.AppointmentStatus
}

// AdminListAppointments возвращает визиты всех клиентов по фильтру.
func (s *Service) AdminListAppointments(ctx context.Context, f AdminAppointmentFilter) ([]AppointmentView, error) {
	rf := repository.AppointmentFilter{ProfileID: f.ProfileID, From: f.From, To: f.To}
	if f.Status != nil {
		if !f.Status.Valid() {
			return nil, invalid("status", "unknown appointment status")
		}
		rf.Statuses = []model.AppointmentStatus{*f.Status}
	}
	appts, err := s.repo.ListAppointments(ctx, rf)
	if err != nil {
		return nil, err
	}
	now := s.now()
	res := make([]AppointmentView, 0, len(appts))
	for _, a := range appts {
		res = append(res, s.view(a, now))
	}
	return res, nil
}

// CreateAppointment создаёт подтверждённый визит от имени администратора.
func (s *Service) CreateAppointment(ctx context.Context, in NewAppointmentInput) (*model.Appointment, error) {
	if !in.ServiceType.Valid() {
		return nil, invalid("service_type", "unknown service type")
	}
	day, start, end, err := s.validateSlot(in.Date, in.Window)
	if err != nil {
		return nil, err
	}
	addr, err := s.repo.GetAddress(ctx, in.AddressID)
	if err != nil {
		return nil, err
	}
	if addr.ProfileID != in.ProfileID {
		return nil, invalid("address_id", "address does not belong to the customer")
	}

	a := &model.Appointment{
		ProfileID:          in.ProfileID,
		AddressID:          in.AddressID,
		ServiceType:        in.ServiceType,
		Status:             model.AppointmentStatusConfirmed,
		ScheduledDate:      day,
		ScheduledTimeStart: start,
		ScheduledTimeEnd:   end,
		Notes:              in.Notes,
	}
	if err := s.repo.CreateAppointment(ctx, a); err != nil {
		return nil, err
	}
	a.Address = addr

	s.notifyCustomer(ctx, a.ProfileID, model.NotificationAppointmentScheduled, "Appointment scheduled",
		"Your "+describeAppointment(a)+" is confirmed", "/portal/appointments", true)
	return a, nil
}

// UpdateAppointmentStatus меняет статус визита по таблице допустимых переходов.
// Отмена выполняется только через Cancel, где обязательна причина.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, next model.AppointmentStatus, version int64) (*model.Appointment, error) {
	if !next.Valid() {
		return nil, invalid("status", "unknown appointment status")
	}
	if next == model.AppointmentStatusCancelled {
		return nil, ErrInvalidTransition
	}
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(a.RowVersion, version); err != nil {
		return nil, err
	}
	if !a.Status.CanTransitionTo(next) {
		return nil, ErrInvalidTransition
	}

	now := s.now().UTC()
	a.Status = next
	if next == model.AppointmentStatusCompleted {
		a.CompletedAt = &now
	}

	if err := s.repo.UpdateAppointment(ctx, a, version); err != nil {
		return nil, err
	}

	s.notifyCustomer(ctx, a.ProfileID, model.NotificationAppointmentStatus, "Appointment "+next.Label(),
		"Your "+describeAppointment(a)+" is now "+strings.ToLower(next.Label()), "/portal/appointments",
		next == model.AppointmentStatusEnRoute)
	return a, nil
}
