package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

func TestListAppointments_SplitsUpcomingAndPast(t *testing.T) {
	env := newTestEnv(t)
	tomorrow := env.addAppointment(1, model.TimeWindowMorning, model.AppointmentStatusConfirmed)
	todayLate := env.addAppointment(0, model.TimeWindowEvening, model.AppointmentStatusPending)
	todayEarly := env.addAppointment(0, model.TimeWindowMorning, model.AppointmentStatusConfirmed)
	yesterday := env.addAppointment(-1, model.TimeWindowMorning, model.AppointmentStatusCompleted)
	cancelled := env.addAppointment(5, model.TimeWindowAfternoon, model.AppointmentStatusCancelled)

	list, err := env.svc.ListAppointments(context.Background(), env.customer)
	require.NoError(t, err)

	ids := func(vs []AppointmentView) []uuid.UUID {
		var res []uuid.UUID
		for _, v := range vs {
			res = append(res, v.ID)
		}
		return res
	}
	assert.Equal(t, []uuid.UUID{todayEarly.ID, todayLate.ID, tomorrow.ID}, ids(list.Upcoming))
	assert.Equal(t, []uuid.UUID{yesterday.ID, cancelled.ID}, ids(list.Past))
}

func TestListAppointments_ActionFlags(t *testing.T) {
	env := newTestEnv(t)
	soon := env.addAppointment(1, model.TimeWindowMorning, model.AppointmentStatusConfirmed)
	later := env.addAppointment(3, model.TimeWindowMorning, model.AppointmentStatusConfirmed)
	enRoute := env.addAppointment(0, model.TimeWindowAfternoon, model.AppointmentStatusEnRoute)

	list, err := env.svc.ListAppointments(context.Background(), env.customer)
	require.NoError(t, err)

	flags := map[uuid.UUID]AppointmentView{}
	for _, v := range list.Upcoming {
		flags[v.ID] = v
	}
	assert.False(t, flags[soon.ID].CanCancel)
	assert.True(t, flags[soon.ID].CanReschedule)
	assert.True(t, flags[later.ID].CanCancel)
	assert.False(t, flags[enRoute.ID].CanCancel)
	assert.False(t, flags[enRoute.ID].CanReschedule)
}

func TestCanCancel_ExactCutoff(t *testing.T) {
	env := newTestEnv(t)
	// начало ровно через 48 часов: 12 марта 09:00
	a := model.Appointment{
		Status:             model.AppointmentStatusConfirmed,
		ScheduledDate:      day(2),
		ScheduledTimeStart: "09:00",
		ScheduledTimeEnd:   "12:00",
	}
	assert.True(t, env.svc.canCancel(&a, testNow))
	assert.False(t, env.svc.canCancel(&a, testNow.Add(time.Minute)))
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name    string
		offset  int
		in      func(a model.Appointment) CancelInput
		wantErr error
	}{
		{
			name:    "inside 48 hours",
			offset:  1,
			in:      func(a model.Appointment) CancelInput { return CancelInput{Reason: model.CancellationBudget, Version: a.RowVersion} },
			wantErr: ErrCancellationWindow,
		},
		{
			name:    "missing reason",
			offset:  5,
			in:      func(a model.Appointment) CancelInput { return CancelInput{Version: a.RowVersion} },
			wantErr: ErrReasonRequired,
		},
		{
			name:    "other without details",
			offset:  5,
			in:      func(a model.Appointment) CancelInput { return CancelInput{Reason: model.CancellationOther, Details: "  ", Version: a.RowVersion} },
			wantErr: ErrDetailsRequired,
		},
		{
			name:    "stale version",
			offset:  5,
			in:      func(a model.Appointment) CancelInput { return CancelInput{Reason: model.CancellationMoving, Version: a.RowVersion + 1} },
			wantErr: repository.ErrVersionConflict,
		},
		{
			name:    "missing version",
			offset:  5,
			in:      func(model.Appointment) CancelInput { return CancelInput{Reason: model.CancellationMoving} },
			wantErr: ErrVersionRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			a := env.addAppointment(tt.offset, model.TimeWindowMorning, model.AppointmentStatusConfirmed)

			_, err := env.svc.Cancel(context.Background(), env.customer, a.ID, tt.in(a))
			require.ErrorIs(t, err, tt.wantErr)

			stored := env.repo.appointments[a.ID]
			assert.Equal(t, model.AppointmentStatusConfirmed, stored.Status)
			assert.Nil(t, stored.CancelledAt)
			assert.Empty(t, env.notifier.business)
		})
	}
}

func TestCancel_Success(t *testing.T) {
	env := newTestEnv(t)
	a := env.addAppointment(5, model.TimeWindowMorning, model.AppointmentStatusConfirmed)

	v, err := env.svc.Cancel(context.Background(), env.customer, a.ID, CancelInput{
		Reason:  model.CancellationOther,
		Details: "Renovation",
		Version: a.RowVersion,
	})
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusCancelled, v.Status)
	stored := env.repo.appointments[a.ID]
	require.NotNil(t, stored.CancellationReason)
	assert.Equal(t, model.CancellationOther, *stored.CancellationReason)
	assert.Equal(t, "Renovation", stored.CancellationNote)
	require.NotNil(t, stored.CancelledAt)
	assert.Equal(t, a.RowVersion+1, stored.RowVersion)

	require.Len(t, env.notifier.business, 1)
	assert.Contains(t, env.notifier.business[0].Body, "Reason: Other")
	assert.Contains(t, env.notifier.business[0].Body, "Renovation")

	feed := env.repo.feed(model.FeedAdmin)
	require.Len(t, feed, 1)
	assert.Equal(t, model.NotificationAppointmentCancelled, feed[0].Type)
}

func TestCancel_OtherCustomerSeesNotFound(t *testing.T) {
	env := newTestEnv(t)
	a := env.addAppointment(5, model.TimeWindowMorning, model.AppointmentStatusConfirmed)
	stranger := &model.Profile{ID: uuid.New(), Role: model.RoleCustomer}

	_, err := env.svc.Cancel(context.Background(), stranger, a.ID, CancelInput{Reason: model.CancellationMoving, Version: 1})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCancel_AdminIgnoresWindow(t *testing.T) {
	env := newTestEnv(t)
	a := env.addAppointment(0, model.TimeWindowAfternoon, model.AppointmentStatusConfirmed)

	v, err := env.svc.Cancel(context.Background(), env.admin, a.ID, CancelInput{
		Reason:  model.CancellationScheduleConflict,
		Version: a.RowVersion,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, v.Status)

	customerFeed := env.repo.feed(model.FeedCustomer)
	require.Len(t, customerFeed, 1)
	assert.Equal(t, env.customer.ID, *customerFeed[0].ProfileID)
}

func TestReschedule_Validation(t *testing.T) {
	env := newTestEnv(t)
	a := env.addAppointment(5, model.TimeWindowMorning, model.AppointmentStatusPending)
	future := day(10)
	past := day(-1)

	_, err := env.svc.Reschedule(context.Background(), env.customer, a.ID, RescheduleInput{Window: model.TimeWindowEvening, Version: 1})
	assert.ErrorIs(t, err, ErrDateRequired)

	_, err = env.svc.Reschedule(context.Background(), env.customer, a.ID, RescheduleInput{Date: &future, Version: 1})
	assert.ErrorIs(t, err, ErrTimeWindowRequired)

	_, err = env.svc.Reschedule(context.Background(), env.customer, a.ID, RescheduleInput{Date: &past, Window: model.TimeWindowEvening, Version: 1})
	assert.ErrorIs(t, err, ErrDateInPast)

	_, err = env.svc.Reschedule(context.Background(), env.customer, a.ID, RescheduleInput{Date: &future, Window: "night", Version: 1})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	assert.Equal(t, day(5), env.repo.appointments[a.ID].ScheduledDate)
}

func TestReschedule_Success(t *testing.T) {
	env := newTestEnv(t)
	a := env.addAppointment(5, model.TimeWindowMorning, model.AppointmentStatusPending)
	newDate := day(9)

	v, err := env.svc.Reschedule(context.Background(), env.customer, a.ID, RescheduleInput{
		Date:    &newDate,
		Window:  model.TimeWindowAfternoon,
		Version: a.RowVersion,
	})
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusConfirmed, v.Status)
	assert.Equal(t, "12:00", v.ScheduledTimeStart)
	assert.Equal(t, "15:00", v.ScheduledTimeEnd)
	require.Len(t, env.notifier.business, 1)
	assert.Equal(t, "Appointment rescheduled", env.notifier.business[0].Subject)

	list, err := env.svc.ListAppointments(context.Background(), env.customer)
	require.NoError(t, err)
	require.Len(t, list.Upcoming, 1)
	assert.Equal(t, newDate, list.Upcoming[0].ScheduledDate)
	assert.NotEqual(t, "08:00", list.Upcoming[0].ScheduledTimeStart)
}

func TestReschedule_NotAllowedFromTerminalStatus(t *testing.T) {
	env := newTestEnv(t)
	a := env.addAppointment(5, model.TimeWindowMorning, model.AppointmentStatusCancelled)
	d := day(8)

	_, err := env.svc.Reschedule(context.Background(), env.customer, a.ID, RescheduleInput{
		Date: &d, Window: model.TimeWindowMorning, Version: a.RowVersion,
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateAppointmentStatus(t *testing.T) {
	env := newTestEnv(t)
	a := env.addAppointment(0, model.TimeWindowMorning, model.AppointmentStatusConfirmed)

	updated, err := env.svc.UpdateAppointmentStatus(context.Background(), a.ID, model.AppointmentStatusCompleted, a.RowVersion)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, updated.Status)
	assert.NotNil(t, updated.CompletedAt)

	_, err = env.svc.UpdateAppointmentStatus(context.Background(), a.ID, model.AppointmentStatusConfirmed, updated.RowVersion)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateAppointmentStatus_CancelRequiresCancelFlow(t *testing.T) {
	env := newTestEnv(t)
	a := env.addAppointment(5, model.TimeWindowMorning, model.AppointmentStatusConfirmed)

	_, err := env.svc.UpdateAppointmentStatus(context.Background(), a.ID, model.AppointmentStatusCancelled, a.RowVersion)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := env.repo.GetAppointment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, stored.Status)
	assert.Nil(t, stored.CancelledAt)
	assert.Nil(t, stored.CancellationReason)
}

func TestCreateAppointment_AddressMustBelongToCustomer(t *testing.T) {
	env := newTestEnv(t)
	d := day(3)

	_, err := env.svc.CreateAppointment(context.Background(), NewAppointmentInput{
		ProfileID:   uuid.New(),
		AddressID:   env.address.ID,
		ServiceType: model.ServiceTypeDeep,
		Date:        &d,
		Window:      model.TimeWindowMorning,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "address_id", verr.Field)

	a, err := env.svc.CreateAppointment(context.Background(), NewAppointmentInput{
		ProfileID:   env.customer.ID,
		AddressID:   env.address.ID,
		ServiceType: model.ServiceTypeDeep,
		Date:        &d,
		Window:      model.TimeWindowMorning,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, a.Status)
	assert.Len(t, env.notifier.customer, 1)
}
