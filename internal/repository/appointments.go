package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

const appointmentSelect = `SELECT a.id, a.profile_id, a.address_id, a.service_request_id, a.parent_recurring_id,
	a.service_type, a.status, a.scheduled_date,
	to_char(a.scheduled_time_start, 'HH24:MI'), to_char(a.scheduled_time_end, 'HH24:MI'),
	a.notes, a.cancellation_reason, a.cancellation_note, a.cancelled_at, a.completed_at,
	a.row_version, a.created_at, a.updated_at,
	s.id, s.profile_id, s.label, s.street, s.unit, s.city, s.state, s.zip, s.instructions, s.is_primary, s.created_at,
	trim(p.first_name || ' ' || p.last_name)
	FROM appointments a
	JOIN service_addresses s ON s.id = a.address_id
	JOIN profiles p ON p.id = a.profile_id`

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var (
		a           model.Appointment
		addr        model.ServiceAddress
		serviceType string
		status      string
		reason      *string
	)
	err := row.Scan(&a.ID, &a.ProfileID, &a.AddressID, &a.ServiceRequestID, &a.ParentRecurringID,
		&serviceType, &status, &a.ScheduledDate, &a.ScheduledTimeStart, &a.ScheduledTimeEnd,
		&a.Notes, &reason, &a.CancellationNote, &a.CancelledAt, &a.CompletedAt,
		&a.RowVersion, &a.CreatedAt, &a.UpdatedAt,
		&addr.ID, &addr.ProfileID, &addr.Label, &addr.Street, &addr.Unit, &addr.City, &addr.State, &addr.ZIP,
		&addr.Instructions, &addr.IsPrimary, &addr.CreatedAt,
		&a.CustomerName,
	)
	if err != nil {
		return nil, err
	}
	a.ServiceType = model.ServiceType(serviceType)
	a.Status = model.AppointmentStatus(status)
	if reason != nil {
		r := model.CancellationReason(*reason)
		a.CancellationReason = &r
	}
	a.Address = &addr
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var res []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		res = append(res, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// AppointmentFilter задаёт условия выборки визитов для администраторов и фоновых задач.
type AppointmentFilter struct {
	ProfileID *uuid.UUID
	From      *time.Time
	To        *time.Time
	Statuses  []model.AppointmentStatus
	Limit     int
}

// GetAppointment возвращает визит по идентификатору вместе с адресом.
func (r *PostgresRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// ListAppointmentsByProfile возвращает все визиты клиента по возрастанию даты и времени начала.
func (r *PostgresRepository) ListAppointmentsByProfile(ctx context.Context, profileID uuid.UUID) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx,
		appointmentSelect+` WHERE a.profile_id = $1 ORDER BY a.scheduled_date, a.scheduled_time_start`,
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("select appointments: %w", err)
	}
	return collectAppointments(rows)
}

// ListAppointments возвращает визиты по фильтру по возрастанию даты и времени начала.
func (r *PostgresRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ProfileID != nil {
		add("a.profile_id = $%d", *f.ProfileID)
	}
	if f.From != nil {
		add("a.scheduled_date >= $%d", dateOnly(*f.From))
	}
	if f.To != nil {
		add("a.scheduled_date <= $%d", dateOnly(*f.To))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		add("a.status = ANY($%d)", statuses)
	}

	query := appointmentSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY a.scheduled_date, a.scheduled_time_start"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select appointments: %w", err)
	}
	return collectAppointments(rows)
}

// CountAppointments возвращает число не отменённых визитов в диапазоне дат включительно.
func (r *PostgresRepository) CountAppointments(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM appointments
		 WHERE scheduled_date BETWEEN $1 AND $2 AND status <> 'cancelled'`,
		dateOnly(from), dateOnly(to),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return n, nil
}

func insertAppointment(ctx context.Context, q querier, a *model.Appointment) error {
	var reason *string
	if a.CancellationReason != nil {
		s := string(*a.CancellationReason)
		reason = &s
	}
	err := q.QueryRow(ctx,
		`INSERT INTO appointments (profile_id, address_id, service_request_id, parent_recurring_id, service_type,
		     status, scheduled_date, scheduled_time_start, scheduled_time_end, notes, cancellation_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::time, $9::time, $10, $11)
		 RETURNING id, row_version, created_at, updated_at`,
		a.ProfileID, a.AddressID, a.ServiceRequestID, a.ParentRecurringID, string(a.ServiceType),
		string(a.Status), dateOnly(a.ScheduledDate), a.ScheduledTimeStart, a.ScheduledTimeEnd, a.Notes, reason,
	).Scan(&a.ID, &a.RowVersion, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// CreateAppointment создаёт визит.
func (r *PostgresRepository) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	return insertAppointment(ctx, r.pool, a)
}

// UpdateAppointment сохраняет изменяемые поля визита, если версия строки совпадает с expectedVersion.
// При успехе RowVersion визита увеличивается.
func (r *PostgresRepository) UpdateAppointment(ctx context.Context, a *model.Appointment, expectedVersion int64) error {
	var reason *string
	if a.CancellationReason != nil {
		s := string(*a.CancellationReason)
		reason = &s
	}

	err := r.pool.QueryRow(ctx,
		`UPDATE appointments
		 SET address_id = $3, service_type = $4, status = $5, scheduled_date = $6,
		     scheduled_time_start = $7::time, scheduled_time_end = $8::time, notes = $9,
		     cancellation_reason = $10, cancellation_note = $11, cancelled_at = $12, completed_at = $13,
		     row_version = row_version + 1, updated_at = now()
		 WHERE id = $1 AND row_version = $2
		 RETURNING row_version, updated_at`,
		a.ID, expectedVersion, a.AddressID, string(a.ServiceType), string(a.Status), dateOnly(a.ScheduledDate),
		a.ScheduledTimeStart, a.ScheduledTimeEnd, a.Notes, reason, a.CancellationNote, a.CancelledAt, a.CompletedAt,
	).Scan(&a.RowVersion, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return versionMiss(ctx, r.pool, "appointments", a.ID)
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}
