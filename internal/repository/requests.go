package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

const requestSelect = `SELECT r.id, r.profile_id, r.address_id, r.service_type, r.frequency, r.preferred_date,
	r.preferred_window, r.notes, r.status, r.admin_note, r.reviewed_at, r.created_at,
	trim(p.first_name || ' ' || p.last_name)
	FROM service_requests r
	JOIN profiles p ON p.id = r.profile_id`

func scanRequest(row pgx.Row) (*model.ServiceRequest, error) {
	var (
		sr          model.ServiceRequest
		serviceType string
		frequency   string
		window      string
		status      string
	)
	err := row.Scan(&sr.ID, &sr.ProfileID, &sr.AddressID, &serviceType, &frequency, &sr.PreferredDate,
		&window, &sr.Notes, &status, &sr.AdminNote, &sr.ReviewedAt, &sr.CreatedAt, &sr.CustomerName)
	if err != nil {
		return nil, err
	}
	sr.ServiceType = model.ServiceType(serviceType)
	sr.Frequency = model.Frequency(frequency)
	sr.PreferredWindow = model.TimeWindow(window)
	sr.Status = model.ServiceRequestStatus(status)
	return &sr, nil
}

func collectRequests(rows pgx.Rows) ([]model.ServiceRequest, error) {
	defer rows.Close()

	var res []model.ServiceRequest
	for rows.Next() {
		sr, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service request: %w", err)
		}
		res = append(res, *sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateServiceRequest сохраняет заявку клиента в статусе pending.
func (r *PostgresRepository) CreateServiceRequest(ctx context.Context, sr *model.ServiceRequest) error {
	sr.Status = model.ServiceRequestPending
	err := r.pool.QueryRow(ctx,
		`INSERT INTO service_requests (profile_id, address_id, service_type, frequency, preferred_date,
		     preferred_window, notes, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		sr.ProfileID, sr.AddressID, string(sr.ServiceType), string(sr.Frequency), dateOnly(sr.PreferredDate),
		string(sr.PreferredWindow), sr.Notes, string(sr.Status),
	).Scan(&sr.ID, &sr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert service request: %w", err)
	}
	return nil
}

// GetServiceRequest возвращает заявку по идентификатору.
func (r *PostgresRepository) GetServiceRequest(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error) {
	sr, err := scanRequest(r.pool.QueryRow(ctx, requestSelect+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get service request: %w", err)
	}
	return sr, nil
}

// ListServiceRequestsByProfile возвращает заявки клиента, новые первыми.
func (r *PostgresRepository) ListServiceRequestsByProfile(ctx context.Context, profileID uuid.UUID) ([]model.ServiceRequest, error) {
	rows, err := r.pool.Query(ctx, requestSelect+` WHERE r.profile_id = $1 ORDER BY r.created_at DESC`, profileID)
	if err != nil {
		return nil, fmt.Errorf("select service requests: %w", err)
	}
	return collectRequests(rows)
}

// ListServiceRequests возвращает заявки всех клиентов, при необходимости только в статусе status.
func (r *PostgresRepository) ListServiceRequests(ctx context.Context, status *model.ServiceRequestStatus) ([]model.ServiceRequest, error) {
	query := requestSelect
	var args []any
	if status != nil {
		query += ` WHERE r.status = $1`
		args = append(args, string(*status))
	}
	query += ` ORDER BY r.created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select service requests: %w", err)
	}
	return collectRequests(rows)
}

// lockPendingRequest блокирует строку заявки и проверяет, что она ещё не рассмотрена.
func lockPendingRequest(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM service_requests WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock service request: %w", err)
	}
	if model.ServiceRequestStatus(status) != model.ServiceRequestPending {
		return ErrRequestNotPending
	}
	return nil
}

// ApproveServiceRequest одобряет заявку и создаёт визиты в одной транзакции.
// Первый визит становится родителем серии: у остальных parent_recurring_id указывает на него.
func (r *PostgresRepository) ApproveServiceRequest(ctx context.Context, id uuid.UUID, adminNote string, appts []model.Appointment) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockPendingRequest(ctx, tx, id); err != nil {
			return err
		}

		var parent *uuid.UUID
		for i := range appts {
			a := &appts[i]
			a.ServiceRequestID = &id
			a.ParentRecurringID = parent
			if err := insertAppointment(ctx, tx, a); err != nil {
				return err
			}
			if i == 0 && len(appts) > 1 {
				first := a.ID
				parent = &first
			}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE service_requests SET status = 'approved', admin_note = $2, reviewed_at = now() WHERE id = $1`,
			id, adminNote); err != nil {
			return fmt.Errorf("approve service request: %w", err)
		}
		return nil
	})
}

// DeclineServiceRequest отклоняет заявку с комментарием администратора.
func (r *PostgresRepository) DeclineServiceRequest(ctx context.Context, id uuid.UUID, adminNote string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockPendingRequest(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE service_requests SET status = 'declined', admin_note = $2, reviewed_at = now() WHERE id = $1`,
			id, adminNote); err != nil {
			return fmt.Errorf("decline service request: %w", err)
		}
		return nil
	})
}
