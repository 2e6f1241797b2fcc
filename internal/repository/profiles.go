package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

const profileColumns = `id, email, first_name, last_name, phone, role, account_status,
	communication_preference, stripe_customer_id, created_at, updated_at, deleted_at`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var (
		p      model.Profile
		role   string
		status string
		pref   string
	)
	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Phone, &role, &status,
		&pref, &p.StripeCustomerID, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err != nil {
		return nil, err
	}
	p.Role = model.Role(role)
	p.AccountStatus = model.AccountStatus(status)
	p.CommunicationPreference = model.CommunicationPreference(pref)
	return &p, nil
}

// CreateProfile создаёт профиль пользователя.
func (r *PostgresRepository) CreateProfile(ctx context.Context, p *model.Profile) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO profiles (id, email, first_name, last_name, phone, role, account_status, communication_preference)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		p.ID, p.Email, p.FirstName, p.LastName, p.Phone, string(p.Role), string(p.AccountStatus),
		string(p.CommunicationPreference),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrProfileExists, p.Email)
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// GetProfile возвращает профиль по идентификатору.
func (r *PostgresRepository) GetProfile(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// ListProfiles возвращает профили клиентов, при необходимости отфильтрованные по статусу.
func (r *PostgresRepository) ListProfiles(ctx context.Context, status *model.AccountStatus) ([]model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE role = 'customer'`
	args := []any{}
	if status != nil {
		query += ` AND account_status = $1`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}
	defer rows.Close()

	var res []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		res = append(res, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpdateProfileSettings сохраняет контактные данные и канал связи клиента.
func (r *PostgresRepository) UpdateProfileSettings(ctx context.Context, p *model.Profile) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE profiles
		 SET first_name = $2, last_name = $3, phone = $4, communication_preference = $5, updated_at = now()
		 WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Phone, string(p.CommunicationPreference),
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAccountStatus меняет статус учётной записи. Для статуса deleted проставляется deleted_at.
func (r *PostgresRepository) SetAccountStatus(ctx context.Context, id uuid.UUID, status model.AccountStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE profiles
		 SET account_status = $2,
		     deleted_at = CASE WHEN $2 = 'deleted' THEN now() ELSE deleted_at END,
		     updated_at = now()
		 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update account status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStripeCustomerID сохраняет идентификатор клиента в платёжном процессоре.
func (r *PostgresRepository) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE profiles SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`,
		id, customerID,
	)
	if err != nil {
		return fmt.Errorf("update stripe customer: %w", err)
	}
	return nil
}
