package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

const addressColumns = `id, profile_id, label, street, unit, city, state, zip, instructions, is_primary, created_at`

func scanAddress(row pgx.Row) (*model.ServiceAddress, error) {
	var a model.ServiceAddress
	if err := row.Scan(&a.ID, &a.ProfileID, &a.Label, &a.Street, &a.Unit, &a.City, &a.State, &a.ZIP,
		&a.Instructions, &a.IsPrimary, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAddresses возвращает адреса клиента, основной адрес первым.
func (r *PostgresRepository) ListAddresses(ctx context.Context, profileID uuid.UUID) ([]model.ServiceAddress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+addressColumns+` FROM service_addresses
		 WHERE profile_id = $1
		 ORDER BY is_primary DESC, created_at`,
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("select addresses: %w", err)
	}
	defer rows.Close()

	var res []model.ServiceAddress
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		res = append(res, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetAddress возвращает адрес по идентификатору.
func (r *PostgresRepository) GetAddress(ctx context.Context, id uuid.UUID) (*model.ServiceAddress, error) {
	a, err := scanAddress(r.pool.QueryRow(ctx, `SELECT `+addressColumns+` FROM service_addresses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}

// lockProfile сериализует изменения адресов и карт одного клиента.
func lockProfile(ctx context.Context, tx pgx.Tx, profileID uuid.UUID) error {
	var dummy int
	err := tx.QueryRow(ctx, `SELECT 1 FROM profiles WHERE id = $1 FOR UPDATE`, profileID).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock profile: %w", err)
	}
	return nil
}

// AddAddress добавляет адрес. Первый адрес клиента становится основным;
// при запросе основного адреса флаг остальных снимается в той же транзакции.
func (r *PostgresRepository) AddAddress(ctx context.Context, a *model.ServiceAddress) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockProfile(ctx, tx, a.ProfileID); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM service_addresses WHERE profile_id = $1`, a.ProfileID).Scan(&count); err != nil {
			return fmt.Errorf("count addresses: %w", err)
		}
		if count == 0 {
			a.IsPrimary = true
		}

		if a.IsPrimary {
			if _, err := tx.Exec(ctx,
				`UPDATE service_addresses SET is_primary = FALSE WHERE profile_id = $1 AND is_primary`,
				a.ProfileID); err != nil {
				return fmt.Errorf("clear primary: %w", err)
			}
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO service_addresses (profile_id, label, street, unit, city, state, zip, instructions, is_primary)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id, created_at`,
			a.ProfileID, a.Label, a.Street, a.Unit, a.City, a.State, a.ZIP, a.Instructions, a.IsPrimary,
		).Scan(&a.ID, &a.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert address: %w", err)
		}
		return nil
	})
}

// UpdateAddress сохраняет поля адреса, не затрагивая флаг основного адреса.
func (r *PostgresRepository) UpdateAddress(ctx context.Context, a *model.ServiceAddress) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE service_addresses
		 SET label = $3, street = $4, unit = $5, city = $6, state = $7, zip = $8, instructions = $9
		 WHERE id = $1 AND profile_id = $2`,
		a.ID, a.ProfileID, a.Label, a.Street, a.Unit, a.City, a.State, a.ZIP, a.Instructions,
	)
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPrimaryAddress делает адрес основным одним оператором в транзакции с блокировкой клиента.
func (r *PostgresRepository) SetPrimaryAddress(ctx context.Context, profileID, addressID uuid.UUID) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockProfile(ctx, tx, profileID); err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM service_addresses WHERE id = $1 AND profile_id = $2)`,
			addressID, profileID).Scan(&exists); err != nil {
			return fmt.Errorf("check address: %w", err)
		}
		if !exists {
			return ErrNotFound
		}

		// Снятие и установка флага в два шага, чтобы частичный уникальный индекс не сработал посреди оператора.
		if _, err := tx.Exec(ctx,
			`UPDATE service_addresses SET is_primary = FALSE WHERE profile_id = $1 AND is_primary AND id <> $2`,
			profileID, addressID); err != nil {
			return fmt.Errorf("clear primary: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE service_addresses SET is_primary = TRUE WHERE id = $1`, addressID); err != nil {
			return fmt.Errorf("set primary: %w", err)
		}
		return nil
	})
}

// DeleteAddress удаляет адрес. Если удалён основной, основным становится самый старый из оставшихся.
func (r *PostgresRepository) DeleteAddress(ctx context.Context, profileID, addressID uuid.UUID) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockProfile(ctx, tx, profileID); err != nil {
			return err
		}

		var wasPrimary bool
		err := tx.QueryRow(ctx,
			`DELETE FROM service_addresses WHERE id = $1 AND profile_id = $2 RETURNING is_primary`,
			addressID, profileID).Scan(&wasPrimary)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			if isForeignKeyViolation(err) {
				return ErrInUse
			}
			return fmt.Errorf("delete address: %w", err)
		}

		if wasPrimary {
			if _, err := tx.Exec(ctx,
				`UPDATE service_addresses SET is_primary = TRUE
				 WHERE id = (SELECT id FROM service_addresses WHERE profile_id = $1 ORDER BY created_at LIMIT 1)`,
				profileID); err != nil {
				return fmt.Errorf("promote address: %w", err)
			}
		}
		return nil
	})
}
