package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

const paymentMethodColumns = `id, profile_id, processor_method_id, brand, last4, exp_month, exp_year, is_default, created_at`

func scanPaymentMethod(row pgx.Row) (*model.PaymentMethod, error) {
	var pm model.PaymentMethod
	if err := row.Scan(&pm.ID, &pm.ProfileID, &pm.ProcessorMethodID, &pm.Brand, &pm.Last4, &pm.ExpMonth,
		&pm.ExpYear, &pm.IsDefault, &pm.CreatedAt); err != nil {
		return nil, err
	}
	return &pm, nil
}

// ListPaymentMethods возвращает сохранённые карты клиента, карта по умолчанию первой.
func (r *PostgresRepository) ListPaymentMethods(ctx context.Context, profileID uuid.UUID) ([]model.PaymentMethod, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods
		 WHERE profile_id = $1
		 ORDER BY is_default DESC, created_at DESC`, profileID)
	if err != nil {
		return nil, fmt.Errorf("select payment methods: %w", err)
	}
	defer rows.Close()

	var res []model.PaymentMethod
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		res = append(res, *pm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetPaymentMethod возвращает карту клиента по идентификатору.
func (r *PostgresRepository) GetPaymentMethod(ctx context.Context, profileID, id uuid.UUID) (*model.PaymentMethod, error) {
	pm, err := scanPaymentMethod(r.pool.QueryRow(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods WHERE id = $1 AND profile_id = $2`, id, profileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payment method: %w", err)
	}
	return pm, nil
}

// SavePaymentMethod сохраняет карту клиента. Повторное сохранение той же карты обновляет её реквизиты.
// Первая карта клиента становится картой по умолчанию.
func (r *PostgresRepository) SavePaymentMethod(ctx context.Context, pm *model.PaymentMethod) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockProfile(ctx, tx, pm.ProfileID); err != nil {
			return err
		}

		var hasDefault bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM payment_methods WHERE profile_id = $1 AND is_default)`,
			pm.ProfileID).Scan(&hasDefault); err != nil {
			return fmt.Errorf("check default payment method: %w", err)
		}
		if !hasDefault {
			pm.IsDefault = true
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO payment_methods (profile_id, processor_method_id, brand, last4, exp_month, exp_year, is_default)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (processor_method_id) DO UPDATE
			 SET brand = EXCLUDED.brand, last4 = EXCLUDED.last4, exp_month = EXCLUDED.exp_month,
			     exp_year = EXCLUDED.exp_year
			 WHERE payment_methods.profile_id = EXCLUDED.profile_id
			 RETURNING id, is_default, created_at`,
			pm.ProfileID, pm.ProcessorMethodID, pm.Brand, pm.Last4, pm.ExpMonth, pm.ExpYear, pm.IsDefault,
		).Scan(&pm.ID, &pm.IsDefault, &pm.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("save payment method: %w", err)
		}
		return nil
	})
}

// SetDefaultPaymentMethod делает карту картой по умолчанию в одной транзакции.
func (r *PostgresRepository) SetDefaultPaymentMethod(ctx context.Context, profileID, id uuid.UUID) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockProfile(ctx, tx, profileID); err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM payment_methods WHERE id = $1 AND profile_id = $2)`,
			id, profileID).Scan(&exists); err != nil {
			return fmt.Errorf("check payment method: %w", err)
		}
		if !exists {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx,
			`UPDATE payment_methods SET is_default = FALSE WHERE profile_id = $1 AND is_default AND id <> $2`,
			profileID, id); err != nil {
			return fmt.Errorf("clear default payment method: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE payment_methods SET is_default = TRUE WHERE id = $1`, id); err != nil {
			return fmt.Errorf("set default payment method: %w", err)
		}
		return nil
	})
}

// DeletePaymentMethod удаляет карту и возвращает её данные для отвязки у платёжного процессора.
// Если удалена карта по умолчанию, ею становится самая новая из оставшихся.
func (r *PostgresRepository) DeletePaymentMethod(ctx context.Context, profileID, id uuid.UUID) (*model.PaymentMethod, error) {
	var deleted *model.PaymentMethod
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockProfile(ctx, tx, profileID); err != nil {
			return err
		}

		pm, err := scanPaymentMethod(tx.QueryRow(ctx,
			`DELETE FROM payment_methods WHERE id = $1 AND profile_id = $2 RETURNING `+paymentMethodColumns,
			id, profileID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("delete payment method: %w", err)
		}

		if pm.IsDefault {
			if _, err := tx.Exec(ctx,
				`UPDATE payment_methods SET is_default = TRUE
				 WHERE id = (SELECT id FROM payment_methods WHERE profile_id = $1 ORDER BY created_at DESC LIMIT 1)`,
				profileID); err != nil {
				return fmt.Errorf("promote payment method: %w", err)
			}
		}
		deleted = pm
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
