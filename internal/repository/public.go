package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

// CreateBooking сохраняет заявку с публичной формы. Идентификатор задаётся вызывающим.
func (r *PostgresRepository) CreateBooking(ctx context.Context, b *model.Booking) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO bookings (id, name, email, phone, street, city, state, zip, service_type, frequency,
		     preferred_date, preferred_window, bedrooms, bathrooms, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING created_at`,
		b.ID, b.Name, b.Email, b.Phone, b.Street, b.City, b.State, b.ZIP, string(b.ServiceType),
		string(b.Frequency), dateOnly(b.PreferredDate), string(b.PreferredWindow), b.Bedrooms, b.Bathrooms, b.Notes,
	).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// GetBooking возвращает заявку с публичной формы по идентификатору.
func (r *PostgresRepository) GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var (
		b           model.Booking
		serviceType string
		frequency   string
		window      string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, phone, street, city, state, zip, service_type, frequency, preferred_date,
		     preferred_window, bedrooms, bathrooms, notes, created_at
		 FROM bookings WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.Email, &b.Phone, &b.Street, &b.City, &b.State, &b.ZIP, &serviceType, &frequency,
		&b.PreferredDate, &window, &b.Bedrooms, &b.Bathrooms, &b.Notes, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	b.ServiceType = model.ServiceType(serviceType)
	b.Frequency = model.Frequency(frequency)
	b.PreferredWindow = model.TimeWindow(window)
	return &b, nil
}

// CreateGiftCertificate сохраняет сертификат в статусе pending.
func (r *PostgresRepository) CreateGiftCertificate(ctx context.Context, g *model.GiftCertificate) error {
	g.Status = model.GiftCertificatePending
	err := r.pool.QueryRow(ctx,
		`INSERT INTO gift_certificates (code, purchaser_name, purchaser_email, recipient_name, recipient_email,
		     message, amount, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		g.Code, g.PurchaserName, g.PurchaserEmail, g.RecipientName, g.RecipientEmail, g.Message, g.AmountCents,
		string(g.Status),
	).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert gift certificate: %w", err)
	}
	return nil
}

// SetGiftCertificateIntent связывает сертификат с платёжным намерением.
func (r *PostgresRepository) SetGiftCertificateIntent(ctx context.Context, id uuid.UUID, intentID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE gift_certificates SET payment_intent_id = $2 WHERE id = $1`, id, intentID)
	if err != nil {
		return fmt.Errorf("update gift certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkGiftCertificatePaid переводит сертификат в статус paid по платёжному намерению.
// Возвращает ErrNotFound, если сертификата нет или он уже оплачен.
func (r *PostgresRepository) MarkGiftCertificatePaid(ctx context.Context, intentID string) (*model.GiftCertificate, error) {
	var (
		g      model.GiftCertificate
		status string
	)
	err := r.pool.QueryRow(ctx,
		`UPDATE gift_certificates SET status = 'paid', paid_at = now()
		 WHERE payment_intent_id = $1 AND status = 'pending'
		 RETURNING id, code, purchaser_name, purchaser_email, recipient_name, recipient_email, message, amount,
		     status, payment_intent_id, paid_at, created_at`, intentID,
	).Scan(&g.ID, &g.Code, &g.PurchaserName, &g.PurchaserEmail, &g.RecipientName, &g.RecipientEmail, &g.Message,
		&g.AmountCents, &status, &g.PaymentIntentID, &g.PaidAt, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mark gift certificate paid: %w", err)
	}
	g.Status = model.GiftCertificateStatus(status)
	return &g, nil
}

// RecordWebhookEvent запоминает обработанное событие процессора.
// first = false, если событие уже встречалось.
func (r *PostgresRepository) RecordWebhookEvent(ctx context.Context, eventID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO processed_webhook_events (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING`, eventID)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ForgetWebhookEvent удаляет отметку об обработке, чтобы процессор мог повторить доставку.
func (r *PostgresRepository) ForgetWebhookEvent(ctx context.Context, eventID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM processed_webhook_events WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("forget webhook event: %w", err)
	}
	return nil
}

// SumCredits возвращает баланс кредитов клиента.
func (r *PostgresRepository) SumCredits(ctx context.Context, profileID uuid.UUID) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(sum(amount), 0) FROM credits WHERE profile_id = $1`, profileID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum credits: %w", err)
	}
	return total, nil
}

// AddCredit начисляет клиенту кредит.
func (r *PostgresRepository) AddCredit(ctx context.Context, c *model.Credit) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO credits (profile_id, amount, reason) VALUES ($1, $2, $3) RETURNING id, created_at`,
		c.ProfileID, c.AmountCents, c.Reason,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert credit: %w", err)
	}
	return nil
}
