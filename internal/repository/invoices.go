package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

const invoiceColumns = `id, invoice_number, profile_id, appointment_id, status, payment_state, amount, tax_rate,
	tax_amount, total, line_items, payment_method, processor_invoice_id, payment_intent_id, notes, due_date,
	paid_date, sent_at, row_version, created_at, updated_at`

func scanInvoice(row pgx.Row) (*model.Invoice, error) {
	var (
		inv       model.Invoice
		status    string
		state     string
		method    *string
		lineItems []byte
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.ProfileID, &inv.AppointmentID, &status, &state, &inv.AmountCents,
		&inv.TaxRate, &inv.TaxAmountCents, &inv.TotalCents, &lineItems, &method, &inv.ProcessorInvoiceID,
		&inv.PaymentIntentID, &inv.Notes, &inv.DueDate, &inv.PaidDate, &inv.SentAt, &inv.RowVersion,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.Status = model.InvoiceStatus(status)
	inv.PaymentState = model.PaymentState(state)
	if method != nil {
		k := model.PaymentMethodKind(*method)
		inv.PaymentMethod = &k
	}
	if len(lineItems) > 0 {
		if err := json.Unmarshal(lineItems, &inv.LineItems); err != nil {
			return nil, fmt.Errorf("decode line items: %w", err)
		}
	}
	return &inv, nil
}

func (r *PostgresRepository) queryInvoices(ctx context.Context, query string, args ...any) ([]model.Invoice, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}
	defer rows.Close()

	var res []model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		res = append(res, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func encodeLineItems(items []model.LineItem) ([]byte, error) {
	if items == nil {
		items = []model.LineItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode line items: %w", err)
	}
	return b, nil
}

func methodArg(k *model.PaymentMethodKind) *string {
	if k == nil {
		return nil
	}
	s := string(*k)
	return &s
}

// CreateInvoice сохраняет счёт. Номер счёта назначается базой данных из последовательности.
func (r *PostgresRepository) CreateInvoice(ctx context.Context, inv *model.Invoice) error {
	items, err := encodeLineItems(inv.LineItems)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO invoices (profile_id, appointment_id, status, payment_state, amount, tax_rate, tax_amount, total,
		     line_items, payment_method, processor_invoice_id, notes, due_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id, invoice_number, row_version, created_at, updated_at`,
		inv.ProfileID, inv.AppointmentID, string(inv.Status), string(inv.PaymentState), inv.AmountCents, inv.TaxRate,
		inv.TaxAmountCents, inv.TotalCents, items, methodArg(inv.PaymentMethod), inv.ProcessorInvoiceID, inv.Notes,
		dateOnly(inv.DueDate),
	).Scan(&inv.ID, &inv.Number, &inv.RowVersion, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// GetInvoice возвращает счёт по идентификатору.
func (r *PostgresRepository) GetInvoice(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// GetInvoiceByPaymentIntent ищет счёт по идентификатору платёжного намерения.
func (r *PostgresRepository) GetInvoiceByPaymentIntent(ctx context.Context, intentID string) (*model.Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE payment_intent_id = $1`, intentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get invoice by payment intent: %w", err)
	}
	return inv, nil
}

// GetInvoiceByProcessorInvoice ищет счёт по идентификатору счёта в платёжном процессоре.
func (r *PostgresRepository) GetInvoiceByProcessorInvoice(ctx context.Context, processorInvoiceID string) (*model.Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE processor_invoice_id = $1`, processorInvoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get invoice by processor invoice: %w", err)
	}
	return inv, nil
}

// ListInvoicesByProfile возвращает счета клиента, новые первыми.
func (r *PostgresRepository) ListInvoicesByProfile(ctx context.Context, profileID uuid.UUID) ([]model.Invoice, error) {
	return r.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE profile_id = $1 ORDER BY created_at DESC`, profileID)
}

// ListInvoicesByStatus возвращает счета в указанных статусах, ближайший срок первым.
func (r *PostgresRepository) ListInvoicesByStatus(ctx context.Context, statuses ...model.InvoiceStatus) ([]model.Invoice, error) {
	s := make([]string, 0, len(statuses))
	for _, st := range statuses {
		s = append(s, string(st))
	}
	return r.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE status = ANY($1) ORDER BY due_date, created_at`, s)
}

// ListInvoicesDueBefore возвращает отправленные счета со сроком оплаты раньше day.
func (r *PostgresRepository) ListInvoicesDueBefore(ctx context.Context, day time.Time) ([]model.Invoice, error) {
	return r.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE status = 'sent' AND payment_state = 'unpaid' AND due_date < $1
		 ORDER BY due_date`, dateOnly(day))
}

// ListPaidInvoicesSince возвращает счета, оплаченные начиная с since, последние первыми.
func (r *PostgresRepository) ListPaidInvoicesSince(ctx context.Context, since time.Time) ([]model.Invoice, error) {
	return r.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE status = 'paid' AND paid_date >= $1
		 ORDER BY paid_date DESC`, since)
}

// ListPendingManualClaims возвращает счета с заявленными, но не подтверждёнными переводами.
func (r *PostgresRepository) ListPendingManualClaims(ctx context.Context) ([]model.Invoice, error) {
	return r.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE payment_state = 'pending_manual_verification'
		 ORDER BY updated_at`)
}

// SumRevenue возвращает сумму оплаченных счетов. При since = nil считается вся выручка.
func (r *PostgresRepository) SumRevenue(ctx context.Context, since *time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(sum(total), 0) FROM invoices
		 WHERE status = 'paid' AND ($1::timestamptz IS NULL OR paid_date >= $1)`, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum revenue: %w", err)
	}
	return total, nil
}

// UpdateInvoice сохраняет изменяемые поля счёта одним оператором, если версия строки совпадает
// с expectedVersion. При успехе RowVersion счёта увеличивается.
func (r *PostgresRepository) UpdateInvoice(ctx context.Context, inv *model.Invoice, expectedVersion int64) error {
	items, err := encodeLineItems(inv.LineItems)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx,
		`UPDATE invoices
		 SET status = $3, payment_state = $4, amount = $5, tax_rate = $6, tax_amount = $7, total = $8,
		     line_items = $9, payment_method = $10, processor_invoice_id = $11, payment_intent_id = $12,
		     notes = $13, due_date = $14, paid_date = $15, sent_at = $16,
		     row_version = row_version + 1, updated_at = now()
		 WHERE id = $1 AND row_version = $2
		 RETURNING row_version, updated_at`,
		inv.ID, expectedVersion, string(inv.Status), string(inv.PaymentState), inv.AmountCents, inv.TaxRate,
		inv.TaxAmountCents, inv.TotalCents, items, methodArg(inv.PaymentMethod), inv.ProcessorInvoiceID,
		inv.PaymentIntentID, inv.Notes, dateOnly(inv.DueDate), inv.PaidDate, inv.SentAt,
	).Scan(&inv.RowVersion, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return versionMiss(ctx, r.pool, "invoices", inv.ID)
		}
		return fmt.Errorf("update invoice: %w", err)
	}
	return nil
}
