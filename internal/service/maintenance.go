package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

// errSkip означает, что запись изменилась и больше не подходит под обработку.
var errSkip = errors.New("skip")

// RunMaintenance выполняет плановые обработки по расписанию spec в зоне бизнеса до отмены ctx.
// Пустое расписание отключает обработки.
func (s *Service) RunMaintenance(ctx context.Context, spec string) error {
	if spec == "" {
		return nil
	}

	c := cron.New(cron.WithLocation(s.loc))
	_, err := c.AddFunc(spec, func() {
		n, err := s.MarkOverdueInvoices(ctx)
		if err != nil {
			s.logger.Error("mark overdue invoices", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("invoices marked overdue", zap.Int("count", n))
		}

		n, err = s.AutoCompleteAppointments(ctx)
		if err != nil {
			s.logger.Error("auto-complete appointments", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("appointments auto-completed", zap.Int("count", n))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule maintenance %q: %w", spec, err)
	}

	c.Start()
	s.logger.Info("maintenance scheduled", zap.String("spec", spec), zap.String("location", s.loc.String()))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// MarkOverdueInvoices переводит отправленные счета с истёкшим сроком в статус overdue и
// один раз добавляет строку пени. Возвращает число обработанных счетов.
func (s *Service) MarkOverdueInvoices(ctx context.Context) (int, error) {
	due, err := s.repo.ListInvoicesDueBefore(ctx, s.today())
	if err != nil {
		return 0, err
	}

	count := 0
	for _, candidate := range due {
		var fee int64
		inv, err := s.updateInvoice(ctx, candidate.ID, func(inv *model.Invoice) error {
			if inv.Status != model.InvoiceStatusSent || inv.PaymentState != model.PaymentStateUnpaid {
				return errSkip
			}
			inv.Status = model.InvoiceStatusOverdue
			fee = s.applyLateFee(inv)
			return nil
		})
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			s.logger.Warn("mark invoice overdue", zap.Error(err), zap.String("invoiceID", candidate.ID.String()))
			continue
		}
		count++

		msg := fmt.Sprintf("Invoice %s is past due. Amount due: %s", inv.Number, model.FormatUSD(inv.AmountDueCents()))
		if fee > 0 {
			msg += fmt.Sprintf(" including a %s late fee", model.FormatUSD(fee))
		}
		s.notifyCustomer(ctx, inv.ProfileID, model.NotificationInvoiceOverdue, "Invoice overdue", msg,
			"/portal/invoices/"+inv.ID.String(), true)
		s.notifyAdmins(ctx, model.NotificationInvoiceOverdue, "Invoice overdue", msg, "/admin/invoices/"+inv.ID.String())
	}
	return count, nil
}

// applyLateFee добавляет строку пени от исходной суммы счёта, если её ещё нет, и пересчитывает итоги.
func (s *Service) applyLateFee(inv *model.Invoice) int64 {
	if s.lateFeePercent <= 0 {
		return 0
	}
	b := inv.Breakdown()
	if b.HasLateFee {
		return 0
	}
	fee := model.PercentOf(b.OriginalTotalCents, s.lateFeePercent)
	if fee <= 0 {
		return 0
	}
	inv.LineItems = append(inv.LineItems, model.LineItem{
		Description: "Late Fee (" + formatPercent(s.lateFeePercent) + ")",
		Quantity:    1,
		RateCents:   fee,
		AmountCents: fee,
	})
	recomputeTotals(inv)
	return fee
}

// AutoCompleteAppointments завершает подтверждённые визиты, время окончания которых прошло.
func (s *Service) AutoCompleteAppointments(ctx context.Context) (int, error) {
	today := s.today()
	appts, err := s.repo.ListAppointments(ctx, repository.AppointmentFilter{
		To:       &today,
		Statuses: []model.AppointmentStatus{model.AppointmentStatusConfirmed, model.AppointmentStatusEnRoute},
	})
	if err != nil {
		return 0, err
	}

	now := s.now()
	count := 0
	for _, candidate := range appts {
		end, err := candidate.EndsAt(s.loc)
		if err != nil || end.After(now) {
			continue
		}
		_, err = s.updateAppointment(ctx, candidate.ID, func(a *model.Appointment) error {
			if a.Status != model.AppointmentStatusConfirmed && a.Status != model.AppointmentStatusEnRoute {
				return errSkip
			}
			at := now.UTC()
			a.Status = model.AppointmentStatusCompleted
			a.CompletedAt = &at
			return nil
		})
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			s.logger.Warn("auto-complete appointment", zap.Error(err), zap.String("appointmentID", candidate.ID.String()))
			continue
		}
		count++
	}
	return count, nil
}
