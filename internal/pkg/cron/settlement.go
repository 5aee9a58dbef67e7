package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dairycoop/settlement-backend/internal/domain/notification"
	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/domain/user"
)

type SettlementJobs struct {
	settlementSvc   settlement.SettlementService
	staffRepo       settlement.StaffRepository
	summaryRepo     settlement.DailySummaryRepository
	notificationSvc notification.Service
	periodDays      int
	now             func() time.Time
}

func NewSettlementJobs(
	settlementSvc settlement.SettlementService,
	staffRepo settlement.StaffRepository,
	summaryRepo settlement.DailySummaryRepository,
	notificationSvc notification.Service,
	periodDays int,
) *SettlementJobs {
	if periodDays < 1 {
		periodDays = 7
	}
	return &SettlementJobs{
		settlementSvc:   settlementSvc,
		staffRepo:       staffRepo,
		summaryRepo:     summaryRepo,
		notificationSvc: notificationSvc,
		periodDays:      periodDays,
		now:             time.Now,
	}
}

func (j *SettlementJobs) RegisterJobs(scheduler *Scheduler, generateSpec, reminderSpec string) error {
	if err := scheduler.AddJob("generate_collector_payments", generateSpec, j.GenerateCollectorPayments); err != nil {
		return err
	}
	return scheduler.AddJob("remind_provisional_summaries", reminderSpec, j.RemindProvisionalSummaries)
}

// lastPeriod is the periodDays-long window ending yesterday.
func (j *SettlementJobs) lastPeriod() (start, end time.Time) {
	now := j.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end = today.AddDate(0, 0, -1)
	start = end.AddDate(0, 0, -(j.periodDays - 1))
	return start, end
}

// GenerateCollectorPayments runs the batch generator for every active
// collector over the last closed period. Periods that cannot be generated
// yet are skipped and reported, never retried within the run.
func (j *SettlementJobs) GenerateCollectorPayments(ctx context.Context) error {
	start, end := j.lastPeriod()
	slog.Info("Cron: Starting collector payment generation",
		"period_start", start.Format(settlement.DateLayout), "period_end", end.Format(settlement.DateLayout))

	collectors, err := j.staffRepo.ListActiveCollectors(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active collectors: %w", err)
	}

	ctx = user.WithCaller(ctx, user.SystemCaller())
	var generated, skipped, failed int
	for _, c := range collectors {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		payment, err := j.settlementSvc.GenerateCollectorPayment(ctx, settlement.GeneratePaymentRequest{
			CollectorID: c.ID,
			PeriodStart: start.Format(settlement.DateLayout),
			PeriodEnd:   end.Format(settlement.DateLayout),
		})
		var incomplete *settlement.IncompletePeriodError
		switch {
		case err == nil:
			generated++
			slog.Info("Cron: Collector payment generated", "collector_id", c.ID, "payment_id", payment.ID, "net_payable", payment.NetPayable.String())
		case errors.Is(err, settlement.ErrAlreadyGenerated), errors.Is(err, settlement.ErrInvalidPeriod):
			skipped++
			slog.Debug("Cron: Collector payment skipped", "collector_id", c.ID, "reason", err)
		case errors.As(err, &incomplete):
			skipped++
			slog.Warn("Cron: Collector period incomplete", "collector_id", c.ID,
				"provisional_days", len(incomplete.ProvisionalDates), "unapproved_days", len(incomplete.UnapprovedDates))
			j.notifyIncomplete(ctx, c, incomplete)
		default:
			failed++
			slog.Error("Cron: Failed to generate collector payment", "collector_id", c.ID, "error", err)
		}
	}

	slog.Info("Cron: Collector payment generation finished", "generated", generated, "skipped", skipped, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d collector payments failed", failed, len(collectors))
	}
	return nil
}

// queue hands req to the notification service. A failed notification is
// logged and never fails the job.
func (j *SettlementJobs) queue(ctx context.Context, req notification.CreateNotificationRequest) {
	if j.notificationSvc == nil {
		return
	}
	if err := j.notificationSvc.QueueNotification(ctx, req); err != nil {
		slog.Warn("Cron: failed to queue notification", "type", req.Type, "recipient", req.RecipientID, "error", err)
	}
}

func (j *SettlementJobs) notifyIncomplete(ctx context.Context, c settlement.Collector, incomplete *settlement.IncompletePeriodError) {
	provisional := settlement.FormatDates(incomplete.ProvisionalDates)
	unapproved := settlement.FormatDates(incomplete.UnapprovedDates)
	j.queue(ctx, notification.CreateNotificationRequest{
		RecipientID: notification.RecipientOffice,
		Type:        notification.TypePaymentGenerationFailed,
		Title:       "Collector payment not generated",
		Message: fmt.Sprintf("%s has %d day(s) without a received weight and %d day(s) with unapproved collections",
			c.FullName, len(provisional), len(unapproved)),
		Data: map[string]interface{}{
			"collector_id":      c.ID,
			"provisional_dates": provisional,
			"unapproved_dates":  unapproved,
		},
	})
}

// RemindProvisionalSummaries nudges the office about days before yesterday
// that still have no received weight.
func (j *SettlementJobs) RemindProvisionalSummaries(ctx context.Context) error {
	_, yesterday := j.lastPeriod()
	summaries, err := j.summaryRepo.ListProvisionalBefore(ctx, yesterday)
	if err != nil {
		return fmt.Errorf("failed to list provisional summaries: %w", err)
	}
	if len(summaries) == 0 {
		slog.Info("Cron: No provisional summaries pending")
		return nil
	}

	byCollector := make(map[string][]string)
	for _, s := range summaries {
		byCollector[s.CollectorID] = append(byCollector[s.CollectorID], s.SummaryDate.Format(settlement.DateLayout))
	}

	if j.notificationSvc != nil {
		for collectorID, dates := range byCollector {
			j.queue(ctx, notification.CreateNotificationRequest{
				RecipientID: notification.RecipientOffice,
				Type:        notification.TypeProvisionalSummaryReminder,
				Title:       "Received weight missing",
				Message:     fmt.Sprintf("%d day(s) are waiting for a received weight", len(dates)),
				Data: map[string]interface{}{
					"collector_id": collectorID,
					"dates":        dates,
				},
			})
		}
	}

	slog.Info("Cron: Provisional summary reminders queued", "collectors", len(byCollector), "days", len(summaries))
	return nil
}
