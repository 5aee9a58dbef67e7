package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dairycoop/settlement-backend/internal/domain/notification"
	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/domain/user"
	"github.com/dairycoop/settlement-backend/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// AggregateDay builds the summary for one collector and day from its
// collections and the office-entered received figure. With received nil the
// summary is provisional: variance and penalty stay nil. The result depends
// only on the arguments, so re-running it is idempotent.
func AggregateDay(collectorID string, day time.Time, collections []settlement.Collection, received *decimal.Decimal, cfg *settlement.VariancePenaltyConfig, places int32) (settlement.DailyCollectorSummary, error) {
	day = dayOf(day)
	summary := settlement.DailyCollectorSummary{
		CollectorID:         collectorID,
		SummaryDate:         day,
		TotalRecordedLiters: decimal.Zero,
		GrossAmount:         decimal.Zero,
		Status:              settlement.SummaryStatusProvisional,
	}

	for _, c := range collections {
		if c.CollectorID != collectorID || !dayOf(c.CollectionDate).Equal(day) {
			return settlement.DailyCollectorSummary{}, fmt.Errorf("%w: collection %s", settlement.ErrCollectionMismatch, c.ID)
		}
		switch c.Status {
		case settlement.CollectionStatusCollected:
			summary.TotalRecordedLiters = summary.TotalRecordedLiters.Add(c.Liters)
		case settlement.CollectionStatusApproved, settlement.CollectionStatusPaid:
			summary.TotalRecordedLiters = summary.TotalRecordedLiters.Add(c.Liters)
			summary.GrossAmount = summary.GrossAmount.Add(c.TotalAmount)
		default:
			continue
		}
		summary.CollectionCount++
	}

	if received == nil {
		return summary, nil
	}
	if received.IsNegative() {
		return settlement.DailyCollectorSummary{}, validator.ValidationErrors{
			{Field: "received_liters", Message: "must be non-negative"},
		}
	}

	variance := received.Sub(summary.TotalRecordedLiters)
	penalty, _, err := EvaluatePenalty(variance, cfg, places)
	if err != nil {
		return settlement.DailyCollectorSummary{}, err
	}

	receivedCopy := *received
	configID := cfg.ID
	summary.TotalReceivedLiters = &receivedCopy
	summary.Variance = &variance
	summary.PenaltyAmount = &penalty
	summary.PenaltyConfigID = &configID
	summary.Status = settlement.SummaryStatusFinalized
	return summary, nil
}

// recomputeDay re-aggregates one day inside the caller's transaction and
// writes the result. received overrides the stored figure when non-nil.
func (s *SettlementServiceImpl) recomputeDay(ctx context.Context, collectorID string, day time.Time, received *decimal.Decimal, recordedBy *string) (settlement.DailyCollectorSummary, error) {
	existing, err := s.summaryRepo.Get(ctx, collectorID, day)
	switch {
	case errors.Is(err, settlement.ErrDailySummaryNotFound):
		existing = settlement.DailyCollectorSummary{}
	case err != nil:
		return settlement.DailyCollectorSummary{}, err
	case existing.IsFrozen():
		return settlement.DailyCollectorSummary{}, settlement.ErrSummaryFrozen
	}

	if received == nil {
		received = existing.TotalReceivedLiters
		recordedBy = existing.ReceivedRecordedBy
	}

	collections, err := s.collectionRepo.ListByCollector(ctx, collectorID, day, day, settlement.LedgerStatuses)
	if err != nil {
		return settlement.DailyCollectorSummary{}, err
	}

	var cfg *settlement.VariancePenaltyConfig
	if received != nil {
		active, err := s.penaltyRepo.GetActive(ctx)
		if err != nil {
			return settlement.DailyCollectorSummary{}, err
		}
		cfg = &active
	}

	summary, err := AggregateDay(collectorID, day, collections, received, cfg, s.places)
	if err != nil {
		return settlement.DailyCollectorSummary{}, err
	}
	summary.ID = existing.ID
	summary.ReceivedRecordedBy = recordedBy

	return s.summaryRepo.Upsert(ctx, summary)
}

func (s *SettlementServiceImpl) ListDailySummaries(ctx context.Context, req settlement.DateRangeRequest) ([]settlement.DailySummaryResponse, error) {
	from, to, err := req.Parse()
	if err != nil {
		return nil, err
	}
	if _, err := authorize(ctx, req.CollectorID); err != nil {
		return nil, err
	}
	if _, err := s.staffRepo.GetCollectorByID(ctx, req.CollectorID); err != nil {
		return nil, err
	}

	summaries, err := s.summaryRepo.ListByCollector(ctx, req.CollectorID, from, to)
	if err != nil {
		return nil, err
	}
	resp := make([]settlement.DailySummaryResponse, 0, len(summaries))
	for _, sum := range summaries {
		resp = append(resp, toSummaryResponse(sum))
	}
	return resp, nil
}

// RecordReceivedLiters is the office-staff entry of the company-side weight.
// It finalizes the day's summary and computes its penalty. The collector row
// lock orders it against payment generation and other recomputes of the
// same collector.
func (s *SettlementServiceImpl) RecordReceivedLiters(ctx context.Context, req settlement.RecordReceivedLitersRequest) (settlement.DailySummaryResponse, error) {
	if err := req.Validate(); err != nil {
		return settlement.DailySummaryResponse{}, err
	}
	caller, err := authorize(ctx, req.CollectorID)
	if err != nil {
		return settlement.DailySummaryResponse{}, err
	}
	day, _ := validator.IsValidDate(req.Date)
	if !day.Before(s.today().AddDate(0, 0, 1)) {
		return settlement.DailySummaryResponse{}, validator.ValidationErrors{{Field: "date", Message: "must not be in the future"}}
	}

	received := req.ReceivedLiters
	recordedBy := caller.UserID

	var summary settlement.DailyCollectorSummary
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if _, err := s.staffRepo.LockCollector(txCtx, req.CollectorID); err != nil {
			return err
		}
		summary, err = s.recomputeDay(txCtx, req.CollectorID, day, &received, &recordedBy)
		return err
	})
	if err != nil {
		return settlement.DailySummaryResponse{}, err
	}

	s.log.Info("daily summary finalized",
		"collector_id", summary.CollectorID, "date", req.Date,
		"variance", summary.Variance.String(), "penalty", summary.PenaltyAmount.String(), "by", caller.UserID)
	s.notifySummaryFinalized(ctx, caller, summary)

	return toSummaryResponse(summary), nil
}

// RecomputeDailySummary re-runs aggregation for one day with its stored inputs.
func (s *SettlementServiceImpl) RecomputeDailySummary(ctx context.Context, collectorID string, date string) (settlement.DailySummaryResponse, error) {
	if !validator.IsUUID(collectorID) {
		return settlement.DailySummaryResponse{}, validator.ValidationErrors{{Field: "collector_id", Message: "must be a valid UUID"}}
	}
	day, ok := validator.IsValidDate(date)
	if !ok {
		return settlement.DailySummaryResponse{}, validator.ValidationErrors{{Field: "date", Message: "must be a date in YYYY-MM-DD format"}}
	}
	caller, err := authorize(ctx, collectorID)
	if err != nil {
		return settlement.DailySummaryResponse{}, err
	}

	var summary settlement.DailyCollectorSummary
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if _, err := s.staffRepo.LockCollector(txCtx, collectorID); err != nil {
			return err
		}
		summary, err = s.recomputeDay(txCtx, collectorID, day, nil, nil)
		return err
	})
	if err != nil {
		return settlement.DailySummaryResponse{}, err
	}

	s.log.Info("daily summary recomputed", "collector_id", collectorID, "date", date, "status", summary.Status, "by", caller.UserID)
	return toSummaryResponse(summary), nil
}

func (s *SettlementServiceImpl) notifySummaryFinalized(ctx context.Context, caller user.Caller, summary settlement.DailyCollectorSummary) {
	date := summary.SummaryDate.Format(settlement.DateLayout)
	data := map[string]interface{}{
		"summary_id":     summary.ID,
		"collector_id":   summary.CollectorID,
		"date":           date,
		"variance":       summary.Variance.String(),
		"penalty_amount": summary.PenaltyAmount.String(),
	}
	s.notify(ctx, caller, notification.TypeSummaryFinalized,
		"Daily summary finalized",
		fmt.Sprintf("Variance for %s is %s L", date, summary.Variance.StringFixed(3)),
		data, summary.CollectorID, notification.RecipientOffice)

	if summary.PenaltyAmount.IsPositive() {
		s.notify(ctx, caller, notification.TypePenaltyApplied,
			"Variance penalty applied",
			fmt.Sprintf("A penalty of %s was applied for %s", summary.PenaltyAmount.StringFixed(s.places), date),
			data, summary.CollectorID)
	}
}
