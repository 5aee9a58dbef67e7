package settlement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dairycoop/settlement-backend/internal/domain/notification"
	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/domain/user"
	"github.com/dairycoop/settlement-backend/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// periodTotals is the roll-up of one collector's finalized days.
type periodTotals struct {
	summaryIDs       []string
	provisionalDates []time.Time
	unapprovedDates  []time.Time
	gross            decimal.Decimal
	penalty          decimal.Decimal
}

// blocked reports whether any day of the period keeps it from being paid.
func (t periodTotals) blocked() bool {
	return len(t.provisionalDates) > 0 || len(t.unapprovedDates) > 0
}

func sortedDays(set map[time.Time]bool) []time.Time {
	days := make([]time.Time, 0, len(set))
	for day := range set {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// rollUpPeriod sums finalized summaries and lists the days that block
// generation: provisional summaries, days with collections but no summary,
// and days holding collections that are still Collected.
func rollUpPeriod(summaries []settlement.DailyCollectorSummary, collections []settlement.Collection) periodTotals {
	totals := periodTotals{gross: decimal.Zero, penalty: decimal.Zero}
	covered := make(map[time.Time]bool, len(summaries))
	blocked := make(map[time.Time]bool)
	unapproved := make(map[time.Time]bool)

	for _, sum := range summaries {
		day := dayOf(sum.SummaryDate)
		covered[day] = true
		if sum.IsProvisional() || sum.PenaltyAmount == nil {
			blocked[day] = true
			continue
		}
		totals.summaryIDs = append(totals.summaryIDs, sum.ID)
		totals.gross = totals.gross.Add(sum.GrossAmount)
		totals.penalty = totals.penalty.Add(*sum.PenaltyAmount)
	}
	for _, c := range collections {
		day := dayOf(c.CollectionDate)
		if !covered[day] {
			blocked[day] = true
		}
		if c.Status == settlement.CollectionStatusCollected {
			unapproved[day] = true
		}
	}

	totals.provisionalDates = sortedDays(blocked)
	totals.unapprovedDates = sortedDays(unapproved)
	return totals
}

// servedFarmers returns the distinct farmers in collections, sorted.
func servedFarmers(collections []settlement.Collection) []string {
	seen := make(map[string]bool)
	var farmers []string
	for _, c := range collections {
		if !seen[c.FarmerID] {
			seen[c.FarmerID] = true
			farmers = append(farmers, c.FarmerID)
		}
	}
	sort.Strings(farmers)
	return farmers
}

// GenerateCollectorPayment rolls a closed period up into one Generated
// payment. Everything from the collector lock to the summary freeze is one
// transaction; the unique (collector, period) constraint backs the overlap
// check when two generators race.
func (s *SettlementServiceImpl) GenerateCollectorPayment(ctx context.Context, req settlement.GeneratePaymentRequest) (settlement.CollectorPaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return settlement.CollectorPaymentResponse{}, err
	}
	caller, err := authorize(ctx, req.CollectorID)
	if err != nil {
		return settlement.CollectorPaymentResponse{}, err
	}

	start, _ := validator.IsValidDate(req.PeriodStart)
	end, _ := validator.IsValidDate(req.PeriodEnd)
	if !end.Before(s.today()) {
		return settlement.CollectorPaymentResponse{}, settlement.ErrPeriodNotClosed
	}

	var payment settlement.CollectorPayment
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if _, err := s.staffRepo.LockCollector(txCtx, req.CollectorID); err != nil {
			return err
		}

		existing, err := s.paymentRepo.FindOverlapping(txCtx, req.CollectorID, start, end)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return settlement.ErrAlreadyGenerated
		}

		summaries, err := s.summaryRepo.ListByCollector(txCtx, req.CollectorID, start, end)
		if err != nil {
			return err
		}
		for _, sum := range summaries {
			if sum.IsFrozen() {
				return settlement.ErrAlreadyGenerated
			}
		}
		collections, err := s.collectionRepo.ListByCollector(txCtx, req.CollectorID, start, end, settlement.LedgerStatuses)
		if err != nil {
			return err
		}

		totals := rollUpPeriod(summaries, collections)
		if totals.blocked() {
			return &settlement.IncompletePeriodError{
				CollectorID:      req.CollectorID,
				ProvisionalDates: totals.provisionalDates,
				UnapprovedDates:  totals.unapprovedDates,
			}
		}
		if len(totals.summaryIDs) == 0 {
			return fmt.Errorf("%w: no finalized daily summaries between %s and %s", settlement.ErrInvalidPeriod, req.PeriodStart, req.PeriodEnd)
		}

		credits, err := s.creditRepo.ListDeductible(txCtx, servedFarmers(collections))
		if err != nil {
			return err
		}
		deductions := decimal.Zero
		creditIDs := make([]string, 0, len(credits))
		for _, c := range credits {
			deductions = deductions.Add(c.Amount)
			creditIDs = append(creditIDs, c.ID)
		}

		generatedBy := caller.UserID
		payment, err = s.paymentRepo.Create(txCtx, settlement.CollectorPayment{
			CollectorID:      req.CollectorID,
			PeriodStart:      start,
			PeriodEnd:        end,
			GrossEarnings:    totals.gross.Round(s.places),
			TotalPenalty:     totals.penalty.Round(s.places),
			CreditDeductions: deductions.Round(s.places),
			NetPayable:       totals.gross.Sub(totals.penalty).Sub(deductions).Round(s.places),
			SummaryCount:     len(totals.summaryIDs),
			Status:           settlement.PaymentStatusGenerated,
			GeneratedBy:      &generatedBy,
		})
		if err != nil {
			return err
		}

		attached, err := s.creditRepo.AttachToPayment(txCtx, creditIDs, payment.ID)
		if err != nil {
			return err
		}
		if attached != int64(len(creditIDs)) {
			return fmt.Errorf("attached %d of %d credit deductions to payment %s", attached, len(creditIDs), payment.ID)
		}

		frozen, err := s.summaryRepo.Freeze(txCtx, totals.summaryIDs, payment.ID)
		if err != nil {
			return err
		}
		if frozen != int64(len(totals.summaryIDs)) {
			return fmt.Errorf("froze %d of %d daily summaries for payment %s", frozen, len(totals.summaryIDs), payment.ID)
		}

		for i := range credits {
			credits[i].CollectorPaymentID = &payment.ID
		}
		payment.Credits = credits
		return nil
	})
	if err != nil {
		return settlement.CollectorPaymentResponse{}, err
	}

	s.log.Info("collector payment generated",
		"payment_id", payment.ID, "collector_id", payment.CollectorID,
		"period_start", req.PeriodStart, "period_end", req.PeriodEnd,
		"gross", payment.GrossEarnings.String(), "penalty", payment.TotalPenalty.String(),
		"credits", payment.CreditDeductions.String(), "net", payment.NetPayable.String(), "by", caller.UserID)
	s.notifyPayment(ctx, caller, notification.TypePaymentGenerated, "Collector payment generated", payment)

	return toPaymentResponse(payment), nil
}

func (s *SettlementServiceImpl) GetCollectorPayment(ctx context.Context, id string) (settlement.CollectorPaymentResponse, error) {
	if !validator.IsUUID(id) {
		return settlement.CollectorPaymentResponse{}, settlement.ErrPaymentNotFound
	}
	payment, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return settlement.CollectorPaymentResponse{}, err
	}
	if _, err := authorize(ctx, payment.CollectorID); err != nil {
		return settlement.CollectorPaymentResponse{}, err
	}

	payment.Credits, err = s.creditRepo.ListByPayment(ctx, payment.ID)
	if err != nil {
		return settlement.CollectorPaymentResponse{}, err
	}
	return toPaymentResponse(payment), nil
}

func (s *SettlementServiceImpl) ListCollectorPayments(ctx context.Context, filter settlement.PaymentFilter) (settlement.ListCollectorPaymentResponse, error) {
	caller, err := user.CallerFromContext(ctx)
	if err != nil {
		return settlement.ListCollectorPaymentResponse{}, err
	}

	var errs validator.ValidationErrors
	if filter.CollectorID != nil && !validator.IsUUID(*filter.CollectorID) {
		errs = append(errs, validator.ValidationError{Field: "collector_id", Message: "must be a valid UUID"})
	}
	if filter.Status != nil && !validator.IsInSlice(*filter.Status, []string{
		string(settlement.PaymentStatusGenerated), string(settlement.PaymentStatusPending), string(settlement.PaymentStatusPaid),
	}) {
		errs = append(errs, validator.ValidationError{Field: "status", Message: "must be one of Generated, Pending, Paid"})
	}
	if len(errs) > 0 {
		return settlement.ListCollectorPaymentResponse{}, errs
	}

	if caller.IsCollector() {
		if filter.CollectorID != nil && !caller.CanActFor(*filter.CollectorID) {
			return settlement.ListCollectorPaymentResponse{}, settlement.ErrForbiddenCollector
		}
		if caller.StaffID == nil {
			return settlement.ListCollectorPaymentResponse{}, user.ErrStaffIDRequired
		}
		filter.CollectorID = caller.StaffID
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	payments, total, err := s.paymentRepo.List(ctx, filter)
	if err != nil {
		return settlement.ListCollectorPaymentResponse{}, err
	}

	resp := settlement.ListCollectorPaymentResponse{
		Data:       make([]settlement.CollectorPaymentResponse, 0, len(payments)),
		TotalCount: total,
		Page:       filter.Page,
		Limit:      filter.Limit,
	}
	for _, p := range payments {
		resp.Data = append(resp.Data, toPaymentResponse(p))
	}
	return resp, nil
}

func (s *SettlementServiceImpl) notifyPayment(ctx context.Context, caller user.Caller, typ notification.NotificationType, title string, p settlement.CollectorPayment) {
	s.notify(ctx, caller, typ, title,
		fmt.Sprintf("Payment for %s to %s: net payable %s (%s)",
			p.PeriodStart.Format(settlement.DateLayout), p.PeriodEnd.Format(settlement.DateLayout),
			p.NetPayable.StringFixed(s.places), p.Status),
		map[string]interface{}{
			"payment_id":        p.ID,
			"collector_id":      p.CollectorID,
			"period_start":      p.PeriodStart.Format(settlement.DateLayout),
			"period_end":        p.PeriodEnd.Format(settlement.DateLayout),
			"gross_earnings":    p.GrossEarnings.String(),
			"total_penalty":     p.TotalPenalty.String(),
			"credit_deductions": p.CreditDeductions.String(),
			"net_payable":       p.NetPayable.String(),
			"status":            string(p.Status),
		},
		p.CollectorID, notification.RecipientOffice)
}
