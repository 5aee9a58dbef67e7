package settlement

import (
	"context"

	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// GetPeriodOverview shows office staff what a generation for [from, to]
// would pick up and whether it is currently allowed.
func (s *SettlementServiceImpl) GetPeriodOverview(ctx context.Context, req settlement.DateRangeRequest) (settlement.PeriodOverviewResponse, error) {
	from, to, err := req.Parse()
	if err != nil {
		return settlement.PeriodOverviewResponse{}, err
	}
	if _, err := authorize(ctx, req.CollectorID); err != nil {
		return settlement.PeriodOverviewResponse{}, err
	}
	if _, err := s.staffRepo.GetCollectorByID(ctx, req.CollectorID); err != nil {
		return settlement.PeriodOverviewResponse{}, err
	}

	var (
		summaries   []settlement.DailyCollectorSummary
		collections []settlement.Collection
		credits     []settlement.CreditRequest
		payments    []settlement.CollectorPayment
	)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Daily summaries
	g.Go(func() error {
		var err error
		summaries, err = s.summaryRepo.ListByCollector(gCtx, req.CollectorID, from, to)
		return err
	})

	// 2. Ledger, then the deductible credits of the farmers it served
	g.Go(func() error {
		var err error
		collections, err = s.collectionRepo.ListByCollector(gCtx, req.CollectorID, from, to, settlement.LedgerStatuses)
		if err != nil {
			return err
		}
		credits, err = s.creditRepo.ListDeductible(gCtx, servedFarmers(collections))
		return err
	})

	// 3. Payments already covering part of the range
	g.Go(func() error {
		var err error
		payments, err = s.paymentRepo.FindOverlapping(gCtx, req.CollectorID, from, to)
		return err
	})

	if err := g.Wait(); err != nil {
		return settlement.PeriodOverviewResponse{}, err
	}

	totals := rollUpPeriod(summaries, collections)
	resp := settlement.PeriodOverviewResponse{
		CollectorID:        req.CollectorID,
		From:               req.From,
		To:                 req.To,
		Summaries:          make([]settlement.DailySummaryResponse, 0, len(summaries)),
		ProvisionalDates:   settlement.FormatDates(totals.provisionalDates),
		UnapprovedDates:    settlement.FormatDates(totals.unapprovedDates),
		GrossEarnings:      totals.gross.Round(s.places),
		TotalPenalty:       totals.penalty.Round(s.places),
		PendingCredits:     make([]settlement.CreditDeductionResponse, 0, len(credits)),
		PendingCreditTotal: decimal.Zero,
		ExistingPayments:   make([]settlement.CollectorPaymentResponse, 0, len(payments)),
	}
	for _, sum := range summaries {
		resp.Summaries = append(resp.Summaries, toSummaryResponse(sum))
	}
	for _, c := range credits {
		resp.PendingCredits = append(resp.PendingCredits, toCreditResponse(c))
		resp.PendingCreditTotal = resp.PendingCreditTotal.Add(c.Amount)
	}
	for _, p := range payments {
		resp.ExistingPayments = append(resp.ExistingPayments, toPaymentResponse(p))
	}

	resp.ReadyForGeneration = to.Before(s.today()) &&
		len(payments) == 0 &&
		!totals.blocked() &&
		len(totals.summaryIDs) > 0
	return resp, nil
}
