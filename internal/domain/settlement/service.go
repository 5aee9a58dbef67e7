package settlement

import "context"

// SettlementService is the collector payment & variance settlement workflow:
// ledger -> daily summary -> penalty -> payment batch -> settlement.
type SettlementService interface {
	// Collection ledger
	ListCollectorCollections(ctx context.Context, req DateRangeRequest) ([]CollectionResponse, error)
	RecordCollection(ctx context.Context, req RecordCollectionRequest) (CollectionResponse, error)
	ApproveCollection(ctx context.Context, id string) (CollectionResponse, error)

	// Daily summaries
	ListDailySummaries(ctx context.Context, req DateRangeRequest) ([]DailySummaryResponse, error)
	RecordReceivedLiters(ctx context.Context, req RecordReceivedLitersRequest) (DailySummaryResponse, error)
	RecomputeDailySummary(ctx context.Context, collectorID string, date string) (DailySummaryResponse, error)

	// Penalty policy
	CreatePenaltyConfig(ctx context.Context, req CreatePenaltyConfigRequest) (PenaltyConfigResponse, error)
	ActivatePenaltyConfig(ctx context.Context, id string) (PenaltyConfigResponse, error)
	GetActivePenaltyConfig(ctx context.Context) (PenaltyConfigResponse, error)
	ListPenaltyConfigs(ctx context.Context) ([]PenaltyConfigResponse, error)
	PreviewPenalty(ctx context.Context, req PreviewPenaltyRequest) (PenaltyPreviewResponse, error)

	// Payment batches
	GenerateCollectorPayment(ctx context.Context, req GeneratePaymentRequest) (CollectorPaymentResponse, error)
	GetCollectorPayment(ctx context.Context, id string) (CollectorPaymentResponse, error)
	ListCollectorPayments(ctx context.Context, filter PaymentFilter) (ListCollectorPaymentResponse, error)
	GetPeriodOverview(ctx context.Context, req DateRangeRequest) (PeriodOverviewResponse, error)

	// Settlement state machine
	MarkPaymentPending(ctx context.Context, id string) (CollectorPaymentResponse, error)
	MarkPaymentPaid(ctx context.Context, id string) (CollectorPaymentResponse, error)
}
