package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/dairycoop/settlement-backend/internal/domain/notification"
	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/domain/user"
)

// Repositories groups the stores the settlement workflow reads and writes.
type Repositories struct {
	Staff          settlement.StaffRepository
	Collections    settlement.CollectionRepository
	Summaries      settlement.DailySummaryRepository
	PenaltyConfigs settlement.PenaltyConfigRepository
	Credits        settlement.CreditRepository
	Payments       settlement.PaymentRepository
}

type Config struct {
	MoneyPlaces int32            // default: 2
	Clock       func() time.Time // default: time.Now
}

type SettlementServiceImpl struct {
	tx             settlement.Transactor
	staffRepo      settlement.StaffRepository
	collectionRepo settlement.CollectionRepository
	summaryRepo    settlement.DailySummaryRepository
	penaltyRepo    settlement.PenaltyConfigRepository
	creditRepo     settlement.CreditRepository
	paymentRepo    settlement.PaymentRepository
	notifier       notification.Service
	places         int32
	now            func() time.Time
	log            *slog.Logger
}

var _ settlement.SettlementService = (*SettlementServiceImpl)(nil)

// NewSettlementService wires the workflow. notifier may be nil.
func NewSettlementService(tx settlement.Transactor, repos Repositories, notifier notification.Service, cfg Config) *SettlementServiceImpl {
	if cfg.MoneyPlaces == 0 {
		cfg.MoneyPlaces = 2
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &SettlementServiceImpl{
		tx:             tx,
		staffRepo:      repos.Staff,
		collectionRepo: repos.Collections,
		summaryRepo:    repos.Summaries,
		penaltyRepo:    repos.PenaltyConfigs,
		creditRepo:     repos.Credits,
		paymentRepo:    repos.Payments,
		notifier:       notifier,
		places:         cfg.MoneyPlaces,
		now:            cfg.Clock,
		log:            slog.Default().With("component", "settlement"),
	}
}

// today is the current calendar day in UTC.
func (s *SettlementServiceImpl) today() time.Time {
	return dayOf(s.now())
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// authorize resolves the caller and rejects collectors acting on another route.
func authorize(ctx context.Context, collectorID string) (user.Caller, error) {
	caller, err := user.CallerFromContext(ctx)
	if err != nil {
		return user.Caller{}, err
	}
	if !caller.CanActFor(collectorID) {
		return user.Caller{}, settlement.ErrForbiddenCollector
	}
	return caller, nil
}

// notify hands an outcome to the presentation layer. It runs after commit and
// never fails the operation that produced the outcome.
func (s *SettlementServiceImpl) notify(ctx context.Context, caller user.Caller, typ notification.NotificationType, title, message string, data map[string]interface{}, recipients ...string) {
	if s.notifier == nil {
		return
	}
	sender := caller.UserID
	for _, recipient := range recipients {
		err := s.notifier.QueueNotification(context.WithoutCancel(ctx), notification.CreateNotificationRequest{
			RecipientID: recipient,
			SenderID:    &sender,
			Type:        typ,
			Title:       title,
			Message:     message,
			Data:        data,
		})
		if err != nil {
			s.log.Warn("failed to queue notification", "type", typ, "recipient", recipient, "error", err)
		}
	}
}

// ========== MAPPERS ==========

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(time.RFC3339)
	return &v
}

func toCollectionResponse(c settlement.Collection) settlement.CollectionResponse {
	return settlement.CollectionResponse{
		ID:             c.ID,
		FarmerID:       c.FarmerID,
		FarmerName:     c.FarmerName,
		CollectorID:    c.CollectorID,
		Liters:         c.Liters,
		RatePerLiter:   c.RatePerLiter,
		TotalAmount:    c.TotalAmount,
		CollectionDate: c.CollectionDate.Format(settlement.DateLayout),
		CollectedAt:    c.CollectedAt.UTC().Format(time.RFC3339),
		Latitude:       c.Latitude,
		Longitude:      c.Longitude,
		Status:         string(c.Status),
		ApprovedAt:     formatTime(c.ApprovedAt),
	}
}

func toSummaryResponse(s settlement.DailyCollectorSummary) settlement.DailySummaryResponse {
	return settlement.DailySummaryResponse{
		ID:                  s.ID,
		CollectorID:         s.CollectorID,
		SummaryDate:         s.SummaryDate.Format(settlement.DateLayout),
		CollectionCount:     s.CollectionCount,
		TotalRecordedLiters: s.TotalRecordedLiters,
		TotalReceivedLiters: s.TotalReceivedLiters,
		Variance:            s.Variance,
		PenaltyAmount:       s.PenaltyAmount,
		GrossAmount:         s.GrossAmount,
		PenaltyConfigID:     s.PenaltyConfigID,
		Status:              string(s.Status),
		CollectorPaymentID:  s.CollectorPaymentID,
	}
}

func toPenaltyConfigResponse(cfg settlement.VariancePenaltyConfig) settlement.PenaltyConfigResponse {
	return settlement.PenaltyConfigResponse{
		ID:        cfg.ID,
		Name:      cfg.Name,
		Version:   cfg.Version,
		Bands:     cfg.Bands,
		IsActive:  cfg.IsActive,
		CreatedAt: cfg.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toCreditResponse(c settlement.CreditRequest) settlement.CreditDeductionResponse {
	return settlement.CreditDeductionResponse{
		ID:               c.ID,
		FarmerID:         c.FarmerID,
		Amount:           c.Amount,
		SettlementStatus: string(c.SettlementStatus),
		SettledAt:        formatTime(c.SettledAt),
	}
}

func toPaymentResponse(p settlement.CollectorPayment) settlement.CollectorPaymentResponse {
	resp := settlement.CollectorPaymentResponse{
		ID:               p.ID,
		CollectorID:      p.CollectorID,
		CollectorName:    p.CollectorName,
		PeriodStart:      p.PeriodStart.Format(settlement.DateLayout),
		PeriodEnd:        p.PeriodEnd.Format(settlement.DateLayout),
		GrossEarnings:    p.GrossEarnings,
		TotalPenalty:     p.TotalPenalty,
		CreditDeductions: p.CreditDeductions,
		NetPayable:       p.NetPayable,
		SummaryCount:     p.SummaryCount,
		Status:           string(p.Status),
		ReviewedAt:       formatTime(p.ReviewedAt),
		PaidAt:           formatTime(p.PaidAt),
	}
	for _, c := range p.Credits {
		resp.Credits = append(resp.Credits, toCreditResponse(c))
	}
	return resp
}
