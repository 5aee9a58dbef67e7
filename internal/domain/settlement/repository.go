package settlement

import (
	"context"
	"time"
)

// Transactor runs fn inside one store transaction. Repositories called with
// the ctx passed to fn participate in that transaction; returning an error
// from fn rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type StaffRepository interface {
	GetCollectorByID(ctx context.Context, id string) (Collector, error)
	// LockCollector returns the collector row locked until the transaction ends.
	LockCollector(ctx context.Context, id string) (Collector, error)
	ListActiveCollectors(ctx context.Context) ([]Collector, error)
}

type CollectionRepository interface {
	Create(ctx context.Context, c Collection) (Collection, error)
	GetByID(ctx context.Context, id string) (Collection, error)
	// ListByCollector returns collections ordered by collected_at, id.
	ListByCollector(ctx context.Context, collectorID string, from, to time.Time, statuses []CollectionStatus) ([]Collection, error)
	Approve(ctx context.Context, id string, approvedBy string, approvedAt time.Time) (Collection, error)
	MarkPaid(ctx context.Context, collectorID string, from, to time.Time) (int64, error)
}

type DailySummaryRepository interface {
	Get(ctx context.Context, collectorID string, date time.Time) (DailyCollectorSummary, error)
	// Upsert replaces the summary for (collector, date); frozen rows are never overwritten.
	Upsert(ctx context.Context, s DailyCollectorSummary) (DailyCollectorSummary, error)
	ListByCollector(ctx context.Context, collectorID string, from, to time.Time) ([]DailyCollectorSummary, error)
	Freeze(ctx context.Context, ids []string, paymentID string) (int64, error)
	ListProvisionalBefore(ctx context.Context, before time.Time) ([]DailyCollectorSummary, error)
}

type PenaltyConfigRepository interface {
	Create(ctx context.Context, cfg VariancePenaltyConfig) (VariancePenaltyConfig, error)
	GetByID(ctx context.Context, id string) (VariancePenaltyConfig, error)
	// GetActive returns ErrNoActivePolicy when no config is active.
	GetActive(ctx context.Context) (VariancePenaltyConfig, error)
	List(ctx context.Context) ([]VariancePenaltyConfig, error)
	Activate(ctx context.Context, id string) error
}

type CreditRepository interface {
	// ListDeductible returns approved, settlement-pending credits of the given
	// farmers that are not yet attached to a payment, locked for update.
	ListDeductible(ctx context.Context, farmerIDs []string) ([]CreditRequest, error)
	AttachToPayment(ctx context.Context, ids []string, paymentID string) (int64, error)
	ListByPayment(ctx context.Context, paymentID string) ([]CreditRequest, error)
	SettleByPayment(ctx context.Context, paymentID string, settledAt time.Time) (int64, error)
}

type PaymentRepository interface {
	// Create returns ErrAlreadyGenerated when the (collector, period) exists.
	Create(ctx context.Context, p CollectorPayment) (CollectorPayment, error)
	GetByID(ctx context.Context, id string) (CollectorPayment, error)
	LockByID(ctx context.Context, id string) (CollectorPayment, error)
	FindOverlapping(ctx context.Context, collectorID string, start, end time.Time) ([]CollectorPayment, error)
	// UpdateStatus moves a payment from one status to the next; it returns
	// ErrInvalidTransition when the row is not in the from status.
	UpdateStatus(ctx context.Context, id string, from, to PaymentStatus, actor string, at time.Time) (CollectorPayment, error)
	List(ctx context.Context, filter PaymentFilter) ([]CollectorPayment, int64, error)
}
