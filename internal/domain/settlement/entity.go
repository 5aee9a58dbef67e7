package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage layout for calendar days.
const DateLayout = "2006-01-02"

// ========== STAFF ==========

// Collector - staff member who logs milk collections
type Collector struct {
	ID        string
	FullName  string
	Phone     *string
	Route     *string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ========== COLLECTIONS ==========

// CollectionStatus enum
type CollectionStatus string

const (
	CollectionStatusCollected CollectionStatus = "Collected"
	CollectionStatusApproved  CollectionStatus = "Approved"
	CollectionStatusPaid      CollectionStatus = "Paid"
	CollectionStatusRejected  CollectionStatus = "Rejected"
)

// LedgerStatuses are the statuses returned by the collection ledger.
var LedgerStatuses = []CollectionStatus{CollectionStatusCollected, CollectionStatusApproved}

// Collection - one milk drop-off event
type Collection struct {
	ID             string
	FarmerID       string
	CollectorID    string
	Liters         decimal.Decimal
	RatePerLiter   decimal.Decimal
	TotalAmount    decimal.Decimal
	CollectionDate time.Time // calendar day (UTC midnight)
	CollectedAt    time.Time
	Latitude       *float64
	Longitude      *float64
	Status         CollectionStatus
	ApprovedAt     *time.Time
	ApprovedBy     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Joined fields
	FarmerName *string
}

// IsFinanciallyLocked reports whether liters/amount can no longer change.
func (c Collection) IsFinanciallyLocked() bool {
	return c.Status == CollectionStatusApproved || c.Status == CollectionStatusPaid
}

// ========== DAILY SUMMARIES ==========

// SummaryStatus enum
type SummaryStatus string

const (
	SummaryStatusProvisional SummaryStatus = "provisional"
	SummaryStatusFinalized   SummaryStatus = "finalized"
	SummaryStatusFrozen      SummaryStatus = "frozen"
)

// DailyCollectorSummary - aggregate of one collector's collections on one day.
// TotalReceivedLiters, Variance and PenaltyAmount stay nil while provisional.
type DailyCollectorSummary struct {
	ID                  string
	CollectorID         string
	SummaryDate         time.Time
	CollectionCount     int
	TotalRecordedLiters decimal.Decimal
	TotalReceivedLiters *decimal.Decimal
	Variance            *decimal.Decimal
	PenaltyAmount       *decimal.Decimal
	GrossAmount         decimal.Decimal // sum of approved collection amounts
	PenaltyConfigID     *string
	Status              SummaryStatus
	CollectorPaymentID  *string
	ReceivedRecordedBy  *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (s DailyCollectorSummary) IsProvisional() bool {
	return s.Status == SummaryStatusProvisional
}

func (s DailyCollectorSummary) IsFrozen() bool {
	return s.Status == SummaryStatusFrozen
}

// ========== PENALTY POLICY ==========

// BandKind enum
type BandKind string

const (
	BandKindNone         BandKind = "none"
	BandKindFlat         BandKind = "flat"
	BandKindProportional BandKind = "proportional"
)

// PenaltyBand - one variance-magnitude band. A band covers
// [LowerBoundLiters, next band's lower bound).
type PenaltyBand struct {
	LowerBoundLiters decimal.Decimal `json:"lower_bound_liters"`
	Kind             BandKind        `json:"kind"`
	FlatFee          decimal.Decimal `json:"flat_fee"`
	RatePerLiter     decimal.Decimal `json:"rate_per_liter"`
}

// VariancePenaltyConfig - versioned penalty schedule, at most one active
type VariancePenaltyConfig struct {
	ID        string
	Name      string
	Version   int
	Bands     []PenaltyBand
	IsActive  bool
	CreatedBy *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ========== CREDIT ==========

// CreditStatus enum
type CreditStatus string

const (
	CreditStatusPending  CreditStatus = "pending"
	CreditStatusApproved CreditStatus = "approved"
	CreditStatusRejected CreditStatus = "rejected"
)

// CreditSettlementStatus enum
type CreditSettlementStatus string

const (
	CreditSettlementPending CreditSettlementStatus = "pending"
	CreditSettlementPaid    CreditSettlementStatus = "paid"
)

// CreditRequest - agrovet credit draw-down repaid from collection proceeds
type CreditRequest struct {
	ID                 string
	FarmerID           string
	Amount             decimal.Decimal
	Status             CreditStatus
	SettlementStatus   CreditSettlementStatus
	CollectorPaymentID *string
	SettledAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ========== COLLECTOR PAYMENTS ==========

// PaymentStatus enum
type PaymentStatus string

const (
	PaymentStatusGenerated PaymentStatus = "Generated"
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusPaid      PaymentStatus = "Paid"
)

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusGenerated:
		return next == PaymentStatusPending
	case PaymentStatusPending:
		return next == PaymentStatusPaid
	default:
		return false
	}
}

// CollectorPayment - one payment to one collector for one period
type CollectorPayment struct {
	ID               string
	CollectorID      string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	GrossEarnings    decimal.Decimal
	TotalPenalty     decimal.Decimal
	CreditDeductions decimal.Decimal
	NetPayable       decimal.Decimal
	SummaryCount     int
	Status           PaymentStatus
	GeneratedBy      *string
	ReviewedAt       *time.Time
	ReviewedBy       *string
	PaidAt           *time.Time
	PaidBy           *string
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Joined fields
	CollectorName *string
	Credits       []CreditRequest
}
