package settlement

import (
	"time"

	"github.com/dairycoop/settlement-backend/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// ========== SHARED ==========

type DateRangeRequest struct {
	CollectorID string `json:"collector_id"`
	From        string `json:"from"`
	To          string `json:"to"`
}

// Parse validates the request and returns the inclusive day range.
func (r *DateRangeRequest) Parse() (from, to time.Time, err error) {
	var errs validator.ValidationErrors

	if !validator.IsUUID(r.CollectorID) {
		errs = append(errs, validator.ValidationError{Field: "collector_id", Message: "must be a valid UUID"})
	}
	from, okFrom := validator.IsValidDate(r.From)
	if !okFrom {
		errs = append(errs, validator.ValidationError{Field: "from", Message: "must be a date in YYYY-MM-DD format"})
	}
	to, okTo := validator.IsValidDate(r.To)
	if !okTo {
		errs = append(errs, validator.ValidationError{Field: "to", Message: "must be a date in YYYY-MM-DD format"})
	}
	if okFrom && okTo && to.Before(from) {
		errs = append(errs, validator.ValidationError{Field: "to", Message: "must not be before from"})
	}

	if len(errs) > 0 {
		return time.Time{}, time.Time{}, errs
	}
	return from, to, nil
}

// ========== COLLECTION DTOs ==========

// Scales of the NUMERIC columns that store measured volumes and unit rates.
const (
	litersPlaces = 3
	ratePlaces   = 2
)

type RecordCollectionRequest struct {
	FarmerID     string          `json:"farmer_id"`
	CollectorID  string          `json:"collector_id"`
	Liters       decimal.Decimal `json:"liters"`
	RatePerLiter decimal.Decimal `json:"rate_per_liter"`
	CollectedAt  string          `json:"collected_at"`
	Latitude     *float64        `json:"latitude,omitempty"`
	Longitude    *float64        `json:"longitude,omitempty"`
}

func (r *RecordCollectionRequest) Validate() error {
	var errs validator.ValidationErrors

	if !validator.IsUUID(r.FarmerID) {
		errs = append(errs, validator.ValidationError{Field: "farmer_id", Message: "must be a valid UUID"})
	}
	if !validator.IsUUID(r.CollectorID) {
		errs = append(errs, validator.ValidationError{Field: "collector_id", Message: "must be a valid UUID"})
	}
	if !r.Liters.IsPositive() {
		errs = append(errs, validator.ValidationError{Field: "liters", Message: "must be greater than zero"})
	} else if !validator.MaxDecimalPlaces(r.Liters, litersPlaces) {
		errs = append(errs, validator.ValidationError{Field: "liters", Message: "must have at most 3 decimal places"})
	}
	if !r.RatePerLiter.IsPositive() {
		errs = append(errs, validator.ValidationError{Field: "rate_per_liter", Message: "must be greater than zero"})
	} else if !validator.MaxDecimalPlaces(r.RatePerLiter, ratePlaces) {
		errs = append(errs, validator.ValidationError{Field: "rate_per_liter", Message: "must have at most 2 decimal places"})
	}
	if _, ok := validator.IsValidDateTime(r.CollectedAt); !ok {
		errs = append(errs, validator.ValidationError{Field: "collected_at", Message: "must be an RFC3339 timestamp"})
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		errs = append(errs, validator.ValidationError{Field: "latitude", Message: "latitude and longitude must be provided together"})
	}
	if r.Latitude != nil && (*r.Latitude < -90 || *r.Latitude > 90) {
		errs = append(errs, validator.ValidationError{Field: "latitude", Message: "must be between -90 and 90"})
	}
	if r.Longitude != nil && (*r.Longitude < -180 || *r.Longitude > 180) {
		errs = append(errs, validator.ValidationError{Field: "longitude", Message: "must be between -180 and 180"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type CollectionResponse struct {
	ID             string          `json:"id"`
	FarmerID       string          `json:"farmer_id"`
	FarmerName     *string         `json:"farmer_name,omitempty"`
	CollectorID    string          `json:"collector_id"`
	Liters         decimal.Decimal `json:"liters"`
	RatePerLiter   decimal.Decimal `json:"rate_per_liter"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CollectionDate string          `json:"collection_date"`
	CollectedAt    string          `json:"collected_at"`
	Latitude       *float64        `json:"latitude,omitempty"`
	Longitude      *float64        `json:"longitude,omitempty"`
	Status         string          `json:"status"`
	ApprovedAt     *string         `json:"approved_at,omitempty"`
}

// ========== DAILY SUMMARY DTOs ==========

type RecordReceivedLitersRequest struct {
	CollectorID    string          `json:"-"`
	Date           string          `json:"-"`
	ReceivedLiters decimal.Decimal `json:"received_liters"`
}

func (r *RecordReceivedLitersRequest) Validate() error {
	var errs validator.ValidationErrors

	if !validator.IsUUID(r.CollectorID) {
		errs = append(errs, validator.ValidationError{Field: "collector_id", Message: "must be a valid UUID"})
	}
	if _, ok := validator.IsValidDate(r.Date); !ok {
		errs = append(errs, validator.ValidationError{Field: "date", Message: "must be a date in YYYY-MM-DD format"})
	}
	if r.ReceivedLiters.IsNegative() {
		errs = append(errs, validator.ValidationError{Field: "received_liters", Message: "must be non-negative"})
	} else if !validator.MaxDecimalPlaces(r.ReceivedLiters, litersPlaces) {
		errs = append(errs, validator.ValidationError{Field: "received_liters", Message: "must have at most 3 decimal places"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type DailySummaryResponse struct {
	ID                  string           `json:"id"`
	CollectorID         string           `json:"collector_id"`
	SummaryDate         string           `json:"summary_date"`
	CollectionCount     int              `json:"collection_count"`
	TotalRecordedLiters decimal.Decimal  `json:"total_recorded_liters"`
	TotalReceivedLiters *decimal.Decimal `json:"total_received_liters"`
	Variance            *decimal.Decimal `json:"variance"`
	PenaltyAmount       *decimal.Decimal `json:"penalty_amount"`
	GrossAmount         decimal.Decimal  `json:"gross_amount"`
	PenaltyConfigID     *string          `json:"penalty_config_id,omitempty"`
	Status              string           `json:"status"`
	CollectorPaymentID  *string          `json:"collector_payment_id,omitempty"`
}

// ========== PENALTY CONFIG DTOs ==========

type CreatePenaltyConfigRequest struct {
	Name  string        `json:"name"`
	Bands []PenaltyBand `json:"bands"`
}

func (r *CreatePenaltyConfigRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.Name) {
		errs = append(errs, validator.ValidationError{Field: "name", Message: "is required"})
	}
	if err := ValidateBands(r.Bands); err != nil {
		errs = append(errs, validator.ValidationError{Field: "bands", Message: err.Error()})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type PreviewPenaltyRequest struct {
	Variance decimal.Decimal `json:"variance"`
}

type PenaltyConfigResponse struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Version   int           `json:"version"`
	Bands     []PenaltyBand `json:"bands"`
	IsActive  bool          `json:"is_active"`
	CreatedAt string        `json:"created_at"`
}

type PenaltyPreviewResponse struct {
	ConfigID      string          `json:"config_id"`
	ConfigVersion int             `json:"config_version"`
	Variance      decimal.Decimal `json:"variance"`
	Band          PenaltyBand     `json:"band"`
	PenaltyAmount decimal.Decimal `json:"penalty_amount"`
}

// ========== COLLECTOR PAYMENT DTOs ==========

type GeneratePaymentRequest struct {
	CollectorID string `json:"collector_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

func (r *GeneratePaymentRequest) Validate() error {
	var errs validator.ValidationErrors

	if !validator.IsUUID(r.CollectorID) {
		errs = append(errs, validator.ValidationError{Field: "collector_id", Message: "must be a valid UUID"})
	}
	start, okStart := validator.IsValidDate(r.PeriodStart)
	if !okStart {
		errs = append(errs, validator.ValidationError{Field: "period_start", Message: "must be a date in YYYY-MM-DD format"})
	}
	end, okEnd := validator.IsValidDate(r.PeriodEnd)
	if !okEnd {
		errs = append(errs, validator.ValidationError{Field: "period_end", Message: "must be a date in YYYY-MM-DD format"})
	}
	if okStart && okEnd && end.Before(start) {
		errs = append(errs, validator.ValidationError{Field: "period_end", Message: "must not be before period_start"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type CreditDeductionResponse struct {
	ID               string          `json:"id"`
	FarmerID         string          `json:"farmer_id"`
	Amount           decimal.Decimal `json:"amount"`
	SettlementStatus string          `json:"settlement_status"`
	SettledAt        *string         `json:"settled_at,omitempty"`
}

type CollectorPaymentResponse struct {
	ID               string                    `json:"id"`
	CollectorID      string                    `json:"collector_id"`
	CollectorName    *string                   `json:"collector_name,omitempty"`
	PeriodStart      string                    `json:"period_start"`
	PeriodEnd        string                    `json:"period_end"`
	GrossEarnings    decimal.Decimal           `json:"gross_earnings"`
	TotalPenalty     decimal.Decimal           `json:"total_penalty"`
	CreditDeductions decimal.Decimal           `json:"credit_deductions"`
	NetPayable       decimal.Decimal           `json:"net_payable"`
	SummaryCount     int                       `json:"summary_count"`
	Status           string                    `json:"status"`
	ReviewedAt       *string                   `json:"reviewed_at,omitempty"`
	PaidAt           *string                   `json:"paid_at,omitempty"`
	Credits          []CreditDeductionResponse `json:"credits,omitempty"`
}

type PaymentFilter struct {
	CollectorID *string `json:"collector_id,omitempty"`
	Status      *string `json:"status,omitempty"`
	Page        int     `json:"page"`
	Limit       int     `json:"limit"`
}

type ListCollectorPaymentResponse struct {
	Data       []CollectorPaymentResponse `json:"data"`
	TotalCount int64                      `json:"total_count"`
	Page       int                        `json:"page"`
	Limit      int                        `json:"limit"`
}

// ========== OVERVIEW ==========

type PeriodOverviewResponse struct {
	CollectorID        string                     `json:"collector_id"`
	From               string                     `json:"from"`
	To                 string                     `json:"to"`
	Summaries          []DailySummaryResponse     `json:"summaries"`
	ProvisionalDates   []string                   `json:"provisional_dates"`
	UnapprovedDates    []string                   `json:"unapproved_dates"`
	GrossEarnings      decimal.Decimal            `json:"gross_earnings"`
	TotalPenalty       decimal.Decimal            `json:"total_penalty"`
	PendingCredits     []CreditDeductionResponse  `json:"pending_credits"`
	PendingCreditTotal decimal.Decimal            `json:"pending_credit_total"`
	ExistingPayments   []CollectorPaymentResponse `json:"existing_payments"`
	ReadyForGeneration bool                       `json:"ready_for_generation"`
}
