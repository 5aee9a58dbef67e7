package settlement

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is the kind shared by every lookup failure below.
	ErrNotFound = errors.New("not found")

	ErrCollectorNotFound     = fmt.Errorf("collector %w", ErrNotFound)
	ErrCollectionNotFound    = fmt.Errorf("collection %w", ErrNotFound)
	ErrDailySummaryNotFound  = fmt.Errorf("daily summary %w", ErrNotFound)
	ErrPenaltyConfigNotFound = fmt.Errorf("penalty config %w", ErrNotFound)
	ErrPaymentNotFound       = fmt.Errorf("collector payment %w", ErrNotFound)

	ErrNoActivePolicy            = errors.New("no active variance penalty config")
	ErrIncompletePeriod          = errors.New("period contains provisional daily summaries or unapproved collections")
	ErrAlreadyGenerated          = errors.New("collector payment already generated for this period")
	ErrSettlementAtomicity       = errors.New("settlement could not commit payment and credit updates together")
	ErrInvalidTransition         = errors.New("invalid collector payment status transition")
	ErrPeriodNotClosed           = errors.New("pay period must end before today")
	ErrInvalidPeriod             = errors.New("invalid pay period")
	ErrSummaryFrozen             = errors.New("daily summary is frozen in a collector payment")
	ErrSummaryProvisional        = errors.New("daily summary is provisional")
	ErrInvalidPenaltyConfig      = errors.New("invalid variance penalty config")
	ErrPenaltyActivationConflict = errors.New("another penalty config was activated concurrently")
	ErrCollectionAlreadyApproved = errors.New("collection already approved")
	ErrCollectionMismatch        = errors.New("collection does not belong to this collector and day")
	ErrCollectorInactive         = errors.New("collector is not active")
	ErrForbiddenCollector        = errors.New("collectors may only access their own records")
)

// IncompletePeriodError lists the days that block payment generation:
// days without a received weight and days with collections still awaiting
// approval.
type IncompletePeriodError struct {
	CollectorID      string
	ProvisionalDates []time.Time
	UnapprovedDates  []time.Time
}

// FormatDates renders dates in DateLayout.
func FormatDates(days []time.Time) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.Format(DateLayout))
	}
	return out
}

func (e *IncompletePeriodError) Error() string {
	msg := fmt.Sprintf("%s: collector %s, dates [%s]", ErrIncompletePeriod, e.CollectorID, strings.Join(FormatDates(e.ProvisionalDates), ", "))
	if len(e.UnapprovedDates) > 0 {
		msg += fmt.Sprintf(", unapproved [%s]", strings.Join(FormatDates(e.UnapprovedDates), ", "))
	}
	return msg
}

func (e *IncompletePeriodError) Unwrap() error {
	return ErrIncompletePeriod
}

// SettlementAtomicityError wraps the failure that aborted a paid transition.
type SettlementAtomicityError struct {
	PaymentID string
	Cause     error
}

func (e *SettlementAtomicityError) Error() string {
	return fmt.Sprintf("%s: payment %s: %v", ErrSettlementAtomicity, e.PaymentID, e.Cause)
}

func (e *SettlementAtomicityError) Is(target error) bool {
	return target == ErrSettlementAtomicity
}

func (e *SettlementAtomicityError) Unwrap() error {
	return e.Cause
}
