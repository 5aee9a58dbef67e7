package response

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dairycoop/settlement-backend/internal/domain/auth"
	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/domain/user"
	"github.com/dairycoop/settlement-backend/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	var incomplete *settlement.IncompletePeriodError
	if errors.As(err, &incomplete) {
		ErrorWithCode(w, http.StatusConflict, "INCOMPLETE_PERIOD",
			"Pay period has days without a received weight or with unapproved collections",
			map[string]string{
				"collector_id":      incomplete.CollectorID,
				"provisional_dates": strings.Join(settlement.FormatDates(incomplete.ProvisionalDates), ","),
				"unapproved_dates":  strings.Join(settlement.FormatDates(incomplete.UnapprovedDates), ","),
			})
		return
	}

	switch {
	// Caller identity
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingClaims):
		Unauthorized(w, "Invalid or missing token")
	case errors.Is(err, auth.ErrTokenExpired):
		Unauthorized(w, "Token expired")
	case errors.Is(err, user.ErrCallerNotFound):
		Unauthorized(w, "Caller identity missing")
	case errors.Is(err, user.ErrStaffIDRequired):
		Forbidden(w, "Collector token has no staff_id")
	case errors.Is(err, settlement.ErrForbiddenCollector):
		Forbidden(w, "Collectors may only access their own route")

	// Settlement taxonomy
	case errors.Is(err, settlement.ErrNotFound):
		NotFound(w, capitalize(err.Error()))
	case errors.Is(err, settlement.ErrNoActivePolicy):
		ErrorWithCode(w, http.StatusUnprocessableEntity, "NO_ACTIVE_POLICY", "No variance penalty config is active", nil)
	case errors.Is(err, settlement.ErrAlreadyGenerated):
		ErrorWithCode(w, http.StatusConflict, "ALREADY_GENERATED", "A collector payment already covers this period", nil)
	case errors.Is(err, settlement.ErrSettlementAtomicity):
		slog.Error("settlement rolled back", "error", err)
		ErrorWithCode(w, http.StatusInternalServerError, "SETTLEMENT_ATOMICITY",
			"Payment and credit settlement could not be committed together; the payment is still Pending", nil)

	// Workflow state
	case errors.Is(err, settlement.ErrInvalidTransition):
		ErrorWithCode(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, settlement.ErrPeriodNotClosed):
		ErrorWithCode(w, http.StatusUnprocessableEntity, "PERIOD_NOT_CLOSED", "Pay period must end before today", nil)
	case errors.Is(err, settlement.ErrInvalidPeriod):
		ErrorWithCode(w, http.StatusUnprocessableEntity, "INVALID_PERIOD", err.Error(), nil)
	case errors.Is(err, settlement.ErrSummaryFrozen):
		ErrorWithCode(w, http.StatusConflict, "SUMMARY_FROZEN", "Daily summary is already part of a collector payment", nil)
	case errors.Is(err, settlement.ErrSummaryProvisional):
		ErrorWithCode(w, http.StatusConflict, "SUMMARY_PROVISIONAL", "Daily summary has no received weight yet", nil)
	case errors.Is(err, settlement.ErrInvalidPenaltyConfig):
		ErrorWithCode(w, http.StatusUnprocessableEntity, "INVALID_PENALTY_CONFIG", err.Error(), nil)
	case errors.Is(err, settlement.ErrPenaltyActivationConflict):
		ErrorWithCode(w, http.StatusConflict, "ACTIVATION_CONFLICT", "Another penalty config was activated at the same time; retry", nil)
	case errors.Is(err, settlement.ErrCollectionAlreadyApproved):
		Conflict(w, "Collection already approved")
	case errors.Is(err, settlement.ErrCollectorInactive):
		Conflict(w, "Collector is not active")
	case errors.Is(err, settlement.ErrCollectionMismatch):
		BadRequest(w, err.Error(), nil)

	// Default
	default:
		slog.Error("unhandled error", "error", err)
		InternalServerError(w, "An unexpected error occurred")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
