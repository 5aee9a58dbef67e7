package notification

import (
	"time"
)

// NotificationType represents the settlement outcome being reported
type NotificationType string

const (
	TypeCollectionRecorded         NotificationType = "collection_recorded"
	TypeSummaryFinalized           NotificationType = "summary_finalized"
	TypePenaltyApplied             NotificationType = "penalty_applied"
	TypePaymentGenerated           NotificationType = "payment_generated"
	TypePaymentPending             NotificationType = "payment_pending"
	TypePaymentPaid                NotificationType = "payment_paid"
	TypeProvisionalSummaryReminder NotificationType = "provisional_summary_reminder"
	TypePaymentGenerationFailed    NotificationType = "payment_generation_failed"
)

// RecipientOffice addresses every office staff member.
const RecipientOffice = "office"

// AllNotificationTypes returns all available notification types
func AllNotificationTypes() []NotificationType {
	return []NotificationType{
		TypeCollectionRecorded,
		TypeSummaryFinalized,
		TypePenaltyApplied,
		TypePaymentGenerated,
		TypePaymentPending,
		TypePaymentPaid,
		TypeProvisionalSummaryReminder,
		TypePaymentGenerationFailed,
	}
}

func (t NotificationType) IsValid() bool {
	for _, known := range AllNotificationTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Notification represents a notification entity
type Notification struct {
	ID          string
	RecipientID string
	SenderID    *string
	Type        NotificationType
	Title       string
	Message     string
	Data        map[string]interface{}
	IsRead      bool
	ReadAt      *time.Time
	CreatedAt   time.Time
}
