package user

type Permission string

const (
	// Collections
	PermissionCollectionView    Permission = "collection.view"
	PermissionCollectionRecord  Permission = "collection.record"
	PermissionCollectionApprove Permission = "collection.approve"

	// Daily summaries
	PermissionSummaryFinalize Permission = "summary.finalize"

	// Penalty policy
	PermissionPenaltyView   Permission = "penalty.view"
	PermissionPenaltyManage Permission = "penalty.manage"

	// Collector payments
	PermissionPaymentView     Permission = "payment.view"
	PermissionPaymentGenerate Permission = "payment.generate"
	PermissionPaymentReview   Permission = "payment.review"
	PermissionPaymentPay      Permission = "payment.pay"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermissionCollectionView,
		PermissionCollectionRecord,
		PermissionCollectionApprove,
		PermissionSummaryFinalize,
		PermissionPenaltyView,
		PermissionPenaltyManage,
		PermissionPaymentView,
		PermissionPaymentGenerate,
		PermissionPaymentReview,
		PermissionPaymentPay,
	},
	RoleOfficeStaff: {
		PermissionCollectionView,
		PermissionCollectionApprove,
		PermissionSummaryFinalize,
		PermissionPenaltyView,
		PermissionPaymentView,
		PermissionPaymentGenerate,
		PermissionPaymentReview,
		PermissionPaymentPay,
	},
	RoleCollector: {
		// Own route only, see Caller.CanActFor
		PermissionCollectionView,
		PermissionCollectionRecord,
		PermissionPenaltyView,
		PermissionPaymentView,
	},
}

// HasPermission checks if a role has a specific permission
func HasPermission(role Role, permission Permission) bool {
	permissions, exists := RolePermissions[role]
	if !exists {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}

	return false
}
