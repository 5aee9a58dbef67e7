package user

import "errors"

var (
	ErrCallerNotFound          = errors.New("caller identity not found in context")
	ErrInvalidRole             = errors.New("invalid role")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrStaffIDRequired         = errors.New("staff ID is required for collector role")
)
