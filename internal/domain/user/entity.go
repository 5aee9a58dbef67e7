package user

import "context"

type Role string

const (
	RoleAdmin       Role = "admin"        // Cooperative administrator - full access
	RoleOfficeStaff Role = "office_staff" // Enters received weights, reviews and pays
	RoleCollector   Role = "collector"    // Logs collections on a route
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleOfficeStaff, RoleCollector:
		return true
	}
	return false
}

// Caller is the already-authenticated identity triggering an operation.
type Caller struct {
	UserID  string
	Role    Role
	StaffID *string
}

// IsCollector checks if the caller acts as a field collector
func (c Caller) IsCollector() bool {
	return c.Role == RoleCollector
}

// CanActFor reports whether the caller may touch records of collectorID.
// Collectors are limited to their own staff record.
func (c Caller) CanActFor(collectorID string) bool {
	if !c.IsCollector() {
		return true
	}
	return c.StaffID != nil && *c.StaffID == collectorID
}

type callerKey struct{}

// WithCaller stores the caller on ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller stored by WithCaller.
func CallerFromContext(ctx context.Context) (Caller, error) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	if !ok || c.UserID == "" {
		return Caller{}, ErrCallerNotFound
	}
	return c, nil
}

// SystemCaller is used by scheduled jobs.
func SystemCaller() Caller {
	return Caller{UserID: "system", Role: RoleAdmin}
}
