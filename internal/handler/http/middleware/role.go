package middleware

import (
	"fmt"
	"net/http"

	"github.com/dairycoop/settlement-backend/internal/domain/user"
	"github.com/dairycoop/settlement-backend/internal/handler/http/response"
)

// RequirePermission rejects callers whose role lacks permission. It must run
// after AuthRequired.
func RequirePermission(permission user.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := user.CallerFromContext(r.Context())
			if err != nil {
				response.Unauthorized(w, "Unauthorized")
				return
			}
			if !user.HasPermission(caller.Role, permission) {
				response.Forbidden(w, fmt.Sprintf("role %q may not %s", caller.Role, permission))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
