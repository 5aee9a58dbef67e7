package middleware

import (
	"net/http"

	"github.com/dairycoop/settlement-backend/internal/domain/auth"
	"github.com/dairycoop/settlement-backend/internal/domain/user"
	"github.com/dairycoop/settlement-backend/internal/handler/http/response"
	"github.com/go-chi/jwtauth/v5"
)

// AuthRequired accepts verified access tokens and stores the caller they
// describe on the request context.
func AuthRequired(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())

			if err != nil {
				response.Unauthorized(w, err.Error())
				return
			}

			if token == nil {
				response.HandleError(w, auth.ErrInvalidToken)
				return
			}

			tokenType, ok := claims["type"].(string)
			if tokenType != "access" || !ok {
				response.HandleError(w, auth.ErrInvalidToken)
				return
			}

			caller, err := callerFromClaims(claims)
			if err != nil {
				response.HandleError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(user.WithCaller(r.Context(), caller)))
		}
		return http.HandlerFunc(hfn)
	}
}

func callerFromClaims(claims map[string]interface{}) (user.Caller, error) {
	userID, _ := claims["user_id"].(string)
	roleStr, _ := claims["role"].(string)
	if userID == "" || roleStr == "" {
		return user.Caller{}, auth.ErrMissingClaims
	}

	role := user.Role(roleStr)
	if !role.IsValid() {
		return user.Caller{}, auth.ErrInvalidToken
	}

	caller := user.Caller{UserID: userID, Role: role}
	if staffID, ok := claims["staff_id"].(string); ok && staffID != "" {
		caller.StaffID = &staffID
	}
	if caller.IsCollector() && caller.StaffID == nil {
		return user.Caller{}, user.ErrStaffIDRequired
	}
	return caller, nil
}
