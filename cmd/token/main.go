// Command token prints an access token for local development against the API.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dairycoop/settlement-backend/internal/domain/user"
	"github.com/dairycoop/settlement-backend/internal/pkg/jwt"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	userID := flag.String("user", "dev-user", "user_id claim")
	role := flag.String("role", string(user.RoleOfficeStaff), "role claim: admin, office_staff or collector")
	staffID := flag.String("staff", "", "staff_id claim, required for collectors")
	expiry := flag.String("exp", "8h", "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET_KEY is required")
		os.Exit(1)
	}

	r := user.Role(*role)
	if !r.IsValid() {
		fmt.Fprintf(os.Stderr, "%v: %s\n", user.ErrInvalidRole, *role)
		os.Exit(1)
	}
	var staff *string
	if *staffID != "" {
		staff = staffID
	}
	if r == user.RoleCollector && staff == nil {
		fmt.Fprintln(os.Stderr, user.ErrStaffIDRequired)
		os.Exit(1)
	}

	token, _, err := jwt.NewJWTService(secret, *expiry).GenerateAccessToken(*userID, r, staff)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to generate token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
