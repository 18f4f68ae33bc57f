package main

import (
	"fmt"
	"os"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	userID := pflag.String("user", "test-user-123", "subject (user id) of the token")
	email := pflag.String("email", "test@example.com", "email claim")
	roleName := pflag.String("role", "student", "student, teacher or admin")
	ttl := pflag.Duration("ttl", 24*time.Hour, "token lifetime")
	envFile := pflag.String("env", ".env", "env file holding JWT_SECRET")
	pflag.Parse()

	godotenv.Load(*envFile)

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Println("JWT_SECRET is not set")
		os.Exit(1)
	}

	role, ok := parseRole(*roleName)
	if !ok {
		fmt.Printf("Unknown role %q\n", *roleName)
		os.Exit(1)
	}

	expires := time.Now().Add(*ttl)
	claims := jwt.MapClaims{
		"sub":   *userID,
		"email": *email,
		"role":  int(role),
		"iat":   time.Now().Unix(),
		"exp":   expires.Unix(),
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== JWT Token Generated ===")
	fmt.Println()
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Println("=== Token Claims ===")
	fmt.Printf("User ID: %s\n", *userID)
	fmt.Printf("Email: %s\n", *email)
	fmt.Printf("Role: %s (%d)\n", role, int(role))
	fmt.Printf("Expires: %s\n", expires.Format(time.RFC3339))
}

func parseRole(name string) (auth.Role, bool) {
	for _, r := range []auth.Role{auth.RoleStudent, auth.RoleTeacher, auth.RoleAdmin} {
		if r.String() == name {
			return r, true
		}
	}
	return 0, false
}
