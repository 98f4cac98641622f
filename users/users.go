package users

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// AuthProvider identifies who vouched for the account's identity.
type AuthProvider string

const (
	ProviderLocal  AuthProvider = "local"
	ProviderGithub AuthProvider = "github"
	ProviderGoogle AuthProvider = "google"
)

// RoleType represents an account role within the platform.
type RoleType string

const (
	RoleUser       RoleType = "user"        // Regular member
	RoleGroupAdmin RoleType = "group_admin" // Can manage the study groups they own
	RoleAdmin      RoleType = "admin"       // Platform administrator
)

// FederatedPassword is the password-credential sentinel stored for accounts
// created through an external provider. Such accounts never authenticate via
// local password comparison.
const FederatedPassword = "OAuth-Login"

// LastOTPEpoch is the last_otp_at value assigned at account creation so that a
// fresh account is never inside the OTP cooldown window.
var LastOTPEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Account is the durable identity record held by the credential store.
type Account struct {
	ID           int64        `json:"id,omitempty"`        // Stable numeric identifier, assigned at creation
	Email        string       `json:"email,omitempty"`     // Globally unique, stored lower-cased
	Username     string       `json:"username,omitempty"`  // Globally unique handle
	FullName     string       `json:"full_name,omitempty"` // Display name
	PasswordHash string       `json:"-"`                   // bcrypt hash or FederatedPassword - never serialize
	Provider     AuthProvider `json:"provider,omitempty"`  // Who verified this identity
	Role         RoleType     `json:"role,omitempty"`
	Verified     bool         `json:"verified,omitempty"` // Email ownership proven via OTP (or provider)
	Banned       bool         `json:"banned,omitempty"`
	LastOTPAt    time.Time    `json:"-"` // Cooldown anchor for OTP issuance
	CreatedAt    time.Time    `json:"created_at,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at,omitempty"`
}

// Federated reports whether the account's identity is owned by an external
// provider. Federated accounts carry the FederatedPassword sentinel and must
// not be authenticated with a local password.
func (a *Account) Federated() bool {
	return a.Provider != "" && a.Provider != ProviderLocal
}

// NormalizeEmail lower-cases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername lower-cases and trims a username for storage and lookup.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
