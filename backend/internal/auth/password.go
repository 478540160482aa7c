package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"unicode"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{3,30}$`)
	validate        = validator.New()
)

const minPasswordLength = 8

// ValidateUsername enforces 3-30 letters, digits, underscores or dots
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return apperrors.Validation("username must be 3-30 characters of letters, digits, '_' or '.'")
	}
	return nil
}

// ValidateEmail checks address syntax
func ValidateEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return apperrors.Validation("invalid email address")
	}
	return nil
}

// ValidatePassword requires at least 8 characters with a letter and a digit
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.Validation("password must be at least %d characters", minPasswordLength)
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return apperrors.Validation("password must contain a letter and a digit")
	}
	return nil
}

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NewCode returns a uniformly random six-digit code
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
