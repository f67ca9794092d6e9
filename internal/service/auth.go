package service

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/skyfuse/skyfuse/internal/config"
)

// ErrUnauthorized is returned for a missing or wrong admin key.
var ErrUnauthorized = errors.New("unauthorized")

// AuthService guards the admin surface with a single bcrypt-hashed API
// key. The plaintext key never touches disk; operators store only the
// hash in configuration.
type AuthService struct {
	cfg config.Auth
}

// NewAuthService creates an auth service.
func NewAuthService(cfg config.Auth) *AuthService {
	return &AuthService{cfg: cfg}
}

// Enabled reports whether an admin key hash is configured. With no hash
// the admin surface rejects everything.
func (s *AuthService) Enabled() bool {
	return s.cfg.AdminKeyHash != ""
}

// VerifyAdminKey checks a presented key against the configured hash.
func (s *AuthService) VerifyAdminKey(rawKey string) error {
	if !s.Enabled() || rawKey == "" {
		return ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminKeyHash), []byte(rawKey)); err != nil {
		return ErrUnauthorized
	}
	return nil
}

// HashAdminKey produces the bcrypt hash an operator puts in configuration.
func HashAdminKey(rawKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
