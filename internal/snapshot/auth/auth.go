// Package auth gates the snapshot server's mutating endpoints
// (pause/resume, force-flatten) behind a single operator bearer token,
// grounded on the teacher's internal/auth/jwt.go and password.go but
// collapsed to one operator account rather than a multi-tenant user
// table.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt/token defaults, matching the teacher's DefaultBcryptCost and
// short-lived access token duration.
const (
	DefaultBcryptCost    = 12
	DefaultTokenDuration = 15 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid operator password")
	ErrInvalidToken        = errors.New("auth: invalid or expired token")
)

// Claims is the single operator's JWT payload.
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// Manager issues and validates operator bearer tokens and hashes the
// operator's dashboard password.
type Manager struct {
	secret         []byte
	tokenDuration  time.Duration
	bcryptCost     int
	operatorHash   string // bcrypt hash of the configured operator password
}

// NewManager builds a Manager. operatorPasswordHash must already be
// bcrypt-hashed (e.g. produced once via HashPassword and stored in
// config), matching the teacher's pattern of never holding a plaintext
// password in memory longer than the hashing call.
func NewManager(jwtSecret, operatorPasswordHash string, tokenDuration time.Duration) *Manager {
	if tokenDuration <= 0 {
		tokenDuration = DefaultTokenDuration
	}
	return &Manager{
		secret:        []byte(jwtSecret),
		tokenDuration: tokenDuration,
		bcryptCost:    DefaultBcryptCost,
		operatorHash:  operatorPasswordHash,
	}
}

// HashPassword bcrypt-hashes a plaintext operator password for storage
// in config.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), DefaultBcryptCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(bytes), nil
}

// Login verifies password against the configured operator hash and
// issues a signed access token.
func (m *Manager) Login(password string) (string, error) {
	if bcrypt.CompareHashAndPassword([]byte(m.operatorHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Operator: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			Issuer:    "polybot-snapshot",
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies an access token.
func (m *Manager) Validate(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// GenerateRandomSecret produces a cryptographically random JWT signing
// secret for environments that don't pin one via config.
func GenerateRandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generate secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
