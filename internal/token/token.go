// Package token issues and validates the signed single-use tokens that
// authorize one-click notification actions without a session.
package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MinSecretLen is the minimum accepted HMAC secret length in bytes.
	MinSecretLen = 32

	// DefaultTTL is how long an issued token stays valid.
	DefaultTTL = 7 * 24 * time.Hour

	separator = "."
)

// Validation reason codes. Each failure mode surfaces as a distinct,
// user-facing error; the signature check itself is constant time.
var (
	ErrMalformed        = errors.New("malformed")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrExpired          = errors.New("expired")
	ErrAlreadyUsed      = errors.New("already_used")
)

// Payload is the claim set carried by an action token.
type Payload struct {
	TokenID        string    `json:"token_id"`
	NotificationID string    `json:"notification_id"`
	TenantID       string    `json:"tenant_id"`
	UserID         string    `json:"user_id"`
	ActionType     string    `json:"action_type"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// UsedStore answers whether a token id has already been consumed and records
// consumption. Implementations must be safe for concurrent use.
type UsedStore interface {
	IsUsed(ctx context.Context, tokenID string) (bool, error)
	MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) error
}

// Service signs and validates action tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	used   UsedStore
	now    func() time.Time
}

// NewService builds a token service. An undersized secret is a configuration
// error and fails fast.
func NewService(secret []byte, ttl time.Duration, used UsedStore) (*Service, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("action token secret must be at least %d bytes, got %d", MinSecretLen, len(secret))
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{secret: secret, ttl: ttl, used: used, now: time.Now}, nil
}

// Generate issues a signed token authorizing actionType on a notification.
func (s *Service) Generate(tenantID, userID, notificationID, actionType string) (string, error) {
	now := s.now()
	p := Payload{
		TokenID:        uuid.NewString(),
		NotificationID: notificationID,
		TenantID:       tenantID,
		UserID:         userID,
		ActionType:     actionType,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.ttl),
	}

	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token payload: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(body)
	return encoded + separator + s.sign(encoded), nil
}

// Validate checks structure, signature, expiry and replay, in that order,
// and returns the decoded payload.
func (s *Service) Validate(ctx context.Context, tok string) (*Payload, error) {
	parts := strings.Split(tok, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrMalformed
	}

	if !hmac.Equal([]byte(s.sign(parts[0])), []byte(parts[1])) {
		return nil, ErrInvalidSignature
	}

	body, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrMalformed
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, ErrMalformed
	}

	if s.now().After(p.ExpiresAt) {
		return nil, ErrExpired
	}

	if s.used != nil {
		used, err := s.used.IsUsed(ctx, p.TokenID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token usage: %w", err)
		}
		if used {
			return nil, ErrAlreadyUsed
		}
	}

	return &p, nil
}

// Consume marks a validated token as used. Called only after the action it
// authorized has executed successfully, so a failed handler leaves the token
// usable for retry.
func (s *Service) Consume(ctx context.Context, p *Payload) error {
	if s.used == nil {
		return nil
	}
	ttl := time.Until(p.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.used.MarkUsed(ctx, p.TokenID, ttl)
}

func (s *Service) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
