package auth

import (
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/google/uuid"

	"github.com/careconnect/identity/internal/account"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// TokenClaims are the claims carried by a session token.
type TokenClaims struct {
	AccountID string       `json:"account_id"`
	Email     string       `json:"email"`
	Role      account.Role `json:"role"`
	IssuedAt  time.Time    `json:"iat"`
	ExpiresAt time.Time    `json:"exp"`
}

// TokenIssuer mints and verifies session tokens.
type TokenIssuer interface {
	Mint(accountID uuid.UUID, email string, role account.Role) (string, error)
	Verify(token string) (*TokenClaims, error)
}

// PasetoIssuer implements TokenIssuer with PASETO v4.local (symmetric
// XChaCha20-Poly1305).
type PasetoIssuer struct {
	symmetricKey paseto.V4SymmetricKey
	duration     time.Duration
}

func NewPasetoIssuer(symmetricKey []byte, duration time.Duration) (*PasetoIssuer, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be exactly 32 bytes, got %d", len(symmetricKey))
	}

	key, err := paseto.V4SymmetricKeyFromBytes(symmetricKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symmetric key: %w", err)
	}

	return &PasetoIssuer{symmetricKey: key, duration: duration}, nil
}

func (s *PasetoIssuer) Mint(accountID uuid.UUID, email string, role account.Role) (string, error) {
	now := time.Now()

	token := paseto.NewToken()
	token.SetIssuedAt(now)
	token.SetExpiration(now.Add(s.duration))
	token.SetString("account_id", accountID.String())
	token.SetString("email", email)
	token.SetString("role", string(role))

	return token.V4Encrypt(s.symmetricKey, nil), nil
}

func (s *PasetoIssuer) Verify(tokenStr string) (*TokenClaims, error) {
	parser := paseto.NewParser()

	token, err := parser.ParseV4Local(s.symmetricKey, tokenStr, nil)
	if err != nil {
		// The parser enforces expiration by default.
		if errors.Is(err, &paseto.RuleError{}) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	accountID, err := token.GetString("account_id")
	if err != nil {
		return nil, ErrInvalidToken
	}
	email, err := token.GetString("email")
	if err != nil {
		return nil, ErrInvalidToken
	}
	role, err := token.GetString("role")
	if err != nil {
		return nil, ErrInvalidToken
	}
	issuedAt, err := token.GetIssuedAt()
	if err != nil {
		return nil, ErrInvalidToken
	}
	expiresAt, err := token.GetExpiration()
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &TokenClaims{
		AccountID: accountID,
		Email:     email,
		Role:      account.Role(role),
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}
