package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"adekit/internal/config"
	"adekit/internal/domain"
)

const tokenAudience = "adekit-api"

// Claims are the gateway token claims. Subject names the caller.
type Claims struct {
	jwt.RegisteredClaims
	TenantID uuid.UUID `json:"tenant_id"`
}

// TokenInput is the DTO for minting a gateway token.
type TokenInput struct {
	TenantID uuid.UUID
	Subject  string
	// TTL overrides the configured lifetime when positive.
	TTL time.Duration
}

// Token is a signed gateway token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AuthService mints and validates gateway bearer tokens.
type AuthService interface {
	Mint(input TokenInput) (*Token, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type authService struct {
	cfg *config.JWTConfig
	now func() time.Time
}

// NewAuthService creates a new AuthService implementation.
func NewAuthService(cfg *config.JWTConfig) AuthService {
	return &authService{cfg: cfg, now: time.Now}
}

func (s *authService) Mint(input TokenInput) (*Token, error) {
	if input.TenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant id is required: %w", domain.ErrInvalidRequest)
	}
	if s.cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is not configured")
	}
	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.cfg.TTL
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	subject := input.Subject
	if subject == "" {
		subject = "cli"
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Audience:  jwt.ClaimStrings{tokenAudience},
		},
		TenantID: input.TenantID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &Token{AccessToken: signed, ExpiresAt: expiresAt}, nil
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w: %w", domain.ErrUnauthorized, err)
	}
	if !token.Valid || claims.TenantID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}
