package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mystore/internal/platform/config"
)

type Claims struct {
	SessionID string `json:"sid"`
	UserID    int64  `json:"uid"`
	TenantID  *int64 `json:"tid,omitempty"`
	Role      string `json:"role,omitempty"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

type TokenService struct {
	config config.JWTConfig
	issuer string
}

func NewTokenService(cfg config.JWTConfig, issuer string) *TokenService {
	if issuer == "" {
		issuer = "mystore"
	}
	return &TokenService{config: cfg, issuer: issuer}
}

func (s *TokenService) GenerateAccessToken(sessionID string, userID int64, tenantID *int64, role, email string) (string, error) {
	ttl := s.config.AccessTokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	claims := Claims{
		SessionID: sessionID,
		UserID:    userID,
		TenantID:  tenantID,
		Role:      role,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
