package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the structured data carried by the session cookie token.
// The sid ties the token to its revocable session row.
type SessionClaims struct {
	UserID    uuid.UUID `json:"user_id"`
	SessionID uuid.UUID `json:"sid"`
	jwt.RegisteredClaims
}

// ServiceClaims identifies an internal platform service on the publish
// endpoint.
type ServiceClaims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secretKey []byte
	ttl       time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secretKey: []byte(secret), ttl: ttl}
}

// GenerateSessionToken creates the signed token placed in the session cookie.
func (tm *TokenManager) GenerateSessionToken(userID, sessionID uuid.UUID) (string, error) {
	claims := &SessionClaims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.ttl)),
			Subject:   userID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateSessionToken parses and validates the session cookie token.
func (tm *TokenManager) ValidateSessionToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := tm.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// GenerateServiceToken creates a bearer token for an internal service.
func (tm *TokenManager) GenerateServiceToken(service string) (string, error) {
	claims := &ServiceClaims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.ttl)),
			Subject:   service,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateServiceToken parses and validates an internal service token.
func (tm *TokenManager) ValidateServiceToken(tokenString string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	if err := tm.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Service == "" {
		return nil, errors.New("token carries no service identity")
	}
	return claims, nil
}

func (tm *TokenManager) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secretKey, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}
