package auth

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// AdminClaims содержит пользовательские поля токена админ-сессии.
type AdminClaims struct {
	Actor string `json:"actor"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// SessionService выпускает и проверяет короткоживущие JWT токены для
// админ-панели. Подпись HS256 одним статическим секретом: ротация
// ключей для внутренней панели с одним оператором не нужна.
type SessionService struct {
	secret     []byte
	defaultTTL time.Duration
}

// NewSessionService создает сервис сессионных токенов.
func NewSessionService(secret string, defaultTTLSeconds int) (*SessionService, error) {
	if secret == "" {
		return nil, errors.New("session signing secret is required")
	}
	if len(secret) < 32 {
		return nil, errors.New("session signing secret must be at least 32 characters")
	}
	if defaultTTLSeconds <= 0 {
		defaultTTLSeconds = 900
	}

	return &SessionService{
		secret:     []byte(secret),
		defaultTTL: time.Duration(defaultTTLSeconds) * time.Second,
	}, nil
}

// GenerateToken выпускает токен для указанного оператора. Нулевой ttl
// означает срок жизни по умолчанию.
func (s *SessionService) GenerateToken(actor string, ttl time.Duration) (string, time.Time, error) {
	if actor == "" {
		return "", time.Time{}, errors.New("actor is required for session token")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &AdminClaims{
		Actor: actor,
		Role:  "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "verify-api",
			Subject:   actor,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		log.Printf("[Session] Failed to sign session token for %s: %v", actor, err)
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ParseToken проверяет подпись и срок действия токена.
func (s *SessionService) ParseToken(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) {
			switch {
			case ve.Errors&jwt.ValidationErrorMalformed != 0:
				return nil, errors.New("token is malformed")
			case ve.Errors&jwt.ValidationErrorExpired != 0:
				return nil, errors.New("token is expired")
			case ve.Errors&jwt.ValidationErrorNotValidYet != 0:
				return nil, errors.New("token not valid yet")
			case ve.Errors&jwt.ValidationErrorSignatureInvalid != 0:
				return nil, errors.New("token signature is invalid")
			}
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("token is invalid")
	}
	return claims, nil
}
