package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audience — значение aud у токенов вошедших пользователей Supabase.
const Audience = "authenticated"

// ErrNoSubject возвращается для токена без идентификатора пользователя.
var ErrNoSubject = errors.New("token has no subject")

// AppMetadata — часть app_metadata, которую сервер Supabase не даёт менять клиенту.
type AppMetadata struct {
	IsAdmin bool   `json:"is_admin,omitempty"`
	Role    string `json:"role,omitempty"`
}

// Claims — поля access‑токена Supabase, используемые сервисом.
type Claims struct {
	Email       string      `json:"email"`
	Role        string      `json:"role"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// UserID возвращает идентификатор пользователя (sub).
func (c *Claims) UserID() string {
	return c.Subject
}

// Admin сообщает, выставлен ли явный признак администратора.
func (c *Claims) Admin() bool {
	return c.AppMetadata.IsAdmin || c.AppMetadata.Role == "admin"
}

// GenerateToken выпускает токен пользователя userID с email и признаком администратора.
func (j *Maker) GenerateToken(userID, email string, admin bool) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  Audience,
		AppMetadata: AppMetadata{
			IsAdmin: admin,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// ParseToken проверяет подпись, срок действия и аудиторию токена.
func (j *Maker) ParseToken(tokenStr string) (*Claims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoSubject)
	}
	return claims, nil
}
