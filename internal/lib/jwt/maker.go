// Package jwt проверяет access‑токены Supabase Auth (HS256, общий секрет проекта)
// и выпускает такие же токены для тестов и CLI.
package jwt

import (
	"time"
)

// Verifier описывает проверку access‑токена.
type Verifier interface {
	ParseToken(tokenStr string) (*Claims, error)
}

// Maker выпускает и проверяет токены, подписанные секретом проекта Supabase.
type Maker struct {
	secretKey string        // JWT secret проекта
	tokenTTL  time.Duration // время жизни выпускаемых токенов
}

// NewMaker создаёт Maker на основе секрета и TTL.
func NewMaker(secretKey string, ttl time.Duration) *Maker {
	return &Maker{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
