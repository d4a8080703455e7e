// Package models содержит доменную модель пользователя и его членства (membership):
// уровень доступа, дату окончания оплаченной подписки и признак администратора.
// Структуры используются в бизнес‑логике, хранилищах и HTTP‑обработчиках.
package models

import (
	"errors"
	"time"
)

// User представляет зарегистрированного пользователя сервиса.
type User struct {
	ID        string    `json:"id"`    // Идентификатор пользователя в Supabase Auth
	Email     string    `json:"email"` // Электронная почта
	IsAdmin   bool      `json:"is_admin"`
	UpdatedAt time.Time `json:"updated_at"`
	Membership
}

// Principal описывает аутентифицированного вызывающего HTTP‑запроса.
type Principal struct {
	UserID  string
	Email   string
	IsAdmin bool // явный флаг из app_metadata токена
}

// ErrUserNotFound возвращается хранилищами, когда пользователя с таким идентификатором нет.
var ErrUserNotFound = errors.New("user not found")
