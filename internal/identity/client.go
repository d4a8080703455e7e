// Package identity — клиент административного API Supabase Auth (GoTrue).
// Членство хранится в user_metadata пользователя: membership_type,
// subscription_expires_at и updated_at.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	auth "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"

	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

// Client обращается к /auth/v1/admin с ключом service role.
type Client struct {
	api auth.Client
}

// NewClient создаёт клиент для проекта Supabase по адресу baseURL.
func NewClient(baseURL, serviceRoleKey string) *Client {
	api := auth.New("", serviceRoleKey).
		WithCustomAuthURL(strings.TrimRight(baseURL, "/") + "/auth/v1").
		WithToken(serviceRoleKey).
		WithClient(http.Client{Timeout: 10 * time.Second})
	return &Client{api: api}
}

// GetUser возвращает пользователя с его членством.
// Для несуществующего пользователя возвращается models.ErrUserNotFound.
func (c *Client) GetUser(ctx context.Context, userID string) (*models.User, error) {
	const op = "identity.GetUser"
	id, err := parseID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.api.AdminGetUser(types.AdminGetUserRequest{UserID: id})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateError(err))
	}
	u, err := toModel(resp.User)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateMembership записывает членство в user_metadata пользователя.
// Остальные ключи user_metadata сервер Supabase сохраняет.
func (c *Client) UpdateMembership(ctx context.Context, userID string, m models.Membership, updatedAt time.Time) error {
	const op = "identity.UpdateMembership"
	id, err := parseID(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = c.api.AdminUpdateUser(types.AdminUpdateUserRequest{
		UserID:       id,
		UserMetadata: membershipMetadata(m, updatedAt),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateError(err))
	}
	return nil
}

func parseID(ctx context.Context, userID string) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		// в Supabase идентификаторы пользователей только UUID
		return uuid.Nil, models.ErrUserNotFound
	}
	return id, nil
}

// translateError сводит ответ 404 к models.ErrUserNotFound. auth-go не
// возвращает типизированных ошибок, код статуса есть только в тексте.
func translateError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "status code 404") || strings.Contains(strings.ToLower(msg), "user not found") {
		return fmt.Errorf("%w: %s", models.ErrUserNotFound, msg)
	}
	return err
}
