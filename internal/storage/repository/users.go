package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

const userColumns = `id, email, membership_type, subscription_expires_at, is_admin, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		u      models.User
		tier   string
		expiry sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &tier, &expiry, &u.IsAdmin, &u.UpdatedAt); err != nil {
		return models.User{}, err
	}
	u.Tier = models.Tier(tier)
	if expiry.Valid {
		t := expiry.Time
		u.ExpiresAt = &t
	}
	u.Membership = u.Membership.Normalize()
	return u, nil
}

// GetUser возвращает строку пользователя. Отсутствие строки или самой таблицы
// возвращается как models.ErrUserNotFound.
func (s *Storage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	case isUndefinedTable(err):
		s.log.Warn("users table is missing, treating as empty", slog.String("op", op))
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

// UpsertMembership записывает членство пользователя, создавая строку при необходимости.
// Пустой email не затирает сохранённый.
func (s *Storage) UpsertMembership(ctx context.Context, userID, email string, m models.Membership, updatedAt time.Time) error {
	const op = "storage.UpsertMembership"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	m = m.Normalize()
	var expiry sql.NullTime
	if m.ExpiresAt != nil {
		expiry = sql.NullTime{Time: *m.ExpiresAt, Valid: true}
	}

	query := `INSERT INTO users (id, email, membership_type, subscription_expires_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (id) DO UPDATE
			  SET membership_type = EXCLUDED.membership_type,
			      subscription_expires_at = EXCLUDED.subscription_expires_at,
			      updated_at = EXCLUDED.updated_at,
			      email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email)`
	if _, err := s.DB.ExecContext(ctx, query, userID, email, m.Tier.String(), expiry, updatedAt.UTC()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListLapsedSubscriptions возвращает пользователей с подпиской, истёкшей строго раньше now.
func (s *Storage) ListLapsedSubscriptions(ctx context.Context, now time.Time) ([]models.User, error) {
	const op = "storage.ListLapsedSubscriptions"
	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE membership_type = 'subscription'
			    AND subscription_expires_at IS NOT NULL
			    AND subscription_expires_at < $1
			  ORDER BY subscription_expires_at, id`
	return s.list(ctx, op, query, now.UTC())
}

// ListMembers возвращает страницу пользователей, последние изменённые первыми.
func (s *Storage) ListMembers(ctx context.Context, limit, offset int) ([]models.User, error) {
	const op = "storage.ListMembers"
	query := `SELECT ` + userColumns + `
			  FROM users
			  ORDER BY updated_at DESC, id
			  LIMIT $1 OFFSET $2`
	return s.list(ctx, op, query, limit, offset)
}

func (s *Storage) list(ctx context.Context, op, query string, args ...any) ([]models.User, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if isUndefinedTable(err) {
		s.log.Warn("users table is missing, treating as empty", slog.String("op", op))
		return []models.User{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error("failed to close rows", slog.String("op", op), sl.Err(err))
		}
	}()

	result := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
