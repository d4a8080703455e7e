// Package repository реализует реляционное зеркало членства (таблицу users
// в PostgreSQL). Таблица используется для выборок (очистка истёкших подписок,
// список участников); авторитетной копией остаётся хранилище идентичностей.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB  *sql.DB
	log *slog.Logger
}

// New создаёт подключение к PostgreSQL и проверяет его.
func New(storageConnectionString string, log *slog.Logger) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewWithDB(db, log), nil
}

// NewWithDB оборачивает уже открытое соединение.
func NewWithDB(db *sql.DB, log *slog.Logger) *Storage {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Storage{DB: db, log: log}
}

// Close закрывает соединение с базой.
func (s *Storage) Close() error {
	return s.DB.Close()
}

// CheckDatabaseReady проверяет, что таблица users создана.
func CheckDatabaseReady(ctx context.Context, storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'users'
    )`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check table users: %w", err)
	}
	if !exists {
		return errors.New("required table users missing")
	}
	return nil
}

// isUndefinedTable сообщает, что запрос упал из‑за отсутствующей таблицы.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}
