// Package repository реализует хранилище данных на основе PostgreSQL
// для управления клиентами CRM и операторами админки. Предоставляет методы
// создания, чтения, обновления и удаления записей, выборки кандидатов
// для цикла отзыва доступов и напоминаний о продлении.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrClientNotFound возвращается, когда запись клиента отсутствует в хранилище.
var ErrClientNotFound = errors.New("client not found")

// Storage инкапсулирует соединение с базой данных PostgreSQL
// и реализует методы работы с клиентами и операторами.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady проверяет, что таблица клиентов доступна.
// Используется health-эндпоинтом и ожиданием готовности при старте.
func (s *Storage) CheckDatabaseReady(ctx context.Context) error {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'clients'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table clients missing or query error: %w", err)
	}
	return nil
}
