package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/phoenix-invest/phoenix-crm/internal/models"
)

const clientColumns = `id, name, email, phone, tiers, period_start, period_end,
	      payment, amount, note, telegram_id, telegram_username, telegram_connected,
	      last_sync_at, removed_at, notices_sent`

// CreateClient вставляет новую запись клиента и возвращает её ID.
func (s *Storage) CreateClient(ctx context.Context, client models.Client) (int, error) {
	const op = "storage.CreateClient"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO clients (name, email, phone, tiers, period_start, period_end,
			      payment, amount, note)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		client.Name, client.Email, client.Phone, JoinTiers(client.Tiers),
		client.PeriodStart, client.PeriodEnd, client.Payment, client.Amount,
		client.Note).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// ReadClient возвращает данные клиента по его ID.
func (s *Storage) ReadClient(ctx context.Context, id int) (*models.Client, error) {
	const op = "storage.ReadClient"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + clientColumns + `
			  FROM clients WHERE id = $1`
	row := s.DB.QueryRowContext(ctx, query, id)

	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrClientNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

// UpdateClient обновляет контактные данные, тарифы и вигенцию клиента
// и возвращает количество изменённых строк. Поля привязки к Telegram
// обновляются отдельными методами и здесь не трогаются.
func (s *Storage) UpdateClient(ctx context.Context, client models.Client, id int) (int, error) {
	const op = "storage.UpdateClient"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE clients
			  SET name = $1, email = $2, phone = $3, tiers = $4, period_start = $5,
			      period_end = $6, payment = $7, amount = $8, note = $9
			  WHERE id = $10`
	result, err := s.DB.ExecContext(ctx, query,
		client.Name, client.Email, client.Phone, JoinTiers(client.Tiers),
		client.PeriodStart, client.PeriodEnd, client.Payment, client.Amount,
		client.Note, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// RemoveClient удаляет запись клиента по ID и возвращает количество удалённых строк.
func (s *Storage) RemoveClient(ctx context.Context, id int) (int, error) {
	const op = "storage.RemoveClient"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM clients WHERE id = $1`
	result, err := s.DB.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// ListClients возвращает список клиентов с пагинацией и необязательным
// поиском по имени, email или телефону.
func (s *Storage) ListClients(ctx context.Context, search string, limit, offset int) ([]*models.Client, error) {
	const op = "storage.ListClients"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + clientColumns + `
			  FROM clients
			  WHERE $1 = '' OR name ILIKE '%' || $1 || '%'
			     OR email ILIKE '%' || $1 || '%'
			     OR phone ILIKE '%' || $1 || '%'
			  ORDER BY id
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, client)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListExpiredConnected возвращает кандидатов на отзыв доступа: записи
// с подключенным Telegram, без отметки removed_at и с истекшей вигенцией.
// Записи с неизвестной датой окончания (period_end IS NULL) не попадают
// в выборку.
func (s *Storage) ListExpiredConnected(ctx context.Context, today time.Time) ([]*models.Client, error) {
	const op = "storage.ListExpiredConnected"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + clientColumns + `
			  FROM clients
			  WHERE telegram_connected = true
			    AND telegram_id IS NOT NULL
			    AND removed_at IS NULL
			    AND period_end IS NOT NULL
			    AND period_end < $1::DATE
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, today)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, client)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListRenewalCandidates возвращает записи, до конца вигенции которых
// осталось не больше maxLead дней. Решение о конкретном сроке напоминания
// принимает вызывающая сторона.
func (s *Storage) ListRenewalCandidates(ctx context.Context, today time.Time, maxLead int) ([]*models.Client, error) {
	const op = "storage.ListRenewalCandidates"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + clientColumns + `
			  FROM clients
			  WHERE period_end IS NOT NULL
			    AND period_end >= $1::DATE
			    AND period_end <= $1::DATE + $2::INTEGER
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, today, maxLead)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, client)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// SaveValidation сохраняет identity Telegram после успешной валидации:
// проставляет telegram_id, username, флаг подключения и момент синхронизации,
// а также сбрасывает removed_at, чтобы продлённый клиент снова попадал
// в активные. Возвращает количество изменённых строк.
func (s *Storage) SaveValidation(ctx context.Context, id int, telegramID int64, telegramUsername string, now time.Time) (int, error) {
	const op = "storage.SaveValidation"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE clients
			  SET telegram_id = $1, telegram_username = $2, telegram_connected = true,
			      last_sync_at = $3, removed_at = NULL
			  WHERE id = $4`
	result, err := s.DB.ExecContext(ctx, query, telegramID, telegramUsername, now, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// MarkDisconnected снимает флаг подключения без отметки об отзыве.
// Используется при валидации с истекшей вигенцией: identity остаётся,
// но доступ не выдаётся.
func (s *Storage) MarkDisconnected(ctx context.Context, id int) (int, error) {
	const op = "storage.MarkDisconnected"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE clients
			  SET telegram_connected = false
			  WHERE id = $1`
	result, err := s.DB.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// MarkRevoked фиксирует отзыв доступа: снимает флаг подключения,
// проставляет removed_at и переводит запись на резервный тариф.
// Обновление условное — срабатывает только для подключенной и ещё
// не отозванной записи, поэтому при гонке двух прогонов цикла второй
// получает 0 изменённых строк и не производит действий повторно.
func (s *Storage) MarkRevoked(ctx context.Context, id int, now time.Time, fallbackTier string) (int, error) {
	const op = "storage.MarkRevoked"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE clients
			  SET telegram_connected = false, removed_at = $1, tiers = $2
			  WHERE id = $3
			    AND telegram_connected = true
			    AND removed_at IS NULL`
	result, err := s.DB.ExecContext(ctx, query, now, fallbackTier, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// MarkNoticeSent дописывает срок отправленного напоминания в notices_sent.
// Повторное добавление того же срока не производится.
func (s *Storage) MarkNoticeSent(ctx context.Context, id, lead int) error {
	const op = "storage.MarkNoticeSent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE clients
			  SET notices_sent = CASE
			      WHEN notices_sent = '' THEN $1::TEXT
			      ELSE notices_sent || ',' || $1::TEXT
			  END
			  WHERE id = $2
			    AND NOT (string_to_array(notices_sent, ',') @> ARRAY[$1::TEXT])`
	_, err := s.DB.ExecContext(ctx, query, fmt.Sprintf("%d", lead), id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// rowScanner покрывает *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*models.Client, error) {
	var (
		client           models.Client
		tiers            string
		phone            sql.NullString
		periodEnd        sql.NullTime
		payment          sql.NullString
		note             sql.NullString
		telegramID       sql.NullInt64
		telegramUsername sql.NullString
		lastSyncAt       sql.NullTime
		removedAt        sql.NullTime
		noticesSent      string
	)

	if err := row.Scan(&client.ID, &client.Name, &client.Email, &phone, &tiers,
		&client.PeriodStart, &periodEnd, &payment, &client.Amount, &note,
		&telegramID, &telegramUsername, &client.TelegramConnected,
		&lastSyncAt, &removedAt, &noticesSent); err != nil {
		return nil, err
	}

	client.Phone = phone.String
	client.Tiers = ParseTiers(tiers)
	client.Payment = payment.String
	client.Note = note.String
	client.TelegramUsername = telegramUsername.String
	client.NoticesSent = ParseNotices(noticesSent)
	if periodEnd.Valid {
		client.PeriodEnd = &periodEnd.Time
	}
	if telegramID.Valid {
		client.TelegramID = &telegramID.Int64
	}
	if lastSyncAt.Valid {
		client.LastSyncAt = &lastSyncAt.Time
	}
	if removedAt.Valid {
		client.RemovedAt = &removedAt.Time
	}
	return &client, nil
}
