// Package services содержит бизнес-логику управления клиентами CRM:
// CRUD с кешированием и постановку приветственных писем в очередь.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phoenix-invest/phoenix-crm/internal/lib/rabbitmq"
	"github.com/phoenix-invest/phoenix-crm/internal/lib/sl"
	"github.com/phoenix-invest/phoenix-crm/internal/models"
)

// ClientRepository определяет методы для работы с клиентами в хранилище.
type ClientRepository interface {
	// CreateClient добавляет нового клиента и возвращает его ID.
	CreateClient(ctx context.Context, client models.Client) (int, error)
	// ReadClient возвращает клиента по ID.
	ReadClient(ctx context.Context, id int) (*models.Client, error)
	// UpdateClient обновляет данные клиента по ID.
	UpdateClient(ctx context.Context, client models.Client, id int) (int, error)
	// RemoveClient удаляет клиента по ID и возвращает количество удалённых записей.
	RemoveClient(ctx context.Context, id int) (int, error)
	// ListClients возвращает список клиентов с поиском и пагинацией.
	ListClients(ctx context.Context, search string, limit, offset int) ([]*models.Client, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(key string) error
}

// ClientService реализует бизнес-логику работы с клиентами, включая кеширование
// и публикацию приветственных писем в очередь уведомлений.
type ClientService struct {
	repo    ClientRepository
	cache   Cache
	channel rabbitmq.Channel
	log     *slog.Logger
}

// NewClientService создает новый экземпляр ClientService.
func NewClientService(repo ClientRepository, cache Cache, channel rabbitmq.Channel, log *slog.Logger) *ClientService {
	return &ClientService{
		repo:    repo,
		cache:   cache,
		channel: channel,
		log:     log,
	}
}

// Create создает нового клиента, кеширует его, ставит приветственные письма
// в очередь (по одному на тариф) и возвращает ID.
func (s *ClientService) Create(ctx context.Context, req models.DummyClient) (int, error) {
	periodStart, err := time.Parse("02-01-2006", req.PeriodStart)
	if err != nil {
		return 0, fmt.Errorf("invalid period start: %w", err)
	}
	periodEnd, err := time.Parse("02-01-2006", req.PeriodEnd)
	if err != nil {
		return 0, fmt.Errorf("invalid period end: %w", err)
	}
	if periodEnd.Before(periodStart) {
		return 0, fmt.Errorf("period end must not be earlier than period start")
	}

	client := models.Client{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Tiers:       req.Tiers,
		PeriodStart: periodStart,
		PeriodEnd:   &periodEnd,
		Payment:     req.Payment,
		Amount:      req.Amount,
		Note:        req.Note,
	}

	id, err := s.repo.CreateClient(ctx, client)
	if err != nil {
		return 0, err
	}
	client.ID = id

	s.log.Info("created new client", slog.Int("id", id))

	cacheKey := fmt.Sprintf("client:%d", id)
	if err := s.cache.Set(cacheKey, client, time.Hour); err != nil {
		s.log.Warn("failed to cache client", slog.String("key", cacheKey), slog.Any("err", err))
	}

	s.publishWelcome(&client)

	return id, nil
}

// Read возвращает клиента по ID, используя кеш или репозиторий.
func (s *ClientService) Read(ctx context.Context, id int) (*models.Client, error) {
	var result *models.Client
	cacheKey := fmt.Sprintf("client:%d", id)
	found, err := s.cache.Get(cacheKey, &result)
	if err != nil {
		return nil, err
	}
	if found {
		return result, nil
	}
	result, err = s.repo.ReadClient(ctx, id)
	if err != nil {
		return nil, err
	}

	if result != nil {
		if err := s.cache.Set(cacheKey, result, time.Hour); err != nil {
			s.log.Warn("failed to add to cache", slog.String("key", cacheKey),
				slog.Any("err", err))
		}
	}
	return result, nil
}

// Update обновляет данные клиента и кеш. Поля привязки к Telegram не трогаются.
func (s *ClientService) Update(ctx context.Context, req models.DummyClient, id int) (int, error) {
	periodStart, err := time.Parse("02-01-2006", req.PeriodStart)
	if err != nil {
		return 0, fmt.Errorf("invalid period start: %w", err)
	}
	periodEnd, err := time.Parse("02-01-2006", req.PeriodEnd)
	if err != nil {
		return 0, fmt.Errorf("invalid period end: %w", err)
	}
	if periodEnd.Before(periodStart) {
		return 0, fmt.Errorf("period end must not be earlier than period start")
	}

	client := models.Client{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Tiers:       req.Tiers,
		PeriodStart: periodStart,
		PeriodEnd:   &periodEnd,
		Payment:     req.Payment,
		Amount:      req.Amount,
		Note:        req.Note,
	}
	res, err := s.repo.UpdateClient(ctx, client, id)
	if err != nil {
		return 0, err
	}
	s.log.Info("updated client in storage", slog.Int("id", id))

	cacheKey := fmt.Sprintf("client:%d", id)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate cache", slog.String("key", cacheKey), slog.Any("err", err))
	}
	return res, nil
}

// Remove удаляет клиента по ID и инвалидирует кеш.
func (s *ClientService) Remove(ctx context.Context, id int) (int, error) {
	cacheKey := fmt.Sprintf("client:%d", id)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("key", cacheKey), slog.Any("err", err))
	}

	count, err := s.repo.RemoveClient(ctx, id)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// List возвращает список клиентов с производным статусом вигенции
// для подсветки таблицы в админке.
func (s *ClientService) List(ctx context.Context, search string, limit, offset int) ([]*models.ClientRow, error) {
	clients, err := s.repo.ListClients(ctx, search, limit, offset)
	if err != nil {
		return nil, err
	}

	today := time.Now().UTC()
	rows := make([]*models.ClientRow, 0, len(clients))
	for _, client := range clients {
		rows = append(rows, &models.ClientRow{
			Client: *client,
			Status: models.VigencyStatus(client.PeriodEnd, today),
		})
	}
	return rows, nil
}

// SendWelcome повторно ставит приветственные письма клиента в очередь.
func (s *ClientService) SendWelcome(ctx context.Context, id int) error {
	client, err := s.repo.ReadClient(ctx, id)
	if err != nil {
		return err
	}
	s.publishWelcome(client)
	return nil
}

// publishWelcome публикует одно приветственное письмо на каждый тариф клиента.
// Ошибка публикации логируется и не откатывает создание клиента.
func (s *ClientService) publishWelcome(client *models.Client) {
	var periodEnd time.Time
	if client.PeriodEnd != nil {
		periodEnd = *client.PeriodEnd
	}
	for _, tier := range client.Tiers {
		notice := models.EmailNotice{
			MessageID:   uuid.NewString(),
			Kind:        models.NoticeWelcome,
			ClientID:    client.ID,
			Name:        client.Name,
			Email:       client.Email,
			Tier:        tier,
			PeriodStart: client.PeriodStart,
			PeriodEnd:   periodEnd,
		}
		if err := rabbitmq.PublishMessage(s.channel, "notifications", "welcome", notice); err != nil {
			s.log.Error("failed to publish welcome notice",
				slog.Int("client_id", client.ID), slog.String("tier", tier), sl.Err(err))
		}
	}
}
