package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/phoenix-invest/phoenix-crm/internal/models"
)

type MockClientRepository struct {
	mock.Mock
}

func (m *MockClientRepository) CreateClient(ctx context.Context, client models.Client) (int, error) {
	args := m.Called(ctx, client)
	return args.Int(0), args.Error(1)
}

func (m *MockClientRepository) ReadClient(ctx context.Context, id int) (*models.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

func (m *MockClientRepository) UpdateClient(ctx context.Context, client models.Client, id int) (int, error) {
	args := m.Called(ctx, client, id)
	return args.Int(0), args.Error(1)
}

func (m *MockClientRepository) RemoveClient(ctx context.Context, id int) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockClientRepository) ListClients(ctx context.Context, search string, limit, offset int) ([]*models.Client, error) {
	args := m.Called(ctx, search, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Client), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Set(key string, value any, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCache) Invalidate(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func validRequest() models.DummyClient {
	return models.DummyClient{
		Name:        "Maria Silva",
		Email:       "maria@example.com",
		Phone:       "+5511999990000",
		Tiers:       []string{"Opcoes", "Acoes"},
		PeriodStart: "01-06-2025",
		PeriodEnd:   "01-06-2026",
		Payment:     "pix",
		Amount:      4800,
		Note:        "indicação",
	}
}

func TestClientService_Create(t *testing.T) {
	t.Run("creates client caches it and publishes welcome per tier", func(t *testing.T) {
		repo := new(MockClientRepository)
		cache := new(MockCache)
		channel := new(MockChannel)
		service := NewClientService(repo, cache, channel, newNoopLogger())

		repo.On("CreateClient", mock.Anything, mock.MatchedBy(func(c models.Client) bool {
			return c.Name == "Maria Silva" &&
				c.PeriodStart.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) &&
				c.PeriodEnd != nil &&
				c.PeriodEnd.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
		})).Return(42, nil).Once()
		cache.On("Set", "client:42", mock.Anything, time.Hour).Return(nil).Once()
		channel.On("Publish", "notifications", "welcome", false, false, mock.Anything).
			Return(nil).Twice()

		id, err := service.Create(context.Background(), validRequest())

		assert.NoError(t, err)
		assert.Equal(t, 42, id)
		repo.AssertExpectations(t)
		cache.AssertExpectations(t)
		channel.AssertExpectations(t)
	})

	t.Run("invalid period start format", func(t *testing.T) {
		repo := new(MockClientRepository)
		service := NewClientService(repo, new(MockCache), new(MockChannel), newNoopLogger())

		req := validRequest()
		req.PeriodStart = "2025-06-01"

		_, err := service.Create(context.Background(), req)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid period start")
		repo.AssertNotCalled(t, "CreateClient")
	})

	t.Run("period end before period start", func(t *testing.T) {
		repo := new(MockClientRepository)
		service := NewClientService(repo, new(MockCache), new(MockChannel), newNoopLogger())

		req := validRequest()
		req.PeriodStart = "01-06-2026"
		req.PeriodEnd = "01-06-2025"

		_, err := service.Create(context.Background(), req)

		assert.Error(t, err)
		repo.AssertNotCalled(t, "CreateClient")
	})

	t.Run("repository error is returned", func(t *testing.T) {
		repo := new(MockClientRepository)
		cache := new(MockCache)
		service := NewClientService(repo, cache, new(MockChannel), newNoopLogger())

		repo.On("CreateClient", mock.Anything, mock.Anything).
			Return(0, errors.New("db error")).Once()

		_, err := service.Create(context.Background(), validRequest())

		assert.Error(t, err)
		cache.AssertNotCalled(t, "Set")
	})

	t.Run("publish failure does not fail creation", func(t *testing.T) {
		repo := new(MockClientRepository)
		cache := new(MockCache)
		channel := new(MockChannel)
		service := NewClientService(repo, cache, channel, newNoopLogger())

		repo.On("CreateClient", mock.Anything, mock.Anything).Return(42, nil).Once()
		cache.On("Set", "client:42", mock.Anything, time.Hour).Return(nil).Once()
		channel.On("Publish", "notifications", "welcome", false, false, mock.Anything).
			Return(errors.New("broker down")).Twice()

		id, err := service.Create(context.Background(), validRequest())

		assert.NoError(t, err)
		assert.Equal(t, 42, id)
	})
}

func TestClientService_Read(t *testing.T) {
	t.Run("cache hit skips repository", func(t *testing.T) {
		repo := new(MockClientRepository)
		cache := new(MockCache)
		service := NewClientService(repo, cache, new(MockChannel), newNoopLogger())

		cached := &models.Client{ID: 42, Name: "Maria Silva"}
		cache.On("Get", "client:42", mock.Anything).
			Run(func(args mock.Arguments) {
				ptr := args.Get(1).(**models.Client)
				*ptr = cached
			}).Return(true, nil).Once()

		result, err := service.Read(context.Background(), 42)

		assert.NoError(t, err)
		assert.Equal(t, "Maria Silva", result.Name)
		repo.AssertNotCalled(t, "ReadClient")
	})

	t.Run("cache miss reads repository and fills cache", func(t *testing.T) {
		repo := new(MockClientRepository)
		cache := new(MockCache)
		service := NewClientService(repo, cache, new(MockChannel), newNoopLogger())

		stored := &models.Client{ID: 42, Name: "Maria Silva"}
		cache.On("Get", "client:42", mock.Anything).Return(false, nil).Once()
		repo.On("ReadClient", mock.Anything, 42).Return(stored, nil).Once()
		cache.On("Set", "client:42", stored, time.Hour).Return(nil).Once()

		result, err := service.Read(context.Background(), 42)

		assert.NoError(t, err)
		assert.Equal(t, 42, result.ID)
		repo.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("repository error is returned", func(t *testing.T) {
		repo := new(MockClientRepository)
		cache := new(MockCache)
		service := NewClientService(repo, cache, new(MockChannel), newNoopLogger())

		cache.On("Get", "client:42", mock.Anything).Return(false, nil).Once()
		repo.On("ReadClient", mock.Anything, 42).Return(nil, errors.New("db error")).Once()

		_, err := service.Read(context.Background(), 42)

		assert.Error(t, err)
	})
}

func TestClientService_Update(t *testing.T) {
	repo := new(MockClientRepository)
	cache := new(MockCache)
	service := NewClientService(repo, cache, new(MockChannel), newNoopLogger())

	repo.On("UpdateClient", mock.Anything, mock.Anything, 42).Return(1, nil).Once()
	cache.On("Invalidate", "client:42").Return(nil).Once()

	rows, err := service.Update(context.Background(), validRequest(), 42)

	assert.NoError(t, err)
	assert.Equal(t, 1, rows)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestClientService_Remove(t *testing.T) {
	repo := new(MockClientRepository)
	cache := new(MockCache)
	service := NewClientService(repo, cache, new(MockChannel), newNoopLogger())

	cache.On("Invalidate", "client:42").Return(nil).Once()
	repo.On("RemoveClient", mock.Anything, 42).Return(1, nil).Once()

	count, err := service.Remove(context.Background(), 42)

	assert.NoError(t, err)
	assert.Equal(t, 1, count)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestClientService_List(t *testing.T) {
	repo := new(MockClientRepository)
	service := NewClientService(repo, new(MockCache), new(MockChannel), newNoopLogger())

	expired := time.Now().UTC().AddDate(0, 0, -10)
	expiring := time.Now().UTC().AddDate(0, 0, 10)
	active := time.Now().UTC().AddDate(0, 6, 0)
	repo.On("ListClients", mock.Anything, "", 50, 0).Return([]*models.Client{
		{ID: 1, Name: "Expirada", PeriodEnd: &expired},
		{ID: 2, Name: "Vencendo", PeriodEnd: &expiring},
		{ID: 3, Name: "Ativa", PeriodEnd: &active},
		{ID: 4, Name: "Sem data"},
	}, nil).Once()

	rows, err := service.List(context.Background(), "", 50, 0)

	assert.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, "expired", rows[0].Status)
	assert.Equal(t, "expiring", rows[1].Status)
	assert.Equal(t, "active", rows[2].Status)
	assert.Equal(t, "active", rows[3].Status)
}

func TestClientService_SendWelcome(t *testing.T) {
	repo := new(MockClientRepository)
	channel := new(MockChannel)
	service := NewClientService(repo, new(MockCache), channel, newNoopLogger())

	end := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	repo.On("ReadClient", mock.Anything, 42).Return(&models.Client{
		ID:          42,
		Name:        "Maria Silva",
		Email:       "maria@example.com",
		Tiers:       []string{"Opcoes"},
		PeriodStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   &end,
	}, nil).Once()
	channel.On("Publish", "notifications", "welcome", false, false, mock.Anything).
		Return(nil).Once()

	err := service.SendWelcome(context.Background(), 42)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
	channel.AssertExpectations(t)
}
