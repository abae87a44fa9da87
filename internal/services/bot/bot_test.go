package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/phoenix-invest/phoenix-crm/internal/config"
	"github.com/phoenix-invest/phoenix-crm/internal/models"
	"github.com/phoenix-invest/phoenix-crm/internal/storage/repository"
	"github.com/phoenix-invest/phoenix-crm/internal/telegram"
)

type MockClientStore struct {
	mock.Mock
}

func (m *MockClientStore) ReadClient(ctx context.Context, id int) (*models.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

func (m *MockClientStore) SaveValidation(ctx context.Context, id int, telegramID int64, telegramUsername string, now time.Time) (int, error) {
	args := m.Called(ctx, id, telegramID, telegramUsername, now)
	return args.Int(0), args.Error(1)
}

func (m *MockClientStore) MarkDisconnected(ctx context.Context, id int) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

type MockTelegram struct {
	mock.Mock
}

func (m *MockTelegram) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error) {
	args := m.Called(ctx, offset, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]telegram.Update), args.Error(1)
}

func (m *MockTelegram) SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) error {
	args := m.Called(ctx, chatID, text, markup)
	return args.Error(0)
}

func (m *MockTelegram) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	args := m.Called(ctx, callbackID)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var testTiers = map[string]config.TierGroup{
	"Opcoes": {InviteLink: "https://t.me/+opcoes", ChatID: -100111},
}

func newTestBot(store *MockClientStore, tg *MockTelegram) *BotService {
	return NewBotService(store, tg, nil, testTiers, 30*time.Second, nil, newNoopLogger())
}

func activeClient() *models.Client {
	end := time.Now().UTC().AddDate(0, 1, 0)
	return &models.Client{
		ID:          42,
		Name:        "Maria Silva",
		Email:       "maria@example.com",
		Tiers:       []string{"Opcoes"},
		PeriodStart: time.Now().UTC().AddDate(0, -6, 0),
		PeriodEnd:   &end,
	}
}

func startUpdate(text string) telegram.Update {
	return telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			Chat: telegram.Chat{ID: 555},
			From: &telegram.User{ID: 777, Username: "maria_tg"},
			Text: text,
		},
	}
}

func callbackUpdate(data string) telegram.Update {
	return telegram.Update{
		UpdateID: 2,
		CallbackQuery: &telegram.CallbackQuery{
			ID:      "cb-1",
			From:    telegram.User{ID: 777, Username: "maria_tg"},
			Message: &telegram.Message{Chat: telegram.Chat{ID: 555}},
			Data:    data,
		},
	}
}

func TestBotService_HandleStart(t *testing.T) {
	tests := []struct {
		name       string
		update     telegram.Update
		setupMocks func(*MockClientStore, *MockTelegram)
	}{
		{
			name:   "start without id replies invalid link and touches nothing",
			update: startUpdate("/start"),
			setupMocks: func(_ *MockClientStore, tg *MockTelegram) {
				tg.On("SendMessage", mock.Anything, int64(555),
					mock.MatchedBy(func(text string) bool { return strings.Contains(text, "Link inválido") }),
					(*telegram.InlineKeyboardMarkup)(nil)).Return(nil).Once()
			},
		},
		{
			name:   "start with non numeric id replies invalid link",
			update: startUpdate("/start abc"),
			setupMocks: func(_ *MockClientStore, tg *MockTelegram) {
				tg.On("SendMessage", mock.Anything, int64(555), mock.Anything,
					(*telegram.InlineKeyboardMarkup)(nil)).Return(nil).Once()
			},
		},
		{
			name:   "start with known id replies with validate button",
			update: startUpdate("/start 42"),
			setupMocks: func(store *MockClientStore, tg *MockTelegram) {
				store.On("ReadClient", mock.Anything, 42).Return(activeClient(), nil).Once()
				tg.On("SendMessage", mock.Anything, int64(555), mock.Anything,
					mock.MatchedBy(func(markup *telegram.InlineKeyboardMarkup) bool {
						return markup != nil &&
							markup.InlineKeyboard[0][0].CallbackData == "validar:42"
					})).Return(nil).Once()
			},
		},
		{
			name:   "start with unknown id replies not found",
			update: startUpdate("/start 99"),
			setupMocks: func(store *MockClientStore, tg *MockTelegram) {
				store.On("ReadClient", mock.Anything, 99).Return(nil, repository.ErrClientNotFound).Once()
				tg.On("SendMessage", mock.Anything, int64(555),
					mock.MatchedBy(func(text string) bool { return strings.Contains(text, "não encontrado") }),
					(*telegram.InlineKeyboardMarkup)(nil)).Return(nil).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockClientStore)
			tg := new(MockTelegram)
			service := newTestBot(store, tg)

			tt.setupMocks(store, tg)

			service.HandleUpdate(context.Background(), tt.update)

			store.AssertExpectations(t)
			tg.AssertExpectations(t)
		})
	}
}

func TestBotService_HandleCallback_Grant(t *testing.T) {
	store := new(MockClientStore)
	tg := new(MockTelegram)
	service := newTestBot(store, tg)

	tg.On("AnswerCallbackQuery", mock.Anything, "cb-1").Return(nil).Once()
	store.On("ReadClient", mock.Anything, 42).Return(activeClient(), nil).Once()
	store.On("SaveValidation", mock.Anything, 42, int64(777), "maria_tg", mock.Anything).
		Return(1, nil).Once()
	tg.On("SendMessage", mock.Anything, int64(555),
		mock.MatchedBy(func(text string) bool {
			return strings.Contains(text, "Acesso Validado") &&
				strings.Contains(text, "https://t.me/+opcoes")
		}), (*telegram.InlineKeyboardMarkup)(nil)).Return(nil).Once()

	service.HandleUpdate(context.Background(), callbackUpdate("validar:42"))

	store.AssertExpectations(t)
	tg.AssertExpectations(t)
}

func TestBotService_HandleCallback_TierWithoutGroup(t *testing.T) {
	store := new(MockClientStore)
	tg := new(MockTelegram)
	service := newTestBot(store, tg)

	client := activeClient()
	client.Tiers = []string{"Small Caps"}

	tg.On("AnswerCallbackQuery", mock.Anything, "cb-1").Return(nil).Once()
	store.On("ReadClient", mock.Anything, 42).Return(client, nil).Once()
	store.On("SaveValidation", mock.Anything, 42, int64(777), "maria_tg", mock.Anything).
		Return(1, nil).Once()
	tg.On("SendMessage", mock.Anything, int64(555),
		mock.MatchedBy(func(text string) bool {
			return strings.Contains(text, "Nenhum grupo configurado")
		}), (*telegram.InlineKeyboardMarkup)(nil)).Return(nil).Once()

	service.HandleUpdate(context.Background(), callbackUpdate("validar:42"))

	store.AssertExpectations(t)
	tg.AssertExpectations(t)
}

func TestBotService_HandleCallback_Expired(t *testing.T) {
	store := new(MockClientStore)
	tg := new(MockTelegram)
	service := newTestBot(store, tg)

	client := activeClient()
	end := time.Now().UTC().AddDate(0, 0, -3)
	client.PeriodEnd = &end

	tg.On("AnswerCallbackQuery", mock.Anything, "cb-1").Return(nil).Once()
	store.On("ReadClient", mock.Anything, 42).Return(client, nil).Once()
	store.On("MarkDisconnected", mock.Anything, 42).Return(1, nil).Once()
	tg.On("SendMessage", mock.Anything, int64(555),
		mock.MatchedBy(func(text string) bool { return strings.Contains(text, "venceu") }),
		(*telegram.InlineKeyboardMarkup)(nil)).Return(nil).Once()

	service.HandleUpdate(context.Background(), callbackUpdate("validar:42"))

	store.AssertExpectations(t)
	tg.AssertExpectations(t)
	store.AssertNotCalled(t, "SaveValidation")
}

func TestBotService_HandleCallback_NotFound(t *testing.T) {
	store := new(MockClientStore)
	tg := new(MockTelegram)
	service := newTestBot(store, tg)

	tg.On("AnswerCallbackQuery", mock.Anything, "cb-1").Return(nil).Once()
	store.On("ReadClient", mock.Anything, 99).Return(nil, repository.ErrClientNotFound).Once()
	tg.On("SendMessage", mock.Anything, int64(555),
		mock.MatchedBy(func(text string) bool { return strings.Contains(text, "não encontrado") }),
		(*telegram.InlineKeyboardMarkup)(nil)).Return(nil).Once()

	service.HandleUpdate(context.Background(), callbackUpdate("validar:99"))

	store.AssertExpectations(t)
	tg.AssertExpectations(t)
}

func TestBotService_HandleUpdate_IgnoresUnrelated(t *testing.T) {
	store := new(MockClientStore)
	tg := new(MockTelegram)
	service := newTestBot(store, tg)

	service.HandleUpdate(context.Background(), telegram.Update{
		UpdateID: 3,
		Message: &telegram.Message{
			Chat: telegram.Chat{ID: 555},
			Text: "hello there",
		},
	})

	store.AssertNotCalled(t, "ReadClient")
	tg.AssertNotCalled(t, "SendMessage")
}
