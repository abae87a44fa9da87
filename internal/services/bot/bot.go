// Package services реализует обработку входящих событий Telegram-бота:
// команду /start с идентификатором клиента и callback валидации доступа.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/phoenix-invest/phoenix-crm/internal/config"
	"github.com/phoenix-invest/phoenix-crm/internal/ledger"
	"github.com/phoenix-invest/phoenix-crm/internal/lib/sl"
	"github.com/phoenix-invest/phoenix-crm/internal/metrics"
	"github.com/phoenix-invest/phoenix-crm/internal/models"
	"github.com/phoenix-invest/phoenix-crm/internal/storage/repository"
	"github.com/phoenix-invest/phoenix-crm/internal/telegram"
)

// callbackPrefix префикс callback-данных кнопки валидации.
const callbackPrefix = "validar:"

// ClientStore описывает методы хранилища, нужные для валидации клиента.
type ClientStore interface {
	ReadClient(ctx context.Context, id int) (*models.Client, error)
	SaveValidation(ctx context.Context, id int, telegramID int64, telegramUsername string, now time.Time) (int, error)
	MarkDisconnected(ctx context.Context, id int) (int, error)
}

// TelegramAPI описывает часть Bot API, используемую обработчиком и поллером.
type TelegramAPI interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
}

// CursorStore хранит offset getUpdates между перезапусками бота.
type CursorStore interface {
	GetUpdateCursor(ctx context.Context) (int64, error)
	SetUpdateCursor(ctx context.Context, cursor int64) error
}

// BotService обрабатывает события Telegram и применяет решения валидации.
type BotService struct {
	store       ClientStore
	tg          TelegramAPI
	cursor      CursorStore
	tiers       map[string]config.TierGroup
	pollTimeout time.Duration
	metrics     *metrics.Metrics
	log         *slog.Logger
}

// NewBotService создает новый экземпляр BotService.
func NewBotService(store ClientStore, tg TelegramAPI, cursor CursorStore,
	tiers map[string]config.TierGroup, pollTimeout time.Duration,
	m *metrics.Metrics, log *slog.Logger) *BotService {
	return &BotService{
		store:       store,
		tg:          tg,
		cursor:      cursor,
		tiers:       tiers,
		pollTimeout: pollTimeout,
		metrics:     m,
		log:         log,
	}
}

// Run запускает long poll обновлений Telegram. Курсор сохраняется после
// каждой пачки, чтобы перезапуск не переигрывал обработанные события.
// Останавливается по ctx.
func (s *BotService) Run(ctx context.Context) {
	offset, err := s.cursor.GetUpdateCursor(ctx)
	if err != nil {
		s.log.Error("failed to load update cursor, starting from zero", sl.Err(err))
		offset = 0
	}
	s.log.Info("bot poller started", slog.Int64("offset", offset))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("bot poller stopped")
			return
		default:
		}

		updates, err := s.tg.GetUpdates(ctx, offset, s.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.log.Error("failed to get updates", sl.Err(err))
			time.Sleep(3 * time.Second)
			continue
		}

		for _, update := range updates {
			s.HandleUpdate(ctx, update)
			offset = update.UpdateID + 1
		}

		if len(updates) > 0 {
			if err := s.cursor.SetUpdateCursor(ctx, offset); err != nil {
				s.log.Error("failed to persist update cursor", sl.Err(err))
			}
		}
	}
}

// HandleUpdate разбирает одно обновление: команду /start или callback валидации.
// Прочие события игнорируются.
func (s *BotService) HandleUpdate(ctx context.Context, update telegram.Update) {
	if update.Message != nil && strings.HasPrefix(update.Message.Text, "/start") {
		s.handleStart(ctx, update.Message)
		return
	}
	if update.CallbackQuery != nil {
		s.handleCallback(ctx, update.CallbackQuery)
	}
}

// handleStart отвечает на /start <id> кнопкой валидации доступа.
// Без числового идентификатора ссылка считается невалидной,
// хранилище не трогается.
func (s *BotService) handleStart(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID

	parts := strings.Fields(msg.Text)
	if len(parts) < 2 {
		s.sendInvalidLink(ctx, chatID)
		return
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id <= 0 {
		s.sendInvalidLink(ctx, chatID)
		return
	}

	client, err := s.store.ReadClient(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			s.send(ctx, chatID, "❌ Cliente não encontrado.\nPeça um novo link ao suporte.")
			return
		}
		s.log.Error("failed to read client", slog.Int("id", id), sl.Err(err))
		return
	}

	markup := &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: "🔓 VALIDAR ACESSO", CallbackData: fmt.Sprintf("%s%d", callbackPrefix, id)},
		}},
	}
	text := fmt.Sprintf("👋 Olá <b>%s</b>!\n\n"+
		"Clique no botão abaixo para <b>validar seu acesso</b> às carteiras do Projeto Phoenix.",
		client.Name)
	if err := s.tg.SendMessage(ctx, chatID, text, markup); err != nil {
		s.log.Error("failed to send start reply", sl.Err(err))
	}
}

// handleCallback применяет решение валидации к нажатию кнопки.
func (s *BotService) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if !strings.HasPrefix(cb.Data, callbackPrefix) || cb.Message == nil {
		return
	}
	if err := s.tg.AnswerCallbackQuery(ctx, cb.ID); err != nil {
		s.log.Warn("failed to answer callback", sl.Err(err))
	}

	chatID := cb.Message.Chat.ID
	id, err := strconv.Atoi(strings.TrimPrefix(cb.Data, callbackPrefix))
	if err != nil || id <= 0 {
		s.sendInvalidLink(ctx, chatID)
		return
	}

	client, err := s.store.ReadClient(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrClientNotFound) {
		s.log.Error("failed to read client", slog.Int("id", id), sl.Err(err))
		return
	}

	now := time.Now().UTC()
	switch ledger.DecideValidation(client, now) {
	case ledger.ValidationNotFound:
		s.metrics.IncValidation("not_found")
		s.send(ctx, chatID, "❌ Cliente não encontrado no cadastro.")

	case ledger.ValidationExpired:
		s.metrics.IncValidation("expired")
		if _, err := s.store.MarkDisconnected(ctx, id); err != nil {
			s.log.Error("failed to mark client disconnected", slog.Int("id", id), sl.Err(err))
		}
		text := fmt.Sprintf("⚠️ Olá <b>%s</b>.\n\n"+
			"Sua assinatura do Projeto Phoenix venceu em <b>%s</b>.\n"+
			"Entre em contato com o suporte para renovar seu acesso.",
			client.Name, client.PeriodEnd.Format("02/01/2006"))
		s.send(ctx, chatID, text)

	case ledger.ValidationGrant:
		s.metrics.IncValidation("granted")
		if _, err := s.store.SaveValidation(ctx, id, cb.From.ID, cb.From.Username, now); err != nil {
			s.log.Error("failed to save validation", slog.Int("id", id), sl.Err(err))
			return
		}
		s.send(ctx, chatID, s.grantMessage(client))
		s.log.Info("client validated",
			slog.Int("id", id), slog.Int64("telegram_id", cb.From.ID))
	}
}

// grantMessage собирает ответ с одной строкой доступа на каждый тариф:
// ссылка на группу, либо пометка про несконфигурированный тариф.
func (s *BotService) grantMessage(client *models.Client) string {
	lines := []string{
		fmt.Sprintf("🎉 <b>Acesso Validado, %s!</b>\n", client.Name),
		"Você tem acesso às seguintes carteiras:\n",
	}

	hasConfigured := false
	for _, tier := range client.Tiers {
		group, ok := s.tiers[tier]
		if ok && group.InviteLink != "" {
			lines = append(lines, fmt.Sprintf("➡️ <b>%s</b>: %s", tier, group.InviteLink))
			hasConfigured = true
		} else {
			lines = append(lines, fmt.Sprintf("⚠️ Nenhum grupo configurado para: <b>%s</b>", tier))
		}
	}

	if !hasConfigured {
		lines = append(lines,
			"\n⚠️ Seu cadastro não possui nenhuma carteira Phoenix com grupo configurado.\n"+
				"Fale com o suporte para ajustar seu acesso.")
	} else {
		lines = append(lines,
			"\n✅ Entre nos grupos acima para receber:\n"+
				"• Alertas automáticos\n"+
				"• Relatórios\n"+
				"• Atualizações do Projeto Phoenix\n")
	}
	return strings.Join(lines, "\n")
}

func (s *BotService) sendInvalidLink(ctx context.Context, chatID int64) {
	s.send(ctx, chatID, "❌ Link inválido ou expirado.\nPeça um novo link de acesso ao suporte.")
}

func (s *BotService) send(ctx context.Context, chatID int64, text string) {
	if err := s.tg.SendMessage(ctx, chatID, text, nil); err != nil {
		s.log.Error("failed to send message", slog.Int64("chat_id", chatID), sl.Err(err))
	}
}
