// Package services реализует цикл отзыва доступов: периодически находит
// клиентов с истекшей вигенцией и подключенным Telegram, удаляет их из групп
// по тарифам и фиксирует отзыв в хранилище.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phoenix-invest/phoenix-crm/internal/config"
	"github.com/phoenix-invest/phoenix-crm/internal/ledger"
	"github.com/phoenix-invest/phoenix-crm/internal/lib/sl"
	"github.com/phoenix-invest/phoenix-crm/internal/metrics"
	"github.com/phoenix-invest/phoenix-crm/internal/models"
	"github.com/phoenix-invest/phoenix-crm/internal/telegram"
)

// SweepStore описывает методы хранилища, нужные циклу отзыва.
type SweepStore interface {
	ListExpiredConnected(ctx context.Context, today time.Time) ([]*models.Client, error)
	MarkRevoked(ctx context.Context, id int, now time.Time, fallbackTier string) (int, error)
}

// GroupAPI описывает методы Bot API для удаления из групп и уведомления.
type GroupAPI interface {
	BanChatMember(ctx context.Context, chatID, userID int64) error
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) error
}

// SweeperService запускает периодический цикл отзыва доступов.
type SweeperService struct {
	store        SweepStore
	tg           GroupAPI
	tiers        map[string]config.TierGroup
	fallbackTier string
	interval     time.Duration
	metrics      *metrics.Metrics
	log          *slog.Logger

	// mu защищает от наложения прогонов при медленном Bot API.
	mu sync.Mutex
}

// NewSweeperService создает новый экземпляр SweeperService.
func NewSweeperService(store SweepStore, tg GroupAPI, tiers map[string]config.TierGroup,
	fallbackTier string, interval time.Duration, m *metrics.Metrics, log *slog.Logger) *SweeperService {
	return &SweeperService{
		store:        store,
		tg:           tg,
		tiers:        tiers,
		fallbackTier: fallbackTier,
		interval:     interval,
		metrics:      m,
		log:          log,
	}
}

// Run запускает цикл отзыва: первый прогон сразу, дальше по тикеру.
// Останавливается по ctx, текущая запись дообрабатывается.
func (s *SweeperService) Run(ctx context.Context) {
	s.RunSweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.RunSweep(ctx)
		}
	}
}

// RunSweep выполняет один прогон цикла отзыва. Если предыдущий прогон
// ещё не завершился, новый пропускается.
func (s *SweeperService) RunSweep(ctx context.Context) {
	if !s.mu.TryLock() {
		s.log.Warn("previous sweep still running, skipping this tick")
		return
	}
	defer s.mu.Unlock()

	start := time.Now()
	s.log.Info("starting access sweep")

	now := time.Now().UTC()
	candidates, err := s.store.ListExpiredConnected(ctx, now)
	if err != nil {
		s.log.Error("failed to list sweep candidates", sl.Err(err))
		return
	}
	if len(candidates) == 0 {
		s.log.Info("no expired connected clients found")
		s.metrics.ObserveSweepDuration(time.Since(start))
		return
	}
	s.log.Info("found sweep candidates", "count", len(candidates))

	var revoked int
	for _, client := range candidates {
		select {
		case <-ctx.Done():
			s.log.Info("sweep interrupted", "revoked", revoked)
			return
		default:
		}

		switch ledger.DecideSweep(client, now) {
		case ledger.SweepSkip:
			s.metrics.IncSweep("skipped")
		case ledger.SweepRevoke:
			if s.revoke(ctx, client, now) {
				revoked++
			}
		}
	}

	s.log.Info("access sweep finished", "revoked", revoked, "candidates", len(candidates))
	s.metrics.ObserveSweepDuration(time.Since(start))
}

// revoke удаляет клиента из групп по тарифам (best-effort, по одной попытке
// на тариф), затем фиксирует отзыв условным UPDATE. При ошибке хранилища
// запись будет повторена следующим прогоном. Уведомление клиенту — после
// фиксации, его ошибка ничего не откатывает.
func (s *SweeperService) revoke(ctx context.Context, client *models.Client, now time.Time) bool {
	for _, tier := range client.Tiers {
		group, ok := s.tiers[tier]
		if !ok || group.ChatID == 0 {
			continue
		}
		if err := s.tg.BanChatMember(ctx, group.ChatID, *client.TelegramID); err != nil {
			s.log.Warn("failed to kick client from group",
				slog.Int("id", client.ID), slog.String("tier", tier), sl.Err(err))
			continue
		}
		s.log.Info("removed client from group",
			slog.Int("id", client.ID), slog.String("tier", tier))
	}

	rows, err := s.store.MarkRevoked(ctx, client.ID, now, s.fallbackTier)
	if err != nil {
		s.metrics.IncSweep("failed")
		s.log.Error("failed to mark client revoked", slog.Int("id", client.ID), sl.Err(err))
		return false
	}
	if rows == 0 {
		// Параллельный прогон уже отозвал запись.
		s.metrics.IncSweep("skipped")
		return false
	}
	s.metrics.IncSweep("revoked")

	text := fmt.Sprintf("⚠️ Olá <b>%s</b>.\n\n"+
		"Sua assinatura do Projeto Phoenix venceu em <b>%s</b> e seu acesso aos grupos foi encerrado.\n"+
		"Entre em contato com o suporte para renovar.",
		client.Name, client.PeriodEnd.Format("02/01/2006"))
	if err := s.tg.SendMessage(ctx, *client.TelegramID, text, nil); err != nil {
		s.log.Warn("failed to notify revoked client", slog.Int("id", client.ID), sl.Err(err))
	}
	return true
}
