// Package services реализует планировщик напоминаний о продлении:
// периодически находит клиентов с приближающимся концом вигенции
// и публикует письма-напоминания в очередь уведомлений.
package services

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/phoenix-invest/phoenix-crm/internal/ledger"
	"github.com/phoenix-invest/phoenix-crm/internal/lib/rabbitmq"
	"github.com/phoenix-invest/phoenix-crm/internal/lib/sl"
	"github.com/phoenix-invest/phoenix-crm/internal/metrics"
	"github.com/phoenix-invest/phoenix-crm/internal/models"
)

// RenewalStore описывает методы хранилища, нужные планировщику напоминаний.
type RenewalStore interface {
	ListRenewalCandidates(ctx context.Context, today time.Time, maxLead int) ([]*models.Client, error)
	MarkNoticeSent(ctx context.Context, id, lead int) error
}

// SchedulerService публикует напоминания о продлении по настроенным срокам.
type SchedulerService struct {
	repo     RenewalStore
	leadDays []int
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewSchedulerService создает новый экземпляр SchedulerService.
// Сроки напоминаний сортируются по убыванию: при догоне пропущенных
// прогонов отправляется только наибольший наступивший срок.
func NewSchedulerService(repo RenewalStore, leadDays []int, m *metrics.Metrics, log *slog.Logger) *SchedulerService {
	sorted := make([]int, len(leadDays))
	copy(sorted, leadDays)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	return &SchedulerService{
		repo:     repo,
		leadDays: sorted,
		metrics:  m,
		log:      log,
	}
}

// Run запускает цикл проверки напоминаний: первый прогон сразу,
// дальше по тикеру. Останавливается по ctx.
func (s *SchedulerService) Run(ctx context.Context, channel rabbitmq.Channel, interval time.Duration) {
	s.RunRenewalCheck(ctx, channel)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("renewal scheduler stopped")
			return
		case <-ticker.C:
			s.RunRenewalCheck(ctx, channel)
		}
	}
}

// RunRenewalCheck выполняет один прогон: для каждого кандидата применяется
// не больше одного решения Send (наибольший наступивший срок). Срок
// фиксируется в notices_sent только после успешной публикации.
func (s *SchedulerService) RunRenewalCheck(ctx context.Context, channel rabbitmq.Channel) {
	s.log.Info("starting renewal check")
	if len(s.leadDays) == 0 {
		s.log.Warn("no renewal lead days configured")
		return
	}

	now := time.Now().UTC()
	candidates, err := s.repo.ListRenewalCandidates(ctx, now, s.leadDays[0])
	if err != nil {
		s.log.Error("failed to list renewal candidates", sl.Err(err))
		return
	}
	if len(candidates) == 0 {
		s.log.Info("no renewal candidates found")
		return
	}
	s.log.Info("found renewal candidates", "count", len(candidates))

	for _, client := range candidates {
		decisions := ledger.DecideRenewals(client, now, s.leadDays)
		due, ok := ledger.FirstDue(decisions)
		if !ok {
			continue
		}

		// По одному письму на тариф, как и для приветственных писем.
		tiers := client.Tiers
		if len(tiers) == 0 {
			tiers = []string{""}
		}
		published := true
		for _, tier := range tiers {
			notice := models.EmailNotice{
				MessageID:   uuid.NewString(),
				Kind:        models.NoticeRenewal,
				ClientID:    client.ID,
				Name:        client.Name,
				Email:       client.Email,
				Tier:        tier,
				PeriodStart: client.PeriodStart,
				PeriodEnd:   *client.PeriodEnd,
				LeadDays:    due.LeadDays,
			}
			if err := rabbitmq.PublishMessage(channel, "notifications", "renewal", notice); err != nil {
				s.log.Error("failed to publish renewal notice",
					slog.Int("client_id", client.ID), slog.String("tier", tier), sl.Err(err))
				published = false
				break
			}
		}
		if !published {
			// Срок не зафиксирован: следующий прогон отправит повторно.
			continue
		}
		if err := s.repo.MarkNoticeSent(ctx, client.ID, due.LeadDays); err != nil {
			s.log.Error("failed to mark notice sent",
				slog.Int("client_id", client.ID), slog.Int("lead_days", due.LeadDays), sl.Err(err))
			continue
		}
		s.metrics.IncRenewal(strconv.Itoa(due.LeadDays))
		s.log.Info("renewal notice published",
			slog.Int("client_id", client.ID), slog.Int("lead_days", due.LeadDays),
			slog.Int("notices", len(tiers)))
	}
}
