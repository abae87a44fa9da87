// Package ledger содержит чистую логику жизненного цикла доступа клиента:
// решения о валидации, об отзыве доступа по истечении вигенции и о
// напоминаниях о продлении. Пакет не делает I/O — на вход подаётся
// запись клиента и текущая дата, на выход отдаётся решение, которое
// применяют вызывающие сервисы.
package ledger

import (
	"time"

	"github.com/phoenix-invest/phoenix-crm/internal/models"
)

// ValidationOutcome результат проверки клиента при валидации через бота.
type ValidationOutcome int

const (
	// ValidationNotFound запись не найдена: отправить "не найдено", ничего не менять.
	ValidationNotFound ValidationOutcome = iota
	// ValidationExpired вигенция истекла: отправить предупреждение и снять
	// только флаг подключения; identity и removed_at не трогать.
	ValidationExpired
	// ValidationGrant доступ действителен: сохранить identity, сбросить removed_at
	// и выдать ссылки на группы по тарифам.
	ValidationGrant
)

// SweepOutcome результат проверки записи циклом отзыва доступов.
type SweepOutcome int

const (
	// SweepSkip запись не требует действий (не подключена, уже отозвана
	// или срок не определён/не истёк). Повторный прогон безопасен.
	SweepSkip SweepOutcome = iota
	// SweepRevoke доступ нужно отозвать: удалить из групп по тарифам,
	// снять подключение, проставить removed_at.
	SweepRevoke
)

// RenewalOutcome результат проверки одного срока напоминания.
type RenewalOutcome int

const (
	// RenewalNotDue срок напоминания ещё не наступил.
	RenewalNotDue RenewalOutcome = iota
	// RenewalAlreadySent напоминание по этому сроку уже отправлялось.
	RenewalAlreadySent
	// RenewalSend напоминание нужно отправить.
	RenewalSend
)

// RenewalDecision решение по одному сроку напоминания.
type RenewalDecision struct {
	LeadDays int
	Outcome  RenewalOutcome
}

// DecideValidation решает судьбу валидации: клиент не найден, срок истёк
// или доступ выдаётся. Неизвестная дата окончания (PeriodEnd == nil)
// трактуется как "срок не истёк" — так же ведёт себя и цикл отзыва,
// который такую запись пропускает.
func DecideValidation(c *models.Client, today time.Time) ValidationOutcome {
	if c == nil {
		return ValidationNotFound
	}
	if expired(c.PeriodEnd, today) {
		return ValidationExpired
	}
	return ValidationGrant
}

// DecideSweep решает, нужно ли отзывать доступ записи из кандидатов цикла.
// Отзыв идемпотентен: без telegram_id, без флага подключения или с уже
// проставленным removed_at запись пропускается, поэтому второй прогон
// по той же записи не производит повторных действий.
func DecideSweep(c *models.Client, today time.Time) SweepOutcome {
	if c == nil {
		return SweepSkip
	}
	if c.TelegramID == nil || !c.TelegramConnected || c.RemovedAt != nil {
		return SweepSkip
	}
	if !expired(c.PeriodEnd, today) {
		return SweepSkip
	}
	return SweepRevoke
}

// DecideRenewals проверяет каждый настроенный срок напоминания (в днях до
// конца вигенции, по убыванию). Срок считается наступившим, когда до конца
// осталось не больше lead дней — а не строго в день совпадения, чтобы
// пропущенный прогон не съедал напоминание навсегда. Вызывающая сторона
// применяет не более одного Send за цикл (наибольший наступивший срок).
func DecideRenewals(c *models.Client, today time.Time, leadDays []int) []RenewalDecision {
	decisions := make([]RenewalDecision, 0, len(leadDays))
	if c == nil || c.PeriodEnd == nil {
		for _, lead := range leadDays {
			decisions = append(decisions, RenewalDecision{LeadDays: lead, Outcome: RenewalNotDue})
		}
		return decisions
	}

	left := daysUntil(*c.PeriodEnd, today)
	for _, lead := range leadDays {
		switch {
		case contains(c.NoticesSent, lead):
			decisions = append(decisions, RenewalDecision{LeadDays: lead, Outcome: RenewalAlreadySent})
		case left >= 0 && left <= lead:
			decisions = append(decisions, RenewalDecision{LeadDays: lead, Outcome: RenewalSend})
		default:
			decisions = append(decisions, RenewalDecision{LeadDays: lead, Outcome: RenewalNotDue})
		}
	}
	return decisions
}

// FirstDue возвращает первое решение Send из списка (наибольший срок при
// убывающем порядке leadDays) или false, если отправлять нечего.
func FirstDue(decisions []RenewalDecision) (RenewalDecision, bool) {
	for _, d := range decisions {
		if d.Outcome == RenewalSend {
			return d, true
		}
	}
	return RenewalDecision{}, false
}

func expired(end *time.Time, today time.Time) bool {
	if end == nil {
		return false
	}
	return truncate(*end).Before(truncate(today))
}

func daysUntil(end, today time.Time) int {
	return int(truncate(end).Sub(truncate(today)).Hours() / 24)
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func contains(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
