package models

import "time"

// NoticeKind тип исходящего письма.
const (
	// NoticeWelcome — приветственное письмо после регистрации клиента.
	NoticeWelcome = "welcome"
	// NoticeRenewal — напоминание о скором окончании вигенции.
	NoticeRenewal = "renewal"
)

// EmailNotice сообщение для отправителя писем, публикуется в RabbitMQ.
// Одно сообщение — одно письмо по одному тарифу.
type EmailNotice struct {
	MessageID   string    `json:"message_id"`  // Уникальный ID для трассировки в логах
	Kind        string    `json:"kind"`        // NoticeWelcome или NoticeRenewal
	ClientID    int       `json:"client_id"`   // ID клиента в хранилище
	Name        string    `json:"name"`        // Имя клиента для шаблона
	Email       string    `json:"email"`       // Адрес получателя
	Tier        string    `json:"tier"`        // Тариф, по которому письмо
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	LeadDays    int       `json:"lead_days,omitempty"` // Для напоминаний: срок в днях
}
