// Package models содержит доменные структуры CRM: клиент с окном вигенции
// и привязкой к Telegram, а также вспомогательные типы для приёма данных
// из внешних источников (например, JSON-запросов админки).
package models

import "time"

// Client представляет собой основную модель клиента,
// используемую в бизнес-логике и хранилище.
// PeriodEnd может быть nil — это означает, что дата окончания вигенции
// неизвестна и запись исключается из решений о сроке действия.
type Client struct {
	ID          int        // Идентификатор, присваивается хранилищем
	Name        string     // Полное имя клиента
	Email       string     // Email для приветственных писем и напоминаний
	Phone       string     // Телефон с кодом страны
	Tiers       []string   // Набор тарифов (carteiras), канонический вид
	PeriodStart time.Time  // Начало вигенции
	PeriodEnd   *time.Time // Конец вигенции
	Payment     string     // Форма оплаты
	Amount      float64    // Сумма договора
	Note        string     // Внутренняя заметка

	TelegramID        *int64     // ID пользователя Telegram после валидации
	TelegramUsername  string     // Username Telegram после валидации
	TelegramConnected bool       // Признак подключенного доступа
	LastSyncAt        *time.Time // Момент последней успешной валидации
	RemovedAt         *time.Time // Момент отзыва доступа, защита от повторного отзыва
	NoticesSent       []int      // Сроки (в днях), по которым напоминание уже отправлено
}

// DummyClient используется для приёма данных из JSON-запроса,
// прежде чем конвертировать их в Client.
// Даты приходят в виде строк, чтобы их можно было валидировать и парсить вручную.
type DummyClient struct {
	Name        string   `json:"name" validate:"required"`                    // Полное имя
	Email       string   `json:"email" validate:"required,email"`             // Email
	Phone       string   `json:"phone"`                                      // Телефон
	Tiers       []string `json:"tiers" validate:"required,min=1"`            // Тарифы
	PeriodStart string   `json:"period_start" validate:"required,datetime=02-01-2006"` // Начало вигенции в формате 02-01-2006
	PeriodEnd   string   `json:"period_end" validate:"required,datetime=02-01-2006"`   // Конец вигенции в формате 02-01-2006
	Payment     string   `json:"payment"`                                    // Форма оплаты
	Amount      float64  `json:"amount" validate:"gte=0"`                    // Сумма
	Note        string   `json:"note"`                                      // Заметка
}

// ClientRow строка списка клиентов для админки: к полям клиента
// добавлен производный статус вигенции для подсветки таблицы.
type ClientRow struct {
	Client
	Status string // "expired", "expiring" (<= 30 дней) или "active"
}

// VigencyStatus возвращает производный статус вигенции по правилу из админки:
// красный — срок истёк, жёлтый — осталось не более 30 дней, зелёный — больше.
// Сравниваются календарные даты, а не моменты времени, поэтому статус
// списка совпадает с решениями об истечении срока в граничные дни.
func VigencyStatus(end *time.Time, today time.Time) string {
	if end == nil {
		return "active"
	}
	t := civilDate(today)
	e := civilDate(*end)
	if e.Before(t) {
		return "expired"
	}
	if int(e.Sub(t).Hours()/24) <= 30 {
		return "expiring"
	}
	return "active"
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
