// Package metrics содержит счётчики Prometheus для циклов сверки доступов,
// напоминаний о продлении и валидации через бота.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics набор метрик фоновых процессов CRM.
type Metrics struct {
	// Результаты валидации клиентов ботом: granted, expired, not_found.
	ValidationOutcome *prometheus.CounterVec

	// Результаты цикла отзыва доступов: revoked, skipped, failed.
	SweepOutcome *prometheus.CounterVec

	// Отправленные напоминания по срокам до конца вигенции.
	RenewalNotices *prometheus.CounterVec

	// Длительность полного прогона цикла отзыва.
	SweepDuration prometheus.Histogram
}

// New создаёт и регистрирует метрики в реестре по умолчанию.
func New() *Metrics {
	return &Metrics{
		ValidationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_validation_outcomes_total",
			Help: "Total bot validation outcomes by result",
		}, []string{"outcome"}),

		SweepOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_sweep_outcomes_total",
			Help: "Total access sweep outcomes by result",
		}, []string{"outcome"}),

		RenewalNotices: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_renewal_notices_total",
			Help: "Total renewal notices published by lead days",
		}, []string{"lead_days"}),

		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "crm_sweep_duration_seconds",
			Help:    "Duration of a full access sweep run",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// IncValidation учитывает результат валидации.
func (m *Metrics) IncValidation(outcome string) {
	if m != nil {
		m.ValidationOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncSweep учитывает результат обработки одной записи циклом отзыва.
func (m *Metrics) IncSweep(outcome string) {
	if m != nil {
		m.SweepOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncRenewal учитывает отправленное напоминание.
func (m *Metrics) IncRenewal(leadDays string) {
	if m != nil {
		m.RenewalNotices.WithLabelValues(leadDays).Inc()
	}
}

// ObserveSweepDuration записывает длительность прогона цикла отзыва.
func (m *Metrics) ObserveSweepDuration(d time.Duration) {
	if m != nil {
		m.SweepDuration.Observe(d.Seconds())
	}
}
