// Package metrics собирает метрики реконсиляции членства и отдаёт их Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector — реализация метрик на Prometheus.
type Collector struct {
	reconcile       *prometheus.CounterVec
	storeFailures   *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	sweepCandidates prometheus.Gauge
	sweepDuration   prometheus.Histogram
	lastSweep       prometheus.Gauge
}

// NewCollector создаёт Collector и регистрирует метрики в reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_reconcile_total",
			Help: "Исходы реконсиляции по виду события и статусу",
		}, []string{"event", "status"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_store_write_failures_total",
			Help: "Ошибки записи членства по хранилищу",
		}, []string{"store"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_webhook_events_total",
			Help: "Входящие события Stripe по типу и результату обработки",
		}, []string{"type", "outcome"}),
		sweepCandidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "membership_sweep_candidates",
			Help: "Число истёкших подписок в последнем проходе очистки",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "membership_sweep_duration_seconds",
			Help:    "Длительность прохода очистки",
			Buckets: prometheus.DefBuckets,
		}),
		lastSweep: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "membership_sweep_last_run_timestamp_seconds",
			Help: "Время завершения последнего прохода очистки",
		}),
	}

	reg.MustRegister(
		c.reconcile,
		c.storeFailures,
		c.webhookEvents,
		c.sweepCandidates,
		c.sweepDuration,
		c.lastSweep,
	)
	return c
}

// ObserveReconcile учитывает исход одной реконсиляции.
func (c *Collector) ObserveReconcile(event, status string) {
	c.reconcile.WithLabelValues(event, status).Inc()
}

// ObserveStoreFailure учитывает ошибку записи в хранилище.
func (c *Collector) ObserveStoreFailure(store string) {
	c.storeFailures.WithLabelValues(store).Inc()
}

// ObserveSweep учитывает проход очистки.
func (c *Collector) ObserveSweep(candidates int, d time.Duration) {
	c.sweepCandidates.Set(float64(candidates))
	c.sweepDuration.Observe(d.Seconds())
	c.lastSweep.SetToCurrentTime()
}

// ObserveWebhook учитывает входящее событие Stripe.
func (c *Collector) ObserveWebhook(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// Handler возвращает обработчик для скрейпа Prometheus.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
