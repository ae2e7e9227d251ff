package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics содержит метрики корзины, персистентности и outbox.
type CartMetrics struct {
	mutations *prometheus.CounterVec

	cartLines    prometheus.Gauge
	cartItems    prometheus.Gauge
	cartSubtotal prometheus.Gauge

	persistOps *prometheus.CounterVec
	hydrateOps *prometheus.CounterVec

	outboxPublished *prometheus.CounterVec
	outboxPending   prometheus.Gauge
	outboxOldestAge prometheus.Gauge
	outboxCleanups  *prometheus.CounterVec
	outboxDeleted   prometheus.Counter

	resyncs prometheus.Counter
}

// NewCartMetrics регистрирует метрики в DefaultRegisterer.
func NewCartMetrics() *CartMetrics {
	return NewCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCartMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CartMetrics{
		mutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Total number of cart mutation calls by operation and outcome",
		}, []string{"op", "applied"}),
		cartLines: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "cart_lines",
			Help: "Number of distinct lines in the cart",
		}),
		cartItems: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "cart_items",
			Help: "Total quantity of items in the cart",
		}),
		cartSubtotal: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "cart_subtotal",
			Help: "Cart subtotal in store currency",
		}),
		persistOps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cart_persist_total",
			Help: "Total number of cart persist attempts by result",
		}, []string{"result"}),
		hydrateOps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cart_hydrate_total",
			Help: "Total number of cart hydrations by result",
		}, []string{"result"}),
		outboxPublished: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cart_outbox_publish_total",
			Help: "Total number of outbox publish attempts by result",
		}, []string{"result"}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "cart_outbox_pending",
			Help: "Number of pending outbox messages",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "cart_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox message in seconds",
		}),
		outboxCleanups: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cart_outbox_cleanup_runs_total",
			Help: "Total number of outbox cleanup runs grouped by result",
		}, []string{"result"}),
		outboxDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cart_outbox_cleanup_deleted_total",
			Help: "Total number of deleted processed outbox messages",
		}),
		resyncs: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cart_resync_total",
			Help: "Total number of resyncs triggered by external slot changes",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

// RecordMutation учитывает вызов мутации корзины.
func (m *CartMetrics) RecordMutation(op string, applied bool) {
	m.mutations.WithLabelValues(op, strconv.FormatBool(applied)).Inc()
}

// ObserveCart обновляет агрегаты корзины.
func (m *CartMetrics) ObserveCart(lineCount, itemCount int, subtotal float64) {
	m.cartLines.Set(float64(lineCount))
	m.cartItems.Set(float64(itemCount))
	m.cartSubtotal.Set(subtotal)
}

// RecordPersist учитывает попытку записи состояния.
func (m *CartMetrics) RecordPersist(result string) {
	m.persistOps.WithLabelValues(result).Inc()
}

// RecordHydrate учитывает восстановление состояния.
func (m *CartMetrics) RecordHydrate(result string) {
	m.hydrateOps.WithLabelValues(result).Inc()
}

// RecordOutboxPublish учитывает попытку публикации outbox-сообщения.
func (m *CartMetrics) RecordOutboxPublish(result string) {
	m.outboxPublished.WithLabelValues(result).Inc()
}

// SetOutboxBacklog выставляет размер очереди outbox.
func (m *CartMetrics) SetOutboxBacklog(pending int, oldestAge time.Duration) {
	m.outboxPending.Set(float64(pending))
	m.outboxOldestAge.Set(oldestAge.Seconds())
}

// RecordOutboxCleanup учитывает прогон очистки outbox.
func (m *CartMetrics) RecordOutboxCleanup(result string, deleted int) {
	m.outboxCleanups.WithLabelValues(result).Inc()
	if deleted > 0 {
		m.outboxDeleted.Add(float64(deleted))
	}
}

// RecordResync учитывает повторное чтение корзины после внешнего изменения.
func (m *CartMetrics) RecordResync() {
	m.resyncs.Inc()
}
