package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки сообщения стадией.
const (
	OutcomeCompleted   = "completed"
	OutcomeMalformed   = "malformed"
	OutcomeFailed      = "failed"
	OutcomeInterrupted = "interrupted"
)

// Результаты обращения к кэшу.
const (
	CacheHit         = "hit"
	CacheMiss        = "miss"
	CacheUnavailable = "unavailable"
)

var (
	// StageMessages — обработанные сообщения по стадиям и исходу.
	StageMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindscope_stage_messages_total",
		Help: "Messages handled by pipeline stage workers, by outcome",
	}, []string{"stage", "outcome"})

	// StageDuration — длительность обработки одного сообщения.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mindscope_stage_duration_seconds",
		Help:    "Time spent handling one delivery, per stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	// Published — опубликованные события по очередям.
	Published = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindscope_published_total",
		Help: "Stage events published, per queue",
	}, []string{"queue"})

	// Deliveries — исход доставок на уровне брокера (ack / reject).
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindscope_deliveries_total",
		Help: "Deliveries settled by consumers, per queue and settlement",
	}, []string{"queue", "settlement"})

	// Reconnects — переподключения к брокеру.
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindscope_broker_reconnects_total",
		Help: "Transparent reconnects to the message broker",
	})

	// CacheRequests — обращения к content-addressed кэшу.
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindscope_cache_requests_total",
		Help: "Content-addressed cache lookups, by result",
	}, []string{"namespace", "result"})

	// HTTPRequests — запросы к HTTP API.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindscope_api_http_requests_total",
		Help: "Total HTTP requests handled by mindscope-api",
	}, []string{"method", "status"})
)
