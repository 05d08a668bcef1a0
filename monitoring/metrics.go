package monitoring

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"ticket-escrow/internal/status"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var (
	contractInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_invocations_total",
			Help: "Contract entry point invocations by result",
		},
		[]string{"operation", "result"},
	)

	invocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contract_invocation_duration_seconds",
			Help:    "Duration of contract entry point invocations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"operation"},
	)

	ticketsSold = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_sold_total",
			Help: "Tickets sold per event",
		},
		[]string{"event_id"},
	)

	escrowBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "escrow_balance",
			Help: "Current escrow balance per event",
		},
		[]string{"event_id"},
	)

	platformBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "platform_fee_balance",
			Help: "Accumulated platform fees not yet withdrawn",
		},
	)

	notificationBacklog = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_stream_length",
			Help: "Entries in the notification stream",
		},
		[]string{"stream"},
	)
)

type Monitor struct {
	redis   *redis.Client
	streams []string
}

// NewMonitor tracks contract metrics. redisClient may be nil when no
// notification stream is configured.
func NewMonitor(redisClient *redis.Client, streams ...string) *Monitor {
	return &Monitor{redis: redisClient, streams: streams}
}

// Run collects stream metrics until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if m == nil || m.redis == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collectStreamMetrics(ctx)
		}
	}
}

func (m *Monitor) collectStreamMetrics(ctx context.Context) {
	for _, stream := range m.streams {
		length, err := m.redis.XLen(ctx, stream).Result()
		if err != nil {
			slog.Error("Failed to read notification stream length", "error", err, "stream", stream)
			continue
		}
		notificationBacklog.WithLabelValues(stream).Set(float64(length))
	}
}

// ResultLabel names the outcome of a call for the result label.
func ResultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var e *status.Error
	if errors.As(err, &e) {
		return e.Name
	}
	return "internal"
}

func (m *Monitor) TrackInvocation(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	contractInvocations.WithLabelValues(operation, ResultLabel(err)).Inc()
	invocationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Monitor) TrackTicketSold(eventID uint64) {
	if m == nil {
		return
	}
	ticketsSold.WithLabelValues(strconv.FormatUint(eventID, 10)).Inc()
}

func (m *Monitor) SetEscrowBalance(eventID uint64, balance decimal.Decimal) {
	if m == nil {
		return
	}
	escrowBalance.WithLabelValues(strconv.FormatUint(eventID, 10)).Set(balance.InexactFloat64())
}

func (m *Monitor) SetPlatformBalance(balance decimal.Decimal) {
	if m == nil {
		return
	}
	platformBalance.Set(balance.InexactFloat64())
}
