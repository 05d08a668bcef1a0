package monitoring

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ticket-escrow/internal/status"

	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "ok", ResultLabel(nil))
	assert.Equal(t, "EventSoldOut", ResultLabel(status.ErrEventSoldOut))
	assert.Equal(t, "Unauthorized", ResultLabel(status.Wrap(status.ErrUnauthorized, "caller %s", "x")))
	assert.Equal(t, "internal", ResultLabel(fmt.Errorf("commit: %w", errors.New("redis down"))))
}

func TestMonitor_TrackInvocation(t *testing.T) {
	m := NewMonitor(nil)
	before := testutil.ToFloat64(contractInvocations.WithLabelValues("purchase_ticket", "EventSoldOut"))

	m.TrackInvocation("purchase_ticket", status.ErrEventSoldOut, time.Millisecond)
	m.TrackInvocation("purchase_ticket", status.ErrEventSoldOut, time.Millisecond)

	after := testutil.ToFloat64(contractInvocations.WithLabelValues("purchase_ticket", "EventSoldOut"))
	assert.Equal(t, before+2, after)
}

func TestMonitor_Balances(t *testing.T) {
	m := NewMonitor(nil)

	m.SetEscrowBalance(42, decimal.NewFromInt(975))
	m.SetPlatformBalance(decimal.NewFromInt(25))

	assert.Equal(t, 975.0, testutil.ToFloat64(escrowBalance.WithLabelValues("42")))
	assert.Equal(t, 25.0, testutil.ToFloat64(platformBalance))
}

func TestMonitor_NilIsSafe(t *testing.T) {
	var m *Monitor
	assert.NotPanics(t, func() {
		m.TrackInvocation("create_event", nil, time.Millisecond)
		m.TrackTicketSold(1)
		m.SetEscrowBalance(1, decimal.Zero)
		m.SetPlatformBalance(decimal.Zero)
		m.Run(context.Background(), time.Second)
	})
}

func TestMonitor_CollectStreamMetrics(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	m := NewMonitor(db, "contract:main:notifications")

	redisMock.ExpectXLen("contract:main:notifications").SetVal(7)

	m.collectStreamMetrics(context.Background())

	assert.Equal(t, 7.0, testutil.ToFloat64(notificationBacklog.WithLabelValues("contract:main:notifications")))
	assert.NoError(t, redisMock.ExpectationsWereMet())
}
