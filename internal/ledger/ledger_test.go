package ledger

import (
	"context"
	"testing"

	"ticket-escrow/internal/status"
	"ticket-escrow/internal/store"
	"ticket-escrow/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState(t *testing.T) (*State, *store.Tx, *store.Memory) {
	t.Helper()
	backend := store.NewMemory()
	tx := store.Begin(backend)
	return New(tx), tx, backend
}

func TestState_RequireInitialized(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newState(t)

	assert.ErrorIs(t, s.RequireInitialized(ctx), status.ErrNotInitialized)
	_, err := s.Admin(ctx)
	assert.ErrorIs(t, err, status.ErrNotInitialized)

	require.NoError(t, s.SetInitialized())
	require.NoError(t, s.SetAdmin("admin"))
	assert.NoError(t, s.RequireInitialized(ctx))

	admin, err := s.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Address("admin"), admin)
}

func TestState_CountersStartAtOneAndAreIndependent(t *testing.T) {
	ctx := context.Background()
	s, tx, backend := newState(t)

	for want := uint64(1); want <= 3; want++ {
		id, err := s.NextEventID(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	ticketID, err := s.NextTicketID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ticketID)

	require.NoError(t, tx.Commit(ctx))

	next := New(store.Begin(backend))
	id, err := next.NextEventID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), id)
}

func TestState_EventAndTicketNotFound(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newState(t)

	_, err := s.Event(ctx, 9)
	assert.ErrorIs(t, err, status.ErrEventNotFound)

	_, err = s.Ticket(ctx, 9)
	assert.ErrorIs(t, err, status.ErrTicketNotFound)
}

func TestState_EventRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, tx, backend := newState(t)

	event := models.Event{
		ID:          1,
		Organizer:   "org",
		Name:        "Test Event",
		Description: "Description",
		Location:    "Location",
		StartTime:   1000,
		EndTime:     2000,
		TicketPrice: decimal.NewFromInt(100),
		MaxTickets:  50,
		Status:      models.EventPublished,
	}
	require.NoError(t, s.PutEvent(event))
	require.NoError(t, tx.Commit(ctx))

	got, err := New(store.Begin(backend)).Event(ctx, 1)
	require.NoError(t, err)
	assert.True(t, event.TicketPrice.Equal(got.TicketPrice))
	got.TicketPrice = event.TicketPrice
	assert.Equal(t, event, got)
}

func TestState_EscrowAccounting(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newState(t)

	acc, err := s.Escrow(ctx, 1)
	require.NoError(t, err)
	assert.True(t, acc.Balance.IsZero())
	assert.False(t, acc.Released)

	require.NoError(t, s.AddEscrow(ctx, 1, decimal.NewFromInt(98)))
	require.NoError(t, s.AddEscrow(ctx, 1, decimal.NewFromInt(2)))
	require.NoError(t, s.DeductEscrow(ctx, 1, decimal.NewFromInt(60)))

	err = s.DeductEscrow(ctx, 1, decimal.NewFromInt(41))
	assert.ErrorIs(t, err, status.ErrInsufficientEscrow)

	acc, err = s.Escrow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "40", acc.Balance.String())
}

func TestState_PlatformFees(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newState(t)

	bps, err := s.FeeBps(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), bps)

	require.NoError(t, s.SetFeeBps(250))
	bps, err = s.FeeBps(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(250), bps)

	require.NoError(t, s.AddPlatformBalance(ctx, decimal.NewFromInt(10)))
	require.NoError(t, s.AddPlatformBalance(ctx, decimal.NewFromInt(15)))
	bal, err := s.PlatformBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "25", bal.String())

	require.NoError(t, s.ClearPlatformBalance())
	bal, err = s.PlatformBalance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestState_ApprovalsCountDistinctSigners(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newState(t)
	cfg := models.EscrowConfig{EventID: 1, Signers: []models.Address{"a", "a", "b"}, Threshold: 2}

	require.NoError(t, s.SetApproval(1, "a"))
	n, err := s.CountApprovals(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)

	require.NoError(t, s.SetApproval(1, "b"))
	require.NoError(t, s.SetApproval(1, "outsider"))
	n, err = s.CountApprovals(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)

	s.ClearApprovals(cfg)
	n, err = s.CountApprovals(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), n)
}

func TestState_Validators(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newState(t)

	ok, err := s.IsValidator(ctx, 1, "gate")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddValidator(1, "gate"))
	ok, err = s.IsValidator(ctx, 1, "gate")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsValidator(ctx, 2, "gate")
	require.NoError(t, err)
	assert.False(t, ok)

	s.RemoveValidator(1, "gate")
	ok, err = s.IsValidator(ctx, 1, "gate")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestState_EventCount(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newState(t)

	n, err := s.EventCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for range 3 {
		_, err := s.NextEventID(ctx)
		require.NoError(t, err)
	}
	_, err = s.NextTicketID(ctx)
	require.NoError(t, err)

	n, err = s.EventCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}
