// Package ledger gives typed access to the contract state kept in a store.Tx.
package ledger

import (
	"context"
	"fmt"

	"ticket-escrow/internal/status"
	"ticket-escrow/internal/store"
	"ticket-escrow/models"

	"github.com/shopspring/decimal"
)

var (
	keyInitialized   = store.InstanceKey("INIT")
	keyAdmin         = store.InstanceKey("ADMIN")
	keyEventCounter  = store.InstanceKey("EVENT_CTR")
	keyTicketCounter = store.InstanceKey("TICKET_CTR")
	keyFeeBps        = store.InstanceKey("PLATFORM_FEE_BPS")
	keyPlatformBal   = store.InstanceKey("PLATFORM_BAL")
)

const (
	prefixEvent     = "EVENT"
	prefixTicket    = "TICKET"
	prefixEscrow    = "ESCROW"
	prefixSigners   = "ESCROW_CFG"
	prefixApproval  = "ESCROW_APPROVAL"
	prefixValidator = "VALIDATOR"
)

// Collection addresses one entity kind in the persistent tier.
type Collection[T any] struct {
	prefix string
}

func (c Collection[T]) key(id ...any) store.Key {
	return store.PersistentKey(c.prefix, id...)
}

func (c Collection[T]) Get(ctx context.Context, tx *store.Tx, id ...any) (T, bool, error) {
	var v T
	ok, err := tx.Get(ctx, c.key(id...), &v)
	return v, ok, err
}

func (c Collection[T]) Put(tx *store.Tx, v T, id ...any) error {
	return tx.Set(c.key(id...), v)
}

func (c Collection[T]) Has(ctx context.Context, tx *store.Tx, id ...any) (bool, error) {
	return tx.Has(ctx, c.key(id...))
}

func (c Collection[T]) Remove(tx *store.Tx, id ...any) {
	tx.Remove(c.key(id...))
}

var (
	events     = Collection[models.Event]{prefix: prefixEvent}
	tickets    = Collection[models.Ticket]{prefix: prefixTicket}
	escrows    = Collection[models.EscrowAccount]{prefix: prefixEscrow}
	signers    = Collection[models.EscrowConfig]{prefix: prefixSigners}
	approvals  = Collection[bool]{prefix: prefixApproval}
	validators = Collection[bool]{prefix: prefixValidator}
)

// State wraps one transaction with the contract's accessors.
type State struct {
	tx *store.Tx
}

func New(tx *store.Tx) *State {
	return &State{tx: tx}
}

func (s *State) IsInitialized(ctx context.Context) (bool, error) {
	return s.tx.Has(ctx, keyInitialized)
}

func (s *State) SetInitialized() error {
	return s.tx.Set(keyInitialized, true)
}

// RequireInitialized fails with NotInitialized before any instance state is read.
func (s *State) RequireInitialized(ctx context.Context) error {
	ok, err := s.IsInitialized(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return status.ErrNotInitialized
	}
	return nil
}

func (s *State) Admin(ctx context.Context) (models.Address, error) {
	var admin models.Address
	ok, err := s.tx.Get(ctx, keyAdmin, &admin)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", status.ErrNotInitialized
	}
	return admin, nil
}

func (s *State) SetAdmin(admin models.Address) error {
	return s.tx.Set(keyAdmin, admin)
}

func (s *State) counter(ctx context.Context, key store.Key) (uint64, error) {
	next := uint64(1)
	if _, err := s.tx.Get(ctx, key, &next); err != nil {
		return 0, err
	}
	return next, nil
}

// EventCount is the number of event ids allocated so far.
func (s *State) EventCount(ctx context.Context) (uint64, error) {
	next, err := s.counter(ctx, keyEventCounter)
	if err != nil {
		return 0, err
	}
	return next - 1, nil
}

// NextEventID allocates an id. Ids start at 1 and never repeat.
func (s *State) NextEventID(ctx context.Context) (uint64, error) {
	return s.allocate(ctx, keyEventCounter)
}

// NextTicketID allocates from the counter shared by all events.
func (s *State) NextTicketID(ctx context.Context) (uint64, error) {
	return s.allocate(ctx, keyTicketCounter)
}

func (s *State) allocate(ctx context.Context, key store.Key) (uint64, error) {
	id, err := s.counter(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := s.tx.Set(key, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *State) Event(ctx context.Context, id uint64) (models.Event, error) {
	e, ok, err := events.Get(ctx, s.tx, id)
	if err != nil {
		return models.Event{}, err
	}
	if !ok {
		return models.Event{}, status.Wrap(status.ErrEventNotFound, "event %d", id)
	}
	return e, nil
}

func (s *State) PutEvent(e models.Event) error {
	return events.Put(s.tx, e, e.ID)
}

func (s *State) Ticket(ctx context.Context, id uint64) (models.Ticket, error) {
	t, ok, err := tickets.Get(ctx, s.tx, id)
	if err != nil {
		return models.Ticket{}, err
	}
	if !ok {
		return models.Ticket{}, status.Wrap(status.ErrTicketNotFound, "ticket %d", id)
	}
	return t, nil
}

func (s *State) PutTicket(t models.Ticket) error {
	return tickets.Put(s.tx, t, t.ID)
}

// Escrow returns the event's escrow account, zero-valued if none was written yet.
func (s *State) Escrow(ctx context.Context, eventID uint64) (models.EscrowAccount, error) {
	acc, ok, err := escrows.Get(ctx, s.tx, eventID)
	if err != nil {
		return models.EscrowAccount{}, err
	}
	if !ok {
		return models.EscrowAccount{EventID: eventID, Balance: decimal.Zero}, nil
	}
	return acc, nil
}

func (s *State) PutEscrow(acc models.EscrowAccount) error {
	return escrows.Put(s.tx, acc, acc.EventID)
}

func (s *State) AddEscrow(ctx context.Context, eventID uint64, amount decimal.Decimal) error {
	acc, err := s.Escrow(ctx, eventID)
	if err != nil {
		return err
	}
	acc.Balance = acc.Balance.Add(amount)
	return s.PutEscrow(acc)
}

// DeductEscrow fails with InsufficientEscrow rather than letting the balance go negative.
func (s *State) DeductEscrow(ctx context.Context, eventID uint64, amount decimal.Decimal) error {
	acc, err := s.Escrow(ctx, eventID)
	if err != nil {
		return err
	}
	if acc.Balance.LessThan(amount) {
		return status.Wrap(status.ErrInsufficientEscrow, "event %d holds %s, need %s", eventID, acc.Balance, amount)
	}
	acc.Balance = acc.Balance.Sub(amount)
	return s.PutEscrow(acc)
}

func (s *State) FeeBps(ctx context.Context) (uint32, error) {
	var bps uint32
	if _, err := s.tx.Get(ctx, keyFeeBps, &bps); err != nil {
		return 0, err
	}
	return bps, nil
}

func (s *State) SetFeeBps(bps uint32) error {
	return s.tx.Set(keyFeeBps, bps)
}

func (s *State) PlatformBalance(ctx context.Context) (decimal.Decimal, error) {
	bal := decimal.Zero
	if _, err := s.tx.Get(ctx, keyPlatformBal, &bal); err != nil {
		return decimal.Zero, err
	}
	return bal, nil
}

func (s *State) AddPlatformBalance(ctx context.Context, amount decimal.Decimal) error {
	bal, err := s.PlatformBalance(ctx)
	if err != nil {
		return err
	}
	return s.tx.Set(keyPlatformBal, bal.Add(amount))
}

func (s *State) ClearPlatformBalance() error {
	return s.tx.Set(keyPlatformBal, decimal.Zero)
}

func (s *State) EscrowConfig(ctx context.Context, eventID uint64) (models.EscrowConfig, bool, error) {
	return signers.Get(ctx, s.tx, eventID)
}

func (s *State) PutEscrowConfig(cfg models.EscrowConfig) error {
	return signers.Put(s.tx, cfg, cfg.EventID)
}

func (s *State) HasApproval(ctx context.Context, eventID uint64, signer models.Address) (bool, error) {
	return approvals.Has(ctx, s.tx, eventID, signer)
}

func (s *State) SetApproval(eventID uint64, signer models.Address) error {
	return approvals.Put(s.tx, true, eventID, signer)
}

func (s *State) ClearApproval(eventID uint64, signer models.Address) {
	approvals.Remove(s.tx, eventID, signer)
}

// CountApprovals counts approvals among the distinct configured signers.
func (s *State) CountApprovals(ctx context.Context, cfg models.EscrowConfig) (uint32, error) {
	var n uint32
	for _, signer := range cfg.DistinctSigners() {
		ok, err := s.HasApproval(ctx, cfg.EventID, signer)
		if err != nil {
			return 0, fmt.Errorf("approval for %s: %w", signer, err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *State) ClearApprovals(cfg models.EscrowConfig) {
	for _, signer := range cfg.DistinctSigners() {
		s.ClearApproval(cfg.EventID, signer)
	}
}

func (s *State) IsValidator(ctx context.Context, eventID uint64, addr models.Address) (bool, error) {
	return validators.Has(ctx, s.tx, eventID, addr)
}

func (s *State) AddValidator(eventID uint64, addr models.Address) error {
	return validators.Put(s.tx, true, eventID, addr)
}

func (s *State) RemoveValidator(eventID uint64, addr models.Address) {
	validators.Remove(s.tx, eventID, addr)
}
