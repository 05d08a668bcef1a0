// Package contract implements the ticketing and escrow state machine.
//
// Every exported entry point is one transaction: it runs under the
// instance lock against a buffered store.Tx, and its writes commit only if
// the entry point returns nil. Notifications are published after commit.
// A commit that loses to another instance on the same backend is re-run
// from scratch against the new state.
package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ticket-escrow/internal/auth"
	"ticket-escrow/internal/ledger"
	"ticket-escrow/internal/notify"
	"ticket-escrow/internal/status"
	"ticket-escrow/internal/store"
	"ticket-escrow/models"
	"ticket-escrow/monitoring"
	"ticket-escrow/utils"
)

// Config carries the host services and initialization-time settings of
// one contract instance.
type Config struct {
	Backend    store.Backend
	Publisher  notify.Publisher
	Authorizer auth.Authorizer
	Monitor    *monitoring.Monitor

	// Now returns the ledger time in unix seconds.
	Now func() uint64

	// DefaultFeeBps is applied by Initialize.
	DefaultFeeBps uint32
}

type Contract struct {
	mu sync.Mutex

	backend       store.Backend
	publisher     notify.Publisher
	authorizer    auth.Authorizer
	monitor       *monitoring.Monitor
	now           func() uint64
	defaultFeeBps uint32
}

func New(cfg Config) *Contract {
	c := &Contract{
		backend:       cfg.Backend,
		publisher:     cfg.Publisher,
		authorizer:    cfg.Authorizer,
		monitor:       cfg.Monitor,
		now:           cfg.Now,
		defaultFeeBps: cfg.DefaultFeeBps,
	}
	if c.backend == nil {
		c.backend = store.NewMemory()
	}
	if c.publisher == nil {
		c.publisher = notify.Logger{}
	}
	if c.authorizer == nil {
		c.authorizer = auth.ContextAuthorizer{}
	}
	if c.now == nil {
		c.now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	return c
}

// call is the state of one entry point invocation.
type call struct {
	ctx      context.Context
	c        *Contract
	tx       *store.Tx
	state    *ledger.State
	now      uint64
	notes    []notify.Notification
	onCommit []func()
}

func (cl *call) requireAuth(addr models.Address) error {
	return cl.c.authorizer.RequireAuth(cl.ctx, addr)
}

func (cl *call) emit(topic notify.Topic, data map[string]any) {
	id, err := utils.GenerateCode(8)
	if err != nil {
		id = fmt.Sprintf("%s-%d-%d", topic, cl.now, len(cl.notes))
	}
	cl.notes = append(cl.notes, notify.Notification{
		ID:        id,
		Topic:     topic,
		Timestamp: cl.now,
		Data:      data,
	})
}

func (cl *call) afterCommit(fn func()) {
	cl.onCommit = append(cl.onCommit, fn)
}

// maxAttempts bounds how often a call is re-run after losing a commit race
// against another instance sharing the backend.
const maxAttempts = 4

// invoke runs fn as one atomic transaction.
func (c *Contract) invoke(ctx context.Context, operation string, fn func(cl *call) error) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	defer func() {
		c.monitor.TrackInvocation(operation, err, time.Since(start))
	}()

	var cl *call
	for attempt := 1; ; attempt++ {
		cl, err = c.attempt(ctx, fn)
		if !errors.Is(err, store.ErrConflict) || attempt == maxAttempts {
			break
		}
		slog.Warn("Retrying contract call after conflicting commit", "operation", operation, "attempt", attempt)
	}
	if err != nil {
		var ce *status.Error
		if errors.As(err, &ce) {
			slog.Debug("contract call rejected", "operation", operation, "error", err)
			return err
		}
		slog.Error("Failed to commit contract call", "operation", operation, "error", err)
		return fmt.Errorf("%s: %w", operation, err)
	}

	for _, fn := range cl.onCommit {
		fn()
	}
	for _, n := range cl.notes {
		if perr := c.publisher.Publish(ctx, n); perr != nil {
			slog.Error("Failed to publish notification", "operation", operation, "topic", n.Topic, "id", n.ID, "error", perr)
		}
	}
	return nil
}

// attempt runs fn once against a fresh transaction and commits it.
func (c *Contract) attempt(ctx context.Context, fn func(cl *call) error) (*call, error) {
	tx := store.Begin(c.backend)
	cl := &call{
		ctx:   ctx,
		c:     c,
		tx:    tx,
		state: ledger.New(tx),
		now:   c.now(),
	}
	if err := fn(cl); err != nil {
		tx.Discard()
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return cl, nil
}

// view runs a read-only fn. Nothing it writes is kept.
func (c *Contract) view(ctx context.Context, fn func(s *ledger.State) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := store.Begin(c.backend)
	defer tx.Discard()
	return fn(ledger.New(tx))
}
