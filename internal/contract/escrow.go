package contract

import (
	"context"

	"ticket-escrow/internal/ledger"
	"ticket-escrow/internal/notify"
	"ticket-escrow/internal/status"
	"ticket-escrow/internal/validation"
	"ticket-escrow/models"

	"github.com/shopspring/decimal"
)

// completedUnreleased loads the escrow of a completed event that has not been paid out.
func (cl *call) completedUnreleased(event models.Event) (models.EscrowAccount, error) {
	if event.Status != models.EventCompleted {
		return models.EscrowAccount{}, status.Wrap(status.ErrInvalidStatusTransition, "event %d is %s", event.ID, event.Status)
	}
	acc, err := cl.state.Escrow(cl.ctx, event.ID)
	if err != nil {
		return models.EscrowAccount{}, err
	}
	if acc.Released {
		return models.EscrowAccount{}, status.Wrap(status.ErrEscrowAlreadyReleased, "event %d", event.ID)
	}
	return acc, nil
}

// payout zeroes the account and marks it released.
func (cl *call) payout(acc models.EscrowAccount) (decimal.Decimal, error) {
	amount := acc.Balance
	acc.Balance = decimal.Zero
	acc.Released = true
	if err := cl.state.PutEscrow(acc); err != nil {
		return decimal.Zero, err
	}
	eventID := acc.EventID
	cl.afterCommit(func() { cl.c.monitor.SetEscrowBalance(eventID, decimal.Zero) })
	return amount, nil
}

// ReleaseEscrow pays the escrow of a completed event out to its organizer.
// Events under a signer policy must use DistributeEscrow instead.
func (c *Contract) ReleaseEscrow(ctx context.Context, organizer models.Address, eventID uint64) (decimal.Decimal, error) {
	amount := decimal.Zero
	err := c.invoke(ctx, "release_escrow", func(cl *call) error {
		if err := cl.state.RequireInitialized(ctx); err != nil {
			return err
		}
		if err := cl.requireAuth(organizer); err != nil {
			return err
		}
		event, err := cl.loadOwnedEvent(eventID, organizer)
		if err != nil {
			return err
		}
		acc, err := cl.completedUnreleased(event)
		if err != nil {
			return err
		}
		if acc.Policy != models.ReleaseByOrganizer {
			return status.Wrap(status.ErrEscrowPolicyMismatch, "event %d releases by %s", eventID, acc.Policy)
		}

		amount, err = cl.payout(acc)
		if err != nil {
			return err
		}
		cl.emit(notify.TopicEscrowReleased, map[string]any{
			"event_id":  eventID,
			"organizer": organizer,
			"amount":    amount,
		})
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func (c *Contract) GetEscrow(ctx context.Context, eventID uint64) (models.EscrowAccount, error) {
	var acc models.EscrowAccount
	err := c.view(ctx, func(s *ledger.State) error {
		if _, err := s.Event(ctx, eventID); err != nil {
			return err
		}
		var err error
		acc, err = s.Escrow(ctx, eventID)
		return err
	})
	return acc, err
}

// SetEscrowSigners puts the event's escrow under a threshold of signers.
// Approvals recorded against an earlier signer set are dropped.
func (c *Contract) SetEscrowSigners(ctx context.Context, organizer models.Address, eventID uint64, signers []models.Address, threshold uint32) error {
	return c.invoke(ctx, "set_escrow_signers", func(cl *call) error {
		if err := cl.state.RequireInitialized(ctx); err != nil {
			return err
		}
		if err := cl.requireAuth(organizer); err != nil {
			return err
		}
		if err := validation.Threshold(threshold, len(signers)); err != nil {
			return err
		}
		for _, s := range signers {
			if err := validation.Address(s); err != nil {
				return err
			}
		}
		if _, err := cl.loadOwnedEvent(eventID, organizer); err != nil {
			return err
		}
		acc, err := cl.state.Escrow(ctx, eventID)
		if err != nil {
			return err
		}
		if acc.Released {
			return status.Wrap(status.ErrEscrowAlreadyReleased, "event %d", eventID)
		}

		if prev, ok, err := cl.state.EscrowConfig(ctx, eventID); err != nil {
			return err
		} else if ok {
			cl.state.ClearApprovals(prev)
		}
		cfg := models.EscrowConfig{
			EventID:   eventID,
			Signers:   append([]models.Address(nil), signers...),
			Threshold: threshold,
		}
		if err := cl.state.PutEscrowConfig(cfg); err != nil {
			return err
		}
		acc.Policy = models.ReleaseByMultisig
		if err := cl.state.PutEscrow(acc); err != nil {
			return err
		}
		cl.emit(notify.TopicSignersSet, map[string]any{
			"event_id":  eventID,
			"signers":   cfg.Signers,
			"threshold": threshold,
		})
		return nil
	})
}

func (cl *call) requireSigner(eventID uint64, signer models.Address) (models.EscrowConfig, error) {
	if err := cl.state.RequireInitialized(cl.ctx); err != nil {
		return models.EscrowConfig{}, err
	}
	if err := cl.requireAuth(signer); err != nil {
		return models.EscrowConfig{}, err
	}
	cfg, ok, err := cl.state.EscrowConfig(cl.ctx, eventID)
	if err != nil {
		return models.EscrowConfig{}, err
	}
	if !ok {
		return models.EscrowConfig{}, status.Wrap(status.ErrEscrowConfigNotFound, "event %d", eventID)
	}
	if !cfg.IsSigner(signer) {
		return models.EscrowConfig{}, status.Wrap(status.ErrUnauthorized, "%s is not a signer for event %d", signer, eventID)
	}
	return cfg, nil
}

// ApproveRelease records signer's approval. Approving twice is a no-op.
func (c *Contract) ApproveRelease(ctx context.Context, eventID uint64, signer models.Address) error {
	return c.invoke(ctx, "approve_release", func(cl *call) error {
		if _, err := cl.requireSigner(eventID, signer); err != nil {
			return err
		}
		if err := cl.state.SetApproval(eventID, signer); err != nil {
			return err
		}
		cl.emit(notify.TopicReleaseApproved, map[string]any{"event_id": eventID, "signer": signer})
		return nil
	})
}

// RevokeApproval withdraws signer's approval whether or not one was recorded.
func (c *Contract) RevokeApproval(ctx context.Context, eventID uint64, signer models.Address) error {
	return c.invoke(ctx, "revoke_approval", func(cl *call) error {
		if err := cl.state.RequireInitialized(ctx); err != nil {
			return err
		}
		if err := cl.requireAuth(signer); err != nil {
			return err
		}
		cl.state.ClearApproval(eventID, signer)
		cl.emit(notify.TopicApprovalRevoked, map[string]any{"event_id": eventID, "signer": signer})
		return nil
	})
}

// DistributeEscrow pays out a completed event's escrow to destination once
// enough distinct signers have approved. Anyone may trigger it.
func (c *Contract) DistributeEscrow(ctx context.Context, eventID uint64, destination models.Address) (decimal.Decimal, error) {
	amount := decimal.Zero
	err := c.invoke(ctx, "distribute_escrow", func(cl *call) error {
		if err := cl.state.RequireInitialized(ctx); err != nil {
			return err
		}
		if err := validation.Address(destination); err != nil {
			return err
		}
		cfg, ok, err := cl.state.EscrowConfig(ctx, eventID)
		if err != nil {
			return err
		}
		if !ok {
			return status.Wrap(status.ErrEscrowConfigNotFound, "event %d", eventID)
		}
		approved, err := cl.state.CountApprovals(ctx, cfg)
		if err != nil {
			return err
		}
		if approved < cfg.Threshold {
			return status.Wrap(status.ErrThresholdNotMet, "event %d has %d of %d approvals", eventID, approved, cfg.Threshold)
		}
		event, err := cl.state.Event(ctx, eventID)
		if err != nil {
			return err
		}
		acc, err := cl.completedUnreleased(event)
		if err != nil {
			return err
		}

		amount, err = cl.payout(acc)
		if err != nil {
			return err
		}
		cl.state.ClearApprovals(cfg)
		cl.emit(notify.TopicEscrowDistributed, map[string]any{
			"event_id":    eventID,
			"destination": destination,
			"amount":      amount,
			"approvals":   approved,
		})
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func (c *Contract) GetEscrowConfig(ctx context.Context, eventID uint64) (models.EscrowConfig, error) {
	var cfg models.EscrowConfig
	err := c.view(ctx, func(s *ledger.State) error {
		var (
			ok  bool
			err error
		)
		cfg, ok, err = s.EscrowConfig(ctx, eventID)
		if err != nil {
			return err
		}
		if !ok {
			return status.Wrap(status.ErrEscrowConfigNotFound, "event %d", eventID)
		}
		return nil
	})
	return cfg, err
}

func (c *Contract) HasApproved(ctx context.Context, eventID uint64, signer models.Address) (bool, error) {
	var ok bool
	err := c.view(ctx, func(s *ledger.State) error {
		var err error
		ok, err = s.HasApproval(ctx, eventID, signer)
		return err
	})
	return ok, err
}
