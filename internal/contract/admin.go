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

// Initialize sets the admin once. The configured default fee applies from here on.
func (c *Contract) Initialize(ctx context.Context, admin models.Address) error {
	return c.invoke(ctx, "initialize", func(cl *call) error {
		done, err := cl.state.IsInitialized(ctx)
		if err != nil {
			return err
		}
		if done {
			return status.ErrAlreadyInitialized
		}
		if err := cl.requireAuth(admin); err != nil {
			return err
		}
		if err := validation.Address(admin); err != nil {
			return err
		}
		if err := validation.FeeBps(c.defaultFeeBps); err != nil {
			return err
		}

		if err := cl.state.SetAdmin(admin); err != nil {
			return err
		}
		if err := cl.state.SetFeeBps(c.defaultFeeBps); err != nil {
			return err
		}
		if err := cl.state.SetInitialized(); err != nil {
			return err
		}
		cl.emit(notify.TopicInitialized, map[string]any{
			"admin":   admin,
			"fee_bps": c.defaultFeeBps,
		})
		return nil
	})
}

// requireAdmin authenticates caller and checks it is the stored admin.
func (cl *call) requireAdmin(caller models.Address) error {
	if err := cl.state.RequireInitialized(cl.ctx); err != nil {
		return err
	}
	if err := cl.requireAuth(caller); err != nil {
		return err
	}
	admin, err := cl.state.Admin(cl.ctx)
	if err != nil {
		return err
	}
	if caller != admin {
		return status.Wrap(status.ErrUnauthorized, "%s is not the admin", caller)
	}
	return nil
}

// SetAdmin hands the admin role to next. Only the current admin may do this.
func (c *Contract) SetAdmin(ctx context.Context, current, next models.Address) error {
	return c.invoke(ctx, "set_admin", func(cl *call) error {
		if err := cl.requireAdmin(current); err != nil {
			return err
		}
		if err := validation.Address(next); err != nil {
			return err
		}
		if err := cl.state.SetAdmin(next); err != nil {
			return err
		}
		cl.emit(notify.TopicAdminChanged, map[string]any{"from": current, "to": next})
		return nil
	})
}

func (c *Contract) GetAdmin(ctx context.Context) (models.Address, error) {
	var admin models.Address
	err := c.view(ctx, func(s *ledger.State) error {
		var err error
		admin, err = s.Admin(ctx)
		return err
	})
	return admin, err
}

// SetPlatformFee sets the fee taken from every purchase, in basis points.
func (c *Contract) SetPlatformFee(ctx context.Context, admin models.Address, feeBps uint32) error {
	return c.invoke(ctx, "set_platform_fee", func(cl *call) error {
		if err := cl.requireAdmin(admin); err != nil {
			return err
		}
		if err := validation.FeeBps(feeBps); err != nil {
			return err
		}
		if err := cl.state.SetFeeBps(feeBps); err != nil {
			return err
		}
		cl.emit(notify.TopicFeeSet, map[string]any{"fee_bps": feeBps})
		return nil
	})
}

func (c *Contract) GetPlatformFee(ctx context.Context) (uint32, error) {
	var bps uint32
	err := c.view(ctx, func(s *ledger.State) error {
		if err := s.RequireInitialized(ctx); err != nil {
			return err
		}
		var err error
		bps, err = s.FeeBps(ctx)
		return err
	})
	return bps, err
}

func (c *Contract) GetPlatformBalance(ctx context.Context) (decimal.Decimal, error) {
	bal := decimal.Zero
	err := c.view(ctx, func(s *ledger.State) error {
		if err := s.RequireInitialized(ctx); err != nil {
			return err
		}
		var err error
		bal, err = s.PlatformBalance(ctx)
		return err
	})
	return bal, err
}

// WithdrawPlatformFees empties the fee balance and reports what was withdrawn.
func (c *Contract) WithdrawPlatformFees(ctx context.Context, admin models.Address) (decimal.Decimal, error) {
	amount := decimal.Zero
	err := c.invoke(ctx, "withdraw_platform_fees", func(cl *call) error {
		if err := cl.requireAdmin(admin); err != nil {
			return err
		}
		bal, err := cl.state.PlatformBalance(ctx)
		if err != nil {
			return err
		}
		if !bal.IsPositive() {
			return status.ErrNoPlatformFees
		}
		if err := cl.state.ClearPlatformBalance(); err != nil {
			return err
		}
		amount = bal
		cl.emit(notify.TopicFeesWithdrawn, map[string]any{"admin": admin, "amount": bal})
		cl.afterCommit(func() { c.monitor.SetPlatformBalance(decimal.Zero) })
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// FeeState reads the fee rate and the accumulated balance in one view.
func (c *Contract) FeeState(ctx context.Context) (models.FeeState, error) {
	var fs models.FeeState
	err := c.view(ctx, func(s *ledger.State) error {
		if err := s.RequireInitialized(ctx); err != nil {
			return err
		}
		var err error
		if fs.FeeBps, err = s.FeeBps(ctx); err != nil {
			return err
		}
		fs.Balance, err = s.PlatformBalance(ctx)
		return err
	})
	return fs, err
}
