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

var bpsDenominator = decimal.NewFromInt(validation.MaxFeeBps)

// PlatformFee is floor(payment * bps / 10000) for non-negative payments.
func PlatformFee(payment decimal.Decimal, bps uint32) decimal.Decimal {
	if bps == 0 {
		return decimal.Zero
	}
	fee, _ := payment.Mul(decimal.NewFromInt(int64(bps))).QuoRem(bpsDenominator, 0)
	return fee
}

// PurchaseTicket sells one ticket to buyer. The fee goes to the platform
// balance and the remainder of payment into the event's escrow.
func (c *Contract) PurchaseTicket(ctx context.Context, buyer models.Address, eventID uint64, payment decimal.Decimal) (uint64, error) {
	var ticketID uint64
	err := c.invoke(ctx, "purchase_ticket", func(cl *call) error {
		if err := cl.state.RequireInitialized(ctx); err != nil {
			return err
		}
		if err := cl.requireAuth(buyer); err != nil {
			return err
		}
		if err := validation.Address(buyer); err != nil {
			return err
		}
		event, err := cl.state.Event(ctx, eventID)
		if err != nil {
			return err
		}
		if !event.Status.Open() {
			return status.Wrap(status.ErrInvalidStatusTransition, "event %d is %s", eventID, event.Status)
		}
		if event.SoldOut() {
			return status.Wrap(status.ErrEventSoldOut, "event %d sold %d of %d", eventID, event.TicketsSold, event.MaxTickets)
		}
		if payment.LessThan(event.TicketPrice) {
			return status.Wrap(status.ErrInsufficientFunds, "paid %s, price %s", payment, event.TicketPrice)
		}
		if err := validation.PositiveAmount(payment); err != nil {
			return err
		}

		id, err := cl.state.NextTicketID(ctx)
		if err != nil {
			return err
		}
		ticket := models.Ticket{
			ID:           id,
			EventID:      eventID,
			Owner:        buyer,
			PurchaseTime: cl.now,
		}
		if err := cl.state.PutTicket(ticket); err != nil {
			return err
		}
		event.TicketsSold++
		if err := cl.state.PutEvent(event); err != nil {
			return err
		}

		bps, err := cl.state.FeeBps(ctx)
		if err != nil {
			return err
		}
		fee := PlatformFee(payment, bps)
		if err := cl.state.AddPlatformBalance(ctx, fee); err != nil {
			return err
		}
		if err := cl.state.AddEscrow(ctx, eventID, payment.Sub(fee)); err != nil {
			return err
		}
		escrow, err := cl.state.Escrow(ctx, eventID)
		if err != nil {
			return err
		}
		platform, err := cl.state.PlatformBalance(ctx)
		if err != nil {
			return err
		}

		ticketID = id
		cl.emit(notify.TopicTicketPurchased, map[string]any{
			"ticket_id": id,
			"event_id":  eventID,
			"buyer":     buyer,
			"payment":   payment,
			"fee":       fee,
		})
		cl.afterCommit(func() {
			c.monitor.TrackTicketSold(eventID)
			c.monitor.SetEscrowBalance(eventID, escrow.Balance)
			c.monitor.SetPlatformBalance(platform)
		})
		return nil
	})
	return ticketID, err
}

func (c *Contract) GetTicket(ctx context.Context, ticketID uint64) (models.Ticket, error) {
	var ticket models.Ticket
	err := c.view(ctx, func(s *ledger.State) error {
		var err error
		ticket, err = s.Ticket(ctx, ticketID)
		return err
	})
	return ticket, err
}

// ValidateTicket checks a ticket in. The caller must organize the event or
// be registered as one of its validators.
func (c *Contract) ValidateTicket(ctx context.Context, ticketID uint64, validator models.Address) error {
	return c.invoke(ctx, "validate_ticket", func(cl *call) error {
		return cl.checkIn(ticketID, validator)
	})
}

// UseTicket is ValidateTicket under the name used by door staff tooling.
func (c *Contract) UseTicket(ctx context.Context, validator models.Address, ticketID uint64) error {
	return c.invoke(ctx, "use_ticket", func(cl *call) error {
		return cl.checkIn(ticketID, validator)
	})
}

func (cl *call) checkIn(ticketID uint64, validator models.Address) error {
	if err := cl.state.RequireInitialized(cl.ctx); err != nil {
		return err
	}
	if err := cl.requireAuth(validator); err != nil {
		return err
	}
	ticket, err := cl.state.Ticket(cl.ctx, ticketID)
	if err != nil {
		return err
	}
	event, err := cl.state.Event(cl.ctx, ticket.EventID)
	if err != nil {
		return err
	}
	if event.Organizer != validator {
		ok, err := cl.state.IsValidator(cl.ctx, event.ID, validator)
		if err != nil {
			return err
		}
		if !ok {
			return status.Wrap(status.ErrUnauthorized, "%s cannot check in event %d", validator, event.ID)
		}
	}
	if ticket.Used {
		return status.Wrap(status.ErrTicketAlreadyUsed, "ticket %d", ticketID)
	}
	if ticket.Refunded {
		return status.Wrap(status.ErrRefundNotAllowed, "ticket %d was refunded", ticketID)
	}

	ticket.Used = true
	if err := cl.state.PutTicket(ticket); err != nil {
		return err
	}
	cl.emit(notify.TopicCheckIn, map[string]any{
		"ticket_id": ticketID,
		"validator": validator,
		"event_id":  ticket.EventID,
	})
	return nil
}

// TransferTicket moves an unused ticket to a new owner.
func (c *Contract) TransferTicket(ctx context.Context, ticketID uint64, from, to models.Address) (models.Ticket, error) {
	var out models.Ticket
	err := c.invoke(ctx, "transfer_ticket", func(cl *call) error {
		if err := cl.state.RequireInitialized(ctx); err != nil {
			return err
		}
		if err := cl.requireAuth(from); err != nil {
			return err
		}
		if err := validation.Address(to); err != nil {
			return err
		}
		ticket, err := cl.state.Ticket(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Owner != from {
			return status.Wrap(status.ErrUnauthorized, "%s does not own ticket %d", from, ticketID)
		}
		if ticket.Used {
			return status.Wrap(status.ErrTicketAlreadyUsed, "ticket %d", ticketID)
		}
		if ticket.Refunded {
			return status.Wrap(status.ErrRefundNotAllowed, "ticket %d was refunded", ticketID)
		}

		ticket.Owner = to
		if err := cl.state.PutTicket(ticket); err != nil {
			return err
		}
		out = ticket
		cl.emit(notify.TopicTransfer, map[string]any{
			"ticket_id": ticketID,
			"from":      from,
			"to":        to,
		})
		return nil
	})
	if err != nil {
		return models.Ticket{}, err
	}
	return out, nil
}

// RefundTicket returns the ticket price from escrow once the event is cancelled.
func (c *Contract) RefundTicket(ctx context.Context, ticketID uint64, buyer models.Address) error {
	return c.invoke(ctx, "refund_ticket", func(cl *call) error {
		if err := cl.state.RequireInitialized(ctx); err != nil {
			return err
		}
		if err := cl.requireAuth(buyer); err != nil {
			return err
		}
		ticket, err := cl.state.Ticket(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Owner != buyer {
			return status.Wrap(status.ErrUnauthorized, "%s does not own ticket %d", buyer, ticketID)
		}
		if ticket.Used {
			return status.Wrap(status.ErrTicketAlreadyUsed, "ticket %d", ticketID)
		}
		if ticket.Refunded {
			return status.Wrap(status.ErrRefundNotAllowed, "ticket %d already refunded", ticketID)
		}
		event, err := cl.state.Event(ctx, ticket.EventID)
		if err != nil {
			return err
		}
		if event.Status != models.EventCancelled {
			return status.Wrap(status.ErrEventNotCancelled, "event %d is %s", event.ID, event.Status)
		}

		if err := cl.state.DeductEscrow(ctx, event.ID, event.TicketPrice); err != nil {
			return err
		}
		ticket.Refunded = true
		if err := cl.state.PutTicket(ticket); err != nil {
			return err
		}
		escrow, err := cl.state.Escrow(ctx, event.ID)
		if err != nil {
			return err
		}
		cl.emit(notify.TopicRefund, map[string]any{
			"ticket_id": ticketID,
			"event_id":  event.ID,
			"buyer":     buyer,
			"amount":    event.TicketPrice,
		})
		cl.afterCommit(func() { c.monitor.SetEscrowBalance(event.ID, escrow.Balance) })
		return nil
	})
}

// AddValidator lets the organizer register door staff for an event.
func (c *Contract) AddValidator(ctx context.Context, organizer models.Address, eventID uint64, validator models.Address) error {
	return c.invoke(ctx, "add_validator", func(cl *call) error {
		if err := cl.state.RequireInitialized(ctx); err != nil {
			return err
		}
		if err := cl.requireAuth(organizer); err != nil {
			return err
		}
		if err := validation.Address(validator); err != nil {
			return err
		}
		if _, err := cl.loadOwnedEvent(eventID, organizer); err != nil {
			return err
		}
		if err := cl.state.AddValidator(eventID, validator); err != nil {
			return err
		}
		cl.emit(notify.TopicValidatorAdded, map[string]any{"event_id": eventID, "validator": validator})
		return nil
	})
}

func (c *Contract) RemoveValidator(ctx context.Context, organizer models.Address, eventID uint64, validator models.Address) error {
	return c.invoke(ctx, "remove_validator", func(cl *call) error {
		if err := cl.state.RequireInitialized(ctx); err != nil {
			return err
		}
		if err := cl.requireAuth(organizer); err != nil {
			return err
		}
		if _, err := cl.loadOwnedEvent(eventID, organizer); err != nil {
			return err
		}
		cl.state.RemoveValidator(eventID, validator)
		cl.emit(notify.TopicValidatorRemoved, map[string]any{"event_id": eventID, "validator": validator})
		return nil
	})
}

// IsValidator reports whether addr may check in tickets for the event. The
// organizer always may.
func (c *Contract) IsValidator(ctx context.Context, eventID uint64, addr models.Address) (bool, error) {
	var ok bool
	err := c.view(ctx, func(s *ledger.State) error {
		event, err := s.Event(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Organizer == addr {
			ok = true
			return nil
		}
		ok, err = s.IsValidator(ctx, eventID, addr)
		return err
	})
	return ok, err
}
