package contract

import (
	"context"
	"errors"
	"strings"

	"ticket-escrow/internal/ledger"
	"ticket-escrow/internal/notify"
	"ticket-escrow/internal/status"
	"ticket-escrow/internal/validation"
	"ticket-escrow/models"

	"github.com/shopspring/decimal"
)

// EventParams are the organizer-supplied fields of a new event.
type EventParams struct {
	Name        string
	Description string
	Location    string
	StartTime   uint64
	EndTime     uint64
	TicketPrice decimal.Decimal
	MaxTickets  uint32
}

func (p EventParams) validate() error {
	if err := validation.PositiveAmount(p.TicketPrice); err != nil {
		return err
	}
	if err := validation.PositiveCapacity(p.MaxTickets); err != nil {
		return err
	}
	if err := validation.TimeRange(p.StartTime, p.EndTime); err != nil {
		return err
	}
	return validation.NonEmpty(p.Name)
}

// transitions lists the legal targets for each status. Completed and
// Cancelled have none.
var transitions = map[models.EventStatus][]models.EventStatus{
	models.EventDraft:     {models.EventPublished},
	models.EventPublished: {models.EventCompleted, models.EventCancelled},
	models.EventActive:    {models.EventCompleted, models.EventCancelled},
}

func CanTransition(from, to models.EventStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CreateEvent stores a new Draft event and returns its id.
func (c *Contract) CreateEvent(ctx context.Context, organizer models.Address, p EventParams) (uint64, error) {
	var eventID uint64
	err := c.invoke(ctx, "create_event", func(cl *call) error {
		if err := cl.state.RequireInitialized(ctx); err != nil {
			return err
		}
		if err := cl.requireAuth(organizer); err != nil {
			return err
		}
		if err := validation.Address(organizer); err != nil {
			return err
		}
		if err := p.validate(); err != nil {
			return err
		}

		id, err := cl.state.NextEventID(ctx)
		if err != nil {
			return err
		}
		event := models.Event{
			ID:          id,
			Organizer:   organizer,
			Name:        p.Name,
			Description: p.Description,
			Location:    p.Location,
			StartTime:   p.StartTime,
			EndTime:     p.EndTime,
			TicketPrice: p.TicketPrice,
			MaxTickets:  p.MaxTickets,
			TicketsSold: 0,
			Status:      models.EventDraft,
		}
		if err := cl.state.PutEvent(event); err != nil {
			return err
		}
		eventID = id
		cl.emit(notify.TopicEventCreated, map[string]any{
			"event_id":  id,
			"organizer": organizer,
			"name":      p.Name,
		})
		return nil
	})
	return eventID, err
}

func (c *Contract) GetEvent(ctx context.Context, eventID uint64) (models.Event, error) {
	var event models.Event
	err := c.view(ctx, func(s *ledger.State) error {
		var err error
		event, err = s.Event(ctx, eventID)
		return err
	})
	return event, err
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// EventFilter narrows ListEvents. Zero fields match every event.
type EventFilter struct {
	Status    *models.EventStatus
	Organizer models.Address
	// Search matches name, description or location, case-insensitively.
	Search string
	Page   int
	Limit  int
}

func (f EventFilter) matches(e models.Event) bool {
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	if f.Organizer != "" && e.Organizer != f.Organizer {
		return false
	}
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	for _, field := range []string{e.Name, e.Description, e.Location} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

type EventPage struct {
	Data       []models.Event `json:"data"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

// ListEvents returns one page of the events matching filter, newest first.
// Page defaults to 1 and Limit to 10, capped at 100.
func (c *Contract) ListEvents(ctx context.Context, filter EventFilter) (EventPage, error) {
	page := EventPage{Data: []models.Event{}, Page: max(filter.Page, 1), Limit: filter.Limit}
	if page.Limit <= 0 {
		page.Limit = defaultPageLimit
	}
	page.Limit = min(page.Limit, maxPageLimit)

	err := c.view(ctx, func(s *ledger.State) error {
		count, err := s.EventCount(ctx)
		if err != nil {
			return err
		}
		skip := (page.Page - 1) * page.Limit
		for id := count; id >= 1; id-- {
			event, err := s.Event(ctx, id)
			if errors.Is(err, status.ErrEventNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if !filter.matches(event) {
				continue
			}
			page.Total++
			if page.Total > skip && len(page.Data) < page.Limit {
				page.Data = append(page.Data, event)
			}
		}
		return nil
	})
	if err != nil {
		return EventPage{}, err
	}
	page.TotalPages = (page.Total + page.Limit - 1) / page.Limit
	return page, nil
}

// loadOwnedEvent loads the event and checks caller organizes it.
func (cl *call) loadOwnedEvent(eventID uint64, caller models.Address) (models.Event, error) {
	event, err := cl.state.Event(cl.ctx, eventID)
	if err != nil {
		return models.Event{}, err
	}
	if event.Organizer != caller {
		return models.Event{}, status.Wrap(status.ErrUnauthorized, "%s does not organize event %d", caller, eventID)
	}
	return event, nil
}

// transition applies the status table to an event owned by caller.
func (cl *call) transition(eventID uint64, to models.EventStatus, caller models.Address) error {
	if err := cl.state.RequireInitialized(cl.ctx); err != nil {
		return err
	}
	if err := cl.requireAuth(caller); err != nil {
		return err
	}
	event, err := cl.loadOwnedEvent(eventID, caller)
	if err != nil {
		return err
	}

	from := event.Status
	if !CanTransition(from, to) {
		return status.Wrap(status.ErrInvalidStatusTransition, "event %d: %s to %s", eventID, from, to)
	}
	if to == models.EventCompleted && cl.now < event.EndTime {
		return status.Wrap(status.ErrInvalidStatusTransition, "event %d ends at %d, now %d", eventID, event.EndTime, cl.now)
	}

	event.Status = to
	if err := cl.state.PutEvent(event); err != nil {
		return err
	}
	cl.emit(notify.TopicStatusChanged, map[string]any{
		"event_id": eventID,
		"from":     from.String(),
		"to":       to.String(),
	})
	return nil
}

// UpdateEventStatus moves an event along the status table. Only its organizer may.
func (c *Contract) UpdateEventStatus(ctx context.Context, eventID uint64, newStatus models.EventStatus, caller models.Address) error {
	return c.invoke(ctx, "update_event_status", func(cl *call) error {
		return cl.transition(eventID, newStatus, caller)
	})
}

func (c *Contract) PublishEvent(ctx context.Context, organizer models.Address, eventID uint64) error {
	return c.invoke(ctx, "publish_event", func(cl *call) error {
		return cl.transition(eventID, models.EventPublished, organizer)
	})
}

// CancelEvent opens refunds for every ticket of the event.
func (c *Contract) CancelEvent(ctx context.Context, organizer models.Address, eventID uint64) error {
	return c.invoke(ctx, "cancel_event", func(cl *call) error {
		return cl.transition(eventID, models.EventCancelled, organizer)
	})
}

// CompleteEvent is allowed once the event's end time has passed.
func (c *Contract) CompleteEvent(ctx context.Context, organizer models.Address, eventID uint64) error {
	return c.invoke(ctx, "complete_event", func(cl *call) error {
		return cl.transition(eventID, models.EventCompleted, organizer)
	})
}
