package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type EventStatus uint8

const (
	EventDraft EventStatus = iota
	EventPublished
	EventActive // legacy open state, behaves like Published
	EventCompleted
	EventCancelled
)

var eventStatusNames = map[EventStatus]string{
	EventDraft:     "draft",
	EventPublished: "published",
	EventActive:    "active",
	EventCompleted: "completed",
	EventCancelled: "cancelled",
}

func (s EventStatus) String() string {
	if name, ok := eventStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ParseEventStatus accepts the lowercase names produced by String.
func ParseEventStatus(name string) (EventStatus, error) {
	for status, n := range eventStatusNames {
		if n == name {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown event status %q", name)
}

func (s EventStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *EventStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseEventStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Open reports whether tickets can be bought and the event can still be
// completed or cancelled.
func (s EventStatus) Open() bool {
	return s == EventPublished || s == EventActive
}

func (s EventStatus) Terminal() bool {
	return s == EventCompleted || s == EventCancelled
}

type Event struct {
	ID          uint64          `json:"id" cbor:"1,keyasint"`
	Organizer   Address         `json:"organizer" cbor:"2,keyasint"`
	Name        string          `json:"name" cbor:"3,keyasint"`
	Description string          `json:"description" cbor:"4,keyasint"`
	Location    string          `json:"location" cbor:"5,keyasint"`
	StartTime   uint64          `json:"start_time" cbor:"6,keyasint"`
	EndTime     uint64          `json:"end_time" cbor:"7,keyasint"`
	TicketPrice decimal.Decimal `json:"ticket_price" cbor:"8,keyasint"`
	MaxTickets  uint32          `json:"max_tickets" cbor:"9,keyasint"`
	TicketsSold uint32          `json:"tickets_sold" cbor:"10,keyasint"`
	Status      EventStatus     `json:"status" cbor:"11,keyasint"`
}

func (e *Event) SoldOut() bool {
	return e.TicketsSold >= e.MaxTickets
}
