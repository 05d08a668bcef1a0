package contract

import (
	"context"
	"testing"

	"ticket-escrow/internal/notify"
	"ticket-escrow/internal/status"
	"ticket-escrow/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEvent_RoundTrip(t *testing.T) {
	f := newFixture(t, 0)
	org := newAddress(t)

	first, err := f.c.CreateEvent(as(org), org, defaultParams())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)

	second, err := f.c.CreateEvent(as(org), org, defaultParams())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second)

	event, err := f.c.GetEvent(context.Background(), first)
	require.NoError(t, err)
	p := defaultParams()
	assert.Equal(t, org, event.Organizer)
	assert.Equal(t, p.Name, event.Name)
	assert.Equal(t, p.Description, event.Description)
	assert.Equal(t, p.Location, event.Location)
	assert.Equal(t, p.StartTime, event.StartTime)
	assert.Equal(t, p.EndTime, event.EndTime)
	assert.True(t, p.TicketPrice.Equal(event.TicketPrice))
	assert.Equal(t, p.MaxTickets, event.MaxTickets)
	assert.Equal(t, uint32(0), event.TicketsSold)
	assert.Equal(t, models.EventDraft, event.Status)

	created := f.rec.ByTopic(notify.TopicEventCreated)
	require.Len(t, created, 2)
	assert.Equal(t, first, created[0].Data["event_id"])
}

func TestGetEvent_NotFound(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.c.GetEvent(context.Background(), 42)
	assertCode(t, err, status.ErrEventNotFound)
}

func TestCreateEvent_Validation(t *testing.T) {
	f := newFixture(t, 0)
	org := newAddress(t)

	tests := []struct {
		name   string
		mutate func(p *EventParams)
		want   *status.Error
	}{
		{"zero price", func(p *EventParams) { p.TicketPrice = decimal.Zero }, status.ErrInvalidAmount},
		{"negative price", func(p *EventParams) { p.TicketPrice = decimal.NewFromInt(-5) }, status.ErrInvalidAmount},
		{"fractional price", func(p *EventParams) { p.TicketPrice = decimal.RequireFromString("9.5") }, status.ErrInvalidAmount},
		{"zero capacity", func(p *EventParams) { p.MaxTickets = 0 }, status.ErrCapacityExceeded},
		{"start equals end", func(p *EventParams) { p.StartTime = p.EndTime }, status.ErrInvalidTimeRange},
		{"start after end", func(p *EventParams) { p.StartTime = p.EndTime + 1 }, status.ErrInvalidTimeRange},
		{"empty name", func(p *EventParams) { p.Name = "" }, status.ErrEmptyString},
		{"price checked before capacity", func(p *EventParams) {
			p.TicketPrice = decimal.Zero
			p.MaxTickets = 0
		}, status.ErrInvalidAmount},
		{"capacity checked before time range", func(p *EventParams) {
			p.MaxTickets = 0
			p.StartTime = p.EndTime
		}, status.ErrCapacityExceeded},
		{"time range checked before name", func(p *EventParams) {
			p.StartTime = p.EndTime
			p.Name = ""
		}, status.ErrInvalidTimeRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := defaultParams()
			tt.mutate(&p)
			_, err := f.c.CreateEvent(as(org), org, p)
			assertCode(t, err, tt.want)
		})
	}

	_, err := f.c.GetEvent(context.Background(), 1)
	assertCode(t, err, status.ErrEventNotFound)
}

func TestCreateEvent_Authorization(t *testing.T) {
	f := newFixture(t, 0)
	org, other := newAddress(t), newAddress(t)

	_, err := f.c.CreateEvent(as(other), org, defaultParams())
	assertCode(t, err, status.ErrUnauthorized)

	bad := models.Address("not-an-address")
	_, err = f.c.CreateEvent(as(bad), bad, defaultParams())
	assertCode(t, err, status.ErrInvalidAddress)
}

func TestUpdateEventStatus_TransitionTable(t *testing.T) {
	all := []models.EventStatus{
		models.EventDraft, models.EventPublished, models.EventActive,
		models.EventCompleted, models.EventCancelled,
	}
	legal := map[[2]models.EventStatus]bool{
		{models.EventDraft, models.EventPublished}:     true,
		{models.EventPublished, models.EventCompleted}: true,
		{models.EventPublished, models.EventCancelled}: true,
		{models.EventActive, models.EventCompleted}:    true,
		{models.EventActive, models.EventCancelled}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			t.Run(from.String()+"_to_"+to.String(), func(t *testing.T) {
				f := newFixture(t, 0)
				f.now = 5_000
				org := newAddress(t)
				event := models.Event{
					ID: 1, Organizer: org, Name: "gig",
					StartTime: 2_000, EndTime: 3_000,
					TicketPrice: decimal.NewFromInt(10), MaxTickets: 5,
					Status: from,
				}
				f.putEvent(event)

				err := f.c.UpdateEventStatus(as(org), 1, to, org)
				got, gerr := f.c.GetEvent(context.Background(), 1)
				require.NoError(t, gerr)

				assert.Equal(t, legal[[2]models.EventStatus{from, to}], CanTransition(from, to))
				if legal[[2]models.EventStatus{from, to}] {
					require.NoError(t, err)
					assert.Equal(t, to, got.Status)
					require.Len(t, f.rec.ByTopic(notify.TopicStatusChanged), 1)
				} else {
					assertCode(t, err, status.ErrInvalidStatusTransition)
					assert.Equal(t, from, got.Status)
					assert.Empty(t, f.rec.ByTopic(notify.TopicStatusChanged))
				}
			})
		}
	}
}

func TestCompleteEvent_RequiresEndTime(t *testing.T) {
	f := newFixture(t, 0)
	org := newAddress(t)
	eventID := f.publishedEvent(org, defaultParams())

	f.now = 2_999
	assertCode(t, f.c.CompleteEvent(as(org), org, eventID), status.ErrInvalidStatusTransition)

	event, err := f.c.GetEvent(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, models.EventPublished, event.Status)

	f.now = 3_000
	require.NoError(t, f.c.CompleteEvent(as(org), org, eventID))

	event, err = f.c.GetEvent(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, models.EventCompleted, event.Status)

	assertCode(t, f.c.CancelEvent(as(org), org, eventID), status.ErrInvalidStatusTransition)
}

func TestUpdateEventStatus_OnlyOrganizer(t *testing.T) {
	f := newFixture(t, 0)
	org, other := newAddress(t), newAddress(t)
	id, err := f.c.CreateEvent(as(org), org, defaultParams())
	require.NoError(t, err)

	tests := []struct {
		name   string
		ctx    context.Context
		caller models.Address
	}{
		{"unsigned organizer", context.Background(), org},
		{"signed stranger", as(other), other},
		{"stranger signing for organizer", as(other), org},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.c.UpdateEventStatus(tt.ctx, id, models.EventPublished, tt.caller)
			assertCode(t, err, status.ErrUnauthorized)
		})
	}

	event, err := f.c.GetEvent(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.EventDraft, event.Status)

	assertCode(t, f.c.UpdateEventStatus(as(org), 99, models.EventPublished, org), status.ErrEventNotFound)
}

func TestListEvents(t *testing.T) {
	f := newFixture(t, 0)
	org1, org2 := newAddress(t), newAddress(t)

	create := func(org models.Address, name, description, location string) uint64 {
		p := defaultParams()
		p.Name, p.Description, p.Location = name, description, location
		id, err := f.c.CreateEvent(as(org), org, p)
		require.NoError(t, err)
		return id
	}
	rock := create(org1, "Rock Night", "Loud guitars", "Vientiane")
	create(org1, "Jazz Brunch", "Horns and coffee", "Luang Prabang")
	festival := create(org2, "Rock Festival", "Three stages", "Pakse")
	poetry := create(org2, "Poetry Evening", "Quiet, rock-free readings", "Vientiane")
	film := create(org1, "Film Screening", "Open air", "Pakse")

	for _, p := range []struct {
		org models.Address
		id  uint64
	}{{org1, rock}, {org2, festival}, {org2, poetry}, {org1, film}} {
		require.NoError(t, f.c.PublishEvent(as(p.org), p.org, p.id))
	}
	require.NoError(t, f.c.CancelEvent(as(org2), org2, poetry))

	published := models.EventPublished
	draft := models.EventDraft

	tests := []struct {
		name       string
		filter     EventFilter
		wantIDs    []uint64
		wantTotal  int
		wantPages  int
		wantLimit  int
		wantPageNo int
	}{
		{"defaults", EventFilter{}, []uint64{5, 4, 3, 2, 1}, 5, 1, 10, 1},
		{"by status", EventFilter{Status: &published}, []uint64{5, 3, 1}, 3, 1, 10, 1},
		{"by organizer", EventFilter{Organizer: org2}, []uint64{4, 3}, 2, 1, 10, 1},
		{"status and organizer", EventFilter{Status: &published, Organizer: org1}, []uint64{5, 1}, 2, 1, 10, 1},
		{"search spans fields", EventFilter{Search: "rock"}, []uint64{4, 3, 1}, 3, 1, 10, 1},
		{"search ignores case", EventFilter{Search: "VIENTIANE"}, []uint64{4, 1}, 2, 1, 10, 1},
		{"draft search", EventFilter{Status: &draft, Search: "jazz"}, []uint64{2}, 1, 1, 10, 1},
		{"second page", EventFilter{Page: 2, Limit: 2}, []uint64{3, 2}, 5, 3, 2, 2},
		{"last page", EventFilter{Page: 3, Limit: 2}, []uint64{1}, 5, 3, 2, 3},
		{"past the end", EventFilter{Page: 4, Limit: 2}, []uint64{}, 5, 3, 2, 4},
		{"limit is capped", EventFilter{Limit: 500}, []uint64{5, 4, 3, 2, 1}, 5, 1, 100, 1},
		{"no match", EventFilter{Search: "opera"}, []uint64{}, 0, 0, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.c.ListEvents(context.Background(), tt.filter)
			require.NoError(t, err)

			ids := []uint64{}
			for _, e := range page.Data {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Equal(t, tt.wantPages, page.TotalPages)
			assert.Equal(t, tt.wantLimit, page.Limit)
			assert.Equal(t, tt.wantPageNo, page.Page)
		})
	}
}

func TestListEvents_Empty(t *testing.T) {
	f := newUninitialized(t, 0)

	page, err := f.c.ListEvents(context.Background(), EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Zero(t, page.Total)
	assert.Equal(t, 0, f.backend.Len())
}
