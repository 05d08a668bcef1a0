// Package notify publishes contract notifications for external indexers.
// The contract never reads them back.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

type Topic string

const (
	TopicInitialized       Topic = "initialized"
	TopicAdminChanged      Topic = "admin_changed"
	TopicEventCreated      Topic = "event_created"
	TopicStatusChanged     Topic = "status_changed"
	TopicTicketPurchased   Topic = "ticket_purchased"
	TopicCheckIn           Topic = "check_in"
	TopicTransfer          Topic = "transfer"
	TopicRefund            Topic = "refund"
	TopicValidatorAdded    Topic = "validator_added"
	TopicValidatorRemoved  Topic = "validator_removed"
	TopicEscrowReleased    Topic = "escrow_released"
	TopicSignersSet        Topic = "escrow_signers_set"
	TopicReleaseApproved   Topic = "release_approved"
	TopicApprovalRevoked   Topic = "approval_revoked"
	TopicEscrowDistributed Topic = "escrow_distributed"
	TopicFeeSet            Topic = "platform_fee_set"
	TopicFeesWithdrawn     Topic = "platform_fees_withdrawn"
)

type Notification struct {
	ID        string         `json:"id"`
	Topic     Topic          `json:"topic"`
	Timestamp uint64         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Recorder keeps every notification in memory, in publish order.
type Recorder struct {
	mu  sync.Mutex
	log []Notification
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, n)
	return nil
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.log))
	copy(out, r.log)
	return out
}

// ByTopic filters the recorded log.
func (r *Recorder) ByTopic(topic Topic) []Notification {
	var out []Notification
	for _, n := range r.All() {
		if n.Topic == topic {
			out = append(out, n)
		}
	}
	return out
}

// Logger writes notifications to slog.
type Logger struct{}

func (Logger) Publish(_ context.Context, n Notification) error {
	slog.Info("contract notification", "id", n.ID, "topic", n.Topic, "timestamp", n.Timestamp, "data", n.Data)
	return nil
}

// Fanout publishes to every sink and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, n Notification) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
