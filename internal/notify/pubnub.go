package notify

import (
	"context"
	"fmt"

	"ticket-escrow/utils"

	pubnub "github.com/pubnub/go"
)

// PubNubPublisher sends each notification to "<prefix>-<topic>". Calls pass
// through a circuit breaker so a PubNub outage fails fast.
type PubNubPublisher struct {
	prefix  string
	breaker *utils.CircuitBreaker
	send    func(channel string, message map[string]any) error
}

func NewPubNubPublisher(pn *pubnub.PubNub, prefix string) *PubNubPublisher {
	return &PubNubPublisher{
		prefix:  prefix,
		breaker: utils.NewCircuitBreaker("pubnub-notifications"),
		send: func(channel string, message map[string]any) error {
			_, _, err := pn.Publish().
				Channel(channel).
				Message(message).
				Execute()
			return err
		},
	}
}

func (p *PubNubPublisher) Channel(topic Topic) string {
	return fmt.Sprintf("%s-%s", p.prefix, topic)
}

func (p *PubNubPublisher) Publish(ctx context.Context, n Notification) error {
	message := map[string]any{
		"id":        n.ID,
		"type":      string(n.Topic),
		"timestamp": n.Timestamp,
		"data":      n.Data,
	}
	_, err := p.breaker.Execute(ctx, func() (any, error) {
		return nil, p.send(p.Channel(n.Topic), message)
	})
	if err != nil {
		return fmt.Errorf("pubnub publish %s: %w", n.Topic, err)
	}
	return nil
}
