package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ticket-escrow/utils"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, n Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func TestRecorder_KeepsOrder(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder()

	require.NoError(t, r.Publish(ctx, Notification{ID: "1", Topic: TopicEventCreated}))
	require.NoError(t, r.Publish(ctx, Notification{ID: "2", Topic: TopicCheckIn}))
	require.NoError(t, r.Publish(ctx, Notification{ID: "3", Topic: TopicCheckIn}))

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "1", all[0].ID)
	assert.Len(t, r.ByTopic(TopicCheckIn), 2)
	assert.Empty(t, r.ByTopic(TopicRefund))
}

func TestFanout_PublishesToAllAndJoinsErrors(t *testing.T) {
	ctx := context.Background()
	n := Notification{ID: "1", Topic: TopicTransfer}

	failing := &MockPublisher{}
	failing.On("Publish", ctx, n).Return(errors.New("sink down"))
	rec := NewRecorder()

	err := Fanout{failing, rec}.Publish(ctx, n)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Len(t, rec.All(), 1)
	failing.AssertExpectations(t)
}

func TestPubNubPublisher_SendsToTopicChannel(t *testing.T) {
	var gotChannel string
	var gotMessage map[string]any
	p := &PubNubPublisher{
		prefix:  "ticket-escrow",
		breaker: utils.NewCircuitBreaker("test"),
		send: func(channel string, message map[string]any) error {
			gotChannel = channel
			gotMessage = message
			return nil
		},
	}

	err := p.Publish(context.Background(), Notification{
		ID:    "abc",
		Topic: TopicCheckIn,
		Data:  map[string]any{"ticket_id": uint64(1)},
	})

	require.NoError(t, err)
	assert.Equal(t, "ticket-escrow-check_in", gotChannel)
	assert.Equal(t, "check_in", gotMessage["type"])
	assert.Equal(t, "abc", gotMessage["id"])
}

func TestPubNubPublisher_WrapsErrors(t *testing.T) {
	p := &PubNubPublisher{
		prefix:  "ticket-escrow",
		breaker: utils.NewCircuitBreaker("test"),
		send: func(string, map[string]any) error {
			return errors.New("403 forbidden")
		},
	}

	err := p.Publish(context.Background(), Notification{ID: "abc", Topic: TopicRefund})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pubnub publish refund")
}

func TestRedisStream_Publish(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	s := NewRedisStream(db, "main")

	redisMock.ExpectXAdd(&redis.XAddArgs{
		Stream: "contract:main:notifications",
		Values: []any{
			"id", "n1",
			"topic", "fees_withdrawn",
			"timestamp", "1500",
			"data", `{"amount":"25"}`,
		},
	}).SetVal("1-0")

	err := s.Publish(context.Background(), Notification{
		ID:        "n1",
		Topic:     "fees_withdrawn",
		Timestamp: 1500,
		Data:      map[string]any{"amount": "25"},
	})

	require.NoError(t, err)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRedisStream_Recent(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	s := NewRedisStream(db, "main")

	redisMock.ExpectXRevRangeN("contract:main:notifications", "+", "-", 2).SetVal([]redis.XMessage{
		{ID: "2-0", Values: map[string]any{"id": "n2", "topic": "refund", "timestamp": "1600", "data": `{"ticket_id":3}`}},
		{ID: "1-0", Values: map[string]any{"id": "n1", "topic": "transfer", "timestamp": "1500", "data": `{}`}},
	})

	got, err := s.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, TopicRefund, got[0].Topic)
	assert.Equal(t, uint64(1600), got[0].Timestamp)
	assert.Equal(t, float64(3), got[0].Data["ticket_id"])
	assert.Equal(t, "n1", got[1].ID)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRedisStream_RecentRejectsCorruptEntry(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	s := NewRedisStream(db, "main")

	redisMock.ExpectXRevRangeN("contract:main:notifications", "+", "-", 1).SetVal([]redis.XMessage{
		{ID: "1-0", Values: map[string]any{"id": "n1", "topic": "refund", "timestamp": "yesterday"}},
	})

	_, err := s.Recent(context.Background(), 1)
	assert.Error(t, err)
}
