package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
)

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) ProduceJSON(ctx context.Context, topic string, key string, data interface{}, headers map[string]string) error {
	args := m.Called(ctx, topic, key, data, headers)
	return args.Error(0)
}

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testPurchase() *domain.Purchase {
	return &domain.Purchase{
		ID:          "ORD-1",
		BuyerID:     "buyer-1",
		EventID:     "evt-1",
		OrganizerID: "org-1",
		Attendee:    domain.Attendee{Name: "Ama", Email: "ama@example.com"},
		Total:       decimal.RequireFromString("105"),
		Currency:    "GHS",
		Status:      domain.PurchaseStatusCompleted,
	}
}

func TestType_Topic(t *testing.T) {
	tests := []struct {
		typ   Type
		topic string
	}{
		{PurchaseCompleted, TopicPurchaseCompleted},
		{TicketsResent, TopicPurchaseCompleted},
		{PurchaseFailed, TopicPurchaseFailed},
		{PurchaseCancelled, TopicPurchaseFailed},
		{PurchaseExpired, TopicPurchaseExpired},
		{WithdrawalUpdated, TopicWithdrawalUpdated},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.topic, tt.typ.Topic())
		})
	}
}

func TestNewPurchaseEvent(t *testing.T) {
	tickets := []*domain.Ticket{{ID: "TKT-1"}, {ID: "TKT-2"}}
	evt := NewPurchaseEvent(PurchaseCompleted, testPurchase(), tickets, now)

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, "ORD-1", evt.Key())
	assert.Equal(t, []string{"TKT-1", "TKT-2"}, evt.TicketIDs)
	assert.Equal(t, "105.00", evt.Amount)
	assert.Equal(t, "ama@example.com", evt.BuyerEmail)
}

func TestNewWithdrawalEvent(t *testing.T) {
	w := &domain.WithdrawalRequest{
		ID:          "w-1",
		OrganizerID: "org-1",
		FinalAmount: decimal.NewFromInt(90),
		Status:      domain.WithdrawalStatusFailed,
	}
	evt := NewWithdrawalEvent(w, now)
	assert.Equal(t, "w-1", evt.Key())
	assert.Equal(t, TopicWithdrawalUpdated, evt.Type.Topic())
	assert.Equal(t, "failed", evt.Status)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := new(MockProducer)
	pub, err := NewKafkaPublisher(producer, "test", nil)
	require.NoError(t, err)

	evt := NewPurchaseEvent(PurchaseExpired, testPurchase(), nil, now)
	producer.On("ProduceJSON", mock.Anything, TopicPurchaseExpired, "ORD-1", evt,
		mock.MatchedBy(func(h map[string]string) bool {
			return h["event_type"] == string(PurchaseExpired) && h["source"] == "test"
		}),
	).Return(nil)

	require.NoError(t, pub.Publish(context.Background(), evt))
	producer.AssertExpectations(t)
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	producer := new(MockProducer)
	pub, _ := NewKafkaPublisher(producer, "", nil)
	producer.On("ProduceJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker down"))

	err := pub.Publish(context.Background(), NewPurchaseEvent(PurchaseFailed, testPurchase(), nil, now))
	assert.ErrorContains(t, err, "broker down")
}

func TestNewKafkaPublisher_RequiresProducer(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "x", nil)
	assert.Error(t, err)
}

func TestHooks_RunInOrderAndSurviveFailures(t *testing.T) {
	var calls []string
	hooks := NewHooks(nil).
		Register("first", func(ctx context.Context, evt *Event) error {
			calls = append(calls, "first:"+evt.PurchaseID)
			return errors.New("ignored")
		}).
		Register("second", func(ctx context.Context, evt *Event) error {
			calls = append(calls, "second:"+evt.PurchaseID)
			panic("boom")
		}).
		Register("third", func(ctx context.Context, evt *Event) error {
			calls = append(calls, "third:"+evt.PurchaseID)
			return nil
		})

	a := &Event{PurchaseID: "a"}
	b := &Event{PurchaseID: "b"}
	hooks.Run(context.Background(), a, nil, b)

	assert.Equal(t, []string{"first:a", "second:a", "third:a", "first:b", "second:b", "third:b"}, calls)
	assert.Equal(t, []string{"first", "second", "third"}, hooks.Names())
}

func TestDefaultHooks(t *testing.T) {
	hooks := DefaultHooks(nil, NoOpPublisher{})
	assert.Equal(t, []string{"metrics", "publish", "log"}, hooks.Names())

	var nilHooks *Hooks
	assert.NotPanics(t, func() { nilHooks.Run(context.Background(), &Event{}) })
	assert.NotPanics(t, func() { hooks.Run(context.Background(), NewPurchaseEvent(PurchaseCompleted, testPurchase(), nil, now)) })
}
