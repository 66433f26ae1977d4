package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Klasique-art/cafa-tickets-backend/internal/event"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/kafka"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/retry"
)

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, evt *event.Event) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

// fakeSource hands out queued batches, then blocks until ctx is done
type fakeSource struct {
	mu        sync.Mutex
	batches   [][]*kafka.Record
	committed []*kafka.Record
}

func (s *fakeSource) Poll(ctx context.Context) ([]*kafka.Record, error) {
	s.mu.Lock()
	if len(s.batches) > 0 {
		batch := s.batches[0]
		s.batches = s.batches[1:]
		s.mu.Unlock()
		return batch, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *fakeSource) CommitRecords(ctx context.Context, records []*kafka.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, records...)
	return nil
}

func (s *fakeSource) committedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.committed)
}

type capturingDLQ struct {
	mu       sync.Mutex
	messages []*retry.DLQMessage
}

func (p *capturingDLQ) PublishToDLQ(ctx context.Context, msg *retry.DLQMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturingDLQ) GetDLQTopic(originalTopic string) string {
	return originalTopic + ".dlq"
}

func newTestConsumer(source RecordSource, notifier Notifier, dlq retry.DLQPublisher) *NotificationConsumer {
	policy := retry.FixedDelay(3, 0)
	policy.Wait = func(ctx context.Context, d time.Duration) error { return nil }
	return NewNotificationConsumer(source, notifier, retry.NewDLQHandler(dlq, policy, nil), &NotificationConsumerConfig{WorkerCount: 2}, nil)
}

func eventRecord(t *testing.T, evt *event.Event) *kafka.Record {
	t.Helper()
	value, err := json.Marshal(evt)
	require.NoError(t, err)
	return &kafka.Record{
		Topic: evt.Type.Topic(),
		Key:   []byte(evt.Key()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(evt.ID)},
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}
}

func completedEvent() *event.Event {
	return &event.Event{
		ID:         "evt-msg-1",
		Type:       event.PurchaseCompleted,
		PurchaseID: "ORD-1",
		BuyerEmail: "ama@example.com",
		TicketIDs:  []string{"TKT-1", "TKT-2"},
	}
}

func TestNotificationConsumer_Process(t *testing.T) {
	t.Run("delivered", func(t *testing.T) {
		source := &fakeSource{}
		notifier := new(MockNotifier)
		dlq := &capturingDLQ{}
		notifier.On("Notify", mock.Anything, mock.MatchedBy(func(evt *event.Event) bool {
			return evt.PurchaseID == "ORD-1" && len(evt.TicketIDs) == 2
		})).Return(nil).Once()

		c := newTestConsumer(source, notifier, dlq)
		c.Process(context.Background(), eventRecord(t, completedEvent()))

		notifier.AssertExpectations(t)
		assert.Empty(t, dlq.messages)
		assert.Equal(t, 1, source.committedCount())
	})

	t.Run("retries then dead-letters", func(t *testing.T) {
		source := &fakeSource{}
		notifier := new(MockNotifier)
		dlq := &capturingDLQ{}
		notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("smtp unavailable"))

		c := newTestConsumer(source, notifier, dlq)
		c.Process(context.Background(), eventRecord(t, completedEvent()))

		notifier.AssertNumberOfCalls(t, "Notify", 3)
		require.Len(t, dlq.messages, 1)
		msg := dlq.messages[0]
		assert.Equal(t, "evt-msg-1", msg.ID)
		assert.Equal(t, event.TopicPurchaseCompleted, msg.OriginalTopic)
		assert.Equal(t, "ORD-1", msg.OriginalKey)
		assert.Equal(t, "smtp unavailable", msg.Error)
		assert.Equal(t, 3, msg.Attempts)
		assert.Equal(t, 1, source.committedCount(), "dead-lettered records are committed")
	})

	t.Run("malformed payload is dead-lettered once", func(t *testing.T) {
		source := &fakeSource{}
		notifier := new(MockNotifier)
		dlq := &capturingDLQ{}

		c := newTestConsumer(source, notifier, dlq)
		c.Process(context.Background(), &kafka.Record{
			Topic: event.TopicPurchaseFailed,
			Value: []byte("{not json"),
		})

		notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
		require.Len(t, dlq.messages, 1)
		assert.Equal(t, 1, dlq.messages[0].Attempts)
		assert.True(t, json.Valid(dlq.messages[0].Payload))
		assert.Equal(t, 1, source.committedCount())
	})

	t.Run("not committed when shutting down", func(t *testing.T) {
		source := &fakeSource{}
		notifier := new(MockNotifier)
		notifier.On("Notify", mock.Anything, mock.Anything).Return(context.Canceled)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := newTestConsumer(source, notifier, retry.NoOpDLQPublisher{})
		c.Process(ctx, eventRecord(t, completedEvent()))

		assert.Zero(t, source.committedCount())
	})
}

func TestNotificationConsumer_Start(t *testing.T) {
	first := completedEvent()
	second := &event.Event{ID: "evt-msg-2", Type: event.WithdrawalUpdated, WithdrawalID: "wd-1", Status: "completed"}

	source := &fakeSource{batches: [][]*kafka.Record{
		{eventRecord(t, first)},
		{eventRecord(t, second)},
	}}
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	c := newTestConsumer(source, notifier, &capturingDLQ{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	assert.Eventually(t, func() bool { return source.committedCount() == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	notifier.AssertNumberOfCalls(t, "Notify", 2)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		evt     *event.Event
		wantErr bool
	}{
		{name: "tickets issued", evt: completedEvent()},
		{name: "tickets resent", evt: &event.Event{Type: event.TicketsResent, PurchaseID: "ORD-1"}},
		{name: "purchase expired", evt: &event.Event{Type: event.PurchaseExpired, PurchaseID: "ORD-2", Status: "expired"}},
		{name: "withdrawal updated", evt: &event.Event{Type: event.WithdrawalUpdated, WithdrawalID: "wd-1"}},
		{name: "unknown type", evt: &event.Event{Type: "purchase.refunded"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := n.Notify(ctx, tt.evt)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
