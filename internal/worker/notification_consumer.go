package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/event"
	"github.com/Klasique-art/cafa-tickets-backend/internal/metrics"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/kafka"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/retry"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/telemetry"
)

// Notifier tells buyers and organizers about a committed state change
type Notifier interface {
	Notify(ctx context.Context, evt *event.Event) error
}

// LogNotifier records notifications in the log. Rendering and sending email
// is done by a separate delivery service.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Get()
	}
	return &LogNotifier{log: log}
}

// Notify implements Notifier
func (n *LogNotifier) Notify(ctx context.Context, evt *event.Event) error {
	switch evt.Type {
	case event.PurchaseCompleted, event.TicketsResent:
		n.log.InfoContext(ctx, "notify buyer: tickets issued",
			zap.String("purchase_id", evt.PurchaseID),
			zap.String("email", evt.BuyerEmail),
			zap.Strings("ticket_ids", evt.TicketIDs),
		)
	case event.PurchaseFailed, event.PurchaseCancelled, event.PurchaseExpired:
		n.log.InfoContext(ctx, "notify buyer: purchase closed",
			zap.String("purchase_id", evt.PurchaseID),
			zap.String("email", evt.BuyerEmail),
			zap.String("status", evt.Status),
			zap.String("reason", evt.Reason),
		)
	case event.WithdrawalUpdated:
		n.log.InfoContext(ctx, "notify organizer: withdrawal updated",
			zap.String("organizer_id", evt.OrganizerID),
			zap.String("withdrawal_id", evt.WithdrawalID),
			zap.String("status", evt.Status),
			zap.String("amount", evt.Amount),
		)
	default:
		return fmt.Errorf("unknown event type %q", evt.Type)
	}
	return nil
}

// RecordSource is the consumer side of the message bus
type RecordSource interface {
	Poll(ctx context.Context) ([]*kafka.Record, error)
	CommitRecords(ctx context.Context, records []*kafka.Record) error
}

// NotificationConsumerConfig contains configuration for the notification consumer
type NotificationConsumerConfig struct {
	WorkerCount int
	// PollBackoff is the pause after a failed poll
	PollBackoff time.Duration
}

// NotificationConsumer turns purchase and withdrawal events into notifications.
// Deliveries that keep failing are dead-lettered and the record is committed.
type NotificationConsumer struct {
	source   RecordSource
	notifier Notifier
	dlq      *retry.DLQHandler
	config   *NotificationConsumerConfig
	log      *logger.Logger
}

// NewNotificationConsumer creates a new notification consumer
func NewNotificationConsumer(
	source RecordSource,
	notifier Notifier,
	dlq *retry.DLQHandler,
	config *NotificationConsumerConfig,
	log *logger.Logger,
) *NotificationConsumer {
	if config == nil {
		config = &NotificationConsumerConfig{}
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 5
	}
	if config.PollBackoff <= 0 {
		config.PollBackoff = time.Second
	}
	if log == nil {
		log = logger.Get()
	}
	return &NotificationConsumer{
		source:   source,
		notifier: notifier,
		dlq:      dlq,
		config:   config,
		log:      log,
	}
}

// Start consumes until ctx is done or the source is closed, then waits for the
// workers to drain
func (c *NotificationConsumer) Start(ctx context.Context) error {
	c.log.Info("starting notification consumer", zap.Int("workers", c.config.WorkerCount))

	recordsCh := make(chan *kafka.Record, c.config.WorkerCount*10)

	var wg sync.WaitGroup
	for i := 0; i < c.config.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for record := range recordsCh {
				c.Process(ctx, record)
			}
		}()
	}

	err := c.poll(ctx, recordsCh)
	close(recordsCh)
	wg.Wait()

	c.log.Info("notification consumer stopped")
	return err
}

func (c *NotificationConsumer) poll(ctx context.Context, recordsCh chan<- *kafka.Record) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		records, err := c.source.Poll(ctx)
		if err != nil {
			if errors.Is(err, kafka.ErrClientClosed) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("failed to poll messages", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.PollBackoff):
			}
			continue
		}

		for _, record := range records {
			select {
			case recordsCh <- record:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Process delivers one record and commits it
func (c *NotificationConsumer) Process(ctx context.Context, record *kafka.Record) {
	headers := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	ctx = telemetry.ExtractMap(ctx, headers)
	ctx, span := telemetry.StartSpan(ctx, "worker.notification.process")
	defer span.End()

	payload := json.RawMessage(record.Value)
	if !json.Valid(record.Value) {
		// keep the DLQ message encodable
		payload, _ = json.Marshal(string(record.Value))
	}
	msgCtx := &retry.MessageContext{
		ID:      headers["event_id"],
		Topic:   record.Topic,
		Key:     string(record.Key),
		Payload: payload,
		Headers: headers,
	}

	err := c.dlq.ProcessWithDLQ(ctx, msgCtx, func(ctx context.Context) error {
		var evt event.Event
		if err := json.Unmarshal(record.Value, &evt); err != nil {
			return retry.Permanent(fmt.Errorf("malformed event: %w", err))
		}
		return c.notifier.Notify(ctx, &evt)
	})
	if err != nil {
		if ctx.Err() != nil {
			// shutting down; the record is redelivered after restart
			return
		}
		c.log.WarnContext(ctx, "notification dead-lettered",
			zap.String("topic", record.Topic),
			zap.String("event_id", msgCtx.ID),
			zap.Error(err),
		)
		metrics.NotificationsTotal.WithLabelValues(record.Topic, "dead_lettered").Inc()
	} else {
		metrics.NotificationsTotal.WithLabelValues(record.Topic, "delivered").Inc()
	}

	if err := c.source.CommitRecords(ctx, []*kafka.Record{record}); err != nil {
		c.log.ErrorContext(ctx, "failed to commit record",
			zap.String("topic", record.Topic),
			zap.Int64("offset", record.Offset),
			zap.Error(err),
		)
	}
}
