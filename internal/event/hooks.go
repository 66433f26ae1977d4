package event

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/metrics"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
)

// Hook reacts to a committed event
type Hook func(ctx context.Context, evt *Event) error

type namedHook struct {
	name string
	fn   Hook
}

// Hooks runs an ordered list of hooks after a transaction commits.
// A failing hook is logged and the remaining hooks still run.
type Hooks struct {
	hooks []namedHook
	log   *logger.Logger
}

// NewHooks creates an empty hook list
func NewHooks(log *logger.Logger) *Hooks {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hooks{log: log}
}

// Register appends a hook
func (h *Hooks) Register(name string, fn Hook) *Hooks {
	h.hooks = append(h.hooks, namedHook{name: name, fn: fn})
	return h
}

// Names returns the registered hook names in run order
func (h *Hooks) Names() []string {
	names := make([]string, 0, len(h.hooks))
	for _, nh := range h.hooks {
		names = append(names, nh.name)
	}
	return names
}

// Run delivers every event to every hook in order
func (h *Hooks) Run(ctx context.Context, events ...*Event) {
	if h == nil {
		return
	}
	for _, evt := range events {
		if evt == nil {
			continue
		}
		for _, nh := range h.hooks {
			if err := h.call(ctx, nh, evt); err != nil {
				h.log.ErrorContext(ctx, "post-commit hook failed",
					zap.String("hook", nh.name),
					zap.String("event_type", string(evt.Type)),
					zap.String("event_id", evt.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func (h *Hooks) call(ctx context.Context, nh namedHook, evt *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return nh.fn(ctx, evt)
}

// MetricsHook counts purchase and withdrawal transitions
func MetricsHook() Hook {
	return func(ctx context.Context, evt *Event) error {
		switch evt.Type {
		case WithdrawalUpdated:
			metrics.WithdrawalsTotal.WithLabelValues(evt.Status).Inc()
		case TicketsResent:
		default:
			metrics.PurchasesTotal.WithLabelValues(evt.Status).Inc()
		}
		return nil
	}
}

// PublishHook sends the event to the message bus
func PublishHook(pub Publisher) Hook {
	return func(ctx context.Context, evt *Event) error {
		return pub.Publish(ctx, evt)
	}
}

// LoggingHook writes one line per event
func LoggingHook(log *logger.Logger) Hook {
	return func(ctx context.Context, evt *Event) error {
		log.InfoContext(ctx, "state change committed",
			zap.String("event_type", string(evt.Type)),
			zap.String("purchase_id", evt.PurchaseID),
			zap.String("withdrawal_id", evt.WithdrawalID),
			zap.String("status", evt.Status),
		)
		return nil
	}
}

// DefaultHooks wires metrics, publish and logging in that order
func DefaultHooks(log *logger.Logger, pub Publisher) *Hooks {
	if log == nil {
		log = logger.NewNop()
	}
	return NewHooks(log).
		Register("metrics", MetricsHook()).
		Register("publish", PublishHook(pub)).
		Register("log", LoggingHook(log))
}
