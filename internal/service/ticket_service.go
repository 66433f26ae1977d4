package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/dto"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/telemetry"
)

// TicketService admits ticket holders at the door
type TicketService interface {
	// CheckIn marks a paid ticket as used. Only the event's organizer may check tickets in,
	// and only while the event is running.
	CheckIn(ctx context.Context, ticketID, actorID string) (*dto.CheckInResponse, error)
}

type ticketService struct {
	store repository.Store
	log   *logger.Logger
	now   Clock
}

// NewTicketService creates a new ticket service
func NewTicketService(store repository.Store, log *logger.Logger, clock Clock) TicketService {
	if log == nil {
		log = logger.NewNop()
	}
	return &ticketService{store: store, log: log, now: clockOrDefault(clock)}
}

func (s *ticketService) CheckIn(ctx context.Context, ticketID, actorID string) (*dto.CheckInResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket.check_in")
	defer span.End()
	span.SetAttributes(attribute.String("ticket_id", ticketID))

	now := s.now()
	var ticket *domain.Ticket
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		var err error
		if ticket, err = tx.Tickets.GetForUpdate(ctx, ticketID); err != nil {
			return err
		}
		evt, err := tx.Events.GetByID(ctx, ticket.EventID)
		if err != nil {
			return err
		}
		if evt.OrganizerID != actorID {
			return domain.ErrNotEventOrganizer
		}
		if !evt.IsRunning(now) {
			return domain.ErrTicketNotCheckable
		}
		if err := ticket.CheckIn(actorID, now); err != nil {
			return err
		}
		return tx.Tickets.Update(ctx, ticket)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.log.InfoContext(ctx, "ticket checked in",
		zap.String("ticket_id", ticket.ID),
		zap.String("event_id", ticket.EventID),
	)
	return &dto.CheckInResponse{
		TicketID:     ticket.ID,
		AttendeeName: ticket.Attendee.Name,
		EventID:      ticket.EventID,
		Status:       string(ticket.Status),
		CheckedInAt:  *ticket.CheckedInAt,
	}, nil
}
