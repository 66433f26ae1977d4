package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/metrics"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/telemetry"
)

// RevenueService reads and matures the organizer revenue ledger
type RevenueService interface {
	// Balances splits an organizer's earnings by ledger status
	Balances(ctx context.Context, organizerID string) (*domain.RevenueSummary, error)

	// ReleaseMatured makes pending entries whose holding period ended withdrawable
	ReleaseMatured(ctx context.Context, now time.Time) (int, error)

	// ListEntries lists an organizer's ledger entries, newest first
	ListEntries(ctx context.Context, organizerID string, filter repository.RevenueFilter) ([]*domain.OrganizerRevenue, error)
}

type revenueService struct {
	store repository.Store
	log   *logger.Logger
}

// NewRevenueService creates a new revenue service
func NewRevenueService(store repository.Store, log *logger.Logger) RevenueService {
	if log == nil {
		log = logger.NewNop()
	}
	return &revenueService{store: store, log: log}
}

func (s *revenueService) Balances(ctx context.Context, organizerID string) (*domain.RevenueSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.revenue.balances")
	defer span.End()
	span.SetAttributes(attribute.String("organizer_id", organizerID))

	repos := s.store.Repos()
	entries, err := repos.Revenue.ListByOrganizer(ctx, organizerID, repository.RevenueFilter{})
	if err != nil {
		span.SetStatus(codes.Error, "failed to list revenue")
		return nil, fmt.Errorf("failed to list revenue: %w", err)
	}
	counts, err := repos.Withdrawals.CountByOrganizer(ctx, organizerID)
	if err != nil {
		span.SetStatus(codes.Error, "failed to count withdrawals")
		return nil, fmt.Errorf("failed to count withdrawals: %w", err)
	}

	summary := domain.Summarize(organizerID, entries)
	summary.ActiveWithdrawals = counts[domain.WithdrawalStatusPending] + counts[domain.WithdrawalStatusProcessing]
	summary.CompletedWithdrawals = counts[domain.WithdrawalStatusCompleted]
	return summary, nil
}

func (s *revenueService) ReleaseMatured(ctx context.Context, now time.Time) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.revenue.release_matured")
	defer span.End()

	n, err := s.store.Repos().Revenue.ReleaseMatured(ctx, now)
	if err != nil {
		span.SetStatus(codes.Error, "failed to release revenue")
		return 0, fmt.Errorf("failed to release matured revenue: %w", err)
	}

	if n > 0 {
		metrics.RevenueReleased.Add(float64(n))
		s.log.Info("released matured revenue", zap.Int("entries", n))
	}
	span.SetAttributes(attribute.Int("released", n))
	return n, nil
}

func (s *revenueService) ListEntries(ctx context.Context, organizerID string, filter repository.RevenueFilter) ([]*domain.OrganizerRevenue, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.revenue.list_entries")
	defer span.End()

	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.Repos().Revenue.ListByOrganizer(ctx, organizerID, filter)
}
