package service

import (
	"context"
	"fmt"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/dto"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/telemetry"
)

// PaymentProfileService manages organizer payout destinations
type PaymentProfileService interface {
	Create(ctx context.Context, organizerID string, req *dto.CreatePaymentProfileRequest) (*domain.PaymentProfile, error)
	Get(ctx context.Context, organizerID, profileID string) (*domain.PaymentProfile, error)
	Verify(ctx context.Context, organizerID, profileID string, isRetry bool) (*domain.PaymentProfile, error)
}

type paymentProfileService struct {
	store    repository.Store
	verifier VerificationService
	now      Clock
}

// NewPaymentProfileService creates a new payment profile service
func NewPaymentProfileService(store repository.Store, verifier VerificationService, clock Clock) PaymentProfileService {
	return &paymentProfileService{store: store, verifier: verifier, now: clockOrDefault(clock)}
}

func (s *paymentProfileService) Create(ctx context.Context, organizerID string, req *dto.CreatePaymentProfileRequest) (*domain.PaymentProfile, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment_profile.create")
	defer span.End()

	profile, err := domain.NewPaymentProfile(organizerID, domain.PayoutMethod(req.Method), req.Name, req.Description, req.AccountDetails, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Repos().Profiles.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create payment profile: %w", err)
	}
	return profile, nil
}

func (s *paymentProfileService) Get(ctx context.Context, organizerID, profileID string) (*domain.PaymentProfile, error) {
	profile, err := s.store.Repos().Profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile.OrganizerID != organizerID {
		return nil, domain.ErrProfileNotFound
	}
	return profile, nil
}

func (s *paymentProfileService) Verify(ctx context.Context, organizerID, profileID string, isRetry bool) (*domain.PaymentProfile, error) {
	return s.verifier.VerifyProfile(ctx, organizerID, profileID, isRetry)
}
