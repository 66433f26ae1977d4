package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/gateway"
	"github.com/Klasique-art/cafa-tickets-backend/internal/metrics"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/retry"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/telemetry"
)

// VerificationService confirms that a payout account exists before money is sent to it
type VerificationService interface {
	// VerifyProfile resolves the profile's account with the provider, retrying
	// transient failures up to the configured number of attempts
	VerifyProfile(ctx context.Context, organizerID, profileID string, isRetry bool) (*domain.PaymentProfile, error)
}

// VerificationServiceConfig contains configuration for verification service
type VerificationServiceConfig struct {
	Rules *Rules
	Clock Clock

	// Wait replaces the delay between attempts, used by tests
	Wait func(ctx context.Context, d time.Duration) error
}

type verificationService struct {
	store     repository.Store
	transfers gateway.TransferProvider
	log       *logger.Logger
	rules     *Rules
	now       Clock
	wait      func(ctx context.Context, d time.Duration) error
}

// NewVerificationService creates a new verification service
func NewVerificationService(
	store repository.Store,
	transfers gateway.TransferProvider,
	log *logger.Logger,
	cfg *VerificationServiceConfig,
) VerificationService {
	s := &verificationService{
		store:     store,
		transfers: transfers,
		log:       log,
		rules:     DefaultRules(),
	}
	var clock Clock
	if cfg != nil {
		if cfg.Rules != nil {
			s.rules = cfg.Rules
		}
		clock = cfg.Clock
		s.wait = cfg.Wait
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	s.now = clockOrDefault(clock)
	return s
}

// VerifyProfile verifies mobile money profiles immediately. Bank accounts are resolved
// with the provider; every failed attempt is recorded on the profile and the profile
// fails verification once the attempts are used up.
func (s *verificationService) VerifyProfile(ctx context.Context, organizerID, profileID string, isRetry bool) (*domain.PaymentProfile, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.verification.verify_profile")
	defer span.End()
	span.SetAttributes(
		attribute.String("profile_id", profileID),
		attribute.Bool("is_retry", isRetry),
	)

	repos := s.store.Repos()
	profile, err := repos.Profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile.OrganizerID != organizerID {
		return nil, domain.ErrProfileNotOwned
	}
	if profile.IsVerified && profile.Status == domain.VerificationVerified {
		return profile, nil
	}

	profile.BeginVerification(isRetry, s.now())
	if err := repos.Profiles.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	if profile.Method == domain.PayoutMethodMobileMoney {
		profile.MarkVerified(profile.AccountDetails.AccountName, domain.NewVerificationReference(), s.now())
		metrics.VerificationAttempts.WithLabelValues("verified").Inc()
		return s.finish(ctx, profile)
	}

	maxAttempts := s.rules.VerificationMaxAttempts
	policy := retry.FixedDelay(maxAttempts, s.rules.VerificationRetryDelay)
	policy.Wait = s.wait
	retrier := retry.New(policy)

	var resolved *gateway.ResolvedAccount
	result := retrier.DoWithCallback(ctx, func(ctx context.Context) error {
		profile.RecordAttempt(s.now())
		start := time.Now()
		acct, err := s.transfers.ResolveAccount(ctx, profile.AccountDetails.AccountNumber, profile.AccountDetails.BankCode)
		metrics.ObserveGateway("transfer", "resolve_account", start, err)
		if err != nil {
			return err
		}
		resolved = acct
		return nil
	}, func(attempt int, err error, next time.Duration) {
		metrics.VerificationAttempts.WithLabelValues("failed").Inc()
		profile.RecordAttemptFailure(gateway.Reason(err), maxAttempts, s.now())
		if uerr := repos.Profiles.Update(ctx, profile); uerr != nil {
			s.log.ErrorContext(ctx, "failed to record verification attempt",
				zap.String("profile_id", profile.ID),
				zap.Error(uerr),
			)
		}
		s.log.WarnContext(ctx, "account verification attempt failed",
			zap.String("profile_id", profile.ID),
			zap.Int("attempt", attempt),
			zap.Duration("next_attempt_in", next),
			zap.Error(err),
		)
	})

	if result.Err != nil {
		msg := "verification failed"
		if result.LastError != nil {
			msg = gateway.Reason(result.LastError)
		}
		profile.MarkVerificationFailed(msg, maxAttempts, s.now())
		if err := repos.Profiles.Update(ctx, profile); err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
		span.SetStatus(codes.Error, "verification exhausted")
		if errors.Is(result.Err, retry.ErrContextCanceled) {
			return profile, ctx.Err()
		}
		return profile, fmt.Errorf("%w: %s", domain.ErrVerificationExhausted, msg)
	}

	if !profile.NameMatches(resolved.AccountName) {
		s.log.WarnContext(ctx, "resolved account name differs from profile",
			zap.String("profile_id", profile.ID),
			zap.String("entered", profile.AccountDetails.AccountName),
			zap.String("resolved", resolved.AccountName),
		)
	}
	profile.MarkVerified(resolved.AccountName, domain.NewVerificationReference(), s.now())
	metrics.VerificationAttempts.WithLabelValues("verified").Inc()
	return s.finish(ctx, profile)
}

// finish saves a verified profile and registers it as a transfer recipient.
// A recipient failure leaves the profile verified; withdrawals create it later.
func (s *verificationService) finish(ctx context.Context, profile *domain.PaymentProfile) (*domain.PaymentProfile, error) {
	if profile.RecipientCode == "" {
		code, err := createRecipient(ctx, s.transfers, profile, s.rules.Currency)
		if err != nil {
			s.log.WarnContext(ctx, "failed to create transfer recipient",
				zap.String("profile_id", profile.ID),
				zap.Error(err),
			)
		} else {
			profile.SetRecipient(code, s.now())
		}
	}
	if err := s.store.Repos().Profiles.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	s.log.InfoContext(ctx, "payment profile verified",
		zap.String("profile_id", profile.ID),
		zap.String("reference", profile.VerificationReference),
	)
	return profile, nil
}
