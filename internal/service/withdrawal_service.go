package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/dto"
	"github.com/Klasique-art/cafa-tickets-backend/internal/event"
	"github.com/Klasique-art/cafa-tickets-backend/internal/gateway"
	"github.com/Klasique-art/cafa-tickets-backend/internal/metrics"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/logger"
	"github.com/Klasique-art/cafa-tickets-backend/pkg/telemetry"
)

// WithdrawalService moves available revenue to an organizer's payout account
type WithdrawalService interface {
	// RequestWithdrawal reserves ledger entries for a new request and starts the transfer
	RequestWithdrawal(ctx context.Context, organizerID string, req *dto.RequestWithdrawalRequest) (*domain.WithdrawalRequest, error)

	// ProcessWithdrawal initiates the transfer of a pending request
	ProcessWithdrawal(ctx context.Context, withdrawalID string) (*domain.WithdrawalRequest, error)

	// HandleTransferWebhook applies a verified transfer notification
	HandleTransferWebhook(ctx context.Context, evt *gateway.WebhookEvent) error

	// CancelWithdrawal deletes a request that has not been claimed for a transfer and releases its entries
	CancelWithdrawal(ctx context.Context, organizerID, withdrawalID string) error

	// RejectWithdrawal is the manual rejection of a pending request
	RejectWithdrawal(ctx context.Context, withdrawalID, notes string) (*domain.WithdrawalRequest, error)

	// ListWithdrawals lists an organizer's requests, newest first
	ListWithdrawals(ctx context.Context, organizerID string, limit, offset int) ([]*domain.WithdrawalRequest, error)

	// ReconcileProcessing polls the provider, by transfer reference, for requests stuck in processing
	ReconcileProcessing(ctx context.Context, olderThan time.Duration) (int, error)
}

// WithdrawalServiceConfig contains configuration for withdrawal service
type WithdrawalServiceConfig struct {
	Rules *Rules
	Clock Clock

	// ManualProcessing leaves new requests pending instead of starting the transfer
	ManualProcessing bool

	// ReconcileBatch bounds how many processing requests one reconcile run checks
	ReconcileBatch int
}

type withdrawalService struct {
	store            repository.Store
	transfers        gateway.TransferProvider
	hooks            *event.Hooks
	log              *logger.Logger
	rules            *Rules
	now              Clock
	manualProcessing bool
	reconcileBatch   int
}

// NewWithdrawalService creates a new withdrawal service
func NewWithdrawalService(
	store repository.Store,
	transfers gateway.TransferProvider,
	hooks *event.Hooks,
	log *logger.Logger,
	cfg *WithdrawalServiceConfig,
) WithdrawalService {
	s := &withdrawalService{
		store:          store,
		transfers:      transfers,
		hooks:          hooks,
		log:            log,
		rules:          DefaultRules(),
		reconcileBatch: 50,
	}
	var clock Clock
	if cfg != nil {
		if cfg.Rules != nil {
			s.rules = cfg.Rules
		}
		if cfg.ReconcileBatch > 0 {
			s.reconcileBatch = cfg.ReconcileBatch
		}
		s.manualProcessing = cfg.ManualProcessing
		clock = cfg.Clock
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	s.now = clockOrDefault(clock)
	return s
}

// RequestWithdrawal validates the request, holds enough available entries to cover
// it and then starts the transfer
func (s *withdrawalService) RequestWithdrawal(ctx context.Context, organizerID string, req *dto.RequestWithdrawalRequest) (*domain.WithdrawalRequest, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.withdrawal.request")
	defer span.End()
	span.SetAttributes(attribute.String("organizer_id", organizerID))

	if req == nil || !req.Amount.IsPositive() {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, domain.ErrInvalidAmount
	}
	amount := domain.RoundMoney(req.Amount)
	if amount.LessThan(s.rules.MinWithdrawal) {
		span.SetStatus(codes.Error, "below minimum withdrawal")
		return nil, fmt.Errorf("%w of %s", domain.ErrBelowMinWithdrawal, s.rules.MinWithdrawal.StringFixed(2))
	}

	profile, err := s.store.Repos().Profiles.GetByID(ctx, req.PaymentProfileID)
	if err != nil {
		span.SetStatus(codes.Error, "profile lookup failed")
		return nil, err
	}
	if err := profile.CheckWithdrawable(organizerID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if profile.Method == domain.PayoutMethodMobileMoney && profile.RecipientCode == "" {
		span.SetStatus(codes.Error, "mobile money profile has no recipient")
		return nil, fmt.Errorf("%w: mobile money profile has no saved recipient", domain.ErrUnsupportedPayoutMethod)
	}

	now := s.now()
	var w *domain.WithdrawalRequest
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		if err := tx.Withdrawals.LockOrganizer(ctx, organizerID); err != nil {
			return err
		}
		switch _, err := tx.Withdrawals.GetActiveByOrganizer(ctx, organizerID); {
		case err == nil:
			return domain.ErrWithdrawalInFlight
		case !errors.Is(err, domain.ErrWithdrawalNotFound):
			return err
		}

		entries, err := tx.Revenue.ListAvailableForUpdate(ctx, organizerID)
		if err != nil {
			return fmt.Errorf("failed to load available revenue: %w", err)
		}
		available := decimal.Zero
		for _, e := range entries {
			available = available.Add(e.OrganizerEarnings)
		}
		if amount.GreaterThan(available) {
			return fmt.Errorf("%w: requested %s, available %s", domain.ErrInsufficientBalance, amount.StringFixed(2), available.StringFixed(2))
		}

		w = domain.NewWithdrawalRequest(organizerID, profile.ID, amount, s.rules.TransferFees, now)
		if err := tx.Withdrawals.Create(ctx, w); err != nil {
			return err
		}

		// Oldest entries first until the held sum covers the amount. The last entry
		// may push the held sum above the amount; the slack stays on hold with it.
		held := decimal.Zero
		for _, e := range entries {
			if held.GreaterThanOrEqual(amount) {
				break
			}
			if err := e.Hold(w.ID, now); err != nil {
				return err
			}
			if err := tx.Revenue.Update(ctx, e); err != nil {
				return fmt.Errorf("failed to hold revenue: %w", err)
			}
			held = held.Add(e.OrganizerEarnings)
		}
		span.SetAttributes(attribute.String("held", held.StringFixed(2)))
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.log.InfoContext(ctx, "withdrawal requested",
		zap.String("withdrawal_id", w.ID),
		zap.String("organizer_id", organizerID),
		zap.String("amount", w.RequestedAmount.StringFixed(2)),
		zap.String("fee", w.TransferFee.StringFixed(2)),
	)
	s.hooks.Run(ctx, event.NewWithdrawalEvent(w, now))

	if s.manualProcessing {
		return w, nil
	}
	return s.ProcessWithdrawal(ctx, w.ID)
}

// ProcessWithdrawal creates the transfer recipient when missing, claims the request
// and initiates the transfer. A rejected transfer fails the request and releases its
// entries. When the provider's answer is lost the request stays processing with its
// entries on hold until a webhook or reconciliation reports the outcome.
func (s *withdrawalService) ProcessWithdrawal(ctx context.Context, withdrawalID string) (*domain.WithdrawalRequest, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.withdrawal.process")
	defer span.End()
	span.SetAttributes(attribute.String("withdrawal_id", withdrawalID))

	repos := s.store.Repos()
	w, err := repos.Withdrawals.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if w.Status != domain.WithdrawalStatusPending {
		return w, nil
	}

	profile, err := repos.Profiles.GetByID(ctx, w.PaymentProfileID)
	if err != nil {
		return nil, err
	}

	recipient, err := s.ensureRecipient(ctx, profile)
	if err != nil {
		span.SetStatus(codes.Error, "recipient creation failed")
		return s.recordTransferOutcome(ctx, withdrawalID, transferUpdate{
			status: gateway.TransferFailed,
			reason: "Recipient creation failed: " + gateway.Reason(err),
		})
	}

	w, claimed, err := s.claim(ctx, withdrawalID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !claimed {
		return w, nil
	}

	start := time.Now()
	result, err := s.transfers.InitiateTransfer(ctx, &gateway.TransferRequest{
		Amount:        w.FinalAmount,
		RecipientCode: recipient,
		Reference:     w.TransferReference,
		Reason:        w.TransferReason(),
		Currency:      s.rules.Currency,
	})
	metrics.ObserveGateway("transfer", "initiate", start, err)
	if err != nil && gateway.IsTransient(err) {
		span.SetStatus(codes.Error, "transfer outcome unknown")
		s.log.WarnContext(ctx, "transfer outcome unknown, left for reconciliation",
			zap.String("withdrawal_id", w.ID),
			zap.Error(err),
		)
		return w, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, "transfer initiation failed")
		s.log.WarnContext(ctx, "transfer initiation rejected",
			zap.String("withdrawal_id", w.ID),
			zap.Error(err),
		)
		return s.recordTransferOutcome(ctx, withdrawalID, transferUpdate{
			status: gateway.TransferFailed,
			reason: gateway.Reason(err),
		})
	}

	return s.recordTransferOutcome(ctx, withdrawalID, transferUpdate{
		status:   result.Status,
		code:     result.TransferCode,
		reason:   result.Reason,
		response: result.Raw,
	})
}

// claim moves a pending request to processing with its id as the transfer reference.
// Once claimed the owner can no longer cancel it. claimed is false when another
// caller got there first.
func (s *withdrawalService) claim(ctx context.Context, withdrawalID string) (w *domain.WithdrawalRequest, claimed bool, err error) {
	now := s.now()
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		var err error
		if w, err = tx.Withdrawals.GetForUpdate(ctx, withdrawalID); err != nil {
			return err
		}
		if w.Status != domain.WithdrawalStatusPending {
			return nil
		}
		if err := w.StartProcessing("", w.ID, nil, now); err != nil {
			return err
		}
		claimed = true
		return tx.Withdrawals.Update(ctx, w)
	})
	if err != nil {
		return nil, false, err
	}
	if claimed {
		s.hooks.Run(ctx, event.NewWithdrawalEvent(w, now))
	}
	return w, claimed, nil
}

func (s *withdrawalService) ensureRecipient(ctx context.Context, profile *domain.PaymentProfile) (string, error) {
	if profile.RecipientCode != "" {
		return profile.RecipientCode, nil
	}
	code, err := createRecipient(ctx, s.transfers, profile, s.rules.Currency)
	if err != nil {
		return "", err
	}
	profile.SetRecipient(code, s.now())
	if err := s.store.Repos().Profiles.Update(ctx, profile); err != nil {
		return "", fmt.Errorf("failed to save recipient: %w", err)
	}
	return code, nil
}

// createRecipient registers the profile's destination with the transfer provider
func createRecipient(ctx context.Context, transfers gateway.TransferProvider, profile *domain.PaymentProfile, currency string) (string, error) {
	name := profile.ResolvedAccountName
	if name == "" {
		name = profile.AccountDetails.AccountName
	}
	start := time.Now()
	code, err := transfers.CreateRecipient(ctx, &gateway.RecipientRequest{
		Type:          profile.RecipientType(),
		Name:          name,
		AccountNumber: profile.DestinationNumber(),
		BankCode:      profile.DestinationBankCode(),
		Currency:      currency,
	})
	metrics.ObserveGateway("transfer", "create_recipient", start, err)
	return code, err
}

// transferUpdate is a transfer state reported by the provider
type transferUpdate struct {
	status   gateway.TransferStatus
	code     string
	reason   string
	response map[string]any
}

// recordTransferOutcome locks the request and applies the update in one transaction
func (s *withdrawalService) recordTransferOutcome(ctx context.Context, withdrawalID string, u transferUpdate) (*domain.WithdrawalRequest, error) {
	now := s.now()
	var (
		w       *domain.WithdrawalRequest
		changed bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		var err error
		if w, err = tx.Withdrawals.GetForUpdate(ctx, withdrawalID); err != nil {
			return err
		}
		changed, err = s.applyTransfer(ctx, tx, w, u, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.hooks.Run(ctx, event.NewWithdrawalEvent(w, now))
	}
	return w, nil
}

// applyTransfer moves the request and its ledger entries to match the provider's
// transfer state. It reports whether the status changed. Repeated updates for a
// terminal request change nothing, except a reversal after completion and a success
// after failure.
func (s *withdrawalService) applyTransfer(ctx context.Context, tx *repository.Repositories, w *domain.WithdrawalRequest, u transferUpdate, now time.Time) (bool, error) {
	changed := true
	switch u.status {
	case gateway.TransferPending:
		switch {
		case w.Status == domain.WithdrawalStatusPending:
			if err := w.StartProcessing(u.code, w.ID, u.response, now); err != nil {
				return false, err
			}
		case w.Status == domain.WithdrawalStatusProcessing && u.code != "" && w.TransferCode == "":
			if err := w.AttachTransfer(u.code, u.response, now); err != nil {
				return false, err
			}
			changed = false
		default:
			return false, nil
		}

	case gateway.TransferSuccess:
		switch w.Status {
		case domain.WithdrawalStatusPending:
			if err := w.StartProcessing(u.code, w.ID, u.response, now); err != nil {
				return false, err
			}
		case domain.WithdrawalStatusFailed:
			if w.FailureReason == domain.ReversedReason {
				return false, nil
			}
			if err := s.reclaimEntries(ctx, tx, w, now); err != nil {
				return false, err
			}
			if err := w.Reopen(now); err != nil {
				return false, err
			}
		}
		if w.Status != domain.WithdrawalStatusProcessing {
			return false, nil
		}
		if w.TransferCode == "" && u.code != "" {
			w.TransferCode = u.code
		}
		if err := w.Complete(u.response, now); err != nil {
			return false, err
		}
		if err := s.settleEntries(ctx, tx, w.ID, func(e *domain.OrganizerRevenue) (bool, error) {
			return true, e.MarkWithdrawn(now)
		}); err != nil {
			return false, err
		}

	case gateway.TransferFailed:
		if !w.IsActive() {
			return false, nil
		}
		reason := u.reason
		if reason == "" {
			reason = "Transfer failed"
		}
		if err := w.Fail(reason, u.response, now); err != nil {
			return false, err
		}
		if err := s.releaseEntries(ctx, tx, w.ID, false, now); err != nil {
			return false, err
		}

	case gateway.TransferReversed:
		switch w.Status {
		case domain.WithdrawalStatusProcessing, domain.WithdrawalStatusCompleted:
			if err := w.Reverse(u.response, now); err != nil {
				return false, err
			}
		case domain.WithdrawalStatusPending:
			if err := w.Fail(domain.ReversedReason, u.response, now); err != nil {
				return false, err
			}
		default:
			return false, nil
		}
		if err := s.releaseEntries(ctx, tx, w.ID, true, now); err != nil {
			return false, err
		}

	default:
		return false, fmt.Errorf("unknown transfer status %q", u.status)
	}

	if err := tx.Withdrawals.Update(ctx, w); err != nil {
		return false, fmt.Errorf("failed to update withdrawal: %w", err)
	}
	s.log.InfoContext(ctx, "withdrawal updated",
		zap.String("withdrawal_id", w.ID),
		zap.String("status", string(w.Status)),
		zap.String("transfer_code", w.TransferCode),
	)
	return changed, nil
}

// reclaimEntries holds available entries again for a failed request whose transfer
// was paid after all, oldest first up to the requested amount. The entries it held
// were released when it failed and may since have been withdrawn by another request;
// a shortfall is recorded on the request and logged as an error.
func (s *withdrawalService) reclaimEntries(ctx context.Context, tx *repository.Repositories, w *domain.WithdrawalRequest, now time.Time) error {
	if err := tx.Withdrawals.LockOrganizer(ctx, w.OrganizerID); err != nil {
		return err
	}
	entries, err := tx.Revenue.ListAvailableForUpdate(ctx, w.OrganizerID)
	if err != nil {
		return fmt.Errorf("failed to load available revenue: %w", err)
	}

	held := decimal.Zero
	for _, e := range entries {
		if held.GreaterThanOrEqual(w.RequestedAmount) {
			break
		}
		if err := e.Hold(w.ID, now); err != nil {
			return err
		}
		if err := tx.Revenue.Update(ctx, e); err != nil {
			return fmt.Errorf("failed to hold revenue: %w", err)
		}
		held = held.Add(e.OrganizerEarnings)
	}

	if held.LessThan(w.RequestedAmount) {
		short := w.RequestedAmount.Sub(held)
		w.AdminNotes = fmt.Sprintf("Paid out after failure; ledger short by %s", short.StringFixed(2))
		metrics.LatePayouts.WithLabelValues("short").Inc()
		s.log.ErrorContext(ctx, "late transfer success exceeds available revenue",
			zap.String("withdrawal_id", w.ID),
			zap.String("organizer_id", w.OrganizerID),
			zap.String("shortfall", short.StringFixed(2)),
		)
		return nil
	}
	metrics.LatePayouts.WithLabelValues("reclaimed").Inc()
	s.log.WarnContext(ctx, "late transfer success reclaimed revenue",
		zap.String("withdrawal_id", w.ID),
		zap.String("held", held.StringFixed(2)),
	)
	return nil
}

func (s *withdrawalService) settleEntries(ctx context.Context, tx *repository.Repositories, withdrawalID string, fn func(e *domain.OrganizerRevenue) (bool, error)) error {
	entries, err := tx.Revenue.ListByWithdrawalForUpdate(ctx, withdrawalID)
	if err != nil {
		return fmt.Errorf("failed to load held revenue: %w", err)
	}
	for _, e := range entries {
		changed, err := fn(e)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		if err := tx.Revenue.Update(ctx, e); err != nil {
			return fmt.Errorf("failed to update revenue: %w", err)
		}
	}
	return nil
}

// releaseEntries returns a request's entries to available and clears their link
func (s *withdrawalService) releaseEntries(ctx context.Context, tx *repository.Repositories, withdrawalID string, includeWithdrawn bool, now time.Time) error {
	return s.settleEntries(ctx, tx, withdrawalID, func(e *domain.OrganizerRevenue) (bool, error) {
		return e.Unhold(includeWithdrawn, now), nil
	})
}

// HandleTransferWebhook maps the transfer reference back to the withdrawal and applies the event
func (s *withdrawalService) HandleTransferWebhook(ctx context.Context, evt *gateway.WebhookEvent) error {
	ctx, span := telemetry.StartSpan(ctx, "service.withdrawal.handle_transfer_webhook")
	defer span.End()
	span.SetAttributes(attribute.String("event", evt.Event))

	var status gateway.TransferStatus
	switch evt.Event {
	case gateway.EventTransferSuccess:
		status = gateway.TransferSuccess
	case gateway.EventTransferFailed:
		status = gateway.TransferFailed
	case gateway.EventTransferReversed:
		status = gateway.TransferReversed
	default:
		metrics.WebhooksTotal.WithLabelValues("transfer", "ignored").Inc()
		return nil
	}

	data, err := evt.Transfer()
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("transfer", "invalid").Inc()
		return err
	}
	span.SetAttributes(attribute.String("reference", data.Reference))

	reason := data.Reason
	if status == gateway.TransferReversed {
		reason = domain.ReversedReason
	}
	_, err = s.recordTransferOutcome(ctx, data.Reference, transferUpdate{
		status:   status,
		code:     data.TransferCode,
		reason:   reason,
		response: evt.RawData(),
	})
	if errors.Is(err, domain.ErrWithdrawalNotFound) {
		s.log.WarnContext(ctx, "transfer webhook for unknown withdrawal", zap.String("reference", data.Reference))
		metrics.WebhooksTotal.WithLabelValues("transfer", "unknown").Inc()
		return nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.WebhooksTotal.WithLabelValues("transfer", "error").Inc()
		return err
	}
	metrics.WebhooksTotal.WithLabelValues("transfer", "processed").Inc()
	return nil
}

// CancelWithdrawal lets the owner withdraw a request that has not been sent yet
func (s *withdrawalService) CancelWithdrawal(ctx context.Context, organizerID, withdrawalID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.withdrawal.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("withdrawal_id", withdrawalID))

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		w, err := tx.Withdrawals.GetForUpdate(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if w.OrganizerID != organizerID {
			return domain.ErrWithdrawalNotFound
		}
		if !w.CanCancel() {
			return domain.ErrWithdrawalNotCancellable
		}
		if err := s.releaseEntries(ctx, tx, w.ID, false, s.now()); err != nil {
			return err
		}
		return tx.Withdrawals.Delete(ctx, w.ID)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.log.InfoContext(ctx, "withdrawal cancelled", zap.String("withdrawal_id", withdrawalID))
	return nil
}

// RejectWithdrawal rejects a pending request and releases its entries
func (s *withdrawalService) RejectWithdrawal(ctx context.Context, withdrawalID, notes string) (*domain.WithdrawalRequest, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.withdrawal.reject")
	defer span.End()
	span.SetAttributes(attribute.String("withdrawal_id", withdrawalID))

	now := s.now()
	var w *domain.WithdrawalRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		var err error
		if w, err = tx.Withdrawals.GetForUpdate(ctx, withdrawalID); err != nil {
			return err
		}
		if err := w.Reject(notes, now); err != nil {
			return err
		}
		if err := s.releaseEntries(ctx, tx, w.ID, false, now); err != nil {
			return err
		}
		return tx.Withdrawals.Update(ctx, w)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.hooks.Run(ctx, event.NewWithdrawalEvent(w, now))
	return w, nil
}

func (s *withdrawalService) ListWithdrawals(ctx context.Context, organizerID string, limit, offset int) ([]*domain.WithdrawalRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Repos().Withdrawals.ListByOrganizer(ctx, organizerID, limit, offset)
}

// ReconcileProcessing asks the provider about requests that stayed in processing
// longer than olderThan and applies what it reports
func (s *withdrawalService) ReconcileProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.withdrawal.reconcile_processing")
	defer span.End()

	stuck, err := s.store.Repos().Withdrawals.ListProcessingBefore(ctx, s.now().Add(-olderThan), s.reconcileBatch)
	if err != nil {
		span.SetStatus(codes.Error, "failed to list processing withdrawals")
		return 0, fmt.Errorf("failed to list processing withdrawals: %w", err)
	}

	updated := 0
	for _, w := range stuck {
		reference := w.TransferReference
		if reference == "" {
			reference = w.ID
		}
		start := time.Now()
		result, err := s.transfers.VerifyTransfer(ctx, reference)
		metrics.ObserveGateway("transfer", "verify", start, err)

		var u transferUpdate
		switch {
		case errors.Is(err, gateway.ErrTransferNotFound):
			u = transferUpdate{status: gateway.TransferFailed, reason: "Transfer was not initiated"}
		case err != nil:
			s.log.WarnContext(ctx, "transfer status check failed",
				zap.String("withdrawal_id", w.ID),
				zap.Error(err),
			)
			continue
		default:
			u = transferUpdate{
				status:   result.Status,
				code:     result.TransferCode,
				reason:   result.Reason,
				response: result.Raw,
			}
		}

		after, err := s.recordTransferOutcome(ctx, w.ID, u)
		if err != nil {
			s.log.ErrorContext(ctx, "failed to reconcile withdrawal",
				zap.String("withdrawal_id", w.ID),
				zap.Error(err),
			)
			continue
		}
		if after.Status != domain.WithdrawalStatusProcessing {
			updated++
		}
	}

	span.SetAttributes(attribute.Int("reconciled", updated))
	return updated, nil
}
