package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klasique-art/cafa-tickets-backend/internal/domain"
	"github.com/Klasique-art/cafa-tickets-backend/internal/gateway"
	"github.com/Klasique-art/cafa-tickets-backend/internal/repository"
)

type verifyFixture struct {
	store     *repository.MemoryStore
	transfers *MockTransferProvider
	waits     []time.Duration
	svc       VerificationService
}

func newVerifyFixture() *verifyFixture {
	f := &verifyFixture{
		store:     repository.NewMemoryStore(),
		transfers: &MockTransferProvider{},
	}
	f.svc = NewVerificationService(f.store, f.transfers, nil, &VerificationServiceConfig{
		Clock: func() time.Time { return testNow },
		Wait: func(ctx context.Context, d time.Duration) error {
			f.waits = append(f.waits, d)
			return nil
		},
	})
	return f
}

func (f *verifyFixture) bankProfile(t *testing.T) *domain.PaymentProfile {
	t.Helper()
	p, err := domain.NewPaymentProfile("org-1", domain.PayoutMethodBankTransfer, "Main account", "", domain.AccountDetails{
		AccountName:   "Kofi Mensah",
		AccountNumber: "0123456789",
		BankName:      "GCB Bank",
		BankCode:      "040",
	}, testNow)
	require.NoError(t, err)
	require.NoError(t, f.store.Repos().Profiles.Create(context.Background(), p))
	return p
}

func (f *verifyFixture) stored(t *testing.T, id string) *domain.PaymentProfile {
	t.Helper()
	p, err := f.store.Repos().Profiles.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func unresolvable(ctx context.Context, accountNumber, bankCode string) (*gateway.ResolvedAccount, error) {
	return nil, &gateway.Error{Kind: gateway.KindRejected, Op: "resolve_account", Message: "Could not resolve account name"}
}

func TestVerificationService_MobileMoneyVerifiesImmediately(t *testing.T) {
	f := newVerifyFixture()
	resolved := 0
	f.transfers.ResolveAccountFunc = func(ctx context.Context, accountNumber, bankCode string) (*gateway.ResolvedAccount, error) {
		resolved++
		return nil, nil
	}
	p, err := domain.NewPaymentProfile("org-1", domain.PayoutMethodMobileMoney, "MoMo", "", domain.AccountDetails{
		AccountName:  "Kofi Mensah",
		MobileNumber: "+233241234567",
		Network:      "MTN",
	}, testNow)
	require.NoError(t, err)
	require.NoError(t, f.store.Repos().Profiles.Create(context.Background(), p))

	got, err := f.svc.VerifyProfile(context.Background(), "org-1", p.ID, false)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	assert.Equal(t, domain.VerificationVerified, got.Status)
	assert.Regexp(t, `^VER-`, got.VerificationReference)
	assert.Equal(t, "RCP_test", got.RecipientCode)
	assert.Zero(t, resolved)
	assert.Equal(t, got.RecipientCode, f.stored(t, p.ID).RecipientCode)
}

func TestVerificationService_BankSucceedsAfterRetries(t *testing.T) {
	f := newVerifyFixture()
	p := f.bankProfile(t)

	calls := 0
	var midway string
	f.transfers.ResolveAccountFunc = func(ctx context.Context, accountNumber, bankCode string) (*gateway.ResolvedAccount, error) {
		calls++
		if calls < 3 {
			return nil, &gateway.Error{Kind: gateway.KindTransient, Op: "resolve_account", Message: "timeout"}
		}
		midway = f.stored(t, p.ID).FailureReason
		return &gateway.ResolvedAccount{AccountNumber: accountNumber, AccountName: "KOFI MENSAH"}, nil
	}

	got, err := f.svc.VerifyProfile(context.Background(), "org-1", p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "Attempt 2/5: timeout", midway)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, f.waits)

	assert.True(t, got.IsVerified)
	assert.Equal(t, 3, got.VerificationAttempts)
	assert.Equal(t, "KOFI MENSAH", got.ResolvedAccountName)
	assert.Empty(t, got.FailureReason)

	stored := f.stored(t, p.ID)
	assert.Equal(t, domain.VerificationVerified, stored.Status)
	assert.Equal(t, "RCP_test", stored.RecipientCode)
}

func TestVerificationService_ExhaustsAttempts(t *testing.T) {
	f := newVerifyFixture()
	p := f.bankProfile(t)
	f.transfers.ResolveAccountFunc = unresolvable

	got, err := f.svc.VerifyProfile(context.Background(), "org-1", p.ID, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrVerificationExhausted)
	require.NotNil(t, got)
	assert.Equal(t, domain.VerificationFailed, got.Status)
	assert.False(t, got.IsVerified)
	assert.Equal(t, 5, got.VerificationAttempts)
	assert.Equal(t, "Failed after 5 attempts: Could not resolve account name", got.FailureReason)
	assert.Len(t, f.waits, 4)

	stored := f.stored(t, p.ID)
	assert.Equal(t, domain.VerificationFailed, stored.Status)
	assert.Equal(t, got.FailureReason, stored.FailureReason)

	t.Run("retry keeps counting", func(t *testing.T) {
		f.transfers.ResolveAccountFunc = nil
		got, err := f.svc.VerifyProfile(context.Background(), "org-1", p.ID, true)
		require.NoError(t, err)
		assert.True(t, got.IsVerified)
		assert.Equal(t, 6, got.VerificationAttempts)
	})
}

func TestVerificationService_FreshRunResetsAttempts(t *testing.T) {
	f := newVerifyFixture()
	p := f.bankProfile(t)
	f.transfers.ResolveAccountFunc = unresolvable

	_, err := f.svc.VerifyProfile(context.Background(), "org-1", p.ID, false)
	require.ErrorIs(t, err, domain.ErrVerificationExhausted)

	f.transfers.ResolveAccountFunc = nil
	got, err := f.svc.VerifyProfile(context.Background(), "org-1", p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, got.VerificationAttempts)
}

func TestVerificationService_Ownership(t *testing.T) {
	f := newVerifyFixture()
	p := f.bankProfile(t)

	_, err := f.svc.VerifyProfile(context.Background(), "org-2", p.ID, false)
	assert.ErrorIs(t, err, domain.ErrProfileNotOwned)
	assert.True(t, domain.IsForbiddenError(err))

	_, err = f.svc.VerifyProfile(context.Background(), "org-1", "missing", false)
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestVerificationService_AlreadyVerified(t *testing.T) {
	f := newVerifyFixture()
	p := f.bankProfile(t)
	p.MarkVerified("KOFI MENSAH", "VER-OLD", testNow)
	require.NoError(t, f.store.Repos().Profiles.Update(context.Background(), p))

	resolved := 0
	f.transfers.ResolveAccountFunc = func(ctx context.Context, accountNumber, bankCode string) (*gateway.ResolvedAccount, error) {
		resolved++
		return nil, nil
	}

	got, err := f.svc.VerifyProfile(context.Background(), "org-1", p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "VER-OLD", got.VerificationReference)
	assert.Zero(t, resolved)
}

func TestVerificationService_RecipientFailureKeepsVerified(t *testing.T) {
	f := newVerifyFixture()
	p := f.bankProfile(t)
	f.transfers.CreateRecipientFunc = func(ctx context.Context, req *gateway.RecipientRequest) (string, error) {
		return "", &gateway.Error{Kind: gateway.KindTransient, Op: "create_recipient", Message: "unavailable"}
	}

	got, err := f.svc.VerifyProfile(context.Background(), "org-1", p.ID, false)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	assert.Empty(t, got.RecipientCode)
}

func TestVerificationService_Cancelled(t *testing.T) {
	f := newVerifyFixture()
	p := f.bankProfile(t)
	f.transfers.ResolveAccountFunc = unresolvable

	ctx, cancel := context.WithCancel(context.Background())
	svc := NewVerificationService(f.store, f.transfers, nil, &VerificationServiceConfig{
		Clock: func() time.Time { return testNow },
		Wait: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	got, err := svc.VerifyProfile(ctx, "org-1", p.ID, false)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.VerificationAttempts)
	assert.Equal(t, domain.VerificationFailed, got.Status)
}
