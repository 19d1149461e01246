package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdhoward/cypressresortweb/internal/application/services"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/crypto"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/persistence/memory"
	"github.com/pdhoward/cypressresortweb/internal/mocks"
	apperrors "github.com/pdhoward/cypressresortweb/pkg/errors"
	"github.com/pdhoward/cypressresortweb/pkg/logger"
)

func wrapUnavailable(err error) error {
	return apperrors.Unavailable(err, "slow store")
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "  Guest@Cypress.Test ", want: "guest@cypress.test"},
		{in: "a.b+tag@example.com", want: "a.b+tag@example.com"},
		{in: "", wantErr: true},
		{in: "not-an-email", wantErr: true},
		{in: "Guest <guest@cypress.test>", wantErr: true},
		{in: "guest@", wantErr: true},
		{in: "@cypress.test", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := services.NormalizeEmail(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidEmail)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIssueChallenge_StoresHashedChallenge(t *testing.T) {
	f := newOTPFixture(t, testConfig(), nil)

	ref, code := f.issue(t, testEmail)
	assert.True(t, crypto.IsWellFormedCode(code))

	c, err := f.challenges.Get(context.Background(), f.tokenGen.HashToken(ref))
	require.NoError(t, err)
	assert.Equal(t, testEmail, c.Email)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), c.ExpiresAt)
	assert.NotContains(t, string(c.CodeHash), code)
	assert.Zero(t, c.Attempts)
}

func TestIssueChallenge_NormalizesEmail(t *testing.T) {
	f := newOTPFixture(t, testConfig(), nil)
	f.mailer.EXPECT().Send(gomock.Any(), testEmail, gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.svc.IssueChallenge(context.Background(), "  GUEST@cypress.test")
	require.NoError(t, err)
}

func TestIssueChallenge_InvalidEmail(t *testing.T) {
	f := newOTPFixture(t, testConfig(), nil)

	_, err := f.svc.IssueChallenge(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrInvalidEmail)
}

func TestIssueChallenge_DeliveryFailureRollsBack(t *testing.T) {
	f := newOTPFixture(t, testConfig(), nil)

	f.mailer.EXPECT().
		Send(gomock.Any(), testEmail, gomock.Any(), gomock.Any()).
		Return(errors.New("smtp down"))

	resp, err := f.svc.IssueChallenge(context.Background(), testEmail)
	assert.ErrorIs(t, err, apperrors.ErrDeliveryFailed)
	assert.Nil(t, resp)

	n, err := f.challenges.DeleteExpired(context.Background(), f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "undelivered challenge should have been deleted")
}

func TestIssueChallenge_DeliveryFailureReleasesCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.OTP.ResendCooldown = time.Minute
	f := newOTPFixture(t, cfg, memory.NewCooldown(nil))

	f.mailer.EXPECT().
		Send(gomock.Any(), testEmail, gomock.Any(), gomock.Any()).
		Return(errors.New("smtp down"))

	_, err := f.svc.IssueChallenge(context.Background(), testEmail)
	require.ErrorIs(t, err, apperrors.ErrDeliveryFailed)

	ref, code := f.issue(t, testEmail)
	_, err = f.svc.Verify(context.Background(), testEmail, code, ref)
	require.NoError(t, err)

	_, err = f.svc.IssueChallenge(context.Background(), testEmail)
	assert.ErrorIs(t, err, apperrors.ErrResendCooldown, "a delivered code still starts the window")
}

func TestIssueChallenge_StoreFailureReleasesCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.OTP.ResendCooldown = time.Minute
	cfg.Store.Timeout = 10 * time.Millisecond

	ctrl := gomock.NewController(t)
	cooldown := mocks.NewMockCooldown(ctrl)
	cooldown.EXPECT().Acquire(gomock.Any(), testEmail, time.Minute).Return(true, nil)
	cooldown.EXPECT().Release(gomock.Any(), testEmail).Return(nil)

	svc := services.NewOTPService(
		slowChallenges{},
		cooldown,
		mocks.NewMockMailer(ctrl),
		crypto.NewTokenGenerator(),
		crypto.NewCodeHasher([]byte(cfg.OTP.Pepper)),
		cfg,
		logger.NewNop(),
		time.Now,
	)

	_, err := svc.IssueChallenge(context.Background(), testEmail)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestIssueChallenge_Cooldown(t *testing.T) {
	cfg := testConfig()
	cfg.OTP.ResendCooldown = time.Minute

	ctrl := gomock.NewController(t)
	cooldown := mocks.NewMockCooldown(ctrl)
	f := newOTPFixture(t, cfg, cooldown)

	cooldown.EXPECT().Acquire(gomock.Any(), testEmail, time.Minute).Return(true, nil)
	f.issue(t, testEmail)

	cooldown.EXPECT().Acquire(gomock.Any(), testEmail, time.Minute).Return(false, nil)
	_, err := f.svc.IssueChallenge(context.Background(), testEmail)
	assert.ErrorIs(t, err, apperrors.ErrResendCooldown)
}

func TestIssueChallenge_CooldownDisabledByDefault(t *testing.T) {
	ctrl := gomock.NewController(t)
	cooldown := mocks.NewMockCooldown(ctrl)
	f := newOTPFixture(t, testConfig(), cooldown)

	// No Acquire expectation: a zero window must not consult the cooldown.
	f.issue(t, testEmail)
	f.issue(t, testEmail)
}

func TestIssueChallenge_MultipleChallengesCoexist(t *testing.T) {
	f := newOTPFixture(t, testConfig(), nil)

	ref1, code1 := f.issue(t, testEmail)
	ref2, code2 := f.issue(t, testEmail)

	_, err := f.svc.Verify(context.Background(), testEmail, code2, ref2)
	require.NoError(t, err)
	_, err = f.svc.Verify(context.Background(), testEmail, code1, ref1)
	require.NoError(t, err)
}

func TestIssueChallenge_SingleActivePerEmail(t *testing.T) {
	cfg := testConfig()
	cfg.OTP.SingleActivePerEmail = true
	f := newOTPFixture(t, cfg, nil)

	ref1, code1 := f.issue(t, testEmail)
	ref2, code2 := f.issue(t, testEmail)

	_, err := f.svc.Verify(context.Background(), testEmail, code1, ref1)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyUsed)

	_, err = f.svc.Verify(context.Background(), testEmail, code2, ref2)
	assert.NoError(t, err)
}

func TestIssueChallenge_StoreTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Timeout = 20 * time.Millisecond
	ctrl := gomock.NewController(t)

	svc := services.NewOTPService(
		slowChallenges{},
		nil,
		mocks.NewMockMailer(ctrl),
		crypto.NewTokenGenerator(),
		crypto.NewCodeHasher([]byte(cfg.OTP.Pepper)),
		cfg,
		logger.NewNop(),
		time.Now,
	)

	_, err := svc.IssueChallenge(context.Background(), testEmail)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)

	_, err = svc.Verify(context.Background(), testEmail, "123456", "ref")
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestVerify_Success(t *testing.T) {
	f := newOTPFixture(t, testConfig(), nil)
	ref, code := f.issue(t, testEmail)

	grant, err := f.svc.Verify(context.Background(), "Guest@Cypress.test", code, ref)
	require.NoError(t, err)
	assert.Equal(t, testEmail, grant.Email)
	assert.Equal(t, f.tokenGen.HashToken(ref), grant.ChallengeID)
}

func TestVerify_SingleUse(t *testing.T) {
	f := newOTPFixture(t, testConfig(), nil)
	ref, code := f.issue(t, testEmail)

	_, err := f.svc.Verify(context.Background(), testEmail, code, ref)
	require.NoError(t, err)

	_, err = f.svc.Verify(context.Background(), testEmail, code, ref)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyUsed)
	assert.True(t, apperrors.IsInvalidCode(err))
}

func TestVerify_Expiry(t *testing.T) {
	t.Run("just before expiry", func(t *testing.T) {
		f := newOTPFixture(t, testConfig(), nil)
		ref, code := f.issue(t, testEmail)
		f.clock.Advance(10*time.Minute - time.Millisecond)

		_, err := f.svc.Verify(context.Background(), testEmail, code, ref)
		assert.NoError(t, err)
	})

	t.Run("at expiry", func(t *testing.T) {
		f := newOTPFixture(t, testConfig(), nil)
		ref, code := f.issue(t, testEmail)
		f.clock.Advance(10 * time.Minute)

		_, err := f.svc.Verify(context.Background(), testEmail, code, ref)
		assert.ErrorIs(t, err, apperrors.ErrChallengeExpired)
	})
}

func TestVerify_AttemptCap(t *testing.T) {
	f := newOTPFixture(t, testConfig(), nil)
	ref, code := f.issue(t, testEmail)
	bad := wrongCode(code)

	for i := 0; i < 5; i++ {
		_, err := f.svc.Verify(context.Background(), testEmail, bad, ref)
		assert.ErrorIs(t, err, apperrors.ErrCodeMismatch, "attempt %d", i+1)
	}

	_, err := f.svc.Verify(context.Background(), testEmail, code, ref)
	assert.ErrorIs(t, err, apperrors.ErrTooManyAttempts)
	assert.False(t, apperrors.IsInvalidCode(err))
}

func TestVerify_EmailMismatch(t *testing.T) {
	f := newOTPFixture(t, testConfig(), nil)
	ref, code := f.issue(t, testEmail)

	_, err := f.svc.Verify(context.Background(), "other@cypress.test", code, ref)
	assert.ErrorIs(t, err, apperrors.ErrEmailMismatch)

	c, err := f.challenges.Get(context.Background(), f.tokenGen.HashToken(ref))
	require.NoError(t, err)
	assert.Zero(t, c.Attempts)

	_, err = f.svc.Verify(context.Background(), testEmail, code, ref)
	assert.NoError(t, err)
}

func TestVerify_MalformedCodeDoesNotCountAttempt(t *testing.T) {
	f := newOTPFixture(t, testConfig(), nil)
	ref, _ := f.issue(t, testEmail)

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		_, err := f.svc.Verify(context.Background(), testEmail, code, ref)
		assert.ErrorIs(t, err, apperrors.ErrInvalidCode, code)
	}

	c, err := f.challenges.Get(context.Background(), f.tokenGen.HashToken(ref))
	require.NoError(t, err)
	assert.Zero(t, c.Attempts)
}

func TestVerify_UnknownReference(t *testing.T) {
	f := newOTPFixture(t, testConfig(), nil)

	_, err := f.svc.Verify(context.Background(), testEmail, "123456", "unknown")
	assert.ErrorIs(t, err, apperrors.ErrChallengeNotFound)

	_, err = f.svc.Verify(context.Background(), testEmail, "123456", "")
	assert.ErrorIs(t, err, apperrors.ErrChallengeNotFound)
}

func TestVerify_ConcurrentRedemption(t *testing.T) {
	f := newOTPFixture(t, testConfig(), nil)
	ref, code := f.issue(t, testEmail)

	const workers = 32
	var (
		wins   atomic.Int32
		losses atomic.Int32
		wg     sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Verify(context.Background(), testEmail, code, ref)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, apperrors.ErrAlreadyUsed):
				losses.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(workers-1), losses.Load())
}
