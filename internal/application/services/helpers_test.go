package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pdhoward/cypressresortweb/config"
	"github.com/pdhoward/cypressresortweb/internal/application/services"
	"github.com/pdhoward/cypressresortweb/internal/domain/challenge"
	"github.com/pdhoward/cypressresortweb/internal/domain/session"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/crypto"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/persistence/memory"
	"github.com/pdhoward/cypressresortweb/internal/mocks"
	"github.com/pdhoward/cypressresortweb/pkg/jwt"
	"github.com/pdhoward/cypressresortweb/pkg/logger"
)

const testEmail = "guest@cypress.test"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: config.DriverMemory, Timeout: time.Second},
		OTP: config.OTPConfig{
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
			Pepper:      "test-pepper-test-pepper-test-pepper",
		},
		Session: config.SessionConfig{
			Secret:        "test-secret",
			Issuer:        "cypress-test",
			TTL:           7 * 24 * time.Hour,
			CookieName:    "cypress_session",
			TouchInterval: 5 * time.Minute,
		},
		Janitor: config.JanitorConfig{Enabled: true, Interval: time.Minute},
	}
}

type otpFixture struct {
	svc        *services.OTPService
	challenges *memory.ChallengeRepository
	mailer     *mocks.MockMailer
	clock      *fakeClock
	cfg        *config.Config
	tokenGen   *crypto.TokenGenerator
}

func newOTPFixture(t *testing.T, cfg *config.Config, cooldown challenge.Cooldown) *otpFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &otpFixture{
		challenges: memory.NewChallengeRepository(),
		mailer:     mocks.NewMockMailer(ctrl),
		clock:      newFakeClock(),
		cfg:        cfg,
		tokenGen:   crypto.NewTokenGenerator(),
	}
	f.svc = services.NewOTPService(
		f.challenges,
		cooldown,
		f.mailer,
		f.tokenGen,
		crypto.NewCodeHasher([]byte(cfg.OTP.Pepper)),
		cfg,
		logger.NewNop(),
		f.clock.Now,
	)
	return f
}

// issue requests a code for email and returns the reference and the mailed code.
func (f *otpFixture) issue(t *testing.T, email string) (string, string) {
	t.Helper()
	var code string
	f.mailer.EXPECT().
		Send(gomock.Any(), email, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, c string, _ time.Time) error {
			code = c
			return nil
		})

	resp, err := f.svc.IssueChallenge(context.Background(), email)
	require.NoError(t, err)
	require.NotEmpty(t, code)
	return resp.ChallengeRef, code
}

// wrongCode returns a well-formed code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}

type sessionFixture struct {
	svc      *services.SessionService
	sessions *memory.SessionRepository
	clock    *fakeClock
	cfg      *config.Config
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	cfg := testConfig()
	f := &sessionFixture{
		sessions: memory.NewSessionRepository(),
		clock:    newFakeClock(),
		cfg:      cfg,
	}
	f.svc = services.NewSessionService(
		f.sessions,
		jwt.NewManager(cfg.Session.Secret, cfg.Session.Issuer),
		crypto.NewTokenGenerator(),
		cfg,
		logger.NewNop(),
		f.clock.Now,
	)
	return f
}

// slowChallenges blocks every call until the context gives up.
type slowChallenges struct {
	challenge.Repository
}

func (slowChallenges) Create(ctx context.Context, _ *challenge.Challenge) error {
	<-ctx.Done()
	return wrapUnavailable(ctx.Err())
}

func (slowChallenges) Get(ctx context.Context, _ string) (*challenge.Challenge, error) {
	<-ctx.Done()
	return nil, wrapUnavailable(ctx.Err())
}

// brokenSessions fails the selected calls with a store outage and otherwise
// delegates to the memory store.
type brokenSessions struct {
	*memory.SessionRepository
	failCreate, failLookup, failEnd bool
}

func (b *brokenSessions) Create(ctx context.Context, s *session.Session) error {
	if b.failCreate {
		return wrapUnavailable(context.DeadlineExceeded)
	}
	return b.SessionRepository.Create(ctx, s)
}

func (b *brokenSessions) GetActiveByTokenHash(ctx context.Context, tokenHash string) (*session.Session, error) {
	if b.failLookup {
		return nil, wrapUnavailable(context.DeadlineExceeded)
	}
	return b.SessionRepository.GetActiveByTokenHash(ctx, tokenHash)
}

func (b *brokenSessions) End(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSec int64) error {
	if b.failEnd {
		return wrapUnavailable(context.DeadlineExceeded)
	}
	return b.SessionRepository.End(ctx, id, endedAt, durationSec)
}

func newBrokenSessionFixture(t *testing.T, broken *brokenSessions) *sessionFixture {
	t.Helper()
	f := newSessionFixture(t)
	broken.SessionRepository = f.sessions
	f.svc = services.NewSessionService(
		broken,
		jwt.NewManager(f.cfg.Session.Secret, f.cfg.Session.Issuer),
		crypto.NewTokenGenerator(),
		f.cfg,
		logger.NewNop(),
		f.clock.Now,
	)
	return f
}
