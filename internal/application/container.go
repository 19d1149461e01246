package application

import (
	"time"

	"github.com/pdhoward/cypressresortweb/config"
	"github.com/pdhoward/cypressresortweb/internal/application/services"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/crypto"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/persistence"
	"github.com/pdhoward/cypressresortweb/pkg/jwt"
	"github.com/pdhoward/cypressresortweb/pkg/logger"
)

// Services holds all application services.
type Services struct {
	OTP     *services.OTPService
	Session *services.SessionService
	Janitor *services.Janitor
}

// Dependencies holds shared dependencies for services.
type Dependencies struct {
	TokenGen   *crypto.TokenGenerator
	CodeHasher *crypto.CodeHasher
	JWTManager *jwt.Manager
	Mailer     services.Mailer
	Clock      func() time.Time
}

// NewDependencies creates shared dependencies from config.
func NewDependencies(cfg *config.Config, mailer services.Mailer) *Dependencies {
	return &Dependencies{
		TokenGen:   crypto.NewTokenGenerator(),
		CodeHasher: crypto.NewCodeHasher([]byte(cfg.OTP.Pepper)),
		JWTManager: jwt.NewManager(cfg.Session.Secret, cfg.Session.Issuer),
		Mailer:     mailer,
		Clock:      time.Now,
	}
}

// NewServices creates all application services.
func NewServices(repos *persistence.Repositories, deps *Dependencies, cfg *config.Config, log logger.Logger) *Services {
	otpService := services.NewOTPService(
		repos.Challenge,
		repos.Cooldown,
		deps.Mailer,
		deps.TokenGen,
		deps.CodeHasher,
		cfg,
		log,
		deps.Clock,
	)

	sessionService := services.NewSessionService(
		repos.Session,
		deps.JWTManager,
		deps.TokenGen,
		cfg,
		log,
		deps.Clock,
	)

	return &Services{
		OTP:     otpService,
		Session: sessionService,
		Janitor: services.NewJanitor(repos.Challenge, cfg, log, deps.Clock),
	}
}
