package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pdhoward/cypressresortweb/config"
	"github.com/pdhoward/cypressresortweb/internal/application"
	"github.com/pdhoward/cypressresortweb/internal/application/services"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/cache/redis"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/mail"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/persistence"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/persistence/postgres"
	"github.com/pdhoward/cypressresortweb/internal/infrastructure/persistence/sqlite"
	apphttp "github.com/pdhoward/cypressresortweb/internal/interfaces/http"
	"github.com/pdhoward/cypressresortweb/internal/interfaces/http/handlers"
	"github.com/pdhoward/cypressresortweb/pkg/logger"
)

// store is the selected credential store plus what must be closed on exit.
type store struct {
	repos   *persistence.Repositories
	health  map[string]handlers.HealthChecker
	closers []func()
	// nativeExpiry is set when the challenge store expires records itself.
	nativeExpiry bool
}

func (s *store) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	generated, err := cfg.EnsureDevelopmentSecrets()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:        cfg.Logging.Level,
		Environment:  cfg.Environment,
		Output:       "stdout",
		RevealEmails: cfg.Logging.RevealEmails,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()
	logger.SetDefault(log)

	for _, key := range generated {
		log.Warn("Using a random per-process value; set it to keep sessions across restarts",
			logger.Component("main"),
			logger.String("key", key),
		)
	}

	log.Info("Starting sign-in service...",
		logger.Component("main"),
		logger.String("store", cfg.Store.Driver),
		logger.String("mail", cfg.Mail.Driver),
	)

	st, err := initStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	mailer, err := initMailer(cfg, log)
	if err != nil {
		return err
	}

	deps := application.NewDependencies(cfg, mailer)
	svcs := application.NewServices(st.repos, deps, cfg, log)

	if cfg.Janitor.Enabled && !st.nativeExpiry {
		svcs.Janitor.Start(ctx)
		log.Info("Challenge janitor started",
			logger.Component("main"),
			logger.Duration("interval", cfg.Janitor.Interval),
		)
	}

	router := apphttp.NewRouter(ctx, cfg, &apphttp.RouterDeps{
		OTPService:     svcs.OTP,
		SessionService: svcs.Session,
		HealthChecks:   st.health,
		Logger:         log,
	})

	return serve(ctx, apphttp.NewServer(cfg, router), cfg, log)
}

func initStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("Connected to PostgreSQL",
			logger.Component("infrastructure"),
			logger.String("host", cfg.Database.Host),
			logger.Int("port", cfg.Database.Port),
		)

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to apply schema: %w", err)
			}
		}

		redisClient, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("Connected to Redis",
			logger.Component("infrastructure"),
			logger.String("host", cfg.Redis.Host),
			logger.Int("port", cfg.Redis.Port),
		)

		return &store{
			repos:        persistence.NewRepositories(db, redisClient),
			health:       map[string]handlers.HealthChecker{"database": db, "redis": redisClient},
			closers:      []func(){db.Close, func() { _ = redisClient.Close() }},
			nativeExpiry: true,
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(&cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite store: %w", err)
		}
		log.Info("Opened SQLite store",
			logger.Component("infrastructure"),
			logger.String("path", cfg.SQLite.Path),
		)
		return &store{
			repos:   persistence.NewSQLiteRepositories(db, time.Now),
			health:  map[string]handlers.HealthChecker{"sqlite": db},
			closers: []func(){func() { _ = db.Close() }},
		}, nil

	default:
		log.Warn("Using in-memory store; state is lost on restart", logger.Component("infrastructure"))
		return &store{
			repos:  persistence.NewMemoryRepositories(time.Now),
			health: map[string]handlers.HealthChecker{},
		}, nil
	}
}

func initMailer(cfg *config.Config, log logger.Logger) (services.Mailer, error) {
	if cfg.Mail.Driver == config.MailDriverSMTP {
		m, err := mail.NewSMTPMailer(cfg.Mail, log)
		if err != nil {
			return nil, fmt.Errorf("failed to configure SMTP mailer: %w", err)
		}
		return m, nil
	}
	log.Warn("Codes are written to the log instead of being mailed", logger.Component("mail"))
	return mail.NewLogMailer(log), nil
}

func serve(ctx context.Context, server *http.Server, cfg *config.Config, log logger.Logger) error {
	errChan := make(chan error, 1)
	go func() {
		log.Info("Server listening",
			logger.Component("server"),
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("Shutting down server...", logger.Component("server"))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited", logger.Component("server"))
	return nil
}
