package http

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pdhoward/cypressresortweb/config"
	"github.com/pdhoward/cypressresortweb/internal/application/services"
	"github.com/pdhoward/cypressresortweb/internal/interfaces/http/handlers"
	"github.com/pdhoward/cypressresortweb/internal/interfaces/http/middleware"
	"github.com/pdhoward/cypressresortweb/pkg/logger"
)

// Router wraps the Gin engine with application dependencies.
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
}

// RouterDeps contains dependencies needed by the router.
type RouterDeps struct {
	OTPService     *services.OTPService
	SessionService *services.SessionService
	HealthChecks   map[string]handlers.HealthChecker
	Logger         logger.Logger
}

// NewRouter creates and configures the HTTP router. Background work owned by
// the router stops when ctx is done.
func NewRouter(ctx context.Context, cfg *config.Config, deps *RouterDeps) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	// An empty list trusts no proxy, so X-Forwarded-For is ignored.
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		deps.Logger.Error("Invalid trusted proxies, ignoring forwarding headers", logger.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}
	engine.Use(gin.Recovery())
	engine.Use(middleware.NewRequestLoggerMiddleware(deps.Logger).Handler())

	authHandler := handlers.NewAuthHandler(deps.OTPService, deps.SessionService, cfg)
	healthHandler := handlers.NewHealthHandler(deps.HealthChecks)
	sessionMiddleware := middleware.NewSessionMiddleware(deps.SessionService, cfg.Session.CookieName)

	var rateLimiter *middleware.RateLimiter
	var authRateLimiter *middleware.AuthRateLimiter
	if cfg.Security.RateLimitEnabled {
		rateLimiter = middleware.NewRateLimiter(ctx, cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
		authRateLimiter = middleware.NewAuthRateLimiter(ctx, cfg.Security.AuthRateRPS, cfg.Security.AuthRateBurst)
	}

	// Health endpoints (no rate limiting)
	engine.GET("/health", healthHandler.Health)
	engine.GET("/ready", healthHandler.Ready)
	engine.GET("/live", healthHandler.Live)

	if rateLimiter != nil {
		engine.Use(rateLimiter.Middleware())
	}
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))

	api := engine.Group("/api/auth")
	{
		signIn := api.Group("")
		if authRateLimiter != nil {
			signIn.Use(authRateLimiter.Middleware())
		}
		signIn.POST("/send-code", authHandler.SendCode)
		signIn.POST("/send-otp", authHandler.SendCode)
		signIn.POST("/verify-code", authHandler.VerifyCode)
		signIn.POST("/verify-otp", authHandler.VerifyCode)

		api.GET("/session", authHandler.Session)
		api.POST("/signout", authHandler.SignOut)

		protected := api.Group("")
		protected.Use(sessionMiddleware.RequireSession())
		protected.GET("/me", authHandler.Me)
	}

	return &Router{
		engine: engine,
		cfg:    cfg,
	}
}

// Engine returns the underlying Gin engine.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// corsMiddleware creates a CORS middleware. Credentials are allowed so the
// session cookie travels with cross-origin requests from listed origins.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// NewServer creates an HTTP server with the router.
func NewServer(cfg *config.Config, router *Router) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
