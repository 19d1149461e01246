package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pdhoward/cypressresortweb/config"
	"github.com/pdhoward/cypressresortweb/internal/application/dto"
	"github.com/pdhoward/cypressresortweb/internal/application/services"
	"github.com/pdhoward/cypressresortweb/internal/domain/session"
	"github.com/pdhoward/cypressresortweb/internal/interfaces/http/middleware"
	"github.com/pdhoward/cypressresortweb/pkg/logger"
)

// AuthHandler handles the email sign-in endpoints.
type AuthHandler struct {
	otpService     *services.OTPService
	sessionService *services.SessionService
	cookies        config.SessionConfig
	security       config.SecurityConfig
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(otpService *services.OTPService, sessionService *services.SessionService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		otpService:     otpService,
		sessionService: sessionService,
		cookies:        cfg.Session,
		security:       cfg.Security,
	}
}

// SendCode emails a one-time code and returns the challenge reference.
// POST /api/auth/send-code
func (h *AuthHandler) SendCode(c *gin.Context) {
	var req dto.SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := h.otpService.IssueChallenge(c.Request.Context(), req.Email)
	if err != nil {
		handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// VerifyCode redeems a code and starts a session.
// POST /api/auth/verify-code
func (h *AuthHandler) VerifyCode(c *gin.Context) {
	var req dto.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	grant, err := h.otpService.Verify(c.Request.Context(), req.Email, req.Code, req.Ref())
	if err != nil {
		handleAuthError(c, err)
		return
	}

	meta := session.Metadata{
		IPAddress: middleware.GetClientIP(c),
		UserAgent: c.GetHeader("User-Agent"),
	}
	res, err := h.sessionService.Mint(c.Request.Context(), grant, meta)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to mint session after verification",
			logger.ChallengeID(grant.ChallengeID),
			logger.Error(err),
		)
		handleAuthError(c, err)
		return
	}

	h.setSessionCookie(c, res.Token, int(h.cookies.TTL.Seconds()))
	c.JSON(http.StatusOK, dto.VerifyCodeResponse{
		Email:     res.Session.Email,
		ExpiresAt: res.Session.ExpiresAt,
	})
}

// Session reports the current session as far as the cookie can be decoded.
// GET /api/auth/session
func (h *AuthHandler) Session(c *gin.Context) {
	token := middleware.SessionToken(c, h.cookies.CookieName)
	c.JSON(http.StatusOK, h.sessionService.Read(c.Request.Context(), token))
}

// SignOut ends the session and clears the cookie. It always succeeds.
// POST /api/auth/signout
func (h *AuthHandler) SignOut(c *gin.Context) {
	token := middleware.SessionToken(c, h.cookies.CookieName)
	h.sessionService.Terminate(c.Request.Context(), token)

	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, dto.SignOutResponse{OK: true})
}

// Me describes the authenticated session.
// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	sess, err := middleware.GetSession(c)
	if err != nil {
		handleAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess.ToAPIInfo())
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookies.CookieName, token, maxAge, "/", h.security.CookieDomain, h.security.SecureCookies, true)
}
