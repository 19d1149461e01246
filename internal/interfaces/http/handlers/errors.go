package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pdhoward/cypressresortweb/pkg/errors"
)

// handleAuthError converts domain errors to HTTP responses. Verification
// failures other than the attempt cap share one response so callers cannot
// tell which check failed.
func handleAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errors.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_email",
			"error_description": "a valid email address is required",
		})
	case errors.Is(err, errors.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_code_format",
			"error_description": "code must be 6 digits",
		})
	case errors.IsInvalidCode(err):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_code",
			"error_description": "invalid or expired code",
		})
	case errors.Is(err, errors.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             "too_many_attempts",
			"error_description": "too many attempts, request a new code",
		})
	case errors.Is(err, errors.ErrResendCooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             "resend_cooldown",
			"error_description": "a code was sent recently, please wait",
		})
	case errors.Is(err, errors.ErrDeliveryFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":             "delivery_failed",
			"error_description": "could not send the code, please try again",
		})
	case errors.Is(err, errors.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":             "store_unavailable",
			"error_description": "please try again shortly",
		})
	case errors.Is(err, errors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "unauthorized",
			"error_description": "sign-in required",
		})
	case errors.Is(err, errors.ErrSessionAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "session_exists",
			"error_description": "code already redeemed",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "internal server error",
		})
	}
}

func invalidRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":             "invalid_request",
		"error_description": err.Error(),
	})
}
