package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-blog/internal/auth"
	"go-blog/internal/mail"
)

// Accounts seen within this window count as online when redis is off.
const onlineWindow = 5 * time.Minute

type ChangeEmailRequest struct {
	Email    string `json:"email" binding:"required,email,max=64"`
	Password string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	Password    string `json:"password" binding:"required"`
}

// GET /tokens
func IssueTokenHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := auth.CurrentUser(c)
		ttl := s.Config.APITTL()
		issued, err := auth.IssueAPIToken(c.Request.Context(), s.Users, s.Redis, u, ttl)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token":      issued.Token,
			"expiration": int(ttl.Seconds()),
			"expiresAt":  issued.ExpiresAt,
		})
	}
}

// DELETE /tokens revokes every API token of the caller.
func RevokeTokensHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.Redis == nil {
			abortError(c, http.StatusNotImplemented, "unsupported", "Token revocation requires redis")
			return
		}
		u, _ := auth.CurrentUser(c)
		n, err := auth.DeleteSessions(c.Request.Context(), s.Redis, u.ID)
		if err != nil {
			log.Printf("[Auth] failed to revoke sessions for user %d: %v", u.ID, err)
			abortError(c, http.StatusServiceUnavailable, "unavailable", "Session store unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"revoked": n})
	}
}

// POST /auth/change-email
func ChangeEmailRequestHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := auth.CurrentUser(c)
		var req ChangeEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Email and password are required")
			return
		}
		if !u.VerifyPassword(req.Password) {
			abortError(c, http.StatusBadRequest, "invalid_password", "Invalid password")
			return
		}
		ctx := c.Request.Context()
		if _, err := s.Users.GetByEmail(ctx, req.Email); err == nil {
			abortError(c, http.StatusConflict, "conflict", "Email already registered")
			return
		}
		tok, err := s.Users.GenerateEmailChangeToken(u, req.Email, 0)
		if err != nil {
			respondError(c, err)
			return
		}
		err = s.Mailer.Send(ctx, req.Email, "Confirm your email address", mail.TemplateChangeEmail, mail.TokenMail{
			Username:  u.Username,
			Token:     tok,
			Endpoint:  s.urls.base + "/auth/change-email/confirm",
			ExpiresAt: time.Now().Add(s.Config.EmailChangeTTL()),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "An email with instructions to confirm your new email address has been sent"})
	}
}

// POST /auth/change-email/confirm
func ChangeEmailHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := auth.CurrentUser(c)
		var req TokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Token required")
			return
		}
		if err := s.Users.ChangeEmail(c.Request.Context(), u, req.Token); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Your email address has been updated"})
	}
}

// PUT /auth/password
func ChangePasswordHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := auth.CurrentUser(c)
		var req ChangePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Old and new password are required")
			return
		}
		ctx := c.Request.Context()
		if err := s.Users.ChangePassword(ctx, u, req.OldPassword, req.Password); err != nil {
			respondError(c, err)
			return
		}
		if s.Redis != nil {
			if _, err := auth.DeleteSessions(ctx, s.Redis, u.ID); err != nil {
				log.Printf("[Auth] failed to revoke sessions for user %d: %v", u.ID, err)
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": "Your password has been updated"})
	}
}

// OnlineUserCountHandler returns the number of unique online users.
func OnlineUserCountHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if s.Redis != nil {
			count, err := auth.OnlineUserCount(ctx, s.Redis)
			if err != nil {
				log.Printf("[API] failed to count online users: %v", err)
				abortError(c, http.StatusInternalServerError, "internal", "Failed to count online users")
				return
			}
			c.JSON(http.StatusOK, gin.H{"online": count})
			return
		}
		count, err := s.Users.CountSeenSince(ctx, time.Now().Add(-onlineWindow))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"online": count})
	}
}
