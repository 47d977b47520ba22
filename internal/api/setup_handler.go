package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"go-blog/internal/auth"
	"go-blog/internal/mail"
	"go-blog/internal/user"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]*$`)

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=64"`
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required"`
}

type TokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type ResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /auth/register
func RegisterHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Email, username and password are required")
			return
		}
		if !usernamePattern.MatchString(req.Username) {
			badRequest(c, "Usernames must have only letters, numbers, dots or underscores")
			return
		}
		u, err := s.Users.Register(c.Request.Context(), user.NewAccount{
			Email:    req.Email,
			Username: req.Username,
			Password: req.Password,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		log.Printf("[Auth] registered user %d (%s)", u.ID, u.Username)
		if err := sendConfirmation(c.Request.Context(), s, u); err != nil {
			log.Printf("[Auth] confirmation mail for user %d failed: %v", u.ID, err)
		}
		c.Header("Location", s.urls.user(u.ID))
		c.JSON(http.StatusCreated, s.urls.userJSON(u))
	}
}

func sendConfirmation(ctx context.Context, s *Services, u *user.User) error {
	tok, err := s.Users.GenerateConfirmationToken(u, 0)
	if err != nil {
		return err
	}
	return s.Mailer.Send(ctx, u.Email, "Confirm Your Account", mail.TemplateConfirm, mail.TokenMail{
		Username:  u.Username,
		Token:     tok,
		Endpoint:  s.urls.base + "/auth/confirm",
		ExpiresAt: time.Now().Add(s.Config.ConfirmTTL()),
	})
}

// POST /auth/confirm
func ConfirmHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := auth.CurrentUser(c)
		var req TokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Token required")
			return
		}
		if err := s.Users.Confirm(c.Request.Context(), u, req.Token); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"confirmed": true})
	}
}

// POST /auth/confirm/resend
func ResendConfirmationHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := auth.CurrentUser(c)
		if u.Confirmed {
			c.JSON(http.StatusOK, gin.H{"confirmed": true})
			return
		}
		if err := sendConfirmation(c.Request.Context(), s, u); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "A new confirmation email has been sent"})
	}
}

// POST /auth/reset
//
// Answers 202 whether or not the address is registered.
func ResetRequestHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Email required")
			return
		}
		ctx := c.Request.Context()
		u, err := s.Users.GetByEmail(ctx, req.Email)
		switch {
		case err == nil:
			tok, err := s.Users.GenerateResetToken(u, 0)
			if err == nil {
				err = s.Mailer.Send(ctx, u.Email, "Reset Your Password", mail.TemplateResetPassword, mail.TokenMail{
					Username:  u.Username,
					Token:     tok,
					Endpoint:  s.urls.base + "/auth/reset/confirm",
					ExpiresAt: time.Now().Add(s.Config.ResetTTL()),
				})
			}
			if err != nil {
				log.Printf("[Auth] reset mail for user %d failed: %v", u.ID, err)
			}
		case !errors.Is(err, user.ErrNotFound):
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "An email with instructions to reset your password has been sent"})
	}
}

// POST /auth/reset/confirm
func ResetPasswordHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResetPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Email, token and password are required")
			return
		}
		ctx := c.Request.Context()
		u, err := s.Users.GetByEmail(ctx, req.Email)
		if err != nil {
			// Unknown addresses look exactly like a bad token.
			abortError(c, http.StatusBadRequest, auth.CodeTokenInvalid, "Invalid or expired token")
			return
		}
		if err := s.Users.ResetPassword(ctx, u, req.Token, req.Password); err != nil {
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
