package auth

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"go-blog/internal/role"
	"go-blog/internal/token"
	"go-blog/internal/user"
)

const (
	actorKey     = "actor"
	tokenUsedKey = "tokenUsed"
	tokenIDKey   = "tokenId"
)

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"message": message, "code": code}})
}

func unauthorized(c *gin.Context, code, message string) {
	c.Header("WWW-Authenticate", `Basic realm="Authentication Required"`)
	abort(c, http.StatusUnauthorized, code, message)
}

// BasicAuth resolves the request's actor from HTTP Basic credentials. An
// empty username is anonymous, an empty password means the username is an
// API token, anything else is an email/password pair.
func BasicAuth(users *user.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		username, password, ok := c.Request.BasicAuth()
		if !ok || username == "" {
			c.Set(actorKey, user.Actor(user.Anonymous{}))
			c.Next()
			return
		}

		var u *user.User
		if password == "" {
			verifiedUser, v, err := users.VerifyAuthToken(ctx, username)
			switch {
			case errors.Is(err, token.ErrInvalid):
				unauthorized(c, TokenErrorCode(err), "Invalid credentials")
				return
			case errors.Is(err, user.ErrNotFound):
				unauthorized(c, "invalid_credentials", "Invalid credentials")
				return
			case err != nil:
				log.Printf("[Auth] token lookup failed: %v", err)
				abort(c, http.StatusInternalServerError, "internal", "Authentication failed")
				return
			}
			if rdb != nil {
				live, err := HasSession(ctx, rdb, verifiedUser.ID, v.ID)
				if err != nil {
					log.Printf("[Auth] session lookup failed for user %d: %v", verifiedUser.ID, err)
					abort(c, http.StatusServiceUnavailable, "unavailable", "Session store unavailable")
					return
				}
				if !live {
					unauthorized(c, CodeTokenInvalid, "Token revoked")
					return
				}
			}
			u = verifiedUser
			c.Set(tokenUsedKey, true)
			c.Set(tokenIDKey, v.ID)
		} else {
			authenticated, err := users.Authenticate(ctx, username, password)
			if errors.Is(err, user.ErrInvalidCredentials) {
				unauthorized(c, "invalid_credentials", "Invalid credentials")
				return
			}
			if err != nil {
				log.Printf("[Auth] password lookup failed: %v", err)
				abort(c, http.StatusInternalServerError, "internal", "Authentication failed")
				return
			}
			u = authenticated
			c.Set(tokenUsedKey, false)
		}

		if err := users.Ping(ctx, u); err != nil {
			log.Printf("[Auth] failed to record activity for user %d: %v", u.ID, err)
		}
		c.Set(actorKey, user.Actor(u))
		c.Next()
	}
}

// RequireConfirmed rejects signed-in accounts that have not confirmed their email.
func RequireConfirmed() gin.HandlerFunc {
	return func(c *gin.Context) {
		if u, ok := CurrentUser(c); ok && !u.Confirmed {
			abort(c, http.StatusForbidden, "unconfirmed", "Unconfirmed account")
			return
		}
		c.Next()
	}
}

// RequireAuthenticated rejects anonymous requests.
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentActor(c).IsAnonymous() {
			unauthorized(c, "invalid_credentials", "Invalid credentials")
			return
		}
		c.Next()
	}
}

// RequirePassword accepts only email/password credentials, so a token can
// never be used to mint another one.
func RequirePassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentActor(c).IsAnonymous() || TokenUsed(c) {
			unauthorized(c, "invalid_credentials", "Invalid credentials")
			return
		}
		c.Next()
	}
}

func RequirePermission(p role.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentActor(c).Can(p) {
			abort(c, http.StatusForbidden, "forbidden", "Insufficient permissions")
			return
		}
		c.Next()
	}
}

// CurrentActor never returns nil; requests that skipped BasicAuth are anonymous.
func CurrentActor(c *gin.Context) user.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(user.Actor); ok {
			return a
		}
	}
	return user.Anonymous{}
}

func CurrentUser(c *gin.Context) (*user.User, bool) {
	u, ok := CurrentActor(c).(*user.User)
	return u, ok
}

func TokenUsed(c *gin.Context) bool {
	return c.GetBool(tokenUsedKey)
}

// TokenID is the id of the API token that authenticated the request, if any.
func TokenID(c *gin.Context) string {
	return c.GetString(tokenIDKey)
}
