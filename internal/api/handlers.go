package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"go-blog/internal/auth"
	"go-blog/internal/config"
	"go-blog/internal/db"
	"go-blog/internal/paging"
	"go-blog/internal/post"
	"go-blog/internal/role"
	"go-blog/internal/token"
	"go-blog/internal/user"
)

// GET /health
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// GET /config
func configHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only return non-sensitive config fields
		c.JSON(http.StatusOK, gin.H{
			"server": gin.H{
				"subpath": cfg.Server.Subpath,
			},
			"blog": gin.H{
				"postsPerPage":     cfg.Blog.PostsPerPage,
				"followersPerPage": cfg.Blog.FollowersPerPage,
				"commentsPerPage":  cfg.Blog.CommentsPerPage,
			},
		})
	}
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"message": message, "code": code}})
}

func badRequest(c *gin.Context, message string) {
	abortError(c, http.StatusBadRequest, "validation", message)
}

func notFound(c *gin.Context) {
	abortError(c, http.StatusNotFound, "not_found", "not found")
}

// respondError maps a service error onto the HTTP error contract.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, token.ErrInvalid):
		abortError(c, http.StatusBadRequest, auth.TokenErrorCode(err), "Invalid or expired token")
	case errors.Is(err, user.ErrNotFound), errors.Is(err, post.ErrNotFound):
		notFound(c)
	case errors.Is(err, user.ErrConflict):
		abortError(c, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, user.ErrInvalidCredentials):
		abortError(c, http.StatusBadRequest, "invalid_password", "Invalid password")
	case errors.Is(err, user.ErrInvalidAccount), errors.Is(err, post.ErrEmptyBody), errors.Is(err, role.ErrUnknownRole):
		badRequest(c, err.Error())
	case errors.Is(err, post.ErrForbidden):
		abortError(c, http.StatusForbidden, "forbidden", "Insufficient permissions")
	case db.IsRetryable(err):
		log.Printf("[API] %s %s: retryable store error: %v", c.Request.Method, c.FullPath(), err)
		c.Header("Retry-After", "1")
		abortError(c, http.StatusServiceUnavailable, "retry", "Temporarily unavailable, retry the request")
	default:
		log.Printf("[API] %s %s: %v", c.Request.Method, c.FullPath(), err)
		abortError(c, http.StatusInternalServerError, "internal", "Internal server error")
	}
}

// idParam parses the :id path parameter, answering 404 for anything that is
// not a positive integer.
func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		notFound(c)
		return 0, false
	}
	return uint(id), true
}

func pageParam(c *gin.Context, size int) paging.Page {
	n, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	return paging.New(n, size, size)
}

// pageLinks returns the prev/next URLs of the current request, or nil at the edges.
func pageLinks(c *gin.Context, page paging.Page, total int64) (prev, next *string) {
	link := func(n int) *string {
		u := url.URL{Path: c.Request.URL.Path}
		q := c.Request.URL.Query()
		q.Set("page", strconv.Itoa(n))
		u.RawQuery = q.Encode()
		s := u.String()
		return &s
	}
	if page.HasPrev() {
		prev = link(page.Number - 1)
	}
	if page.HasNext(total) {
		next = link(page.Number + 1)
	}
	return prev, next
}

func paginated(c *gin.Context, key string, items any, page paging.Page, total int64) {
	prev, next := pageLinks(c, page, total)
	c.JSON(http.StatusOK, gin.H{
		key:     items,
		"prev":  prev,
		"next":  next,
		"count": total,
	})
}

type urls struct{ base string }

func (u urls) post(id uint) string     { return fmt.Sprintf("%s/posts/%d", u.base, id) }
func (u urls) comments(id uint) string { return fmt.Sprintf("%s/posts/%d/comments", u.base, id) }
func (u urls) comment(id uint) string  { return fmt.Sprintf("%s/comments/%d", u.base, id) }
func (u urls) user(id uint) string     { return fmt.Sprintf("%s/users/%d", u.base, id) }

func (u urls) postJSON(p *post.Post, comments int64) gin.H {
	return gin.H{
		"url":          u.post(p.ID),
		"id":           p.ID,
		"body":         p.Body,
		"bodyHtml":     p.BodyHTML,
		"timestamp":    p.Timestamp,
		"authorUrl":    u.user(p.AuthorID),
		"commentsUrl":  u.comments(p.ID),
		"commentCount": comments,
	}
}

// commentJSON blanks disabled comments for actors that cannot moderate.
func (u urls) commentJSON(cm *post.Comment, actor user.Actor) gin.H {
	body, html := cm.Body, cm.BodyHTML
	if cm.Disabled && !actor.Can(role.ModerateComments) {
		body, html = "", ""
	}
	return gin.H{
		"url":       u.comment(cm.ID),
		"id":        cm.ID,
		"postUrl":   u.post(cm.PostID),
		"body":      body,
		"bodyHtml":  html,
		"timestamp": cm.Timestamp,
		"authorUrl": u.user(cm.AuthorID),
		"disabled":  cm.Disabled,
	}
}

func (u urls) userJSON(usr *user.User) gin.H {
	out := gin.H{
		"url":              u.user(usr.ID),
		"id":               usr.ID,
		"username":         usr.Username,
		"name":             usr.Name,
		"location":         usr.Location,
		"aboutMe":          usr.AboutMe,
		"memberSince":      usr.MemberSince,
		"lastSeen":         usr.LastSeen,
		"avatar":           usr.GravatarURL(100),
		"postsUrl":         u.user(usr.ID) + "/posts",
		"followedPostsUrl": u.user(usr.ID) + "/timeline",
		"followersUrl":     u.user(usr.ID) + "/followers",
		"followedUrl":      u.user(usr.ID) + "/followed",
	}
	if usr.Role != nil {
		out["role"] = usr.Role.Name
	}
	return out
}
