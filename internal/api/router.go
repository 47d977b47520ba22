package api

import (
	"fmt"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"go-blog/internal/auth"
	"go-blog/internal/config"
	"go-blog/internal/db"
	"go-blog/internal/mail"
	"go-blog/internal/post"
	"go-blog/internal/role"
	"go-blog/internal/token"
	"go-blog/internal/user"
)

// Services bundles what the handlers need. Redis is optional.
type Services struct {
	Config *config.Config
	Users  *user.Service
	Posts  *post.Service
	Mailer *mail.Mailer
	Redis  *redis.Client
	urls   urls
}

func NewServices(cfg *config.Config, database *gorm.DB, rdb *redis.Client, sender mail.Sender) (*Services, error) {
	if database == nil {
		return nil, fmt.Errorf("database not initialised")
	}
	if sender == nil {
		sender = mail.LogSender{}
	}
	mailer, err := mail.NewMailer(sender, cfg.Blog.MailSender, cfg.Blog.MailSubjectPrefix)
	if err != nil {
		return nil, err
	}
	codec := token.NewCodec(cfg.Server.SecretKey)
	users := user.NewService(database, codec, user.Options{
		AdminEmail:     cfg.Blog.Admin,
		ConfirmTTL:     cfg.ConfirmTTL(),
		ResetTTL:       cfg.ResetTTL(),
		EmailChangeTTL: cfg.EmailChangeTTL(),
		AccessTTL:      cfg.APITTL(),
	})
	return &Services{
		Config: cfg,
		Users:  users,
		Posts:  post.NewService(database),
		Mailer: mailer,
		Redis:  rdb,
		urls:   urls{base: apiPrefix(cfg)},
	}, nil
}

func apiPrefix(cfg *config.Config) string {
	return path.Join("/", cfg.Server.Subpath, "api/v1")
}

// SetupRouter wires the JSON API on top of the package-level db.DB.
func SetupRouter(cfg *config.Config, rdb *redis.Client, sender mail.Sender) (*gin.Engine, error) {
	s, err := NewServices(cfg, db.DB, rdb, sender)
	if err != nil {
		return nil, err
	}
	return s.Router(), nil
}

func (s *Services) Router() *gin.Engine {
	r := gin.Default()
	r.NoRoute(func(c *gin.Context) {
		abortError(c, http.StatusNotFound, "not_found", "not found")
	})

	base := r.Group(s.urls.base)
	base.GET("/health", healthHandler)
	base.GET("/config", configHandler(s.Config))

	basic := auth.BasicAuth(s.Users, s.Redis)

	// Reachable before the account is confirmed.
	open := base.Group("", basic)
	{
		open.POST("/auth/register", RegisterHandler(s))
		open.POST("/auth/confirm", auth.RequireAuthenticated(), ConfirmHandler(s))
		open.POST("/auth/confirm/resend", auth.RequireAuthenticated(), ResendConfirmationHandler(s))
		open.POST("/auth/reset", ResetRequestHandler(s))
		open.POST("/auth/reset/confirm", ResetPasswordHandler(s))
	}

	group := base.Group("", basic, auth.RequireConfirmed())
	{
		// Tokens
		group.GET("/tokens", auth.RequirePassword(), IssueTokenHandler(s))
		group.DELETE("/tokens", auth.RequireAuthenticated(), RevokeTokensHandler(s))

		// Account self-service
		group.POST("/auth/change-email", auth.RequireAuthenticated(), ChangeEmailRequestHandler(s))
		group.POST("/auth/change-email/confirm", auth.RequireAuthenticated(), ChangeEmailHandler(s))
		group.PUT("/auth/password", auth.RequireAuthenticated(), ChangePasswordHandler(s))

		// Posts
		group.GET("/posts", ListPostsHandler(s))
		group.POST("/posts", auth.RequirePermission(role.WriteArticles), CreatePostHandler(s))
		group.GET("/posts/:id", GetPostHandler(s))
		group.PUT("/posts/:id", auth.RequirePermission(role.WriteArticles), UpdatePostHandler(s))
		group.GET("/posts/:id/comments", ListPostCommentsHandler(s))
		group.POST("/posts/:id/comments", auth.RequirePermission(role.Comment), CreateCommentHandler(s))

		// Comments
		group.GET("/comments", ListCommentsHandler(s))
		group.GET("/comments/:id", GetCommentHandler(s))
		group.PUT("/comments/:id/moderation", auth.RequirePermission(role.ModerateComments), ModerateCommentHandler(s))

		// Users
		group.GET("/users/online", OnlineUserCountHandler(s))
		group.GET("/users/:id", GetUserHandler(s))
		group.GET("/users/:id/posts", UserPostsHandler(s))
		group.GET("/users/:id/timeline", UserTimelineHandler(s))
		group.GET("/users/:id/followers", FollowersHandler(s))
		group.GET("/users/:id/followed", FollowedHandler(s))
		group.POST("/users/:id/follow", auth.RequirePermission(role.Follow), FollowHandler(s))
		group.DELETE("/users/:id/follow", auth.RequirePermission(role.Follow), UnfollowHandler(s))
		group.PUT("/users/:id/role", auth.RequirePermission(role.Administer), SetRoleHandler(s))
		group.DELETE("/users/:id", auth.RequirePermission(role.Administer), DeleteUserHandler(s))
	}
	return r
}
