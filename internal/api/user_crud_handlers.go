package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-blog/internal/auth"
	"go-blog/internal/user"
)

type SetRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// loadUser resolves :id, answering 404 when it does not exist.
func loadUser(c *gin.Context, s *Services) (*user.User, bool) {
	id, ok := idParam(c)
	if !ok {
		return nil, false
	}
	u, err := s.Users.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return u, true
}

// GET /users/:id
func GetUserHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := loadUser(c, s)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		count, err := s.Posts.CountByAuthor(ctx, u.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		out := s.urls.userJSON(u)
		out["postCount"] = count
		followers, err := s.Users.FollowerCount(ctx, u)
		if err != nil {
			respondError(c, err)
			return
		}
		followed, err := s.Users.FollowedCount(ctx, u)
		if err != nil {
			respondError(c, err)
			return
		}
		// The self edge is not shown to clients.
		out["followerCount"] = followers - 1
		out["followedCount"] = followed - 1
		if me, ok := auth.CurrentUser(c); ok && me.ID != u.ID {
			following, err := s.Users.IsFollowing(ctx, me, u)
			if err != nil {
				respondError(c, err)
				return
			}
			out["following"] = following
		}
		c.JSON(http.StatusOK, out)
	}
}

// GET /users/:id/posts
func UserPostsHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := loadUser(c, s)
		if !ok {
			return
		}
		page := pageParam(c, s.Config.Blog.PostsPerPage)
		posts, total, err := s.Posts.ByAuthor(c.Request.Context(), u.ID, page)
		if err != nil {
			respondError(c, err)
			return
		}
		out, err := s.postsJSON(c, posts)
		if err != nil {
			respondError(c, err)
			return
		}
		paginated(c, "posts", out, page, total)
	}
}

// GET /users/:id/timeline
func UserTimelineHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := loadUser(c, s)
		if !ok {
			return
		}
		page := pageParam(c, s.Config.Blog.PostsPerPage)
		posts, total, err := s.Posts.Followed(c.Request.Context(), u.ID, page)
		if err != nil {
			respondError(c, err)
			return
		}
		out, err := s.postsJSON(c, posts)
		if err != nil {
			respondError(c, err)
			return
		}
		paginated(c, "posts", out, page, total)
	}
}

// GET /users/:id/followers
func FollowersHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := loadUser(c, s)
		if !ok {
			return
		}
		page := pageParam(c, s.Config.Blog.FollowersPerPage)
		edges, total, err := s.Users.Followers(c.Request.Context(), u, page)
		if err != nil {
			respondError(c, err)
			return
		}
		out := make([]gin.H, 0, len(edges))
		for _, e := range edges {
			out = append(out, gin.H{"user": s.urls.userJSON(e.Follower), "timestamp": e.Timestamp})
		}
		paginated(c, "followers", out, page, total)
	}
}

// GET /users/:id/followed
func FollowedHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := loadUser(c, s)
		if !ok {
			return
		}
		page := pageParam(c, s.Config.Blog.FollowersPerPage)
		edges, total, err := s.Users.Followed(c.Request.Context(), u, page)
		if err != nil {
			respondError(c, err)
			return
		}
		out := make([]gin.H, 0, len(edges))
		for _, e := range edges {
			out = append(out, gin.H{"user": s.urls.userJSON(e.Followed), "timestamp": e.Timestamp})
		}
		paginated(c, "followed", out, page, total)
	}
}

// POST /users/:id/follow
func FollowHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		me, _ := auth.CurrentUser(c)
		target, ok := loadUser(c, s)
		if !ok {
			return
		}
		if err := s.Users.Follow(c.Request.Context(), me, target); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"following": true, "user": s.urls.user(target.ID)})
	}
}

// DELETE /users/:id/follow
func UnfollowHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		me, _ := auth.CurrentUser(c)
		target, ok := loadUser(c, s)
		if !ok {
			return
		}
		if err := s.Users.Unfollow(c.Request.Context(), me, target); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"following": me.ID == target.ID, "user": s.urls.user(target.ID)})
	}
}

// PUT /users/:id/role  [admin only]
func SetRoleHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Role required")
			return
		}
		u, ok := loadUser(c, s)
		if !ok {
			return
		}
		if err := s.Users.SetRole(c.Request.Context(), u, req.Role); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, s.urls.userJSON(u))
	}
}

// DELETE /users/:id  [admin only]
func DeleteUserHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		if err := s.Users.Delete(ctx, id); err != nil {
			respondError(c, err)
			return
		}
		if s.Redis != nil {
			if _, err := auth.DeleteSessions(ctx, s.Redis, id); err != nil {
				log.Printf("[API] failed to revoke sessions of deleted user %d: %v", id, err)
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
	}
}
