package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-blog/internal/auth"
	"go-blog/internal/post"
)

type PostRequest struct {
	Body string `json:"body" binding:"required"`
}

type ModerationRequest struct {
	Disabled *bool `json:"disabled" binding:"required"`
}

func (s *Services) postsJSON(c *gin.Context, posts []post.Post) ([]gin.H, error) {
	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	counts, err := s.Posts.CommentCounts(c.Request.Context(), ids)
	if err != nil {
		return nil, err
	}
	out := make([]gin.H, 0, len(posts))
	for i := range posts {
		out = append(out, s.urls.postJSON(&posts[i], counts[posts[i].ID]))
	}
	return out, nil
}

func (s *Services) commentsJSON(c *gin.Context, comments []post.Comment) []gin.H {
	actor := auth.CurrentActor(c)
	out := make([]gin.H, 0, len(comments))
	for i := range comments {
		out = append(out, s.urls.commentJSON(&comments[i], actor))
	}
	return out
}

func loadPost(c *gin.Context, s *Services) (*post.Post, bool) {
	id, ok := idParam(c)
	if !ok {
		return nil, false
	}
	p, err := s.Posts.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return p, true
}

func (s *Services) writePost(c *gin.Context, status int, p *post.Post) {
	counts, err := s.Posts.CommentCounts(c.Request.Context(), []uint{p.ID})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, s.urls.postJSON(p, counts[p.ID]))
}

// GET /posts
func ListPostsHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := pageParam(c, s.Config.Blog.PostsPerPage)
		posts, total, err := s.Posts.List(c.Request.Context(), page)
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

// POST /posts
func CreatePostHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := auth.CurrentUser(c)
		var req PostRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Post does not have a body")
			return
		}
		p, err := s.Posts.Create(c.Request.Context(), u, req.Body)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Location", s.urls.post(p.ID))
		c.JSON(http.StatusCreated, s.urls.postJSON(p, 0))
	}
}

// GET /posts/:id
func GetPostHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := loadPost(c, s)
		if !ok {
			return
		}
		s.writePost(c, http.StatusOK, p)
	}
}

// PUT /posts/:id
func UpdatePostHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := auth.CurrentUser(c)
		var req PostRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Post does not have a body")
			return
		}
		p, ok := loadPost(c, s)
		if !ok {
			return
		}
		if err := s.Posts.Update(c.Request.Context(), u, p, req.Body); err != nil {
			respondError(c, err)
			return
		}
		s.writePost(c, http.StatusOK, p)
	}
}

// GET /posts/:id/comments
func ListPostCommentsHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := loadPost(c, s)
		if !ok {
			return
		}
		page := pageParam(c, s.Config.Blog.CommentsPerPage)
		comments, total, err := s.Posts.Comments(c.Request.Context(), p.ID, page)
		if err != nil {
			respondError(c, err)
			return
		}
		paginated(c, "comments", s.commentsJSON(c, comments), page, total)
	}
}

// POST /posts/:id/comments
func CreateCommentHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := auth.CurrentUser(c)
		var req PostRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Comment does not have a body")
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		cm, err := s.Posts.AddComment(c.Request.Context(), u, id, req.Body)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Location", s.urls.comment(cm.ID))
		c.JSON(http.StatusCreated, s.urls.commentJSON(cm, u))
	}
}

// GET /comments
func ListCommentsHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := pageParam(c, s.Config.Blog.CommentsPerPage)
		comments, total, err := s.Posts.AllComments(c.Request.Context(), page)
		if err != nil {
			respondError(c, err)
			return
		}
		paginated(c, "comments", s.commentsJSON(c, comments), page, total)
	}
}

// GET /comments/:id
func GetCommentHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		cm, err := s.Posts.GetComment(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, s.urls.commentJSON(cm, auth.CurrentActor(c)))
	}
}

// PUT /comments/:id/moderation
func ModerateCommentHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ModerationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "disabled flag required")
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		actor := auth.CurrentActor(c)
		cm, err := s.Posts.Moderate(c.Request.Context(), actor, id, *req.Disabled)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, s.urls.commentJSON(cm, actor))
	}
}
