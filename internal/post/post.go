// Package post stores blog posts and their comments and answers the
// visibility queries over them.
package post

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-blog/internal/markdown"
	"go-blog/internal/paging"
	"go-blog/internal/role"
	"go-blog/internal/user"
)

var (
	ErrNotFound  = errors.New("post: not found")
	ErrEmptyBody = errors.New("post: body is required")
	ErrForbidden = errors.New("post: insufficient permissions")
)

type Post struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Body      string     `gorm:"type:text;not null" json:"body"`
	BodyHTML  string     `gorm:"type:text" json:"bodyHtml"`
	Timestamp time.Time  `gorm:"not null;index" json:"timestamp"`
	AuthorID  uint       `gorm:"not null;index" json:"authorId"`
	Author    *user.User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeSave keeps BodyHTML in step with Body.
func (p *Post) BeforeSave(tx *gorm.DB) error {
	p.BodyHTML = markdown.Post(p.Body)
	return nil
}

type Comment struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Body      string     `gorm:"type:text;not null" json:"body"`
	BodyHTML  string     `gorm:"type:text" json:"bodyHtml"`
	Timestamp time.Time  `gorm:"not null;index" json:"timestamp"`
	Disabled  bool       `gorm:"not null;default:false" json:"disabled"`
	AuthorID  uint       `gorm:"not null;index" json:"authorId"`
	Author    *user.User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	PostID    uint       `gorm:"not null;index" json:"postId"`
	Post      *Post      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (c *Comment) BeforeSave(tx *gorm.DB) error {
	c.BodyHTML = markdown.Comment(c.Body)
	return nil
}

var newestFirst = clause.OrderBy{Columns: []clause.OrderByColumn{
	{Column: clause.Column{Table: "posts", Name: "timestamp"}, Desc: true},
	{Column: clause.Column{Table: "posts", Name: "id"}, Desc: true},
}}

// FollowedQuery selects the posts authored by accounts that accountID follows,
// newest first. The self edge puts the account's own posts in the result.
// Nothing runs until the caller finishes the chain.
func FollowedQuery(db *gorm.DB, accountID uint) *gorm.DB {
	return db.Model(&Post{}).
		Joins("JOIN follows ON follows.followed_id = posts.author_id").
		Where("follows.follower_id = ?", accountID).
		Order(newestFirst)
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// WithClock returns a copy of the service that stamps rows with now.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// Create publishes a post for author.
func (s *Service) Create(ctx context.Context, author *user.User, body string) (*Post, error) {
	if !author.Can(role.WriteArticles) {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}
	p := &Post{Body: body, Timestamp: s.now().UTC(), AuthorID: author.ID}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error; err != nil {
		return nil, err
	}
	p.Author = author
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*Post, error) {
	var p Post
	err := s.db.WithContext(ctx).Preload("Author").First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update replaces the body of p. Only the author or an administrator may edit.
func (s *Service) Update(ctx context.Context, editor *user.User, p *Post, body string) error {
	if editor.ID != p.AuthorID && !editor.IsAdministrator() {
		return ErrForbidden
	}
	if strings.TrimSpace(body) == "" {
		return ErrEmptyBody
	}
	p.Body = body
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(p).Error
}

// List pages through every post, newest first.
func (s *Service) List(ctx context.Context, page paging.Page) ([]Post, int64, error) {
	return s.page(ctx, func(tx *gorm.DB) *gorm.DB { return tx.Model(&Post{}).Order(newestFirst) }, page)
}

// ByAuthor pages through one account's posts, newest first.
func (s *Service) ByAuthor(ctx context.Context, authorID uint, page paging.Page) ([]Post, int64, error) {
	return s.page(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&Post{}).Where("posts.author_id = ?", authorID).Order(newestFirst)
	}, page)
}

// Followed pages through the timeline of accountID, newest first.
func (s *Service) Followed(ctx context.Context, accountID uint, page paging.Page) ([]Post, int64, error) {
	return s.page(ctx, func(tx *gorm.DB) *gorm.DB { return FollowedQuery(tx, accountID) }, page)
}

// page counts and loads one page of query. gorm drops ORDER BY from the count.
func (s *Service) page(ctx context.Context, query func(*gorm.DB) *gorm.DB, page paging.Page) ([]Post, int64, error) {
	var (
		total int64
		rows  []Post
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := query(tx).Count(&total).Error; err != nil {
			return err
		}
		return query(tx).Preload("Author").Scopes(page.Scope()).Find(&rows).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountByAuthor returns how many posts authorID has written.
func (s *Service) CountByAuthor(ctx context.Context, authorID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Post{}).Where("author_id = ?", authorID).Count(&n).Error
	return n, err
}

// CommentCounts returns the comment count per post id; posts without
// comments are absent from the map.
func (s *Service) CommentCounts(ctx context.Context, postIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(postIDs))
	if len(postIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		PostID uint
		N      int64
	}
	err := s.db.WithContext(ctx).Model(&Comment{}).
		Select("post_id, COUNT(*) AS n").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.PostID] = r.N
	}
	return counts, nil
}

// AddComment attaches a comment by author to the post.
func (s *Service) AddComment(ctx context.Context, author *user.User, postID uint, body string) (*Comment, error) {
	if !author.Can(role.Comment) {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}
	c := &Comment{Body: body, Timestamp: s.now().UTC(), AuthorID: author.ID, PostID: postID}
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Author = author
	return c, nil
}

func (s *Service) GetComment(ctx context.Context, id uint) (*Comment, error) {
	var c Comment
	err := s.db.WithContext(ctx).Preload("Author").First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Comments pages through the comments on one post, oldest first.
func (s *Service) Comments(ctx context.Context, postID uint, page paging.Page) ([]Comment, int64, error) {
	return s.comments(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&Comment{}).Where("post_id = ?", postID)
	}, false, page)
}

// AllComments pages through every comment, newest first. Used by moderators.
func (s *Service) AllComments(ctx context.Context, page paging.Page) ([]Comment, int64, error) {
	return s.comments(ctx, func(tx *gorm.DB) *gorm.DB { return tx.Model(&Comment{}) }, true, page)
}

func (s *Service) comments(ctx context.Context, query func(*gorm.DB) *gorm.DB, desc bool, page paging.Page) ([]Comment, int64, error) {
	var (
		total int64
		rows  []Comment
	)
	order := clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "timestamp"}, Desc: desc},
		{Column: clause.Column{Name: "id"}, Desc: desc},
	}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := query(tx).Count(&total).Error; err != nil {
			return err
		}
		return query(tx).Preload("Author").Order(order).Scopes(page.Scope()).Find(&rows).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Moderate hides or restores a comment.
func (s *Service) Moderate(ctx context.Context, actor user.Actor, id uint, disabled bool) (*Comment, error) {
	if !actor.Can(role.ModerateComments) {
		return nil, ErrForbidden
	}
	res := s.db.WithContext(ctx).Model(&Comment{}).Where("id = ?", id).UpdateColumn("disabled", disabled)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetComment(ctx, id)
}
