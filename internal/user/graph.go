package user

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-blog/internal/paging"
)

// Follow is a directed edge: Follower follows Followed. Every account keeps
// an edge to itself so that timeline queries pick up its own posts.
type Follow struct {
	FollowerID uint      `gorm:"primaryKey;autoIncrement:false" json:"-"`
	FollowedID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"-"`
	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
	Follower   *User     `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE" json:"-"`
	Followed   *User     `gorm:"foreignKey:FollowedID;constraint:OnDelete:CASCADE" json:"-"`
}

// Follow makes u follow other. Following yourself or following twice is a
// no-op; the composite primary key absorbs concurrent duplicates.
func (s *Service) Follow(ctx context.Context, u, other *User) error {
	if u.ID == other.ID {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Follow{FollowerID: u.ID, FollowedID: other.ID, Timestamp: s.now().UTC()}).Error
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return ErrNotFound
	}
	return err
}

// Unfollow removes the edge u -> other if present. The self edge stays.
func (s *Service) Unfollow(ctx context.Context, u, other *User) error {
	if u.ID == other.ID {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", u.ID, other.ID).
		Delete(&Follow{}).Error
}

func (s *Service) IsFollowing(ctx context.Context, u, other *User) (bool, error) {
	return s.edgeExists(ctx, u.ID, other.ID)
}

func (s *Service) IsFollowedBy(ctx context.Context, u, other *User) (bool, error) {
	return s.edgeExists(ctx, other.ID, u.ID)
}

func (s *Service) edgeExists(ctx context.Context, followerID, followedID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Follow{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&n).Error
	return n > 0, err
}

// FollowedCount includes the self edge.
func (s *Service) FollowedCount(ctx context.Context, u *User) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Follow{}).Where("follower_id = ?", u.ID).Count(&n).Error
	return n, err
}

// FollowerCount includes the self edge.
func (s *Service) FollowerCount(ctx context.Context, u *User) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Follow{}).Where("followed_id = ?", u.ID).Count(&n).Error
	return n, err
}

// Followers lists edges pointing at u, most recent first, with Follower loaded.
func (s *Service) Followers(ctx context.Context, u *User, page paging.Page) ([]Follow, int64, error) {
	return s.edges(ctx, "followed_id = ?", u.ID, "Follower", page)
}

// Followed lists edges leaving u, most recent first, with Followed loaded.
func (s *Service) Followed(ctx context.Context, u *User, page paging.Page) ([]Follow, int64, error) {
	return s.edges(ctx, "follower_id = ?", u.ID, "Followed", page)
}

func (s *Service) edges(ctx context.Context, where string, id uint, preload string, page paging.Page) ([]Follow, int64, error) {
	var (
		total int64
		rows  []Follow
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Follow{}).Where(where, id).Count(&total).Error; err != nil {
			return err
		}
		return tx.Preload(preload).
			Where(where, id).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
			Scopes(page.Scope()).
			Find(&rows).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// EnsureSelfFollows adds the self edge to accounts created without one.
func (s *Service) EnsureSelfFollows(ctx context.Context) (int64, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&User{}).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	now := s.now().UTC()
	edges := make([]Follow, 0, len(ids))
	for _, id := range ids {
		edges = append(edges, Follow{FollowerID: id, FollowedID: id, Timestamp: now})
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(edges, 500)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("[Graph] added %d missing self follows", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
