package user

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go-blog/internal/role"
)

// Actor is whoever is making a request: a signed-in *User or Anonymous.
type Actor interface {
	Can(p role.Permission) bool
	IsAdministrator() bool
	IsAnonymous() bool
}

type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	Username     string     `gorm:"uniqueIndex;size:64;not null" json:"username"`
	PasswordHash string     `gorm:"size:128;not null" json:"-"`
	Confirmed    bool       `gorm:"not null;default:false" json:"confirmed"`
	RoleID       uint       `gorm:"not null;index" json:"-"`
	Role         *role.Role `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Name         string     `gorm:"size:64" json:"name,omitempty"`
	Location     string     `gorm:"size:64" json:"location,omitempty"`
	AboutMe      string     `gorm:"type:text" json:"aboutMe,omitempty"`
	AvatarHash   string     `gorm:"size:32" json:"-"`
	MemberSince  time.Time  `json:"memberSince"`
	LastSeen     time.Time  `json:"lastSeen"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// SetPassword stores a fresh salted hash of plaintext. The plaintext itself
// is never kept.
func (u *User) SetPassword(plaintext string) error {
	hash, err := HashPassword(plaintext)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// VerifyPassword never errors: a missing hash or any mismatch is false.
func (u *User) VerifyPassword(plaintext string) bool {
	if u == nil || u.PasswordHash == "" {
		return false
	}
	return CheckPassword(u.PasswordHash, plaintext) == nil
}

// Can requires the role to be loaded; an account without one can do nothing.
func (u *User) Can(p role.Permission) bool {
	return u != nil && u.Role.Can(p)
}

func (u *User) IsAdministrator() bool {
	return u.Can(role.Administer)
}

func (u *User) IsAnonymous() bool {
	return false
}

// GravatarURL builds the avatar image address for the account email.
func (u *User) GravatarURL(size int) string {
	hash := u.AvatarHash
	if hash == "" {
		hash = avatarHash(u.Email)
	}
	return fmt.Sprintf("https://secure.gravatar.com/avatar/%s?s=%d&d=identicon&r=g", hash, size)
}

// Anonymous stands in for unauthenticated callers and holds no permissions.
type Anonymous struct{}

func (Anonymous) Can(role.Permission) bool { return false }
func (Anonymous) IsAdministrator() bool    { return false }
func (Anonymous) IsAnonymous() bool        { return true }

var (
	_ Actor = (*User)(nil)
	_ Actor = Anonymous{}
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func avatarHash(email string) string {
	sum := md5.Sum([]byte(normalizeEmail(email)))
	return hex.EncodeToString(sum[:])
}
