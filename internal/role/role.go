// Package role holds the permission bits, the role catalog and the
// authorization predicate shared by every actor.
package role

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
)

// Permission is a single capability bit. Masks combine with | and are
// tested with Can.
type Permission uint

const (
	Follow           Permission = 0x01
	Comment          Permission = 0x02
	WriteArticles    Permission = 0x04
	ModerateComments Permission = 0x08
	Administer       Permission = 0x80
)

// Names of the seeded roles.
const (
	NameUser          = "User"
	NameModerator     = "Moderator"
	NameAdministrator = "Administrator"
)

var ErrUnknownRole = errors.New("role: unknown role")

// Can reports whether mask carries every bit of p.
func Can(mask, p Permission) bool {
	return mask&p == p
}

func (p Permission) Has(q Permission) bool {
	return Can(p, q)
}

type Role struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Permissions Permission `gorm:"not null;default:0" json:"permissions"`
	Default     bool       `gorm:"column:is_default;not null;default:false;index" json:"default"`
}

func (r *Role) Can(p Permission) bool {
	return r != nil && Can(r.Permissions, p)
}

type catalogEntry struct {
	Name        string
	Permissions []Permission
	Default     bool
}

// catalog is the fixed role table applied by Seed.
var catalog = []catalogEntry{
	{Name: NameUser, Permissions: []Permission{Follow, Comment, WriteArticles}, Default: true},
	{Name: NameModerator, Permissions: []Permission{Follow, Comment, WriteArticles, ModerateComments}},
	{Name: NameAdministrator, Permissions: []Permission{0xff}},
}

// Catalog returns the seeded roles with their resolved masks.
func Catalog() []Role {
	roles := make([]Role, 0, len(catalog))
	for _, e := range catalog {
		roles = append(roles, Role{Name: e.Name, Permissions: e.mask(), Default: e.Default})
	}
	return roles
}

func (e catalogEntry) mask() Permission {
	var m Permission
	for _, p := range e.Permissions {
		m |= p
	}
	return m
}

// Seed upserts the catalog by name in one transaction. Masks and default
// flags are overwritten, and any role outside the catalog loses the
// default flag, so running it again is harmless.
func Seed(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		defaultName := ""
		for _, e := range catalog {
			var r Role
			if err := tx.Where(Role{Name: e.Name}).FirstOrCreate(&r).Error; err != nil {
				return fmt.Errorf("upsert role %s: %w", e.Name, err)
			}
			err := tx.Model(&r).Select("Permissions", "Default").Updates(Role{
				Permissions: e.mask(),
				Default:     e.Default,
			}).Error
			if err != nil {
				return fmt.Errorf("update role %s: %w", e.Name, err)
			}
			if e.Default {
				defaultName = e.Name
			}
		}
		if err := tx.Model(&Role{}).Where("name <> ?", defaultName).Update("is_default", false).Error; err != nil {
			return fmt.Errorf("clear default roles: %w", err)
		}
		log.Printf("[Role] seeded %d roles (default %q)", len(catalog), defaultName)
		return nil
	})
}

// Default returns the role assigned to new accounts.
func Default(ctx context.Context, db *gorm.DB) (*Role, error) {
	var r Role
	if err := db.WithContext(ctx).Where("is_default = ?", true).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no default role, run Seed first", ErrUnknownRole)
		}
		return nil, err
	}
	return &r, nil
}

func ByName(ctx context.Context, db *gorm.DB, name string) (*Role, error) {
	var r Role
	if err := db.WithContext(ctx).Where("name = ?", name).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRole, name)
		}
		return nil, err
	}
	return &r, nil
}

func List(ctx context.Context, db *gorm.DB) ([]Role, error) {
	var roles []Role
	if err := db.WithContext(ctx).Order("permissions").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// ForEmail picks the Administrator role when email equals the configured
// administrator address, otherwise the default role.
func ForEmail(ctx context.Context, db *gorm.DB, email, adminEmail string) (*Role, error) {
	if adminEmail != "" && email == adminEmail {
		return ByName(ctx, db, NameAdministrator)
	}
	return Default(ctx, db)
}
