package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-blog/internal/paging"
	"go-blog/internal/role"
	"go-blog/internal/token"
)

var (
	ErrNotFound           = errors.New("user: not found")
	ErrInvalidCredentials = errors.New("user: invalid credentials")
	ErrInvalidAccount     = errors.New("user: email, username and password are required")
	ErrConflict           = errors.New("user: already exists")
	ErrEmailTaken         = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrUsernameTaken      = fmt.Errorf("%w: username already in use", ErrConflict)
)

const defaultTokenTTL = time.Hour

// Options carries the account settings fixed at startup.
type Options struct {
	AdminEmail     string
	ConfirmTTL     time.Duration
	ResetTTL       time.Duration
	EmailChangeTTL time.Duration
	AccessTTL      time.Duration
}

// Service runs account and follow-graph operations against the store.
// Every mutation is a single statement or a single transaction.
type Service struct {
	db    *gorm.DB
	codec *token.Codec
	opts  Options
	now   func() time.Time
}

func NewService(db *gorm.DB, codec *token.Codec, opts Options) *Service {
	for _, ttl := range []*time.Duration{&opts.ConfirmTTL, &opts.ResetTTL, &opts.EmailChangeTTL, &opts.AccessTTL} {
		if *ttl <= 0 {
			*ttl = defaultTokenTTL
		}
	}
	return &Service{db: db, codec: codec, opts: opts, now: time.Now}
}

// WithClock returns a copy of the service that stamps rows with now.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

type NewAccount struct {
	Email     string
	Username  string
	Password  string
	Confirmed bool
}

// Register creates an account with its role and the self-follow edge.
func (s *Service) Register(ctx context.Context, in NewAccount) (*User, error) {
	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || in.Password == "" {
		return nil, ErrInvalidAccount
	}
	now := s.now().UTC()
	u := &User{
		Email:       email,
		Username:    username,
		Confirmed:   in.Confirmed,
		AvatarHash:  avatarHash(email),
		MemberSince: now,
		LastSeen:    now,
	}
	if err := u.SetPassword(in.Password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if taken, err := exists(tx, "email = ?", email); err != nil {
			return err
		} else if taken {
			return ErrEmailTaken
		}
		if taken, err := exists(tx, "username = ?", username); err != nil {
			return err
		} else if taken {
			return ErrUsernameTaken
		}
		r, err := role.ForEmail(ctx, tx, email, s.opts.AdminEmail)
		if err != nil {
			return err
		}
		u.RoleID = r.ID
		if err := tx.Omit(clause.Associations).Create(u).Error; err != nil {
			return translate(err)
		}
		u.Role = r
		return tx.Create(&Follow{FollowerID: u.ID, FollowedID: u.ID, Timestamp: now}).Error
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*User, error) {
	return s.first(ctx, "id = ?", id)
}

// GetByEmail matches case-insensitively; emails are stored lower-case.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.first(ctx, "email = ?", normalizeEmail(email))
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.first(ctx, "username = ?", strings.TrimSpace(username))
}

func (s *Service) first(ctx context.Context, query string, args ...any) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Preload("Role").Where(query, args...).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// List pages through accounts in registration order.
func (s *Service) List(ctx context.Context, page paging.Page) ([]User, int64, error) {
	var (
		total int64
		rows  []User
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&User{}).Count(&total).Error; err != nil {
			return err
		}
		return tx.Preload("Role").Order("id").Scopes(page.Scope()).Find(&rows).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Authenticate checks an email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.VerifyPassword(password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) GenerateConfirmationToken(u *User, ttl time.Duration) (string, error) {
	return s.codec.Issue(token.Confirm{AccountID: u.ID}, orDefault(ttl, s.opts.ConfirmTTL))
}

// Confirm marks u confirmed when tok is a live confirm token for u. A second
// confirmation with a valid token succeeds without writing.
func (s *Service) Confirm(ctx context.Context, u *User, tok string) error {
	if _, err := s.codec.Verify(tok, token.IntentConfirm, u.ID); err != nil {
		return err
	}
	if u.Confirmed {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", u.ID).Update("confirmed", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	u.Confirmed = true
	return nil
}

func (s *Service) GenerateResetToken(u *User, ttl time.Duration) (string, error) {
	return s.codec.Issue(token.Reset{AccountID: u.ID}, orDefault(ttl, s.opts.ResetTTL))
}

// ResetPassword replaces the password of u; on any failure the stored and
// in-memory hashes are left as they were.
func (s *Service) ResetPassword(ctx context.Context, u *User, tok, newPassword string) error {
	if _, err := s.codec.Verify(tok, token.IntentReset, u.ID); err != nil {
		return err
	}
	return s.storePassword(ctx, u, newPassword)
}

// ChangePassword is the signed-in variant of ResetPassword.
func (s *Service) ChangePassword(ctx context.Context, u *User, oldPassword, newPassword string) error {
	if !u.VerifyPassword(oldPassword) {
		return ErrInvalidCredentials
	}
	return s.storePassword(ctx, u, newPassword)
}

func (s *Service) storePassword(ctx context.Context, u *User, plaintext string) error {
	if plaintext == "" {
		return ErrInvalidAccount
	}
	hash, err := HashPassword(plaintext)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", u.ID).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *Service) GenerateEmailChangeToken(u *User, newEmail string, ttl time.Duration) (string, error) {
	newEmail = normalizeEmail(newEmail)
	if newEmail == "" {
		return "", ErrInvalidAccount
	}
	return s.codec.Issue(token.ChangeEmail{AccountID: u.ID, NewEmail: newEmail}, orDefault(ttl, s.opts.EmailChangeTTL))
}

// ChangeEmail applies a change_email token. The new address must not belong
// to any account, u included.
func (s *Service) ChangeEmail(ctx context.Context, u *User, tok string) error {
	v, err := s.codec.Verify(tok, token.IntentChangeEmail, u.ID)
	if err != nil {
		return err
	}
	newEmail := normalizeEmail(v.Payload.(token.ChangeEmail).NewEmail)
	hash := avatarHash(newEmail)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := exists(tx, "email = ?", newEmail)
		if err != nil {
			return err
		}
		if taken {
			return ErrEmailTaken
		}
		res := tx.Model(&User{}).Where("id = ?", u.ID).Updates(map[string]any{
			"email":       newEmail,
			"avatar_hash": hash,
		})
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	u.Email = newEmail
	u.AvatarHash = hash
	return nil
}

// GenerateAuthToken issues an API access token.
func (s *Service) GenerateAuthToken(u *User, ttl time.Duration) (token.Issued, error) {
	return s.codec.IssueToken(token.Access{AccountID: u.ID}, orDefault(ttl, s.opts.AccessTTL))
}

// VerifyAuthToken resolves an API access token to its account.
func (s *Service) VerifyAuthToken(ctx context.Context, tok string) (*User, *token.Verified, error) {
	v, err := s.codec.Verify(tok, token.IntentAccess, 0)
	if err != nil {
		return nil, nil, err
	}
	u, err := s.Get(ctx, v.Payload.Subject())
	if err != nil {
		return nil, nil, err
	}
	return u, v, nil
}

// Ping records activity for u.
func (s *Service) Ping(ctx context.Context, u *User) error {
	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", u.ID).UpdateColumn("last_seen", now).Error; err != nil {
		return err
	}
	u.LastSeen = now
	return nil
}

// CountSeenSince counts accounts active at or after since.
func (s *Service) CountSeenSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&User{}).Where("last_seen >= ?", since.UTC()).Count(&n).Error
	return n, err
}

func (s *Service) SetRole(ctx context.Context, u *User, name string) error {
	r, err := role.ByName(ctx, s.db, name)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", u.ID).Update("role_id", r.ID).Error; err != nil {
		return err
	}
	u.RoleID = r.ID
	u.Role = r
	return nil
}

// Delete removes the account; its follow edges, posts and comments go with
// it through ON DELETE CASCADE.
func (s *Service) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&User{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func exists(tx *gorm.DB, query string, args ...any) (bool, error) {
	var n int64
	if err := tx.Model(&User{}).Where(query, args...).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// translate maps unique-index races that slipped past the existence checks.
func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func orDefault(ttl, def time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return def
}
