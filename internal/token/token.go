// Package token issues and verifies signed, time-limited tokens that carry
// a single account intent (confirm, reset, change email, API access).
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalid is wrapped by every verification failure so callers that do
	// not care about the reason can test for it alone.
	ErrInvalid      = errors.New("token: invalid")
	ErrMalformed    = fmt.Errorf("%w: malformed", ErrInvalid)
	ErrSignature    = fmt.Errorf("%w: bad signature", ErrInvalid)
	ErrExpired      = fmt.Errorf("%w: expired", ErrInvalid)
	ErrWrongIntent  = fmt.Errorf("%w: wrong intent", ErrInvalid)
	ErrWrongSubject = fmt.Errorf("%w: wrong subject", ErrInvalid)
)

type Intent string

const (
	IntentConfirm     Intent = "confirm"
	IntentReset       Intent = "reset"
	IntentChangeEmail Intent = "change_email"
	IntentAccess      Intent = "access"
)

// Payload is the closed set of token bodies.
type Payload interface {
	Intent() Intent
	Subject() uint
	sealed()
}

type Confirm struct{ AccountID uint }

type Reset struct{ AccountID uint }

type ChangeEmail struct {
	AccountID uint
	NewEmail  string
}

type Access struct{ AccountID uint }

func (Confirm) Intent() Intent     { return IntentConfirm }
func (Reset) Intent() Intent       { return IntentReset }
func (ChangeEmail) Intent() Intent { return IntentChangeEmail }
func (Access) Intent() Intent      { return IntentAccess }

func (p Confirm) Subject() uint     { return p.AccountID }
func (p Reset) Subject() uint       { return p.AccountID }
func (p ChangeEmail) Subject() uint { return p.AccountID }
func (p Access) Subject() uint      { return p.AccountID }

func (Confirm) sealed()     {}
func (Reset) sealed()       {}
func (ChangeEmail) sealed() {}
func (Access) sealed()      {}

type Claims struct {
	Intent   Intent `json:"intent"`
	NewEmail string `json:"newEmail,omitempty"`
	jwt.RegisteredClaims
}

// Issued describes a freshly signed token.
type Issued struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// Verified is the decoded content of a token that passed every check.
type Verified struct {
	Payload   Payload
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs tokens with a process-wide HMAC secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret), now: time.Now}
}

// WithClock returns a copy of the codec that reads time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	return &Codec{secret: c.secret, now: now}
}

func (c *Codec) Issue(p Payload, ttl time.Duration) (string, error) {
	issued, err := c.IssueToken(p, ttl)
	if err != nil {
		return "", err
	}
	return issued.Token, nil
}

func (c *Codec) IssueToken(p Payload, ttl time.Duration) (Issued, error) {
	if p == nil || p.Subject() == 0 {
		return Issued{}, errors.New("token: payload needs a subject")
	}
	if ttl <= 0 {
		return Issued{}, fmt.Errorf("token: ttl must be positive, got %v", ttl)
	}
	now := c.now().UTC()
	claims := Claims{
		Intent: p.Intent(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(p.Subject()), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if ce, ok := p.(ChangeEmail); ok {
		claims.NewEmail = ce.NewEmail
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("token: sign: %w", err)
	}
	return Issued{Token: signed, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks signature and expiry, then the optional intent and subject
// constraints. An empty intent or a zero subject disables that check.
func (c *Codec) Verify(tokenStr string, intent Intent, subject uint) (*Verified, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrMalformed
		}
	}

	payload, err := claims.payload()
	if err != nil {
		return nil, err
	}
	if intent != "" && payload.Intent() != intent {
		return nil, ErrWrongIntent
	}
	if subject != 0 && payload.Subject() != subject {
		return nil, ErrWrongSubject
	}
	v := &Verified{Payload: payload, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}
	if claims.IssuedAt != nil {
		v.IssuedAt = claims.IssuedAt.Time
	}
	return v, nil
}

func (c *Claims) payload() (Payload, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return nil, ErrMalformed
	}
	account := uint(id)
	switch c.Intent {
	case IntentConfirm:
		return Confirm{AccountID: account}, nil
	case IntentReset:
		return Reset{AccountID: account}, nil
	case IntentChangeEmail:
		if c.NewEmail == "" {
			return nil, ErrMalformed
		}
		return ChangeEmail{AccountID: account, NewEmail: c.NewEmail}, nil
	case IntentAccess:
		return Access{AccountID: account}, nil
	default:
		return nil, ErrMalformed
	}
}
