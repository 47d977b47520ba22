package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go-blog/internal/token"
	"go-blog/internal/user"
)

// Error codes reported for token failures.
const (
	CodeTokenExpired      = "token_expired"
	CodeTokenInvalid      = "token_invalid"
	CodeTokenNotYours     = "token_not_yours"
	CodeTokenWrongPurpose = "token_wrong_purpose"
)

// TokenErrorCode maps a codec error to the code sent to clients.
func TokenErrorCode(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return CodeTokenExpired
	case errors.Is(err, token.ErrWrongSubject):
		return CodeTokenNotYours
	case errors.Is(err, token.ErrWrongIntent):
		return CodeTokenWrongPurpose
	default:
		return CodeTokenInvalid
	}
}

// IssueAPIToken mints an access token for u and, when rdb is set, records a
// session that lives exactly as long as the token.
func IssueAPIToken(ctx context.Context, users *user.Service, rdb *redis.Client, u *user.User, ttl time.Duration) (token.Issued, error) {
	issued, err := users.GenerateAuthToken(u, ttl)
	if err != nil {
		return token.Issued{}, err
	}
	if rdb != nil {
		if err := SetSession(ctx, rdb, u.ID, issued.ID, ttl); err != nil {
			return token.Issued{}, fmt.Errorf("record session: %w", err)
		}
	}
	return issued, nil
}
