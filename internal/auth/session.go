package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// One key per live API token: session:<userID>:<tokenID>.
const (
	sessionKeyFmt  = "session:%d:%s"
	sessionScanFmt = "session:%d:*"
)

func SetSession(ctx context.Context, rdb *redis.Client, userID uint, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	return rdb.Set(ctx, fmt.Sprintf(sessionKeyFmt, userID, tokenID), "1", ttl).Err()
}

func HasSession(ctx context.Context, rdb *redis.Client, userID uint, tokenID string) (bool, error) {
	n, err := rdb.Exists(ctx, fmt.Sprintf(sessionKeyFmt, userID, tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteSessions revokes every API token of userID and returns how many were live.
func DeleteSessions(ctx context.Context, rdb *redis.Client, userID uint) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := rdb.Scan(ctx, cursor, fmt.Sprintf(sessionScanFmt, userID), 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// OnlineUserCount returns the number of unique users with active sessions.
func OnlineUserCount(ctx context.Context, rdb *redis.Client) (int, error) {
	var cursor uint64
	userIDs := make(map[string]struct{})
	for {
		keys, next, err := rdb.Scan(ctx, cursor, "session:*", 100).Result()
		if err != nil {
			return 0, err
		}
		for _, key := range keys {
			parts := strings.Split(key, ":")
			if len(parts) == 3 && parts[0] == "session" && parts[1] != "" {
				userIDs[parts[1]] = struct{}{}
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return len(userIDs), nil
}
