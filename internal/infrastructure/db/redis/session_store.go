package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlasagent/agent-gateway/internal/core/domain"
)

// Key layout:
//
//	session:<token>        hash holding one extension session
//	sessions:user:<name>   set of tokens issued to a user
//	sessions:all           hash of every known token to its user
//
// Timestamps are stored as Unix milliseconds so the scripts can compare them
// exactly as Lua numbers.
const (
	sessionPrefix = "session:"
	userPrefix    = "sessions:user:"
	allSessions   = "sessions:all"
)

var insertScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then return 0 end
redis.call("HSET", KEYS[1], unpack(ARGV, 4))
redis.call("PEXPIRE", KEYS[1], ARGV[2])
redis.call("SADD", KEYS[2], ARGV[1])
redis.call("HSET", KEYS[3], ARGV[1], ARGV[3])
return 1
`)

var touchScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "expired") ~= "0" then return 0 end
local last = tonumber(redis.call("HGET", KEYS[1], "last_seen"))
if tonumber(ARGV[1]) <= last then return 0 end
redis.call("HSET", KEYS[1], "last_seen", ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 1
`)

// expireScript returns 1 when it flips the flag, 0 when the session was
// already expired and -1 when the key is gone.
var expireScript = redis.NewScript(`
local state = redis.call("HGET", KEYS[1], "expired")
if not state then return -1 end
if state ~= "0" then return 0 end
redis.call("HSET", KEYS[1], "expired", "1", "expired_at", ARGV[1])
return 1
`)

// SessionStore keeps extension sessions in Redis. Every state change runs as
// a Lua script so readers never see a half-applied update. Keys carry a TTL of
// keyTTL past their last use, so abandoned sessions disappear on their own.
type SessionStore struct {
	client *redis.Client
	keyTTL time.Duration
}

// NewSessionStore wraps client. keyTTL should cover the idle TTL plus the
// retention window of expired sessions.
func NewSessionStore(client *redis.Client, keyTTL time.Duration) *SessionStore {
	if keyTTL <= 0 {
		keyTTL = 25 * time.Hour
	}
	return &SessionStore{client: client, keyTTL: keyTTL}
}

func (s *SessionStore) Insert(ctx context.Context, sess *domain.ExtensionSession) error {
	fields, err := encodeSession(sess)
	if err != nil {
		return err
	}
	args := append([]any{sess.Token, s.keyTTL.Milliseconds(), sess.Username}, fields...)

	ok, err := insertScript.Run(ctx, s.client,
		[]string{sessionKey(sess.Token), userKey(sess.Username), allSessions}, args...).Int()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if ok == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, token string) (*domain.ExtensionSession, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return decodeSession(token, fields)
}

func (s *SessionStore) Touch(ctx context.Context, token string, at time.Time) error {
	err := touchScript.Run(ctx, s.client, []string{sessionKey(token)},
		at.UnixMilli(), s.keyTTL.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *SessionStore) Expire(ctx context.Context, token string, at time.Time) error {
	_, err := s.expire(ctx, token, at)
	return err
}

// expire runs expireScript and reports its result: 1 flipped, 0 already
// expired, -1 gone.
func (s *SessionStore) expire(ctx context.Context, token string, at time.Time) (int, error) {
	n, err := expireScript.Run(ctx, s.client, []string{sessionKey(token)}, at.UnixMilli()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("expire session: %w", err)
	}
	return n, nil
}

func (s *SessionStore) ExpireUser(ctx context.Context, username string, at time.Time) (int, error) {
	tokens, err := s.client.SMembers(ctx, userKey(username)).Result()
	if err != nil {
		return 0, fmt.Errorf("list user sessions: %w", err)
	}
	n := 0
	for _, token := range tokens {
		state, err := s.expire(ctx, token, at)
		if err != nil {
			return n, err
		}
		switch state {
		case 1:
			n++
		case -1:
			if err := s.unindex(ctx, username, token); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// unindex drops token from both index keys once its hash is gone.
func (s *SessionStore) unindex(ctx context.Context, username, token string) error {
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, userKey(username), token)
	pipe.HDel(ctx, allSessions, token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unindex session: %w", err)
	}
	return nil
}

func (s *SessionStore) Sweep(ctx context.Context, now time.Time, idleTTL, retention time.Duration) (int, int, error) {
	index, err := s.client.HGetAll(ctx, allSessions).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("list sessions: %w", err)
	}

	expired, purged := 0, 0
	for token, username := range index {
		sess, err := s.Get(ctx, token)
		if errors.Is(err, domain.ErrSessionNotFound) {
			// Key already dropped by its TTL.
			if err := s.unindex(ctx, username, token); err != nil {
				return expired, purged, err
			}
			purged++
			continue
		}
		if err != nil {
			return expired, purged, err
		}

		if !sess.Expired && sess.IdleFor(now) > idleTTL {
			state, err := s.expire(ctx, token, now)
			if err != nil {
				return expired, purged, err
			}
			if state == 1 {
				expired++
			}
			continue
		}
		if sess.Expired && sess.ExpiredAt != nil && now.Sub(*sess.ExpiredAt) > retention {
			pipe := s.client.TxPipeline()
			pipe.Del(ctx, sessionKey(token))
			pipe.SRem(ctx, userKey(sess.Username), token)
			pipe.HDel(ctx, allSessions, token)
			if _, err := pipe.Exec(ctx); err != nil {
				return expired, purged, fmt.Errorf("purge session: %w", err)
			}
			purged++
		}
	}
	return expired, purged, nil
}

func (s *SessionStore) CountActive(ctx context.Context) (int, error) {
	tokens, err := s.client.HKeys(ctx, allSessions).Result()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.HGet(ctx, sessionKey(token), "expired")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("count sessions: %w", err)
	}

	n := 0
	for _, cmd := range cmds {
		if v, err := cmd.Result(); err == nil && v == "0" {
			n++
		}
	}
	return n, nil
}

func sessionKey(token string) string { return sessionPrefix + token }
func userKey(username string) string { return userPrefix + username }

func encodeSession(sess *domain.ExtensionSession) ([]any, error) {
	snapshot, err := json.Marshal(sess.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	expired, expiredAt := "0", ""
	if sess.Expired {
		expired = "1"
		if sess.ExpiredAt != nil {
			expiredAt = strconv.FormatInt(sess.ExpiredAt.UnixMilli(), 10)
		}
	}
	return []any{
		"username", sess.Username,
		"snapshot", string(snapshot),
		"device_id", sess.DeviceID,
		"created_at", strconv.FormatInt(sess.CreatedAt.UnixMilli(), 10),
		"last_seen", strconv.FormatInt(sess.LastSeenAt.UnixMilli(), 10),
		"expired", expired,
		"expired_at", expiredAt,
	}, nil
}

func decodeSession(token string, fields map[string]string) (*domain.ExtensionSession, error) {
	sess := &domain.ExtensionSession{
		Token:    token,
		Username: fields["username"],
		DeviceID: fields["device_id"],
		Expired:  fields["expired"] == "1",
	}
	if err := json.Unmarshal([]byte(fields["snapshot"]), &sess.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	var err error
	if sess.CreatedAt, err = parseMillis(fields["created_at"]); err != nil {
		return nil, err
	}
	if sess.LastSeenAt, err = parseMillis(fields["last_seen"]); err != nil {
		return nil, err
	}
	if v := fields["expired_at"]; v != "" {
		at, err := parseMillis(v)
		if err != nil {
			return nil, err
		}
		sess.ExpiredAt = &at
	}
	return sess, nil
}

func parseMillis(v string) (time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp %q: %w", v, err)
	}
	return time.UnixMilli(n).UTC(), nil
}
