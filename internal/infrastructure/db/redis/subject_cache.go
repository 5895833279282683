package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/echos/users-api/internal/core/domain"
	"github.com/echos/users-api/pkg/metrics"
)

const (
	defaultSubjectTTL = 30 * time.Second

	// generationTTL bounds how long a bumped generation is remembered. It
	// must outlive any directory read in flight when Invalidate ran.
	generationTTL = 24 * time.Hour
)

// setIfGeneration writes the entry only while the generation counter still
// holds the value the caller observed before reading the directory. A
// missing counter is generation 0.
//
// KEYS[1] entry key, KEYS[2] generation key
// ARGV[1] generation, ARGV[2] payload, ARGV[3] ttl in milliseconds
var setIfGeneration = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[2]) or "0")
if current ~= tonumber(ARGV[1]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// SubjectCache stores public user projections looked up by the access guard.
// Key format:
//   - subject:<user_id>      JSON entry tagged with its generation
//   - subject:gen:<user_id>  generation counter bumped by Invalidate
type SubjectCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

type cachedSubject struct {
	Generation int64        `json:"gen"`
	User       *domain.User `json:"user"`
}

// NewSubjectCache wraps client. A non-positive ttl falls back to 30s.
func NewSubjectCache(client redis.Cmdable, ttl time.Duration) *SubjectCache {
	if ttl <= 0 {
		ttl = defaultSubjectTTL
	}
	return &SubjectCache{client: client, ttl: ttl}
}

// Get returns the cached projection and the current generation. A miss, or
// an entry written under an older generation, is (nil, generation, nil).
func (c *SubjectCache) Get(ctx context.Context, userID string) (*domain.User, int64, error) {
	values, err := c.client.MGet(ctx, subjectKey(userID), generationKey(userID)).Result()
	if err != nil {
		metrics.SubjectCacheTotal.WithLabelValues("error").Inc()
		return nil, 0, fmt.Errorf("subject cache get: %w", err)
	}

	generation, err := parseGeneration(values[1])
	if err != nil {
		metrics.SubjectCacheTotal.WithLabelValues("error").Inc()
		return nil, 0, err
	}

	raw, ok := values[0].(string)
	if !ok {
		metrics.SubjectCacheTotal.WithLabelValues("miss").Inc()
		return nil, generation, nil
	}

	var entry cachedSubject
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		metrics.SubjectCacheTotal.WithLabelValues("error").Inc()
		return nil, 0, fmt.Errorf("subject cache decode: %w", err)
	}
	if entry.User == nil || entry.Generation != generation {
		metrics.SubjectCacheTotal.WithLabelValues("miss").Inc()
		return nil, generation, nil
	}
	metrics.SubjectCacheTotal.WithLabelValues("hit").Inc()
	return entry.User, generation, nil
}

// Set stores the public projection of u if the subject is still at
// generation; the password hash is never written. A stale generation is
// silently dropped.
func (c *SubjectCache) Set(ctx context.Context, u *domain.User, generation int64) error {
	raw, err := json.Marshal(cachedSubject{Generation: generation, User: u.Public()})
	if err != nil {
		return fmt.Errorf("subject cache encode: %w", err)
	}
	keys := []string{subjectKey(u.ID), generationKey(u.ID)}
	err = setIfGeneration.Run(ctx, c.client, keys, generation, raw, c.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("subject cache set: %w", err)
	}
	return nil
}

// Invalidate bumps the subject's generation and drops the cached projection
// after an edit or a delete.
func (c *SubjectCache) Invalidate(ctx context.Context, userID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(userID))
		pipe.Expire(ctx, generationKey(userID), generationTTL)
		pipe.Del(ctx, subjectKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("subject cache invalidate: %w", err)
	}
	return nil
}

func parseGeneration(v interface{}) (int64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("subject cache generation: unexpected %T", v)
	}
	gen, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("subject cache generation: %w", err)
	}
	return gen, nil
}

func subjectKey(userID string) string {
	return "subject:" + userID
}

func generationKey(userID string) string {
	return "subject:gen:" + userID
}
