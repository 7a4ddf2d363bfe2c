// Package stats keeps a rolling week of title paging list counts per branch in Redis.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type hashSetter interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// Recorder writes branch counts into one Redis hash
type Recorder struct {
	client hashSetter
	key    string
	closer func() error
}

// NewRecorder connects to the Redis server at addr
func NewRecorder(addr string, db int, key string) *Recorder {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	return &Recorder{client: client, key: key, closer: client.Close}
}

// Field is the hash field for a branch and day, e.g. "North Hills:Monday"
func Field(branch string, day time.Weekday) string {
	return fmt.Sprintf("%s:%s", branch, day)
}

// SetBranchCount stores the number of titles a branch had to page on day
func (r *Recorder) SetBranchCount(ctx context.Context, branch string, day time.Weekday, count int) error {
	if err := r.client.HSet(ctx, r.key, Field(branch, day), count).Err(); err != nil {
		return fmt.Errorf("failed to record count for %s: %w", branch, err)
	}
	return nil
}

// Close releases the Redis connection pool
func (r *Recorder) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
