package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"prepcourse_backend/internal/repository"
	"prepcourse_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ViewCounter records course page views.
type ViewCounter interface {
	RecordView(ctx context.Context, courseID uint) error
}

// DirectViewCounter writes every view straight to the courses table.
type DirectViewCounter struct {
	courses *repository.CourseRepository
}

func NewDirectViewCounter(courses *repository.CourseRepository) *DirectViewCounter {
	return &DirectViewCounter{courses: courses}
}

func (c *DirectViewCounter) RecordView(ctx context.Context, courseID uint) error {
	return c.courses.IncrementViews(ctx, courseID, 1)
}

const viewKeyPrefix = "course:views:"

// RedisViewCounter buffers views in redis; Flush moves them to the database.
type RedisViewCounter struct {
	rdb     *redis.Client
	courses *repository.CourseRepository
}

func NewRedisViewCounter(rdb *redis.Client, courses *repository.CourseRepository) *RedisViewCounter {
	return &RedisViewCounter{rdb: rdb, courses: courses}
}

func (c *RedisViewCounter) RecordView(ctx context.Context, courseID uint) error {
	return c.rdb.Incr(ctx, fmt.Sprintf("%s%d", viewKeyPrefix, courseID)).Err()
}

// Flush drains every buffered counter and returns the number of views persisted.
func (c *RedisViewCounter) Flush(ctx context.Context) (int64, error) {
	var flushed int64
	iter := c.rdb.Scan(ctx, 0, viewKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		courseID, err := strconv.ParseUint(strings.TrimPrefix(key, viewKeyPrefix), 10, 64)
		if err != nil {
			continue
		}

		n, err := c.rdb.GetDel(ctx, key).Int64()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return flushed, fmt.Errorf("read view counter %s: %w", key, err)
		}
		if n == 0 {
			continue
		}

		if err := c.courses.IncrementViews(ctx, uint(courseID), n); err != nil {
			// put the views back so the next run retries them
			if rerr := c.rdb.IncrBy(ctx, key, n).Err(); rerr != nil {
				logger.Log.Error("restore view counter failed", zap.String("key", key), zap.Int64("views", n), zap.Error(rerr))
			}
			return flushed, err
		}
		flushed += n
	}
	return flushed, iter.Err()
}
