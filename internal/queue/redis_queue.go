package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Redis key prefixes
const (
	queuePrefix   = "queue:"
	delayedPrefix = "delayed:"
	failedPrefix  = "failed:"
)

// RedisClient is the subset of *redis.Client the queue uses
type RedisClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	ZAdd(ctx context.Context, key string, members ...*redis.Z) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
}

// RedisQueue is a job queue backed by Redis lists. Jobs waiting for a retry sit
// in a sorted set scored by their due time until PromoteDelayed moves them back.
type RedisQueue struct {
	client  RedisClient
	now     func() time.Time
	backoff func(retry int) time.Duration
}

// NewRedisQueue creates a new Redis queue
func NewRedisQueue(client RedisClient) *RedisQueue {
	return &RedisQueue{client: client, now: time.Now, backoff: calculateBackoff}
}

// Enqueue adds a job to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, jobType JobType, payload interface{}, opts ...EnqueueOption) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := q.now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Payload:    payloadBytes,
		Status:     JobStatusPending,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, opt := range opts {
		opt(job)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, queuePrefix+string(jobType), string(data)).Err(); err != nil {
		return "", fmt.Errorf("failed to push job to queue: %w", err)
	}
	return job.ID, nil
}

// Dequeue pops the oldest job, waiting up to timeout. It returns nil, nil when
// the queue stayed empty.
func (q *RedisQueue) Dequeue(ctx context.Context, jobType JobType, timeout time.Duration) (*Job, error) {
	result, err := q.client.BRPop(ctx, timeout, queuePrefix+string(jobType)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("error popping job from queue %s: %w", jobType, err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid result from BRPOP for queue %s", jobType)
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Fail records a failed attempt. The job is scheduled for a retry with backoff
// until it has used MaxRetries retries, then moved to the failed list. It
// returns true when the job was dead-lettered.
func (q *RedisQueue) Fail(ctx context.Context, job *Job, cause error) (bool, error) {
	now := q.now()
	job.UpdatedAt = now
	if cause != nil {
		job.Error = cause.Error()
	}

	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		next := now.Add(q.backoff(job.RetryCount))
		job.NextRetry = &next
		job.Status = JobStatusRetrying

		data, err := json.Marshal(job)
		if err != nil {
			return false, fmt.Errorf("failed to marshal job: %w", err)
		}
		if err := q.client.ZAdd(ctx, delayedPrefix+string(job.Type), &redis.Z{
			Score:  float64(next.Unix()),
			Member: string(data),
		}).Err(); err != nil {
			return false, fmt.Errorf("failed to add job to delayed queue for retry: %w", err)
		}
		return false, nil
	}

	job.Status = JobStatusFailed
	job.NextRetry = nil
	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, failedPrefix+string(job.Type), string(data)).Err(); err != nil {
		return false, fmt.Errorf("failed to add job to failed list: %w", err)
	}
	return true, nil
}

// PromoteDelayed moves retries that are due back onto the main queue and
// returns how many were moved
func (q *RedisQueue) PromoteDelayed(ctx context.Context, jobType JobType) (int, error) {
	delayedKey := delayedPrefix + string(jobType)
	due, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	moved := 0
	for _, member := range due {
		// Whoever removes the member owns it, so concurrent promoters never
		// push the same job twice.
		removed, err := q.client.ZRem(ctx, delayedKey, member).Result()
		if err != nil {
			return moved, fmt.Errorf("failed to remove job from delayed queue: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, queuePrefix+string(jobType), member).Err(); err != nil {
			return moved, fmt.Errorf("failed to push job to queue: %w", err)
		}
		moved++
	}
	return moved, nil
}

// Stats gets the depth of each list for a queue
func (q *RedisQueue) Stats(ctx context.Context, jobType JobType) (*Stats, error) {
	stats := &Stats{Queue: string(jobType)}

	waiting, err := q.client.LLen(ctx, queuePrefix+string(jobType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get waiting count: %w", err)
	}
	stats.Waiting = waiting

	delayed, err := q.client.ZCard(ctx, delayedPrefix+string(jobType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get delayed count: %w", err)
	}
	stats.Delayed = delayed

	failed, err := q.client.LLen(ctx, failedPrefix+string(jobType)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get failed count: %w", err)
	}
	stats.Failed = failed

	return stats, nil
}
