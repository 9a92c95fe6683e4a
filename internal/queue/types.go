package queue

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/goccy/go-json"
)

// JobType names a queue; each type has its own Redis list
type JobType string

const (
	// JobTypeMerchantForward delivers a recorded transaction to the merchant backend
	JobTypeMerchantForward JobType = "merchant_forward"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRetrying JobStatus = "retrying"
	JobStatusFailed   JobStatus = "failed"
)

// Default values
const (
	DefaultMaxRetries = 3
)

// Job represents a background job. The whole job travels through Redis, so it
// carries its own retry bookkeeping.
type Job struct {
	ID         string          `json:"id"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	NextRetry  *time.Time      `json:"next_retry,omitempty"`
}

// Decode unmarshals the job payload into v
func (j *Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// JobHandler processes a job. A returned error schedules a retry.
type JobHandler func(ctx context.Context, job Job) error

// Stats represents the depth of a queue
type Stats struct {
	Queue   string `json:"queue"`
	Waiting int64  `json:"waiting"`
	Delayed int64  `json:"delayed"`
	Failed  int64  `json:"failed"`
}

// EnqueueOption is a function that modifies a job before it is queued
type EnqueueOption func(*Job)

// WithMaxRetries sets the maximum number of retries for a job
func WithMaxRetries(maxRetries int) EnqueueOption {
	return func(j *Job) {
		j.MaxRetries = maxRetries
	}
}

// WithJobID sets a specific job ID
func WithJobID(id string) EnqueueOption {
	return func(j *Job) {
		j.ID = id
	}
}

// calculateBackoff calculates the backoff duration for a retry
func calculateBackoff(retry int) time.Duration {
	// Exponential backoff with jitter
	// Base: 5 seconds
	// Max: 1 hour
	base := 5.0
	max := 3600.0

	seconds := math.Min(max, base*math.Pow(2, float64(retry)))

	// Add jitter (±20%)
	jitter := seconds * 0.2
	seconds = seconds - jitter + (rand.Float64() * jitter * 2)

	return time.Duration(seconds * float64(time.Second))
}
