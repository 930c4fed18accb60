package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueEmails is the Redis list key for email jobs.
	QueueEmails = "worker:emails"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeEmail JobType = "email"
)

// EmailPayload is the payload for email jobs. Recipient and content are resolved
// by the worker from the registration at send time.
type EmailPayload struct {
	EmailType      string    `json:"email_type"`
	EventID        uuid.UUID `json:"event_id"`
	RegistrationID uuid.UUID `json:"registration_id"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// NewJob wraps payload in an envelope with a fresh id.
func NewJob(typ JobType, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   body,
		CreatedAt: time.Now(),
	}, nil
}

// EnqueueEmail enqueues an email job.
func (q *Queue) EnqueueEmail(ctx context.Context, payload EmailPayload) error {
	job, err := NewJob(JobTypeEmail, payload)
	if err != nil {
		return err
	}
	if err := q.push(ctx, QueueEmails, job); err != nil {
		return err
	}
	q.logger.Debug("enqueued email job",
		zap.String("job_id", job.ID),
		zap.String("email_type", payload.EmailType),
		zap.String("registration_id", payload.RegistrationID.String()))
	return nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}

// Dequeue blocks until a job is available on key or ctx is done.
// A nil job with a nil error means the entry was unreadable and has been dropped.
func (q *Queue) Dequeue(ctx context.Context, key string) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job on key with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, key string, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		if err := q.push(ctx, QueueDLQ, job); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.push(ctx, key, job); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// Len returns the number of jobs waiting on key.
func (q *Queue) Len(ctx context.Context, key string) (int64, error) {
	return q.client.LLen(ctx, key).Result()
}
