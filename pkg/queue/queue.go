// Package queue is a Redis-list job queue for background work (broadcast
// archive uploads), with bounded retries and a dead-letter queue.
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

	"github.com/andyyong11/streamdj/internal/models"
	"github.com/andyyong11/streamdj/pkg/retry"
)

const (
	// QueueArchives is the Redis list key for archive upload jobs.
	QueueArchives = "worker:archives"
	// QueueDLQ is the dead-letter queue for jobs that failed every retry.
	QueueDLQ = "worker:dlq"
)

// DefaultRetry bounds per-job retries before the DLQ.
var DefaultRetry = retry.Policy{MaxAttempts: 3, BaseDelay: 10 * time.Second, JitterFactor: 0.2}

// JobType identifies the job kind.
type JobType string

// JobTypeArchiveUpload uploads an ended broadcast's segments to S3.
const JobTypeArchiveUpload JobType = "archive_upload"

// ArchiveUploadPayload is the payload for archive upload jobs.
type ArchiveUploadPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	StreamKey string    `json:"stream_key"`
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
	policy retry.Policy
	logger *zap.Logger
}

// NewQueue creates a Redis-backed job queue with the default retry policy.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, policy: DefaultRetry, logger: logger}
}

// EnqueueArchive enqueues an archive upload job for an ended session. It
// satisfies ingest.Archiver.
func (q *Queue) EnqueueArchive(ctx context.Context, session models.StreamSession) error {
	body, err := json.Marshal(ArchiveUploadPayload{
		SessionID: session.ID,
		OwnerID:   session.OwnerID,
		StreamKey: session.StreamKey,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      JobTypeArchiveUpload,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueArchives, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued archive job", zap.String("job_id", job.ID), zap.String("session_id", session.ID.String()))
	return nil
}

// Dequeue blocks until a job is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, QueueArchives).Result()
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

// Retry re-enqueues a job with incremented attempt after the policy delay.
// Once the policy's attempt bound is reached the job moves to the DLQ.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= q.policy.MaxAttempts {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	timer := time.NewTimer(q.policy.Delay())
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
	}
	if err := q.client.RPush(ctx, QueueArchives, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
