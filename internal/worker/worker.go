// Package worker processes background jobs dequeued from Redis.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/andyyong11/streamdj/internal/archive"
	"github.com/andyyong11/streamdj/internal/models"
	"github.com/andyyong11/streamdj/pkg/queue"
	"github.com/andyyong11/streamdj/pkg/storage"
)

// ArchiveProcessor uploads an ended broadcast's segment directory to S3 and
// records the result. The ingest gateway writes segments under
// <segmentsDir>/<streamKey>/ while a stream is live.
type ArchiveProcessor struct {
	repo        *archive.Repository
	s3          *storage.S3
	queue       *queue.Queue
	segmentsDir string
	logger      *zap.Logger
}

// NewArchiveProcessor creates the archive upload processor.
func NewArchiveProcessor(repo *archive.Repository, s3 *storage.S3, q *queue.Queue, segmentsDir string, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{repo: repo, s3: s3, queue: q, segmentsDir: segmentsDir, logger: logger}
}

// Run dequeues and processes jobs until ctx is done. Failed jobs go back
// through the queue's bounded retry and then the DLQ.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("dequeue", zap.Error(err))
			continue
		}
		if job == nil {
			continue
		}
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("archive job failed", zap.String("job_id", job.ID), zap.Error(err))
			_ = p.queue.Retry(ctx, job)
		}
	}
}

// Process executes one archive upload job.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeArchiveUpload {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ArchiveUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	dir := filepath.Join(p.segmentsDir, payload.StreamKey)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Nothing was recorded for this broadcast; not a retryable failure.
			p.logger.Warn("no segments to archive", zap.String("session_id", payload.SessionID.String()))
			return nil
		}
		return err
	}

	rec, err := p.repo.Create(ctx, payload.SessionID, payload.OwnerID)
	if err != nil {
		return fmt.Errorf("create archive row: %w", err)
	}
	if err := p.repo.MarkUploading(ctx, rec.ID); err != nil {
		return err
	}

	total, err := p.s3.UploadDirectory(ctx, dir, payload.SessionID.String())
	if err != nil {
		_ = p.repo.MarkFailed(ctx, rec.ID)
		return fmt.Errorf("upload: %w", err)
	}

	key := storage.ArchiveKey(payload.SessionID.String(), "")
	if err := p.repo.MarkCompleted(ctx, rec.ID, key, total); err != nil {
		return err
	}
	// Local segments are disposable once archived.
	if err := os.RemoveAll(dir); err != nil {
		p.logger.Warn("cleanup segment dir", zap.String("dir", dir), zap.Error(err))
	}
	p.logger.Info("broadcast archived",
		zap.String("session_id", payload.SessionID.String()),
		zap.String("status", models.ArchiveCompleted),
		zap.Int64("bytes", total))
	return nil
}
