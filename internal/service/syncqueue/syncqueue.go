// Package syncqueue uploads queued offline mutations and records the outcome
// of each attempt on the queue item.
package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/storage"
	"github.com/houra-app/houra/internal/telemetry"
)

// DefaultMaxRetries is the retry count after which an item is left alone.
const DefaultMaxRetries = 5

// ErrConflict is returned by an Uploader when upstream rejects a mutation
// as conflicting. The item is parked in Conflict until the student resolves it.
var ErrConflict = errors.New("syncqueue: upstream conflict")

// Uploader delivers one queued mutation to the upstream system.
type Uploader interface {
	Upload(ctx context.Context, item model.SyncQueueItem) error
}

// FlushResult counts what one flush did.
type FlushResult struct {
	Processed int `json:"processed"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
	Conflicts int `json:"conflicts"`
}

// Flusher drains the sync queue of each student through an Uploader.
type Flusher struct {
	store      storage.Store
	uploader   Uploader
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time

	outcomes metric.Int64Counter
}

// New creates a Flusher. maxRetries <= 0 uses DefaultMaxRetries.
func New(store storage.Store, uploader Uploader, maxRetries int, logger *slog.Logger) *Flusher {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	outcomes, _ := telemetry.Meter("houra/syncqueue").Int64Counter("houra.sync.uploads",
		metric.WithDescription("Sync queue upload attempts by outcome"),
	)
	return &Flusher{
		store:      store,
		uploader:   uploader,
		maxRetries: maxRetries,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		outcomes:   outcomes,
	}
}

// Flush processes the student's pending items oldest first. Items already
// Synced, waiting on conflict resolution or at the retry limit are skipped.
// An upload failure marks only that item Failed; the rest of the queue is
// still processed.
func (f *Flusher) Flush(ctx context.Context, studentID uuid.UUID) (FlushResult, error) {
	state, err := f.store.GetStateForStudent(ctx, studentID)
	if err != nil {
		return FlushResult{}, fmt.Errorf("syncqueue: read queue: %w", err)
	}

	var res FlushResult
	// The queue is held newest first; upload in the order it was written.
	for i := len(state.SyncQueue) - 1; i >= 0; i-- {
		item := state.SyncQueue[i]
		if item.Status == model.SyncSynced || item.Status == model.SyncConflict || item.RetryCount >= f.maxRetries {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Processed++

		if err := f.store.SetSyncItemStatus(ctx, studentID, item.ID, model.SyncUploading, f.now()); err != nil {
			return res, fmt.Errorf("syncqueue: mark uploading %s: %w", item.ID, err)
		}

		upErr := f.uploader.Upload(ctx, item)
		if upErr == nil {
			if err := f.store.SetSyncItemStatus(ctx, studentID, item.ID, model.SyncSynced, f.now()); err != nil {
				return res, fmt.Errorf("syncqueue: mark synced %s: %w", item.ID, err)
			}
			res.Synced++
			f.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "synced")))
			continue
		}

		if errors.Is(upErr, ErrConflict) {
			if err := f.store.SetSyncItemStatus(ctx, studentID, item.ID, model.SyncConflict, f.now()); err != nil {
				return res, fmt.Errorf("syncqueue: mark conflict %s: %w", item.ID, err)
			}
			res.Conflicts++
			f.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "conflict")))
			continue
		}

		f.logger.Warn("syncqueue: upload failed",
			"item_id", item.ID, "student_id", studentID, "retry_count", item.RetryCount+1, "error", upErr)
		if err := f.store.RecordSyncFailure(ctx, studentID, item.ID, upErr.Error(), f.now()); err != nil {
			return res, fmt.Errorf("syncqueue: record failure %s: %w", item.ID, err)
		}
		res.Failed++
		f.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
	}
	return res, nil
}

// Run flushes every active student's queue on each tick until ctx is done.
func (f *Flusher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.flushAll(ctx)
		}
	}
}

func (f *Flusher) flushAll(ctx context.Context) {
	students, err := f.store.ListActiveStudents(ctx, 0)
	if err != nil {
		f.logger.Error("syncqueue: list students", "error", err)
		return
	}
	for _, s := range students {
		res, err := f.Flush(ctx, s.ID)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			f.logger.Error("syncqueue: flush failed", "student_id", s.ID, "error", err)
			continue
		}
		if res.Processed > 0 {
			f.logger.Info("syncqueue: flushed",
				"student_id", s.ID, "processed", res.Processed, "synced", res.Synced, "failed", res.Failed, "conflicts", res.Conflicts)
		}
	}
}
