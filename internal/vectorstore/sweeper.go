package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// Sweeper runs the background consistency pass:
// drop dangling file references, re-aggregate counts, and mark stores whose
// expires_at has passed. It lives on a long-lived goroutine group
// independent of request lifetimes.
type Sweeper struct {
	repo   Repository
	logger *slog.Logger
	cron   *cron.Cron
}

// NewSweeper builds a Sweeper. logger may be nil.
func NewSweeper(repo Repository, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{repo: repo, logger: logger, cron: cron.New()}
}

// Start schedules SweepOnce to run every interval and returns immediately;
// the schedule runs until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if err := s.SweepOnce(ctx); err != nil {
			s.logger.Error("vectorstore: sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("vectorstore: failed to schedule sweeper: %w", err)
	}
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
	return nil
}

// Stop halts the schedule, waiting for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// SweepOnce performs one global consistency pass: every store's dangling
// chunk references are dropped (AllChunks already filters them; this pass
// additionally removes completed files with no remaining chunks),
// counts are re-aggregated, and stores whose expires_at has passed are
// marked expired.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		return fmt.Errorf("vectorstore: sweep failed to list stores: %w", err)
	}

	var errs *multierror.Error
	now := time.Now().UTC()
	for _, store := range stores {
		if err := s.sweepStore(ctx, store, now); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("store %s: %w", store.ID, err))
		}
	}
	return errs.ErrorOrNil()
}

func (s *Sweeper) sweepStore(ctx context.Context, store *models.VectorStore, now time.Time) error {
	if store.IsExpired(now) && store.Status != models.VectorStoreExpired {
		store.Status = models.VectorStoreExpired
		if err := s.repo.UpdateStore(ctx, store); err != nil {
			return fmt.Errorf("failed to mark expired: %w", err)
		}
		s.logger.Info("vectorstore: store expired", "vector_store_id", store.ID)
		return nil
	}

	files, err := s.repo.ListFiles(ctx, store.ID)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	var counts models.FileCounts
	var bytes int64
	changed := false
	for _, f := range files {
		chunks, err := s.repo.ChunksForFile(ctx, store.ID, f.ID)
		if err != nil {
			return fmt.Errorf("failed to load chunks for %s: %w", f.ID, err)
		}
		// A completed file with no chunks has lost its backing blob
		// reference: remove it rather than counting it.
		if f.Status == models.VectorStoreFileCompleted && len(chunks) == 0 {
			if err := s.repo.DeleteFile(ctx, store.ID, f.ID); err != nil {
				return fmt.Errorf("failed to delete dangling file %s: %w", f.ID, err)
			}
			changed = true
			continue
		}

		counts.Total++
		bytes += f.UsageBytes
		switch f.Status {
		case models.VectorStoreFileInProgress:
			counts.InProgress++
		case models.VectorStoreFileCompleted:
			counts.Completed++
		case models.VectorStoreFileFailed:
			counts.Failed++
		case models.VectorStoreFileCancelled:
			counts.Cancelled++
		}
	}

	status := store.Status
	if status == models.VectorStoreInProgress && counts.InProgress == 0 {
		status = models.VectorStoreCompleted
	}

	if !changed && counts == store.FileCounts && bytes == store.Bytes && status == store.Status {
		return nil
	}
	store.FileCounts = counts
	store.Bytes = bytes
	store.Status = status
	return s.repo.UpdateStore(ctx, store)
}
