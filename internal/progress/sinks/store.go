package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeforge/internal/progress"
	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// ProgressWriter is the slice of the job repository the StoreSink needs.
type ProgressWriter interface {
	UpdateJobProgress(ctx context.Context, jobID string, progress scraper.JobProgress) error
}

// StoreSink persists job progress via a ProgressWriter. Only the newest
// snapshot per job in a batch is written, so a burst of per-profile events
// costs one UPDATE.
type StoreSink struct {
	repo   ProgressWriter
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo ProgressWriter, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume collapses progress snapshots per job and forwards them to the
// repository. Terminal events are skipped; the orchestrator finalizes jobs
// synchronously and the repository ignores updates to finished jobs.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	latest := make(map[string]snapshot)
	order := make([]string, 0, 1)

	for _, evt := range batch {
		if evt.Stage != progress.StageProgress && evt.Stage != progress.StageProfile {
			continue
		}
		prev, seen := latest[evt.JobID]
		if !seen {
			order = append(order, evt.JobID)
		}
		if seen && evt.TS.Before(prev.at) {
			continue
		}
		latest[evt.JobID] = snapshot{
			at: evt.TS,
			progress: scraper.JobProgress{
				Progress:        evt.Percent,
				ProfilesScanned: evt.Scanned,
				EmailsFound:     evt.Found,
				CurrentProfile:  evt.Current,
			},
		}
	}

	for _, jobID := range order {
		snap := latest[jobID]
		if err := s.repo.UpdateJobProgress(ctx, jobID, snap.progress); err != nil {
			return fmt.Errorf("update job progress %s: %w", jobID, err)
		}
		s.logger.Debug("job progress persisted",
			zap.String("job_id", jobID),
			zap.Int("progress", snap.progress.Progress),
			zap.Int("profiles_scanned", snap.progress.ProfilesScanned),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type snapshot struct {
	at       time.Time
	progress scraper.JobProgress
}
