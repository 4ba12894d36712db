package sinks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapeforge/internal/progress"
	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// TestStoreSinkCoalescesPerJob ensures only the newest snapshot per job is written.
func TestStoreSinkCoalescesPerJob(t *testing.T) {
	t.Parallel()

	repo := &fakeProgressRepo{}
	sink := NewStoreSink(repo, nil)
	now := time.Now()

	batch := []progress.Event{
		{JobID: "job-a", Stage: progress.StageRunStart, TS: now},
		{JobID: "job-a", Stage: progress.StageProgress, Platform: "reddit", Percent: 10, Scanned: 1, TS: now.Add(time.Second)},
		{JobID: "job-b", Stage: progress.StageProgress, Platform: "reddit", Percent: 5, Scanned: 1, TS: now.Add(time.Second)},
		{
			JobID:    "job-a",
			Stage:    progress.StageProfile,
			Platform: "reddit",
			Percent:  20,
			Scanned:  2,
			Found:    1,
			Current:  "ada",
			TS:       now.Add(2 * time.Second),
		},
		{JobID: "job-a", Stage: progress.StageProgress, Platform: "reddit", Percent: 15, TS: now.Add(1500 * time.Millisecond)},
		{JobID: "job-a", Stage: progress.StageRunDone, TS: now.Add(3 * time.Second)},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	calls := repo.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "job-a", calls[0].jobID)
	require.Equal(t, scraper.JobProgress{
		Progress:        20,
		ProfilesScanned: 2,
		EmailsFound:     1,
		CurrentProfile:  "ada",
	}, calls[0].progress)
	require.Equal(t, "job-b", calls[1].jobID)
	require.Equal(t, 5, calls[1].progress.Progress)
}

// TestStoreSinkIgnoresLifecycleOnlyBatches avoids writes when nothing moved.
func TestStoreSinkIgnoresLifecycleOnlyBatches(t *testing.T) {
	t.Parallel()

	repo := &fakeProgressRepo{}
	sink := NewStoreSink(repo, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "job", Stage: progress.StageRunStart, TS: time.Now()},
		{JobID: "job", Stage: progress.StageRunError, TS: time.Now(), Note: "boom"},
	}))
	require.Empty(t, repo.Calls())
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeProgressRepo{err: errors.New("db down")}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{JobID: "job", Stage: progress.StageProgress, Platform: "x", TS: time.Now()},
	})
	require.ErrorIs(t, err, repo.err)
}

type progressCall struct {
	jobID    string
	progress scraper.JobProgress
}

type fakeProgressRepo struct {
	mu    sync.Mutex
	err   error
	calls []progressCall
}

func (f *fakeProgressRepo) UpdateJobProgress(_ context.Context, jobID string, p scraper.JobProgress) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, progressCall{jobID: jobID, progress: p})
	return nil
}

func (f *fakeProgressRepo) Calls() []progressCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]progressCall(nil), f.calls...)
}
