package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapeforge/internal/progress"
	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{JobID: "job-1", TS: now, Stage: progress.StageRunStart},
		{JobID: "job-1", TS: now, Stage: progress.StageRunStart},
		{
			JobID:       "job-1",
			TS:          now.Add(time.Second),
			Stage:       progress.StageProfile,
			Platform:    "instagram",
			EmailSource: scraper.EmailSourceBio,
		},
		{JobID: "job-1", TS: now.Add(2 * time.Second), Stage: progress.StageProfile, Platform: "instagram"},
		{
			JobID:       "job-1",
			TS:          now.Add(3 * time.Second),
			Stage:       progress.StageProfile,
			Platform:    "reddit",
			EmailSource: scraper.EmailSourceAIParsed,
		},
		{JobID: "job-1", TS: now.Add(15 * time.Second), Stage: progress.StageRunDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.profilesScanned.WithLabelValues("instagram")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.profilesScanned.WithLabelValues("reddit")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.emailsFound.WithLabelValues("instagram", "bio")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.emailsFound.WithLabelValues("reddit", "ai_parsed")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runRuntime, "scrapeforge_run_runtime_seconds"))
}

// TestPrometheusSinkTracksRunningRuns keeps the gauge balanced across error exits.
func TestPrometheusSinkTracksRunningRuns(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "a", TS: now, Stage: progress.StageRunStart},
		{JobID: "b", TS: now, Stage: progress.StageRunStart},
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "a", TS: now, Stage: progress.StageRunError, Note: "store down"},
		{JobID: "a", TS: now, Stage: progress.StageRunError},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
}

// TestPrometheusSinkDuplicateRegistration surfaces registry conflicts.
func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
