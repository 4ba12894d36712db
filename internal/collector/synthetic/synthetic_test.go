package synthetic

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapeforge/internal/collector"
	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

func collect(t *testing.T, c collector.Collector) ([]scraper.RawProfile, []float64) {
	t.Helper()
	var out []scraper.RawProfile
	var pcts []float64
	for p, err := range c.ScrapeProfiles(context.Background(), func(pct float64, _ string) {
		pcts = append(pcts, pct)
	}) {
		require.NoError(t, err)
		out = append(out, p)
	}
	return out, pcts
}

func TestCollectorRespectsMaxProfiles(t *testing.T) {
	t.Parallel()

	c := New("instagram", collector.Options{Keywords: []string{"founder"}, MaxProfiles: 12}, Config{})
	profiles, pcts := collect(t, c)
	require.Len(t, profiles, 12)
	require.Len(t, pcts, 12)
	require.InDelta(t, 100.0, pcts[len(pcts)-1], 1e-9)
	for _, p := range profiles {
		require.Equal(t, "instagram", p.Platform)
		require.Equal(t, scraper.SourceTypeDirect, p.SourceType)
		require.Contains(t, strings.ToLower(p.Bio), "founder")
	}
}

func TestCollectorIsDeterministic(t *testing.T) {
	t.Parallel()

	opts := collector.Options{Keywords: []string{"ceo"}, MaxProfiles: 20}
	a, _ := collect(t, New("reddit", opts, Config{}))
	b, _ := collect(t, New("reddit", opts, Config{}))
	require.Equal(t, a, b)
}

func TestCollectorExpandsFollowersAndCommenters(t *testing.T) {
	t.Parallel()

	c := New("instagram", collector.Options{
		MaxProfiles:            40,
		IncludeFollowers:       true,
		IncludeCommenters:      true,
		MaxFollowersPerProfile: 2,
		MaxCommentsPerProfile:  2,
		MaxPostsToScan:         1,
	}, Config{})
	profiles, _ := collect(t, c)
	require.Len(t, profiles, 40)

	kinds := map[scraper.SourceType]int{}
	for _, p := range profiles {
		kinds[p.SourceType]++
		if p.SourceType != scraper.SourceTypeDirect {
			require.NotEmpty(t, p.SourceProfile)
		}
		if p.SourceType == scraper.SourceTypeCommenter {
			require.Contains(t, p.SourcePostURL, "/posts/")
		}
	}
	require.Positive(t, kinds[scraper.SourceTypeDirect])
	require.Positive(t, kinds[scraper.SourceTypeFollower])
	require.Positive(t, kinds[scraper.SourceTypeCommenter])
}

func TestCollectorStopsWhenConsumerBreaks(t *testing.T) {
	t.Parallel()

	c := New("twitter", collector.Options{MaxProfiles: 100}, Config{})
	seen := 0
	for range c.ScrapeProfiles(context.Background(), nil) {
		seen++
		if seen == 3 {
			break
		}
	}
	require.Equal(t, 3, seen)
}

func TestCollectorPacesVisits(t *testing.T) {
	t.Parallel()

	c := New("linkedin", collector.Options{MaxProfiles: 4, RateLimit: 20 * time.Millisecond}, Config{})
	start := time.Now()
	profiles, _ := collect(t, c)
	require.Len(t, profiles, 4)
	require.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestCollectorSurfacesCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New("linkedin", collector.Options{MaxProfiles: 4, RateLimit: time.Hour}, Config{})
	var gotErr error
	for _, err := range c.ScrapeProfiles(ctx, nil) {
		if err != nil {
			gotErr = err
		}
	}
	require.Error(t, gotErr)
}
