package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapeforge/internal/collector"
	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

var testPlatform = PlatformConfig{
	SearchURL:           "https://social.example/search?q={keyword}",
	ProfileLinkSelector: "a.profile",
	NameSelector:        "h1.name",
	BioSelector:         "p.bio",
	LinkSelector:        "a.bio-link",
	FollowBioLinks:      true,
}

func newSite() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{
		"https://social.example/search?q=founder": `<html><body>
			<a class="profile" href="/u/ada">Ada</a>
			<a class="profile" href="/u/bob">Bob</a>
			<a class="profile" href="/u/ada">Ada again</a>
			<a class="profile" href="https://social.example/u/cy">Cy</a>
			<a class="profile" href="/u/gone">Gone</a>
		</body></html>`,
		"https://social.example/u/ada": `<html><body>
			<h1 class="name"> Ada  Lovelace </h1>
			<p class="bio">Founder. Mail: ada@engine.dev</p>
		</body></html>`,
		"https://social.example/u/bob": `<html><body>
			<h1 class="name">Bob</h1>
			<p class="bio">Startup founder, links below</p>
			<a class="bio-link" href="https://links.example/bob">links</a>
		</body></html>`,
		"https://social.example/u/cy": `<html><body>
			<h1 class="name">Cy</h1>
			<p class="bio">Painter</p>
		</body></html>`,
		"https://links.example/bob": `<html><body>
			<a href="mailto:bob@startup.io">Email me</a>
		</body></html>`,
	}}
}

func TestCollectorCrawlsProfiles(t *testing.T) {
	t.Parallel()

	site := newSite()
	c, err := New("social", collector.Options{Keywords: []string{"founder"}, MaxProfiles: 10}, Config{
		Platform: testPlatform,
		Fetcher:  site,
		Retry:    collector.RetryPolicy{MaxAttempts: 1},
	})
	require.NoError(t, err)

	var profiles []scraper.RawProfile
	var labels []string
	for p, err := range c.ScrapeProfiles(context.Background(), func(_ float64, label string) {
		labels = append(labels, label)
	}) {
		require.NoError(t, err)
		profiles = append(profiles, p)
	}

	require.Len(t, profiles, 2, "painter is filtered out and missing page skipped")
	require.Equal(t, "Ada Lovelace", profiles[0].Name)
	require.Equal(t, "https://social.example/u/ada", profiles[0].URL)
	require.Empty(t, profiles[0].Email, "bio emails are left to the extractor")
	require.Equal(t, "Bob", profiles[1].Name)
	require.Equal(t, "https://links.example/bob", profiles[1].BioLink)
	require.Equal(t, "bob@startup.io", profiles[1].Email)
	require.Equal(t, scraper.EmailSourceBioLink, profiles[1].EmailSource)
	require.Equal(t, []string{"Ada Lovelace", "Bob"}, labels)
	require.Equal(t, 1, site.count("https://social.example/u/ada"))
}

func TestCollectorStopsAtMaxProfiles(t *testing.T) {
	t.Parallel()

	c, err := New("social", collector.Options{Keywords: []string{"founder"}, MaxProfiles: 1}, Config{
		Platform: testPlatform,
		Fetcher:  newSite(),
		Retry:    collector.RetryPolicy{MaxAttempts: 1},
	})
	require.NoError(t, err)
	n := 0
	for _, err := range c.ScrapeProfiles(context.Background(), nil) {
		require.NoError(t, err)
		n++
	}
	require.Equal(t, 1, n)
}

func TestCollectorSearchFailureEndsSequence(t *testing.T) {
	t.Parallel()

	c, err := New("social", collector.Options{Keywords: []string{"nobody"}, MaxProfiles: 5}, Config{
		Platform: testPlatform,
		Fetcher:  newSite(),
		Retry:    collector.RetryPolicy{MaxAttempts: 1},
	})
	require.NoError(t, err)
	var gotErr error
	for _, err := range c.ScrapeProfiles(context.Background(), nil) {
		gotErr = err
	}
	require.ErrorIs(t, gotErr, errMissing)
}

func TestRetriedVisitWaitsForRateLimit(t *testing.T) {
	t.Parallel()

	const interval = 150 * time.Millisecond
	site := newSite()
	site.failures = map[string]int{"https://social.example/u/ada": 1}
	c, err := New("social", collector.Options{Keywords: []string{"founder"}, MaxProfiles: 1, RateLimit: interval}, Config{
		Platform: PlatformConfig{
			SearchURL:           testPlatform.SearchURL,
			ProfileLinkSelector: testPlatform.ProfileLinkSelector,
			NameSelector:        testPlatform.NameSelector,
			BioSelector:         testPlatform.BioSelector,
		},
		Fetcher: site,
		Retry:   collector.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	require.NoError(t, err)

	var names []string
	for p, err := range c.ScrapeProfiles(context.Background(), nil) {
		require.NoError(t, err)
		names = append(names, p.Name)
	}
	require.Equal(t, []string{"Ada Lovelace"}, names)
	require.Equal(t, 2, site.count("https://social.example/u/ada"), "503 is retried once")

	times := site.requestTimes()
	require.Len(t, times, 3, "search, failed visit, retried visit")
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		require.GreaterOrEqual(t, gap, interval-10*time.Millisecond, "request %d came %v after the previous one", i, gap)
	}
}

func TestKeywordFilterReadsBioOnly(t *testing.T) {
	t.Parallel()

	site := &fakeFetcher{pages: map[string]string{
		"https://social.example/search?q=founder": `<a class="profile" href="/u/named">Named</a>`,
		"https://social.example/u/named": `<html><body>
			<h1 class="name">Founder Fan</h1>
			<p class="bio">Collects stamps</p>
		</body></html>`,
	}}
	c, err := New("social", collector.Options{Keywords: []string{"founder"}, MaxProfiles: 5}, Config{
		Platform: testPlatform,
		Fetcher:  site,
		Retry:    collector.RetryPolicy{MaxAttempts: 1},
	})
	require.NoError(t, err)
	n := 0
	for _, err := range c.ScrapeProfiles(context.Background(), nil) {
		require.NoError(t, err)
		n++
	}
	require.Zero(t, n, "a keyword in the display name alone does not qualify")
	require.Equal(t, 1, site.count("https://social.example/u/named"))
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New("social", collector.Options{}, Config{Fetcher: newSite()})
	require.ErrorContains(t, err, "search_url")
	_, err = New("social", collector.Options{}, Config{Platform: testPlatform})
	require.ErrorContains(t, err, "fetcher")
}

func TestParseProfileFallsBackToURLName(t *testing.T) {
	t.Parallel()

	p, err := ParseProfile(scraper.Page{
		URL:  "https://social.example/u/zed/",
		Body: []byte(`<p class="bio">hi</p><a class="bio-link">zed.example</a>`),
	}, testPlatform)
	require.NoError(t, err)
	require.Equal(t, "zed", p.Name)
	require.Equal(t, "zed.example", p.BioLink)
}

func TestFindEmailInPageUsesText(t *testing.T) {
	t.Parallel()

	got := FindEmailInPage(scraper.Page{Body: []byte(`<div>Contact: team@links.example</div>`)})
	require.Equal(t, "team@links.example", got)
}

var errMissing = errors.New("missing page")

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	hits  map[string]int
	// failures answers 503 for the first n fetches of a url.
	failures map[string]int
	times    []time.Time
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (scraper.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hits == nil {
		f.hits = map[string]int{}
	}
	f.hits[url]++
	f.times = append(f.times, time.Now())
	if f.hits[url] <= f.failures[url] {
		return scraper.Page{}, &scraper.HTTPStatusError{URL: url, Code: http.StatusServiceUnavailable}
	}
	body, ok := f.pages[url]
	if !ok {
		return scraper.Page{}, errMissing
	}
	return scraper.Page{URL: url, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[url]
}

func (f *fakeFetcher) requestTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.times...)
}
