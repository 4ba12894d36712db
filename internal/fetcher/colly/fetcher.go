// Package collyfetcher implements scraper.Fetcher using gocolly. It is the
// default page fetcher for the web collector: search pages, profile pages,
// and link-in-bio targets all go through it.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

const (
	defaultTimeout = 15 * time.Second
	// Profile pages and bio links are small; anything larger is truncated.
	defaultMaxBodyBytes = 4 << 20
)

// Config controls request behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
	// MaxBodyBytes caps the bytes read per page (default 4 MiB).
	MaxBodyBytes int
}

// Fetcher implements scraper.Fetcher. Each Fetch runs on a clone of one
// prepared collector so connections are pooled across profile visits.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

type hookRegistrar interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// result collects what the callbacks observed for one visit.
type result struct {
	page scraper.Page
	err  error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	base := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	)
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	base.IgnoreRobotsTxt = !cfg.RespectRobots
	base.SetRequestTimeout(cfg.Timeout)
	base.WithTransport(newTransport())
	return &Fetcher{cfg: cfg, base: base}
}

// Fetch retrieves url. Non-2xx responses come back as *scraper.HTTPStatusError
// so callers can tell a missing profile from a throttled one.
func (f *Fetcher) Fetch(ctx context.Context, url string) (scraper.Page, error) {
	res := &result{}
	c := f.base.Clone()
	f.registerHooks(c, url, time.Now(), res)

	done := make(chan error, 1)
	go func() { done <- c.Visit(url) }()

	select {
	case <-ctx.Done():
		return scraper.Page{}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
	case visitErr := <-done:
		if res.err != nil {
			return scraper.Page{}, res.err
		}
		if visitErr != nil {
			return scraper.Page{}, fmt.Errorf("fetch %s: %w", url, visitErr)
		}
		return res.page, nil
	}
}

func (f *Fetcher) registerHooks(hooks hookRegistrar, url string, start time.Time, res *result) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		res.page = scraper.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			res.err = &scraper.HTTPStatusError{URL: url, Code: r.StatusCode}
			return
		}
		res.err = fmt.Errorf("fetch %s: %w", url, err)
	})
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
}
