// Package web implements a configuration-driven profile collector: a search
// page per keyword yields profile links, each profile page yields a name, bio,
// and link-in-bio, and the link can optionally be followed to find an email.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeforge/internal/collector"
	"github.com/JakeFAU/scrapeforge/internal/extractor"
	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// KeywordPlaceholder is replaced with the query-escaped keyword in SearchURL.
const KeywordPlaceholder = "{keyword}"

// PlatformConfig describes where profiles live and how to read them.
type PlatformConfig struct {
	SearchURL           string `mapstructure:"search_url"`
	ProfileLinkSelector string `mapstructure:"profile_link_selector"`
	NameSelector        string `mapstructure:"name_selector"`
	BioSelector         string `mapstructure:"bio_selector"`
	LinkSelector        string `mapstructure:"link_selector"`
	FollowBioLinks      bool   `mapstructure:"follow_bio_links"`
	Headless            bool   `mapstructure:"headless"`
}

// Validate checks the fields the collector cannot work without.
func (c PlatformConfig) Validate() error {
	if c.SearchURL == "" {
		return errors.New("search_url is required")
	}
	if _, err := url.Parse(strings.ReplaceAll(c.SearchURL, KeywordPlaceholder, "x")); err != nil {
		return fmt.Errorf("search_url: %w", err)
	}
	if c.ProfileLinkSelector == "" {
		return errors.New("profile_link_selector is required")
	}
	if c.BioSelector == "" {
		return errors.New("bio_selector is required")
	}
	return nil
}

// Config wires a platform description to page fetchers.
type Config struct {
	Platform PlatformConfig
	// Fetcher loads search and profile pages.
	Fetcher scraper.Fetcher
	// LinkFetcher loads link-in-bio pages; defaults to Fetcher.
	LinkFetcher scraper.Fetcher
	Retry       collector.RetryPolicy
	Logger      *zap.Logger
}

// Constructor returns a collector.Constructor bound to cfg.
func Constructor(cfg Config) collector.Constructor {
	return func(platform string, opts collector.Options) (collector.Collector, error) {
		return New(platform, opts, cfg)
	}
}

// Collector crawls one platform using CSS selectors.
type Collector struct {
	platform string
	opts     collector.Options
	cfg      Config
	logger   *zap.Logger
}

// New validates cfg and builds a Collector.
func New(platform string, opts collector.Options, cfg Config) (*Collector, error) {
	if err := cfg.Platform.Validate(); err != nil {
		return nil, fmt.Errorf("platform %s: %w", platform, err)
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.LinkFetcher == nil {
		cfg.LinkFetcher = cfg.Fetcher
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = collector.DefaultRetryPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		platform: platform,
		opts:     opts,
		cfg:      cfg,
		logger:   logger.With(zap.String("platform", platform)),
	}, nil
}

// Platform implements collector.Collector.
func (c *Collector) Platform() string {
	return c.platform
}

// ScrapeProfiles implements collector.Collector. A failed search page ends
// the sequence with an error; a failed profile page is skipped.
func (c *Collector) ScrapeProfiles(ctx context.Context, onProgress collector.ProgressFunc) iter.Seq2[scraper.RawProfile, error] {
	return func(yield func(scraper.RawProfile, error) bool) {
		s := &session{
			c:       c,
			pacer:   collector.NewPacer(c.opts.RateLimit),
			filter:  collector.NewKeywordFilter(c.opts.Keywords),
			visited: make(map[string]struct{}),
		}
		keywords := c.opts.Keywords
		if len(keywords) == 0 {
			keywords = []string{""}
		}
		for _, kw := range keywords {
			if s.emitted >= c.opts.MaxProfiles {
				return
			}
			links, err := s.search(ctx, kw)
			if err != nil {
				yield(scraper.RawProfile{}, err)
				return
			}
			for _, link := range links {
				if s.emitted >= c.opts.MaxProfiles {
					return
				}
				profile, ok, err := s.visit(ctx, link)
				if err != nil {
					yield(scraper.RawProfile{}, err)
					return
				}
				if !ok {
					continue
				}
				s.emitted++
				onProgress.Report(float64(s.emitted)*100/float64(c.opts.MaxProfiles), profile.Name)
				if !yield(profile, nil) {
					return
				}
			}
		}
	}
}

type session struct {
	c       *Collector
	pacer   *collector.Pacer
	filter  collector.KeywordFilter
	visited map[string]struct{}
	emitted int
}

// fetch loads target, waiting on the pacer before every attempt so a retry
// never lands closer than the rate limit to the previous request.
func (s *session) fetch(ctx context.Context, f scraper.Fetcher, target string) (scraper.Page, error) {
	var page scraper.Page
	err := s.c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		if err := s.pacer.Wait(ctx); err != nil {
			return err
		}
		var fetchErr error
		page, fetchErr = f.Fetch(ctx, target)
		return fetchErr
	})
	if err != nil {
		return scraper.Page{}, fmt.Errorf("fetch %s: %w", target, err)
	}
	return page, nil
}

func (s *session) search(ctx context.Context, keyword string) ([]string, error) {
	target := strings.ReplaceAll(s.c.cfg.Platform.SearchURL, KeywordPlaceholder, url.QueryEscape(keyword))
	page, err := s.fetch(ctx, s.c.cfg.Fetcher, target)
	if err != nil {
		return nil, err
	}
	links, err := ParseProfileLinks(page, s.c.cfg.Platform.ProfileLinkSelector)
	if err != nil {
		return nil, err
	}
	out := links[:0]
	for _, l := range links {
		if _, seen := s.visited[l]; seen {
			continue
		}
		s.visited[l] = struct{}{}
		out = append(out, l)
	}
	return out, nil
}

// visit loads one profile. ok is false when the profile was skipped.
func (s *session) visit(ctx context.Context, link string) (scraper.RawProfile, bool, error) {
	page, err := s.fetch(ctx, s.c.cfg.Fetcher, link)
	if err != nil {
		if ctx.Err() != nil {
			return scraper.RawProfile{}, false, err
		}
		s.c.logger.Warn("profile fetch failed", zap.String("url", link), zap.Error(err))
		return scraper.RawProfile{}, false, nil
	}
	profile, err := ParseProfile(page, s.c.cfg.Platform)
	if err != nil {
		s.c.logger.Warn("profile parse failed", zap.String("url", link), zap.Error(err))
		return scraper.RawProfile{}, false, nil
	}
	profile.Platform = s.c.platform
	profile.SourceType = scraper.SourceTypeDirect
	if !s.filter.ShouldInclude(profile.Bio) {
		return scraper.RawProfile{}, false, nil
	}
	if s.c.cfg.Platform.FollowBioLinks {
		s.followBioLink(ctx, &profile)
	}
	return profile, true, nil
}

func (s *session) followBioLink(ctx context.Context, profile *scraper.RawProfile) {
	if profile.BioLink == "" || extractor.FindEmail(profile.Bio) != "" || extractor.FindEmail(profile.BioLink) != "" {
		return
	}
	u, err := url.Parse(profile.BioLink)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}
	page, err := s.fetch(ctx, s.c.cfg.LinkFetcher, profile.BioLink)
	if err != nil {
		s.c.logger.Debug("bio link fetch failed", zap.String("url", profile.BioLink), zap.Error(err))
		return
	}
	if email := FindEmailInPage(page); email != "" {
		profile.Email = email
		profile.EmailSource = scraper.EmailSourceBioLink
	}
}

// ParseProfileLinks returns the absolute, de-duplicated hrefs matched by selector.
func ParseProfileLinks(page scraper.Page, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	base, _ := url.Parse(page.URL)
	seen := make(map[string]struct{})
	var out []string
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		abs := resolve(base, href)
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	return out, nil
}

// ParseProfile extracts the name, bio, and link-in-bio from a profile page.
func ParseProfile(page scraper.Page, cfg PlatformConfig) (scraper.RawProfile, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return scraper.RawProfile{}, fmt.Errorf("parse profile page: %w", err)
	}
	base, _ := url.Parse(page.URL)
	p := scraper.RawProfile{URL: page.URL}
	if cfg.NameSelector != "" {
		p.Name = cleanText(doc.Find(cfg.NameSelector).First().Text())
	}
	if p.Name == "" {
		p.Name = lastPathSegment(base)
	}
	p.Bio = cleanText(doc.Find(cfg.BioSelector).First().Text())
	if cfg.LinkSelector != "" {
		link := doc.Find(cfg.LinkSelector).First()
		if href, ok := link.Attr("href"); ok {
			p.BioLink = resolve(base, href)
		} else {
			p.BioLink = cleanText(link.Text())
		}
	}
	if p.Name == "" && p.Bio == "" {
		return scraper.RawProfile{}, errors.New("no profile content matched")
	}
	return p, nil
}

// FindEmailInPage looks for an email in mailto links first, then in text.
func FindEmailInPage(page scraper.Page) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return extractor.FindEmail(string(page.Body))
	}
	var found string
	doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		found = extractor.FindEmail(href)
		return found == ""
	})
	if found != "" {
		return found
	}
	return extractor.FindEmail(doc.Text())
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func lastPathSegment(u *url.URL) string {
	if u == nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parts[len(parts)-1]
}
