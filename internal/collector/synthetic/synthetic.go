// Package synthetic provides a deterministic, network-free collector used for
// development, demos, and load testing of the engine.
package synthetic

import (
	"context"
	"fmt"
	"hash/fnv"
	"iter"
	"math/rand/v2"
	"strings"

	"github.com/JakeFAU/scrapeforge/internal/collector"
	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// fanout caps how many followers or commenters are simulated per target.
const fanout = 5

var defaultDomains = []string{"example.com", "mail.example.org", "studio.example.net"}

var roles = []string{"builder", "maker", "writer", "coach", "investor", "designer", "engineer"}

// Config tunes the generator.
type Config struct {
	// Domains are used to build contact addresses.
	Domains []string
}

// Constructor returns a collector.Constructor that builds synthetic collectors.
func Constructor(cfg Config) collector.Constructor {
	return func(platform string, opts collector.Options) (collector.Collector, error) {
		return New(platform, opts, cfg), nil
	}
}

// Collector generates plausible profiles for any platform name.
type Collector struct {
	platform string
	opts     collector.Options
	domains  []string
}

// New builds a Collector.
func New(platform string, opts collector.Options, cfg Config) *Collector {
	domains := cfg.Domains
	if len(domains) == 0 {
		domains = defaultDomains
	}
	return &Collector{platform: platform, opts: opts, domains: domains}
}

// Platform implements collector.Collector.
func (c *Collector) Platform() string {
	return c.platform
}

// ScrapeProfiles yields direct targets and, when enabled, their followers and
// commenters. Output depends only on the platform, keywords, and options.
func (c *Collector) ScrapeProfiles(ctx context.Context, onProgress collector.ProgressFunc) iter.Seq2[scraper.RawProfile, error] {
	return func(yield func(scraper.RawProfile, error) bool) {
		g := &generator{
			c:      c,
			rng:    rand.New(rand.NewPCG(seed(c.platform, c.opts.Keywords), 0x5eed)),
			pacer:  collector.NewPacer(c.opts.RateLimit),
			filter: collector.NewKeywordFilter(c.opts.Keywords),
			yield:  yield,
			report: onProgress,
			max:    c.opts.MaxProfiles,
		}
		g.run(ctx)
	}
}

type generator struct {
	c       *Collector
	rng     *rand.Rand
	pacer   *collector.Pacer
	filter  collector.KeywordFilter
	yield   func(scraper.RawProfile, error) bool
	report  collector.ProgressFunc
	max     int
	emitted int
}

func (g *generator) run(ctx context.Context) {
	if g.max <= 0 {
		return
	}
	for i := 0; g.emitted < g.max && i < g.max*4; i++ {
		target := g.profile(i, scraper.SourceTypeDirect, nil, "")
		if !g.emit(ctx, target) {
			return
		}
		if g.c.opts.IncludeFollowers && !g.expandFollowers(ctx, i, target) {
			return
		}
		if g.c.opts.IncludeCommenters && !g.expandCommenters(ctx, i, target) {
			return
		}
	}
}

func (g *generator) expandFollowers(ctx context.Context, i int, target scraper.RawProfile) bool {
	n := min(g.c.opts.MaxFollowersPerProfile, fanout)
	for j := 0; j < n && g.emitted < g.max; j++ {
		follower := g.profile(i*fanout+j, scraper.SourceTypeFollower, &target, "")
		if !g.emit(ctx, follower) {
			return false
		}
	}
	return true
}

func (g *generator) expandCommenters(ctx context.Context, i int, target scraper.RawProfile) bool {
	posts := min(g.c.opts.MaxPostsToScan, 2)
	perPost := min(g.c.opts.MaxCommentsPerProfile, fanout)
	for p := 0; p < posts; p++ {
		postURL := fmt.Sprintf("%s/posts/%d", target.URL, p+1)
		for k := 0; k < perPost && g.emitted < g.max; k++ {
			commenter := g.profile((i*posts+p)*fanout+k, scraper.SourceTypeCommenter, &target, postURL)
			if !g.emit(ctx, commenter) {
				return false
			}
		}
	}
	return true
}

// emit paces, filters, and yields one profile. It returns false when the
// consumer stopped or the context ended.
func (g *generator) emit(ctx context.Context, p scraper.RawProfile) bool {
	if !g.filter.ShouldInclude(p.Bio) {
		return true
	}
	if err := g.pacer.Wait(ctx); err != nil {
		g.yield(scraper.RawProfile{}, err)
		return false
	}
	g.emitted++
	g.report.Report(float64(g.emitted)*100/float64(g.max), p.Name)
	return g.yield(p, nil)
}

func (g *generator) profile(i int, kind scraper.SourceType, parent *scraper.RawProfile, postURL string) scraper.RawProfile {
	keyword := "creator"
	if kws := g.c.opts.Keywords; len(kws) > 0 {
		keyword = kws[i%len(kws)]
	}
	role := roles[g.rng.IntN(len(roles))]
	prefix := map[scraper.SourceType]string{
		scraper.SourceTypeDirect:    "",
		scraper.SourceTypeFollower:  "f_",
		scraper.SourceTypeCommenter: "c_",
	}[kind]
	name := fmt.Sprintf("%s%s_%s_%04d", prefix, slug(keyword), role, i)
	p := scraper.RawProfile{
		Name:       name,
		URL:        fmt.Sprintf("https://%s.example/%s", g.c.platform, name),
		Platform:   g.c.platform,
		SourceType: kind,
	}
	if parent != nil {
		p.SourceProfile = parent.Name
		p.SourcePostURL = postURL
	}

	mentionsKeyword := kind == scraper.SourceTypeDirect || g.rng.IntN(2) == 0
	topic := role
	if mentionsKeyword {
		topic = keyword + " and " + role
	}
	local := strings.ReplaceAll(name, "_", ".")
	domain := g.c.domains[g.rng.IntN(len(g.c.domains))]

	switch g.rng.IntN(10) {
	case 0, 1, 2:
		p.Bio = fmt.Sprintf("%s. Business inquiries: %s@%s", capitalize(topic), local, domain)
	case 3:
		p.Bio = fmt.Sprintf("%s. Write to %s at %s dot %s", capitalize(topic), local,
			strings.TrimSuffix(domain, domainTLD(domain)), strings.TrimPrefix(domainTLD(domain), "."))
	case 4:
		p.Bio = fmt.Sprintf("%s. All my links below", capitalize(topic))
		p.BioLink = fmt.Sprintf("mailto:%s@%s", local, domain)
	default:
		p.Bio = fmt.Sprintf("%s. DMs open", capitalize(topic))
	}
	return p
}

func seed(platform string, keywords []string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(platform))
	for _, kw := range keywords {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(strings.ToLower(kw)))
	}
	return h.Sum64()
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func domainTLD(domain string) string {
	if i := strings.LastIndex(domain, "."); i >= 0 {
		return domain[i:]
	}
	return ""
}
