// Package collector defines the per-platform profile source contract and the
// name to constructor table the orchestrator resolves platforms through.
package collector

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// ProgressFunc receives the collector's own completion percentage in [0,100]
// and a label for the profile being processed.
type ProgressFunc func(percent float64, current string)

// Report calls f when it is set.
func (f ProgressFunc) Report(percent float64, current string) {
	if f != nil {
		f(percent, current)
	}
}

// Collector produces profiles for one platform. Each ScrapeProfiles call
// starts a fresh session and yields at most Options.MaxProfiles profiles. A
// non-nil error ends the sequence.
type Collector interface {
	Platform() string
	ScrapeProfiles(ctx context.Context, onProgress ProgressFunc) iter.Seq2[scraper.RawProfile, error]
}

// Options are the per-run limits handed to a constructor.
type Options struct {
	Keywords               []string
	MaxProfiles            int
	RateLimit              time.Duration
	IncludeFollowers       bool
	IncludeCommenters      bool
	MaxFollowersPerProfile int
	MaxCommentsPerProfile  int
	MaxPostsToScan         int
}

// Defaults supplies fallbacks for unset project limits.
type Defaults struct {
	MaxProfiles            int
	RateLimit              time.Duration
	MaxFollowersPerProfile int
	MaxCommentsPerProfile  int
	MaxPostsToScan         int
}

// OptionsFor derives collector options from a project.
func OptionsFor(project scraper.Project, keywords []string, d Defaults) Options {
	return Options{
		Keywords:               keywords,
		MaxProfiles:            positiveOr(project.MaxProfiles, d.MaxProfiles),
		RateLimit:              d.RateLimit,
		IncludeFollowers:       project.IncludeFollowers,
		IncludeCommenters:      project.IncludeCommenters,
		MaxFollowersPerProfile: positiveOr(project.MaxFollowersPerProfile, d.MaxFollowersPerProfile),
		MaxCommentsPerProfile:  positiveOr(project.MaxCommentsPerProfile, d.MaxCommentsPerProfile),
		MaxPostsToScan:         positiveOr(project.MaxPostsToScan, d.MaxPostsToScan),
	}
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Constructor builds a collector for a platform.
type Constructor func(platform string, opts Options) (Collector, error)

// Registry maps platform names to constructors. Names are case-insensitive.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register binds platform to ctor, replacing any previous binding.
func (r *Registry) Register(platform string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[normalize(platform)] = ctor
}

// Lookup reports whether a constructor exists for platform.
func (r *Registry) Lookup(platform string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.constructors[normalize(platform)]
	return ctor, ok
}

// New builds a collector. ok is false for unknown platforms.
func (r *Registry) New(platform string, opts Options) (c Collector, ok bool, err error) {
	ctor, ok := r.Lookup(platform)
	if !ok {
		return nil, false, nil
	}
	c, err = ctor(normalize(platform), opts)
	if err != nil {
		return nil, true, fmt.Errorf("build %s collector: %w", platform, err)
	}
	return c, true, nil
}

// Platforms lists registered platform names in sorted order.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalize(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}
