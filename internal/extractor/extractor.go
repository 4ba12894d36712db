// Package extractor resolves at most one contact email per profile using a
// deterministic pattern pass with an optional classifier fallback.
package extractor

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// AcceptanceThreshold is the confidence a classifier answer must exceed.
const AcceptanceThreshold = 0.7

const defaultClassifyTimeout = 15 * time.Second

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Classification is a probabilistic email guess. Confidence is in [0,1].
type Classification struct {
	Email      string
	Confidence float64
}

// Accepted reports whether the guess clears the acceptance threshold.
func (c Classification) Accepted() bool {
	return c.Email != "" && c.Confidence > AcceptanceThreshold
}

// Classifier guesses an email hidden in free text.
type Classifier interface {
	ClassifyEmail(ctx context.Context, text string) (Classification, error)
}

// Candidate is a resolved email and where it came from.
type Candidate struct {
	Email    string
	Source   scraper.EmailSource
	AIParsed bool
}

// FindEmail returns the first email-shaped token in text, or "".
func FindEmail(text string) string {
	if !strings.Contains(text, "@") {
		return ""
	}
	return emailPattern.FindString(text)
}

// Deterministic scans the bio first and then the link-in-bio text.
func Deterministic(bio, linkText string) (Candidate, bool) {
	if email := FindEmail(bio); email != "" {
		return Candidate{Email: email, Source: scraper.EmailSourceBio}, true
	}
	if email := FindEmail(linkText); email != "" {
		return Candidate{Email: email, Source: scraper.EmailSourceBioLink}, true
	}
	return Candidate{}, false
}

// Config controls the classifier fallback.
type Config struct {
	// Timeout bounds a single classifier call (default 15s).
	Timeout time.Duration
	Logger  *zap.Logger
}

// Extractor applies the two-stage policy to raw profiles.
type Extractor struct {
	classifier Classifier
	timeout    time.Duration
	logger     *zap.Logger
}

// New builds an Extractor. classifier may be nil, which disables the fallback.
func New(classifier Classifier, cfg Config) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultClassifyTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{classifier: classifier, timeout: cfg.Timeout, logger: logger}
}

// Resolve returns the email for profile. Collector supplied emails win, then
// the pattern pass, then the classifier when useAI is set. Classifier errors
// and timeouts count as "no candidate".
func (e *Extractor) Resolve(ctx context.Context, profile scraper.RawProfile, useAI bool) (Candidate, bool) {
	if profile.Email != "" {
		source := profile.EmailSource
		if source == "" {
			source = scraper.EmailSourceBio
		}
		return Candidate{
			Email:    profile.Email,
			Source:   source,
			AIParsed: source == scraper.EmailSourceAIParsed,
		}, true
	}
	if c, ok := Deterministic(profile.Bio, profile.BioLink); ok {
		return c, true
	}
	if !useAI || e.classifier == nil {
		return Candidate{}, false
	}
	text := strings.TrimSpace(strings.Join([]string{profile.Bio, profile.BioLink}, "\n"))
	if text == "" {
		return Candidate{}, false
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	guess, err := e.classifier.ClassifyEmail(callCtx, text)
	if err != nil {
		e.logger.Debug("email classification failed",
			zap.String("profile", profile.Name),
			zap.Error(err),
		)
		return Candidate{}, false
	}
	if !guess.Accepted() {
		return Candidate{}, false
	}
	return Candidate{Email: guess.Email, Source: scraper.EmailSourceAIParsed, AIParsed: true}, true
}
