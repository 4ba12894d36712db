package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageProgress Stage = "RUN_PROGRESS"
	StageProfile  Stage = "PROFILE"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
)

// Event captures a single step of a run.
type Event struct {
	// JobID is the scraping job the event belongs to.
	JobID string
	// ProjectID scopes the event to a project.
	ProjectID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Platform is set for progress and profile events.
	Platform string
	// Percent is the overall job progress in [0,100].
	Percent int
	// Current labels the profile being processed.
	Current string
	// Scanned and Found are cumulative job counters at emit time.
	Scanned int
	Found   int
	// EmailSource is set on profile events that resolved an email.
	EmailSource scraper.EmailSource
	// Dur is the run wall time on RUN_DONE and RUN_ERROR.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageProgress, StageProfile:
		if e.Platform == "" {
			return fmt.Errorf("%s requires platform", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Percent < 0 || e.Percent > 100 {
		return fmt.Errorf("percent %d out of range", e.Percent)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
