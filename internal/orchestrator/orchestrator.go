// Package orchestrator runs scraping jobs. One run per project walks the
// project's platforms in order, resolves emails for every profile a collector
// yields, and persists results, logs, and job progress.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeforge/internal/collector"
	"github.com/JakeFAU/scrapeforge/internal/extractor"
	"github.com/JakeFAU/scrapeforge/internal/progress"
	"github.com/JakeFAU/scrapeforge/internal/registry"
	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// ErrClosed is returned by Start once Shutdown has begun.
var ErrClosed = errors.New("orchestrator is shutting down")

// Config holds run-level knobs.
type Config struct {
	// AIParsing enables the classifier fallback for profiles without a
	// deterministic email.
	AIParsing bool
	// Defaults fill in project limits that are unset.
	Defaults collector.Defaults
	// SummaryTopic receives one run summary per finished run. Empty disables it.
	SummaryTopic string
}

// Deps are the collaborators of an Orchestrator. Store, Registry, Collectors,
// and Extractor are required.
type Deps struct {
	Store      scraper.ResultStore
	Registry   *registry.RunRegistry
	Collectors *collector.Registry
	Extractor  *extractor.Extractor
	Emitter    progress.Emitter
	Publisher  scraper.Publisher
	Clock      scraper.Clock
	IDs        scraper.IDGenerator
}

// Status is the live view of a project's run.
type Status struct {
	IsActive bool                 `json:"is_active"`
	Job      *scraper.ScrapingJob `json:"job"`
}

// Orchestrator starts, stops, and reports on runs.
type Orchestrator struct {
	store      scraper.ResultStore
	registry   *registry.RunRegistry
	collectors *collector.Registry
	extractor  *extractor.Extractor
	emitter    progress.Emitter
	publisher  scraper.Publisher
	clock      scraper.Clock
	ids        scraper.IDGenerator
	cfg        Config
	logger     *zap.Logger

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
}

// New wires an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("orchestrator: store is required")
	case deps.Registry == nil:
		return nil, errors.New("orchestrator: run registry is required")
	case deps.Collectors == nil:
		return nil, errors.New("orchestrator: collector registry is required")
	case deps.Extractor == nil:
		return nil, errors.New("orchestrator: extractor is required")
	case deps.Clock == nil:
		return nil, errors.New("orchestrator: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("orchestrator: id generator is required")
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:      deps.Store,
		registry:   deps.Registry,
		collectors: deps.Collectors,
		extractor:  deps.Extractor,
		emitter:    deps.Emitter,
		publisher:  deps.Publisher,
		clock:      deps.Clock,
		ids:        deps.IDs,
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
		runCtx:     runCtx,
		cancelRun:  cancel,
	}, nil
}

// Start accepts a run for the project and returns the job it created. The run
// itself continues in the background. ctx only bounds the synchronous part.
func (o *Orchestrator) Start(ctx context.Context, projectID string) (scraper.ScrapingJob, error) {
	if o.closed.Load() {
		return scraper.ScrapingJob{}, ErrClosed
	}
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return scraper.ScrapingJob{}, fmt.Errorf("load project: %w", err)
	}
	if !o.registry.Claim(project.ID) {
		return scraper.ScrapingJob{}, fmt.Errorf("project %s: %w", project.ID, scraper.ErrAlreadyRunning)
	}

	job, err := o.openJob(ctx, project.ID)
	if err != nil {
		o.registry.Release(project.ID)
		return scraper.ScrapingJob{}, err
	}

	o.wg.Add(1)
	go o.run(project, job)
	return job, nil
}

func (o *Orchestrator) openJob(ctx context.Context, projectID string) (scraper.ScrapingJob, error) {
	now := o.clock.Now()
	stale, err := o.store.FailRunningJobs(ctx, projectID, now)
	if err != nil {
		return scraper.ScrapingJob{}, &scraper.StoreFailure{Op: "fail stale jobs", Err: err}
	}
	if stale > 0 {
		o.logger.Warn("stale running jobs marked failed",
			zap.String("project_id", projectID),
			zap.Int("count", stale),
		)
	}
	id, err := o.ids.NewID()
	if err != nil {
		return scraper.ScrapingJob{}, fmt.Errorf("generate job id: %w", err)
	}
	job := scraper.ScrapingJob{
		ID:        id,
		ProjectID: projectID,
		Platform:  scraper.PlatformAll,
		Status:    scraper.JobStatusRunning,
		StartedAt: &now,
		CreatedAt: now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return scraper.ScrapingJob{}, &scraper.StoreFailure{Op: "create job", Err: err}
	}
	return job, nil
}

// Stop asks the project's run to stop and fails any running job. It is safe to
// call repeatedly, when nothing is running, and for unknown projects.
func (o *Orchestrator) Stop(ctx context.Context, projectID string) error {
	signalled := o.registry.SignalStop(projectID)
	failed, err := o.store.FailRunningJobs(ctx, projectID, o.clock.Now())
	if err != nil {
		return &scraper.StoreFailure{Op: "fail running jobs", Err: err}
	}
	o.logger.Info("stop requested",
		zap.String("project_id", projectID),
		zap.Bool("signalled", signalled),
		zap.Int("jobs_failed", failed),
	)
	return nil
}

// Status reports whether the project has a live run and its running job, if any.
func (o *Orchestrator) Status(ctx context.Context, projectID string) (Status, error) {
	if err := o.ensureProject(ctx, projectID); err != nil {
		return Status{}, err
	}
	st := Status{IsActive: o.registry.IsActive(projectID)}
	job, err := o.store.GetRunningJob(ctx, projectID)
	switch {
	case errors.Is(err, scraper.ErrNotFound):
	case err != nil:
		return Status{}, fmt.Errorf("running job: %w", err)
	default:
		st.Job = &job
	}
	return st, nil
}

// Results lists a project's results, newest first.
func (o *Orchestrator) Results(ctx context.Context, projectID string, filter scraper.ResultFilter) ([]scraper.ScrapingResult, error) {
	if err := o.ensureProject(ctx, projectID); err != nil {
		return nil, err
	}
	return o.store.ListResults(ctx, projectID, filter)
}

// Logs lists a project's log entries, newest first.
func (o *Orchestrator) Logs(ctx context.Context, projectID string) ([]scraper.ScrapingLog, error) {
	if err := o.ensureProject(ctx, projectID); err != nil {
		return nil, err
	}
	return o.store.ListLogs(ctx, projectID)
}

// Jobs lists a project's jobs, newest first.
func (o *Orchestrator) Jobs(ctx context.Context, projectID string) ([]scraper.ScrapingJob, error) {
	if err := o.ensureProject(ctx, projectID); err != nil {
		return nil, err
	}
	return o.store.ListJobs(ctx, projectID)
}

// Stats summarizes a project's results.
func (o *Orchestrator) Stats(ctx context.Context, projectID string) (scraper.Stats, error) {
	if err := o.ensureProject(ctx, projectID); err != nil {
		return scraper.Stats{}, err
	}
	return o.store.GetStats(ctx, projectID)
}

// DashboardStats aggregates across every project.
func (o *Orchestrator) DashboardStats(ctx context.Context) (scraper.DashboardStats, error) {
	return o.store.GetDashboardStats(ctx)
}

// Projects lists the known projects.
func (o *Orchestrator) Projects(ctx context.Context) ([]scraper.Project, error) {
	return o.store.ListProjects(ctx)
}

// Reconcile fails running jobs left behind by a previous process. Projects
// with a live run in this process are skipped.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	projects, err := o.store.ListProjects(ctx)
	if err != nil {
		return 0, fmt.Errorf("list projects: %w", err)
	}
	total := 0
	for _, p := range projects {
		if o.registry.IsActive(p.ID) {
			continue
		}
		n, err := o.store.FailRunningJobs(ctx, p.ID, o.clock.Now())
		if err != nil {
			return total, &scraper.StoreFailure{Op: "reconcile", Err: err}
		}
		total += n
	}
	if total > 0 {
		o.logger.Warn("orphaned running jobs marked failed", zap.Int("count", total))
	}
	return total, nil
}

// Wait blocks until every run started so far has exited or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown refuses new runs, signals every active run to stop, and waits for
// them. If ctx expires first, in-flight collector I/O is cancelled.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.closed.Store(true)
	for _, id := range o.registry.Active() {
		o.registry.SignalStop(id)
	}
	err := o.Wait(ctx)
	if err != nil {
		o.cancelRun()
		return fmt.Errorf("wait for runs: %w", err)
	}
	o.cancelRun()
	return nil
}

func (o *Orchestrator) ensureProject(ctx context.Context, projectID string) error {
	if _, err := o.store.GetProject(ctx, projectID); err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	return nil
}

// run is the body of the run goroutine.
func (o *Orchestrator) run(project scraper.Project, job scraper.ScrapingJob) {
	defer o.wg.Done()
	defer o.registry.Release(project.ID)

	r := &runState{
		o:        o,
		project:  project,
		job:      job,
		keywords: scraper.ParseKeywords(project.Keywords),
		started:  time.Now(),
		logger: o.logger.With(
			zap.String("project_id", project.ID),
			zap.String("job_id", job.ID),
		),
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("run panicked",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			r.fail(o.runCtx, fmt.Errorf("run panicked: %v", rec))
		}
	}()

	r.execute(o.runCtx)
}

type runState struct {
	o        *Orchestrator
	project  scraper.Project
	job      scraper.ScrapingJob
	keywords []string
	started  time.Time
	logger   *zap.Logger

	percent int
	scanned int
	found   int
	stopped bool
}

func (r *runState) execute(ctx context.Context) {
	o := r.o
	r.emit(progress.Event{Stage: progress.StageRunStart, Note: fmt.Sprintf("%d platforms", len(r.project.Platforms))})
	r.logger.Info("run started",
		zap.Strings("platforms", r.project.Platforms),
		zap.Strings("keywords", r.keywords),
	)

	opts := collector.OptionsFor(r.project, r.keywords, o.cfg.Defaults)
	for idx, platform := range r.project.Platforms {
		if o.registry.StopRequested(r.project.ID) {
			r.stopped = true
			break
		}
		coll, ok, err := o.collectors.New(platform, opts)
		if !ok {
			r.logger.Debug("unknown platform skipped", zap.String("platform", platform))
			continue
		}
		if lerr := r.writeLog(ctx, platform, scraper.LogStatusStarted, fmt.Sprintf("Starting %s scraping", platform), 0, 0, nil); lerr != nil {
			r.fail(ctx, lerr)
			return
		}
		if err != nil {
			if lerr := r.writeLog(ctx, platform, scraper.LogStatusError, fmt.Sprintf("Error scraping %s: %v", platform, err), 0, 0, []string{err.Error()}); lerr != nil {
				r.fail(ctx, lerr)
				return
			}
			continue
		}

		scanned, found, err := r.consume(ctx, idx, coll)
		var storeErr *scraper.StoreFailure
		switch {
		case errors.As(err, &storeErr):
			r.fail(ctx, err)
			return
		case err != nil:
			r.logger.Warn("collector failed", zap.String("platform", platform), zap.Error(err))
			if lerr := r.writeLog(ctx, platform, scraper.LogStatusError, fmt.Sprintf("Error scraping %s: %v", platform, errors.Unwrap(err)), scanned, found, []string{err.Error()}); lerr != nil {
				r.fail(ctx, lerr)
				return
			}
			continue
		}
		if err := r.writeLog(ctx, platform, scraper.LogStatusCompleted, fmt.Sprintf("Completed %s scraping", platform), scanned, found, nil); err != nil {
			r.fail(ctx, err)
			return
		}
		if r.stopped {
			break
		}
	}

	if r.stopped {
		r.finishStopped(ctx)
		return
	}
	r.percent = 100
	r.finish(ctx, scraper.JobStatusCompleted, nil)
}

// consume drains one collector. It returns the platform's counters; a
// *scraper.StoreFailure ends the run, any other error is the collector's.
func (r *runState) consume(ctx context.Context, idx int, coll collector.Collector) (scanned, found int, err error) {
	o := r.o
	platform := coll.Platform()
	onProgress := collector.ProgressFunc(func(pct float64, current string) {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Warn("progress callback panicked", zap.Any("panic", rec))
			}
		}()
		r.percent = overallPercent(idx, len(r.project.Platforms), pct)
		r.emit(progress.Event{
			Stage:    progress.StageProgress,
			Platform: platform,
			Percent:  r.percent,
			Current:  current,
			Scanned:  r.scanned,
			Found:    r.found,
		})
	})

	for profile, cerr := range coll.ScrapeProfiles(ctx, onProgress) {
		if cerr != nil {
			return scanned, found, &scraper.CollectorFailure{Platform: platform, Err: cerr}
		}
		if o.registry.StopRequested(r.project.ID) {
			r.stopped = true
			return scanned, found, nil
		}
		result, err := r.resolve(ctx, platform, profile)
		if err != nil {
			return scanned, found, err
		}
		if err := o.store.CreateResult(ctx, result); err != nil {
			return scanned, found, &scraper.StoreFailure{Op: "create result", Err: err}
		}
		scanned++
		r.scanned++
		if result.HasEmail() {
			found++
			r.found++
		}
		r.emit(progress.Event{
			Stage:       progress.StageProfile,
			Platform:    platform,
			Percent:     r.percent,
			Current:     profile.Name,
			Scanned:     r.scanned,
			Found:       r.found,
			EmailSource: result.EmailSource,
		})
	}
	return scanned, found, nil
}

func (r *runState) resolve(ctx context.Context, platform string, profile scraper.RawProfile) (scraper.ScrapingResult, error) {
	id, err := r.o.ids.NewID()
	if err != nil {
		return scraper.ScrapingResult{}, &scraper.StoreFailure{Op: "result id", Err: err}
	}
	if profile.SourceType == "" {
		profile.SourceType = scraper.SourceTypeDirect
	}
	result := scraper.ScrapingResult{
		ID:            id,
		ProjectID:     r.project.ID,
		Platform:      platform,
		ProfileName:   profile.Name,
		ProfileURL:    profile.URL,
		BioText:       profile.Bio,
		BioLink:       profile.BioLink,
		SourceType:    profile.SourceType,
		SourceProfile: profile.SourceProfile,
		SourcePostURL: profile.SourcePostURL,
		FoundAt:       r.o.clock.Now(),
	}
	if c, ok := r.o.extractor.Resolve(ctx, profile, r.o.cfg.AIParsing); ok {
		result.Email = c.Email
		result.EmailSource = c.Source
		result.IsAIParsed = c.AIParsed
	}
	return result, nil
}

func (r *runState) writeLog(ctx context.Context, platform string, status scraper.LogStatus, msg string, scanned, found int, errs []string) error {
	id, err := r.o.ids.NewID()
	if err != nil {
		return &scraper.StoreFailure{Op: "log id", Err: err}
	}
	entry := scraper.ScrapingLog{
		ID:              id,
		ProjectID:       r.project.ID,
		Platform:        platform,
		Status:          status,
		Message:         msg,
		ProfilesScanned: scanned,
		EmailsFound:     found,
		Errors:          errs,
		Timestamp:       r.o.clock.Now(),
	}
	if err := r.o.store.CreateLog(ctx, entry); err != nil {
		return &scraper.StoreFailure{Op: "create log", Err: err}
	}
	return nil
}

func (r *runState) finish(ctx context.Context, status scraper.JobStatus, runErr error) {
	at := r.o.clock.Now()
	transitioned, err := r.o.store.FinishJob(ctx, r.job.ID, scraper.JobOutcome{
		Status:          status,
		Progress:        r.percent,
		ProfilesScanned: r.scanned,
		EmailsFound:     r.found,
		CompletedAt:     at,
	})
	if err != nil {
		r.logger.Error("finish job", zap.Error(err))
		if runErr == nil {
			runErr = &scraper.StoreFailure{Op: "finish job", Err: err}
			status = scraper.JobStatusFailed
		}
	} else if !transitioned {
		r.logger.Info("job already finalized", zap.String("status", string(status)))
	}

	evt := progress.Event{Stage: progress.StageRunDone, Dur: time.Since(r.started)}
	if runErr != nil {
		evt.Stage = progress.StageRunError
		evt.Note = runErr.Error()
	}
	r.emit(evt)

	r.logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("profiles_scanned", r.scanned),
		zap.Int("emails_found", r.found),
		zap.Duration("duration", time.Since(r.started)),
	)
	r.publishSummary(ctx, status, at, runErr)
}

func (r *runState) finishStopped(ctx context.Context) {
	r.logger.Info("run stopped")
	r.finish(ctx, scraper.JobStatusFailed, errStopped)
}

func (r *runState) fail(ctx context.Context, err error) {
	r.logger.Error("run failed", zap.Error(err))
	r.finish(ctx, scraper.JobStatusFailed, err)
}

var errStopped = errors.New("stopped")

func (r *runState) emit(evt progress.Event) {
	evt.JobID = r.job.ID
	evt.ProjectID = r.project.ID
	if evt.TS.IsZero() {
		evt.TS = r.o.clock.Now()
	}
	r.o.emitter.Emit(evt)
}

// RunSummary is published once per finished run.
type RunSummary struct {
	JobID           string            `json:"job_id"`
	ProjectID       string            `json:"project_id"`
	Status          scraper.JobStatus `json:"status"`
	Stopped         bool              `json:"stopped"`
	ProfilesScanned int               `json:"profiles_scanned"`
	EmailsFound     int               `json:"emails_found"`
	SuccessRate     float64           `json:"success_rate"`
	Platforms       []string          `json:"platforms"`
	CompletedAt     string            `json:"completed_at"`
	Error           string            `json:"error,omitempty"`
}

// Attributes implements the Pub/Sub attribute hook.
func (s RunSummary) Attributes() map[string]string {
	return map[string]string{
		"project_id": s.ProjectID,
		"job_id":     s.JobID,
		"status":     string(s.Status),
	}
}

func (r *runState) publishSummary(ctx context.Context, status scraper.JobStatus, at time.Time, runErr error) {
	if r.o.publisher == nil || r.o.cfg.SummaryTopic == "" {
		return
	}
	summary := RunSummary{
		JobID:           r.job.ID,
		ProjectID:       r.project.ID,
		Status:          status,
		Stopped:         errors.Is(runErr, errStopped),
		ProfilesScanned: r.scanned,
		EmailsFound:     r.found,
		SuccessRate:     scraper.SuccessRate(r.scanned, r.found),
		Platforms:       r.project.Platforms,
		CompletedAt:     at.UTC().Format(time.RFC3339),
	}
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	msgID, err := r.o.publisher.Publish(ctx, r.o.cfg.SummaryTopic, summary)
	if err != nil {
		r.logger.Warn("publish run summary", zap.String("topic", r.o.cfg.SummaryTopic), zap.Error(err))
		return
	}
	r.logger.Debug("run summary published", zap.String("message_id", msgID))
}

// overallPercent maps a collector's own percentage onto the whole run:
// floor((idx*100 + pct) / n), clamped to [0,100].
func overallPercent(idx, n int, pct float64) int {
	if n <= 0 {
		return 0
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	v := int((float64(idx)*100 + pct) / float64(n))
	return min(max(v, 0), 100)
}
