// Package memory provides in-process implementations of the result store and
// blob store for development, demos, and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// ResultStore keeps projects, jobs, results, and logs in maps guarded by a
// single RWMutex. Rows are copied on the way in and out.
type ResultStore struct {
	mu       sync.RWMutex
	projects map[string]scraper.Project
	jobs     map[string]scraper.ScrapingJob
	jobOrder []string
	results  map[string][]scraper.ScrapingResult
	logs     map[string][]scraper.ScrapingLog
}

var _ scraper.ResultStore = (*ResultStore)(nil)

// NewResultStore constructs an empty ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{
		projects: make(map[string]scraper.Project),
		jobs:     make(map[string]scraper.ScrapingJob),
		results:  make(map[string][]scraper.ScrapingResult),
		logs:     make(map[string][]scraper.ScrapingLog),
	}
}

// GetProject fetches a project by ID.
func (s *ResultStore) GetProject(_ context.Context, projectID string) (scraper.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	project, ok := s.projects[projectID]
	if !ok {
		return scraper.Project{}, fmt.Errorf("project %s: %w", projectID, scraper.ErrNotFound)
	}
	return cloneProject(project), nil
}

// ListProjects returns every project ordered by creation time.
func (s *ResultStore) ListProjects(context.Context) ([]scraper.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scraper.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, cloneProject(p))
	}
	slices.SortFunc(out, func(a, b scraper.Project) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// UpsertProject inserts or replaces a project.
func (s *ResultStore) UpsertProject(_ context.Context, project scraper.Project) error {
	if project.ID == "" {
		return fmt.Errorf("upsert project: id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}
	s.projects[project.ID] = cloneProject(project)
	return nil
}

// CreateJob stores a new job.
func (s *ResultStore) CreateJob(_ context.Context, job scraper.ScrapingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	s.jobOrder = append(s.jobOrder, job.ID)
	return nil
}

// UpdateJobProgress applies a progress snapshot to a running job. Updates to
// finished jobs are ignored.
func (s *ResultStore) UpdateJobProgress(_ context.Context, jobID string, p scraper.JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, scraper.ErrNotFound)
	}
	if job.Status != scraper.JobStatusRunning {
		return nil
	}
	job.Progress = p.Progress
	job.ProfilesScanned = p.ProfilesScanned
	job.EmailsFound = p.EmailsFound
	job.CurrentProfile = p.CurrentProfile
	s.jobs[jobID] = job
	return nil
}

// FinishJob moves a running job into its terminal state. It reports false
// when the job had already left the running state.
func (s *ResultStore) FinishJob(_ context.Context, jobID string, outcome scraper.JobOutcome) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return false, fmt.Errorf("job %s: %w", jobID, scraper.ErrNotFound)
	}
	if job.Status != scraper.JobStatusRunning {
		return false, nil
	}
	job.Status = outcome.Status
	job.Progress = outcome.Progress
	job.ProfilesScanned = outcome.ProfilesScanned
	job.EmailsFound = outcome.EmailsFound
	job.CurrentProfile = ""
	job.CompletedAt = pointerTime(outcome.CompletedAt)
	s.jobs[jobID] = job
	return true, nil
}

// FailRunningJobs marks every running job of the project failed.
func (s *ResultStore) FailRunningJobs(_ context.Context, projectID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, job := range s.jobs {
		if job.ProjectID != projectID || job.Status != scraper.JobStatusRunning {
			continue
		}
		job.Status = scraper.JobStatusFailed
		job.CompletedAt = pointerTime(at)
		s.jobs[id] = job
		count++
	}
	return count, nil
}

// GetRunningJob returns the running job of a project.
func (s *ResultStore) GetRunningJob(_ context.Context, projectID string) (scraper.ScrapingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.jobOrder) - 1; i >= 0; i-- {
		job := s.jobs[s.jobOrder[i]]
		if job.ProjectID == projectID && job.Status == scraper.JobStatusRunning {
			return job, nil
		}
	}
	return scraper.ScrapingJob{}, fmt.Errorf("running job for %s: %w", projectID, scraper.ErrNotFound)
}

// ListJobs returns the jobs of a project, newest first.
func (s *ResultStore) ListJobs(_ context.Context, projectID string) ([]scraper.ScrapingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []scraper.ScrapingJob{}
	for i := len(s.jobOrder) - 1; i >= 0; i-- {
		if job := s.jobs[s.jobOrder[i]]; job.ProjectID == projectID {
			out = append(out, job)
		}
	}
	return out, nil
}

// CreateResult appends a result row.
func (s *ResultStore) CreateResult(_ context.Context, result scraper.ScrapingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.ProjectID] = append(s.results[result.ProjectID], result)
	return nil
}

// ListResults returns the filtered results of a project, newest first.
func (s *ResultStore) ListResults(
	_ context.Context,
	projectID string,
	filter scraper.ResultFilter,
) ([]scraper.ScrapingResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.results[projectID]
	search := strings.ToLower(filter.Search)
	out := []scraper.ScrapingResult{}
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		if filter.Platform != "" && r.Platform != filter.Platform {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(r.ProfileName), search) {
			continue
		}
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b scraper.ScrapingResult) int {
		return b.FoundAt.Compare(a.FoundAt)
	})
	return out, nil
}

// CreateLog appends a log row.
func (s *ResultStore) CreateLog(_ context.Context, entry scraper.ScrapingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Errors = append([]string(nil), entry.Errors...)
	s.logs[entry.ProjectID] = append(s.logs[entry.ProjectID], entry)
	return nil
}

// ListLogs returns the logs of a project, newest first.
func (s *ResultStore) ListLogs(_ context.Context, projectID string) ([]scraper.ScrapingLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.logs[projectID]
	out := make([]scraper.ScrapingLog, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		entry := rows[i]
		entry.Errors = append([]string(nil), entry.Errors...)
		out = append(out, entry)
	}
	return out, nil
}

// GetStats summarizes the results of a project.
func (s *ResultStore) GetStats(_ context.Context, projectID string) (scraper.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats scraper.Stats
	for _, r := range s.results[projectID] {
		stats.ProfilesScanned++
		if r.HasEmail() {
			stats.EmailsFound++
		}
		if r.IsAIParsed {
			stats.AIParsedCount++
		}
	}
	stats.SuccessRate = scraper.SuccessRate(stats.ProfilesScanned, stats.EmailsFound)
	return stats, nil
}

// GetDashboardStats aggregates over every project.
func (s *ResultStore) GetDashboardStats(context.Context) (scraper.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats scraper.DashboardStats
	for _, p := range s.projects {
		if p.Status == scraper.ProjectStatusActive {
			stats.ActiveProjects++
		}
	}
	for _, rows := range s.results {
		for _, r := range rows {
			stats.ProfilesScanned++
			if r.HasEmail() {
				stats.EmailsFound++
			}
		}
	}
	stats.SuccessRate = scraper.SuccessRate(stats.ProfilesScanned, stats.EmailsFound)
	return stats, nil
}

// Close implements scraper.ResultStore; it performs no action.
func (s *ResultStore) Close() error {
	return nil
}

func cloneProject(p scraper.Project) scraper.Project {
	p.Platforms = append([]string(nil), p.Platforms...)
	return p
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
