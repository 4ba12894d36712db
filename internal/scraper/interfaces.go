package scraper

import (
	"context"
	"io"
	"time"
)

// ProjectRepository reads and seeds projects.
type ProjectRepository interface {
	GetProject(ctx context.Context, projectID string) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	UpsertProject(ctx context.Context, project Project) error
}

// JobRepository persists scraping jobs. UpdateJobProgress and FinishJob only
// touch jobs that are still running; FinishJob reports whether it transitioned.
type JobRepository interface {
	CreateJob(ctx context.Context, job ScrapingJob) error
	UpdateJobProgress(ctx context.Context, jobID string, progress JobProgress) error
	FinishJob(ctx context.Context, jobID string, outcome JobOutcome) (bool, error)
	FailRunningJobs(ctx context.Context, projectID string, at time.Time) (int, error)
	GetRunningJob(ctx context.Context, projectID string) (ScrapingJob, error)
	ListJobs(ctx context.Context, projectID string) ([]ScrapingJob, error)
}

// RecordRepository appends results and logs and answers aggregate queries.
type RecordRepository interface {
	CreateResult(ctx context.Context, result ScrapingResult) error
	ListResults(ctx context.Context, projectID string, filter ResultFilter) ([]ScrapingResult, error)
	CreateLog(ctx context.Context, entry ScrapingLog) error
	ListLogs(ctx context.Context, projectID string) ([]ScrapingLog, error)
	GetStats(ctx context.Context, projectID string) (Stats, error)
	GetDashboardStats(ctx context.Context) (DashboardStats, error)
}

// ResultStore is the durable store behind the engine.
type ResultStore interface {
	ProjectRepository
	JobRepository
	RecordRepository
	Close() error
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
