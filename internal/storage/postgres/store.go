// Package postgres provides the Postgres-backed result store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxIface interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store implements scraper.ResultStore on Postgres.
type Store struct {
	pool pgxIface
}

var _ scraper.ResultStore = (*Store)(nil)

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxIface) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

const projectColumns = `id, user_id, name, COALESCE(description, ''), platforms, keywords, max_profiles,
	include_followers, include_commenters, max_followers_per_profile, max_comments_per_profile,
	max_posts_to_scan, status, created_at`

// GetProject fetches a project by ID.
func (s *Store) GetProject(ctx context.Context, projectID string) (scraper.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID)
	project, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scraper.Project{}, fmt.Errorf("project %s: %w", projectID, scraper.ErrNotFound)
	}
	if err != nil {
		return scraper.Project{}, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// ListProjects returns every project ordered by creation time.
func (s *Store) ListProjects(ctx context.Context) ([]scraper.Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := []scraper.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		out = append(out, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

// UpsertProject inserts or replaces a project.
func (s *Store) UpsertProject(ctx context.Context, p scraper.Project) error {
	if p.ID == "" {
		return fmt.Errorf("upsert project: id is required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	platforms := p.Platforms
	if platforms == nil {
		platforms = []string{}
	}
	query := `
INSERT INTO projects (
	id, user_id, name, description, platforms, keywords, max_profiles,
	include_followers, include_commenters, max_followers_per_profile,
	max_comments_per_profile, max_posts_to_scan, status, created_at
) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
	user_id = EXCLUDED.user_id,
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	platforms = EXCLUDED.platforms,
	keywords = EXCLUDED.keywords,
	max_profiles = EXCLUDED.max_profiles,
	include_followers = EXCLUDED.include_followers,
	include_commenters = EXCLUDED.include_commenters,
	max_followers_per_profile = EXCLUDED.max_followers_per_profile,
	max_comments_per_profile = EXCLUDED.max_comments_per_profile,
	max_posts_to_scan = EXCLUDED.max_posts_to_scan,
	status = EXCLUDED.status`
	_, err := s.pool.Exec(ctx, query,
		p.ID,
		p.UserID,
		p.Name,
		p.Description,
		platforms,
		p.Keywords,
		p.MaxProfiles,
		p.IncludeFollowers,
		p.IncludeCommenters,
		p.MaxFollowersPerProfile,
		p.MaxCommentsPerProfile,
		p.MaxPostsToScan,
		string(p.Status),
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

const jobColumns = `id, project_id, platform, status, progress, total_profiles, profiles_scanned,
	emails_found, COALESCE(current_profile, ''), started_at, completed_at, created_at`

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job scraper.ScrapingJob) error {
	query := `
INSERT INTO scraping_jobs (
	id, project_id, platform, status, progress, total_profiles, profiles_scanned,
	emails_found, current_profile, started_at, completed_at, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12)`
	_, err := s.pool.Exec(ctx, query,
		job.ID,
		job.ProjectID,
		job.Platform,
		string(job.Status),
		job.Progress,
		job.TotalProfiles,
		job.ProfilesScanned,
		job.EmailsFound,
		job.CurrentProfile,
		job.StartedAt,
		job.CompletedAt,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobProgress applies a progress snapshot to a running job. Updates to
// finished jobs match no rows and are ignored.
func (s *Store) UpdateJobProgress(ctx context.Context, jobID string, p scraper.JobProgress) error {
	query := `
UPDATE scraping_jobs
SET progress = $2, profiles_scanned = $3, emails_found = $4, current_profile = NULLIF($5, '')
WHERE id = $1 AND status = 'running'`
	if _, err := s.pool.Exec(ctx, query, jobID, p.Progress, p.ProfilesScanned, p.EmailsFound, p.CurrentProfile); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// FinishJob moves a running job into its terminal state. It reports false
// when no running job matched.
func (s *Store) FinishJob(ctx context.Context, jobID string, o scraper.JobOutcome) (bool, error) {
	query := `
UPDATE scraping_jobs
SET status = $2, progress = $3, profiles_scanned = $4, emails_found = $5,
	current_profile = NULL, completed_at = $6
WHERE id = $1 AND status = 'running'`
	tag, err := s.pool.Exec(ctx, query,
		jobID,
		string(o.Status),
		o.Progress,
		o.ProfilesScanned,
		o.EmailsFound,
		o.CompletedAt,
	)
	if err != nil {
		return false, fmt.Errorf("finish job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FailRunningJobs marks every running job of the project failed.
func (s *Store) FailRunningJobs(ctx context.Context, projectID string, at time.Time) (int, error) {
	query := `
UPDATE scraping_jobs
SET status = 'failed', current_profile = NULL, completed_at = $2
WHERE project_id = $1 AND status = 'running'`
	tag, err := s.pool.Exec(ctx, query, projectID, at)
	if err != nil {
		return 0, fmt.Errorf("fail running jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetRunningJob returns the running job of a project.
func (s *Store) GetRunningJob(ctx context.Context, projectID string) (scraper.ScrapingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scraping_jobs
WHERE project_id = $1 AND status = 'running'
ORDER BY created_at DESC LIMIT 1`
	job, err := scanJob(s.pool.QueryRow(ctx, query, projectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return scraper.ScrapingJob{}, fmt.Errorf("running job for %s: %w", projectID, scraper.ErrNotFound)
	}
	if err != nil {
		return scraper.ScrapingJob{}, fmt.Errorf("get running job: %w", err)
	}
	return job, nil
}

// ListJobs returns the jobs of a project, newest first.
func (s *Store) ListJobs(ctx context.Context, projectID string) ([]scraper.ScrapingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scraping_jobs WHERE project_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []scraper.ScrapingJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

// CreateResult appends a result row.
func (s *Store) CreateResult(ctx context.Context, r scraper.ScrapingResult) error {
	query := `
INSERT INTO scraping_results (
	id, project_id, platform, profile_name, profile_url, email, email_source, bio_text,
	bio_link, is_ai_parsed, source_type, source_profile, source_post_url, found_at
) VALUES (
	$1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
	NULLIF($9, ''), $10, $11, NULLIF($12, ''), NULLIF($13, ''), $14
)`
	_, err := s.pool.Exec(ctx, query,
		r.ID,
		r.ProjectID,
		r.Platform,
		r.ProfileName,
		r.ProfileURL,
		r.Email,
		string(r.EmailSource),
		r.BioText,
		r.BioLink,
		r.IsAIParsed,
		string(r.SourceType),
		r.SourceProfile,
		r.SourcePostURL,
		r.FoundAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// ListResults returns the filtered results of a project, newest first.
// Platform matches exactly; search is a case-insensitive substring of the
// profile name.
func (s *Store) ListResults(
	ctx context.Context,
	projectID string,
	filter scraper.ResultFilter,
) ([]scraper.ScrapingResult, error) {
	query := `
SELECT id, project_id, platform, profile_name, profile_url, COALESCE(email, ''),
	COALESCE(email_source, ''), COALESCE(bio_text, ''), COALESCE(bio_link, ''), is_ai_parsed,
	source_type, COALESCE(source_profile, ''), COALESCE(source_post_url, ''), found_at
FROM scraping_results
WHERE project_id = $1
	AND ($2 = '' OR platform = $2)
	AND ($3 = '' OR strpos(lower(profile_name), lower($3)) > 0)
ORDER BY found_at DESC`
	rows, err := s.pool.Query(ctx, query, projectID, filter.Platform, filter.Search)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	out := []scraper.ScrapingResult{}
	for rows.Next() {
		var (
			r                  scraper.ScrapingResult
			source, sourceType string
		)
		if err := rows.Scan(
			&r.ID,
			&r.ProjectID,
			&r.Platform,
			&r.ProfileName,
			&r.ProfileURL,
			&r.Email,
			&source,
			&r.BioText,
			&r.BioLink,
			&r.IsAIParsed,
			&sourceType,
			&r.SourceProfile,
			&r.SourcePostURL,
			&r.FoundAt,
		); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		r.EmailSource = scraper.EmailSource(source)
		r.SourceType = scraper.SourceType(sourceType)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return out, nil
}

// CreateLog appends a log row.
func (s *Store) CreateLog(ctx context.Context, entry scraper.ScrapingLog) error {
	errs := entry.Errors
	if errs == nil {
		errs = []string{}
	}
	query := `
INSERT INTO scraping_logs (
	id, project_id, platform, status, message, profiles_scanned, emails_found, errors, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, query,
		entry.ID,
		entry.ProjectID,
		entry.Platform,
		string(entry.Status),
		entry.Message,
		entry.ProfilesScanned,
		entry.EmailsFound,
		errs,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

// ListLogs returns the logs of a project, newest first.
func (s *Store) ListLogs(ctx context.Context, projectID string) ([]scraper.ScrapingLog, error) {
	query := `
SELECT id, project_id, platform, status, message, profiles_scanned, emails_found, errors, created_at
FROM scraping_logs
WHERE project_id = $1
ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	out := []scraper.ScrapingLog{}
	for rows.Next() {
		var (
			entry  scraper.ScrapingLog
			status string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.ProjectID,
			&entry.Platform,
			&status,
			&entry.Message,
			&entry.ProfilesScanned,
			&entry.EmailsFound,
			&entry.Errors,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		entry.Status = scraper.LogStatus(status)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return out, nil
}

// GetStats summarizes the results of a project.
func (s *Store) GetStats(ctx context.Context, projectID string) (scraper.Stats, error) {
	query := `
SELECT COUNT(*), COUNT(email), COUNT(*) FILTER (WHERE is_ai_parsed)
FROM scraping_results
WHERE project_id = $1`
	var stats scraper.Stats
	if err := s.pool.QueryRow(ctx, query, projectID).Scan(
		&stats.ProfilesScanned,
		&stats.EmailsFound,
		&stats.AIParsedCount,
	); err != nil {
		return scraper.Stats{}, fmt.Errorf("get stats: %w", err)
	}
	stats.SuccessRate = scraper.SuccessRate(stats.ProfilesScanned, stats.EmailsFound)
	return stats, nil
}

// GetDashboardStats aggregates over every project.
func (s *Store) GetDashboardStats(ctx context.Context) (scraper.DashboardStats, error) {
	query := `
SELECT
	(SELECT COUNT(*) FROM projects WHERE status = 'active'),
	COUNT(*),
	COUNT(email)
FROM scraping_results`
	var stats scraper.DashboardStats
	if err := s.pool.QueryRow(ctx, query).Scan(
		&stats.ActiveProjects,
		&stats.ProfilesScanned,
		&stats.EmailsFound,
	); err != nil {
		return scraper.DashboardStats{}, fmt.Errorf("get dashboard stats: %w", err)
	}
	stats.SuccessRate = scraper.SuccessRate(stats.ProfilesScanned, stats.EmailsFound)
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (scraper.Project, error) {
	var (
		p      scraper.Project
		status string
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Description,
		&p.Platforms,
		&p.Keywords,
		&p.MaxProfiles,
		&p.IncludeFollowers,
		&p.IncludeCommenters,
		&p.MaxFollowersPerProfile,
		&p.MaxCommentsPerProfile,
		&p.MaxPostsToScan,
		&status,
		&p.CreatedAt,
	)
	if err != nil {
		return scraper.Project{}, err
	}
	p.Status = scraper.ProjectStatus(status)
	return p, nil
}

func scanJob(row rowScanner) (scraper.ScrapingJob, error) {
	var (
		job    scraper.ScrapingJob
		status string
	)
	err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&job.Platform,
		&status,
		&job.Progress,
		&job.TotalProfiles,
		&job.ProfilesScanned,
		&job.EmailsFound,
		&job.CurrentProfile,
		&job.StartedAt,
		&job.CompletedAt,
		&job.CreatedAt,
	)
	if err != nil {
		return scraper.ScrapingJob{}, err
	}
	job.Status = scraper.JobStatus(status)
	return job, nil
}
