// Package sqlite provides an embedded, file-backed result store on
// modernc.org/sqlite for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// Store implements scraper.ResultStore on SQLite.
type Store struct {
	db *sql.DB
}

var _ scraper.ResultStore = (*Store)(nil)

// New opens (or creates) the database at path and applies the schema. Use
// ":memory:" for a throwaway database.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store.sqlite.path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping checks that the database file is usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

const projectColumns = `id, user_id, name, COALESCE(description, ''), platforms, keywords, max_profiles,
	include_followers, include_commenters, max_followers_per_profile, max_comments_per_profile,
	max_posts_to_scan, status, created_at`

// GetProject fetches a project by ID.
func (s *Store) GetProject(ctx context.Context, projectID string) (scraper.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, projectID)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return scraper.Project{}, fmt.Errorf("project %s: %w", projectID, scraper.ErrNotFound)
	}
	if err != nil {
		return scraper.Project{}, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// ListProjects returns every project ordered by creation time.
func (s *Store) ListProjects(ctx context.Context) ([]scraper.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := []scraper.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, project)
	}
	return out, rows.Err()
}

// UpsertProject inserts or replaces a project.
func (s *Store) UpsertProject(ctx context.Context, p scraper.Project) error {
	if p.ID == "" {
		return fmt.Errorf("upsert project: id is required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	platforms, err := encodeList(p.Platforms)
	if err != nil {
		return fmt.Errorf("encode platforms: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, user_id, name, description, platforms, keywords, max_profiles,
			include_followers, include_commenters, max_followers_per_profile, max_comments_per_profile,
			max_posts_to_scan, status, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			description = excluded.description,
			platforms = excluded.platforms,
			keywords = excluded.keywords,
			max_profiles = excluded.max_profiles,
			include_followers = excluded.include_followers,
			include_commenters = excluded.include_commenters,
			max_followers_per_profile = excluded.max_followers_per_profile,
			max_comments_per_profile = excluded.max_comments_per_profile,
			max_posts_to_scan = excluded.max_posts_to_scan,
			status = excluded.status
	`,
		p.ID, p.UserID, p.Name, p.Description, platforms, p.Keywords, p.MaxProfiles,
		p.IncludeFollowers, p.IncludeCommenters, p.MaxFollowersPerProfile, p.MaxCommentsPerProfile,
		p.MaxPostsToScan, string(p.Status), p.CreatedAt.UTC(),
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scraping_jobs (id, project_id, platform, status, progress, total_profiles,
			profiles_scanned, emails_found, current_profile, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?)
	`,
		job.ID, job.ProjectID, job.Platform, string(job.Status), job.Progress, job.TotalProfiles,
		job.ProfilesScanned, job.EmailsFound, job.CurrentProfile,
		nullTime(job.StartedAt), nullTime(job.CompletedAt), job.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobProgress applies a progress snapshot to a running job.
func (s *Store) UpdateJobProgress(ctx context.Context, jobID string, p scraper.JobProgress) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scraping_jobs
		SET progress = ?, profiles_scanned = ?, emails_found = ?, current_profile = NULLIF(?, '')
		WHERE id = ? AND status = 'running'
	`, p.Progress, p.ProfilesScanned, p.EmailsFound, p.CurrentProfile, jobID)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// FinishJob moves a running job into its terminal state. It reports false
// when no running job matched.
func (s *Store) FinishJob(ctx context.Context, jobID string, o scraper.JobOutcome) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scraping_jobs
		SET status = ?, progress = ?, profiles_scanned = ?, emails_found = ?,
			current_profile = NULL, completed_at = ?
		WHERE id = ? AND status = 'running'
	`, string(o.Status), o.Progress, o.ProfilesScanned, o.EmailsFound, o.CompletedAt.UTC(), jobID)
	if err != nil {
		return false, fmt.Errorf("finish job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish job rows: %w", err)
	}
	return n > 0, nil
}

// FailRunningJobs marks every running job of the project failed.
func (s *Store) FailRunningJobs(ctx context.Context, projectID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scraping_jobs
		SET status = 'failed', current_profile = NULL, completed_at = ?
		WHERE project_id = ? AND status = 'running'
	`, at.UTC(), projectID)
	if err != nil {
		return 0, fmt.Errorf("fail running jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail running jobs rows: %w", err)
	}
	return int(n), nil
}

// GetRunningJob returns the running job of a project.
func (s *Store) GetRunningJob(ctx context.Context, projectID string) (scraper.ScrapingJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scraping_jobs
		WHERE project_id = ? AND status = 'running'
		ORDER BY created_at DESC LIMIT 1`, projectID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return scraper.ScrapingJob{}, fmt.Errorf("running job for %s: %w", projectID, scraper.ErrNotFound)
	}
	if err != nil {
		return scraper.ScrapingJob{}, fmt.Errorf("get running job: %w", err)
	}
	return job, nil
}

// ListJobs returns the jobs of a project, newest first.
func (s *Store) ListJobs(ctx context.Context, projectID string) ([]scraper.ScrapingJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM scraping_jobs
		WHERE project_id = ? ORDER BY created_at DESC, rowid DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []scraper.ScrapingJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// CreateResult appends a result row.
func (s *Store) CreateResult(ctx context.Context, r scraper.ScrapingResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scraping_results (id, project_id, platform, profile_name, profile_url, email,
			email_source, bio_text, bio_link, is_ai_parsed, source_type, source_profile,
			source_post_url, found_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?,
			NULLIF(?, ''), NULLIF(?, ''), ?)
	`,
		r.ID, r.ProjectID, r.Platform, r.ProfileName, r.ProfileURL, r.Email,
		string(r.EmailSource), r.BioText, r.BioLink, r.IsAIParsed, string(r.SourceType), r.SourceProfile,
		r.SourcePostURL, r.FoundAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// ListResults returns the filtered results of a project, newest first. The
// name search is case-folded in Go because SQLite's lower() only folds ASCII.
func (s *Store) ListResults(
	ctx context.Context,
	projectID string,
	filter scraper.ResultFilter,
) ([]scraper.ScrapingResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, platform, profile_name, profile_url, COALESCE(email, ''),
			COALESCE(email_source, ''), COALESCE(bio_text, ''), COALESCE(bio_link, ''), is_ai_parsed,
			source_type, COALESCE(source_profile, ''), COALESCE(source_post_url, ''), found_at
		FROM scraping_results
		WHERE project_id = ?1
			AND (?2 = '' OR platform = ?2)
		ORDER BY found_at DESC, rowid DESC
	`, projectID, filter.Platform)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	search := strings.ToLower(filter.Search)
	out := []scraper.ScrapingResult{}
	for rows.Next() {
		var (
			r                  scraper.ScrapingResult
			source, sourceType string
		)
		if err := rows.Scan(
			&r.ID, &r.ProjectID, &r.Platform, &r.ProfileName, &r.ProfileURL, &r.Email,
			&source, &r.BioText, &r.BioLink, &r.IsAIParsed,
			&sourceType, &r.SourceProfile, &r.SourcePostURL, &r.FoundAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if search != "" && !strings.Contains(strings.ToLower(r.ProfileName), search) {
			continue
		}
		r.EmailSource = scraper.EmailSource(source)
		r.SourceType = scraper.SourceType(sourceType)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateLog appends a log row.
func (s *Store) CreateLog(ctx context.Context, entry scraper.ScrapingLog) error {
	errs, err := encodeList(entry.Errors)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scraping_logs (id, project_id, platform, status, message, profiles_scanned,
			emails_found, errors, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.ProjectID, entry.Platform, string(entry.Status), entry.Message,
		entry.ProfilesScanned, entry.EmailsFound, errs, entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

// ListLogs returns the logs of a project, newest first.
func (s *Store) ListLogs(ctx context.Context, projectID string) ([]scraper.ScrapingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, platform, status, message, profiles_scanned, emails_found, errors, created_at
		FROM scraping_logs
		WHERE project_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	out := []scraper.ScrapingLog{}
	for rows.Next() {
		var (
			entry          scraper.ScrapingLog
			status, errsJS string
		)
		if err := rows.Scan(
			&entry.ID, &entry.ProjectID, &entry.Platform, &status, &entry.Message,
			&entry.ProfilesScanned, &entry.EmailsFound, &errsJS, &entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		entry.Status = scraper.LogStatus(status)
		if entry.Errors, err = decodeList(errsJS); err != nil {
			return nil, fmt.Errorf("decode log errors: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// GetStats summarizes the results of a project.
func (s *Store) GetStats(ctx context.Context, projectID string) (scraper.Stats, error) {
	var stats scraper.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(email), COUNT(*) FILTER (WHERE is_ai_parsed)
		FROM scraping_results WHERE project_id = ?
	`, projectID).Scan(&stats.ProfilesScanned, &stats.EmailsFound, &stats.AIParsedCount)
	if err != nil {
		return scraper.Stats{}, fmt.Errorf("get stats: %w", err)
	}
	stats.SuccessRate = scraper.SuccessRate(stats.ProfilesScanned, stats.EmailsFound)
	return stats, nil
}

// GetDashboardStats aggregates over every project.
func (s *Store) GetDashboardStats(ctx context.Context) (scraper.DashboardStats, error) {
	var stats scraper.DashboardStats
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM projects WHERE status = 'active'), COUNT(*), COUNT(email)
		FROM scraping_results
	`).Scan(&stats.ActiveProjects, &stats.ProfilesScanned, &stats.EmailsFound)
	if err != nil {
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
		p                 scraper.Project
		platforms, status string
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description, &platforms, &p.Keywords, &p.MaxProfiles,
		&p.IncludeFollowers, &p.IncludeCommenters, &p.MaxFollowersPerProfile, &p.MaxCommentsPerProfile,
		&p.MaxPostsToScan, &status, &p.CreatedAt,
	)
	if err != nil {
		return scraper.Project{}, err
	}
	p.Status = scraper.ProjectStatus(status)
	if p.Platforms, err = decodeList(platforms); err != nil {
		return scraper.Project{}, fmt.Errorf("decode platforms: %w", err)
	}
	return p, nil
}

func scanJob(row rowScanner) (scraper.ScrapingJob, error) {
	var (
		job                    scraper.ScrapingJob
		status                 string
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.ProjectID, &job.Platform, &status, &job.Progress, &job.TotalProfiles,
		&job.ProfilesScanned, &job.EmailsFound, &job.CurrentProfile, &startedAt, &completedAt,
		&job.CreatedAt,
	)
	if err != nil {
		return scraper.ScrapingJob{}, err
	}
	job.Status = scraper.JobStatus(status)
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeList(raw string) ([]string, error) {
	if raw == "" || raw == "null" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
