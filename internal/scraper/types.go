// Package scraper defines the domain types and collaborator interfaces shared
// by the orchestration engine, collectors, stores, and HTTP API.
package scraper

import "time"

// ProjectStatus is the lifecycle flag a project carries. The engine only reads it.
type ProjectStatus string

// Project status values.
const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusPaused    ProjectStatus = "paused"
	ProjectStatusCompleted ProjectStatus = "completed"
)

// JobStatus represents the lifecycle state of a scraping job.
type JobStatus string

// Job status values persisted in the result store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// LogStatus labels a per-platform log entry.
type LogStatus string

// Log status values.
const (
	LogStatusStarted   LogStatus = "started"
	LogStatusCompleted LogStatus = "completed"
	LogStatusError     LogStatus = "error"
)

// EmailSource records which extraction pass produced an email.
type EmailSource string

// Email source values.
const (
	EmailSourceBio      EmailSource = "bio"
	EmailSourceBioLink  EmailSource = "bio_link"
	EmailSourceAIParsed EmailSource = "ai_parsed"
)

// SourceType describes how a profile was discovered.
type SourceType string

// Discovery provenance values.
const (
	SourceTypeDirect    SourceType = "direct"
	SourceTypeFollower  SourceType = "follower"
	SourceTypeCommenter SourceType = "commenter"
)

// PlatformAll is the platform label of a job that spans every project platform.
const PlatformAll = "all"

// Project is a user-defined scraping target. The engine treats it as read-only.
type Project struct {
	ID                     string        `json:"id" mapstructure:"id"`
	UserID                 string        `json:"user_id" mapstructure:"user_id"`
	Name                   string        `json:"name" mapstructure:"name"`
	Description            string        `json:"description,omitempty" mapstructure:"description"`
	Platforms              []string      `json:"platforms" mapstructure:"platforms"`
	Keywords               string        `json:"keywords" mapstructure:"keywords"`
	MaxProfiles            int           `json:"max_profiles" mapstructure:"max_profiles"`
	IncludeFollowers       bool          `json:"include_followers" mapstructure:"include_followers"`
	IncludeCommenters      bool          `json:"include_commenters" mapstructure:"include_commenters"`
	MaxFollowersPerProfile int           `json:"max_followers_per_profile" mapstructure:"max_followers_per_profile"`
	MaxCommentsPerProfile  int           `json:"max_comments_per_profile" mapstructure:"max_comments_per_profile"`
	MaxPostsToScan         int           `json:"max_posts_to_scan" mapstructure:"max_posts_to_scan"`
	Status                 ProjectStatus `json:"status" mapstructure:"status"`
	CreatedAt              time.Time     `json:"created_at" mapstructure:"-"`
}

// ScrapingJob tracks one run of a project.
type ScrapingJob struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	Platform        string     `json:"platform"`
	Status          JobStatus  `json:"status"`
	Progress        int        `json:"progress"`
	TotalProfiles   int        `json:"total_profiles"`
	ProfilesScanned int        `json:"profiles_scanned"`
	EmailsFound     int        `json:"emails_found"`
	CurrentProfile  string     `json:"current_profile,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// JobProgress is a partial update applied to a running job.
type JobProgress struct {
	Progress        int
	ProfilesScanned int
	EmailsFound     int
	CurrentProfile  string
}

// JobOutcome finalizes a job.
type JobOutcome struct {
	Status          JobStatus
	Progress        int
	ProfilesScanned int
	EmailsFound     int
	CompletedAt     time.Time
}

// ScrapingResult is one visited profile. Results are append-only.
type ScrapingResult struct {
	ID            string      `json:"id"`
	ProjectID     string      `json:"project_id"`
	Platform      string      `json:"platform"`
	ProfileName   string      `json:"profile_name"`
	ProfileURL    string      `json:"profile_url"`
	Email         string      `json:"email,omitempty"`
	EmailSource   EmailSource `json:"email_source,omitempty"`
	BioText       string      `json:"bio_text,omitempty"`
	BioLink       string      `json:"bio_link,omitempty"`
	IsAIParsed    bool        `json:"is_ai_parsed"`
	SourceType    SourceType  `json:"source_type"`
	SourceProfile string      `json:"source_profile,omitempty"`
	SourcePostURL string      `json:"source_post_url,omitempty"`
	FoundAt       time.Time   `json:"found_at"`
}

// HasEmail reports whether an email was resolved for the profile.
func (r ScrapingResult) HasEmail() bool {
	return r.Email != ""
}

// ScrapingLog is an append-only per-platform audit entry.
type ScrapingLog struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Platform        string    `json:"platform"`
	Status          LogStatus `json:"status"`
	Message         string    `json:"message"`
	ProfilesScanned int       `json:"profiles_scanned"`
	EmailsFound     int       `json:"emails_found"`
	Errors          []string  `json:"errors,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// RawProfile is what a collector yields before extraction.
type RawProfile struct {
	Name          string
	URL           string
	Platform      string
	Bio           string
	BioLink       string
	Email         string
	EmailSource   EmailSource
	SourceType    SourceType
	SourceProfile string
	SourcePostURL string
}

// ResultFilter narrows a result listing. Empty fields match everything.
type ResultFilter struct {
	Platform string
	Search   string
}

// Stats summarizes the results of a project.
type Stats struct {
	ProfilesScanned int     `json:"profiles_scanned"`
	EmailsFound     int     `json:"emails_found"`
	SuccessRate     float64 `json:"success_rate"`
	AIParsedCount   int     `json:"ai_parsed_count"`
}

// DashboardStats aggregates across all projects.
type DashboardStats struct {
	ActiveProjects  int     `json:"active_projects"`
	ProfilesScanned int     `json:"profiles_scanned"`
	EmailsFound     int     `json:"emails_found"`
	SuccessRate     float64 `json:"success_rate"`
}

// Page is a fetched document handed to profile parsers.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Headless   bool
}
