package postgres

// Schema creates the tables behind Store. Statements are idempotent so
// `scrapeforge migrate` can run on every deploy.
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
	id                        TEXT PRIMARY KEY,
	user_id                   TEXT NOT NULL DEFAULT '',
	name                      TEXT NOT NULL,
	description               TEXT,
	platforms                 TEXT[] NOT NULL DEFAULT '{}',
	keywords                  TEXT NOT NULL DEFAULT '',
	max_profiles              INTEGER NOT NULL DEFAULT 10000,
	include_followers         BOOLEAN NOT NULL DEFAULT FALSE,
	include_commenters        BOOLEAN NOT NULL DEFAULT FALSE,
	max_followers_per_profile INTEGER NOT NULL DEFAULT 100,
	max_comments_per_profile  INTEGER NOT NULL DEFAULT 50,
	max_posts_to_scan         INTEGER NOT NULL DEFAULT 10,
	status                    TEXT NOT NULL DEFAULT 'active',
	created_at                TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scraping_jobs (
	id               TEXT PRIMARY KEY,
	project_id       TEXT NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
	platform         TEXT NOT NULL,
	status           TEXT NOT NULL,
	progress         INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	total_profiles   INTEGER NOT NULL DEFAULT 0,
	profiles_scanned INTEGER NOT NULL DEFAULT 0,
	emails_found     INTEGER NOT NULL DEFAULT 0,
	current_profile  TEXT,
	started_at       TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS scraping_jobs_one_running
	ON scraping_jobs (project_id) WHERE status = 'running';

CREATE TABLE IF NOT EXISTS scraping_results (
	id              TEXT PRIMARY KEY,
	project_id      TEXT NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
	platform        TEXT NOT NULL,
	profile_name    TEXT NOT NULL,
	profile_url     TEXT NOT NULL,
	email           TEXT,
	email_source    TEXT,
	bio_text        TEXT,
	bio_link        TEXT,
	is_ai_parsed    BOOLEAN NOT NULL DEFAULT FALSE,
	source_type     TEXT NOT NULL DEFAULT 'direct',
	source_profile  TEXT,
	source_post_url TEXT,
	found_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS scraping_results_project_found
	ON scraping_results (project_id, found_at DESC);

CREATE TABLE IF NOT EXISTS scraping_logs (
	id               TEXT PRIMARY KEY,
	project_id       TEXT NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
	platform         TEXT NOT NULL,
	status           TEXT NOT NULL,
	message          TEXT NOT NULL DEFAULT '',
	profiles_scanned INTEGER NOT NULL DEFAULT 0,
	emails_found     INTEGER NOT NULL DEFAULT 0,
	errors           TEXT[] NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS scraping_logs_project_created
	ON scraping_logs (project_id, created_at DESC);
`
