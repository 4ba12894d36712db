package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

func TestResultStoreProjects(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	ctx := context.Background()
	if _, err := store.GetProject(ctx, "missing"); !errors.Is(err, scraper.ErrNotFound) {
		t.Fatalf("GetProject() error = %v, want ErrNotFound", err)
	}
	project := scraper.Project{ID: "p1", Platforms: []string{"reddit"}, Status: scraper.ProjectStatusActive}
	if err := store.UpsertProject(ctx, project); err != nil {
		t.Fatalf("UpsertProject() error = %v", err)
	}
	got, err := store.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	got.Platforms[0] = "changed"
	again, _ := store.GetProject(ctx, "p1")
	if again.Platforms[0] != "reddit" || again.CreatedAt.IsZero() {
		t.Fatalf("expected stored copy with created_at, got %+v", again)
	}
	if err := store.UpsertProject(ctx, scraper.Project{}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestResultStoreJobLifecycle(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	ctx := context.Background()
	now := time.Now().UTC()
	job := scraper.ScrapingJob{ID: "job-1", ProjectID: "p1", Platform: scraper.PlatformAll, Status: scraper.JobStatusRunning}

	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if err := store.CreateJob(ctx, job); err == nil {
		t.Fatal("expected duplicate job error")
	}
	if err := store.UpdateJobProgress(ctx, "job-1", scraper.JobProgress{Progress: 40, ProfilesScanned: 4, CurrentProfile: "ada"}); err != nil {
		t.Fatalf("UpdateJobProgress() error = %v", err)
	}
	running, err := store.GetRunningJob(ctx, "p1")
	if err != nil || running.Progress != 40 || running.CurrentProfile != "ada" {
		t.Fatalf("GetRunningJob() = %+v, %v", running, err)
	}

	ok, err := store.FinishJob(ctx, "job-1", scraper.JobOutcome{
		Status:          scraper.JobStatusCompleted,
		Progress:        100,
		ProfilesScanned: 4,
		EmailsFound:     2,
		CompletedAt:     now,
	})
	if err != nil || !ok {
		t.Fatalf("FinishJob() = %v, %v", ok, err)
	}
	ok, err = store.FinishJob(ctx, "job-1", scraper.JobOutcome{Status: scraper.JobStatusFailed, CompletedAt: now})
	if err != nil || ok {
		t.Fatalf("expected terminal job to stay put, got %v, %v", ok, err)
	}
	// Late progress must not rewrite a finished job.
	if err := store.UpdateJobProgress(ctx, "job-1", scraper.JobProgress{Progress: 10}); err != nil {
		t.Fatalf("UpdateJobProgress() error = %v", err)
	}
	jobs, _ := store.ListJobs(ctx, "p1")
	if len(jobs) != 1 || jobs[0].Status != scraper.JobStatusCompleted || jobs[0].Progress != 100 || jobs[0].CompletedAt == nil {
		t.Fatalf("unexpected final job %+v", jobs)
	}
	if _, err := store.GetRunningJob(ctx, "p1"); !errors.Is(err, scraper.ErrNotFound) {
		t.Fatalf("GetRunningJob() error = %v, want ErrNotFound", err)
	}
	if err := store.UpdateJobProgress(ctx, "nope", scraper.JobProgress{}); !errors.Is(err, scraper.ErrNotFound) {
		t.Fatalf("UpdateJobProgress() error = %v, want ErrNotFound", err)
	}
}

func TestResultStoreFailRunningJobs(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	ctx := context.Background()
	for _, job := range []scraper.ScrapingJob{
		{ID: "a", ProjectID: "p1", Status: scraper.JobStatusRunning},
		{ID: "b", ProjectID: "p1", Status: scraper.JobStatusCompleted},
		{ID: "c", ProjectID: "p2", Status: scraper.JobStatusRunning},
	} {
		if err := store.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob() error = %v", err)
		}
	}
	n, err := store.FailRunningJobs(ctx, "p1", time.Now())
	if err != nil || n != 1 {
		t.Fatalf("FailRunningJobs() = %d, %v", n, err)
	}
	if _, err := store.GetRunningJob(ctx, "p2"); err != nil {
		t.Fatalf("other project must be untouched: %v", err)
	}
}

func TestResultStoreResultsAndStats(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	ctx := context.Background()
	base := time.Now().UTC()
	rows := []scraper.ScrapingResult{
		{ID: "1", ProjectID: "p1", Platform: "instagram", ProfileName: "Ada Lovelace", Email: "ada@example.com", FoundAt: base},
		{ID: "2", ProjectID: "p1", Platform: "reddit", ProfileName: "bob", FoundAt: base.Add(time.Second)},
		{
			ID:          "3",
			ProjectID:   "p1",
			Platform:    "reddit",
			ProfileName: "LOVELY",
			Email:       "x@y.io",
			IsAIParsed:  true,
			FoundAt:     base.Add(2 * time.Second),
		},
		{ID: "4", ProjectID: "p2", Platform: "reddit", ProfileName: "other", FoundAt: base},
	}
	for _, r := range rows {
		if err := store.CreateResult(ctx, r); err != nil {
			t.Fatalf("CreateResult() error = %v", err)
		}
	}

	all, _ := store.ListResults(ctx, "p1", scraper.ResultFilter{})
	if len(all) != 3 || all[0].ID != "3" || all[2].ID != "1" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	reddit, _ := store.ListResults(ctx, "p1", scraper.ResultFilter{Platform: "reddit"})
	if len(reddit) != 2 {
		t.Fatalf("platform filter returned %d rows", len(reddit))
	}
	lov, _ := store.ListResults(ctx, "p1", scraper.ResultFilter{Search: "lov"})
	if len(lov) != 2 {
		t.Fatalf("search filter returned %d rows", len(lov))
	}
	none, _ := store.ListResults(ctx, "empty", scraper.ResultFilter{})
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", none)
	}

	stats, _ := store.GetStats(ctx, "p1")
	want := scraper.Stats{ProfilesScanned: 3, EmailsFound: 2, SuccessRate: 66.7, AIParsedCount: 1}
	if stats != want {
		t.Fatalf("GetStats() = %+v, want %+v", stats, want)
	}

	if err := store.UpsertProject(ctx, scraper.Project{ID: "p1", Status: scraper.ProjectStatusActive}); err != nil {
		t.Fatalf("UpsertProject() error = %v", err)
	}
	if err := store.UpsertProject(ctx, scraper.Project{ID: "p2", Status: scraper.ProjectStatusPaused}); err != nil {
		t.Fatalf("UpsertProject() error = %v", err)
	}
	dash, _ := store.GetDashboardStats(ctx)
	wantDash := scraper.DashboardStats{ActiveProjects: 1, ProfilesScanned: 4, EmailsFound: 2, SuccessRate: 50}
	if dash != wantDash {
		t.Fatalf("GetDashboardStats() = %+v, want %+v", dash, wantDash)
	}
}

func TestResultStoreLogsNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	ctx := context.Background()
	_ = store.CreateLog(ctx, scraper.ScrapingLog{ID: "1", ProjectID: "p1", Status: scraper.LogStatusStarted})
	_ = store.CreateLog(ctx, scraper.ScrapingLog{ID: "2", ProjectID: "p1", Status: scraper.LogStatusError, Errors: []string{"boom"}})

	logs, err := store.ListLogs(ctx, "p1")
	if err != nil || len(logs) != 2 {
		t.Fatalf("ListLogs() = %+v, %v", logs, err)
	}
	if logs[0].ID != "2" || logs[0].Errors[0] != "boom" {
		t.Fatalf("unexpected order %+v", logs)
	}
}
