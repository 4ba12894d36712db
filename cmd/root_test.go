package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeforge/internal/config"
	"github.com/JakeFAU/scrapeforge/internal/orchestrator"
	"github.com/JakeFAU/scrapeforge/internal/scraper"
	"github.com/JakeFAU/scrapeforge/internal/storage/memory"
)

type fakeEngine struct {
	mu         sync.Mutex
	projects   []scraper.Project
	started    []string
	stopped    []string
	reconciled int
	startErr   error
}

func (e *fakeEngine) Start(_ context.Context, projectID string) (scraper.ScrapingJob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return scraper.ScrapingJob{}, e.startErr
	}
	e.started = append(e.started, projectID)
	return scraper.ScrapingJob{ID: "job-1", ProjectID: projectID, Status: scraper.JobStatusRunning}, nil
}

func (e *fakeEngine) Stop(_ context.Context, projectID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = append(e.stopped, projectID)
	return nil
}

func (e *fakeEngine) Status(_ context.Context, projectID string) (orchestrator.Status, error) {
	return orchestrator.Status{IsActive: projectID == "busy"}, nil
}

func (e *fakeEngine) Stats(context.Context, string) (scraper.Stats, error) {
	return scraper.Stats{ProfilesScanned: 4, EmailsFound: 2, SuccessRate: 50}, nil
}

func (e *fakeEngine) Jobs(_ context.Context, projectID string) ([]scraper.ScrapingJob, error) {
	return []scraper.ScrapingJob{{ID: "job-1", ProjectID: projectID, Status: scraper.JobStatusCompleted, Progress: 100}}, nil
}

func (e *fakeEngine) Projects(context.Context) ([]scraper.Project, error) {
	return e.projects, nil
}

func (e *fakeEngine) Reconcile(context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reconciled++
	return 1, nil
}

func (e *fakeEngine) Wait(context.Context) error { return nil }

type migratingStore struct {
	*memory.ResultStore
	migrated bool
}

func (s *migratingStore) Migrate(context.Context) error {
	s.migrated = true
	return nil
}

type fakeApp struct {
	engine *fakeEngine
	store  scraper.ResultStore
	closed int
}

func (a *fakeApp) GetLogger() *zap.Logger        { return zap.NewNop() }
func (a *fakeApp) GetStore() scraper.ResultStore { return a.store }
func (a *fakeApp) Engine() Engine                { return a.engine }
func (a *fakeApp) Close(context.Context) error   { a.closed++; return nil }
func (a *fakeApp) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func withFakeApp(t *testing.T, a *fakeApp, factoryErr error) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		if factoryErr != nil {
			return nil, factoryErr
		}
		return a, nil
	}
	t.Cleanup(func() { newApp = orig })
}

func newFakeApp() *fakeApp {
	return &fakeApp{
		engine: &fakeEngine{projects: []scraper.Project{
			{ID: "founders", Name: "Founders", Platforms: []string{"reddit", "youtube"}, Status: scraper.ProjectStatusActive},
			{ID: "busy", Name: "Busy", Platforms: []string{"tiktok"}, Status: scraper.ProjectStatusActive},
		}},
		store: memory.NewResultStore(),
	}
}

func TestProjectsCommand(t *testing.T) {
	fake := newFakeApp()
	withFakeApp(t, fake, nil)

	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"projects"}, &out))

	assert.Contains(t, out.String(), "founders")
	assert.Contains(t, out.String(), "reddit,youtube")
	assert.Regexp(t, `busy\s+Busy\s+tiktok\s+active\s+true`, out.String())
	assert.Equal(t, 1, fake.closed, "app must be closed exactly once")
}

func TestRunCommandPrintsReport(t *testing.T) {
	fake := newFakeApp()
	withFakeApp(t, fake, nil)

	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"run", "founders"}, &out))

	var report runReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.NotNil(t, report.Job)
	assert.Equal(t, scraper.JobStatusCompleted, report.Job.Status)
	assert.Equal(t, 4, report.Stats.ProfilesScanned)
	assert.Equal(t, []string{"founders"}, fake.engine.started)
	assert.Equal(t, 1, fake.closed)
}

func TestRunCommandClosesAppOnError(t *testing.T) {
	fake := newFakeApp()
	fake.engine.startErr = fmt.Errorf("project p: %w", scraper.ErrAlreadyRunning)
	withFakeApp(t, fake, nil)

	err := execute(context.Background(), []string{"run", "p"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, scraper.ErrAlreadyRunning)
	assert.Equal(t, 1, fake.closed)
}

func TestRunCommandRequiresProjectID(t *testing.T) {
	withFakeApp(t, newFakeApp(), nil)

	err := execute(context.Background(), []string{"run"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestAppFactoryError(t *testing.T) {
	withFakeApp(t, nil, errors.New("store unreachable"))

	err := execute(context.Background(), []string{"projects"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize application services")
}

func TestMissingConfigFile(t *testing.T) {
	withFakeApp(t, newFakeApp(), nil)

	path := filepath.Join(t.TempDir(), "missing.yaml")
	err := execute(context.Background(), []string{"projects", "--config", path}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestMigrateCommand(t *testing.T) {
	fake := newFakeApp()
	store := &migratingStore{ResultStore: memory.NewResultStore()}
	fake.store = store
	withFakeApp(t, fake, nil)

	require.NoError(t, execute(context.Background(), []string{"migrate"}, &bytes.Buffer{}))
	assert.True(t, store.migrated)
}

func TestMigrateCommandWithoutSchema(t *testing.T) {
	withFakeApp(t, newFakeApp(), nil)

	require.NoError(t, execute(context.Background(), []string{"migrate"}, &bytes.Buffer{}))
}

func TestServeReconcilesAndShutsDown(t *testing.T) {
	t.Parallel()

	fake := newFakeApp()
	st := &cliState{
		cfg:    config.Config{Server: config.ServerConfig{ShutdownTimeoutSeconds: 2}},
		app:    fake,
		logger: zap.NewNop(),
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, st, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
	assert.Equal(t, 1, fake.engine.reconciled)
}
