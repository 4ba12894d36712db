package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// runReport is printed when a foreground run ends.
type runReport struct {
	Job   *scraper.ScrapingJob `json:"job"`
	Stats scraper.Stats        `json:"stats"`
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <project-id>",
		Short: "Run one project in the foreground",
		Long: `Starts a scraping run for the project, waits for it to finish, and prints the
job and project stats as JSON. An interrupt stops the run cooperatively.`,
		Args: cobra.ExactArgs(1),
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	st, err := stateFrom(cmd.Context())
	if err != nil {
		return err
	}
	report, err := runProject(cmd.Context(), st, args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runProject(ctx context.Context, st *cliState, projectID string) (runReport, error) {
	engine := st.app.Engine()
	logger := st.logger.With(zap.String("project_id", projectID))

	job, err := engine.Start(ctx, projectID)
	if err != nil {
		return runReport{}, fmt.Errorf("start run: %w", err)
	}
	logger.Info("run started", zap.String("job_id", job.ID))

	if err := engine.Wait(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			return runReport{}, fmt.Errorf("wait for run: %w", err)
		}
		logger.Info("interrupt received, stopping run")
		stopCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(st.cfg.Server.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		if err := engine.Stop(stopCtx, projectID); err != nil {
			return runReport{}, fmt.Errorf("stop run: %w", err)
		}
		if err := engine.Wait(stopCtx); err != nil {
			return runReport{}, fmt.Errorf("wait for stopped run: %w", err)
		}
		ctx = stopCtx
	}

	jobs, err := engine.Jobs(ctx, projectID)
	if err != nil {
		return runReport{}, fmt.Errorf("list jobs: %w", err)
	}
	stats, err := engine.Stats(ctx, projectID)
	if err != nil {
		return runReport{}, fmt.Errorf("run stats: %w", err)
	}
	report := runReport{Job: findJob(jobs, job), Stats: stats}
	logger.Info("run finished",
		zap.String("job_id", job.ID),
		zap.Int("profiles_scanned", stats.ProfilesScanned),
		zap.Int("emails_found", stats.EmailsFound),
	)
	return report, nil
}

// findJob returns the stored copy of started, which carries the final status.
func findJob(jobs []scraper.ScrapingJob, started scraper.ScrapingJob) *scraper.ScrapingJob {
	for i := range jobs {
		if jobs[i].ID == started.ID {
			return &jobs[i]
		}
	}
	return &started
}
