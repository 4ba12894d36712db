// Package cmd defines and implements the CLI commands for the scrapeforge executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeforge/internal/app"
	"github.com/JakeFAU/scrapeforge/internal/config"
	"github.com/JakeFAU/scrapeforge/internal/logging"
	"github.com/JakeFAU/scrapeforge/internal/orchestrator"
	"github.com/JakeFAU/scrapeforge/internal/scraper"
)

// Engine is the slice of the orchestrator the commands drive.
type Engine interface {
	Start(ctx context.Context, projectID string) (scraper.ScrapingJob, error)
	Stop(ctx context.Context, projectID string) error
	Status(ctx context.Context, projectID string) (orchestrator.Status, error)
	Stats(ctx context.Context, projectID string) (scraper.Stats, error)
	Jobs(ctx context.Context, projectID string) ([]scraper.ScrapingJob, error)
	Projects(ctx context.Context) ([]scraper.Project, error)
	Reconcile(ctx context.Context) (int, error)
	Wait(ctx context.Context) error
}

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	GetLogger() *zap.Logger
	GetStore() scraper.ResultStore
	Engine() Engine
	Handler() http.Handler
	Close(ctx context.Context) error
}

type appAdapter struct {
	*app.App
}

func (a appAdapter) Engine() Engine {
	return a.GetOrchestrator()
}

// newApp is the application factory. It's a variable so tests can swap in a fake.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return appAdapter{a}, nil
}

type appKeyType string

const appKey appKeyType = "app"

// cliState is what PersistentPreRunE builds for the subcommands.
type cliState struct {
	cfg    config.Config
	app    App
	logger *zap.Logger
}

func stateFrom(ctx context.Context) (*cliState, error) {
	st, ok := ctx.Value(appKey).(*cliState)
	if !ok || st == nil || st.app == nil {
		return nil, errors.New("application not initialized")
	}
	return st, nil
}

// newRootCmd creates the root command. The returned state is populated once a
// subcommand's pre-run hook has built the application.
func newRootCmd() (*cobra.Command, *cliState) {
	var cfgFile string
	st := &cliState{}

	cmd := &cobra.Command{
		Use:   "scrapeforge",
		Short: "Discovers contact emails from public social media profiles.",
		Long: `scrapeforge runs scraping projects across social platforms, extracts
contact emails from profile bios and linked pages, and serves progress,
results, and exports over an HTTP API.`,
		SilenceUsage: true,

		// Builds the application once per invocation and hands it to the subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			st.cfg, st.app, st.logger = cfg, appInstance, logger
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, st))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newProjectsCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd, st
}

// execute runs the CLI with args and always releases the application, even
// when the subcommand fails.
func execute(ctx context.Context, args []string, out io.Writer) error {
	root, st := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	runErr := root.ExecuteContext(ctx)

	if st.app != nil {
		timeout := time.Duration(st.cfg.Server.ShutdownTimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := st.app.Close(closeCtx); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("close application: %w", err))
		}
		_ = st.logger.Sync()
	}
	return runErr
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdout); err != nil {
		zap.L().Error("Command execution failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
