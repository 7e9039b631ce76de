// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/assertions"
	"github.com/xkilldash9x/scenarist/internal/browser"
	"github.com/xkilldash9x/scenarist/internal/config"
	"github.com/xkilldash9x/scenarist/internal/frames"
	"github.com/xkilldash9x/scenarist/internal/observability"
	"github.com/xkilldash9x/scenarist/internal/reporting"
	"github.com/xkilldash9x/scenarist/internal/runner"
	"github.com/xkilldash9x/scenarist/internal/scenario"
	"github.com/xkilldash9x/scenarist/internal/session"
	"github.com/xkilldash9x/scenarist/internal/steps"
	"github.com/xkilldash9x/scenarist/internal/store"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [files or directories...]",
		Short: "Run scenarios and write a report",
		Long: `Run loads every scenario from the given YAML files (directories are
searched for *.yaml and *.yml), runs them against a real browser and writes
one report. The exit code is 1 when any scenario did not pass.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("store-dsn") {
				cfg.Store.Enabled = true
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Enabled = true
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			scenarios, err := scenario.LoadAll(args)
			if err != nil {
				return fmt.Errorf("failed to load scenarios: %w", err)
			}

			reports, err := runScenarios(ctx, cmd, cfg, scenarios, logger)
			if err != nil {
				return err
			}

			summary := reporting.Summarize(reports)
			logger.Info("Scenario run complete.",
				zap.Int("total", summary.Total),
				zap.Int("passed", summary.Passed),
				zap.Int("failed", summary.Failed),
				zap.Int("aborted", summary.Aborted),
				zap.Duration("duration", summary.Duration))
			if !summary.OK() {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	runCmd.Flags().StringP("format", "f", "text", "Report format: text, json or junit. (Overrides config/env)")
	runCmd.Flags().StringP("output", "o", "", "Report file path. Defaults to stdout. (Overrides config/env)")
	runCmd.Flags().IntP("concurrency", "j", 1, "Scenarios to run at once. (Overrides config/env)")
	runCmd.Flags().Bool("headless", true, "Run the browser without a window. (Overrides config/env)")
	runCmd.Flags().Duration("settle-delay", 3*time.Second, "Pause before each interaction. (Overrides config/env)")
	runCmd.Flags().String("store-dsn", "", "PostgreSQL DSN; enables report persistence.")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address during the run.")

	overrides(runCmd, "format", "report.format")
	overrides(runCmd, "output", "report.output")
	overrides(runCmd, "concurrency", "runner.concurrency")
	overrides(runCmd, "headless", "browser.headless")
	overrides(runCmd, "settle-delay", "steps.settle_delay")
	overrides(runCmd, "store-dsn", "store.dsn")
	overrides(runCmd, "metrics-addr", "metrics.addr")
	return runCmd
}

// runScenarios wires the engine from cfg, runs the suite and writes every
// report. Report writing and persistence failures are returned; scenario
// failures are not errors.
func runScenarios(ctx context.Context, cmd *cobra.Command, cfg *config.Config, scenarios []schemas.Scenario, logger *zap.Logger) (reports []schemas.ScenarioReport, err error) {
	components, err := newRunComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Shutdown()

	reporter, err := newReporter(cmd, cfg.Report)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if closeErr := reporter.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close reporter: %w", closeErr)
		}
	}()

	suite := runner.NewSuite(components.Runner, cfg.Runner.Concurrency, logger)
	reports = suite.Run(ctx, scenarios)

	var writeErrs []error
	for _, report := range reports {
		if err := reporter.Write(report); err != nil {
			writeErrs = append(writeErrs, err)
		}
		if components.Store != nil {
			// A database outage must not hide the run's results.
			if err := components.Store.SaveReport(context.WithoutCancel(ctx), report); err != nil {
				logger.Error("Failed to persist scenario report.", zap.String("run_id", report.RunID), zap.Error(err))
			}
		}
	}
	if err := errors.Join(writeErrs...); err != nil {
		return reports, fmt.Errorf("failed to write report: %w", err)
	}
	return reports, nil
}

// runComponents holds the engine and its optional sinks.
type runComponents struct {
	Runner  *runner.Runner
	Store   *store.Store
	Metrics *observability.Metrics

	closeStore  func()
	stopMetrics context.CancelFunc
	metricsDone chan error
	logger      *zap.Logger
}

// Shutdown stops the metrics endpoint and closes the database pool.
func (rc *runComponents) Shutdown() {
	if rc.stopMetrics != nil {
		rc.stopMetrics()
		if err := <-rc.metricsDone; err != nil && !errors.Is(err, http.ErrServerClosed) {
			rc.logger.Warn("Metrics endpoint stopped with an error.", zap.Error(err))
		}
	}
	if rc.closeStore != nil {
		rc.closeStore()
	}
}

// newRunComponents handles dependency injection.
func newRunComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runComponents, error) {
	rc := &runComponents{logger: logger}

	waitUntil, err := browser.ParseWaitUntil(cfg.Navigation.WaitUntil)
	if err != nil {
		return nil, err
	}

	launch := browser.LaunchOptions{
		Headless:     cfg.Browser.Headless,
		Args:         cfg.Browser.Args,
		WindowWidth:  cfg.Browser.WindowWidth,
		WindowHeight: cfg.Browser.WindowHeight,
		NoSandbox:    cfg.Browser.NoSandbox,
		ExecPath:     cfg.Browser.ExecPath,
		UserDataDir:  cfg.Browser.UserDataDir,
	}
	guard := session.NewGuard(newAutomation(logger, cfg.Browser), launch, cfg.Session.ReleaseTimeout, logger)
	sync := frames.New(cfg.Frames.RediscoveryRounds, logger)
	executor := steps.NewExecutor(steps.Config{
		SettleDelay:       cfg.Steps.SettleDelay,
		NavigationTimeout: cfg.Navigation.Timeout,
		ClickTimeout:      cfg.Steps.ClickTimeout,
		FillTimeout:       cfg.Steps.FillTimeout,
		WaitUntil:         waitUntil,
	}, logger)
	engine := assertions.New(cfg.Assertions.Timeout, cfg.Assertions.PollInterval, logger)

	opts := []runner.Option{runner.WithFrameTimeout(cfg.Frames.Timeout)}

	if cfg.Metrics.Enabled {
		rc.Metrics = observability.NewMetrics()
		opts = append(opts, runner.WithRecorder(rc.Metrics))

		metricsCtx, cancel := context.WithCancel(ctx)
		rc.stopMetrics = cancel
		rc.metricsDone = make(chan error, 1)
		go func() {
			rc.metricsDone <- rc.Metrics.Serve(metricsCtx, cfg.Metrics.Addr, logger)
		}()
	}

	if cfg.Store.Enabled {
		s, closeFn, err := store.Open(ctx, cfg.Store.DSN, logger)
		if err != nil {
			rc.Shutdown()
			return nil, fmt.Errorf("failed to initialize database store: %w", err)
		}
		rc.Store, rc.closeStore = s, closeFn
		if err := s.EnsureSchema(ctx); err != nil {
			rc.Shutdown()
			return nil, err
		}
	}

	r, err := runner.New(guard, sync, executor, engine, logger, opts...)
	if err != nil {
		rc.Shutdown()
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	rc.Runner = r
	return rc, nil
}

// newReporter writes to the command's output stream unless a file is configured.
func newReporter(cmd *cobra.Command, cfg config.ReportConfig) (reporting.Reporter, error) {
	if cfg.Output == "" || cfg.Output == "stdout" {
		return reporting.NewWithWriter(cfg.Format, nopWriteCloser{cmd.OutOrStdout()}, Version)
	}
	return reporting.New(cfg.Format, cfg.Output, Version)
}
