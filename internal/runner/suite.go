// internal/runner/suite.go
package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scenarist/api/schemas"
)

const defaultConcurrency = 1

// Suite runs independent scenarios concurrently. Each scenario gets its own
// session; nothing mutable is shared between them.
type Suite struct {
	runner      *Runner
	concurrency int
	logger      *zap.Logger
}

// NewSuite creates a Suite running at most concurrency scenarios at once.
func NewSuite(r *Runner, concurrency int, logger *zap.Logger) *Suite {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Suite{runner: r, concurrency: concurrency, logger: logger.Named("suite")}
}

// Run executes every scenario and returns the reports in input order.
// Invalid scenarios get an aborted report carrying the validation error, so
// the result always has one entry per input.
func (s *Suite) Run(ctx context.Context, scenarios []schemas.Scenario) []schemas.ScenarioReport {
	reports := make([]schemas.ScenarioReport, len(scenarios))

	// Scenarios are independent; a failed one never cancels the rest. The
	// group only carries cancellation of ctx itself.
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	s.logger.Info("Running scenario suite.", zap.Int("scenarios", len(scenarios)), zap.Int("concurrency", s.concurrency))
	for i, sc := range scenarios {
		i, sc := i, sc
		g.Go(func() error {
			report, err := s.runner.Run(ctx, sc)
			if err != nil && report.RunID == "" {
				s.logger.Error("Scenario rejected.", zap.String("scenario", sc.Name), zap.Error(err))
				report = schemas.ScenarioReport{
					RunID:       uuid.New().String(),
					Name:        sc.Name,
					Source:      sc.Source,
					Outcome:     schemas.OutcomeAborted,
					AbortedIn:   string(StateIdle),
					StartedAt:   time.Now(),
					Diagnostics: []schemas.Diagnostic{schemas.NewDiagnostic(schemas.LevelError, err)},
				}
			}
			reports[i] = report
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("Scenario suite interrupted.", zap.Error(err))
	}
	return reports
}
