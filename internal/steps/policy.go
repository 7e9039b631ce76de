// internal/steps/policy.go
package steps

import (
	"time"

	"github.com/xkilldash9x/scenarist/api/schemas"
)

// Failure says what a failed step does to the rest of the scenario.
type Failure string

const (
	// FailureFatal stops the remaining steps and aborts the scenario.
	FailureFatal Failure = "fatal"
	// FailureRecoverable records a step failure and continues.
	FailureRecoverable Failure = "recoverable"
	// FailureNever downgrades errors to diagnostics; the step always passes.
	FailureNever Failure = "never"
)

// Policy is the per-kind execution policy.
type Policy struct {
	Failure Failure
	// Settle waits the settle delay before the step resolves its target.
	Settle bool
	// Timeout picks the step's default timeout from the executor config.
	Timeout func(Config) time.Duration
}

var policies = map[schemas.StepKind]Policy{
	schemas.StepNavigate: {Failure: FailureFatal, Timeout: func(c Config) time.Duration { return c.NavigationTimeout }},
	schemas.StepScroll:   {Failure: FailureNever, Timeout: func(c Config) time.Duration { return c.ClickTimeout }},
	schemas.StepSleep:    {Failure: FailureNever, Timeout: func(Config) time.Duration { return 0 }},
	schemas.StepClick:    {Failure: FailureRecoverable, Settle: true, Timeout: func(c Config) time.Duration { return c.ClickTimeout }},
	schemas.StepFill:     {Failure: FailureRecoverable, Settle: true, Timeout: func(c Config) time.Duration { return c.FillTimeout }},
}

// PolicyFor returns the policy of kind. Unknown kinds are fatal.
func PolicyFor(kind schemas.StepKind) Policy {
	if p, ok := policies[kind]; ok {
		return p
	}
	return Policy{Failure: FailureFatal, Timeout: func(Config) time.Duration { return 0 }}
}

// TimeoutFor returns the effective timeout of step under cfg.
func TimeoutFor(step schemas.Step, cfg Config) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return PolicyFor(step.Kind).Timeout(cfg)
}
