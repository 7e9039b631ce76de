// internal/runner/suite_test.go
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/browser/fake"
)

// newStorefront builds fresh elements for every page so concurrent sessions
// never share state.
func newStorefront() *fake.Automation {
	return fake.New().
		Route(catalog, fake.Route{Build: func(p *fake.Page) {
			p.Main().Add(&fake.Element{Text: "42 products"})
			p.Main().AddFrame("chat", "https://chat.test/widget")
		}}).
		Route(offline, fake.Route{Err: errors.New("net::ERR_NAME_NOT_RESOLVED")})
}

func TestSuite_ReportsInInputOrder(t *testing.T) {
	a := newStorefront()
	r := newRunner(t, a)
	suite := NewSuite(r, 3, zaptest.NewLogger(t))

	scenarios := []schemas.Scenario{
		{Name: "slow", URL: catalog, Linger: 80 * time.Millisecond},
		{Name: "offline", URL: offline},
		{Name: ""},
		{Name: "quick", URL: catalog},
	}
	reports := suite.Run(context.Background(), scenarios)

	require.Len(t, reports, len(scenarios))
	names := make([]string, len(reports))
	outcomes := make([]schemas.Outcome, len(reports))
	for i, rep := range reports {
		names[i] = rep.Name
		outcomes[i] = rep.Outcome
	}
	if diff := cmp.Diff([]string{"slow", "offline", "", "quick"}, names); diff != "" {
		t.Errorf("report order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []schemas.Outcome{
		schemas.OutcomePass, schemas.OutcomeAborted, schemas.OutcomeAborted, schemas.OutcomePass,
	}, outcomes)
	assert.Equal(t, string(StateIdle), reports[2].AbortedIn)
	assert.NotEmpty(t, reports[2].RunID, "rejected scenarios still get a run id")
	require.Len(t, reports[2].Diagnostics, 1)
	assert.Contains(t, reports[2].Diagnostics[0].Message, "scenario name is required")

	assert.Zero(t, a.Open(), "every session is released")
}

func TestSuite_CanceledContextStillReportsEveryScenario(t *testing.T) {
	a := newStorefront()
	core, logs := observer.New(zapcore.WarnLevel)
	suite := NewSuite(newRunner(t, a), 2, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reports := suite.Run(ctx, []schemas.Scenario{
		{Name: "first", URL: catalog},
		{Name: "second", URL: catalog},
	})

	require.Len(t, reports, 2)
	for _, rep := range reports {
		assert.Equal(t, schemas.OutcomeAborted, rep.Outcome, rep.Name)
		assert.Equal(t, string(StateAcquiring), rep.AbortedIn, rep.Name)
	}
	interrupted := logs.FilterMessage("Scenario suite interrupted.").All()
	require.Len(t, interrupted, 1)
	assert.Equal(t, context.Canceled.Error(), interrupted[0].ContextMap()["error"])
	assert.Zero(t, a.Open())
}

func TestSuite_CompletedRunLogsNoInterruption(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	suite := NewSuite(newRunner(t, newStorefront()), 2, zap.New(core))

	reports := suite.Run(context.Background(), []schemas.Scenario{{Name: "quick", URL: catalog}})

	require.Len(t, reports, 1)
	assert.Equal(t, schemas.OutcomePass, reports[0].Outcome)
	assert.Zero(t, logs.FilterMessage("Scenario suite interrupted.").Len())
}

func TestSuite_RespectsConcurrencyLimit(t *testing.T) {
	a := newStorefront()

	var active, peak int32
	observer := func(tr Transition) {
		switch tr.To {
		case StateAcquiring:
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
		case StateTerminated:
			atomic.AddInt32(&active, -1)
		}
	}
	r := newRunner(t, a, WithObserver(observer))
	suite := NewSuite(r, 2, zaptest.NewLogger(t))

	scenarios := make([]schemas.Scenario, 6)
	for i := range scenarios {
		scenarios[i] = schemas.Scenario{Name: fmt.Sprintf("s%d", i), URL: catalog, Linger: 20 * time.Millisecond}
	}
	reports := suite.Run(context.Background(), scenarios)

	require.Len(t, reports, 6)
	for _, rep := range reports {
		assert.Equal(t, schemas.OutcomePass, rep.Outcome, rep.Name)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Len(t, a.Pages(), 6, "each scenario gets its own session")
}

func TestSuite_DefaultConcurrency(t *testing.T) {
	a := newStorefront()
	suite := NewSuite(newRunner(t, a), 0, zaptest.NewLogger(t))
	assert.Equal(t, defaultConcurrency, suite.concurrency)
}
