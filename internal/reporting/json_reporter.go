// internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONDocument is the top-level shape of the json output.
type JSONDocument struct {
	Tool        string                   `json:"tool"`
	Version     string                   `json:"version"`
	GeneratedAt time.Time                `json:"generated_at"`
	Summary     Summary                  `json:"summary"`
	Scenarios   []schemas.ScenarioReport `json:"scenarios"`
}

// JSONReporter buffers reports and writes one JSON document on Close.
// It is safe for concurrent use.
type JSONReporter struct {
	writer  io.WriteCloser
	version string
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	reports []schemas.ScenarioReport
}

func NewJSONReporter(writer io.WriteCloser, toolVersion string) *JSONReporter {
	return &JSONReporter{
		writer:  writer,
		version: toolVersion,
		logger:  observability.GetLogger().Named("json_reporter"),
		now:     time.Now,
		reports: []schemas.ScenarioReport{},
	}
}

func (r *JSONReporter) Write(report schemas.ScenarioReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := JSONDocument{
		Tool:        ToolName,
		Version:     r.version,
		GeneratedAt: r.now().UTC(),
		Summary:     Summarize(r.reports),
		Scenarios:   r.reports,
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(doc)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode JSON report.", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode JSON output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer.", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Debug("Wrote JSON report.", zap.Int("scenarios", len(r.reports)))
	return nil
}
