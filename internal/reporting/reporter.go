// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xkilldash9x/scenarist/api/schemas"
)

const ToolName = "scenarist"

// Reporter writes scenario reports to an output.
type Reporter interface {
	// Write records one finished scenario.
	Write(report schemas.ScenarioReport) error
	// Close finalizes the output and closes the underlying writer.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format ("text", "json" or "junit") writing to
// outputPath, or stdout when outputPath is empty or "stdout".
func New(format, outputPath, toolVersion string) (Reporter, error) {
	switch format {
	case "text", "json", "junit":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWithWriter(format, writer, toolVersion)
}

// NewWithWriter creates a reporter that takes ownership of writer.
func NewWithWriter(format string, writer io.WriteCloser, toolVersion string) (Reporter, error) {
	switch format {
	case "text":
		return NewTextReporter(writer), nil
	case "json":
		return NewJSONReporter(writer, toolVersion), nil
	case "junit":
		return NewJUnitReporter(writer, toolVersion), nil
	default:
		writer.Close()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Summary aggregates outcomes over a set of reports.
type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Aborted  int           `json:"aborted"`
	Duration time.Duration `json:"duration"`
}

// Summarize counts the outcomes of reports.
func Summarize(reports []schemas.ScenarioReport) Summary {
	s := Summary{Total: len(reports)}
	for _, r := range reports {
		switch r.Outcome {
		case schemas.OutcomePass:
			s.Passed++
		case schemas.OutcomeFail:
			s.Failed++
		default:
			s.Aborted++
		}
		s.Duration += r.Duration
	}
	return s
}

// OK reports whether every scenario passed.
func (s Summary) OK() bool { return s.Passed == s.Total }
