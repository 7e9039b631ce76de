// api/schemas/scenario.go
package schemas

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// StepKind defines the type of interaction a Step performs.
type StepKind string

const (
	StepNavigate StepKind = "navigate"
	StepScroll   StepKind = "scroll"
	StepClick    StepKind = "click"
	StepFill     StepKind = "fill"
	StepSleep    StepKind = "sleep"
)

// Step is one unit of scenario action. Steps are data; the executor decides
// how each kind is carried out.
type Step struct {
	Kind StepKind `json:"kind"`
	// URL is the navigation target (navigate).
	URL string `json:"url,omitempty"`
	// DeltaX and DeltaY are wheel deltas in CSS pixels (scroll).
	DeltaX float64 `json:"delta_x,omitempty"`
	DeltaY float64 `json:"delta_y,omitempty"`
	// Target is the element to interact with (click, fill).
	Target Locator `json:"target,omitempty"`
	// Text is the value to fill (fill). An empty string clears the field.
	Text string `json:"text,omitempty"`
	// Duration is the pause length (sleep).
	Duration time.Duration `json:"duration,omitempty"`
	// Timeout overrides the kind's default timeout when positive.
	Timeout time.Duration `json:"timeout,omitempty"`
	// Frame scopes resolution to the first frame whose name equals or whose URL
	// contains this value. Empty means the main frame.
	Frame string `json:"frame,omitempty"`
	// Description is free text carried into the report.
	Description string `json:"description,omitempty"`
}

func Navigate(rawURL string) Step { return Step{Kind: StepNavigate, URL: rawURL} }

func Scroll(dx, dy float64) Step { return Step{Kind: StepScroll, DeltaX: dx, DeltaY: dy} }

func Click(target Locator) Step { return Step{Kind: StepClick, Target: target} }

func Fill(target Locator, text string) Step {
	return Step{Kind: StepFill, Target: target, Text: text}
}

func Sleep(d time.Duration) Step { return Step{Kind: StepSleep, Duration: d} }

func (s Step) WithTimeout(d time.Duration) Step {
	s.Timeout = d
	return s
}

func (s Step) InFrame(frame string) Step {
	s.Frame = frame
	return s
}

func (s Step) Describe(desc string) Step {
	s.Description = desc
	return s
}

// Label is a short human readable rendering used in logs and reports.
func (s Step) Label() string {
	switch s.Kind {
	case StepNavigate:
		return fmt.Sprintf("navigate(%s)", s.URL)
	case StepScroll:
		return fmt.Sprintf("scroll(%g,%g)", s.DeltaX, s.DeltaY)
	case StepClick:
		return fmt.Sprintf("click(%s)", s.Target)
	case StepFill:
		return fmt.Sprintf("fill(%s, %q)", s.Target, s.Text)
	case StepSleep:
		return fmt.Sprintf("sleep(%s)", s.Duration)
	}
	return string(s.Kind)
}

// Validate checks that the fields required by the step's kind are present.
func (s Step) Validate() error {
	if s.Timeout < 0 {
		return fmt.Errorf("%s: timeout must not be negative", s.Kind)
	}
	switch s.Kind {
	case StepNavigate:
		if strings.TrimSpace(s.URL) == "" {
			return errors.New("navigate: url is required")
		}
		if _, err := url.Parse(s.URL); err != nil {
			return fmt.Errorf("navigate: invalid url %q: %w", s.URL, err)
		}
	case StepScroll:
	case StepClick, StepFill:
		if err := s.Target.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.Kind, err)
		}
	case StepSleep:
		if s.Duration < 0 {
			return errors.New("sleep: duration must not be negative")
		}
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
	return nil
}

// Assertion is a bounded-wait check that a located element reaches an
// expected visibility state.
type Assertion struct {
	Target        Locator       `json:"target"`
	ExpectVisible bool          `json:"expect_visible"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	Frame         string        `json:"frame,omitempty"`
	Description   string        `json:"description,omitempty"`
}

// Visible asserts the first match of target becomes visible.
func Visible(target Locator) Assertion { return Assertion{Target: target, ExpectVisible: true} }

// Hidden asserts the first match of target is absent or not visible.
func Hidden(target Locator) Assertion { return Assertion{Target: target, ExpectVisible: false} }

func (a Assertion) WithTimeout(d time.Duration) Assertion {
	a.Timeout = d
	return a
}

func (a Assertion) InFrame(frame string) Assertion {
	a.Frame = frame
	return a
}

func (a Assertion) Label() string {
	if a.ExpectVisible {
		return fmt.Sprintf("visible(%s)", a.Target)
	}
	return fmt.Sprintf("hidden(%s)", a.Target)
}

func (a Assertion) Validate() error {
	if a.Timeout < 0 {
		return errors.New("assertion timeout must not be negative")
	}
	return a.Target.Validate()
}

// Scenario is the unit a test author writes: a named sequence of steps
// followed by assertions on the resulting page state.
type Scenario struct {
	Name string `json:"name"`
	// URL is the initial navigation target. When empty a leading navigate step
	// serves as the initial navigation.
	URL        string      `json:"url,omitempty"`
	Steps      []Step      `json:"steps"`
	Assertions []Assertion `json:"assertions"`
	// Linger keeps the session open for this long after assertions.
	Linger time.Duration `json:"linger,omitempty"`
	Tags   []string      `json:"tags,omitempty"`
	// Source is the file the scenario was loaded from, if any.
	Source string `json:"source,omitempty"`
}

// Validate checks the scenario and every step and assertion in it.
func (sc Scenario) Validate() error {
	if strings.TrimSpace(sc.Name) == "" {
		return errors.New("scenario name is required")
	}
	if sc.URL != "" {
		if _, err := url.Parse(sc.URL); err != nil {
			return fmt.Errorf("scenario %q: invalid url: %w", sc.Name, err)
		}
	}
	if sc.Linger < 0 {
		return fmt.Errorf("scenario %q: linger must not be negative", sc.Name)
	}
	for i, st := range sc.Steps {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("scenario %q: step %d: %w", sc.Name, i, err)
		}
	}
	for i, a := range sc.Assertions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("scenario %q: assertion %d: %w", sc.Name, i, err)
		}
	}
	return nil
}
