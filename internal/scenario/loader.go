// internal/scenario/loader.go
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/locator"
)

// File is the YAML form of one scenario. A file may hold several documents
// separated by "---".
//
//	name: search without results
//	url: https://shop.test/
//	steps:
//	  - fill: {target: "role=searchbox", text: no-such-term}
//	  - click: text=Search
//	    timeout: 2s
//	assertions:
//	  - visible: text=No Results
type File struct {
	Name       string         `yaml:"name"`
	URL        string         `yaml:"url,omitempty"`
	Linger     Duration       `yaml:"linger,omitempty"`
	Tags       []string       `yaml:"tags,omitempty"`
	Steps      []StepDoc      `yaml:"steps"`
	Assertions []AssertionDoc `yaml:"assertions"`
}

// StepDoc holds exactly one action key plus optional modifiers.
type StepDoc struct {
	Navigate *string    `yaml:"navigate,omitempty"`
	Scroll   *ScrollDoc `yaml:"scroll,omitempty"`
	Click    *string    `yaml:"click,omitempty"`
	Fill     *FillDoc   `yaml:"fill,omitempty"`
	Sleep    *Duration  `yaml:"sleep,omitempty"`

	Timeout     Duration `yaml:"timeout,omitempty"`
	Frame       string   `yaml:"frame,omitempty"`
	Description string   `yaml:"description,omitempty"`

	line int
}

type ScrollDoc struct {
	DX float64 `yaml:"dx"`
	DY float64 `yaml:"dy"`
}

type FillDoc struct {
	Target string `yaml:"target"`
	Text   string `yaml:"text"`
}

// AssertionDoc holds exactly one of visible or hidden.
type AssertionDoc struct {
	Visible     *string  `yaml:"visible,omitempty"`
	Hidden      *string  `yaml:"hidden,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty"`
	Frame       string   `yaml:"frame,omitempty"`
	Description string   `yaml:"description,omitempty"`

	line int
}

// Duration decodes Go duration strings ("3s", "250ms").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"3s\"", node.Line)
	}
	if s == "0" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) { return time.Duration(d).String(), nil }

// stepAlias and assertionAlias avoid recursing into UnmarshalYAML.
type stepAlias StepDoc
type assertionAlias AssertionDoc

func (s *StepDoc) UnmarshalYAML(node *yaml.Node) error {
	var a stepAlias
	if err := decodeStrict(node, &a); err != nil {
		return err
	}
	*s = StepDoc(a)
	s.line = node.Line
	return nil
}

func (a *AssertionDoc) UnmarshalYAML(node *yaml.Node) error {
	var alias assertionAlias
	if err := decodeStrict(node, &alias); err != nil {
		return err
	}
	*a = AssertionDoc(alias)
	a.line = node.Line
	return nil
}

// decodeStrict re-encodes node and decodes it with unknown fields rejected;
// yaml.Node.Decode alone does not honor KnownFields.
func decodeStrict(node *yaml.Node, out interface{}) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// ToStep converts the document to a schemas.Step.
func (s StepDoc) ToStep() (schemas.Step, error) {
	var (
		step  schemas.Step
		kinds []string
	)
	if s.Navigate != nil {
		kinds = append(kinds, "navigate")
		step = schemas.Navigate(*s.Navigate)
	}
	if s.Scroll != nil {
		kinds = append(kinds, "scroll")
		step = schemas.Scroll(s.Scroll.DX, s.Scroll.DY)
	}
	if s.Click != nil {
		kinds = append(kinds, "click")
		loc, err := locator.Parse(*s.Click)
		if err != nil {
			return step, fmt.Errorf("line %d: click: %w", s.line, err)
		}
		step = schemas.Click(loc)
	}
	if s.Fill != nil {
		kinds = append(kinds, "fill")
		loc, err := locator.Parse(s.Fill.Target)
		if err != nil {
			return step, fmt.Errorf("line %d: fill: %w", s.line, err)
		}
		step = schemas.Fill(loc, s.Fill.Text)
	}
	if s.Sleep != nil {
		kinds = append(kinds, "sleep")
		step = schemas.Sleep(time.Duration(*s.Sleep))
	}
	switch len(kinds) {
	case 0:
		return step, fmt.Errorf("line %d: step needs one of navigate, scroll, click, fill, sleep", s.line)
	case 1:
	default:
		return step, fmt.Errorf("line %d: step has several actions: %s", s.line, strings.Join(kinds, ", "))
	}

	step.Timeout = time.Duration(s.Timeout)
	step.Frame = s.Frame
	step.Description = s.Description
	return step, nil
}

// ToAssertion converts the document to a schemas.Assertion.
func (a AssertionDoc) ToAssertion() (schemas.Assertion, error) {
	var out schemas.Assertion
	switch {
	case a.Visible != nil && a.Hidden != nil:
		return out, fmt.Errorf("line %d: assertion has both visible and hidden", a.line)
	case a.Visible != nil:
		loc, err := locator.Parse(*a.Visible)
		if err != nil {
			return out, fmt.Errorf("line %d: visible: %w", a.line, err)
		}
		out = schemas.Visible(loc)
	case a.Hidden != nil:
		loc, err := locator.Parse(*a.Hidden)
		if err != nil {
			return out, fmt.Errorf("line %d: hidden: %w", a.line, err)
		}
		out = schemas.Hidden(loc)
	default:
		return out, fmt.Errorf("line %d: assertion needs visible or hidden", a.line)
	}
	out.Timeout = time.Duration(a.Timeout)
	out.Frame = a.Frame
	out.Description = a.Description
	return out, nil
}

// ToScenario converts and validates the document.
func (f File) ToScenario(source string) (schemas.Scenario, error) {
	sc := schemas.Scenario{
		Name:   f.Name,
		URL:    f.URL,
		Linger: time.Duration(f.Linger),
		Tags:   f.Tags,
		Source: source,
	}
	var errs error
	for i, doc := range f.Steps {
		step, err := doc.ToStep()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("step %d: %w", i, err))
			continue
		}
		sc.Steps = append(sc.Steps, step)
	}
	for i, doc := range f.Assertions {
		a, err := doc.ToAssertion()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("assertion %d: %w", i, err))
			continue
		}
		sc.Assertions = append(sc.Assertions, a)
	}
	if errs != nil {
		return sc, errs
	}
	if err := sc.Validate(); err != nil {
		return sc, err
	}
	return sc, nil
}

// Parse decodes every YAML document in r. A document without a name takes
// the base name of source.
func Parse(r io.Reader, source string) ([]schemas.Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var (
		out  []schemas.Scenario
		errs error
	)
	for doc := 0; ; doc++ {
		var f File
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, multierr.Append(errs, fmt.Errorf("%s: document %d: %w", source, doc, err))
		}
		if f.Name == "" && source != "" {
			f.Name = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
			if doc > 0 {
				f.Name = fmt.Sprintf("%s#%d", f.Name, doc)
			}
		}
		sc, err := f.ToScenario(source)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: document %d: %w", source, doc, err))
			continue
		}
		out = append(out, sc)
	}
	if len(out) == 0 && errs == nil {
		errs = fmt.Errorf("%s: no scenarios found", source)
	}
	return out, errs
}

// Load reads the scenarios of one file. A leading ~ is expanded.
func Load(path string) ([]schemas.Scenario, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expanding %q: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(bytes.NewReader(data), expanded)
}

// LoadAll loads every file in paths. Directories contribute their *.yaml and
// *.yml files in lexical order. Every file is read even when some fail; the
// returned error combines all failures.
func LoadAll(paths []string) ([]schemas.Scenario, error) {
	var (
		out  []schemas.Scenario
		errs error
	)
	for _, p := range paths {
		files, err := expand(p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, f := range files {
			scs, err := Load(f)
			errs = multierr.Append(errs, err)
			out = append(out, scs...)
		}
	}
	return out, errs
}

func expand(path string) ([]string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expanding %q: %w", path, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario path: %w", err)
	}
	if !info.IsDir() {
		return []string{expanded}, nil
	}
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(expanded, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: no scenario files", expanded)
	}
	sort.Strings(files)
	return files, nil
}
