// api/schemas/locator.go
package schemas

import (
	"fmt"
	"strconv"
	"strings"
)

// LocatorKind identifies how a Locator finds elements.
type LocatorKind string

const (
	LocatorText  LocatorKind = "text"
	LocatorXPath LocatorKind = "xpath"
	LocatorRole  LocatorKind = "role"
)

// Valid reports whether k is one of the known locator kinds.
func (k LocatorKind) Valid() bool {
	switch k {
	case LocatorText, LocatorXPath, LocatorRole:
		return true
	}
	return false
}

// Locator is a declarative description of how to find an element. It is a
// value type: the With* methods return modified copies.
type Locator struct {
	Kind  LocatorKind `json:"kind" yaml:"kind"`
	Value string      `json:"value" yaml:"value"`
	// Exact switches text matching from case-insensitive substring to exact full text.
	Exact bool `json:"exact,omitempty" yaml:"exact,omitempty"`
	// Name filters role matches by accessible name (substring, case-insensitive).
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Index selects which match an interaction targets.
	Index int `json:"index,omitempty" yaml:"index,omitempty"`
}

// Text locates elements by their visible text.
func Text(value string) Locator { return Locator{Kind: LocatorText, Value: value} }

// XPath locates elements by a structural path.
func XPath(path string) Locator { return Locator{Kind: LocatorXPath, Value: path} }

// Role locates elements by ARIA role, explicit or implicit.
func Role(role string) Locator { return Locator{Kind: LocatorRole, Value: role} }

func (l Locator) WithIndex(i int) Locator {
	l.Index = i
	return l
}

func (l Locator) WithName(name string) Locator {
	l.Name = name
	return l
}

func (l Locator) WithExact(exact bool) Locator {
	l.Exact = exact
	return l
}

// Validate checks the locator is well formed.
func (l Locator) Validate() error {
	if !l.Kind.Valid() {
		return fmt.Errorf("unknown locator kind %q", l.Kind)
	}
	if strings.TrimSpace(l.Value) == "" {
		return fmt.Errorf("%s locator has an empty value", l.Kind)
	}
	if l.Index < 0 {
		return fmt.Errorf("locator index must not be negative, got %d", l.Index)
	}
	if l.Exact && l.Kind != LocatorText {
		return fmt.Errorf("exact matching only applies to text locators")
	}
	if l.Name != "" && l.Kind != LocatorRole {
		return fmt.Errorf("name filter only applies to role locators")
	}
	return nil
}

// String renders the locator in the textual grammar understood by locator.Parse.
func (l Locator) String() string {
	var b strings.Builder
	b.WriteString(string(l.Kind))
	b.WriteByte('=')
	switch l.Kind {
	case LocatorText:
		switch {
		case l.Exact:
			b.WriteString(strconv.Quote(l.Value))
		case ambiguousText(l.Value):
			b.WriteString(strconv.Quote(l.Value))
			b.WriteByte('i')
		default:
			b.WriteString(l.Value)
		}
	case LocatorRole:
		b.WriteString(l.Value)
		if l.Name != "" {
			b.WriteString("[name=")
			b.WriteString(strconv.Quote(l.Name))
			b.WriteByte(']')
		}
	default:
		b.WriteString(l.Value)
	}
	if l.Index != 0 {
		fmt.Fprintf(&b, " >> nth=%d", l.Index)
	}
	return b.String()
}

// ambiguousText reports whether a substring text value would not survive the
// bare text= form: surrounding whitespace is trimmed, a leading quote reads
// as an exact match and ">>" starts a chain.
func ambiguousText(v string) bool {
	return v != strings.TrimSpace(v) ||
		strings.HasPrefix(v, `"`) || strings.HasPrefix(v, "'") ||
		strings.Contains(v, ">>")
}
