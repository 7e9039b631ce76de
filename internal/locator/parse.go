// internal/locator/parse.go
package locator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xkilldash9x/scenarist/api/schemas"
)

const nthPrefix = "nth="

// Parse reads the textual locator grammar:
//
//	text=Sign in            case-insensitive substring match
//	text="Sign in"          exact match
//	text=" Sign in "i       case-insensitive substring, quoted verbatim
//	xpath=html/body/div[2]  XPath relative to the frame document
//	//button | /html/body   bare XPath
//	role=button[name="Save"]
//
// Any form may be followed by " >> nth=N" to select the Nth match. A ">>"
// inside a quoted segment is part of the value.
func Parse(s string) (schemas.Locator, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return schemas.Locator{}, fmt.Errorf("empty locator")
	}

	body, index, err := splitNth(raw)
	if err != nil {
		return schemas.Locator{}, err
	}

	var l schemas.Locator
	switch {
	case strings.HasPrefix(body, "text="):
		l, err = parseText(strings.TrimPrefix(body, "text="))
	case strings.HasPrefix(body, "xpath="):
		l = schemas.XPath(strings.TrimPrefix(body, "xpath="))
	case strings.HasPrefix(body, "role="):
		l, err = parseRole(strings.TrimPrefix(body, "role="))
	case strings.HasPrefix(body, "/"), strings.HasPrefix(body, "("):
		l = schemas.XPath(body)
	default:
		return schemas.Locator{}, fmt.Errorf("unsupported locator %q: expected text=, xpath=, role= or an XPath", s)
	}
	if err != nil {
		return schemas.Locator{}, fmt.Errorf("parsing locator %q: %w", s, err)
	}

	l.Index = index
	if err := l.Validate(); err != nil {
		return schemas.Locator{}, fmt.Errorf("parsing locator %q: %w", s, err)
	}
	return l, nil
}

// MustParse is Parse for literals known to be valid. It panics on error.
func MustParse(s string) schemas.Locator {
	l, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return l
}

// splitNth strips a trailing ">> nth=N" chain element.
func splitNth(s string) (string, int, error) {
	i := lastChain(s)
	if i < 0 {
		return s, 0, nil
	}
	tail := strings.TrimSpace(s[i+2:])
	if !strings.HasPrefix(tail, nthPrefix) {
		return s, 0, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(tail, nthPrefix))
	if err != nil {
		return "", 0, fmt.Errorf("invalid nth selector %q: %w", tail, err)
	}
	if n < 0 {
		return "", 0, fmt.Errorf("nth index must not be negative, got %d", n)
	}
	return strings.TrimSpace(s[:i]), n, nil
}

// lastChain returns the offset of the last ">>" outside quotes, or -1. When a
// quote is left open (an apostrophe in bare text) quotes are ignored.
func lastChain(s string) int {
	last := -1
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>' && i+1 < len(s) && s[i+1] == '>':
			last = i
			i++
		}
	}
	if quote != 0 {
		return strings.LastIndex(s, ">>")
	}
	return last
}

func parseText(v string) (schemas.Locator, error) {
	if len(v) >= 3 && isQuote(v[0]) && v[len(v)-1] == 'i' && v[len(v)-2] == v[0] {
		unquoted, err := unquote(v[:len(v)-1])
		if err != nil {
			return schemas.Locator{}, err
		}
		return schemas.Text(unquoted), nil
	}
	if len(v) >= 2 && isQuote(v[0]) && v[len(v)-1] == v[0] {
		unquoted, err := unquote(v)
		if err != nil {
			return schemas.Locator{}, err
		}
		return schemas.Text(unquoted).WithExact(true), nil
	}
	return schemas.Text(v), nil
}

func isQuote(c byte) bool { return c == '"' || c == '\'' }

func parseRole(v string) (schemas.Locator, error) {
	open := strings.IndexByte(v, '[')
	if open < 0 {
		return schemas.Role(strings.TrimSpace(v)), nil
	}
	if !strings.HasSuffix(v, "]") {
		return schemas.Locator{}, fmt.Errorf("unterminated role attribute in %q", v)
	}
	role := strings.TrimSpace(v[:open])
	attr := v[open+1 : len(v)-1]
	key, val, ok := strings.Cut(attr, "=")
	if !ok || strings.TrimSpace(key) != "name" {
		return schemas.Locator{}, fmt.Errorf("unsupported role attribute %q: only name is supported", attr)
	}
	val = strings.TrimSpace(val)
	if len(val) >= 2 && isQuote(val[0]) {
		unquoted, err := unquote(val)
		if err != nil {
			return schemas.Locator{}, err
		}
		val = unquoted
	}
	return schemas.Role(role).WithName(val), nil
}

func unquote(v string) (string, error) {
	if v[0] == '\'' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}
