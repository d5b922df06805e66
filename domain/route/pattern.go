// Package route implements host-pattern matching and the route table that
// the proxy engine consults on every request.
package route

import (
	"regexp"
	"strings"
)

// Mode identifies how a Pattern's operand is compared against a subject.
type Mode string

const (
	ModeEqual    Mode = "eq"
	ModePrefix   Mode = "sw"
	ModeContains Mode = "ct"
	ModeSuffix   Mode = "ew"
	ModeWildcard Mode = "wc"
	ModeRegex    Mode = "regex"
)

// Pattern is a compiled "<mode> <operand>" rule, optionally negated with a
// leading '!' on the mode token. A Pattern that failed to compile still
// exists (so the route stays in the table for /debug/routes) but never
// matches anything.
type Pattern struct {
	raw     string
	mode    Mode
	negate  bool
	operand string
	re      *regexp.Regexp
	valid   bool
}

// CompilePattern parses and compiles raw. It never returns an error: a
// structurally malformed pattern (missing operand, unknown mode, bad
// regex) yields a Pattern that always returns false from Match, with ok
// set to false so the caller can log a warning.
func CompilePattern(raw string) (p *Pattern, ok bool) {
	modeTok, operand, found := strings.Cut(raw, " ")
	if !found || operand == "" {
		return &Pattern{raw: raw}, false
	}

	negate := false
	if strings.HasPrefix(modeTok, "!") {
		negate = true
		modeTok = modeTok[1:]
	}

	p = &Pattern{raw: raw, mode: Mode(modeTok), negate: negate, operand: operand}

	switch p.mode {
	case ModeEqual, ModePrefix, ModeContains, ModeSuffix:
		p.valid = true
	case ModeWildcard:
		re, err := regexp.Compile(wildcardToRegexp(operand))
		if err != nil {
			return p, false
		}
		p.re = re
		p.valid = true
	case ModeRegex:
		re, err := regexp.Compile(operand)
		if err != nil {
			return p, false
		}
		p.re = re
		p.valid = true
	default:
		return p, false
	}

	return p, true
}

// Match reports whether subject satisfies the pattern, applying negation
// last. A nil or invalid Pattern never matches.
func (p *Pattern) Match(subject string) bool {
	if p == nil || !p.valid {
		return false
	}

	var result bool
	switch p.mode {
	case ModeEqual:
		result = subject == p.operand
	case ModePrefix:
		result = strings.HasPrefix(subject, p.operand)
	case ModeContains:
		result = strings.Contains(subject, p.operand)
	case ModeSuffix:
		result = strings.HasSuffix(subject, p.operand)
	case ModeWildcard, ModeRegex:
		result = p.re.MatchString(subject)
	}

	if p.negate {
		result = !result
	}
	return result
}

// String returns the original, uncompiled pattern text.
func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	return p.raw
}

// Valid reports whether the pattern compiled successfully.
func (p *Pattern) Valid() bool {
	return p != nil && p.valid
}

// wildcardToRegexp translates a glob ('*' any run, '?' one char) into an
// anchored regular expression, quoting every other rune.
func wildcardToRegexp(glob string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return b.String()
}
