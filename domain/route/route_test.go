package route_test

import (
	"testing"

	"github.com/thedtvn/reverseproxy/domain/route"
)

func TestCompilePattern_Modes(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		subject string
		want    bool
	}{
		{"eq match", "eq api.example", "api.example", true},
		{"eq mismatch", "eq api.example", "api.example.com", false},
		{"sw prefix", "sw admin.", "admin.internal", true},
		{"sw negated", "!sw admin.", "api.com", true},
		{"sw negated blocks prefix", "!sw admin.", "admin.test", false},
		{"ct contains", "ct .r.", "a.r.example", true},
		{"ew suffix", "ew .test", "foo.test", true},
		{"wc wildcard", "wc *.r.example", "a.r.example", true},
		{"wc wildcard no match", "wc *.r.example", "a.r.example.com", false},
		{"regex", "regex ^[a-z]+\\.test$", "foo.test", true},
		{"regex no match", "regex ^[a-z]+\\.test$", "foo.test.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := route.CompilePattern(tt.pattern)
			if !ok {
				t.Fatalf("CompilePattern(%q) failed to compile", tt.pattern)
			}
			if got := p.Match(tt.subject); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.subject, got, tt.want)
			}
		})
	}
}

func TestCompilePattern_Invalid(t *testing.T) {
	tests := []string{
		"eq",         // missing operand
		"eq ",        // empty operand
		"bogus foo",  // unknown mode
		"regex [",    // malformed regex
	}

	for _, raw := range tests {
		p, ok := route.CompilePattern(raw)
		if ok {
			t.Errorf("CompilePattern(%q) should have failed to compile", raw)
		}
		if p.Match("anything") {
			t.Errorf("invalid pattern %q should never match", raw)
		}
	}
}

func TestScenario4_PatternModes(t *testing.T) {
	admin, ok := route.CompilePattern("!sw admin.")
	if !ok {
		t.Fatal("admin pattern failed to compile")
	}
	test, ok := route.CompilePattern("regex ^[a-z]+\\.test$")
	if !ok {
		t.Fatal("test pattern failed to compile")
	}

	if !test.Match("foo.test") {
		t.Error("foo.test should match the regex pattern")
	}
	if admin.Match("admin.test") {
		t.Error("admin.test should not match the negated admin pattern")
	}
	if test.Match("admin.test") {
		t.Error("admin.test should not match the regex pattern")
	}
	if !admin.Match("api.com") {
		t.Error("api.com should match the negated admin pattern")
	}
}
