package fn

import (
	"testing"

	"github.com/leapstack-labs/leapcalc/pkg/locale"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

func TestWildcardMatch_Patterns(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"abc", "abc", true},
		{"abc", "ABC", true},
		{"abc", "abcd", false},
		{"a*", "anything", true},
		{"a*c", "abc", true},
		{"a*c", "ab", false},
		{"a?c", "abc", true},
		{"a?c", "ac", false},
		{"*", "", true},
		{"", "", true},
		{"*x*", "axb", true},
		{"??", "ab", true},
		{"??", "abc", false},
		{"~*", "*", true},
		{"~*", "x", false},
		{"a~?b", "a?b", true},
		{"a~?b", "axb", false},
	}
	for _, tc := range cases {
		if got := wildcardMatch(tc.pattern, tc.s); got != tc.want {
			t.Errorf("wildcardMatch(%q, %q) = %v, want %v", tc.pattern, tc.s, got, tc.want)
		}
	}
}

func TestParseCriterion_Classification(t *testing.T) {
	loc := locale.New("en-US").Build()

	cr := parseCriterion(value.Text(">=10"), loc)
	if cr.kind != critNumber || cr.op != opGE || cr.num != 10 {
		t.Errorf("expected numeric >= 10, got kind %d op %d num %v", cr.kind, cr.op, cr.num)
	}

	cr = parseCriterion(value.Number(5), loc)
	if cr.kind != critNumber || cr.op != opEQ || cr.num != 5 {
		t.Errorf("expected numeric = 5, got kind %d op %d num %v", cr.kind, cr.op, cr.num)
	}

	if cr = parseCriterion(value.Text(""), loc); cr.kind != critBlank {
		t.Errorf("expected blank criterion, got kind %d", cr.kind)
	}
	if cr = parseCriterion(value.Empty(), loc); cr.kind != critBlank {
		t.Errorf("expected blank criterion for empty value, got kind %d", cr.kind)
	}
	if cr = parseCriterion(value.Text("<>"), loc); cr.kind != critNonBlank {
		t.Errorf("expected non-blank criterion, got kind %d", cr.kind)
	}

	cr = parseCriterion(value.Text("=TRUE"), loc)
	if cr.kind != critBool || !cr.b {
		t.Errorf("expected boolean TRUE criterion, got kind %d b %v", cr.kind, cr.b)
	}

	cr = parseCriterion(value.Text("#REF!"), loc)
	if cr.kind != critError || cr.errk != value.ErrRef {
		t.Errorf("expected #REF! criterion, got kind %d err %v", cr.kind, cr.errk)
	}

	cr = parseCriterion(value.Text(">abc"), loc)
	if cr.kind != critText || cr.op != opGT || cr.text != "abc" {
		t.Errorf("expected text > abc, got kind %d op %d text %q", cr.kind, cr.op, cr.text)
	}
}
