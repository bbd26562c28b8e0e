package flux

import (
	"testing"
)

func TestMathCapabilities(t *testing.T) {
	e := newTestEngine(t, Config{})
	cases := []struct {
		expr string
		want string
	}{
		{"sqrt(16)", "4.0"},
		{"sqrt(2.25)", "1.5"},
		{"pow(2, 10)", "1024.0"},
		{"abs(-3)", "3"},
		{"abs(-2.5)", "2.5"},
		{"floor(2.7)", "2"},
		{"floor(-2.1)", "-3"},
		{"ceil(2.1)", "3"},
		{"ceil(7)", "7"},
		{"round(2.5)", "2.0"},
		{"round(3.5)", "4.0"},
		{"round(2.25, 1)", "2.2"},
		{"round(7, 0)", "7"},
		{"log(8, 2)", "3.0"},
		{"log(1)", "0.0"},
		{"log(1, None)", "0.0"},
		{"exp(0)", "1.0"},
		{"sin(0)", "0.0"},
		{"cos(0)", "1.0"},
		{"factorial(5)", "120"},
		{"factorial(25)", "15511210043330985984000000"},
		{"gcd(12, 18)", "6"},
		{"lcm(4, 6)", "12"},
		{"lcm(0, 6)", "0"},
		{"deg(0)", "0.0"},
		{"isclose(0.1 + 0.2, 0.3)", "True"},
		{"isclose(1, 1.1)", "False"},
		{"isclose(1, 1.05, abs_tol=0.1)", "True"},
		{"max([3, 9, 2])", "9"},
		{"max(3, 9, 2)", "9"},
		{"min([3, 9, 2])", "2"},
		{`max("abc")`, `"c"`},
		{"sum([1, 2, 3])", "6"},
		{"sum([1, 2.5])", "3.5"},
		{"sum([])", "0"},
		{"mean([1, 2, 3])", "2"},
		{"mean([1, 2])", "1.5"},
		{"mean([1.0, 2.0])", "1.5"},
		{"median([3, 1, 2])", "2"},
		{"median([4, 1, 3, 2])", "2.5"},
		{"variance([1, 3])", "2"},
		{"variance([1, 2, 3, 4])", "1.6666666666666667"},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			if got := evalExpr(t, e, tc.expr).String(); got != tc.want {
				t.Fatalf("%s = %s, want %s", tc.expr, got, tc.want)
			}
		})
	}
}

func TestMathCapabilityErrors(t *testing.T) {
	e := newTestEngine(t, Config{})
	cases := []struct {
		expr string
		kind Kind
	}{
		{"sqrt(-1)", KindValue},
		{`sqrt("x")`, KindType},
		{"sqrt()", KindType},
		{"log(0)", KindValue},
		{"log(10, 1)", KindZeroDivision},
		{"factorial(-1)", KindValue},
		{"max([])", KindValue},
		{"max()", KindType},
		{"mean([])", KindStatistics},
		{"median([])", KindStatistics},
		{"variance([1])", KindStatistics},
		{"pow(10, 400)", KindArithmetic},
		{`sum([1, "a"])`, KindType},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			requireKind(t, evalError(t, e, tc.expr), tc.kind)
		})
	}
}

func TestStatisticsErrorIsValueError(t *testing.T) {
	if !KindStatistics.Matches(KindValue) {
		t.Fatalf("StatisticsError should descend from ValueError")
	}
}
