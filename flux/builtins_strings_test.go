package flux

import (
	"testing"
)

func TestStringCapabilities(t *testing.T) {
	e := newTestEngine(t, Config{})
	cases := []struct {
		expr string
		want string
	}{
		{`str(12)`, `"12"`},
		{`str("x")`, `"x"`},
		{`str()`, `""`},
		{`str([1, "a"])`, `"[1, \"a\"]"`},
		{`upper("héllo")`, `"HÉLLO"`},
		{`lower("ÀB")`, `"àb"`},
		{`strip("  hi \n")`, `"hi"`},
		{`lstrip("  hi ")`, `"hi "`},
		{`rstrip("  hi ")`, `"  hi"`},
		{`replace("a-b-c", "-", "+")`, `"a+b+c"`},
		{`replace("a-b-c", "-", "+", 1)`, `"a+b-c"`},
		{`split("a b  c")`, `["a", "b", "c"]`},
		{`split("  a b  c ", None, 1)`, `["a", "b  c "]`},
		{`split("a,b,,c", ",")`, `["a", "b", "", "c"]`},
		{`split("a,b,c", ",", 1)`, `["a", "b,c"]`},
		{`split("")`, `[]`},
		{`join(", ", [1, "two", 3.5])`, `"1, two, 3.5"`},
		{`join("", "abc")`, `"abc"`},
		{`startswith("flux", "fl")`, `True`},
		{`startswith("flux", ("x", "f"))`, `True`},
		{`endswith("flux", ("a", "b"))`, `False`},
		{`find("héllo", "l")`, `2`},
		{`find("hello", "z")`, `-1`},
		{`format("{} + {} = {total}", 1, 2, total=3)`, `"1 + 2 = 3"`},
		{`capitalize("hELLO world")`, `"Hello world"`},
		{`capitalize("")`, `""`},
		{`title("hello flux world")`, `"Hello Flux World"`},
		{`substring("héllo", 1, 3)`, `"él"`},
		{`substring("hello", -3)`, `"llo"`},
		{`substring("hello", 3, 1)`, `""`},
		{`substring("hello", 0, 99)`, `"hello"`},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			if got := evalExpr(t, e, tc.expr).String(); got != tc.want {
				t.Fatalf("%s = %s, want %s", tc.expr, got, tc.want)
			}
		})
	}
}

func TestStringCapabilityErrors(t *testing.T) {
	e := newTestEngine(t, Config{})
	cases := []struct {
		expr string
		kind Kind
	}{
		{`split("abc", "")`, KindValue},
		{`split("abc", 1)`, KindType},
		{`startswith("abc", 1)`, KindType},
		{`startswith("abc", (1,))`, KindType},
		{`find("abc")`, KindType},
		{`format()`, KindType},
		{`format("{} {}", 1)`, KindValue},
		{`upper()`, KindType},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			requireKind(t, evalError(t, e, tc.expr), tc.kind)
		})
	}
}

func TestCaseMappingIsSafeAcrossThreads(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, `
let out = []
let guard = lock()

fn work(word):
    let value = upper(word)
    guard.acquire()
    out.append(value)
    guard.release()

fn main():
    let tasks = [spawn_thread(work, w) for w in ["a", "b", "c", "d"]]
    for t in tasks:
        join_thread(t)
    return sorted(out)
`)
	if got := result.Value.String(); got != `["A", "B", "C", "D"]` {
		t.Fatalf("unexpected output %s", got)
	}
}
