package flux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectionCapabilities(t *testing.T) {
	e := newTestEngine(t, Config{})
	cases := []struct {
		expr string
		want string
	}{
		{`len("héllo")`, `5`},
		{`len([1, 2])`, `2`},
		{`len({"a": 1})`, `1`},
		{`list("ab")`, `["a", "b"]`},
		{`list()`, `[]`},
		{`dict([("a", 1)])`, `{"a": 1}`},
		{`dict()`, `{}`},
		{`append([1], 2)`, `[1, 2]`},
		{`push([], "x")`, `["x"]`},
		{`pop([1, 2, 3])`, `3`},
		{`pop([1, 2, 3], 0)`, `1`},
		{`pop_front([7, 8])`, `7`},
		{`pop_front([])`, `None`},
		{`sort([3, 1, 2])`, `[1, 2, 3]`},
		{`sort([3, 1, 2], reverse=True)`, `[3, 2, 1]`},
		{`sorted(["bb", "a", "ccc"], key=len)`, `["a", "bb", "ccc"]`},
		{`sorted([(1, "b"), (0, "x"), (1, "a")], key=first, reverse=True)`, `[(1, "b"), (1, "a"), (0, "x")]`},
		{`reverse([1, 2, 3])`, `[3, 2, 1]`},
		{`range(4)`, `[0, 1, 2, 3]`},
		{`range(2, 5)`, `[2, 3, 4]`},
		{`range(10, 0, -3)`, `[10, 7, 4, 1]`},
		{`range(5, 2)`, `[]`},
		{`map(upper, ["a", "b"])`, `["A", "B"]`},
		{`filter(None, [0, 1, "", "x"])`, `[1, "x"]`},
		{`filter(lambda x: x > 1, [1, 2, 3])`, `[2, 3]`},
		{`reduce(lambda a, b: a + b, [1, 2, 3])`, `6`},
		{`reduce(lambda a, b: a + b, [], 10)`, `10`},
		{`zip([1, 2, 3], "ab")`, `[(1, "a"), (2, "b")]`},
		{`zip()`, `[]`},
		{`enumerate(["a", "b"], start=1)`, `[(1, "a"), (2, "b")]`},
		{`unique([3, 1, 3, 2, 1])`, `[3, 1, 2]`},
		{`flatten([[1, 2], (3,), "ab"])`, `[1, 2, 3, "a", "b"]`},
		{`chunk([1, 2, 3, 4, 5], 2)`, `[[1, 2], [3, 4], [5]]`},
		{`chunk("abcde", 2)`, `["ab", "cd", "e"]`},
		{`chunk((1, 2, 3), 0)`, `[(1, 2, 3)]`},
		{`first([4, 5])`, `4`},
		{`last("héllo")`, `"o"`},
		{`first([])`, `None`},
		{`last("")`, `None`},
		{`contains([1, 2], 2)`, `True`},
		{`contains("flux", "lu")`, `True`},
		{`contains({"k": 1}, "v")`, `False`},
		{`index([5, 6, 7], 7)`, `2`},
		{`index([5, 6, 7], 9)`, `-1`},
		{`index("héllo", "l")`, `2`},
		{`count([1, 2, 1], 1)`, `2`},
		{`count("banana", "an")`, `2`},
		{`count("ab", "")`, `3`},
		{`clear([1, 2])`, `[]`},
		{`clear({"a": 1})`, `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			if got := evalExpr(t, e, tc.expr).String(); got != tc.want {
				t.Fatalf("%s = %s, want %s", tc.expr, got, tc.want)
			}
		})
	}
}

func TestCollectionCapabilityErrors(t *testing.T) {
	e := newTestEngine(t, Config{})
	cases := []struct {
		expr string
		kind Kind
	}{
		{`len(1)`, KindType},
		{`pop([])`, KindIndex},
		{`pop([1], 5)`, KindIndex},
		{`sort([1, "a"])`, KindType},
		{`sorted([1], key=1)`, KindType},
		{`range(1, 2, 0)`, KindValue},
		{`range(0, 1 << 30)`, KindValue},
		{`map(1, [1])`, KindType},
		{`reduce(max, [])`, KindType},
		{`flatten([1])`, KindType},
		{`first(1)`, KindType},
		{`clear("abc")`, KindType},
		{`unique([[1]])`, KindType},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			requireKind(t, evalError(t, e, tc.expr), tc.kind)
		})
	}
}

func TestMutatingCapabilitiesKeepIdentity(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, `
let xs = [3, 1, 2]
let alias = xs

fn main():
    sort(xs)
    append(xs, 4)
    pop(xs, 0)
    reverse(xs)
    return [alias, xs == alias]
`)
	assert.Equal(t, "[[4, 3, 2], True]", result.Value.String())
}

func TestCopyIsDeep(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, `
let inner = [1]
let original = {"a": inner, "b": (inner, set([1])), "c": inner}

fn main():
    let dup = copy(original)
    dup["a"].append(2)
    return [original["a"], dup["a"], dup["c"], dup["b"][0]]
`)
	assert.Equal(t, "[[1], [1, 2], [1, 2], [1, 2]]", result.Value.String())
}

func TestCopyHandlesCycles(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, `
let loop = [1]
loop.append(loop)

fn main():
    let dup = copy(loop)
    dup.append(3)
    return [len(dup[1]), len(loop)]
`)
	assert.Equal(t, "[3, 2]", result.Value.String())
}
