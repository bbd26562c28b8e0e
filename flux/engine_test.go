package flux

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestRunReturnsEntryPointValue(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, "fn main():\n    return sqrt(16)\n")

	require.True(t, result.Returned)
	assert.Equal(t, starlark.Float(4), result.Value)
	assert.Equal(t, "4.0", result.String())
}

func TestRunWithoutEntryPointHasNoResult(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, "let x = 1\nprint(x)\n")

	assert.False(t, result.Returned)
	assert.Nil(t, result.Value)
	assert.Equal(t, "", result.String())
	assert.Equal(t, "1\n", e.stdout.String())
}

func TestRunNonCallableEntryPointHasNoResult(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, "let main = 42\n")
	assert.False(t, result.Returned)
}

func TestRunFalsyReturnStillReturned(t *testing.T) {
	e := newTestEngine(t, Config{})
	for _, expr := range []string{"None", "0", `""`, "False", "[]"} {
		result := mustRun(t, e, "fn main():\n    return "+expr+"\n")
		assert.Truef(t, result.Returned, "main returning %s must count as a result", expr)
	}
}

func TestRunShadowsCapability(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, `
let sum = 10
fn main():
    return sum
`)
	assert.Equal(t, starlark.MakeInt(10).String(), result.Value.String())
}

func TestRunShadowsCapabilityAndCallsIt(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, `
let sum = lambda xs: 42
fn main():
    return sum([1])
`)
	assert.Equal(t, "42", result.String())
}

func TestRunShadowingIsDynamic(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, `
fn total(xs):
    return sum(xs)

let a = total([1, 2])

fn sum(xs):
    return 99

fn main():
    return [a, total([1, 2])]
`)
	assert.Equal(t, "[3, 99]", result.String())
}

func TestRunShadowsCapabilityWithFunction(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, `
fn upper(s):
    return "custom:" + s

fn main():
    return upper("x")
`)
	assert.Equal(t, "custom:x", result.String())
}

func TestExecuteWritesBindingsIntoNamespace(t *testing.T) {
	e := newTestEngine(t, Config{})
	ns := e.NewNamespace()
	prog := Rewrite(NewSource("bind.flux", "let answer = 42\nfn helper():\n    return answer\n"))

	result, err := e.Execute(context.Background(), prog, ns)
	require.NoError(t, err)
	assert.False(t, result.Returned)

	v, ok := ns.Lookup("answer")
	require.True(t, ok)
	assert.Equal(t, "42", v.String())
	_, ok = ns.Lookup("helper")
	assert.True(t, ok)
}

func TestExecuteKeepsPartialBindingsOnFailure(t *testing.T) {
	e := newTestEngine(t, Config{})
	ns := e.NewNamespace()
	prog := Rewrite(NewSource("partial.flux", "let before = 1\nraise_error(\"ValueError\", \"boom\")\nlet after = 2\n"))

	_, err := e.Execute(context.Background(), prog, ns)
	require.Error(t, err)
	requireKind(t, err, KindValue)

	_, ok := ns.Lookup("before")
	assert.True(t, ok, "binding made before the failure should survive")
	_, ok = ns.Lookup("after")
	assert.False(t, ok)
}

func TestExecuteReturnsHostErrorsUnwrapped(t *testing.T) {
	e := newTestEngine(t, Config{})

	_, err := runText(t, e, "fn main(:\n")
	require.Error(t, err)
	var fluxErr *Error
	assert.False(t, errors.As(err, &fluxErr), "syntax errors come from the host as-is")

	_, err = runText(t, e, "fn main():\n    return undefined_name\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined_name")
}

func TestEntryPointErrorPropagates(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := runText(t, e, "fn main():\n    return sqrt(-1)\n")
	require.Error(t, err)

	var evalErr *starlark.EvalError
	require.True(t, errors.As(err, &evalErr))
	requireKind(t, err, KindValue)
}

func TestCustomEntryPoint(t *testing.T) {
	e := newTestEngine(t, Config{EntryPoint: "start"})
	result := mustRun(t, e, "fn main():\n    return 1\nfn start():\n    return 2\n")
	assert.Equal(t, "2", result.String())
}

func TestNewEngineValidatesConfig(t *testing.T) {
	_, err := NewEngine(Config{EntryPoint: "not valid"})
	assert.Error(t, err)
	_, err = NewEngine(Config{AggregateName: "1std"})
	assert.Error(t, err)
	_, err = NewEngine(Config{Markers: Markers{Function: "fn"}})
	assert.Error(t, err)
}

func TestPermissiveHostOptions(t *testing.T) {
	e := newTestEngine(t, Config{})
	result := mustRun(t, e, `
let total = 0
for i in range(4):
    total += i
let n = 0
while n < 3:
    n += 1
let total = total + n

fn fact(k):
    if k <= 1:
        return 1
    return k * fact(k - 1)

fn main():
    return [total, fact(5), sorted(set([3, 1, 3]))]
`)
	assert.Equal(t, "[9, 120, [1, 3]]", result.Value.String())
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.flux")
	require.NoError(t, os.WriteFile(path, []byte("\ufefffn main():\n\treturn upper(\"hi\")\n"), 0o644))

	e := newTestEngine(t, Config{})
	result, err := e.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "HI", result.String())
}

func TestRunFileMissing(t *testing.T) {
	e := newTestEngine(t, Config{})
	path := filepath.Join(t.TempDir(), "nope.flux")

	_, err := e.RunFile(context.Background(), path)
	require.Error(t, err)
	requireKind(t, err, KindFileNotFound)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.True(t, strings.Contains(err.Error(), "flux file not found: "+path))
}

func TestConfigSummary(t *testing.T) {
	e := newTestEngine(t, Config{})
	summary := e.ConfigSummary()
	assert.Contains(t, summary, "entry=main")
	assert.Contains(t, summary, "aggregate=std")
	assert.Contains(t, summary, "markers=fn/def/let")
}
