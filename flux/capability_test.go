package flux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdlibNamesEveryCapability(t *testing.T) {
	reg := Stdlib()
	want := []string{
		"sqrt", "pow", "abs", "floor", "ceil", "round", "log", "exp", "sin", "cos", "tan",
		"factorial", "gcd", "lcm", "deg", "rad", "isclose", "max", "min", "sum",
		"mean", "median", "variance",
		"str", "upper", "lower", "strip", "lstrip", "rstrip", "replace", "split", "join",
		"startswith", "endswith", "find", "format", "capitalize", "title", "substring",
		"len", "list", "dict", "append", "pop", "sort", "sorted", "reverse", "range",
		"map", "filter", "reduce", "zip", "enumerate", "unique", "flatten", "chunk",
		"first", "last", "contains", "index", "count", "clear", "copy", "push", "pop_front",
		"print", "input", "read_file", "write_file", "append_file", "exists", "cwd",
		"listdir", "mkdir", "remove", "rename", "stat",
		"time_now", "sleep", "sleep_ms", "random", "randint", "choice", "shuffle", "uuid4",
		"json_dumps", "json_loads", "http_get", "http_post", "url_encode", "url_decode",
		"spawn_thread", "run_in_thread", "join_thread", "lock", "Event",
		"echo", "noop", "identity", "clamp", "retry", "chunked_iterable", "raise_error",
	}
	for _, name := range want {
		c, ok := reg.Lookup(name)
		if assert.Truef(t, ok, "missing capability %s", name) {
			assert.Equal(t, name, c.Value().Name())
			assert.NotEmpty(t, c.Doc)
			assert.NotEmpty(t, c.Family)
		}
	}
	assert.Equal(t, len(want), reg.Len())
	assert.IsIncreasing(t, reg.Names())
}

func TestStdlibIsShared(t *testing.T) {
	assert.Same(t, Stdlib(), Stdlib())
	a, _ := Stdlib().Lookup("sqrt")
	b, _ := Stdlib().Lookup("sqrt")
	assert.Same(t, a.Value(), b.Value())
}

func TestCapabilityEffects(t *testing.T) {
	reg := Stdlib()
	cases := map[string]string{
		"sqrt":         "pure",
		"sort":         "mutates-argument",
		"read_file":    "performs-io",
		"sleep":        "blocks",
		"input":        "performs-io,blocks",
		"shuffle":      "mutates-argument,performs-io",
		"spawn_thread": "spawns-concurrency",
	}
	for name, want := range cases {
		c, ok := reg.Lookup(name)
		require.True(t, ok)
		assert.Equalf(t, want, c.Effects.String(), "effects of %s", name)
	}
	assert.True(t, (EffectIO | EffectBlocks).Has(EffectIO))
	assert.False(t, EffectIO.Has(EffectBlocks))
	assert.True(t, EffectPure.Pure())
}

func TestCapabilitySignature(t *testing.T) {
	c, ok := Stdlib().Lookup("round")
	require.True(t, ok)
	assert.Equal(t, "round(x, n=0)", c.Signature())
	assert.Equal(t, "math", c.Family)
}

func TestDuplicateCapabilityPanics(t *testing.T) {
	b := &registryBuilder{byName: make(map[string]*Capability)}
	b.add("twice", "", EffectPure, "", builtinNoop)
	assert.Panics(t, func() {
		b.add("twice", "", EffectPure, "", builtinNoop)
	})
}
