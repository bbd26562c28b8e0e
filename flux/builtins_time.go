package flux

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.starlark.net/starlark"
)

func registerTime(b *registryBuilder) {
	b.add("time_now", "", EffectIO, "Seconds since the Unix epoch as a float.", builtinTimeNow)
	b.add("sleep", "seconds", EffectBlocks, "Suspends the caller for seconds.", sleeper(time.Second))
	b.add("sleep_ms", "ms", EffectBlocks, "Suspends the caller for ms milliseconds.", sleeper(time.Millisecond))
	b.add("random", "", EffectIO, "Uniform float in [0, 1).", builtinRandom)
	b.add("randint", "a, b", EffectIO, "Uniform int in [a, b].", builtinRandint)
	b.add("choice", "seq", EffectIO, "Uniformly chosen element of a non-empty sequence.", builtinChoice)
	b.add("shuffle", "seq", EffectIO|EffectMutatesArgument, "Shuffles a list in place and returns it.", builtinShuffle)
	b.add("uuid4", "", EffectIO, "Random UUID in canonical text form.", builtinUUID4)
}

func builtinTimeNow(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpackPositional(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.Float(float64(time.Now().UnixNano()) / 1e9), nil
}

func sleeper(unit time.Duration) BuiltinFunc {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var amount number
		if err := unpackPositional(fn, args, kwargs, 1, &amount); err != nil {
			return nil, err
		}
		d, err := durationOf(fn.Name(), amount.float(), unit)
		if err != nil {
			return nil, err
		}
		runtimeOf(thread).engine.sleep(d)
		return starlark.None, nil
	}
}

func builtinRandom(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpackPositional(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	var f float64
	runtimeOf(thread).engine.withRandom(func(r *rand.Rand) { f = r.Float64() })
	return starlark.Float(f), nil
}

func builtinRandint(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var a, b int64
	if err := unpackPositional(fn, args, kwargs, 2, &a, &b); err != nil {
		return nil, err
	}
	if a > b {
		return nil, newError(KindValue, "empty range for randint(%d, %d)", a, b)
	}
	span := uint64(b-a) + 1
	var n uint64
	runtimeOf(thread).engine.withRandom(func(r *rand.Rand) {
		if span == 0 {
			n = r.Uint64()
		} else {
			n = r.Uint64N(span)
		}
	})
	return starlark.MakeInt64(a + int64(n)), nil
}

func builtinChoice(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &seq); err != nil {
		return nil, err
	}
	elems, err := elements(fn.Name(), seq)
	if err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, newError(KindIndex, "cannot choose from an empty sequence")
	}
	var i int
	runtimeOf(thread).engine.withRandom(func(r *rand.Rand) { i = r.IntN(len(elems)) })
	return elems[i], nil
}

func builtinShuffle(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var lst *starlark.List
	if err := unpackPositional(fn, args, kwargs, 1, &lst); err != nil {
		return nil, err
	}
	elems := listElements(lst)
	runtimeOf(thread).engine.withRandom(func(r *rand.Rand) {
		r.Shuffle(len(elems), func(i, j int) { elems[i], elems[j] = elems[j], elems[i] })
	})
	if err := setContents(lst, elems); err != nil {
		return nil, err
	}
	return lst, nil
}

func builtinUUID4(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpackPositional(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, osError(err)
	}
	return starlark.String(id.String()), nil
}
