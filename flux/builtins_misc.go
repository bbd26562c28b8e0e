package flux

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

func registerMisc(b *registryBuilder) {
	b.add("echo", "x", EffectIO, "Prints x and returns it.", builtinEcho)
	b.add("noop", "*args, **kwargs", EffectPure, "Ignores its arguments and returns None.", builtinNoop)
	b.add("identity", "x", EffectPure, "Returns x.", builtinIdentity)
	b.add("clamp", "x, a, b", EffectPure, "x limited to the range [a, b].", builtinClamp)
	b.add("retry", `fn, tries=3, delay=0.1, exceptions=("Exception",)`, EffectBlocks,
		"Calls fn up to tries times, sleeping delay seconds after each retried failure whose kind matches exceptions.", builtinRetry)
	b.add("chunked_iterable", "it, chunk_size", EffectPure, "Single-pass lazy iterable of lists of at most chunk_size elements.", builtinChunkedIterable)
	b.add("raise_error", `kind, message=""`, EffectPure, "Fails with an error of the named kind.", builtinRaiseError)
}

func builtinEcho(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintln(runtimeOf(thread).engine.stdout, displayString(x)); err != nil {
		return nil, osError(err)
	}
	return x, nil
}

func builtinNoop(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return starlark.None, nil
}

func builtinIdentity(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	return x, nil
}

func builtinClamp(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, lo, hi starlark.Value
	if err := unpackPositional(fn, args, kwargs, 3, &x, &lo, &hi); err != nil {
		return nil, err
	}
	out := x
	above, err := starlark.Compare(syntax.GT, out, hi)
	if err != nil {
		return nil, hostError(KindType, err)
	}
	if above {
		out = hi
	}
	below, err := starlark.Compare(syntax.LT, out, lo)
	if err != nil {
		return nil, hostError(KindType, err)
	}
	if below {
		out = lo
	}
	return out, nil
}

// kindsArg accepts one kind name or a tuple or list of them.
func kindsArg(name string, v starlark.Value) ([]Kind, error) {
	if s, ok := starlark.AsString(v); ok {
		return []Kind{Kind(s)}, nil
	}
	var items []starlark.Value
	switch c := v.(type) {
	case starlark.Tuple:
		items = c
	case *starlark.List:
		items = listElements(c)
	default:
		return nil, newError(KindType, "%s: exceptions must be a kind name or a tuple of them, got %s", name, v.Type())
	}
	kinds := make([]Kind, 0, len(items))
	for _, item := range items {
		s, ok := starlark.AsString(item)
		if !ok {
			return nil, newError(KindType, "%s: exception kinds are strings, got %s", name, item.Type())
		}
		kinds = append(kinds, Kind(s))
	}
	return kinds, nil
}

func builtinRetry(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var target starlark.Callable
	tries := DefaultRetryPolicy.Tries
	delay := number{value: starlark.Float(DefaultRetryPolicy.Delay.Seconds())}
	var exceptions starlark.Value = starlark.Tuple{starlark.String(KindException)}
	if err := unpack(fn, args, kwargs, "fn", &target, "tries?", &tries, "delay?", &delay, "exceptions?", &exceptions); err != nil {
		return nil, err
	}
	d, err := durationOf(fn.Name(), delay.float(), time.Second)
	if err != nil {
		return nil, err
	}
	kinds, err := kindsArg(fn.Name(), exceptions)
	if err != nil {
		return nil, err
	}
	e := runtimeOf(thread).engine
	policy := RetryPolicy{Tries: tries, Delay: d, Kinds: kinds}
	attempts := 0
	return Retry(policy, e.sleep, func() (starlark.Value, error) {
		attempts++
		out, err := starlark.Call(thread, target, nil, nil)
		if err != nil && attempts < tries && policy.retries(err) {
			e.logger.Sugar().Debugw("retrying after failure", "attempt", attempts, "kind", KindOf(err))
		}
		return out, err
	})
}

func builtinChunkedIterable(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var it starlark.Value
	var size int
	if err := unpack(fn, args, kwargs, "it", &it, "chunk_size", &size); err != nil {
		return nil, err
	}
	chunks, err := newChunkedIterable(it, size)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func builtinRaiseError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var kind, message string
	if err := unpack(fn, args, kwargs, "kind", &kind, "message?", &message); err != nil {
		return nil, err
	}
	if !isIdentifier(kind) {
		return nil, newError(KindValue, "raise_error: %q is not a valid kind name", kind)
	}
	return nil, &Error{Kind: Kind(kind), Message: message}
}
