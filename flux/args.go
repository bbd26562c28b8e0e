package flux

import (
	"math"
	"time"

	"go.starlark.net/starlark"
)

// unpack is starlark.UnpackArgs with failures reported as TypeError.
func unpack(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, pairs ...any) error {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, pairs...); err != nil {
		return &Error{Kind: KindType, Message: err.Error(), Err: err}
	}
	return nil
}

// unpackPositional is starlark.UnpackPositionalArgs with failures reported as
// TypeError.
func unpackPositional(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, min int, vars ...any) error {
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, min, vars...); err != nil {
		return &Error{Kind: KindType, Message: err.Error(), Err: err}
	}
	return nil
}

// number accepts an int or a float argument.
type number struct {
	value starlark.Value
}

var _ starlark.Unpacker = (*number)(nil)

func (n *number) Unpack(v starlark.Value) error {
	switch v.(type) {
	case starlark.Int, starlark.Float:
		n.value = v
		return nil
	default:
		return newError(KindType, "got %s, want int or float", v.Type())
	}
}

func (n number) float() float64 {
	f, _ := starlark.AsFloat(n.value)
	return f
}

func (n number) isInt() bool {
	_, ok := n.value.(starlark.Int)
	return ok
}

func toFloat(name string, v starlark.Value) (float64, error) {
	f, ok := starlark.AsFloat(v)
	if !ok {
		return 0, newError(KindType, "%s: got %s, want int or float", name, v.Type())
	}
	return f, nil
}

func toInt(name string, v starlark.Value) (int, error) {
	i, err := starlark.AsInt32(v)
	if err != nil {
		return 0, &Error{Kind: KindType, Message: name + ": " + err.Error(), Err: err}
	}
	return i, nil
}

// elements collects the items of an iterable argument. Strings iterate over
// their characters.
func elements(name string, v starlark.Value) ([]starlark.Value, error) {
	if s, ok := v.(starlark.String); ok {
		out := make([]starlark.Value, 0, len(s))
		for _, r := range string(s) {
			out = append(out, starlark.String(string(r)))
		}
		return out, nil
	}
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, newError(KindType, "%s: '%s' object is not iterable", name, v.Type())
	}
	var out []starlark.Value
	if seq, ok := v.(starlark.Sequence); ok {
		out = make([]starlark.Value, 0, seq.Len())
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		out = append(out, x)
	}
	return out, nil
}

// displayString renders v the way print shows it: strings without quotes,
// everything else in its host representation.
func displayString(v starlark.Value) string {
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}

// truth reports the truthiness of v.
func truth(v starlark.Value) bool {
	return bool(v.Truth())
}

// durationOf converts an amount of unit to a time.Duration, rejecting
// negative, non-finite and overflowing values.
func durationOf(name string, amount float64, unit time.Duration) (time.Duration, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, newError(KindValue, "%s: duration must be finite", name)
	}
	if amount < 0 {
		return 0, newError(KindValue, "%s: duration must be non-negative", name)
	}
	d := amount * float64(unit)
	if d >= math.MaxInt64 {
		return 0, newError(KindValue, "%s: duration %g is too large", name, amount)
	}
	return time.Duration(d), nil
}
