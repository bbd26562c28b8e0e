package flux

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.starlark.net/starlark"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func registerStrings(b *registryBuilder) {
	b.add("str", `x=""`, EffectPure, "Display form of x; strings are returned unchanged.", builtinStr)
	b.add("upper", "s", EffectPure, "Upper-cased text of s.", caseMapper(func() cases.Caser { return cases.Upper(language.Und) }))
	b.add("lower", "s", EffectPure, "Lower-cased text of s.", caseMapper(func() cases.Caser { return cases.Lower(language.Und) }))
	b.add("strip", "s", EffectPure, "s without leading and trailing whitespace.", trimmer(strings.TrimSpace))
	b.add("lstrip", "s", EffectPure, "s without leading whitespace.", trimmer(func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }))
	b.add("rstrip", "s", EffectPure, "s without trailing whitespace.", trimmer(func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }))
	b.add("replace", "s, old, new, count=-1", EffectPure, "s with old replaced by new, at most count times when count is not -1.", builtinReplace)
	b.add("split", "s, sep=None, maxsplit=-1", EffectPure, "Pieces of s split on sep, or on whitespace runs when sep is None.", builtinSplit)
	b.add("join", "sep, seq", EffectPure, "Display forms of seq joined with sep.", builtinJoin)
	b.add("startswith", "s, prefix", EffectPure, "Whether s starts with prefix, or with any prefix of a tuple.", affixTest(strings.HasPrefix))
	b.add("endswith", "s, suffix", EffectPure, "Whether s ends with suffix, or with any suffix of a tuple.", affixTest(strings.HasSuffix))
	b.add("find", "s, sub", EffectPure, "Character index of the first sub in s, or -1.", builtinFind)
	b.add("format", "s, *args, **kwargs", EffectPure, "s with {} fields substituted.", builtinFormat)
	b.add("capitalize", "s", EffectPure, "s with its first character upper-cased and the rest lower-cased.", builtinCapitalize)
	b.add("title", "s", EffectPure, "s with every word capitalized.", builtinTitle)
	b.add("substring", "s, start, end=None", EffectPure, "Characters of s from start up to end; negative positions count from the end.", builtinSubstring)
}

// textArg unpacks a single argument of any type and returns its display form.
func textArg(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (string, error) {
	var v starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &v); err != nil {
		return "", err
	}
	return displayString(v), nil
}

func builtinStr(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value = starlark.String("")
	if err := unpackPositional(fn, args, kwargs, 0, &v); err != nil {
		return nil, err
	}
	return starlark.String(displayString(v)), nil
}

// caseMapper builds a fresh Caser per call; Casers keep state between
// transforms and cannot be shared.
func caseMapper(newCaser func() cases.Caser) BuiltinFunc {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		s, err := textArg(fn, args, kwargs)
		if err != nil {
			return nil, err
		}
		return starlark.String(newCaser().String(s)), nil
	}
}

func trimmer(trim func(string) string) BuiltinFunc {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		s, err := textArg(fn, args, kwargs)
		if err != nil {
			return nil, err
		}
		return starlark.String(trim(s)), nil
	}
}

func builtinReplace(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s starlark.Value
	var old, repl string
	count := -1
	if err := unpack(fn, args, kwargs, "s", &s, "old", &old, "new", &repl, "count?", &count); err != nil {
		return nil, err
	}
	if count < 0 {
		count = -1
	}
	return starlark.String(strings.Replace(displayString(s), old, repl, count)), nil
}

func builtinSplit(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s starlark.Value
	var sep starlark.Value = starlark.None
	maxsplit := -1
	if err := unpack(fn, args, kwargs, "s", &s, "sep?", &sep, "maxsplit?", &maxsplit); err != nil {
		return nil, err
	}
	text := displayString(s)
	var parts []string
	if sep == starlark.None {
		parts = splitWhitespace(text, maxsplit)
	} else {
		delim, ok := starlark.AsString(sep)
		if !ok {
			return nil, newError(KindType, "split: sep must be a string or None, got %s", sep.Type())
		}
		if delim == "" {
			return nil, newError(KindValue, "empty separator")
		}
		if maxsplit < 0 {
			parts = strings.Split(text, delim)
		} else {
			parts = strings.SplitN(text, delim, maxsplit+1)
		}
	}
	return stringList(parts), nil
}

// splitWhitespace splits on runs of whitespace, discarding empty pieces. With
// a non-negative maxsplit the remainder after that many splits is kept whole,
// minus its leading whitespace.
func splitWhitespace(s string, maxsplit int) []string {
	if maxsplit < 0 {
		return strings.Fields(s)
	}
	var parts []string
	rest := strings.TrimLeftFunc(s, unicode.IsSpace)
	for rest != "" && len(parts) < maxsplit {
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			break
		}
		parts = append(parts, rest[:end])
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}
	if rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

func stringList(parts []string) *starlark.List {
	elems := make([]starlark.Value, len(parts))
	for i, p := range parts {
		elems[i] = starlark.String(p)
	}
	return starlark.NewList(elems)
}

func builtinJoin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var sep, seq starlark.Value
	if err := unpackPositional(fn, args, kwargs, 2, &sep, &seq); err != nil {
		return nil, err
	}
	elems, err := elements(fn.Name(), seq)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(elems))
	for i, v := range elems {
		parts[i] = displayString(v)
	}
	return starlark.String(strings.Join(parts, displayString(sep))), nil
}

func affixTest(test func(s, affix string) bool) BuiltinFunc {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s, affix starlark.Value
		if err := unpackPositional(fn, args, kwargs, 2, &s, &affix); err != nil {
			return nil, err
		}
		text := displayString(s)
		if tuple, ok := affix.(starlark.Tuple); ok {
			for _, item := range tuple {
				candidate, ok := starlark.AsString(item)
				if !ok {
					return nil, newError(KindType, "%s: tuple elements must be strings, got %s", fn.Name(), item.Type())
				}
				if test(text, candidate) {
					return starlark.True, nil
				}
			}
			return starlark.False, nil
		}
		candidate, ok := starlark.AsString(affix)
		if !ok {
			return nil, newError(KindType, "%s: got %s, want string or tuple", fn.Name(), affix.Type())
		}
		return starlark.Bool(test(text, candidate)), nil
	}
}

func builtinFind(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s starlark.Value
	var sub string
	if err := unpackPositional(fn, args, kwargs, 2, &s, &sub); err != nil {
		return nil, err
	}
	text := displayString(s)
	i := strings.Index(text, sub)
	if i < 0 {
		return starlark.MakeInt(-1), nil
	}
	return starlark.MakeInt(utf8.RuneCountInString(text[:i])), nil
}

func builtinFormat(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return nil, newError(KindType, "format expects a format string")
	}
	method, err := starlark.String(displayString(args[0])).Attr("format")
	if err != nil {
		return nil, err
	}
	out, err := starlark.Call(thread, method, args[1:], kwargs)
	if err != nil {
		return nil, &Error{Kind: KindValue, Message: err.Error(), Err: err}
	}
	return out, nil
}

func builtinCapitalize(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	s, err := textArg(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return starlark.String(""), nil
	}
	_, size := utf8.DecodeRuneInString(s)
	head := cases.Upper(language.Und).String(s[:size])
	tail := cases.Lower(language.Und).String(s[size:])
	return starlark.String(head + tail), nil
}

func builtinTitle(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	s, err := textArg(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.String(cases.Title(language.Und).String(s)), nil
}

func builtinSubstring(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s starlark.Value
	var start int
	var end starlark.Value = starlark.None
	if err := unpack(fn, args, kwargs, "s", &s, "start", &start, "end?", &end); err != nil {
		return nil, err
	}
	runes := []rune(displayString(s))
	stop := len(runes)
	if end != starlark.None {
		n, err := toInt(fn.Name(), end)
		if err != nil {
			return nil, err
		}
		stop = n
	}
	lo, hi := sliceBounds(start, stop, len(runes))
	return starlark.String(string(runes[lo:hi])), nil
}

// sliceBounds clamps [start:end) the way slicing does, with negative positions
// counted from the end.
func sliceBounds(start, end, n int) (int, int) {
	clamp := func(i int) int {
		if i < 0 {
			i += n
			if i < 0 {
				return 0
			}
		}
		if i > n {
			return n
		}
		return i
	}
	lo, hi := clamp(start), clamp(end)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
