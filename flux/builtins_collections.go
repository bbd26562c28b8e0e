package flux

import (
	"slices"
	"strings"
	"unicode/utf8"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

func registerCollections(b *registryBuilder) {
	b.add("len", "x", EffectPure, "Number of elements; characters for strings.", builtinLen)
	b.add("list", "x=()", EffectPure, "New list of the elements of x.", builtinList)
	b.add("dict", "pairs=None", EffectPure, "New dict from a mapping or from key/value pairs.", builtinDict)
	b.add("append", "lst, x", EffectMutatesArgument, "Appends x to lst and returns lst.", builtinAppend)
	b.add("pop", "lst, idx=-1", EffectMutatesArgument, "Removes and returns the element at idx.", builtinPop)
	b.add("sort", "lst, key=None, reverse=False", EffectMutatesArgument, "Sorts lst in place and returns it.", builtinSort)
	b.add("sorted", "iterable, key=None, reverse=False", EffectPure, "New sorted list of the elements.", builtinSorted)
	b.add("reverse", "lst", EffectMutatesArgument, "Reverses lst in place and returns it.", builtinReverse)
	b.add("range", "a, b=None, step=1", EffectPure, "List of ints from 0 to a, or from a to b by step.", builtinRange)
	b.add("map", "fn, iterable", EffectPure, "List of fn applied to each element.", builtinMap)
	b.add("filter", "fn, iterable", EffectPure, "List of the elements for which fn is truthy; None keeps truthy elements.", builtinFilter)
	b.add("reduce", "fn, iterable, initial=None", EffectPure, "Left fold of iterable with fn.", builtinReduce)
	b.add("zip", "*iterables", EffectPure, "List of tuples pairing elements up to the shortest input.", builtinZip)
	b.add("enumerate", "iterable, start=0", EffectPure, "List of (index, element) tuples.", builtinEnumerate)
	b.add("unique", "seq", EffectPure, "Elements in first-seen order without duplicates.", builtinUnique)
	b.add("flatten", "list_of_lists", EffectPure, "Concatenation of the inner iterables.", builtinFlatten)
	b.add("chunk", "lst, n", EffectPure, "Consecutive slices of at most n elements.", builtinChunk)
	b.add("first", "xs", EffectPure, "First element, or None when empty.", edgeElement(true))
	b.add("last", "xs", EffectPure, "Last element, or None when empty.", edgeElement(false))
	b.add("contains", "seq, x", EffectPure, "Whether x is in seq.", builtinContains)
	b.add("index", "seq, x", EffectPure, "Position of x in seq, or -1.", builtinIndex)
	b.add("count", "seq, x", EffectPure, "Occurrences of x in seq.", builtinCount)
	b.add("clear", "seq", EffectMutatesArgument, "Empties a list or dict and returns it.", builtinClear)
	b.add("copy", "seq", EffectPure, "Deep copy of nested lists, dicts, tuples and sets.", builtinCopy)
	b.add("push", "lst, x", EffectMutatesArgument, "Appends x to lst and returns lst.", builtinAppend)
	b.add("pop_front", "lst", EffectMutatesArgument, "Removes and returns the first element, or None when empty.", builtinPopFront)
}

// setContents replaces the elements of l, keeping its identity.
func setContents(l *starlark.List, elems []starlark.Value) error {
	if err := l.Clear(); err != nil {
		return hostError(KindType, err)
	}
	for _, v := range elems {
		if err := l.Append(v); err != nil {
			return hostError(KindType, err)
		}
	}
	return nil
}

func listElements(l *starlark.List) []starlark.Value {
	out := make([]starlark.Value, l.Len())
	for i := range out {
		out[i] = l.Index(i)
	}
	return out
}

func builtinLen(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	if s, ok := x.(starlark.String); ok {
		return starlark.MakeInt(utf8.RuneCountInString(string(s))), nil
	}
	n := starlark.Len(x)
	if n < 0 {
		return nil, newError(KindType, "object of type '%s' has no len()", x.Type())
	}
	return starlark.MakeInt(n), nil
}

func builtinList(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value = starlark.Tuple{}
	if err := unpackPositional(fn, args, kwargs, 0, &x); err != nil {
		return nil, err
	}
	elems, err := elements(fn.Name(), x)
	if err != nil {
		return nil, err
	}
	return starlark.NewList(elems), nil
}

func builtinDict(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pairs starlark.Value = starlark.None
	if err := unpackPositional(fn, args, kwargs, 0, &pairs); err != nil {
		return nil, err
	}
	if pairs == starlark.None {
		return starlark.NewDict(0), nil
	}
	out, err := starlark.Call(thread, starlark.Universe["dict"], starlark.Tuple{pairs}, nil)
	if err != nil {
		return nil, hostError(KindType, err)
	}
	return out, nil
}

func builtinAppend(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var lst *starlark.List
	var x starlark.Value
	if err := unpackPositional(fn, args, kwargs, 2, &lst, &x); err != nil {
		return nil, err
	}
	if err := lst.Append(x); err != nil {
		return nil, hostError(KindType, err)
	}
	return lst, nil
}

// removeAt deletes the element at i (already normalised) and returns it.
func removeAt(l *starlark.List, i int) (starlark.Value, error) {
	elems := listElements(l)
	removed := elems[i]
	if err := setContents(l, slices.Delete(elems, i, i+1)); err != nil {
		return nil, err
	}
	return removed, nil
}

func builtinPop(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var lst *starlark.List
	idx := -1
	if err := unpackPositional(fn, args, kwargs, 1, &lst, &idx); err != nil {
		return nil, err
	}
	n := lst.Len()
	if n == 0 {
		return nil, newError(KindIndex, "pop from empty list")
	}
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return nil, newError(KindIndex, "pop index out of range")
	}
	return removeAt(lst, idx)
}

func builtinPopFront(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var lst *starlark.List
	if err := unpackPositional(fn, args, kwargs, 1, &lst); err != nil {
		return nil, err
	}
	if lst.Len() == 0 {
		return starlark.None, nil
	}
	return removeAt(lst, 0)
}

// sortElements orders elems stably by key(elem), or by the elements
// themselves when key is None. reverse flips the comparison, so equal
// elements keep their relative order.
func sortElements(thread *starlark.Thread, elems []starlark.Value, key starlark.Value, reverse bool) ([]starlark.Value, error) {
	keys := elems
	if key != starlark.None {
		keyFn, ok := key.(starlark.Callable)
		if !ok {
			return nil, newError(KindType, "sort key must be callable, got %s", key.Type())
		}
		keys = make([]starlark.Value, len(elems))
		for i, v := range elems {
			k, err := starlark.Call(thread, keyFn, starlark.Tuple{v}, nil)
			if err != nil {
				return nil, err
			}
			keys[i] = k
		}
	}
	order := make([]int, len(elems))
	for i := range order {
		order[i] = i
	}
	var cmpErr error
	slices.SortStableFunc(order, func(a, b int) int {
		if cmpErr != nil {
			return 0
		}
		c, err := compareValues(keys[a], keys[b])
		if err != nil {
			cmpErr = err
			return 0
		}
		if reverse {
			return -c
		}
		return c
	})
	if cmpErr != nil {
		return nil, cmpErr
	}
	out := make([]starlark.Value, len(elems))
	for i, j := range order {
		out[i] = elems[j]
	}
	return out, nil
}

func compareValues(a, b starlark.Value) (int, error) {
	less, err := starlark.Compare(syntax.LT, a, b)
	if err != nil {
		return 0, hostError(KindType, err)
	}
	if less {
		return -1, nil
	}
	greater, err := starlark.Compare(syntax.GT, a, b)
	if err != nil {
		return 0, hostError(KindType, err)
	}
	if greater {
		return 1, nil
	}
	return 0, nil
}

func builtinSort(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var lst *starlark.List
	var key starlark.Value = starlark.None
	reverse := false
	if err := unpack(fn, args, kwargs, "lst", &lst, "key?", &key, "reverse?", &reverse); err != nil {
		return nil, err
	}
	sorted, err := sortElements(thread, listElements(lst), key, reverse)
	if err != nil {
		return nil, err
	}
	if err := setContents(lst, sorted); err != nil {
		return nil, err
	}
	return lst, nil
}

func builtinSorted(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Value
	var key starlark.Value = starlark.None
	reverse := false
	if err := unpack(fn, args, kwargs, "iterable", &iterable, "key?", &key, "reverse?", &reverse); err != nil {
		return nil, err
	}
	elems, err := elements(fn.Name(), iterable)
	if err != nil {
		return nil, err
	}
	sorted, err := sortElements(thread, elems, key, reverse)
	if err != nil {
		return nil, err
	}
	return starlark.NewList(sorted), nil
}

func builtinReverse(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var lst *starlark.List
	if err := unpackPositional(fn, args, kwargs, 1, &lst); err != nil {
		return nil, err
	}
	elems := listElements(lst)
	slices.Reverse(elems)
	if err := setContents(lst, elems); err != nil {
		return nil, err
	}
	return lst, nil
}

// maxRangeLen bounds the lists range materialises.
const maxRangeLen = 1 << 26

func builtinRange(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var a int
	var b starlark.Value = starlark.None
	step := 1
	if err := unpackPositional(fn, args, kwargs, 1, &a, &b, &step); err != nil {
		return nil, err
	}
	start, stop := 0, a
	if b != starlark.None {
		n, err := toInt(fn.Name(), b)
		if err != nil {
			return nil, err
		}
		start, stop = a, n
	}
	if step == 0 {
		return nil, newError(KindValue, "range() arg 3 must not be zero")
	}
	var n int
	switch {
	case step > 0 && stop > start:
		n = (stop - start + step - 1) / step
	case step < 0 && stop < start:
		n = (start - stop - step - 1) / -step
	}
	if n > maxRangeLen {
		return nil, newError(KindValue, "range() of %d elements is too large", n)
	}
	elems := make([]starlark.Value, n)
	for i := range elems {
		elems[i] = starlark.MakeInt(start + i*step)
	}
	return starlark.NewList(elems), nil
}

func callableArg(name string, v starlark.Value) (starlark.Callable, error) {
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, newError(KindType, "%s: '%s' object is not callable", name, v.Type())
	}
	return fn, nil
}

func builtinMap(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var f, iterable starlark.Value
	if err := unpackPositional(fn, args, kwargs, 2, &f, &iterable); err != nil {
		return nil, err
	}
	call, err := callableArg(fn.Name(), f)
	if err != nil {
		return nil, err
	}
	elems, err := elements(fn.Name(), iterable)
	if err != nil {
		return nil, err
	}
	out := make([]starlark.Value, len(elems))
	for i, v := range elems {
		if out[i], err = starlark.Call(thread, call, starlark.Tuple{v}, nil); err != nil {
			return nil, err
		}
	}
	return starlark.NewList(out), nil
}

func builtinFilter(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var f, iterable starlark.Value
	if err := unpackPositional(fn, args, kwargs, 2, &f, &iterable); err != nil {
		return nil, err
	}
	elems, err := elements(fn.Name(), iterable)
	if err != nil {
		return nil, err
	}
	var call starlark.Callable
	if f != starlark.None {
		if call, err = callableArg(fn.Name(), f); err != nil {
			return nil, err
		}
	}
	out := make([]starlark.Value, 0, len(elems))
	for _, v := range elems {
		keep := v
		if call != nil {
			if keep, err = starlark.Call(thread, call, starlark.Tuple{v}, nil); err != nil {
				return nil, err
			}
		}
		if truth(keep) {
			out = append(out, v)
		}
	}
	return starlark.NewList(out), nil
}

func builtinReduce(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var f, iterable starlark.Value
	var initial starlark.Value = starlark.None
	if err := unpackPositional(fn, args, kwargs, 2, &f, &iterable, &initial); err != nil {
		return nil, err
	}
	call, err := callableArg(fn.Name(), f)
	if err != nil {
		return nil, err
	}
	elems, err := elements(fn.Name(), iterable)
	if err != nil {
		return nil, err
	}
	acc := initial
	if initial == starlark.None {
		if len(elems) == 0 {
			return nil, newError(KindType, "reduce() of empty iterable with no initial value")
		}
		acc, elems = elems[0], elems[1:]
	}
	for _, v := range elems {
		if acc, err = starlark.Call(thread, call, starlark.Tuple{acc, v}, nil); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func builtinZip(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, newError(KindType, "zip: unexpected keyword arguments")
	}
	columns := make([][]starlark.Value, len(args))
	shortest := -1
	for i, arg := range args {
		elems, err := elements(fn.Name(), arg)
		if err != nil {
			return nil, err
		}
		columns[i] = elems
		if shortest < 0 || len(elems) < shortest {
			shortest = len(elems)
		}
	}
	rows := make([]starlark.Value, max(shortest, 0))
	for r := range rows {
		row := make(starlark.Tuple, len(columns))
		for c := range columns {
			row[c] = columns[c][r]
		}
		rows[r] = row
	}
	return starlark.NewList(rows), nil
}

func builtinEnumerate(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Value
	start := 0
	if err := unpack(fn, args, kwargs, "iterable", &iterable, "start?", &start); err != nil {
		return nil, err
	}
	elems, err := elements(fn.Name(), iterable)
	if err != nil {
		return nil, err
	}
	out := make([]starlark.Value, len(elems))
	for i, v := range elems {
		out[i] = starlark.Tuple{starlark.MakeInt(start + i), v}
	}
	return starlark.NewList(out), nil
}

func builtinUnique(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &seq); err != nil {
		return nil, err
	}
	elems, err := elements(fn.Name(), seq)
	if err != nil {
		return nil, err
	}
	seen := starlark.NewSet(len(elems))
	out := make([]starlark.Value, 0, len(elems))
	for _, v := range elems {
		found, err := seen.Has(v)
		if err != nil {
			return nil, hostError(KindType, err)
		}
		if found {
			continue
		}
		if err := seen.Insert(v); err != nil {
			return nil, hostError(KindType, err)
		}
		out = append(out, v)
	}
	return starlark.NewList(out), nil
}

func builtinFlatten(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var outer starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &outer); err != nil {
		return nil, err
	}
	subs, err := elements(fn.Name(), outer)
	if err != nil {
		return nil, err
	}
	var out []starlark.Value
	for _, sub := range subs {
		elems, err := elements(fn.Name(), sub)
		if err != nil {
			return nil, err
		}
		out = append(out, elems...)
	}
	return starlark.NewList(out), nil
}

func builtinChunk(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq starlark.Value
	var n int
	if err := unpackPositional(fn, args, kwargs, 2, &seq, &n); err != nil {
		return nil, err
	}
	elems, err := elements(fn.Name(), seq)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return starlark.NewList([]starlark.Value{sameShape(seq, elems)}), nil
	}
	var chunks []starlark.Value
	for lo := 0; lo < len(elems); lo += n {
		chunks = append(chunks, sameShape(seq, elems[lo:min(lo+n, len(elems))]))
	}
	return starlark.NewList(chunks), nil
}

// sameShape rebuilds part as the kind of sequence seq is: a string, a tuple,
// or otherwise a list.
func sameShape(seq starlark.Value, part []starlark.Value) starlark.Value {
	switch seq.(type) {
	case starlark.String:
		var sb strings.Builder
		for _, v := range part {
			sb.WriteString(string(v.(starlark.String)))
		}
		return starlark.String(sb.String())
	case starlark.Tuple:
		return append(starlark.Tuple(nil), part...)
	default:
		return starlark.NewList(slices.Clone(part))
	}
}

func edgeElement(front bool) BuiltinFunc {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var xs starlark.Value
		if err := unpackPositional(fn, args, kwargs, 1, &xs); err != nil {
			return nil, err
		}
		if !truth(xs) {
			return starlark.None, nil
		}
		if s, ok := xs.(starlark.String); ok {
			runes := []rune(string(s))
			if front {
				return starlark.String(string(runes[0])), nil
			}
			return starlark.String(string(runes[len(runes)-1])), nil
		}
		indexable, ok := xs.(starlark.Indexable)
		if !ok {
			return nil, newError(KindType, "'%s' object is not subscriptable", xs.Type())
		}
		if indexable.Len() == 0 {
			return starlark.None, nil
		}
		if front {
			return indexable.Index(0), nil
		}
		return indexable.Index(indexable.Len() - 1), nil
	}
}

func builtinContains(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq, x starlark.Value
	if err := unpackPositional(fn, args, kwargs, 2, &seq, &x); err != nil {
		return nil, err
	}
	found, err := starlark.Binary(syntax.IN, x, seq)
	if err != nil {
		return nil, hostError(KindType, err)
	}
	return found, nil
}

func builtinIndex(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq, x starlark.Value
	if err := unpackPositional(fn, args, kwargs, 2, &seq, &x); err != nil {
		return nil, err
	}
	if s, ok := seq.(starlark.String); ok {
		sub, ok := starlark.AsString(x)
		if !ok {
			return nil, newError(KindType, "'in <string>' requires string as left operand, not %s", x.Type())
		}
		i := strings.Index(string(s), sub)
		if i < 0 {
			return starlark.MakeInt(-1), nil
		}
		return starlark.MakeInt(utf8.RuneCountInString(string(s)[:i])), nil
	}
	elems, err := elements(fn.Name(), seq)
	if err != nil {
		return nil, err
	}
	for i, v := range elems {
		eq, err := starlark.Equal(v, x)
		if err != nil {
			return nil, hostError(KindType, err)
		}
		if eq {
			return starlark.MakeInt(i), nil
		}
	}
	return starlark.MakeInt(-1), nil
}

func builtinCount(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq, x starlark.Value
	if err := unpackPositional(fn, args, kwargs, 2, &seq, &x); err != nil {
		return nil, err
	}
	if s, ok := seq.(starlark.String); ok {
		sub, ok := starlark.AsString(x)
		if !ok {
			return nil, newError(KindType, "must be str, not %s", x.Type())
		}
		if sub == "" {
			return starlark.MakeInt(utf8.RuneCountInString(string(s)) + 1), nil
		}
		return starlark.MakeInt(strings.Count(string(s), sub)), nil
	}
	elems, err := elements(fn.Name(), seq)
	if err != nil {
		return nil, err
	}
	n := 0
	for _, v := range elems {
		eq, err := starlark.Equal(v, x)
		if err != nil {
			return nil, hostError(KindType, err)
		}
		if eq {
			n++
		}
	}
	return starlark.MakeInt(n), nil
}

func builtinClear(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &seq); err != nil {
		return nil, err
	}
	var err error
	switch c := seq.(type) {
	case *starlark.List:
		err = c.Clear()
	case *starlark.Dict:
		err = c.Clear()
	case *starlark.Set:
		err = c.Clear()
	default:
		return nil, newError(KindType, "'%s' object cannot be cleared", seq.Type())
	}
	if err != nil {
		return nil, hostError(KindType, err)
	}
	return seq, nil
}

func builtinCopy(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq starlark.Value
	if err := unpackPositional(fn, args, kwargs, 1, &seq); err != nil {
		return nil, err
	}
	return deepCopy(seq, make(map[starlark.Value]starlark.Value))
}

// deepCopy copies containers recursively. memo maps already copied mutable
// containers to their copies so shared and cyclic references survive.
func deepCopy(v starlark.Value, memo map[starlark.Value]starlark.Value) (starlark.Value, error) {
	switch c := v.(type) {
	case *starlark.List:
		if done, ok := memo[c]; ok {
			return done, nil
		}
		out := starlark.NewList(nil)
		memo[c] = out
		for i := 0; i < c.Len(); i++ {
			elem, err := deepCopy(c.Index(i), memo)
			if err != nil {
				return nil, err
			}
			if err := out.Append(elem); err != nil {
				return nil, hostError(KindType, err)
			}
		}
		return out, nil
	case *starlark.Dict:
		if done, ok := memo[c]; ok {
			return done, nil
		}
		out := starlark.NewDict(c.Len())
		memo[c] = out
		for _, item := range c.Items() {
			val, err := deepCopy(item[1], memo)
			if err != nil {
				return nil, err
			}
			if err := out.SetKey(item[0], val); err != nil {
				return nil, hostError(KindType, err)
			}
		}
		return out, nil
	case *starlark.Set:
		if done, ok := memo[c]; ok {
			return done, nil
		}
		out := starlark.NewSet(c.Len())
		memo[c] = out
		iter := c.Iterate()
		defer iter.Done()
		var elem starlark.Value
		for iter.Next(&elem) {
			if err := out.Insert(elem); err != nil {
				return nil, hostError(KindType, err)
			}
		}
		return out, nil
	case starlark.Tuple:
		out := make(starlark.Tuple, len(c))
		for i, elem := range c {
			copied, err := deepCopy(elem, memo)
			if err != nil {
				return nil, err
			}
			out[i] = copied
		}
		return out, nil
	default:
		return v, nil
	}
}
