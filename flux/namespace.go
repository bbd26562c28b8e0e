package flux

import (
	"fmt"
	"slices"

	"go.starlark.net/starlark"
)

// DefaultAggregateName is the identifier that exposes the whole registry as
// one value.
const DefaultAggregateName = "std"

// Namespace is the mutable scope of a single execution. It starts out with
// every capability bound under its own name plus the aggregate binding;
// top-level definitions made by the program are written into it and may
// replace capability bindings.
//
// A Namespace belongs to one execution and is not safe for concurrent use.
type Namespace struct {
	vars starlark.StringDict
}

// NewNamespace seeds a fresh namespace from reg. The capability values are
// shared with every other namespace built from reg; only the bindings are new.
func NewNamespace(reg *Registry, aggregate string) *Namespace {
	if aggregate == "" {
		aggregate = DefaultAggregateName
	}
	vars := make(starlark.StringDict, reg.Len()+1)
	for _, c := range reg.All() {
		vars[c.Name] = c.Value()
	}
	vars[aggregate] = newAggregate(aggregate, reg)
	return &Namespace{vars: vars}
}

// Lookup returns the value bound to name.
func (ns *Namespace) Lookup(name string) (starlark.Value, bool) {
	v, ok := ns.vars[name]
	return v, ok
}

// Has reports whether name is bound.
func (ns *Namespace) Has(name string) bool {
	_, ok := ns.vars[name]
	return ok
}

// Set binds name to v, replacing any previous binding.
func (ns *Namespace) Set(name string, v starlark.Value) {
	ns.vars[name] = v
}

// Len reports the number of bindings.
func (ns *Namespace) Len() int {
	return len(ns.vars)
}

// Names returns the bound names in sorted order.
func (ns *Namespace) Names() []string {
	return ns.vars.Keys()
}

// aggregate groups every capability of a registry under one value. Scripts
// can reach a capability either as an attribute (std.sqrt) or by key
// (std["sqrt"]).
type aggregate struct {
	name    string
	members starlark.StringDict
	names   []string
}

var (
	_ starlark.HasAttrs = (*aggregate)(nil)
	_ starlark.Mapping  = (*aggregate)(nil)
	_ starlark.Iterable = (*aggregate)(nil)
	_ starlark.Sequence = (*aggregate)(nil)
)

func newAggregate(name string, reg *Registry) *aggregate {
	members := make(starlark.StringDict, reg.Len())
	for _, c := range reg.All() {
		members[c.Name] = c.Value()
	}
	return &aggregate{name: name, members: members, names: reg.Names()}
}

func (a *aggregate) String() string        { return fmt.Sprintf("<capabilities %q>", a.name) }
func (a *aggregate) Type() string          { return "capabilities" }
func (a *aggregate) Freeze()               {}
func (a *aggregate) Truth() starlark.Bool  { return len(a.names) > 0 }
func (a *aggregate) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", a.Type()) }
func (a *aggregate) Len() int              { return len(a.names) }

func (a *aggregate) Attr(name string) (starlark.Value, error) {
	if v, ok := a.members[name]; ok {
		return v, nil
	}
	return nil, nil
}

func (a *aggregate) AttrNames() []string {
	return slices.Clone(a.names)
}

func (a *aggregate) Get(key starlark.Value) (starlark.Value, bool, error) {
	name, ok := starlark.AsString(key)
	if !ok {
		return nil, false, newError(KindType, "%s keys are strings, got %s", a.name, key.Type())
	}
	v, found := a.members[name]
	return v, found, nil
}

func (a *aggregate) Iterate() starlark.Iterator {
	return &aggregateIterator{names: a.names}
}

type aggregateIterator struct {
	names []string
	i     int
}

func (it *aggregateIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.names) {
		return false
	}
	*p = starlark.String(it.names[it.i])
	it.i++
	return true
}

func (it *aggregateIterator) Done() {}
