package flux

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.starlark.net/starlark"
)

// Effect classifies what calling a capability can do beyond returning a
// value. A capability with no effects is pure.
type Effect uint8

const (
	// EffectMutatesArgument capabilities modify a container argument in place
	// and return that same container, so the result aliases the argument.
	// They are not safe for concurrent use on one container.
	EffectMutatesArgument Effect = 1 << iota
	// EffectIO capabilities touch the file system, network, process or a
	// random source. Their failures surface with the I/O kind.
	EffectIO
	// EffectBlocks capabilities may suspend the caller for an external event
	// or a fixed duration.
	EffectBlocks
	// EffectSpawns capabilities start concurrent work that outlives the call.
	EffectSpawns
)

// EffectPure is the empty effect set.
const EffectPure Effect = 0

var effectNames = []struct {
	effect Effect
	name   string
}{
	{EffectMutatesArgument, "mutates-argument"},
	{EffectIO, "performs-io"},
	{EffectBlocks, "blocks"},
	{EffectSpawns, "spawns-concurrency"},
}

// Has reports whether e includes every effect in other.
func (e Effect) Has(other Effect) bool {
	return e&other == other
}

// Pure reports whether e is the empty set.
func (e Effect) Pure() bool {
	return e == EffectPure
}

func (e Effect) String() string {
	if e.Pure() {
		return "pure"
	}
	parts := make([]string, 0, len(effectNames))
	for _, entry := range effectNames {
		if e.Has(entry.effect) {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, ",")
}

// BuiltinFunc is the uniform call signature every capability implements.
// Implementations validate their own arguments.
type BuiltinFunc func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// Capability is one named entry of the registry.
type Capability struct {
	Name    string
	Params  string
	Effects Effect
	Doc     string
	Family  string

	builtin *starlark.Builtin
}

// Value returns the host callable bound into namespaces. Every namespace
// shares the same value.
func (c *Capability) Value() *starlark.Builtin {
	return c.builtin
}

// Signature renders the call shape, for example "round(x, n=0)".
func (c *Capability) Signature() string {
	return c.Name + "(" + c.Params + ")"
}

// Registry is an immutable set of capabilities keyed by name.
type Registry struct {
	byName map[string]*Capability
	names  []string
}

// Lookup finds a capability by name.
func (r *Registry) Lookup(name string) (*Capability, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Names returns the sorted capability names.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Len reports the number of capabilities.
func (r *Registry) Len() int {
	return len(r.names)
}

// All returns the capabilities sorted by name.
func (r *Registry) All() []*Capability {
	out := make([]*Capability, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.byName[name])
	}
	return out
}

// registryBuilder accumulates capabilities for one family at a time.
type registryBuilder struct {
	byName map[string]*Capability
	family string
}

func (b *registryBuilder) add(name, params string, effects Effect, doc string, fn BuiltinFunc) {
	if _, exists := b.byName[name]; exists {
		panic(fmt.Sprintf("flux: duplicate capability %q", name))
	}
	b.byName[name] = &Capability{
		Name:    name,
		Params:  params,
		Effects: effects,
		Doc:     doc,
		Family:  b.family,
		builtin: starlark.NewBuiltin(name, fn),
	}
}

func (b *registryBuilder) build() *Registry {
	names := make([]string, 0, len(b.byName))
	for name := range b.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return &Registry{byName: b.byName, names: names}
}

type capabilityFamily struct {
	name     string
	register func(b *registryBuilder)
}

func families() []capabilityFamily {
	return []capabilityFamily{
		{"math", registerMath},
		{"strings", registerStrings},
		{"collections", registerCollections},
		{"io", registerIO},
		{"time", registerTime},
		{"json", registerJSON},
		{"concurrency", registerConcurrency},
		{"misc", registerMisc},
	}
}

var (
	stdlibOnce sync.Once
	stdlib     *Registry
)

// Stdlib returns the process-wide capability registry. It is built on first
// use and never modified afterwards, so it is safe to share between
// concurrent executions.
func Stdlib() *Registry {
	stdlibOnce.Do(func() {
		b := &registryBuilder{byName: make(map[string]*Capability)}
		for _, family := range families() {
			b.family = family.name
			family.register(b)
		}
		stdlib = b.build()
	})
	return stdlib
}
